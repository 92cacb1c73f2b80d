package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Encode converts a tagged struct into Fields.
func Encode(v any) (Fields, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return DecodeJSON(raw)
}

// Decode fills v from stored fields using v's json tags.
func Decode(fields Fields, v any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// DecodeJSON parses a JSON object, keeping integers as int64.
func DecodeJSON(raw []byte) (Fields, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if out == nil {
		return Fields{}, nil
	}
	return Fields(Normalize(out).(map[string]any)), nil
}

// Normalize rewrites decoded values into the Fields value set.
func Normalize(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case float32:
		return float64(val)
	case Fields:
		return Normalize(map[string]any(val))
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	default:
		return v
	}
}

// Clone deep-copies fields so callers cannot alias stored state.
func Clone(fields Fields) Fields {
	if fields == nil {
		return Fields{}
	}
	return Fields(Normalize(map[string]any(fields)).(map[string]any))
}

// Int64 reads a numeric field, treating absence and non-numbers as zero.
func Int64(fields Fields, key string) int64 {
	switch v := fields[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}
