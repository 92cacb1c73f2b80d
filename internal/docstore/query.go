package docstore

import (
	"sort"
)

// Apply evaluates q against docs in process. Backends without native query
// support (memory, Redis) use it.
func Apply(docs []Document, q Query) []Document {
	matched := make([]Document, 0, len(docs))
	for _, doc := range docs {
		if Match(doc.Fields, q.Filters) {
			matched = append(matched, doc)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if q.OrderBy != "" {
			c := compareField(matched[i].Fields, matched[j].Fields, q.OrderBy)
			if c != 0 {
				if q.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return matched[i].ID < matched[j].ID
	})

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return []Document{}
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched
}

// Match reports whether fields satisfy every filter.
func Match(fields Fields, filters []Filter) bool {
	for _, f := range filters {
		v, ok := fields[f.Field]
		if !ok || v == nil {
			return false
		}
		c, comparable := compare(v, Normalize(f.Value))
		if !comparable {
			return false
		}
		switch f.Op {
		case Eq:
			if c != 0 {
				return false
			}
		case Gt:
			if c <= 0 {
				return false
			}
		case Gte:
			if c < 0 {
				return false
			}
		case Lt:
			if c >= 0 {
				return false
			}
		case Lte:
			if c > 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func compareField(a, b Fields, field string) int {
	av, aok := a[field]
	bv, bok := b[field]
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	}
	if c, ok := compare(av, bv); ok {
		return c
	}
	return typeRank(av) - typeRank(bv)
}

// compare orders two values of the same kind. Numbers compare across
// int64/float64; mismatched kinds are not comparable.
func compare(a, b any) (int, bool) {
	if af, ok := number(a); ok {
		bf, ok := number(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case int64, int, float64:
		return 1
	case string:
		return 2
	case bool:
		return 3
	default:
		return 4
	}
}
