package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"quiz-progress-service/internal/docstore"
)

// markerField keeps a document's hash alive even when it holds no fields.
const markerField = "_id"

// Store keeps each document as a hash and indexes ids per collection path.
// Documents: HSET doc:{path}/{id} {field} {json value}
// Index:     SADD col:{path} {id}
// Counters are plain integers in the hash so HINCRBY applies them atomically.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Get(ctx context.Context, path, id string) (docstore.Document, bool, error) {
	raw, err := s.client.HGetAll(ctx, docKey(path, id)).Result()
	if err != nil {
		return docstore.Document{}, false, fmt.Errorf("redis get %s/%s: %w", path, id, err)
	}
	if len(raw) == 0 {
		return docstore.Document{}, false, nil
	}
	fields, err := decodeHash(raw)
	if err != nil {
		return docstore.Document{}, false, err
	}
	return docstore.Document{ID: id, Fields: fields}, true, nil
}

func (s *Store) UpsertMerge(ctx context.Context, path, id string, patch docstore.Patch) error {
	values, err := encodeHash(id, patch.Set)
	if err != nil {
		return err
	}
	key := docKey(path, id)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values...)
		for field, delta := range patch.Inc {
			pipe.HIncrBy(ctx, key, field, delta)
		}
		pipe.SAdd(ctx, colKey(path), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis upsert %s/%s: %w", path, id, err)
	}
	return nil
}

func (s *Store) AppendNew(ctx context.Context, path string, fields docstore.Fields) (string, error) {
	id := uuid.NewString()
	if err := s.UpsertMerge(ctx, path, id, docstore.Patch{Set: fields}); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) DeleteBatch(ctx context.Context, path string, ids []string) error {
	if len(ids) > docstore.MaxBatchSize {
		return docstore.ErrBatchTooLarge
	}
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		keys[i] = docKey(path, id)
		members[i] = id
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.SRem(ctx, colKey(path), members...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete batch %s: %w", path, err)
	}
	return nil
}

// Query loads the whole collection and filters it in process. Collections
// here are per subject and stay small.
func (s *Store) Query(ctx context.Context, path string, q docstore.Query) ([]docstore.Document, error) {
	docs, err := s.load(ctx, path)
	if err != nil {
		return nil, err
	}
	return docstore.Apply(docs, q), nil
}

func (s *Store) Count(ctx context.Context, path string, filters []docstore.Filter) (int, error) {
	if len(filters) == 0 {
		n, err := s.client.SCard(ctx, colKey(path)).Result()
		if err != nil {
			return 0, fmt.Errorf("redis count %s: %w", path, err)
		}
		return int(n), nil
	}
	docs, err := s.load(ctx, path)
	if err != nil {
		return 0, err
	}
	return len(docstore.Apply(docs, docstore.Query{Filters: filters})), nil
}

func (s *Store) load(ctx context.Context, path string) ([]docstore.Document, error) {
	ids, err := s.client.SMembers(ctx, colKey(path)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list %s: %w", path, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, docKey(path, id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis load %s: %w", path, err)
	}

	docs := make([]docstore.Document, 0, len(ids))
	for i, cmd := range cmds {
		raw := cmd.Val()
		if len(raw) == 0 {
			continue
		}
		fields, err := decodeHash(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, docstore.Document{ID: ids[i], Fields: fields})
	}
	return docs, nil
}

func docKey(path, id string) string {
	return "doc:" + path + "/" + id
}

func colKey(path string) string {
	return "col:" + path
}

func encodeHash(id string, fields docstore.Fields) ([]interface{}, error) {
	marker, _ := json.Marshal(id)
	values := make([]interface{}, 0, 2*len(fields)+2)
	values = append(values, markerField, string(marker))
	for k, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("redis encode field %s: %w", k, err)
		}
		values = append(values, k, string(raw))
	}
	return values, nil
}

func decodeHash(raw map[string]string) (docstore.Fields, error) {
	fields := make(docstore.Fields, len(raw))
	for k, v := range raw {
		if k == markerField {
			continue
		}
		value, err := decodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("redis decode field %s: %w", k, err)
		}
		fields[k] = value
	}
	return fields, nil
}

func decodeValue(raw string) (any, error) {
	wrapped, err := docstore.DecodeJSON([]byte(`{"v":` + raw + `}`))
	if err != nil {
		return nil, err
	}
	return wrapped["v"], nil
}
