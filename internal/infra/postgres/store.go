package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"quiz-progress-service/internal/docstore"
)

// Store keeps every document as one JSONB row keyed by (collection, id).
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// upsertSQL merges $3 into the row and adds each $4 delta to the current
// numeric value of the field. The row lock taken by ON CONFLICT makes the
// read-add-write atomic.
const upsertSQL = `
INSERT INTO documents (collection, id, data)
VALUES ($1, $2, $3::jsonb || (
    SELECT COALESCE(jsonb_object_agg(i.key, i.value::bigint), '{}'::jsonb)
    FROM jsonb_each_text($4::jsonb) AS i))
ON CONFLICT (collection, id) DO UPDATE SET
    data = documents.data || $3::jsonb || (
        SELECT COALESCE(jsonb_object_agg(i.key, COALESCE((documents.data->>i.key)::bigint, 0) + i.value::bigint), '{}'::jsonb)
        FROM jsonb_each_text($4::jsonb) AS i),
    updated_at = now()`

func (s *Store) Get(ctx context.Context, path, id string) (docstore.Document, bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM documents WHERE collection = $1 AND id = $2`, path, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return docstore.Document{}, false, nil
	}
	if err != nil {
		return docstore.Document{}, false, fmt.Errorf("postgres get %s/%s: %w", path, id, err)
	}
	fields, err := docstore.DecodeJSON(raw)
	if err != nil {
		return docstore.Document{}, false, err
	}
	return docstore.Document{ID: id, Fields: fields}, true, nil
}

func (s *Store) UpsertMerge(ctx context.Context, path, id string, patch docstore.Patch) error {
	set, err := json.Marshal(nonNil(patch.Set))
	if err != nil {
		return fmt.Errorf("postgres encode %s/%s: %w", path, id, err)
	}
	inc := patch.Inc
	if inc == nil {
		inc = map[string]int64{}
	}
	incRaw, err := json.Marshal(inc)
	if err != nil {
		return fmt.Errorf("postgres encode %s/%s: %w", path, id, err)
	}
	if _, err := s.pool.Exec(ctx, upsertSQL, path, id, string(set), string(incRaw)); err != nil {
		return fmt.Errorf("postgres upsert %s/%s: %w", path, id, err)
	}
	return nil
}

func (s *Store) AppendNew(ctx context.Context, path string, fields docstore.Fields) (string, error) {
	raw, err := json.Marshal(nonNil(fields))
	if err != nil {
		return "", fmt.Errorf("postgres encode %s: %w", path, err)
	}
	id := uuid.NewString()
	_, err = s.pool.Exec(ctx, `INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)`, path, id, string(raw))
	if err != nil {
		return "", fmt.Errorf("postgres append %s: %w", path, err)
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
	if _, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = ANY($2)`, path, ids); err != nil {
		return fmt.Errorf("postgres delete batch %s: %w", path, err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, path string, q docstore.Query) ([]docstore.Document, error) {
	b := newQueryBuilder(path)
	if err := b.where(q.Filters); err != nil {
		return nil, err
	}
	sql := `SELECT id, data FROM documents WHERE ` + b.conditions()
	if q.OrderBy != "" {
		field := b.arg(q.OrderBy) + "::text"
		if q.Desc {
			sql += ` ORDER BY data->` + field + ` DESC NULLS LAST, id`
		} else {
			sql += ` ORDER BY data->` + field + ` ASC NULLS FIRST, id`
		}
	} else {
		sql += ` ORDER BY id`
	}
	if q.Limit > 0 {
		sql += ` LIMIT ` + strconv.Itoa(q.Limit)
	}
	if q.Offset > 0 {
		sql += ` OFFSET ` + strconv.Itoa(q.Offset)
	}

	rows, err := s.pool.Query(ctx, sql, b.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres query %s: %w", path, err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("postgres scan %s: %w", path, err)
		}
		fields, err := docstore.DecodeJSON(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, docstore.Document{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres query %s: %w", path, err)
	}
	return docs, nil
}

func (s *Store) Count(ctx context.Context, path string, filters []docstore.Filter) (int, error) {
	b := newQueryBuilder(path)
	if err := b.where(filters); err != nil {
		return 0, err
	}
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM documents WHERE `+b.conditions(), b.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres count %s: %w", path, err)
	}
	return n, nil
}

// queryBuilder collects positional arguments for a documents query.
type queryBuilder struct {
	args  []interface{}
	conds []string
}

func newQueryBuilder(path string) *queryBuilder {
	b := &queryBuilder{}
	b.conds = append(b.conds, "collection = "+b.arg(path))
	return b
}

func (b *queryBuilder) arg(v interface{}) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

// where adds one condition per filter. Values are compared as JSONB of the
// same type, so a missing field or a type mismatch never matches.
func (b *queryBuilder) where(filters []docstore.Filter) error {
	for _, f := range filters {
		op, ok := sqlOps[f.Op]
		if !ok {
			return fmt.Errorf("postgres: unsupported operator %q", f.Op)
		}
		raw, err := json.Marshal(docstore.Normalize(f.Value))
		if err != nil {
			return fmt.Errorf("postgres encode filter %s: %w", f.Field, err)
		}
		field := b.arg(f.Field) + "::text"
		value := b.arg(string(raw))
		b.conds = append(b.conds, fmt.Sprintf(
			"jsonb_typeof(data->%s) = jsonb_typeof(%s::jsonb) AND data->%s %s %s::jsonb",
			field, value, field, op, value,
		))
	}
	return nil
}

func (b *queryBuilder) conditions() string {
	return strings.Join(b.conds, " AND ")
}

var sqlOps = map[docstore.Op]string{
	docstore.Eq:  "=",
	docstore.Gt:  ">",
	docstore.Gte: ">=",
	docstore.Lt:  "<",
	docstore.Lte: "<=",
}

func nonNil(fields docstore.Fields) docstore.Fields {
	if fields == nil {
		return docstore.Fields{}
	}
	return fields
}
