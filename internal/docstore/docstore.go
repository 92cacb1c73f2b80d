// Package docstore defines the document store contract the progress core
// depends on, plus helpers shared by the backend implementations.
package docstore

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MaxBatchSize caps the number of ids accepted by DeleteBatch.
const MaxBatchSize = 500

// ErrBatchTooLarge is returned by DeleteBatch when more than MaxBatchSize ids are given.
var ErrBatchTooLarge = errors.New("docstore: batch exceeds max batch size")

// Fields holds JSON-compatible document values: string, int64, float64,
// bool, nil, []any and map[string]any.
type Fields map[string]any

// Document is a stored record addressed by (path, ID).
type Document struct {
	ID     string
	Fields Fields
}

// Patch describes a merge-upsert. Set overwrites fields, Inc adds to numeric
// fields (a missing field counts as zero). A field must not appear in both.
type Patch struct {
	Set Fields
	Inc map[string]int64
}

// Op is a filter comparison operator.
type Op string

const (
	Eq  Op = "=="
	Gt  Op = ">"
	Gte Op = ">="
	Lt  Op = "<"
	Lte Op = "<="
)

// Filter restricts a query to documents whose field compares to Value.
// Documents missing the field never match.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Query selects documents of one collection path.
// Documents missing OrderBy sort before all others.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// Store is implemented by every backend (memory, Redis, Postgres, MongoDB).
type Store interface {
	Get(ctx context.Context, path, id string) (Document, bool, error)
	UpsertMerge(ctx context.Context, path, id string, patch Patch) error
	AppendNew(ctx context.Context, path string, fields Fields) (string, error)
	DeleteBatch(ctx context.Context, path string, ids []string) error
	Query(ctx context.Context, path string, q Query) ([]Document, error)
	Count(ctx context.Context, path string, filters []Filter) (int, error)
}

// Path joins collection path segments, e.g. Path("users", id, "shards").
func Path(segments ...string) string {
	return strings.Join(segments, "/")
}

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t as a fixed-width UTC string so that lexical order
// matches chronological order on every backend.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
