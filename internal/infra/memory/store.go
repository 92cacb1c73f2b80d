package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"quiz-progress-service/internal/docstore"
)

// Store is an in-memory implementation of docstore.Store.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]docstore.Fields
}

func NewStore() *Store {
	return &Store{
		collections: make(map[string]map[string]docstore.Fields),
	}
}

func (s *Store) Get(_ context.Context, path, id string) (docstore.Document, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fields, ok := s.collections[path][id]
	if !ok {
		return docstore.Document{}, false, nil
	}
	return docstore.Document{ID: id, Fields: docstore.Clone(fields)}, true, nil
}

func (s *Store) UpsertMerge(_ context.Context, path, id string, patch docstore.Patch) error {
	set, err := copyFields(patch.Set)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	col := s.collectionLocked(path)
	doc, ok := col[id]
	if !ok {
		doc = docstore.Fields{}
		col[id] = doc
	}
	for k, v := range set {
		doc[k] = v
	}
	for k, delta := range patch.Inc {
		doc[k] = docstore.Int64(doc, k) + delta
	}
	return nil
}

func (s *Store) AppendNew(_ context.Context, path string, fields docstore.Fields) (string, error) {
	doc, err := copyFields(fields)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.collectionLocked(path)[id] = doc
	return id, nil
}

func (s *Store) DeleteBatch(_ context.Context, path string, ids []string) error {
	if len(ids) > docstore.MaxBatchSize {
		return docstore.ErrBatchTooLarge
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[path]
	if !ok {
		return nil
	}
	for _, id := range ids {
		delete(col, id)
	}
	if len(col) == 0 {
		delete(s.collections, path)
	}
	return nil
}

func (s *Store) Query(_ context.Context, path string, q docstore.Query) ([]docstore.Document, error) {
	return docstore.Apply(s.snapshot(path), q), nil
}

func (s *Store) Count(_ context.Context, path string, filters []docstore.Filter) (int, error) {
	return len(docstore.Apply(s.snapshot(path), docstore.Query{Filters: filters})), nil
}

func (s *Store) snapshot(path string) []docstore.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col := s.collections[path]
	docs := make([]docstore.Document, 0, len(col))
	for id, fields := range col {
		docs = append(docs, docstore.Document{ID: id, Fields: docstore.Clone(fields)})
	}
	return docs
}

func (s *Store) collectionLocked(path string) map[string]docstore.Fields {
	col, ok := s.collections[path]
	if !ok {
		col = make(map[string]docstore.Fields)
		s.collections[path] = col
	}
	return col
}

// copyFields normalizes caller values the way a real backend would store them.
func copyFields(fields docstore.Fields) (docstore.Fields, error) {
	if len(fields) == 0 {
		return docstore.Fields{}, nil
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("memory store: %w", err)
	}
	return docstore.DecodeJSON(raw)
}
