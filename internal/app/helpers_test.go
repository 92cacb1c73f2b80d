package app_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"quiz-progress-service/internal/app"
	"quiz-progress-service/internal/docstore"
	"quiz-progress-service/internal/infra/memory"
)

var errBackend = errors.New("backend down")

// faultyStore wraps a store and fails selected calls.
type faultyStore struct {
	docstore.Store

	mu sync.Mutex
	// failUpsert fails UpsertMerge on paths containing the substring.
	failUpsert string
	// failQuery fails Query on paths containing the substring.
	failQuery string
	// afterQuery runs after every successful Query.
	afterQuery func(path string)
	// deletesBeforeFailure lets this many DeleteBatch calls succeed, then fails; -1 never fails.
	deletesBeforeFailure int
	deletes              int
}

func newFaultyStore() *faultyStore {
	return &faultyStore{Store: memory.NewStore(), deletesBeforeFailure: -1}
}

func (s *faultyStore) UpsertMerge(ctx context.Context, path, id string, patch docstore.Patch) error {
	if s.failUpsert != "" && strings.Contains(path, s.failUpsert) {
		return errBackend
	}
	return s.Store.UpsertMerge(ctx, path, id, patch)
}

// Query fails once ctx is done, like a network driver would.
func (s *faultyStore) Query(ctx context.Context, path string, q docstore.Query) ([]docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.failQuery != "" && strings.Contains(path, s.failQuery) {
		return nil, errBackend
	}
	docs, err := s.Store.Query(ctx, path, q)
	if err == nil && s.afterQuery != nil {
		s.afterQuery(path)
	}
	return docs, err
}

func (s *faultyStore) DeleteBatch(ctx context.Context, path string, ids []string) error {
	s.mu.Lock()
	if s.deletesBeforeFailure >= 0 && s.deletes >= s.deletesBeforeFailure {
		s.mu.Unlock()
		return errBackend
	}
	s.deletes++
	s.mu.Unlock()
	return s.Store.DeleteBatch(ctx, path, ids)
}

func countDocs(t *testing.T, store docstore.Store, path string) int {
	t.Helper()
	n, err := store.Count(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("count %s: %v", path, err)
	}
	return n
}

func seedProfile(t *testing.T, store docstore.Store, id, role string, answered, correct int64) {
	t.Helper()
	err := store.UpsertMerge(context.Background(), "users", id, docstore.Patch{Set: docstore.Fields{
		"uid":                           id,
		"email":                         id + "@example.com",
		"displayName":                   strings.ToUpper(id),
		"role":                          role,
		"totalQuestionsAnsweredAllTime": answered,
		"totalCorrectAnswersAllTime":    correct,
	}})
	if err != nil {
		t.Fatalf("seed profile %s: %v", id, err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func selfOnly() app.Authorizer {
	return app.AuthorizerFunc(func(_ context.Context, callerID, subjectID string) (bool, error) {
		return callerID == subjectID, nil
	})
}
