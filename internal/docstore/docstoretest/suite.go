// Package docstoretest holds the behaviour every docstore.Store backend must share.
package docstoretest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"quiz-progress-service/internal/docstore"
)

// Factory returns an empty store for one sub-test.
type Factory func(t *testing.T) docstore.Store

// Run exercises a backend against the docstore contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("UpsertMerge", func(t *testing.T) { testUpsertMerge(t, newStore(t)) })
	t.Run("ConcurrentIncrements", func(t *testing.T) { testConcurrentIncrements(t, newStore(t)) })
	t.Run("AppendNew", func(t *testing.T) { testAppendNew(t, newStore(t)) })
	t.Run("Query", func(t *testing.T) { testQuery(t, newStore(t)) })
	t.Run("DeleteBatch", func(t *testing.T) { testDeleteBatch(t, newStore(t)) })
	t.Run("PathIsolation", func(t *testing.T) { testPathIsolation(t, newStore(t)) })
}

func testGetMissing(t *testing.T, store docstore.Store) {
	_, ok, err := store.Get(context.Background(), "users", "nobody")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatalf("expected missing document")
	}
}

func testUpsertMerge(t *testing.T, store docstore.Store) {
	ctx := context.Background()
	path := docstore.Path("users", "u1", "shards")

	err := store.UpsertMerge(ctx, path, "3", docstore.Patch{
		Set: docstore.Fields{"lastUpdatedAt": "t1", "label": "a"},
		Inc: map[string]int64{"answeredCount": 1, "correctCount": 1},
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	err = store.UpsertMerge(ctx, path, "3", docstore.Patch{
		Set: docstore.Fields{"lastUpdatedAt": "t2"},
		Inc: map[string]int64{"answeredCount": 1, "correctCount": 0},
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	doc, ok, err := store.Get(ctx, path, "3")
	if err != nil || !ok {
		t.Fatalf("get after upsert: ok=%v err=%v", ok, err)
	}
	if doc.ID != "3" {
		t.Fatalf("expected id 3, got %q", doc.ID)
	}
	if got := docstore.Int64(doc.Fields, "answeredCount"); got != 2 {
		t.Fatalf("expected answeredCount 2, got %d", got)
	}
	if got := docstore.Int64(doc.Fields, "correctCount"); got != 1 {
		t.Fatalf("expected correctCount 1, got %d", got)
	}
	if doc.Fields["lastUpdatedAt"] != "t2" {
		t.Fatalf("expected overwritten timestamp, got %v", doc.Fields["lastUpdatedAt"])
	}
	if doc.Fields["label"] != "a" {
		t.Fatalf("expected untouched field preserved, got %v", doc.Fields["label"])
	}
}

func testConcurrentIncrements(t *testing.T, store docstore.Store) {
	ctx := context.Background()
	path := docstore.Path("users", "hot", "shards")
	const writers = 40

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.UpsertMerge(ctx, path, "0", docstore.Patch{
				Inc: map[string]int64{"answeredCount": 1},
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent upsert: %v", err)
		}
	}

	doc, ok, err := store.Get(ctx, path, "0")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got := docstore.Int64(doc.Fields, "answeredCount"); got != writers {
		t.Fatalf("expected %d, got %d", writers, got)
	}
}

func testAppendNew(t *testing.T, store docstore.Store) {
	ctx := context.Background()
	path := docstore.Path("users", "u1", "quiz_sessions")
	fields := docstore.Fields{
		"score": int64(70),
		"questionsAttempted": []any{
			map[string]any{"questionId": "q1", "answeredCorrectly": true},
		},
	}

	id1, err := store.AppendNew(ctx, path, fields)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	id2, err := store.AppendNew(ctx, path, fields)
	if err != nil {
		t.Fatalf("append 2: %v", err)
	}
	if id1 == "" || id1 == id2 {
		t.Fatalf("expected distinct generated ids, got %q and %q", id1, id2)
	}

	doc, ok, err := store.Get(ctx, path, id1)
	if err != nil || !ok {
		t.Fatalf("get appended: ok=%v err=%v", ok, err)
	}
	if docstore.Int64(doc.Fields, "score") != 70 {
		t.Fatalf("unexpected score %v", doc.Fields["score"])
	}
	attempts, ok := doc.Fields["questionsAttempted"].([]any)
	if !ok || len(attempts) != 1 {
		t.Fatalf("unexpected attempts %#v", doc.Fields["questionsAttempted"])
	}
	first, ok := attempts[0].(map[string]any)
	if !ok || first["questionId"] != "q1" || first["answeredCorrectly"] != true {
		t.Fatalf("unexpected nested attempt %#v", attempts[0])
	}
}

func testQuery(t *testing.T, store docstore.Store) {
	ctx := context.Background()
	path := docstore.Path("users", "u1", "userQuestions")
	seed := map[string]docstore.Patch{
		"q1": {Set: docstore.Fields{"lastSeen": "2024-01-01"}, Inc: map[string]int64{"incorrectCount": 0, "seenCount": 1}},
		"q2": {Set: docstore.Fields{"lastSeen": "2024-01-03"}, Inc: map[string]int64{"incorrectCount": 2, "seenCount": 2}},
		"q3": {Set: docstore.Fields{"lastSeen": "2024-01-02"}, Inc: map[string]int64{"incorrectCount": 1, "seenCount": 1}},
		"q4": {Set: docstore.Fields{"note": "no counters"}},
	}
	for id, patch := range seed {
		if err := store.UpsertMerge(ctx, path, id, patch); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	wrong, err := store.Query(ctx, path, docstore.Query{
		Filters: []docstore.Filter{{Field: "incorrectCount", Op: docstore.Gt, Value: 0}},
		OrderBy: "lastSeen",
		Desc:    true,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if ids := idsOf(wrong); fmt.Sprint(ids) != "[q2 q3]" {
		t.Fatalf("expected [q2 q3], got %v", ids)
	}

	page, err := store.Query(ctx, path, docstore.Query{
		Filters: []docstore.Filter{{Field: "seenCount", Op: docstore.Gte, Value: 1}},
		OrderBy: "lastSeen",
		Offset:  1,
		Limit:   1,
	})
	if err != nil {
		t.Fatalf("paged query: %v", err)
	}
	if ids := idsOf(page); fmt.Sprint(ids) != "[q3]" {
		t.Fatalf("expected [q3], got %v", ids)
	}

	all, err := store.Query(ctx, path, docstore.Query{})
	if err != nil {
		t.Fatalf("query all: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 documents, got %d", len(all))
	}

	n, err := store.Count(ctx, path, []docstore.Filter{{Field: "incorrectCount", Op: docstore.Eq, Value: 0}})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 question without mistakes, got %d", n)
	}
}

func testDeleteBatch(t *testing.T, store docstore.Store) {
	ctx := context.Background()
	path := docstore.Path("users", "u1", "shards")
	for _, id := range []string{"0", "1", "2"} {
		if err := store.UpsertMerge(ctx, path, id, docstore.Patch{Inc: map[string]int64{"answeredCount": 1}}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	if err := store.DeleteBatch(ctx, path, []string{"0", "2", "missing"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	left, err := store.Query(ctx, path, docstore.Query{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if ids := idsOf(left); fmt.Sprint(ids) != "[1]" {
		t.Fatalf("expected [1] left, got %v", ids)
	}

	tooMany := make([]string, docstore.MaxBatchSize+1)
	for i := range tooMany {
		tooMany[i] = fmt.Sprint(i)
	}
	if err := store.DeleteBatch(ctx, path, tooMany); !errors.Is(err, docstore.ErrBatchTooLarge) {
		t.Fatalf("expected ErrBatchTooLarge, got %v", err)
	}
	if err := store.DeleteBatch(ctx, path, nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
}

func testPathIsolation(t *testing.T, store docstore.Store) {
	ctx := context.Background()
	a := docstore.Path("users", "a", "shards")
	b := docstore.Path("users", "b", "shards")
	if err := store.UpsertMerge(ctx, a, "0", docstore.Patch{Inc: map[string]int64{"answeredCount": 5}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	docs, err := store.Query(ctx, b, docstore.Query{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected no documents under %s, got %d", b, len(docs))
	}
	if _, ok, _ := store.Get(ctx, b, "0"); ok {
		t.Fatalf("document leaked across paths")
	}
}

func idsOf(docs []docstore.Document) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}
