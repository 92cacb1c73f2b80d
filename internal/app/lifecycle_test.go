package app_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"quiz-progress-service/internal/app"
	"quiz-progress-service/internal/docstore"
	"quiz-progress-service/internal/domain"
	"quiz-progress-service/internal/infra/memory"
)

type fixture struct {
	store     docstore.Store
	counter   *app.ShardedCounter
	attempts  *app.AttemptRecorder
	sessions  *app.SessionRecorder
	lifecycle *app.Lifecycle
}

func newFixture(store docstore.Store, batchSize int) fixture {
	counter := app.NewShardedCounter(store, app.DefaultShards, nil)
	return fixture{
		store:     store,
		counter:   counter,
		attempts:  app.NewAttemptRecorder(store, counter, nil),
		sessions:  app.NewSessionRecorder(store, nil),
		lifecycle: app.NewLifecycle(store, app.NewProfileAuthorizer(store), counter, nil, batchSize),
	}
}

func (f fixture) seedActivity(t *testing.T, subject string, questions, sessions int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < questions; i++ {
		if err := f.attempts.RecordAttempt(ctx, subject, fmt.Sprintf("q%d", i), i%2 == 0); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}
	for i := 0; i < sessions; i++ {
		if _, err := f.sessions.SaveSession(ctx, subject, domain.SessionRecord{Score: 50}); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}
}

func TestDeleteAllDataRemovesEverything(t *testing.T) {
	ctx := context.Background()
	f := newFixture(memory.NewStore(), 0)
	seedProfile(t, f.store, "u5", domain.RoleUser, 9, 4)
	f.seedActivity(t, "u5", 6, 2)

	deleted, err := f.lifecycle.DeleteAllData(ctx, "u5", "u5")
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if deleted < 6+2+1+1 {
		t.Fatalf("expected at least 10 deleted records, got %d", deleted)
	}
	if got := f.counter.Sum(ctx, "u5"); got != (domain.Totals{}) {
		t.Fatalf("expected zero totals, got %+v", got)
	}
	for _, path := range []string{"users/u5/userQuestions", "users/u5/quiz_sessions", "users/u5/shards"} {
		if n := countDocs(t, f.store, path); n != 0 {
			t.Fatalf("expected %s empty, found %d", path, n)
		}
	}
	if _, ok, _ := f.store.Get(ctx, "users", "u5"); ok {
		t.Fatalf("expected profile to be deleted")
	}
}

func TestResetStatisticsKeepsProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(memory.NewStore(), 0)
	seedProfile(t, f.store, "u4", domain.RoleUser, 5, 3)
	f.seedActivity(t, "u4", 5, 3)
	if f.counter.Sum(ctx, "u4").Answered == 0 {
		t.Fatalf("expected nonzero totals before reset")
	}

	if _, err := f.lifecycle.ResetStatistics(ctx, "u4", "u4"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if got := f.counter.Sum(ctx, "u4"); got != (domain.Totals{}) {
		t.Fatalf("expected zero totals, got %+v", got)
	}
	if n := countDocs(t, f.store, "users/u4/userQuestions"); n != 0 {
		t.Fatalf("expected no question states, found %d", n)
	}
	if n := countDocs(t, f.store, "users/u4/quiz_sessions"); n != 0 {
		t.Fatalf("expected no sessions, found %d", n)
	}
	doc, ok, _ := f.store.Get(ctx, "users", "u4")
	if !ok {
		t.Fatalf("expected profile to survive reset")
	}
	if docstore.Int64(doc.Fields, "totalQuestionsAnsweredAllTime") != 0 || docstore.Int64(doc.Fields, "totalCorrectAnswersAllTime") != 0 {
		t.Fatalf("expected denormalized totals zeroed, got %+v", doc.Fields)
	}
}

func TestPurgeLoopsUntilEmpty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(memory.NewStore(), 2)
	f.seedActivity(t, "u1", 7, 0)

	deleted, err := f.lifecycle.ResetStatistics(ctx, "u1", "u1")
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if n := countDocs(t, f.store, "users/u1/userQuestions"); n != 0 {
		t.Fatalf("expected all batches deleted, %d left", n)
	}
	if deleted < 7 {
		t.Fatalf("expected at least 7 deleted, got %d", deleted)
	}
}

func TestPurgeReportsPartialProgress(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	f := newFixture(store, 2)
	for i := 0; i < 5; i++ {
		if _, err := f.sessions.SaveSession(ctx, "u1", domain.SessionRecord{Score: i}); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}
	store.deletesBeforeFailure = 1

	deleted, err := f.lifecycle.DeleteAllData(ctx, "u1", "u1")
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 records deleted before failure, got %d", deleted)
	}
	if n := countDocs(t, store, "users/u1/quiz_sessions"); n != 3 {
		t.Fatalf("expected committed batch to stay deleted, %d left", n)
	}
}

func TestLifecycleAuthorization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(memory.NewStore(), 0)
	seedProfile(t, f.store, "admin", domain.RoleAdmin, 0, 0)
	seedProfile(t, f.store, "u1", domain.RoleUser, 0, 0)
	seedProfile(t, f.store, "u2", domain.RoleUser, 0, 0)
	f.seedActivity(t, "u2", 2, 0)

	if _, err := f.lifecycle.DeleteAllData(ctx, "u1", "u2"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if n := countDocs(t, f.store, "users/u2/userQuestions"); n != 2 {
		t.Fatalf("refused delete must not touch data, %d left", n)
	}
	if _, err := f.lifecycle.ResetStatistics(ctx, "", "u2"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for anonymous caller, got %v", err)
	}
	if _, err := f.lifecycle.ResetStatistics(ctx, "admin", "u2"); err != nil {
		t.Fatalf("expected admin reset to succeed, got %v", err)
	}
	if _, err := f.lifecycle.ResetStatistics(ctx, "admin", ""); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestResetInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	cache := memory.NewTotalsCache(time.Minute)
	counter := app.NewShardedCounter(store, app.DefaultShards, cache)
	reader := app.NewAggregateReader(store, counter)
	lifecycle := app.NewLifecycle(store, app.AllowAll{}, counter, nil, 0)

	_ = counter.Increment(ctx, "u1", 1, 1)
	if got := reader.GetStats(ctx, "u1"); got.Answered != 1 {
		t.Fatalf("expected 1 answered, got %+v", got)
	}
	if _, err := lifecycle.ResetStatistics(ctx, "operator", "u1"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if got := reader.GetStats(ctx, "u1"); got != (domain.Totals{}) {
		t.Fatalf("expected cached totals dropped, got %+v", got)
	}
}
