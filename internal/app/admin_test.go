package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-progress-service/internal/app"
	"quiz-progress-service/internal/docstore"
	"quiz-progress-service/internal/domain"
	"quiz-progress-service/internal/infra/memory"
)

func seedFields(t *testing.T, store docstore.Store, id string, fields docstore.Fields) {
	t.Helper()
	if err := store.UpsertMerge(context.Background(), "users", id, docstore.Patch{Set: fields}); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func newAdminFixture(t *testing.T) (*app.ProgressService, docstore.Store, *recordingPublisher) {
	t.Helper()
	store := memory.NewStore()
	publisher := &recordingPublisher{events: make(chan string, 16)}
	service := app.NewProgressService(store, app.Options{Authorizer: selfOnly(), Publisher: publisher})
	t.Cleanup(func() { service.Close() })

	seedProfile(t, store, "admin", domain.RoleAdmin, 0, 0)
	seedFields(t, store, "ana", docstore.Fields{
		"displayName": "Ana Popescu", "firstName": "Ana", "lastName": "Popescu",
		"status": app.StatusPending, "subscriptionLevel": app.SubscriptionTrial,
	})
	seedFields(t, store, "andrei", docstore.Fields{
		"displayName": "Andrei Ionescu", "firstName": "Andrei", "lastName": "Ionescu",
		"status": app.StatusApproved, "subscriptionLevel": "ECMINT",
		"totalQuestionsAnsweredAllTime": int64(12), "totalCorrectAnswersAllTime": int64(9),
	})
	seedFields(t, store, "maria", docstore.Fields{
		"displayName": "Maria Anastase", "firstName": "Maria", "lastName": "Anastase",
		"status": app.StatusPending, "subscriptionLevel": app.SubscriptionTrial,
	})
	return service, store, publisher
}

func TestSearchSubjectsMatchesNamePrefixes(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newAdminFixture(t)
	if err := service.RecordAttempt(ctx, "ana", app.Attempt{SubjectID: "ana", QuestionID: "q1", Correct: true}); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	// "Ana" prefixes ana's display and first name and maria's last name.
	rows, err := service.SearchSubjects(ctx, "admin", "  Ana ")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != "ana" || rows[1].ID != "maria" {
		t.Fatalf("expected ana and maria once each, got %+v", rows)
	}
	if rows[0].TotalAnswered != 1 || rows[0].TotalCorrect != 1 {
		t.Fatalf("expected resolved totals for ana, got %+v", rows[0])
	}

	rows, err = service.SearchSubjects(ctx, "admin", "Ion")
	if err != nil || len(rows) != 1 || rows[0].ID != "andrei" || rows[0].TotalAnswered != 12 {
		t.Fatalf("expected andrei with profile totals, got %+v (%v)", rows, err)
	}
	if _, err := service.SearchSubjects(ctx, "admin", " An "); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected short term rejected, got %v", err)
	}
	if _, err := service.SearchSubjects(ctx, "ana", "Ana"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected search to be admin only, got %v", err)
	}
}

func TestListPendingAndBySubscription(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newAdminFixture(t)

	pending, err := service.ListPendingSubjects(ctx, "admin", 1, 1)
	if err != nil {
		t.Fatalf("pending failed: %v", err)
	}
	if pending.TotalCount != 2 || len(pending.Subjects) != 1 || pending.Subjects[0].ID != "ana" {
		t.Fatalf("unexpected pending page %+v", pending)
	}
	next, err := service.ListPendingSubjects(ctx, "admin", 2, 1)
	if err != nil || len(next.Subjects) != 1 || next.Subjects[0].ID != "maria" {
		t.Fatalf("unexpected second pending page %+v (%v)", next, err)
	}

	ecmint, err := service.ListSubjectsBySubscription(ctx, "admin", "ECMINT", 1, 10)
	if err != nil {
		t.Fatalf("by subscription failed: %v", err)
	}
	if ecmint.TotalCount != 1 || len(ecmint.Subjects) != 1 || ecmint.Subjects[0].TotalCorrect != 9 {
		t.Fatalf("unexpected subscription page %+v", ecmint)
	}
	if _, err := service.ListSubjectsBySubscription(ctx, "admin", "", 1, 10); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected empty level rejected, got %v", err)
	}
	if _, err := service.ListPendingSubjects(ctx, "maria", 1, 10); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected pending listing to be admin only, got %v", err)
	}
}

func TestApproveSubject(t *testing.T) {
	ctx := context.Background()
	service, _, publisher := newAdminFixture(t)

	if _, err := service.ApproveSubject(ctx, "maria", "ana"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected approval to be admin only, got %v", err)
	}
	profile, err := service.ApproveSubject(ctx, "admin", "ana")
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if profile.Status != app.StatusApproved {
		t.Fatalf("expected approved, got %q", profile.Status)
	}
	if got := <-publisher.events; got != app.EventSubjectApproved {
		t.Fatalf("expected %s event, got %s", app.EventSubjectApproved, got)
	}
	pending, _ := service.ListPendingSubjects(ctx, "admin", 1, 10)
	if pending.TotalCount != 1 {
		t.Fatalf("expected one pending subject left, got %+v", pending)
	}
	if _, err := service.ApproveSubject(ctx, "admin", "ghost"); !errors.Is(err, domain.ErrSubjectNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateSubscription(t *testing.T) {
	ctx := context.Background()
	service, _, publisher := newAdminFixture(t)

	profile, err := service.UpdateSubscription(ctx, "admin", "ana", "ECMINT")
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if profile.SubscriptionLevel != "ECMINT" || profile.SubscriptionExpiresAt != nil {
		t.Fatalf("expected ECMINT without expiry, got %+v", profile)
	}
	if got := <-publisher.events; got != app.EventSubscriptionUpdated {
		t.Fatalf("expected %s event, got %s", app.EventSubscriptionUpdated, got)
	}

	before := time.Now()
	profile, err = service.UpdateSubscription(ctx, "admin", "andrei", app.SubscriptionTrial)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if profile.SubscriptionExpiresAt == nil || profile.SubscriptionExpiresAt.Before(before.AddDate(0, 0, 29)) {
		t.Fatalf("expected a fresh trial window, got %v", profile.SubscriptionExpiresAt)
	}
	if profile.TotalAnswered != 12 {
		t.Fatalf("expected resolved totals on the returned profile, got %+v", profile)
	}

	if _, err := service.UpdateSubscription(ctx, "admin", "ana", " "); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected empty level rejected, got %v", err)
	}
	if _, err := service.UpdateSubscription(ctx, "ana", "ana", "Owner"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected subscription change to be admin only, got %v", err)
	}
}
