package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-progress-service/internal/app"
	"quiz-progress-service/internal/domain"
	"quiz-progress-service/internal/infra/memory"
)

func TestSaveSessionStoresCallerScore(t *testing.T) {
	ctx := context.Background()
	recorder := app.NewSessionRecorder(memory.NewStore(), nil)

	id, err := recorder.SaveSession(ctx, "u3", domain.SessionRecord{
		QuizConfig:              map[string]any{"difficulty": "hard", "numberOfQuestions": 10, "questionType": "single", "language": "ro"},
		Score:                   70,
		CorrectAnswers:          7,
		IncorrectAnswers:        3,
		ActualNumberOfQuestions: 10,
		QuestionsAttempted: []domain.AttemptedQuestion{
			{QuestionID: "q1", SelectedOptionIndex: 2, AnsweredCorrectly: true},
		},
	})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if id == "" {
		t.Fatalf("expected generated id")
	}

	sessions, err := recorder.ListSessions(ctx, "u3", 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected one session, got %d", len(sessions))
	}
	got := sessions[0]
	if got.ID != id || got.UserID != "u3" || got.Score != 70 || got.CorrectAnswers != 7 || got.IncorrectAnswers != 3 || got.ActualNumberOfQuestions != 10 {
		t.Fatalf("unexpected session %+v", got)
	}
	if got.QuizConfig["difficulty"] != "hard" || got.QuizConfig["language"] != "ro" || got.QuizConfig["numberOfQuestions"] != float64(10) {
		t.Fatalf("config snapshot not kept as sent: %+v", got.QuizConfig)
	}
	if len(got.QuestionsAttempted) != 1 || !got.QuestionsAttempted[0].AnsweredCorrectly {
		t.Fatalf("nested fields lost: %+v", got)
	}
	if got.QuizDate.IsZero() {
		t.Fatalf("expected server quiz date")
	}
}

func TestSaveSessionValidation(t *testing.T) {
	ctx := context.Background()
	recorder := app.NewSessionRecorder(memory.NewStore(), nil)

	cases := map[string]struct {
		subject string
		record  domain.SessionRecord
	}{
		"empty subject":  {"", domain.SessionRecord{Score: 10}},
		"score too high": {"u1", domain.SessionRecord{Score: 101}},
		"negative count": {"u1", domain.SessionRecord{CorrectAnswers: -1}},
	}
	for name, tc := range cases {
		if _, err := recorder.SaveSession(ctx, tc.subject, tc.record); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("%s: expected invalid argument, got %v", name, err)
		}
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	recorder := app.NewSessionRecorder(memory.NewStore(), nil)

	if _, err := recorder.SaveSession(ctx, "u1", domain.SessionRecord{Score: 10}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	latest, err := recorder.SaveSession(ctx, "u1", domain.SessionRecord{Score: 20})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	sessions, err := recorder.ListSessions(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != latest || sessions[0].Score != 20 {
		t.Fatalf("expected latest session first, got %+v", sessions)
	}

	limited, _ := recorder.ListSessions(ctx, "u1", 1)
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}
