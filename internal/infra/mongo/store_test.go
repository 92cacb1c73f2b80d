package mongo

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"quiz-progress-service/internal/docstore"
)

func TestKindOf(t *testing.T) {
	cases := map[string]string{
		"users":                  "users",
		"users/u1/shards":        "shards",
		"users/u1/quiz_sessions": "quiz_sessions",
		"users/u1/userQuestions": "userQuestions",
	}
	for path, want := range cases {
		if got := kindOf(path); got != want {
			t.Fatalf("kindOf(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestToFilterScopesPath(t *testing.T) {
	filter, err := toFilter("users/u1/userQuestions", []docstore.Filter{
		{Field: "incorrectCount", Op: docstore.Gt, Value: 0},
	})
	if err != nil {
		t.Fatalf("toFilter: %v", err)
	}
	if len(filter) != 2 || filter[0].Key != fieldPath || filter[0].Value != "users/u1/userQuestions" {
		t.Fatalf("expected path scope first, got %v", filter)
	}
	cond, ok := filter[1].Value.(bson.M)
	if !ok || cond["$gt"] != int64(0) {
		t.Fatalf("expected $gt with int64 value, got %#v", filter[1].Value)
	}

	if _, err := toFilter("users", []docstore.Filter{{Field: "role", Op: "!=", Value: "x"}}); err == nil {
		t.Fatalf("expected unsupported operator error")
	}
}

func TestToFilterMergesRangeOnOneField(t *testing.T) {
	filter, err := toFilter("users", []docstore.Filter{
		{Field: "displayName", Op: docstore.Gte, Value: "Ana"},
		{Field: "displayName", Op: docstore.Lte, Value: "Ana\uf8ff"},
		{Field: "status", Op: docstore.Eq, Value: "pending"},
	})
	if err != nil {
		t.Fatalf("toFilter: %v", err)
	}
	if len(filter) != 3 || filter[1].Key != "displayName" || filter[2].Key != "status" {
		t.Fatalf("expected one element per field, got %v", filter)
	}
	cond := filter[1].Value.(bson.M)
	if cond["$gte"] != "Ana" || cond["$lte"] != "Ana\uf8ff" {
		t.Fatalf("expected both bounds on displayName, got %#v", cond)
	}
}

func TestToFieldsNormalizesBSON(t *testing.T) {
	raw := bson.M{
		"_id":        "users/u1/quiz_sessions/s1",
		fieldPath:    "users/u1/quiz_sessions",
		fieldKey:     "s1",
		"score":      int32(70),
		"quizConfig": primitive.D{{Key: "mode", Value: "exam"}},
		"questionsAttempted": primitive.A{
			primitive.M{"questionId": "q1", "selectedOptionIndex": int32(2)},
		},
	}

	fields := toFields(raw)
	if _, ok := fields["_id"]; ok {
		t.Fatalf("expected meta fields stripped, got %v", fields)
	}
	if fields["score"] != int64(70) {
		t.Fatalf("expected int64 score, got %#v", fields["score"])
	}
	if cfg, ok := fields["quizConfig"].(map[string]any); !ok || cfg["mode"] != "exam" {
		t.Fatalf("unexpected quizConfig %#v", fields["quizConfig"])
	}
	attempts, ok := fields["questionsAttempted"].([]any)
	if !ok || len(attempts) != 1 {
		t.Fatalf("unexpected attempts %#v", fields["questionsAttempted"])
	}
	first, ok := attempts[0].(map[string]any)
	if !ok || first["selectedOptionIndex"] != int64(2) {
		t.Fatalf("unexpected nested attempt %#v", attempts[0])
	}
}
