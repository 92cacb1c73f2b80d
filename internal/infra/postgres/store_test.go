package postgres

import (
	"fmt"
	"strings"
	"testing"

	"quiz-progress-service/internal/docstore"
)

func TestQueryBuilderFilters(t *testing.T) {
	b := newQueryBuilder("users/u1/userQuestions")
	err := b.where([]docstore.Filter{
		{Field: "incorrectCount", Op: docstore.Gt, Value: 0},
		{Field: "lastSeen", Op: docstore.Lte, Value: "2024-01-02"},
	})
	if err != nil {
		t.Fatalf("where: %v", err)
	}

	want := "collection = $1 AND " +
		"jsonb_typeof(data->$2::text) = jsonb_typeof($3::jsonb) AND data->$2::text > $3::jsonb AND " +
		"jsonb_typeof(data->$4::text) = jsonb_typeof($5::jsonb) AND data->$4::text <= $5::jsonb"
	if got := b.conditions(); got != want {
		t.Fatalf("unexpected conditions:\n got %s\nwant %s", got, want)
	}
	if got := fmt.Sprint(b.args); got != `[users/u1/userQuestions incorrectCount 0 lastSeen "2024-01-02"]` {
		t.Fatalf("unexpected args %s", got)
	}
}

func TestQueryBuilderRejectsUnknownOperator(t *testing.T) {
	b := newQueryBuilder("users")
	err := b.where([]docstore.Filter{{Field: "role", Op: docstore.Op("!="), Value: "admin"}})
	if err == nil || !strings.Contains(err.Error(), "unsupported operator") {
		t.Fatalf("expected unsupported operator error, got %v", err)
	}
}
