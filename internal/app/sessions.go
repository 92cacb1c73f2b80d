package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"quiz-progress-service/internal/config"
	"quiz-progress-service/internal/docstore"
	"quiz-progress-service/internal/domain"
)

const defaultSessionListLimit = 50

// SessionRecorder appends completed quiz sessions. Records are never
// updated; they disappear only with a subject reset or deletion.
type SessionRecorder struct {
	store     docstore.Store
	publisher EventPublisher
	now       func() time.Time
}

func NewSessionRecorder(store docstore.Store, publisher EventPublisher) *SessionRecorder {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	return &SessionRecorder{store: store, publisher: publisher, now: time.Now}
}

// SaveSession stores the caller-computed session summary and returns its id.
// The score is stored as given, not derived.
func (r *SessionRecorder) SaveSession(ctx context.Context, subjectID string, record domain.SessionRecord) (string, error) {
	log := config.WithContext(ctx).WithField("subject_id", subjectID)
	if err := validateSession(subjectID, record); err != nil {
		log.WithError(err).Warn("session rejected")
		return "", err
	}

	record.UserID = subjectID
	if record.QuestionsAttempted == nil {
		record.QuestionsAttempted = []domain.AttemptedQuestion{}
	}
	fields, err := docstore.Encode(record)
	if err != nil {
		return "", err
	}
	fields["quizDate"] = docstore.FormatTime(r.now())

	id, err := r.store.AppendNew(ctx, subjectPath(subjectID, sessionsCollection), fields)
	if err != nil {
		log.WithError(err).Error("session save failed")
		return "", storeErr("save session", err)
	}

	log.WithFields(logrus.Fields{"session_id": id, "score": record.Score}).Info("session saved")
	publish(ctx, r.publisher, EventSessionSaved, map[string]any{
		"userId":    subjectID,
		"sessionId": id,
		"score":     record.Score,
	})
	return id, nil
}

// ListSessions returns the subject's sessions, newest first.
func (r *SessionRecorder) ListSessions(ctx context.Context, subjectID string, limit int) ([]domain.SessionRecord, error) {
	if subjectID == "" {
		return nil, invalidArg("empty subject id")
	}
	if limit <= 0 {
		limit = defaultSessionListLimit
	}
	docs, err := r.store.Query(ctx, subjectPath(subjectID, sessionsCollection), docstore.Query{
		OrderBy: "quizDate",
		Desc:    true,
		Limit:   limit,
	})
	if err != nil {
		return nil, storeErr("list sessions", err)
	}
	sessions := make([]domain.SessionRecord, 0, len(docs))
	for _, doc := range docs {
		var rec domain.SessionRecord
		if err := docstore.Decode(doc.Fields, &rec); err != nil {
			return nil, err
		}
		rec.ID = doc.ID
		sessions = append(sessions, rec)
	}
	return sessions, nil
}

func validateSession(subjectID string, record domain.SessionRecord) error {
	switch {
	case subjectID == "":
		return invalidArg("empty subject id")
	case record.Score < 0 || record.Score > 100:
		return invalidArg("score must be between 0 and 100")
	case record.CorrectAnswers < 0 || record.IncorrectAnswers < 0 || record.ActualNumberOfQuestions < 0:
		return invalidArg("answer counts must not be negative")
	}
	return nil
}
