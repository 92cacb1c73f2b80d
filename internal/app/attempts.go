package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"quiz-progress-service/internal/config"
	"quiz-progress-service/internal/docstore"
	"quiz-progress-service/internal/domain"
)

// AttemptRecorder turns one answer into a question-state upsert plus a
// counter increment. The two writes are not transactional.
type AttemptRecorder struct {
	store     docstore.Store
	counter   *ShardedCounter
	publisher EventPublisher
	now       func() time.Time
}

func NewAttemptRecorder(store docstore.Store, counter *ShardedCounter, publisher EventPublisher) *AttemptRecorder {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	return &AttemptRecorder{
		store:     store,
		counter:   counter,
		publisher: publisher,
		now:       time.Now,
	}
}

// RecordAttempt stores the outcome of one answer. Only the question-state
// write can fail the call; the counter increment is best-effort.
func (r *AttemptRecorder) RecordAttempt(ctx context.Context, subjectID, questionID string, correct bool) error {
	log := config.WithContext(ctx).WithFields(logrus.Fields{
		"subject_id":  subjectID,
		"question_id": questionID,
	})
	if subjectID == "" || questionID == "" {
		return invalidArg("subject id and question id are required")
	}

	var correctInc, incorrectInc int64 = 0, 1
	if correct {
		correctInc, incorrectInc = 1, 0
	}
	err := r.store.UpsertMerge(ctx, subjectPath(subjectID, questionsCollection), questionID, docstore.Patch{
		Set: docstore.Fields{
			"questionId": questionID,
			"lastSeen":   docstore.FormatTime(r.now()),
		},
		Inc: map[string]int64{
			"seenCount":      1,
			"correctCount":   correctInc,
			"incorrectCount": incorrectInc,
		},
	})
	if err != nil {
		log.WithError(err).Error("question state update failed")
		return storeErr("record attempt", err)
	}

	if err := r.counter.Increment(ctx, subjectID, 1, correctInc); err != nil {
		log.WithError(err).Warn("attempt recorded without counter increment")
	}

	publish(ctx, r.publisher, EventAttemptRecorded, map[string]any{
		"userId":     subjectID,
		"questionId": questionID,
		"correct":    correct,
	})
	return nil
}

// QuestionState returns the subject's history on one question.
func (r *AttemptRecorder) QuestionState(ctx context.Context, subjectID, questionID string) (domain.QuestionState, bool, error) {
	if subjectID == "" || questionID == "" {
		return domain.QuestionState{}, false, invalidArg("subject id and question id are required")
	}
	doc, ok, err := r.store.Get(ctx, subjectPath(subjectID, questionsCollection), questionID)
	if err != nil {
		return domain.QuestionState{}, false, storeErr("read question state", err)
	}
	if !ok {
		return domain.QuestionState{}, false, nil
	}
	var state domain.QuestionState
	if err := docstore.Decode(doc.Fields, &state); err != nil {
		return domain.QuestionState{}, false, err
	}
	state.QuestionID = doc.ID
	return state, true, nil
}

// IncorrectQuestions lists the ids of questions the subject ever got wrong,
// most recently seen first. It feeds the review queue.
func (r *AttemptRecorder) IncorrectQuestions(ctx context.Context, subjectID string) ([]string, error) {
	if subjectID == "" {
		return nil, invalidArg("empty subject id")
	}
	docs, err := r.store.Query(ctx, subjectPath(subjectID, questionsCollection), docstore.Query{
		Filters: []docstore.Filter{{Field: "incorrectCount", Op: docstore.Gt, Value: 0}},
		OrderBy: "lastSeen",
		Desc:    true,
	})
	if err != nil {
		return nil, storeErr("list incorrect questions", err)
	}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	return ids, nil
}
