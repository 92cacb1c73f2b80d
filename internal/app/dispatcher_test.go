package app_test

import (
	"context"
	"sync"
	"testing"

	"quiz-progress-service/internal/app"
)

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	got     []app.Attempt
}

func (s *blockingSink) RecordAttempt(ctx context.Context, subjectID, questionID string, correct bool) error {
	<-s.release
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, app.Attempt{SubjectID: subjectID, QuestionID: questionID, Correct: correct})
	return nil
}

func (s *blockingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := app.NewAttemptDispatcher(sink, 1, 1)

	accepted := 0
	for i := 0; i < 10; i++ {
		if d.Dispatch(context.Background(), app.Attempt{SubjectID: "u1", QuestionID: "q1"}) {
			accepted++
		}
	}
	// One attempt sits in the worker and one in the queue at most.
	if accepted > 2 || accepted < 1 {
		t.Fatalf("expected 1-2 accepted attempts, got %d", accepted)
	}
	if d.Dropped() != int64(10-accepted) {
		t.Fatalf("expected %d dropped, got %d", 10-accepted, d.Dropped())
	}

	close(sink.release)
	if err := d.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if sink.count() != accepted {
		t.Fatalf("expected %d recorded, got %d", accepted, sink.count())
	}
}

func TestDispatcherCloseDrainsQueue(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	close(sink.release)
	d := app.NewAttemptDispatcher(sink, 64, 3)

	for i := 0; i < 50; i++ {
		if !d.Dispatch(context.Background(), app.Attempt{SubjectID: "u1", QuestionID: "q1", Correct: true}) {
			t.Fatalf("attempt %d dropped", i)
		}
	}
	if err := d.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if sink.count() != 50 {
		t.Fatalf("expected 50 recorded, got %d", sink.count())
	}
	if d.Dispatch(context.Background(), app.Attempt{SubjectID: "u1", QuestionID: "q2"}) {
		t.Fatalf("expected dispatch after close to be refused")
	}
}

func TestDispatcherIgnoresCallerCancellation(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := app.NewAttemptDispatcher(sink, 4, 1)

	ctx, cancel := context.WithCancel(context.Background())
	if !d.Dispatch(ctx, app.Attempt{SubjectID: "u1", QuestionID: "q1"}) {
		t.Fatalf("dispatch refused")
	}
	cancel()
	close(sink.release)
	_ = d.Close()
	if sink.count() != 1 {
		t.Fatalf("expected attempt recorded after caller went away, got %d", sink.count())
	}
}
