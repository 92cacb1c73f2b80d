package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"quiz-progress-service/internal/config"
)

const attemptWriteTimeout = 10 * time.Second

// Attempt is one answer waiting to be recorded.
type Attempt struct {
	SubjectID  string
	QuestionID string
	Correct    bool
}

type attemptSink interface {
	RecordAttempt(ctx context.Context, subjectID, questionID string, correct bool) error
}

type queuedAttempt struct {
	ctx     context.Context
	attempt Attempt
}

// AttemptDispatcher records attempts off the caller's path. Dispatch never
// blocks: when the queue is full the attempt is dropped and logged.
type AttemptDispatcher struct {
	sink    attemptSink
	queue   chan queuedAttempt
	group   errgroup.Group
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

func NewAttemptDispatcher(sink attemptSink, queueSize, workers int) *AttemptDispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if workers <= 0 {
		workers = 1
	}
	d := &AttemptDispatcher{
		sink:  sink,
		queue: make(chan queuedAttempt, queueSize),
	}
	for i := 0; i < workers; i++ {
		d.group.Go(d.work)
	}
	return d
}

// Dispatch queues the attempt and reports whether it was accepted. The
// request context only contributes log fields; cancellation is ignored.
func (d *AttemptDispatcher) Dispatch(ctx context.Context, attempt Attempt) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- queuedAttempt{ctx: context.WithoutCancel(ctx), attempt: attempt}:
		return true
	default:
		d.dropped.Add(1)
		config.WithContext(ctx).WithFields(logrus.Fields{
			"subject_id":  attempt.SubjectID,
			"question_id": attempt.QuestionID,
		}).Warn("attempt queue full, attempt dropped")
		return false
	}
}

// Dropped counts attempts rejected because the queue was full.
func (d *AttemptDispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Close stops accepting attempts, drains the queue and waits for workers.
func (d *AttemptDispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	return d.group.Wait()
}

func (d *AttemptDispatcher) work() error {
	for item := range d.queue {
		ctx, cancel := context.WithTimeout(item.ctx, attemptWriteTimeout)
		a := item.attempt
		if err := d.sink.RecordAttempt(ctx, a.SubjectID, a.QuestionID, a.Correct); err != nil {
			config.WithContext(ctx).WithError(err).WithFields(logrus.Fields{
				"subject_id":  a.SubjectID,
				"question_id": a.QuestionID,
			}).Warn("background attempt recording failed")
		}
		cancel()
	}
	return nil
}
