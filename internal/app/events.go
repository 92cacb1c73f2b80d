package app

import (
	"context"

	"github.com/sirupsen/logrus"
	"quiz-progress-service/internal/config"
)

// Event types published after successful writes.
const (
	EventAttemptRecorded = "attempt.recorded"
	EventSessionSaved    = "session.saved"
	EventStatisticsReset = "statistics.reset"
	EventSubjectDeleted  = "subject.deleted"
	EventProfileSynced   = "profile.synced"

	EventSubjectApproved     = "subject.approved"
	EventSubscriptionUpdated = "subscription.updated"
)

// EventPublisher fans domain events out to other services (e.g. RabbitMQ).
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

// NoopPublisher discards events.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, any) error { return nil }

// publish is best-effort: a failed publish never fails the write it reports.
func publish(ctx context.Context, p EventPublisher, eventType string, payload any) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, eventType, payload); err != nil {
		config.WithContext(ctx).WithError(err).WithFields(logrus.Fields{
			"event": eventType,
		}).Warn("event publish failed")
	}
}
