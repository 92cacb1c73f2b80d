package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"quiz-progress-service/internal/config"
	"quiz-progress-service/internal/docstore"
	"quiz-progress-service/internal/domain"
)

// Authorizer decides whether callerID may run bulk operations on subjectID.
type Authorizer interface {
	IsAuthorized(ctx context.Context, callerID, subjectID string) (bool, error)
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, callerID, subjectID string) (bool, error)

func (f AuthorizerFunc) IsAuthorized(ctx context.Context, callerID, subjectID string) (bool, error) {
	return f(ctx, callerID, subjectID)
}

// ProfileAuthorizer allows a subject to act on itself and admins to act on anyone.
type ProfileAuthorizer struct {
	store docstore.Store
}

func NewProfileAuthorizer(store docstore.Store) *ProfileAuthorizer {
	return &ProfileAuthorizer{store: store}
}

func (a *ProfileAuthorizer) IsAuthorized(ctx context.Context, callerID, subjectID string) (bool, error) {
	if callerID == "" {
		return false, nil
	}
	if callerID == subjectID {
		return true, nil
	}
	return a.IsAdmin(ctx, callerID)
}

// IsAdmin reports whether the caller's profile carries the admin role.
func (a *ProfileAuthorizer) IsAdmin(ctx context.Context, callerID string) (bool, error) {
	if callerID == "" {
		return false, nil
	}
	doc, ok, err := a.store.Get(ctx, usersCollection, callerID)
	if err != nil {
		return false, storeErr("verify admin role", err)
	}
	return ok && doc.Fields["role"] == domain.RoleAdmin, nil
}

// Lifecycle removes a subject's statistics in bounded batches.
type Lifecycle struct {
	store     docstore.Store
	authz     Authorizer
	counter   *ShardedCounter
	publisher EventPublisher
	batchSize int
	now       func() time.Time
}

func NewLifecycle(store docstore.Store, authz Authorizer, counter *ShardedCounter, publisher EventPublisher, batchSize int) *Lifecycle {
	if batchSize <= 0 || batchSize > docstore.MaxBatchSize {
		batchSize = docstore.MaxBatchSize
	}
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	return &Lifecycle{
		store:     store,
		authz:     authz,
		counter:   counter,
		publisher: publisher,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// ResetStatistics removes the subject's sessions, question states and shards
// and zeroes the denormalized totals on its profile. The profile is kept.
// It returns the number of records deleted, also when it fails part way.
func (l *Lifecycle) ResetStatistics(ctx context.Context, callerID, subjectID string) (int, error) {
	log := config.WithContext(ctx).WithFields(logrus.Fields{"subject_id": subjectID, "caller_id": callerID})
	if err := l.authorize(ctx, callerID, subjectID); err != nil {
		log.WithError(err).Warn("statistics reset refused")
		return 0, err
	}

	_, exists, err := l.store.Get(ctx, usersCollection, subjectID)
	if err != nil {
		return 0, storeErr("reset statistics", err)
	}
	if exists {
		err := l.store.UpsertMerge(ctx, usersCollection, subjectID, docstore.Patch{Set: docstore.Fields{
			"totalQuestionsAnsweredAllTime": int64(0),
			"totalCorrectAnswersAllTime":    int64(0),
			"lastUpdatedAt":                 docstore.FormatTime(l.now()),
		}})
		if err != nil {
			return 0, storeErr("reset statistics", err)
		}
	}

	deleted, err := l.purge(ctx, subjectID)
	if err != nil {
		log.WithError(err).WithField("deleted", deleted).Error("statistics reset aborted")
		return deleted, err
	}

	log.WithField("deleted", deleted).Info("statistics reset")
	publish(ctx, l.publisher, EventStatisticsReset, map[string]any{"userId": subjectID, "resetCount": deleted})
	return deleted, nil
}

// DeleteAllData removes every statistics record and then the profile itself.
func (l *Lifecycle) DeleteAllData(ctx context.Context, callerID, subjectID string) (int, error) {
	log := config.WithContext(ctx).WithFields(logrus.Fields{"subject_id": subjectID, "caller_id": callerID})
	if err := l.authorize(ctx, callerID, subjectID); err != nil {
		log.WithError(err).Warn("subject deletion refused")
		return 0, err
	}

	deleted, err := l.purge(ctx, subjectID)
	if err != nil {
		log.WithError(err).WithField("deleted", deleted).Error("subject deletion aborted")
		return deleted, err
	}

	_, exists, err := l.store.Get(ctx, usersCollection, subjectID)
	if err != nil {
		return deleted, storeErr("delete subject", err)
	}
	if exists {
		if err := l.store.DeleteBatch(ctx, usersCollection, []string{subjectID}); err != nil {
			return deleted, storeErr("delete subject", err)
		}
		deleted++
	}

	log.WithField("deleted", deleted).Info("subject deleted")
	publish(ctx, l.publisher, EventSubjectDeleted, map[string]any{"userId": subjectID, "deletedCount": deleted})
	return deleted, nil
}

func (l *Lifecycle) authorize(ctx context.Context, callerID, subjectID string) error {
	if subjectID == "" {
		return invalidArg("empty subject id")
	}
	ok, err := l.authz.IsAuthorized(ctx, callerID, subjectID)
	if err != nil {
		return wrapAuthErr(err)
	}
	if !ok {
		return domain.ErrUnauthorized
	}
	return nil
}

// purge deletes the subject collections batch by batch. The first failing
// batch stops the run; committed batches stay deleted.
func (l *Lifecycle) purge(ctx context.Context, subjectID string) (int, error) {
	defer l.counter.invalidate(ctx, subjectID)
	deleted := 0
	for _, collection := range subjectCollections {
		path := subjectPath(subjectID, collection)
		for {
			docs, err := l.store.Query(ctx, path, docstore.Query{Limit: l.batchSize})
			if err != nil {
				return deleted, storeErr("list "+collection, err)
			}
			if len(docs) == 0 {
				break
			}
			ids := make([]string, len(docs))
			for i, doc := range docs {
				ids[i] = doc.ID
			}
			if err := l.store.DeleteBatch(ctx, path, ids); err != nil {
				return deleted, storeErr("delete "+collection, err)
			}
			deleted += len(ids)
			if len(docs) < l.batchSize {
				break
			}
		}
	}
	return deleted, nil
}

// AllowAll authorizes every caller. Operator tooling uses it.
type AllowAll struct{}

func (AllowAll) IsAuthorized(context.Context, string, string) (bool, error) { return true, nil }

func (AllowAll) IsAdmin(context.Context, string) (bool, error) { return true, nil }
