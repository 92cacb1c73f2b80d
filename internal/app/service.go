package app

import (
	"context"
	"errors"

	"quiz-progress-service/internal/docstore"
	"quiz-progress-service/internal/domain"
)

// AdminChecker reports whether a caller holds the admin role.
type AdminChecker interface {
	IsAdmin(ctx context.Context, callerID string) (bool, error)
}

// Options configures a ProgressService. Zero values select the defaults.
type Options struct {
	Shards          int
	BatchSize       int
	Cache           TotalsCache
	Publisher       EventPublisher
	Authorizer      Authorizer
	DispatchQueue   int
	DispatchWorkers int
	AdminEmails     []string
	TesterEmails    []string
	TrialDays       int
}

// ProgressService is the entry point used by the transports. It checks the
// caller against the subject before delegating to the components.
type ProgressService struct {
	counter    *ShardedCounter
	attempts   *AttemptRecorder
	aggregates *AggregateReader
	sessions   *SessionRecorder
	lifecycle  *Lifecycle
	profiles   *ProfileService
	dispatcher *AttemptDispatcher
	feed       *StatsFeed
	authz      Authorizer
	admins     AdminChecker
}

func NewProgressService(store docstore.Store, opts Options) *ProgressService {
	publisher := opts.Publisher
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	profileAuthz := NewProfileAuthorizer(store)
	authz := opts.Authorizer
	if authz == nil {
		authz = profileAuthz
	}
	var admins AdminChecker = profileAuthz
	if checker, ok := authz.(AdminChecker); ok {
		admins = checker
	}

	counter := NewShardedCounter(store, opts.Shards, opts.Cache)
	s := &ProgressService{
		counter:    counter,
		attempts:   NewAttemptRecorder(store, counter, publisher),
		aggregates: NewAggregateReader(store, counter),
		sessions:   NewSessionRecorder(store, publisher),
		lifecycle:  NewLifecycle(store, authz, counter, publisher, opts.BatchSize),
		profiles:   NewProfileService(store, publisher, opts.AdminEmails, opts.TesterEmails, opts.TrialDays),
		feed:       NewStatsFeed(),
		authz:      authz,
		admins:     admins,
	}
	s.dispatcher = NewAttemptDispatcher(attemptSinkFunc(s.recordAndNotify), opts.DispatchQueue, opts.DispatchWorkers)
	return s
}

// Counter exposes the sharded counter for operator tooling.
func (s *ProgressService) Counter() *ShardedCounter {
	return s.counter
}

// Feed exposes the stats feed the study stream subscribes to.
func (s *ProgressService) Feed() *StatsFeed {
	return s.feed
}

// SyncProfile creates or refreshes the caller's own profile.
func (s *ProgressService) SyncProfile(ctx context.Context, callerID string, in domain.ProfileInput) (domain.Profile, error) {
	if in.UID == "" {
		in.UID = callerID
	}
	if callerID == "" || in.UID != callerID {
		return domain.Profile{}, domain.ErrUnauthorized
	}
	profile, err := s.profiles.SyncProfile(ctx, in)
	if err != nil {
		return domain.Profile{}, err
	}
	return s.withTotals(ctx, profile), nil
}

// Profile returns a subject's root record with its totals resolved against
// the shard aggregate.
func (s *ProgressService) Profile(ctx context.Context, callerID, subjectID string) (domain.Profile, error) {
	if err := s.authorize(ctx, callerID, subjectID); err != nil {
		return domain.Profile{}, err
	}
	profile, err := s.profiles.GetProfile(ctx, subjectID)
	if err != nil {
		return domain.Profile{}, err
	}
	return s.withTotals(ctx, profile), nil
}

// RecordAttempt records an answer synchronously.
func (s *ProgressService) RecordAttempt(ctx context.Context, callerID string, attempt Attempt) error {
	if err := s.authorize(ctx, callerID, attempt.SubjectID); err != nil {
		return err
	}
	return s.recordAndNotify(ctx, attempt.SubjectID, attempt.QuestionID, attempt.Correct)
}

// SubmitAttempt queues an answer for background recording. It reports
// false when the queue was full and the attempt was dropped.
func (s *ProgressService) SubmitAttempt(ctx context.Context, callerID string, attempt Attempt) (bool, error) {
	if attempt.SubjectID == "" || attempt.QuestionID == "" {
		return false, invalidArg("subject id and question id are required")
	}
	if err := s.authorize(ctx, callerID, attempt.SubjectID); err != nil {
		return false, err
	}
	return s.dispatcher.Dispatch(ctx, attempt), nil
}

// Stats returns the subject's aggregate totals.
func (s *ProgressService) Stats(ctx context.Context, callerID, subjectID string) (domain.Totals, error) {
	if err := s.authorize(ctx, callerID, subjectID); err != nil {
		return domain.Totals{}, err
	}
	return s.aggregates.GetStats(ctx, subjectID), nil
}

// QuestionState returns the subject's history on one question.
func (s *ProgressService) QuestionState(ctx context.Context, callerID, subjectID, questionID string) (domain.QuestionState, bool, error) {
	if err := s.authorize(ctx, callerID, subjectID); err != nil {
		return domain.QuestionState{}, false, err
	}
	return s.attempts.QuestionState(ctx, subjectID, questionID)
}

// IncorrectQuestions returns the subject's review queue.
func (s *ProgressService) IncorrectQuestions(ctx context.Context, callerID, subjectID string) ([]string, error) {
	if err := s.authorize(ctx, callerID, subjectID); err != nil {
		return nil, err
	}
	return s.attempts.IncorrectQuestions(ctx, subjectID)
}

func (s *ProgressService) SaveSession(ctx context.Context, callerID, subjectID string, record domain.SessionRecord) (string, error) {
	if err := s.authorize(ctx, callerID, subjectID); err != nil {
		return "", err
	}
	return s.sessions.SaveSession(ctx, subjectID, record)
}

func (s *ProgressService) ListSessions(ctx context.Context, callerID, subjectID string, limit int) ([]domain.SessionRecord, error) {
	if err := s.authorize(ctx, callerID, subjectID); err != nil {
		return nil, err
	}
	return s.sessions.ListSessions(ctx, subjectID, limit)
}

// ListSubjects and the other admin listings are restricted to admins.
func (s *ProgressService) ListSubjects(ctx context.Context, callerID string, page, pageSize int) (domain.SubjectPage, error) {
	if err := s.requireAdmin(ctx, callerID); err != nil {
		return domain.SubjectPage{}, err
	}
	return s.aggregates.ListSubjects(ctx, page, pageSize)
}

func (s *ProgressService) SearchSubjects(ctx context.Context, callerID, term string) ([]domain.SubjectSummary, error) {
	if err := s.requireAdmin(ctx, callerID); err != nil {
		return nil, err
	}
	return s.aggregates.SearchSubjects(ctx, term)
}

func (s *ProgressService) ListSubjectsBySubscription(ctx context.Context, callerID, level string, page, pageSize int) (domain.SubjectPage, error) {
	if err := s.requireAdmin(ctx, callerID); err != nil {
		return domain.SubjectPage{}, err
	}
	return s.aggregates.ListBySubscription(ctx, level, page, pageSize)
}

func (s *ProgressService) ListPendingSubjects(ctx context.Context, callerID string, page, pageSize int) (domain.SubjectPage, error) {
	if err := s.requireAdmin(ctx, callerID); err != nil {
		return domain.SubjectPage{}, err
	}
	return s.aggregates.ListPending(ctx, page, pageSize)
}

// ApproveSubject lets an admin approve a pending subject.
func (s *ProgressService) ApproveSubject(ctx context.Context, callerID, subjectID string) (domain.Profile, error) {
	if err := s.requireAdmin(ctx, callerID); err != nil {
		return domain.Profile{}, err
	}
	profile, err := s.profiles.ApproveSubject(ctx, subjectID)
	if err != nil {
		return domain.Profile{}, err
	}
	return s.withTotals(ctx, profile), nil
}

// UpdateSubscription lets an admin change a subject's subscription level.
func (s *ProgressService) UpdateSubscription(ctx context.Context, callerID, subjectID, level string) (domain.Profile, error) {
	if err := s.requireAdmin(ctx, callerID); err != nil {
		return domain.Profile{}, err
	}
	profile, err := s.profiles.UpdateSubscription(ctx, subjectID, level)
	if err != nil {
		return domain.Profile{}, err
	}
	return s.withTotals(ctx, profile), nil
}

func (s *ProgressService) ResetStatistics(ctx context.Context, callerID, subjectID string) (int, error) {
	return s.lifecycle.ResetStatistics(ctx, callerID, subjectID)
}

func (s *ProgressService) DeleteAllData(ctx context.Context, callerID, subjectID string) (int, error) {
	return s.lifecycle.DeleteAllData(ctx, callerID, subjectID)
}

// Close drains queued attempts.
func (s *ProgressService) Close() error {
	return s.dispatcher.Close()
}

func (s *ProgressService) recordAndNotify(ctx context.Context, subjectID, questionID string, correct bool) error {
	if err := s.attempts.RecordAttempt(ctx, subjectID, questionID, correct); err != nil {
		return err
	}
	if s.feed.Subscribers(subjectID) > 0 {
		s.feed.Publish(StatsUpdate{SubjectID: subjectID, Totals: s.aggregates.GetStats(ctx, subjectID)})
	}
	return nil
}

func (s *ProgressService) authorize(ctx context.Context, callerID, subjectID string) error {
	if subjectID == "" {
		return invalidArg("empty subject id")
	}
	ok, err := s.authz.IsAuthorized(ctx, callerID, subjectID)
	if err != nil {
		return wrapAuthErr(err)
	}
	if !ok {
		return domain.ErrUnauthorized
	}
	return nil
}

func (s *ProgressService) requireAdmin(ctx context.Context, callerID string) error {
	ok, err := s.admins.IsAdmin(ctx, callerID)
	if err != nil {
		return wrapAuthErr(err)
	}
	if !ok {
		return domain.ErrUnauthorized
	}
	return nil
}

// withTotals replaces the denormalized profile totals with the resolved
// aggregate.
func (s *ProgressService) withTotals(ctx context.Context, profile domain.Profile) domain.Profile {
	totals := ResolveTotals(s.aggregates.GetStats(ctx, profile.UID), profile)
	profile.TotalAnswered, profile.TotalCorrect = totals.Answered, totals.Correct
	return profile
}

func wrapAuthErr(err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return storeErr("authorize", err)
}

type attemptSinkFunc func(ctx context.Context, subjectID, questionID string, correct bool) error

func (f attemptSinkFunc) RecordAttempt(ctx context.Context, subjectID, questionID string, correct bool) error {
	return f(ctx, subjectID, questionID, correct)
}
