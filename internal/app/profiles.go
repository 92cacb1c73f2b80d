package app

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"quiz-progress-service/internal/config"
	"quiz-progress-service/internal/docstore"
	"quiz-progress-service/internal/domain"
)

// Subscription levels and statuses assigned on first sync.
const (
	SubscriptionOwner     = "Owner"
	SubscriptionEvaluator = "Evaluator"
	SubscriptionTrial     = "Trial"

	StatusPending  = "pending"
	StatusApproved = "approved"

	defaultTrialDays = 30
)

// ProfileService maintains the subject root records.
type ProfileService struct {
	store        docstore.Store
	publisher    EventPublisher
	adminEmails  map[string]struct{}
	testerEmails map[string]struct{}
	trialDays    int
	now          func() time.Time
}

func NewProfileService(store docstore.Store, publisher EventPublisher, adminEmails, testerEmails []string, trialDays int) *ProfileService {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	if trialDays <= 0 {
		trialDays = defaultTrialDays
	}
	return &ProfileService{
		store:        store,
		publisher:    publisher,
		adminEmails:  emailSet(adminEmails),
		testerEmails: emailSet(testerEmails),
		trialDays:    trialDays,
		now:          time.Now,
	}
}

// SyncProfile creates the root record on first sign-in and refreshes the
// identity fields afterwards. An existing role or status is never replaced,
// and the denormalized totals are only initialised on creation.
func (s *ProfileService) SyncProfile(ctx context.Context, in domain.ProfileInput) (domain.Profile, error) {
	log := config.WithContext(ctx).WithField("subject_id", in.UID)
	if in.UID == "" || in.Email == "" {
		return domain.Profile{}, invalidArg("uid and email are required")
	}

	now := s.now()
	role, status, level := domain.RoleUser, StatusPending, SubscriptionTrial
	var expiresAt any
	switch email := strings.ToLower(in.Email); {
	case s.isAdminEmail(email):
		role, status, level = domain.RoleAdmin, StatusApproved, SubscriptionOwner
	case s.isTesterEmail(email):
		role, status, level = domain.RoleTester, StatusApproved, SubscriptionEvaluator
	default:
		expiresAt = docstore.FormatTime(now.AddDate(0, 0, s.trialDays))
	}

	existing, exists, err := s.store.Get(ctx, usersCollection, in.UID)
	if err != nil {
		return domain.Profile{}, storeErr("sync profile", err)
	}

	set := docstore.Fields{
		"uid":                   in.UID,
		"firstName":             in.FirstName,
		"lastName":              in.LastName,
		"displayName":           strings.TrimSpace(in.FirstName + " " + in.LastName),
		"email":                 in.Email,
		"status":                status,
		"role":                  role,
		"country":               in.Country,
		"institution":           in.Institution,
		"subscriptionLevel":     level,
		"subscriptionExpiresAt": expiresAt,
		"lastUpdatedAt":         docstore.FormatTime(now),
	}
	if exists {
		if current, _ := existing.Fields["role"].(string); current != "" {
			set["role"] = current
		}
		if current, _ := existing.Fields["status"].(string); current != "" {
			set["status"] = current
		}
	} else {
		set["createdAt"] = docstore.FormatTime(now)
		set["totalQuestionsAnsweredAllTime"] = int64(0)
		set["totalCorrectAnswersAllTime"] = int64(0)
	}

	if err := s.store.UpsertMerge(ctx, usersCollection, in.UID, docstore.Patch{Set: set}); err != nil {
		log.WithError(err).Error("profile sync failed")
		return domain.Profile{}, storeErr("sync profile", err)
	}

	profile, err := s.GetProfile(ctx, in.UID)
	if err != nil {
		return domain.Profile{}, err
	}
	log.WithFields(logrus.Fields{"created": !exists, "role": profile.Role}).Info("profile synced")
	publish(ctx, s.publisher, EventProfileSynced, map[string]any{"userId": in.UID, "created": !exists})
	return profile, nil
}

// GetProfile reads the subject root record.
func (s *ProfileService) GetProfile(ctx context.Context, subjectID string) (domain.Profile, error) {
	if subjectID == "" {
		return domain.Profile{}, invalidArg("empty subject id")
	}
	doc, ok, err := s.store.Get(ctx, usersCollection, subjectID)
	if err != nil {
		return domain.Profile{}, storeErr("read profile", err)
	}
	if !ok {
		return domain.Profile{}, domain.ErrSubjectNotFound
	}
	var profile domain.Profile
	if err := docstore.Decode(doc.Fields, &profile); err != nil {
		return domain.Profile{}, err
	}
	profile.UID = doc.ID
	return profile, nil
}

// ApproveSubject marks a pending subject as approved.
func (s *ProfileService) ApproveSubject(ctx context.Context, subjectID string) (domain.Profile, error) {
	if _, err := s.GetProfile(ctx, subjectID); err != nil {
		return domain.Profile{}, err
	}
	err := s.store.UpsertMerge(ctx, usersCollection, subjectID, docstore.Patch{Set: docstore.Fields{
		"status":        StatusApproved,
		"lastUpdatedAt": docstore.FormatTime(s.now()),
	}})
	if err != nil {
		config.WithContext(ctx).WithError(err).WithField("subject_id", subjectID).Error("approve failed")
		return domain.Profile{}, storeErr("approve subject", err)
	}
	config.WithContext(ctx).WithField("subject_id", subjectID).Info("subject approved")
	publish(ctx, s.publisher, EventSubjectApproved, map[string]any{"userId": subjectID})
	return s.GetProfile(ctx, subjectID)
}

// UpdateSubscription moves a subject to another subscription level. A trial
// restarts its expiry window; every other level has no expiry.
func (s *ProfileService) UpdateSubscription(ctx context.Context, subjectID, level string) (domain.Profile, error) {
	level = strings.TrimSpace(level)
	if level == "" {
		return domain.Profile{}, invalidArg("empty subscription level")
	}
	if _, err := s.GetProfile(ctx, subjectID); err != nil {
		return domain.Profile{}, err
	}
	now := s.now()
	var expiresAt any
	if level == SubscriptionTrial {
		expiresAt = docstore.FormatTime(now.AddDate(0, 0, s.trialDays))
	}
	err := s.store.UpsertMerge(ctx, usersCollection, subjectID, docstore.Patch{Set: docstore.Fields{
		"subscriptionLevel":     level,
		"subscriptionExpiresAt": expiresAt,
		"lastUpdatedAt":         docstore.FormatTime(now),
	}})
	log := config.WithContext(ctx).WithFields(logrus.Fields{"subject_id": subjectID, "level": level})
	if err != nil {
		log.WithError(err).Error("subscription update failed")
		return domain.Profile{}, storeErr("update subscription", err)
	}
	log.Info("subscription updated")
	publish(ctx, s.publisher, EventSubscriptionUpdated, map[string]any{"userId": subjectID, "subscriptionLevel": level})
	return s.GetProfile(ctx, subjectID)
}

func (s *ProfileService) isAdminEmail(email string) bool {
	_, ok := s.adminEmails[email]
	return ok
}

func (s *ProfileService) isTesterEmail(email string) bool {
	_, ok := s.testerEmails[email]
	return ok
}

func emailSet(emails []string) map[string]struct{} {
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			set[e] = struct{}{}
		}
	}
	return set
}
