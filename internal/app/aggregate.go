package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"quiz-progress-service/internal/config"
	"quiz-progress-service/internal/docstore"
	"quiz-progress-service/internal/domain"
)

const (
	listFanOut    = 8
	minSearchTerm = 3
	// prefixCeiling sorts after any character a name is likely to contain,
	// turning a range query into a prefix match.
	prefixCeiling = "\uf8ff"
)

var searchFields = []string{"displayName", "firstName", "lastName"}

// AggregateReader serves subject totals to every display surface.
type AggregateReader struct {
	counter *ShardedCounter
	store   docstore.Store
	sf      singleflight.Group
}

func NewAggregateReader(store docstore.Store, counter *ShardedCounter) *AggregateReader {
	return &AggregateReader{counter: counter, store: store}
}

// GetStats sums the subject's shards, coalescing concurrent reads of the
// same subject. Read failures yield zeros. The shared read is detached from
// the caller's cancellation since other callers wait on its result.
func (r *AggregateReader) GetStats(ctx context.Context, subjectID string) domain.Totals {
	if totals, ok := r.counter.cache.Get(ctx, subjectID); ok {
		return totals
	}
	result, _, _ := r.sf.Do(subjectID, func() (interface{}, error) {
		sctx := context.WithoutCancel(ctx)
		gen := r.counter.generation(subjectID)
		totals, err := r.counter.TrySum(sctx, subjectID)
		if err != nil {
			config.WithContext(sctx).WithError(err).WithField("subject_id", subjectID).Error("aggregate stats unavailable")
			return domain.Totals{}, nil
		}
		if !r.counter.putIfCurrent(sctx, subjectID, gen, totals) {
			config.WithContext(sctx).WithField("subject_id", subjectID).Debug("totals changed during read, not cached")
		}
		return totals, nil
	})
	return result.(domain.Totals)
}

// ResolveTotals prefers the shard aggregate and falls back, field by field,
// to the last known value denormalized on the profile.
func ResolveTotals(aggregate domain.Totals, profile domain.Profile) domain.Totals {
	out := aggregate
	if out.Answered == 0 {
		out.Answered = profile.TotalAnswered
	}
	if out.Correct == 0 {
		out.Correct = profile.TotalCorrect
	}
	return out
}

// ListSubjects returns one page (1-based) of profiles ordered by the
// denormalized answered total, each with resolved totals.
func (r *AggregateReader) ListSubjects(ctx context.Context, page, pageSize int) (domain.SubjectPage, error) {
	return r.listPage(ctx, nil, docstore.Query{OrderBy: "totalQuestionsAnsweredAllTime", Desc: true}, page, pageSize)
}

// ListBySubscription pages through the profiles on one subscription level.
func (r *AggregateReader) ListBySubscription(ctx context.Context, level string, page, pageSize int) (domain.SubjectPage, error) {
	if level == "" {
		return domain.SubjectPage{}, invalidArg("empty subscription level")
	}
	filters := []docstore.Filter{{Field: "subscriptionLevel", Op: docstore.Eq, Value: level}}
	return r.listPage(ctx, filters, docstore.Query{}, page, pageSize)
}

// ListPending pages through the profiles still waiting for approval.
func (r *AggregateReader) ListPending(ctx context.Context, page, pageSize int) (domain.SubjectPage, error) {
	filters := []docstore.Filter{{Field: "status", Op: docstore.Eq, Value: StatusPending}}
	return r.listPage(ctx, filters, docstore.Query{}, page, pageSize)
}

// SearchSubjects matches term as a prefix of the display, first or last
// name. Hits are merged by id and ordered by display name.
func (r *AggregateReader) SearchSubjects(ctx context.Context, term string) ([]domain.SubjectSummary, error) {
	term = strings.TrimSpace(term)
	if utf8.RuneCountInString(term) < minSearchTerm {
		return nil, invalidArg(fmt.Sprintf("search term needs at least %d characters", minSearchTerm))
	}

	hits := make([][]docstore.Document, len(searchFields))
	g, gctx := errgroup.WithContext(ctx)
	for i, field := range searchFields {
		i, field := i, field
		g.Go(func() error {
			docs, err := r.store.Query(gctx, usersCollection, docstore.Query{Filters: []docstore.Filter{
				{Field: field, Op: docstore.Gte, Value: term},
				{Field: field, Op: docstore.Lte, Value: term + prefixCeiling},
			}})
			if err != nil {
				return storeErr("search subjects", err)
			}
			hits[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byID := make(map[string]docstore.Document)
	for _, docs := range hits {
		for _, doc := range docs {
			byID[doc.ID] = doc
		}
	}
	docs := make([]docstore.Document, 0, len(byID))
	for _, doc := range byID {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		a, _ := docs[i].Fields["displayName"].(string)
		b, _ := docs[j].Fields["displayName"].(string)
		if a != b {
			return a < b
		}
		return docs[i].ID < docs[j].ID
	})
	return r.summarize(ctx, docs)
}

func (r *AggregateReader) listPage(ctx context.Context, filters []docstore.Filter, q docstore.Query, page, pageSize int) (domain.SubjectPage, error) {
	if page < 1 || pageSize < 1 {
		return domain.SubjectPage{}, invalidArg("page and page size must be positive")
	}
	total, err := r.store.Count(ctx, usersCollection, filters)
	if err != nil {
		return domain.SubjectPage{}, storeErr("count subjects", err)
	}
	q.Filters = filters
	q.Offset = (page - 1) * pageSize
	q.Limit = pageSize
	docs, err := r.store.Query(ctx, usersCollection, q)
	if err != nil {
		return domain.SubjectPage{}, storeErr("list subjects", err)
	}
	rows, err := r.summarize(ctx, docs)
	if err != nil {
		return domain.SubjectPage{}, err
	}
	return domain.SubjectPage{Subjects: rows, TotalCount: total}, nil
}

// summarize builds one row per profile document, resolving totals
// concurrently.
func (r *AggregateReader) summarize(ctx context.Context, docs []docstore.Document) ([]domain.SubjectSummary, error) {
	rows := make([]domain.SubjectSummary, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listFanOut)
	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			var profile domain.Profile
			if err := docstore.Decode(doc.Fields, &profile); err != nil {
				return err
			}
			totals := ResolveTotals(r.GetStats(gctx, doc.ID), profile)
			rows[i] = domain.SubjectSummary{
				ID:                doc.ID,
				Email:             profile.Email,
				DisplayName:       valueOr(profile.DisplayName, "(No name set)"),
				Status:            valueOr(profile.Status, "unknown"),
				Role:              valueOr(profile.Role, domain.RoleUser),
				SubscriptionLevel: valueOr(profile.SubscriptionLevel, "free"),
				TotalAnswered:     totals.Answered,
				TotalCorrect:      totals.Correct,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
