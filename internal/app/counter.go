package app

import (
	"context"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"quiz-progress-service/internal/config"
	"quiz-progress-service/internal/docstore"
	"quiz-progress-service/internal/domain"
)

// DefaultShards is the shard count used when none is configured.
const DefaultShards = 10

// TotalsCache holds recently summed totals. Implementations live in infra.
type TotalsCache interface {
	Get(ctx context.Context, subjectID string) (domain.Totals, bool)
	Put(ctx context.Context, subjectID string, totals domain.Totals)
	Invalidate(ctx context.Context, subjectID string)
}

type noopCache struct{}

func (noopCache) Get(context.Context, string) (domain.Totals, bool) { return domain.Totals{}, false }
func (noopCache) Put(context.Context, string, domain.Totals) {}
func (noopCache) Invalidate(context.Context, string) {}

// ShardedCounter spreads a subject's answered/correct totals over N shard
// documents so concurrent writers rarely touch the same record.
type ShardedCounter struct {
	store  docstore.Store
	shards int
	cache  TotalsCache
	now    func() time.Time
	pick   func(n int) int

	// gens counts invalidations per subject so a sum that raced a write is
	// not cached over it.
	mu   sync.Mutex
	gens map[string]uint64
}

// NewShardedCounter builds a counter over the given number of shards.
// A nil cache disables caching.
func NewShardedCounter(store docstore.Store, shards int, cache TotalsCache) *ShardedCounter {
	if shards <= 0 {
		shards = DefaultShards
	}
	if cache == nil {
		cache = noopCache{}
	}
	return &ShardedCounter{
		store:  store,
		shards: shards,
		cache:  cache,
		now:    time.Now,
		pick:   rand.Intn,
		gens:   make(map[string]uint64),
	}
}

// Shards returns N.
func (c *ShardedCounter) Shards() int {
	return c.shards
}

// Increment adds the deltas to one randomly chosen shard of the subject.
func (c *ShardedCounter) Increment(ctx context.Context, subjectID string, answeredDelta, correctDelta int64) error {
	log := config.WithContext(ctx).WithField("subject_id", subjectID)
	if subjectID == "" {
		err := invalidArg("empty subject id")
		log.WithError(err).Warn("counter increment rejected")
		return err
	}

	shardID := strconv.Itoa(c.pick(c.shards))
	err := c.store.UpsertMerge(ctx, subjectPath(subjectID, shardsCollection), shardID, docstore.Patch{
		Set: docstore.Fields{"lastUpdatedAt": docstore.FormatTime(c.now())},
		Inc: map[string]int64{
			"answeredCount": answeredDelta,
			"correctCount":  correctDelta,
		},
	})
	if err != nil {
		log.WithError(err).WithFields(logrus.Fields{"shard_id": shardID}).Error("counter increment failed")
		return storeErr("increment counter", err)
	}
	c.invalidate(ctx, subjectID)
	return nil
}

func (c *ShardedCounter) generation(subjectID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[subjectID]
}

func (c *ShardedCounter) invalidate(ctx context.Context, subjectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[subjectID]++
	c.cache.Invalidate(ctx, subjectID)
}

// putIfCurrent caches totals only when no write landed since gen was read.
func (c *ShardedCounter) putIfCurrent(ctx context.Context, subjectID string, gen uint64, totals domain.Totals) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[subjectID] != gen {
		return false
	}
	c.cache.Put(ctx, subjectID, totals)
	return true
}

// Sum returns the subject's totals, or zeros when the shards cannot be read.
func (c *ShardedCounter) Sum(ctx context.Context, subjectID string) domain.Totals {
	totals, err := c.TrySum(ctx, subjectID)
	if err != nil {
		config.WithContext(ctx).WithError(err).WithField("subject_id", subjectID).Error("counter sum failed")
		return domain.Totals{}
	}
	return totals
}

// TrySum is Sum with the read error surfaced, for callers that must tell
// "no activity" apart from "stats unavailable".
func (c *ShardedCounter) TrySum(ctx context.Context, subjectID string) (domain.Totals, error) {
	if subjectID == "" {
		return domain.Totals{}, invalidArg("empty subject id")
	}
	// Every shard document is read, including ids >= N left from an earlier
	// shard count, so lowering N never drops history.
	docs, err := c.store.Query(ctx, subjectPath(subjectID, shardsCollection), docstore.Query{})
	if err != nil {
		return domain.Totals{}, storeErr("sum counter", err)
	}
	var totals domain.Totals
	for _, doc := range docs {
		totals.Answered += docstore.Int64(doc.Fields, "answeredCount")
		totals.Correct += docstore.Int64(doc.Fields, "correctCount")
	}
	return totals, nil
}

// ListShards returns every shard document stored for the subject, ordered
// by id. Ids at or above the configured count are included.
func (c *ShardedCounter) ListShards(ctx context.Context, subjectID string) ([]domain.CounterShard, error) {
	if subjectID == "" {
		return nil, invalidArg("empty subject id")
	}
	docs, err := c.store.Query(ctx, subjectPath(subjectID, shardsCollection), docstore.Query{})
	if err != nil {
		return nil, storeErr("list shards", err)
	}
	shards := make([]domain.CounterShard, 0, len(docs))
	for _, doc := range docs {
		var shard domain.CounterShard
		if err := docstore.Decode(doc.Fields, &shard); err != nil {
			return nil, err
		}
		shard.ShardID = doc.ID
		shards = append(shards, shard)
	}
	sort.Slice(shards, func(i, j int) bool {
		return shardLess(shards[i].ShardID, shards[j].ShardID)
	})
	return shards, nil
}

// shardLess orders numeric ids numerically and anything else after them.
func shardLess(a, b string) bool {
	an, aerr := strconv.Atoi(a)
	bn, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		return an < bn
	case aerr == nil:
		return true
	case berr == nil:
		return false
	}
	return a < b
}

// Shard reads a single shard; an absent shard is returned as zeros.
func (c *ShardedCounter) Shard(ctx context.Context, subjectID string, shardID int) (domain.CounterShard, error) {
	id := strconv.Itoa(shardID)
	doc, ok, err := c.store.Get(ctx, subjectPath(subjectID, shardsCollection), id)
	if err != nil {
		return domain.CounterShard{}, storeErr("read shard", err)
	}
	shard := domain.CounterShard{ShardID: id}
	if !ok {
		return shard, nil
	}
	if err := docstore.Decode(doc.Fields, &shard); err != nil {
		return domain.CounterShard{}, err
	}
	return shard, nil
}
