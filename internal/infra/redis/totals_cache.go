package redis

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"quiz-progress-service/internal/config"
	"quiz-progress-service/internal/domain"
)

// TotalsCache shares summed shard totals between instances.
// Stored as: HSET totals:{subjectID} answered {n} correct {n}, with a TTL.
type TotalsCache struct {
	client *redis.Client
	ttl    time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewTotalsCache(client *redis.Client, ttl time.Duration) *TotalsCache {
	return &TotalsCache{
		client: client,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Get treats Redis errors as a miss so reads fall through to the shards.
func (c *TotalsCache) Get(ctx context.Context, subjectID string) (domain.Totals, bool) {
	values, err := c.client.HGetAll(ctx, c.key(subjectID)).Result()
	if err != nil {
		config.WithContext(ctx).WithError(err).WithField("subject_id", subjectID).Debug("totals cache read failed")
		return domain.Totals{}, false
	}
	if len(values) == 0 {
		return domain.Totals{}, false
	}
	answered, errA := strconv.ParseInt(values["answered"], 10, 64)
	correct, errC := strconv.ParseInt(values["correct"], 10, 64)
	if errA != nil || errC != nil {
		return domain.Totals{}, false
	}
	return domain.Totals{Answered: answered, Correct: correct}, true
}

func (c *TotalsCache) Put(ctx context.Context, subjectID string, totals domain.Totals) {
	ttl := c.ttlWithJitter()
	if ttl <= 0 {
		return
	}
	key := c.key(subjectID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "answered", totals.Answered, "correct", totals.Correct)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		config.WithContext(ctx).WithError(err).WithField("subject_id", subjectID).Debug("totals cache write failed")
	}
}

func (c *TotalsCache) Invalidate(ctx context.Context, subjectID string) {
	if err := c.client.Del(ctx, c.key(subjectID)).Err(); err != nil {
		config.WithContext(ctx).WithError(err).WithField("subject_id", subjectID).Warn("totals cache invalidation failed")
	}
}

func (c *TotalsCache) key(subjectID string) string {
	return "totals:" + subjectID
}

func (c *TotalsCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
