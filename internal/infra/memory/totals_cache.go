package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"quiz-progress-service/internal/domain"
)

// TotalsCache keeps aggregated shard totals for a short TTL to avoid
// repeated N-shard fan-out reads from listing pages.
type TotalsCache struct {
	ttl   time.Duration
	clock func() time.Time
	rnd   *rand.Rand

	mu      sync.Mutex
	entries map[string]cachedTotals
}

type cachedTotals struct {
	totals    domain.Totals
	expiresAt time.Time
}

func NewTotalsCache(ttl time.Duration) *TotalsCache {
	return &TotalsCache{
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		entries: make(map[string]cachedTotals),
	}
}

func (c *TotalsCache) Get(_ context.Context, subjectID string) (domain.Totals, bool) {
	now := c.clock()
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[subjectID]
	if !ok {
		return domain.Totals{}, false
	}
	if !entry.expiresAt.After(now) {
		delete(c.entries, subjectID)
		return domain.Totals{}, false
	}
	return entry.totals, true
}

func (c *TotalsCache) Put(_ context.Context, subjectID string, totals domain.Totals) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[subjectID] = cachedTotals{
		totals:    totals,
		expiresAt: c.clock().Add(c.ttlWithJitterLocked()),
	}
}

func (c *TotalsCache) Invalidate(_ context.Context, subjectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, subjectID)
}

// ttlWithJitterLocked adds up to 10% jitter to spread expirations.
func (c *TotalsCache) ttlWithJitterLocked() time.Duration {
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
