package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"classpulse/internal/domain"
	"golang.org/x/sync/singleflight"
)

// PollCache caches the active poll of each group with a short TTL to avoid
// hitting the store for every student opening the poll. A freshly published
// poll may be invisible for at most one TTL; expiry is re-checked by the
// answer service, so a stale entry never serves an expired poll.
type PollCache struct {
	source PollLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	cache map[int64]cachedPoll
}

type cachedPoll struct {
	poll      domain.PollWithOptions
	expiresAt time.Time
}

// PollLoader fetches the open poll of a group from a backing store.
type PollLoader interface {
	ActivePoll(ctx context.Context, groupID int64) (domain.PollWithOptions, error)
}

func NewPollCache(source PollLoader, ttl time.Duration) *PollCache {
	return &PollCache{
		source: source,
		ttl:    ttl,
		clock:  time.Now,
		cache:  make(map[int64]cachedPoll),
	}
}

func (c *PollCache) ActivePoll(ctx context.Context, groupID int64) (domain.PollWithOptions, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[groupID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.poll, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(groupKey(groupID), func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[groupID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.poll, nil
		}
		c.mu.RUnlock()

		poll, err := c.source.ActivePoll(ctx, groupID)
		if err != nil {
			return domain.PollWithOptions{}, err
		}

		c.mu.Lock()
		c.cache[groupID] = cachedPoll{
			poll:      poll,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return poll, nil
	})
	if err != nil {
		return domain.PollWithOptions{}, err
	}
	return result.(domain.PollWithOptions), nil
}

// Invalidate drops the cached poll of a group, e.g. after publishing a new
// one.
func (c *PollCache) Invalidate(_ context.Context, groupID int64) {
	c.mu.Lock()
	delete(c.cache, groupID)
	c.mu.Unlock()
}

func (c *PollCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations; the global source is locked,
	// so concurrent misses on different groups are safe
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(rand.Int63n(jitterMax+1))
}

func groupKey(groupID int64) string {
	return "group:" + strconv.FormatInt(groupID, 10)
}
