package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"time"

	"classpulse/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// PollLoader fetches the open poll of a group from a backing store.
type PollLoader interface {
	ActivePoll(ctx context.Context, groupID int64) (domain.PollWithOptions, error)
}

// PollCache keeps the active poll of each group in Redis as JSON under
// group:{id}:poll so multiple service instances share one cache. Misses fall
// back to the loader behind a singleflight barrier. Expiry of the poll
// itself is re-checked by the caller, so a stale cache entry never serves an
// expired poll.
type PollCache struct {
	client *redis.Client
	loader PollLoader
	ttl    time.Duration
	sf     singleflight.Group
}

func NewPollCache(client *redis.Client, loader PollLoader, ttl time.Duration) *PollCache {
	return &PollCache{
		client: client,
		loader: loader,
		ttl:    ttl,
	}
}

func (c *PollCache) ActivePoll(ctx context.Context, groupID int64) (domain.PollWithOptions, error) {
	key := c.key(groupID)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var poll domain.PollWithOptions
		if err := json.Unmarshal(raw, &poll); err == nil {
			return poll, nil
		}
		// Unreadable payload: drop it and reload.
		_ = c.client.Del(ctx, key).Err()
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check in case another goroutine filled the key.
		if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
			var poll domain.PollWithOptions
			if err := json.Unmarshal(raw, &poll); err == nil {
				return poll, nil
			}
		}

		poll, err := c.loader.ActivePoll(ctx, groupID)
		if err != nil {
			return domain.PollWithOptions{}, err
		}

		if raw, err := json.Marshal(poll); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		}
		return poll, nil
	})
	if err != nil {
		return domain.PollWithOptions{}, err
	}
	return result.(domain.PollWithOptions), nil
}

// Invalidate drops the cached poll of a group, e.g. after publishing a new
// one.
func (c *PollCache) Invalidate(ctx context.Context, groupID int64) {
	_ = c.client.Del(ctx, c.key(groupID)).Err()
}

func (c *PollCache) key(groupID int64) string {
	return "group:" + strconv.FormatInt(groupID, 10) + ":poll"
}

func (c *PollCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// global source is locked, so concurrent misses on different groups
	// are safe
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(rand.Int63n(jitterMax+1))
}
