package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"classpulse/internal/domain"
)

func TestPollCacheServesFromCache(t *testing.T) {
	loader := &countingLoader{poll: samplePoll()}
	cache := NewPollCache(loader, time.Minute)

	if _, err := cache.ActivePoll(context.Background(), 1); err != nil {
		t.Fatalf("active poll: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := cache.ActivePoll(context.Background(), 1); err != nil {
		t.Fatalf("active poll 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestPollCacheInvalidate(t *testing.T) {
	loader := &countingLoader{poll: samplePoll()}
	cache := NewPollCache(loader, time.Minute)

	if _, err := cache.ActivePoll(context.Background(), 1); err != nil {
		t.Fatalf("active poll: %v", err)
	}
	cache.Invalidate(context.Background(), 1)
	if _, err := cache.ActivePoll(context.Background(), 1); err != nil {
		t.Fatalf("active poll after invalidate: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, got %d calls", loader.calls)
	}
}

// Misses on distinct groups fill the cache concurrently; singleflight only
// serializes per group.
func TestPollCacheConcurrentMissesOnDistinctGroups(t *testing.T) {
	loader := &countingLoader{poll: samplePoll()}
	cache := NewPollCache(loader, time.Minute)

	var wg sync.WaitGroup
	for g := int64(1); g <= 16; g++ {
		wg.Add(1)
		go func(groupID int64) {
			defer wg.Done()
			if _, err := cache.ActivePoll(context.Background(), groupID); err != nil {
				t.Errorf("active poll group %d: %v", groupID, err)
			}
		}(g)
	}
	wg.Wait()
}

func TestPollCacheDoesNotCacheMisses(t *testing.T) {
	loader := &countingLoader{err: domain.ErrNoActivePoll}
	cache := NewPollCache(loader, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := cache.ActivePoll(context.Background(), 1); err != domain.ErrNoActivePoll {
			t.Fatalf("expected ErrNoActivePoll, got %v", err)
		}
	}
	if loader.calls != 2 {
		t.Fatalf("expected loader on every miss, got %d", loader.calls)
	}
}

type countingLoader struct {
	mu    sync.Mutex
	poll  domain.PollWithOptions
	err   error
	calls int
}

func (l *countingLoader) ActivePoll(_ context.Context, _ int64) (domain.PollWithOptions, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	if l.err != nil {
		return domain.PollWithOptions{}, l.err
	}
	return l.poll, nil
}

func samplePoll() domain.PollWithOptions {
	return domain.PollWithOptions{
		Poll: domain.Poll{
			ID:        5,
			Question:  "What is 2 + 2?",
			GroupID:   1,
			ExpiresAt: time.Now().Add(time.Hour),
			IsActive:  true,
		},
		Options: []domain.Option{
			{ID: 10, PollID: 5, Value: "3"},
			{ID: 11, PollID: 5, Value: "4", IsAnswerKey: true},
		},
	}
}
