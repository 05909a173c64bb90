package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	platformredis "enroll/internal/platform/redis"
)

// Limiter decides whether a user's message is still within the flood
// budget.
type Limiter interface {
	Allow(ctx context.Context, userID string) (bool, error)
}

// RedisLimiter counts messages per user in Redis, shared across bot
// replicas. The first message in a window creates the counter and sets
// the expiry.
type RedisLimiter struct {
	client *platformredis.Client
	limit  int
	window time.Duration
}

func NewRedisLimiter(client *platformredis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, userID string) (bool, error) {
	key := "enroll:flood:" + userID
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("incr flood counter: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, fmt.Errorf("expire flood counter: %w", err)
		}
	}
	return count <= int64(l.limit), nil
}

// MemoryLimiter is the in-process fallback when Redis is not configured.
type MemoryLimiter struct {
	mu     sync.Mutex
	counts map[string]*window
	limit  int
	window time.Duration
	clock  func() time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

func NewMemoryLimiter(limit int, windowSize time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		counts: make(map[string]*window),
		limit:  limit,
		window: windowSize,
		clock:  time.Now,
	}
}

// WithClock overrides the time source; tests use this to move windows.
func (l *MemoryLimiter) WithClock(clock func() time.Time) *MemoryLimiter {
	l.clock = clock
	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, userID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	w := l.counts[userID]
	if w == nil || now.After(w.resetAt) {
		l.counts[userID] = &window{count: 1, resetAt: now.Add(l.window)}
		return true, nil
	}
	w.count++
	return w.count <= l.limit, nil
}
