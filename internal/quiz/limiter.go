package quiz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/medq/internal/platform/cache"
)

// Limiter caps how many submissions a student may make per UTC day.
type Limiter interface {
	// Allow counts one submission and reports whether it is within the limit.
	Allow(ctx context.Context, studentID string) (bool, error)
}

// NopLimiter allows everything.
type NopLimiter struct{}

func (NopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

func dayKey(studentID string, now time.Time) string {
	return studentID + ":" + now.UTC().Format(time.DateOnly)
}

// MemoryLimiter is an in-process limiter for single-instance deployments and
// tests. Counters from previous days are dropped lazily.
type MemoryLimiter struct {
	mu    sync.Mutex
	limit int
	used  map[string]int
	day   string
	now   func() time.Time
}

// NewMemoryLimiter creates a limiter allowing limit submissions per day. A
// limit of 0 or less disables limiting.
func NewMemoryLimiter(limit int) *MemoryLimiter {
	return &MemoryLimiter{limit: limit, used: make(map[string]int), now: time.Now}
}

func (l *MemoryLimiter) Allow(_ context.Context, studentID string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if day := now.UTC().Format(time.DateOnly); day != l.day {
		clear(l.used)
		l.day = day
	}
	key := dayKey(studentID, now)
	if l.used[key] >= l.limit {
		return false, nil
	}
	l.used[key]++
	return true, nil
}

// RedisLimiter counts submissions in Dragonfly/Redis so the limit holds
// across server instances.
type RedisLimiter struct {
	client redis.Cmdable
	limit  int
	now    func() time.Time
}

// NewRedisLimiter creates a shared limiter.
func NewRedisLimiter(client redis.Cmdable, limit int) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, studentID string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	key := cache.Key("quiz", dayKey(studentID, l.now()))

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 25*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("count submission: %w", err)
	}
	return incr.Val() <= int64(l.limit), nil
}
