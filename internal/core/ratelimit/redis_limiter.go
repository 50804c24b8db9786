package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/markdave123-py/contexta-ingest/internal/core"
)

// RedisLimiter is a fixed-window limiter shared by every process pointing at the same Redis.
type RedisLimiter struct {
	rdb    redis.Cmdable
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

var _ core.RateLimiter = (*RedisLimiter)(nil)

func NewRedisLimiter(rdb redis.Cmdable, limit int, window time.Duration) *RedisLimiter {
	if window <= 0 {
		window = time.Hour
	}
	return &RedisLimiter{rdb: rdb, limit: limit, window: window, prefix: "contexta:embed_usage:", now: time.Now}
}

func (l *RedisLimiter) key(userID string) string {
	windowStart := l.now().UTC().Truncate(l.window)
	return fmt.Sprintf("%s%s:%d", l.prefix, userID, windowStart.Unix())
}

func (l *RedisLimiter) Allow(ctx context.Context, userID string, n int) (bool, error) {
	if l.limit <= 0 || n <= 0 {
		return true, nil
	}
	key := l.key(userID)

	pipe := l.rdb.TxPipeline()
	incr := pipe.IncrBy(ctx, key, int64(n))
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis usage incr: %w", err)
	}

	if incr.Val() <= int64(l.limit) {
		return true, nil
	}
	if err := l.rdb.DecrBy(ctx, key, int64(n)).Err(); err != nil {
		return false, fmt.Errorf("redis usage release: %w", err)
	}
	return false, nil
}
