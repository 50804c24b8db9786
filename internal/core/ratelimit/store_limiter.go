package ratelimit

import (
	"context"
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/core"
)

// StoreLimiter is a fixed-window limiter backed by the relational usage table.
// Each reservation is a single upsert, so concurrent workers never lose counts.
type StoreLimiter struct {
	store  core.UsageStore
	limit  int
	window time.Duration
	now    func() time.Time
}

var _ core.RateLimiter = (*StoreLimiter)(nil)

// NewStoreLimiter allows limit units per user per window. A limit <= 0 disables the check.
func NewStoreLimiter(store core.UsageStore, limit int, window time.Duration) *StoreLimiter {
	if window <= 0 {
		window = time.Hour
	}
	return &StoreLimiter{store: store, limit: limit, window: window, now: time.Now}
}

func (l *StoreLimiter) Allow(ctx context.Context, userID string, n int) (bool, error) {
	if l.limit <= 0 || n <= 0 {
		return true, nil
	}
	windowStart := l.now().UTC().Truncate(l.window)

	total, err := l.store.IncrementEmbeddingUsage(ctx, userID, windowStart, n)
	if err != nil {
		return false, err
	}
	if total <= l.limit {
		return true, nil
	}
	// Give the units back so a smaller request can still fit.
	if _, err := l.store.IncrementEmbeddingUsage(ctx, userID, windowStart, -n); err != nil {
		return false, err
	}
	return false, nil
}
