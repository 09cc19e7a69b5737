package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/MindFlowInteractive/quest-service-sub006/internal/ratelimit/store"
)

// FixedWindowLimiter counts requests per key in windows that start with the
// key's first request. The counter lives in a store.Store, so the window is
// shared by every gateway using the same store.
type FixedWindowLimiter struct {
	store   store.Store
	window  time.Duration
	metrics *Metrics
}

// NewFixedWindowLimiter creates a fixed window limiter over s.
func NewFixedWindowLimiter(s store.Store, window time.Duration, opts ...Option) *FixedWindowLimiter {
	o := newOptions(opts)
	return &FixedWindowLimiter{
		store:   s,
		window:  window,
		metrics: o.metrics,
	}
}

// Allow implements Limiter. The request that brings the count past limit and
// every later one in the same window are rejected.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string, limit int) (*Result, error) {
	c, err := l.store.Hit(ctx, key, l.window)
	if err != nil {
		l.metrics.decision(decisionError)
		return nil, fmt.Errorf("rate limit %q: %w", key, err)
	}

	allowed := c.Count <= int64(limit)
	l.metrics.decided(allowed)

	return newResult(allowed, limit, limit-int(c.Count), c.ResetAfter, c.ResetAfter), nil
}

// Close closes the underlying store.
func (l *FixedWindowLimiter) Close() error {
	return l.store.Close()
}
