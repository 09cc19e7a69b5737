package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MindFlowInteractive/quest-service-sub006/internal/ratelimit/store"
)

func newTestFixedWindow(t *testing.T, window time.Duration, opts ...Option) (*FixedWindowLimiter, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClock()
	s := store.NewMemoryStore(store.WithClock(clock))
	l := NewFixedWindowLimiter(s, window, opts...)
	t.Cleanup(func() { _ = l.Close() })
	return l, clock
}

func TestFixedWindowLimiter_RejectsAfterLimit(t *testing.T) {
	t.Parallel()

	l, _ := newTestFixedWindow(t, time.Minute)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := l.Allow(ctx, "10.0.0.1", 3)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 3, res.Limit)
		assert.Equal(t, 3-i, res.Remaining)
		assert.Zero(t, res.RetryAfter)
	}

	res, err := l.Allow(ctx, "10.0.0.1", 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, time.Minute, res.RetryAfter)
}

func TestFixedWindowLimiter_WindowStartsAtFirstRequest(t *testing.T) {
	t.Parallel()

	l, clock := newTestFixedWindow(t, time.Minute)
	ctx := context.Background()

	_, _ = l.Allow(ctx, "k", 1)
	clock.Advance(45 * time.Second)

	res, err := l.Allow(ctx, "k", 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 15*time.Second, res.ResetAfter)
	assert.Equal(t, 15*time.Second, res.RetryAfter)

	clock.Advance(15 * time.Second)

	res, err = l.Allow(ctx, "k", 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, time.Minute, res.ResetAfter)
}

func TestFixedWindowLimiter_LimitPerCall(t *testing.T) {
	t.Parallel()

	l, _ := newTestFixedWindow(t, time.Minute)
	ctx := context.Background()

	for range 5 {
		_, _ = l.Allow(ctx, "user-1", 10)
	}

	res, err := l.Allow(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining)

	res, err = l.Allow(ctx, "user-1", 5)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

type failingStore struct{ store.Store }

func (failingStore) Hit(context.Context, string, time.Duration) (store.Counter, error) {
	return store.Counter{}, errors.New("connection refused")
}

func (failingStore) Close() error { return nil }

func TestFixedWindowLimiter_StoreError(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics("test")
	l := NewFixedWindowLimiter(failingStore{}, time.Minute, WithMetrics(metrics))

	res, err := l.Allow(context.Background(), "k", 1)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.decisions.WithLabelValues(decisionError)))
}

func TestFixedWindowLimiter_Metrics(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics("test")
	l, _ := newTestFixedWindow(t, time.Minute, WithMetrics(metrics))

	_, _ = l.Allow(context.Background(), "k", 1)
	_, _ = l.Allow(context.Background(), "k", 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.decisions.WithLabelValues(decisionAllowed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.decisions.WithLabelValues(decisionRejected)))
}
