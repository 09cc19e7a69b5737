package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenBucket(t *testing.T, window time.Duration) (*TokenBucketLimiter, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClock()
	l := NewTokenBucketLimiter(window, WithClock(clock))
	t.Cleanup(func() { _ = l.Close() })
	return l, clock
}

func TestTokenBucketLimiter_Burst(t *testing.T) {
	t.Parallel()

	l, _ := newTestTokenBucket(t, time.Minute)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := l.Allow(ctx, "k", 3)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 3-i, res.Remaining)
	}

	res, err := l.Allow(ctx, "k", 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 20*time.Second, res.RetryAfter)
	assert.Equal(t, time.Minute, res.ResetAfter)
}

func TestTokenBucketLimiter_Refill(t *testing.T) {
	t.Parallel()

	l, clock := newTestTokenBucket(t, time.Minute)
	ctx := context.Background()

	_, _ = l.Allow(ctx, "k", 2)
	_, _ = l.Allow(ctx, "k", 2)
	res, _ := l.Allow(ctx, "k", 2)
	require.False(t, res.Allowed)

	clock.Advance(31 * time.Second)

	res, err := l.Allow(ctx, "k", 2)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestTokenBucketLimiter_LimitChange(t *testing.T) {
	t.Parallel()

	l, _ := newTestTokenBucket(t, time.Minute)
	ctx := context.Background()

	res, _ := l.Allow(ctx, "k", 1)
	require.True(t, res.Allowed)
	res, _ = l.Allow(ctx, "k", 1)
	require.False(t, res.Allowed)

	res, err := l.Allow(ctx, "k", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Limit)
}

func TestTokenBucketLimiter_ZeroLimitRejects(t *testing.T) {
	t.Parallel()

	l, _ := newTestTokenBucket(t, time.Minute)

	res, err := l.Allow(context.Background(), "k", 0)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestTokenBucketLimiter_DropsIdleBuckets(t *testing.T) {
	t.Parallel()

	l, clock := newTestTokenBucket(t, time.Minute)
	ctx := context.Background()

	_, _ = l.Allow(ctx, "idle", 5)
	require.Equal(t, 1, l.size())

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(defaultBucketTTL + time.Second)
	assert.Eventually(t, func() bool { return l.size() == 0 }, time.Second, 5*time.Millisecond)
}
