package ratelimit

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	defaultBucketTTL       = 10 * time.Minute
	defaultCleanupInterval = 5 * time.Minute
)

// TokenBucketLimiter gives each key a bucket of limit tokens refilled over
// one window. Buckets are process local.
type TokenBucketLimiter struct {
	window  time.Duration
	clock   clockwork.Clock
	metrics *Metrics

	buckets   sync.Map
	bucketTTL time.Duration
	cleanup   clockwork.Ticker
	done      chan struct{}
	closeOnce sync.Once
}

type bucket struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// NewTokenBucketLimiter creates a token bucket limiter and starts the loop
// that drops idle buckets.
func NewTokenBucketLimiter(window time.Duration, opts ...Option) *TokenBucketLimiter {
	o := newOptions(opts)

	l := &TokenBucketLimiter{
		window:    window,
		clock:     o.clock,
		metrics:   o.metrics,
		bucketTTL: max(defaultBucketTTL, 2*window),
		cleanup:   o.clock.NewTicker(defaultCleanupInterval),
		done:      make(chan struct{}),
	}

	go l.cleanupLoop()

	return l
}

func (l *TokenBucketLimiter) refillRate(limit int) rate.Limit {
	if limit <= 0 || l.window <= 0 {
		return 0
	}
	return rate.Limit(float64(limit) / l.window.Seconds())
}

// Allow implements Limiter.
func (l *TokenBucketLimiter) Allow(_ context.Context, key string, limit int) (*Result, error) {
	now := l.clock.Now()
	refill := l.refillRate(limit)

	value, _ := l.buckets.LoadOrStore(key, &bucket{limiter: rate.NewLimiter(refill, limit)})
	b := value.(*bucket)
	b.lastSeen.Store(now.UnixNano())

	b.mu.Lock()
	if b.limiter.Burst() != limit {
		b.limiter.SetLimitAt(now, refill)
		b.limiter.SetBurstAt(now, limit)
	}
	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)
	b.mu.Unlock()

	l.metrics.decided(allowed)

	var resetAfter, retryAfter time.Duration
	if refill > 0 {
		resetAfter = secondsToDuration((float64(limit) - tokens) / float64(refill))
		retryAfter = secondsToDuration((1 - tokens) / float64(refill))
	}

	return newResult(allowed, limit, int(math.Floor(tokens)), resetAfter, retryAfter), nil
}

func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(s * float64(time.Second)))
}

// Close stops the cleanup loop.
func (l *TokenBucketLimiter) Close() error {
	l.closeOnce.Do(func() {
		l.cleanup.Stop()
		close(l.done)
	})
	return nil
}

func (l *TokenBucketLimiter) cleanupLoop() {
	for {
		select {
		case <-l.cleanup.Chan():
			l.dropIdle()
		case <-l.done:
			return
		}
	}
}

func (l *TokenBucketLimiter) dropIdle() {
	cutoff := l.clock.Now().Add(-l.bucketTTL).UnixNano()
	l.buckets.Range(func(key, value any) bool {
		if value.(*bucket).lastSeen.Load() < cutoff {
			l.buckets.Delete(key)
		}
		return true
	})
}

func (l *TokenBucketLimiter) size() int {
	n := 0
	l.buckets.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
