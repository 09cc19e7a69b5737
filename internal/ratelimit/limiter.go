// Package ratelimit limits requests per caller identity.
//
// Callers are keyed by IdentityKey. The default algorithm is a fixed window
// that starts with the key's first request; a token bucket from
// golang.org/x/time/rate is available for process-local deployments.
package ratelimit

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/MindFlowInteractive/quest-service-sub006/internal/observability"
)

// Limiter decides whether a request identified by key fits within limit.
type Limiter interface {
	// Allow records one request for key and reports the decision.
	Allow(ctx context.Context, key string, limit int) (*Result, error)

	// Close releases the limiter's resources.
	Close() error
}

// Result is the outcome of a rate limit check.
type Result struct {
	// Allowed indicates whether the request may proceed.
	Allowed bool

	// Limit is the limit that applied to the request.
	Limit int

	// Remaining is the budget left after this request, zero when rejected.
	Remaining int

	// ResetAfter is the time until the budget is restored.
	ResetAfter time.Duration

	// RetryAfter is how long a rejected caller should wait.
	RetryAfter time.Duration
}

func newResult(allowed bool, limit, remaining int, resetAfter, retryAfter time.Duration) *Result {
	if !allowed || remaining < 0 {
		remaining = 0
	}
	if resetAfter < 0 {
		resetAfter = 0
	}
	if allowed {
		retryAfter = 0
	}
	return &Result{
		Allowed:    allowed,
		Limit:      limit,
		Remaining:  remaining,
		ResetAfter: resetAfter,
		RetryAfter: retryAfter,
	}
}

// Option configures a limiter.
type Option func(*options)

type options struct {
	clock   clockwork.Clock
	logger  observability.Logger
	metrics *Metrics
}

func newOptions(opts []Option) options {
	o := options{
		clock:  clockwork.NewRealClock(),
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock sets the clock used by process-local algorithms.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the decision metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}
