package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Func is a call protected by a breaker. It must honour ctx cancellation.
type Func func(ctx context.Context) error

// Breaker is a per-service circuit breaker.
type Breaker interface {
	// Execute runs fn unless the circuit rejects it. Errors from fn are
	// returned unchanged; rejections return *OpenError.
	Execute(ctx context.Context, fn Func) error
	State() State
	Stats() Stats
	Name() string
}

// Stats is a point-in-time view of a breaker.
type Stats struct {
	Name           string    `json:"name"`
	State          State     `json:"state"`
	Requests       int       `json:"requests"`
	Failures       int       `json:"failures"`
	Timeouts       int       `json:"timeouts"`
	Rejections     int64     `json:"rejections"`
	LastTransition time.Time `json:"lastTransition"`
}

// ErrorPercentage returns failures as a percentage of requests in the window.
func (s Stats) ErrorPercentage() float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.Failures) * 100 / float64(s.Requests)
}

// emitFunc publishes state-change events.
type emitFunc func(ctx context.Context, events []Event)

// CircuitBreaker is the native breaker. All transitions go through transition.
type CircuitBreaker struct {
	name   string
	config Config
	clock  clockwork.Clock
	emit   emitFunc
	metric *Metrics

	mu         sync.Mutex
	snap       snapshot
	rejections int64
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(name string, cfg Config, clock clockwork.Clock, emit emitFunc, metrics *Metrics) *CircuitBreaker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if emit == nil {
		emit = func(context.Context, []Event) {}
	}
	now := clock.Now()
	return &CircuitBreaker{
		name:   name,
		config: cfg,
		clock:  clock,
		emit:   emit,
		metric: metrics,
		snap: snapshot{
			state:          StateClosed,
			windowStart:    now,
			lastTransition: now,
		},
	}
}

// Name returns the service name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Execute runs fn under the breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn Func) error {
	gen, err := cb.acquire(ctx)
	if err != nil {
		return err
	}

	timedOut, err := callWithTimeout(ctx, cb.config.Timeout, fn)

	switch {
	case timedOut:
		cb.apply(ctx, inputTimeout, gen)
		cb.metric.observe(cb.name, "timeout")
	case err == nil:
		cb.apply(ctx, inputSuccess, gen)
		cb.metric.observe(cb.name, "success")
	case ctx.Err() != nil:
		// The caller gave up; this says nothing about the backend.
		cb.apply(ctx, inputRelease, gen)
		cb.metric.observe(cb.name, "canceled")
	default:
		cb.apply(ctx, inputFailure, gen)
		cb.metric.observe(cb.name, "failure")
	}
	return err
}

func (cb *CircuitBreaker) acquire(ctx context.Context) (uint64, error) {
	cb.mu.Lock()
	r := transition(cb.name, cb.snap, inputAcquire, 0, cb.clock.Now(), cb.config)
	cb.snap = r.next
	if !r.admitted {
		cb.rejections++
	}
	cb.mu.Unlock()

	cb.emit(ctx, r.events)

	if !r.admitted {
		cb.metric.reject(cb.name)
		return 0, newOpenError(cb.name, r.next.state)
	}
	return r.next.generation, nil
}

func (cb *CircuitBreaker) apply(ctx context.Context, in input, gen uint64) {
	cb.mu.Lock()
	r := transition(cb.name, cb.snap, in, gen, cb.clock.Now(), cb.config)
	cb.snap = r.next
	cb.mu.Unlock()

	cb.emit(ctx, r.events)
}

// State returns the current state, moving OPEN to HALF_OPEN if the reset
// timeout has elapsed.
func (cb *CircuitBreaker) State() State {
	cb.apply(context.Background(), inputObserve, 0)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.snap.state
}

// Stats returns a snapshot of the counters.
func (cb *CircuitBreaker) Stats() Stats {
	cb.apply(context.Background(), inputObserve, 0)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		Name:           cb.name,
		State:          cb.snap.state,
		Requests:       cb.snap.requests,
		Failures:       cb.snap.failures,
		Timeouts:       cb.snap.timeouts,
		Rejections:     cb.rejections,
		LastTransition: cb.snap.lastTransition,
	}
}

// callWithTimeout runs fn with a deadline. The caller is released when the
// deadline passes even if fn is still running.
func callWithTimeout(ctx context.Context, timeout time.Duration, fn Func) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("circuit breaker: protected call panicked: %v", r)
			}
		}()
		done <- fn(callCtx)
	}()

	select {
	case err := <-done:
		if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return true, timeoutError(timeout)
		}
		return false, err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, timeoutError(timeout)
	}
}

func timeoutError(timeout time.Duration) error {
	return fmt.Errorf("%w after %s: %w", ErrCallTimeout, timeout, context.DeadlineExceeded)
}
