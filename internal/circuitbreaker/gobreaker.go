package circuitbreaker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
)

// GoBreaker adapts sony/gobreaker to the Breaker interface.
type GoBreaker struct {
	name    string
	config  Config
	cb      *gobreaker.CircuitBreaker
	metric  *Metrics
	emit    emitFunc
	pending chan []Event

	timeouts   atomic.Int64
	rejections atomic.Int64
	trials     atomic.Int32

	mu             sync.Mutex
	lastTransition time.Time
}

// NewGoBreaker creates a gobreaker-backed breaker with the same thresholds
// as the native one.
func NewGoBreaker(name string, cfg Config, emit emitFunc, metrics *Metrics) *GoBreaker {
	if emit == nil {
		emit = func(context.Context, []Event) {}
	}
	b := &GoBreaker{
		name:           name,
		config:         cfg,
		metric:         metrics,
		emit:           emit,
		pending:        make(chan []Event, 16),
		lastTransition: time.Now(),
	}

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(cfg.HalfOpenMaxCalls), //nolint:gosec // validated positive
		Interval:    cfg.RollingWindow,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < uint32(cfg.VolumeThreshold) { //nolint:gosec // validated positive
				return false
			}
			return float64(counts.TotalFailures)*100/float64(counts.Requests) >= cfg.ErrorThresholdPercentage
		},
		OnStateChange: b.onStateChange,
	})
	return b
}

// onStateChange runs under gobreaker's lock, so events are queued and
// published by the caller once Execute returns.
func (b *GoBreaker) onStateChange(_ string, from, to gobreaker.State) {
	now := time.Now()
	b.mu.Lock()
	b.lastTransition = now
	b.mu.Unlock()

	select {
	case b.pending <- []Event{{Service: b.name, From: fromGobreaker(from), To: fromGobreaker(to), At: now}}:
	default:
	}
}

func (b *GoBreaker) flush(ctx context.Context) {
	for {
		select {
		case events := <-b.pending:
			b.emit(ctx, events)
		default:
			return
		}
	}
}

// Name returns the service name.
func (b *GoBreaker) Name() string {
	return b.name
}

// Execute runs fn under the breaker. Admission is decided from the current
// state, and only real outcomes are reported to gobreaker afterwards, so a
// call abandoned by the caller leaves the counts untouched.
func (b *GoBreaker) Execute(ctx context.Context, fn Func) error {
	defer b.flush(ctx)

	admitted := b.cb.State()
	switch admitted {
	case gobreaker.StateOpen:
		return b.reject(admitted)
	case gobreaker.StateHalfOpen:
		if !b.acquireTrial() {
			return b.reject(admitted)
		}
		defer b.trials.Add(-1)
	}

	timedOut, err := callWithTimeout(ctx, b.config.Timeout, fn)
	switch {
	case timedOut:
		b.timeouts.Add(1)
		b.metric.observe(b.name, "timeout")
	case err == nil:
		b.metric.observe(b.name, "success")
	case ctx.Err() != nil:
		b.metric.observe(b.name, "canceled")
		return err
	default:
		b.metric.observe(b.name, "failure")
	}

	b.record(admitted, err)
	return err
}

// record feeds one outcome into gobreaker. Outcomes of calls admitted in a
// state that has since changed are dropped.
func (b *GoBreaker) record(admitted gobreaker.State, outcome error) {
	if b.cb.State() != admitted {
		return
	}
	_, _ = b.cb.Execute(func() (interface{}, error) {
		return nil, outcome
	})
}

func (b *GoBreaker) acquireTrial() bool {
	limit := int32(b.config.HalfOpenMaxCalls) //nolint:gosec // validated positive
	for {
		n := b.trials.Load()
		if n >= limit {
			return false
		}
		if b.trials.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (b *GoBreaker) reject(state gobreaker.State) error {
	b.rejections.Add(1)
	b.metric.reject(b.name)
	return newOpenError(b.name, fromGobreaker(state))
}

// State returns the current state.
func (b *GoBreaker) State() State {
	s := fromGobreaker(b.cb.State())
	b.flush(context.Background())
	return s
}

// Stats returns the gobreaker counts.
func (b *GoBreaker) Stats() Stats {
	counts := b.cb.Counts()
	b.mu.Lock()
	last := b.lastTransition
	b.mu.Unlock()

	return Stats{
		Name:           b.name,
		State:          b.State(),
		Requests:       int(counts.Requests),
		Failures:       int(counts.TotalFailures),
		Timeouts:       int(b.timeouts.Load()),
		Rejections:     b.rejections.Load(),
		LastTransition: last,
	}
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateUnknown
	}
}
