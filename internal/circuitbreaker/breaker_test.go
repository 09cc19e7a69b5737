package circuitbreaker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend failed")

func fail(context.Context) error { return errBackend }

func succeed(context.Context) error { return nil }

func newTestBreaker(t *testing.T) (*CircuitBreaker, *clockwork.FakeClock, *[]Event) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	var events []Event
	emit := func(_ context.Context, evs []Event) { events = append(events, evs...) }
	return NewCircuitBreaker("social", testConfig(), clock, emit, nil), clock, &events
}

func tripBreaker(t *testing.T, cb *CircuitBreaker) {
	t.Helper()
	for i := 0; i < testConfig().VolumeThreshold; i++ {
		_ = cb.Execute(context.Background(), fail)
	}
	require.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	t.Parallel()

	cb, _, _ := newTestBreaker(t)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, "social", cb.Name())
}

func TestCircuitBreaker_ReturnsErrorsUnchanged(t *testing.T) {
	t.Parallel()

	cb, _, _ := newTestBreaker(t)
	err := cb.Execute(context.Background(), fail)
	assert.Same(t, errBackend, err)
	assert.NoError(t, cb.Execute(context.Background(), succeed))

	stats := cb.Stats()
	assert.Equal(t, 2, stats.Requests)
	assert.Equal(t, 1, stats.Failures)
	assert.InDelta(t, 50.0, stats.ErrorPercentage(), 0.001)
}

func TestCircuitBreaker_OpensAndRejectsWithoutCalling(t *testing.T) {
	t.Parallel()

	cb, _, events := newTestBreaker(t)
	tripBreaker(t, cb)
	require.Len(t, *events, 1)
	assert.Equal(t, StateOpen, (*events)[0].To)

	var calls atomic.Int32
	err := cb.Execute(context.Background(), func(context.Context) error {
		calls.Add(1)
		return nil
	})

	require.ErrorIs(t, err, ErrCircuitOpen)
	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, 503, openErr.Fallback.StatusCode)
	assert.Equal(t, "Service Unavailable", openErr.Fallback.Error)
	assert.Equal(t, "social", openErr.Fallback.Service)
	assert.NotEmpty(t, openErr.Fallback.Message)
	assert.Zero(t, calls.Load())
	assert.EqualValues(t, 1, cb.Stats().Rejections)
}

func TestCircuitBreaker_HalfOpenTrialSuccessCloses(t *testing.T) {
	t.Parallel()

	cb, clock, events := newTestBreaker(t)
	tripBreaker(t, cb)

	clock.Advance(testConfig().ResetTimeout)
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(context.Background(), succeed))
	assert.Equal(t, StateClosed, cb.State())

	var to []State
	for _, e := range *events {
		to = append(to, e.To)
	}
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, to)
}

func TestCircuitBreaker_HalfOpenTrialFailureReopens(t *testing.T) {
	t.Parallel()

	cb, clock, _ := newTestBreaker(t)
	tripBreaker(t, cb)

	clock.Advance(testConfig().ResetTimeout)
	assert.ErrorIs(t, cb.Execute(context.Background(), fail), errBackend)
	assert.Equal(t, StateOpen, cb.State())

	clock.Advance(testConfig().ResetTimeout - time.Second)
	assert.Equal(t, StateOpen, cb.State(), "reset timer restarts on reopen")
}

func TestCircuitBreaker_HalfOpenAdmitsExactlyOneTrial(t *testing.T) {
	t.Parallel()

	cb, clock, _ := newTestBreaker(t)
	tripBreaker(t, cb)
	clock.Advance(testConfig().ResetTimeout)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := cb.Execute(context.Background(), succeed)
	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, StateHalfOpen, openErr.State)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_TimeoutCountsAsFailureAndCancels(t *testing.T) {
	t.Parallel()

	cfg := testConfig().WithTimeout(20 * time.Millisecond).WithVolumeThreshold(1)
	cb := NewCircuitBreaker("slow", cfg, clockwork.NewFakeClock(), nil, nil)

	canceled := make(chan error, 1)
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		canceled <- ctx.Err()
		return ctx.Err()
	})

	require.ErrorIs(t, err, ErrCallTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, <-canceled, context.DeadlineExceeded)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_TimeoutReleasesCallerWhenCallIgnoresContext(t *testing.T) {
	t.Parallel()

	cfg := testConfig().WithTimeout(10 * time.Millisecond)
	cb := NewCircuitBreaker("stuck", cfg, clockwork.NewFakeClock(), nil, nil)

	block := make(chan struct{})
	defer close(block)

	err := cb.Execute(context.Background(), func(context.Context) error {
		<-block
		return nil
	})
	assert.ErrorIs(t, err, ErrCallTimeout)
	assert.Equal(t, 1, cb.Stats().Timeouts)
}

func TestCircuitBreaker_CallerCancelNotCounted(t *testing.T) {
	t.Parallel()

	cb, _, _ := newTestBreaker(t)
	ctx, cancel := context.WithCancel(context.Background())

	err := cb.Execute(ctx, func(ctx context.Context) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, cb.Stats().Requests)
}

func TestCircuitBreaker_PanicBecomesFailure(t *testing.T) {
	t.Parallel()

	cb, _, _ := newTestBreaker(t)
	err := cb.Execute(context.Background(), func(context.Context) error {
		panic("boom")
	})
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, 1, cb.Stats().Failures)
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "OPEN", StateOpen.String())
	assert.Equal(t, "HALF_OPEN", StateHalfOpen.String())
	assert.Equal(t, "UNKNOWN", StateUnknown.String())
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, DefaultConfig().WithTimeout(0).Validate())
	assert.Error(t, DefaultConfig().WithErrorThreshold(101).Validate())
	assert.Error(t, DefaultConfig().WithVolumeThreshold(0).Validate())
	assert.Error(t, DefaultConfig().WithResetTimeout(-time.Second).Validate())
}
