package circuitbreaker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MindFlowInteractive/quest-service-sub006/internal/observability"
)

func TestManager_UnknownUntilFirstUse(t *testing.T) {
	t.Parallel()

	m := NewManager(testConfig())
	assert.Equal(t, StateUnknown, m.State("social"))
	_, ok := m.Stats("social")
	assert.False(t, ok)

	require.NoError(t, m.Execute(context.Background(), "social", succeed))
	assert.Equal(t, StateClosed, m.State("social"))
	stats, ok := m.Stats("social")
	require.True(t, ok)
	assert.Equal(t, 1, stats.Requests)
}

func TestManager_LazyCreationIsIdempotent(t *testing.T) {
	t.Parallel()

	m := NewManager(testConfig())

	var wg sync.WaitGroup
	breakers := make([]Breaker, 16)
	for i := range breakers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			breakers[i] = m.Get("quests")
		}(i)
	}
	wg.Wait()

	for _, b := range breakers {
		assert.Same(t, breakers[0], b)
	}
	assert.Equal(t, []string{"quests"}, m.Names())
}

func TestManager_BreakersAreIndependent(t *testing.T) {
	t.Parallel()

	m := NewManager(testConfig(), WithClock(clockwork.NewFakeClock()))
	for i := 0; i < testConfig().VolumeThreshold; i++ {
		_ = m.Execute(context.Background(), "social", fail)
	}

	assert.Equal(t, StateOpen, m.State("social"))
	assert.NoError(t, m.Execute(context.Background(), "quests", succeed))
	assert.Equal(t, StateClosed, m.State("quests"))

	all := m.AllStats()
	assert.Len(t, all, 2)
	assert.Equal(t, StateOpen, all["social"].State)
}

func TestManager_PublishesTransitions(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics("test")
	metrics.MustRegister(reg)

	var mu sync.Mutex
	var seen []Event
	m := NewManager(testConfig(),
		WithClock(clockwork.NewFakeClock()),
		WithLogger(observability.NewLoggerFromZap(zap.New(core))),
		WithMetrics(metrics),
		WithTransitionCallback(func(e Event) {
			mu.Lock()
			seen = append(seen, e)
			mu.Unlock()
		}),
	)

	for i := 0; i < testConfig().VolumeThreshold; i++ {
		_ = m.Execute(context.Background(), "social", fail)
	}
	_ = m.Execute(context.Background(), "social", succeed)

	mu.Lock()
	require.Len(t, seen, 1)
	assert.Equal(t, StateOpen, seen[0].To)
	mu.Unlock()

	entries := logs.FilterMessage("circuit breaker state changed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "OPEN", entries[0].ContextMap()["to"])

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.transitions.WithLabelValues("social", "CLOSED", "OPEN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.state.WithLabelValues("social")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.rejections.WithLabelValues("social")))
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.outcomes.WithLabelValues("social", "failure")))
}

func TestManager_GobreakerEngine(t *testing.T) {
	t.Parallel()

	cfg := testConfig().WithResetTimeout(50 * time.Millisecond)
	m := NewManager(cfg, WithEngine(EngineGobreaker))

	for i := 0; i < cfg.VolumeThreshold; i++ {
		assert.ErrorIs(t, m.Execute(context.Background(), "social", fail), errBackend)
	}
	assert.Equal(t, StateOpen, m.State("social"))

	err := m.Execute(context.Background(), "social", succeed)
	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, 503, openErr.Fallback.StatusCode)

	assert.Eventually(t, func() bool {
		return m.State("social") == StateHalfOpen
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Execute(context.Background(), "social", succeed))
	assert.Equal(t, StateClosed, m.State("social"))

	stats, ok := m.Stats("social")
	require.True(t, ok)
	assert.EqualValues(t, 1, stats.Rejections)
}

func TestManager_CanceledHalfOpenTrialKeepsCircuitHalfOpen(t *testing.T) {
	t.Parallel()

	for _, engine := range []string{EngineNative, EngineGobreaker} {
		t.Run(engine, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig().WithResetTimeout(20 * time.Millisecond)
			m := NewManager(cfg, WithEngine(engine))
			for i := 0; i < cfg.VolumeThreshold; i++ {
				assert.ErrorIs(t, m.Execute(context.Background(), "social", fail), errBackend)
			}
			require.Equal(t, StateOpen, m.State("social"))
			time.Sleep(40 * time.Millisecond)

			ctx, cancel := context.WithCancel(context.Background())
			err := m.Execute(ctx, "social", func(ctx context.Context) error {
				cancel()
				<-ctx.Done()
				return ctx.Err()
			})
			assert.ErrorIs(t, err, context.Canceled)
			assert.Equal(t, StateHalfOpen, m.State("social"))

			// The released slot admits the next trial.
			require.NoError(t, m.Execute(context.Background(), "social", succeed))
			assert.Equal(t, StateClosed, m.State("social"))
		})
	}
}

func TestGoBreaker_CallerCancelNotCounted(t *testing.T) {
	t.Parallel()

	b := NewGoBreaker("social", testConfig(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.Execute(ctx, func(ctx context.Context) error {
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)

	stats := b.Stats()
	assert.Zero(t, stats.Requests)
	assert.Zero(t, stats.Failures)
	assert.Equal(t, StateClosed, stats.State)
}

func TestGoBreaker_TimeoutCountsAsFailure(t *testing.T) {
	t.Parallel()

	cfg := testConfig().WithTimeout(10 * time.Millisecond).WithVolumeThreshold(1)
	b := NewGoBreaker("slow", cfg, nil, nil)

	err := b.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, ErrCallTimeout)
	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, 1, b.Stats().Timeouts)
}
