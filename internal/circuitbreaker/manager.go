package circuitbreaker

import (
	"context"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MindFlowInteractive/quest-service-sub006/internal/observability"
)

// Engine names accepted by WithEngine.
const (
	EngineNative    = "native"
	EngineGobreaker = "gobreaker"
)

// TransitionFunc is notified of every state change.
type TransitionFunc func(Event)

// Manager owns one breaker per service name. Breakers are created on first
// use and live for the lifetime of the Manager.
type Manager struct {
	breakers sync.Map
	createMu sync.Mutex

	config       Config
	engine       string
	clock        clockwork.Clock
	logger       observability.Logger
	metrics      *Metrics
	onTransition TransitionFunc
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock sets the clock used by native breakers.
func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithEngine selects the breaker implementation.
func WithEngine(engine string) Option {
	return func(m *Manager) {
		m.engine = engine
	}
}

// WithTransitionCallback registers fn for state changes.
func WithTransitionCallback(fn TransitionFunc) Option {
	return func(m *Manager) {
		m.onTransition = fn
	}
}

// NewManager creates a Manager whose breakers share cfg.
func NewManager(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		config: cfg,
		engine: EngineNative,
		clock:  clockwork.NewRealClock(),
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the breaker for name, creating a closed one if needed.
func (m *Manager) Get(name string) Breaker {
	if b, ok := m.breakers.Load(name); ok {
		return b.(Breaker)
	}

	m.createMu.Lock()
	defer m.createMu.Unlock()
	if b, ok := m.breakers.Load(name); ok {
		return b.(Breaker)
	}

	var b Breaker
	if m.engine == EngineGobreaker {
		b = NewGoBreaker(name, m.config, m.publish, m.metrics)
	} else {
		b = NewCircuitBreaker(name, m.config, m.clock, m.publish, m.metrics)
	}
	m.breakers.Store(name, b)
	m.metrics.setState(name, StateClosed)

	m.logger.Debug("circuit breaker created",
		observability.String("service", name),
		observability.String("engine", m.engine),
	)
	return b
}

// Execute runs fn under the breaker for service.
func (m *Manager) Execute(ctx context.Context, service string, fn Func) error {
	return m.Get(service).Execute(ctx, fn)
}

// State returns the state for service, or StateUnknown if it was never used.
func (m *Manager) State(service string) State {
	b, ok := m.breakers.Load(service)
	if !ok {
		return StateUnknown
	}
	return b.(Breaker).State()
}

// Stats returns the stats for service if its breaker exists.
func (m *Manager) Stats(service string) (Stats, bool) {
	b, ok := m.breakers.Load(service)
	if !ok {
		return Stats{}, false
	}
	return b.(Breaker).Stats(), true
}

// AllStats returns stats for every breaker.
func (m *Manager) AllStats() map[string]Stats {
	out := make(map[string]Stats)
	m.breakers.Range(func(key, value any) bool {
		out[key.(string)] = value.(Breaker).Stats()
		return true
	})
	return out
}

// Names returns the services with a breaker, sorted.
func (m *Manager) Names() []string {
	var names []string
	m.breakers.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// publish runs outside breaker locks.
func (m *Manager) publish(ctx context.Context, events []Event) {
	for _, e := range events {
		m.logger.WithContext(ctx).Warn("circuit breaker state changed",
			observability.String("service", e.Service),
			observability.String("from", e.From.String()),
			observability.String("to", e.To.String()),
			observability.Int("requests", e.Requests),
			observability.Int("failures", e.Failures),
		)

		m.metrics.transition(e)

		if span := trace.SpanFromContext(ctx); span.IsRecording() {
			span.AddEvent("circuit_breaker.state_change", trace.WithAttributes(
				attribute.String("service", e.Service),
				attribute.String("from", e.From.String()),
				attribute.String("to", e.To.String()),
			))
		}

		if m.onTransition != nil {
			m.onTransition(e)
		}
	}
}
