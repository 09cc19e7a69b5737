package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the breaker collectors. A nil *Metrics records nothing.
type Metrics struct {
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	outcomes    *prometheus.CounterVec
}

// NewMetrics creates breaker collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "circuit_breaker",
				Name:      "state",
				Help:      "Current state of the circuit breaker (0=closed, 1=open, 2=half-open)",
			},
			[]string{"service"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "circuit_breaker",
				Name:      "state_changes_total",
				Help:      "Total number of circuit breaker state changes",
			},
			[]string{"service", "from", "to"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "circuit_breaker",
				Name:      "rejected_total",
				Help:      "Total number of calls rejected without reaching the backend",
			},
			[]string{"service"},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "circuit_breaker",
				Name:      "calls_total",
				Help:      "Total number of protected calls by outcome",
			},
			[]string{"service", "outcome"},
		),
	}
}

// MustRegister registers the collectors with reg.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.state, m.transitions, m.rejections, m.outcomes)
}

func (m *Metrics) setState(service string, s State) {
	if m == nil {
		return
	}
	m.state.WithLabelValues(service).Set(float64(s))
}

func (m *Metrics) transition(e Event) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(e.Service, e.From.String(), e.To.String()).Inc()
	m.state.WithLabelValues(e.Service).Set(float64(e.To))
}

func (m *Metrics) reject(service string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(service).Inc()
}

func (m *Metrics) observe(service, outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(service, outcome).Inc()
}
