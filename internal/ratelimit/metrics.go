package ratelimit

import "github.com/prometheus/client_golang/prometheus"

const (
	decisionAllowed  = "allowed"
	decisionRejected = "rejected"
	decisionError    = "error"
)

// Metrics counts rate limit decisions. A nil *Metrics records nothing.
type Metrics struct {
	decisions *prometheus.CounterVec
}

// NewMetrics creates rate limit collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "decisions_total",
				Help:      "Total number of rate limit decisions",
			},
			[]string{"decision"},
		),
	}
}

// MustRegister registers the collectors with reg.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.decisions)
}

func (m *Metrics) decided(allowed bool) {
	if allowed {
		m.decision(decisionAllowed)
		return
	}
	m.decision(decisionRejected)
}

func (m *Metrics) decision(d string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(d).Inc()
}
