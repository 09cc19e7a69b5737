package auth

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeAuthenticated = "authenticated"
	outcomeAnonymous     = "anonymous"
	outcomeInvalid       = "invalid"
)

// Metrics counts identity resolution outcomes. A nil *Metrics records
// nothing.
type Metrics struct {
	outcomes *prometheus.CounterVec
}

// NewMetrics creates auth collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "identities_total",
				Help:      "Total number of resolved caller identities by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// MustRegister registers the collectors with reg.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.outcomes)
}

func (m *Metrics) observe(outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}
