package router

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts route resolutions. A nil *Metrics records nothing.
type Metrics struct {
	resolutions *prometheus.CounterVec
}

// NewMetrics creates router collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "resolutions_total",
				Help:      "Total number of route resolutions by service",
			},
			[]string{"service"},
		),
	}
}

// MustRegister registers the collectors with reg.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.resolutions)
}

func (m *Metrics) resolved(service string) {
	if m == nil {
		return
	}
	if service == "" {
		service = "unmatched"
	}
	m.resolutions.WithLabelValues(service).Inc()
}
