package proxy

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Error types used as metric labels.
const (
	errorTypeRouteNotFound = "route_not_found"
	errorTypeNoInstance    = "no_instance"
	errorTypeCircuitOpen   = "circuit_open"
	errorTypeUnreachable   = "unreachable"
	errorTypeDownstream    = "downstream_5xx"
)

// Metrics records downstream calls. A nil *Metrics records nothing.
type Metrics struct {
	errorsTotal      *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
}

// NewMetrics creates proxy collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "proxy",
				Name:      "errors_total",
				Help:      "Total number of proxy errors by service and type",
			},
			[]string{"service", "error_type"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "proxy",
				Name:      "upstream_duration_seconds",
				Help:      "Duration of downstream calls in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"service"},
		),
	}
}

// MustRegister registers the collectors with reg.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.errorsTotal, m.upstreamDuration)
}

func (m *Metrics) error(service, errorType string) {
	if m == nil {
		return
	}
	if service == "" {
		service = "unmatched"
	}
	m.errorsTotal.WithLabelValues(service, errorType).Inc()
}

func (m *Metrics) upstream(service string, d time.Duration) {
	if m == nil {
		return
	}
	m.upstreamDuration.WithLabelValues(service).Observe(d.Seconds())
}
