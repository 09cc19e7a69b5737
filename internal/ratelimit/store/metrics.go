package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records store operations. A nil *Metrics records nothing.
type Metrics struct {
	operations       *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	connectRetries   prometheus.Counter
	connectionErrors prometheus.Counter
}

// NewMetrics creates store collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit_store",
				Name:      "operations_total",
				Help:      "Total number of rate limit store operations",
			},
			[]string{"operation", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ratelimit_store",
				Name:      "operation_duration_seconds",
				Help:      "Duration of rate limit store operations in seconds",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"operation"},
		),
		connectRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit_store",
				Name:      "connection_retries_total",
				Help:      "Total number of Redis connection retry attempts",
			},
		),
		connectionErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit_store",
				Name:      "connection_errors_total",
				Help:      "Total number of Redis connection errors",
			},
		),
	}
}

// MustRegister registers the collectors with reg.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.operations, m.duration, m.connectRetries, m.connectionErrors)
}

func (m *Metrics) observe(operation, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, status).Inc()
	m.duration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) retry() {
	if m == nil {
		return
	}
	m.connectRetries.Inc()
}

func (m *Metrics) connectionError() {
	if m == nil {
		return
	}
	m.connectionErrors.Inc()
}
