package backend

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds backend collectors. A nil *Metrics records nothing.
type Metrics struct {
	instanceHealthy *prometheus.GaugeVec
	probes          *prometheus.CounterVec
	probeDuration   *prometheus.HistogramVec
	selections      *prometheus.CounterVec
}

// NewMetrics creates backend collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		instanceHealthy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "backend",
				Name:      "instance_healthy",
				Help:      "Instance health (1=healthy, 0=unhealthy)",
			},
			[]string{"service", "instance"},
		),
		probes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "backend",
				Name:      "health_checks_total",
				Help:      "Total number of health probes by result",
			},
			[]string{"service", "result"},
		),
		probeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "backend",
				Name:      "health_check_duration_seconds",
				Help:      "Health probe duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"service"},
		),
		selections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "backend",
				Name:      "selections_total",
				Help:      "Total number of load balancer selections by result",
			},
			[]string{"service", "result"},
		),
	}
}

// MustRegister registers the collectors with reg.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.instanceHealthy, m.probes, m.probeDuration, m.selections)
}

func (m *Metrics) probe(service string, healthy bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if !healthy {
		result = "failure"
	}
	m.probes.WithLabelValues(service, result).Inc()
	m.probeDuration.WithLabelValues(service).Observe(d.Seconds())
}

func (m *Metrics) setHealth(service, instance string, healthy bool) {
	if m == nil {
		return
	}
	v := 0.0
	if healthy {
		v = 1
	}
	m.instanceHealthy.WithLabelValues(service, instance).Set(v)
}

func (m *Metrics) selection(service string, ok bool) {
	if m == nil {
		return
	}
	result := "selected"
	if !ok {
		result = "no_instance"
	}
	m.selections.WithLabelValues(service, result).Inc()
}
