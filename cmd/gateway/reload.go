package main

import (
	"reflect"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MindFlowInteractive/quest-service-sub006/internal/config"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/observability"
)

// Reload results.
const (
	reloadSuccess = "success"
	reloadError   = "error"
)

// reloadMetrics counts configuration reloads.
type reloadMetrics struct {
	reloadTotal       *prometheus.CounterVec
	reloadLastSuccess prometheus.Gauge
}

func newReloadMetrics(namespace string, reg prometheus.Registerer) *reloadMetrics {
	rm := &reloadMetrics{
		reloadTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_total",
				Help:      "Total number of configuration reloads",
			},
			[]string{"result"},
		),
		reloadLastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_reload_last_success_timestamp",
				Help:      "Timestamp of the last successful configuration reload",
			},
		),
	}
	reg.MustRegister(rm.reloadTotal, rm.reloadLastSuccess)
	return rm
}

func (rm *reloadMetrics) success() {
	rm.reloadTotal.WithLabelValues(reloadSuccess).Inc()
	rm.reloadLastSuccess.SetToCurrentTime()
}

func (rm *reloadMetrics) failure() {
	rm.reloadTotal.WithLabelValues(reloadError).Inc()
}

// applyReload applies the reloadable parts of newCfg: rate limits and the
// log level. Services and every other setting are fixed at startup.
func (app *application) applyReload(newCfg *config.GatewayConfig) {
	old := app.config

	if !reflect.DeepEqual(old.Services, newCfg.Services) {
		app.logger.Warn("service changes require a restart and were ignored")
	}

	rl := newCfg.RateLimit
	if rl.Limit != old.RateLimit.Limit || rl.LimitAuthenticated != old.RateLimit.LimitAuthenticated {
		app.limits.Update(rl.Limit, rl.LimitAuthenticated)
		app.logger.Info("rate limits updated",
			observability.Int("limit", rl.Limit),
			observability.Int("limit_authenticated", rl.LimitAuthenticated),
		)
	}
	if rl.Enabled != old.RateLimit.Enabled || rl.Algorithm != old.RateLimit.Algorithm ||
		rl.Store != old.RateLimit.Store || rl.TTL != old.RateLimit.TTL {
		app.logger.Warn("rate limiter changes other than limits require a restart and were ignored")
	}

	level := newCfg.Observability.Logging.Level
	if !app.levelPinned && level != old.Observability.Logging.Level {
		if setter, ok := app.logger.(observability.LevelSetter); ok {
			if err := setter.SetLevel(level); err != nil {
				app.logger.Error("failed to change log level", observability.Error(err))
			} else {
				app.logger.Info("log level changed", observability.String("level", level))
			}
		}
	}

	// Keep the startup settings for everything that was not applied.
	merged := *old
	merged.RateLimit.Limit = rl.Limit
	merged.RateLimit.LimitAuthenticated = rl.LimitAuthenticated
	if !app.levelPinned {
		merged.Observability.Logging.Level = level
	}
	app.config = &merged

	app.reloadMetrics.success()
}
