package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/MindFlowInteractive/quest-service-sub006/internal/observability"
)

// createMetricsServer creates the metrics HTTP server.
func createMetricsServer(
	addr string,
	path string,
	metrics *observability.Metrics,
	logger observability.Logger,
) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, metrics.Handler())

	logger.Info("metrics server configured",
		observability.String("address", addr),
		observability.String("metrics_path", path),
	)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// runMetricsServer runs the metrics HTTP server until it is shut down.
func runMetricsServer(server *http.Server, logger observability.Logger) {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server error", observability.Error(err))
	}
}
