package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/MindFlowInteractive/quest-service-sub006/internal/config"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/observability"
)

// runGateway runs the gateway until SIGINT or SIGTERM.
func runGateway(app *application, configPath string, logger observability.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.start(ctx); err != nil {
		fatalWithSync(logger, "failed to start gateway", observability.Error(err))
		return
	}

	watcher := startConfigWatcher(app, configPath, logger)

	<-ctx.Done()
	logger.Info("received shutdown signal")

	if watcher != nil {
		_ = watcher.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout.Duration())
	defer cancel()

	app.shutdown(shutdownCtx)
}

// start starts the health checker, the metrics listener, and the gateway
// listener. The first probe pass completes before the listener opens.
func (app *application) start(ctx context.Context) error {
	app.healthChecker.Start(ctx)
	app.logger.Info("initial health check complete",
		observability.Int("healthy_services", app.healthyServiceCount()),
	)

	if app.metricsServer != nil {
		go runMetricsServer(app.metricsServer, app.logger)
	}

	return app.server.Start(ctx)
}

func (app *application) healthyServiceCount() int {
	n := 0
	for _, name := range app.registry.Names() {
		if app.healthChecker.IsServiceHealthy(name) {
			n++
		}
	}
	return n
}

// shutdown stops accepting requests, drains in-flight ones, and then stops
// the background components.
func (app *application) shutdown(ctx context.Context) {
	if err := app.server.Stop(ctx); err != nil {
		app.logger.Error("failed to stop gateway gracefully", observability.Error(err))
	}

	if app.metricsServer != nil {
		app.logger.Info("stopping metrics server")
		if err := app.metricsServer.Shutdown(ctx); err != nil {
			app.logger.Error("failed to stop metrics server gracefully", observability.Error(err))
		}
	}

	app.healthChecker.Stop()
	app.closeLimiter()

	if err := app.tracer.Shutdown(ctx); err != nil {
		app.logger.Error("failed to shutdown tracer", observability.Error(err))
	}

	app.logger.Info("gateway stopped")
}

// startConfigWatcher starts the configuration watcher. A watcher failure is
// logged and the gateway keeps running with its startup configuration.
func startConfigWatcher(app *application, configPath string, logger observability.Logger) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, app.applyReload,
		config.WithWatcherLogger(logger),
		config.WithErrorCallback(func(error) { app.reloadMetrics.failure() }),
	)
	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(context.Background()); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
		return nil
	}
	return watcher
}

// fatalWithSync flushes the logger before exiting.
func fatalWithSync(logger observability.Logger, msg string, fields ...observability.Field) {
	logger.Error(msg, fields...)
	_ = logger.Sync()
	os.Exit(1)
}
