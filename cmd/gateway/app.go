package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/MindFlowInteractive/quest-service-sub006/internal/auth"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/backend"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/circuitbreaker"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/config"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/health"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/middleware"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/observability"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/proxy"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/ratelimit"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/ratelimit/store"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/router"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/server"
)

// metricsNamespace prefixes every gateway metric.
const metricsNamespace = "gateway"

// application holds all application components.
type application struct {
	config        *config.GatewayConfig
	logger        observability.Logger
	metrics       *observability.Metrics
	reloadMetrics *reloadMetrics
	tracer        *observability.Tracer
	registry      *backend.Registry
	healthChecker *backend.HealthChecker
	balancer      *backend.RoundRobin
	breakers      *circuitbreaker.Manager
	resolver      *router.Resolver
	limiter       ratelimit.Limiter
	limits        *ratelimit.Limits
	proxy         *proxy.Proxy
	server        *server.Server
	metricsServer *http.Server

	// levelPinned is set when the log level came from a flag, so reloads
	// leave it alone.
	levelPinned bool
}

// initApplication wires every component from cfg. Nothing is started.
func initApplication(cfg *config.GatewayConfig, logger observability.Logger) (*application, error) {
	return newApplication(context.Background(), cfg, logger)
}

func newApplication(ctx context.Context, cfg *config.GatewayConfig, logger observability.Logger) (*application, error) {
	metrics := observability.NewMetrics(metricsNamespace)
	metrics.SetBuildInfo(version, gitCommit, buildTime)
	reg := metrics.Registry()

	tracer, err := initTracer(cfg)
	if err != nil {
		return nil, err
	}

	backendMetrics := backend.NewMetrics(metricsNamespace)
	breakerMetrics := circuitbreaker.NewMetrics(metricsNamespace)
	routerMetrics := router.NewMetrics(metricsNamespace)
	proxyMetrics := proxy.NewMetrics(metricsNamespace)
	authMetrics := auth.NewMetrics(metricsNamespace)
	limitMetrics := ratelimit.NewMetrics(metricsNamespace)
	storeMetrics := store.NewMetrics(metricsNamespace)
	backendMetrics.MustRegister(reg)
	breakerMetrics.MustRegister(reg)
	routerMetrics.MustRegister(reg)
	proxyMetrics.MustRegister(reg)
	authMetrics.MustRegister(reg)
	limitMetrics.MustRegister(reg)
	storeMetrics.MustRegister(reg)

	registry := backend.NewRegistry(cfg.Services)
	healthChecker := backend.NewHealthChecker(registry,
		cfg.HealthCheck.Interval.Duration(),
		cfg.HealthCheck.Timeout.Duration(),
		backend.WithHealthCheckLogger(logger),
		backend.WithHealthCheckMetrics(backendMetrics),
	)
	balancer := backend.NewRoundRobin(healthChecker, backendMetrics)

	breakerCfg := breakerConfig(cfg.CircuitBreaker)
	if err := breakerCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid circuit breaker configuration: %w", err)
	}
	breakers := circuitbreaker.NewManager(breakerCfg,
		circuitbreaker.WithEngine(cfg.CircuitBreaker.Engine),
		circuitbreaker.WithLogger(logger),
		circuitbreaker.WithMetrics(breakerMetrics),
	)
	// Create every breaker up front so the detailed health report shows
	// CLOSED instead of UNKNOWN before first use.
	for _, name := range registry.Names() {
		breakers.Get(name)
	}

	resolver := router.NewResolver(cfg.Services, routerMetrics)

	app := &application{
		config:        cfg,
		logger:        logger,
		metrics:       metrics,
		reloadMetrics: newReloadMetrics(metricsNamespace, reg),
		tracer:        tracer,
		registry:      registry,
		healthChecker: healthChecker,
		balancer:      balancer,
		breakers:      breakers,
		resolver:      resolver,
		limits:        ratelimit.NewLimits(cfg.RateLimit.Limit, cfg.RateLimit.LimitAuthenticated),
	}

	if cfg.RateLimit.Enabled {
		app.limiter, err = ratelimit.NewFromConfig(ctx, cfg.RateLimit, storeMetrics,
			ratelimit.WithLogger(logger),
			ratelimit.WithMetrics(limitMetrics),
		)
		if err != nil {
			_ = tracer.Shutdown(ctx)
			return nil, err
		}
	}

	app.proxy = proxy.New(resolver, balancer, breakers,
		proxy.WithLogger(logger),
		proxy.WithTimeout(cfg.Proxy.Timeout.Duration()),
		proxy.WithMetrics(proxyMetrics),
	)

	authn := auth.NewAuthenticator(auth.Config{
		Secret:   cfg.Auth.JWTSecret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
	}, auth.WithMetrics(authMetrics))
	if authn == nil {
		logger.Warn("no JWT secret configured, every caller is anonymous")
	}

	srv, err := server.New(cfg.Server, server.WithLogger(logger))
	if err != nil {
		app.closeLimiter()
		_ = tracer.Shutdown(ctx)
		return nil, err
	}
	installRoutes(app, srv, authn)
	app.server = srv

	if cfg.Observability.Metrics.Enabled {
		app.metricsServer = createMetricsServer(
			cfg.Observability.Metrics.Address,
			cfg.Observability.Metrics.Path,
			metrics,
			logger,
		)
	}

	return app, nil
}

// installRoutes sets up the middleware chain, the health endpoints, and the
// proxy fallback. Recovery runs first so it covers everything below it.
func installRoutes(app *application, srv *server.Server, authn *auth.Authenticator) {
	healthPaths := []string{health.PathHealth, health.PathHealthDetailed}

	srv.Use(
		middleware.Recovery(app.logger),
		middleware.CorrelationID(),
		middleware.Tracing(healthPaths...),
		middleware.LoggingWithConfig(middleware.LoggingConfig{
			Logger:    app.logger,
			SkipPaths: healthPaths,
		}),
		middleware.Metrics(app.metrics),
		middleware.Identity(authn, app.logger),
		middleware.RateLimit(middleware.RateLimitConfig{
			Limiter:   app.limiter,
			Limits:    app.limits,
			Logger:    app.logger,
			SkipPaths: healthPaths,
		}),
	)

	health.NewHandler(app.registry, app.healthChecker, app.balancer, app.breakers).
		RegisterRoutes(srv.Engine())

	srv.Fallback(app.proxy.Handle)
}

// breakerConfig maps the file configuration to breaker thresholds.
func breakerConfig(cfg config.CircuitBreakerConfig) circuitbreaker.Config {
	return circuitbreaker.Config{
		Timeout:                  cfg.Timeout.Duration(),
		ErrorThresholdPercentage: cfg.ErrorThresholdPercentage,
		VolumeThreshold:          cfg.VolumeThreshold,
		ResetTimeout:             cfg.ResetTimeout.Duration(),
		RollingWindow:            cfg.RollingWindow.Duration(),
		HalfOpenMaxCalls:         cfg.HalfOpenMaxCalls,
	}
}

// initTracer initializes the tracer.
func initTracer(cfg *config.GatewayConfig) (*observability.Tracer, error) {
	tc := cfg.Observability.Tracing
	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:  tc.ServiceName,
		OTLPEndpoint: tc.Endpoint,
		SamplingRate: tc.SamplingRate,
		Enabled:      tc.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	return tracer, nil
}

func (app *application) closeLimiter() {
	if app.limiter == nil {
		return
	}
	if err := app.limiter.Close(); err != nil {
		app.logger.Error("failed to close rate limiter", observability.Error(err))
	}
}
