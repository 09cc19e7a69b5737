// Package server provides the inbound HTTP server of the gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/MindFlowInteractive/quest-service-sub006/internal/config"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/observability"
)

// ginModeOnce guards gin.SetMode, which writes a package global.
var ginModeOnce sync.Once

// ErrAlreadyRunning is returned by Start on a running server.
var ErrAlreadyRunning = errors.New("server already running")

// Server is a gin engine behind an http.Server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	config     config.ServerConfig
	logger     observability.Logger

	mu       sync.RWMutex
	running  bool
	listener net.Listener
	done     chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a server. Only the proxies in cfg.TrustedProxies may set the
// client IP through forwarding headers.
func New(cfg config.ServerConfig, opts ...Option) (*Server, error) {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	s := &Server{
		engine: engine,
		config: cfg,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.MaxRequestBodySize > 0 {
		s.engine.Use(s.maxRequestBodySize())
	}
	return s, nil
}

func (s *Server) maxRequestBodySize() gin.HandlerFunc {
	limit := s.config.MaxRequestBodySize
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// Use adds global middleware. It also applies to the fallback handler.
func (s *Server) Use(middleware ...gin.HandlerFunc) {
	s.engine.Use(middleware...)
}

// Engine returns the gin engine for route registration.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Fallback handles every request that matches no registered route.
func (s *Server) Fallback(handler gin.HandlerFunc) {
	s.engine.NoRoute(handler)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// Start binds the configured address and serves in the background. Bind
// errors are returned; later serve errors are logged.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Address, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadTimeout:       s.config.ReadTimeout.Duration(),
		ReadHeaderTimeout: s.config.ReadTimeout.Duration(),
		WriteTimeout:      s.config.WriteTimeout.Duration(),
		IdleTimeout:       s.config.IdleTimeout.Duration(),
	}
	s.listener = ln
	s.running = true
	s.done = make(chan struct{})

	s.logger.Info("starting HTTP server",
		observability.String("address", ln.Addr().String()),
		observability.Duration("read_timeout", s.config.ReadTimeout.Duration()),
		observability.Duration("write_timeout", s.config.WriteTimeout.Duration()),
	)

	go s.serve(s.httpServer, ln, s.done)
	return nil
}

func (s *Server) serve(srv *http.Server, ln net.Listener, done chan struct{}) {
	defer close(done)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("HTTP server error", observability.Error(err))
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	srv, done := s.httpServer, s.done
	s.mu.Unlock()

	s.logger.Info("stopping HTTP server")

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	<-done

	s.logger.Info("HTTP server stopped")
	return nil
}
