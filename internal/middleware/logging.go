package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MindFlowInteractive/quest-service-sub006/internal/observability"
)

// LoggingConfig configures request logging.
type LoggingConfig struct {
	Logger    observability.Logger
	SkipPaths []string
}

// Logging logs one line per request at a level chosen by status.
func Logging(logger observability.Logger) gin.HandlerFunc {
	return LoggingWithConfig(LoggingConfig{Logger: logger})
}

// LoggingWithConfig returns a logging middleware with custom configuration.
func LoggingWithConfig(cfg LoggingConfig) gin.HandlerFunc {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}

	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if skip[path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []observability.Field{
			observability.String("method", c.Request.Method),
			observability.String("path", path),
			observability.String("query", c.Request.URL.RawQuery),
			observability.Int("status", status),
			observability.Duration("latency", time.Since(start)),
			observability.String("client_ip", c.ClientIP()),
			observability.String("user_agent", c.Request.UserAgent()),
			observability.Int("body_size", c.Writer.Size()),
		}
		if service := c.GetString(ServiceKey); service != "" {
			fields = append(fields, observability.String("service", service))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, observability.String("errors", c.Errors.String()))
		}

		logger := cfg.Logger.WithContext(c.Request.Context())
		switch {
		case status >= 500:
			logger.Error("request completed", fields...)
		case status >= 400:
			logger.Warn("request completed", fields...)
		default:
			logger.Info("request completed", fields...)
		}
	}
}
