package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/MindFlowInteractive/quest-service-sub006/internal/observability"
)

// Recovery turns panics in later handlers into a 500 JSON response.
func Recovery(logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			logger.WithContext(c.Request.Context()).Error("panic recovered",
				observability.Any("error", rec),
				observability.String("method", c.Request.Method),
				observability.String("path", c.Request.URL.Path),
				observability.String("client_ip", c.ClientIP()),
				observability.String("stack", string(debug.Stack())),
			)

			if span := GetSpan(c); span != nil {
				span.RecordError(fmt.Errorf("panic: %v", rec))
			}

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":   "Internal Server Error",
				"message": "An unexpected error occurred",
			})
		}()

		c.Next()
	}
}

// GetSpan returns the server span stored by Tracing.
func GetSpan(c *gin.Context) trace.Span {
	if v, ok := c.Get(SpanKey); ok {
		if span, ok := v.(trace.Span); ok {
			return span
		}
	}
	return nil
}
