package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/MindFlowInteractive/quest-service-sub006/internal/observability"
)

// maxCorrelationIDLength bounds IDs accepted from clients.
const maxCorrelationIDLength = 128

// CorrelationID echoes the caller's X-Correlation-ID or generates a UUID,
// and stores it in the request context for logging and the proxy.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderCorrelationID)
		if id == "" || len(id) > maxCorrelationIDLength {
			id = uuid.New().String()
		}

		c.Set(CorrelationIDKey, id)
		c.Header(HeaderCorrelationID, id)
		c.Request = c.Request.WithContext(observability.ContextWithCorrelationID(c.Request.Context(), id))

		c.Next()
	}
}

// GetCorrelationID returns the correlation ID set by CorrelationID.
func GetCorrelationID(c *gin.Context) string {
	return c.GetString(CorrelationIDKey)
}
