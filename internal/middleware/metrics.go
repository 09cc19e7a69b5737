package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MindFlowInteractive/quest-service-sub006/internal/observability"
)

// Metrics records request counts, latency and in-flight requests.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.IncActiveRequests()
		defer m.DecActiveRequests()

		c.Next()

		m.RecordRequest(c.Request.Method, c.GetString(ServiceKey), c.Writer.Status(), time.Since(start))
	}
}
