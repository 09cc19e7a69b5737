package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/MindFlowInteractive/quest-service-sub006/internal/auth"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/observability"
)

// Identity resolves the caller identity and stores it in the request
// context. It never rejects: bad tokens make the caller anonymous.
func Identity(authn *auth.Authenticator, logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := authn.Identify(c.Request)
		if err != nil && !errors.Is(err, auth.ErrNoToken) {
			logger.WithContext(c.Request.Context()).Debug("treating caller as anonymous",
				observability.String("client_ip", c.ClientIP()),
				observability.Error(err),
			)
		}

		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}
