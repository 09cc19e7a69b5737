package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MindFlowInteractive/quest-service-sub006/internal/auth"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/observability"
	"github.com/MindFlowInteractive/quest-service-sub006/internal/ratelimit"
)

// RateLimitConfig configures the rate limit middleware.
type RateLimitConfig struct {
	Limiter   ratelimit.Limiter
	Limits    *ratelimit.Limits
	Logger    observability.Logger
	SkipPaths []string
}

// RateLimit rejects callers over their per-window budget with 429. The key is
// the caller identity set by Identity, falling back to the client IP. When
// the limiter fails the request is let through.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}

	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		if cfg.Limiter == nil || skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		id := auth.FromContext(ctx)
		key := ratelimit.IdentityKey(id, c.ClientIP())

		res, err := cfg.Limiter.Allow(ctx, key, cfg.Limits.For(id))
		if err != nil {
			cfg.Logger.WithContext(ctx).Error("rate limit check failed, allowing request",
				observability.String("key", key),
				observability.Error(err),
			)
			c.Next()
			return
		}

		c.Header(HeaderRateLimitLimit, strconv.Itoa(res.Limit))
		c.Header(HeaderRateLimitRemaining, strconv.Itoa(remainingHeader(res)))
		c.Header(HeaderRateLimitReset, strconv.FormatInt(ceilSeconds(res.ResetAfter), 10))

		if !res.Allowed {
			retryAfter := ceilSeconds(res.RetryAfter)
			c.Header(HeaderRetryAfter, strconv.FormatInt(retryAfter, 10))

			cfg.Logger.WithContext(ctx).Debug("rate limit exceeded",
				observability.String("key", key),
				observability.Int("limit", res.Limit),
			)

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"statusCode": http.StatusTooManyRequests,
				"error":      "Too Many Requests",
				"message":    "Rate limit exceeded. Try again in " + strconv.FormatInt(retryAfter, 10) + " seconds.",
			})
			return
		}

		c.Next()
	}
}

// remainingHeader is the advertised X-RateLimit-Remaining: the limit minus
// one for allowed requests and 0 for rejected ones.
func remainingHeader(res *ratelimit.Result) int {
	if !res.Allowed || res.Limit < 1 {
		return 0
	}
	return res.Limit - 1
}

// ceilSeconds rounds d up to whole seconds so clients never retry early.
func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}
