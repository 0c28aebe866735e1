package gin

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/applyflow/telemetry/common/headers"
	"github.com/applyflow/telemetry/common/logger"
	"github.com/applyflow/telemetry/ratelimit"
)

// KeyFunc maps a request to its rate-limit bucket key.
type KeyFunc func(c *gin.Context) string

// KeyByClientIP is the default bucket key: one bucket per calling IP.
func KeyByClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// RateLimitMiddleware checks the caller's token bucket before the handler
// runs. Denials are answered as structured 429 responses with Retry-After,
// never surfaced to business logic as an error.
func RateLimitMiddleware(limiter *ratelimit.Limiter, key KeyFunc) gin.HandlerFunc {
	if key == nil {
		key = KeyByClientIP
	}
	return func(c *gin.Context) {
		bucketKey := key(c)
		decision := limiter.Allowed(bucketKey, 1)

		c.Writer.Header().Set(headers.HeaderXRateLimitLimit, fmt.Sprintf("%.0f", limiter.Capacity()))
		c.Writer.Header().Set(headers.HeaderXRateLimitRemaining, fmt.Sprintf("%.0f", decision.Remaining))

		if decision.Allowed {
			c.Next()
			return
		}

		logger.FromContext(c.Request.Context()).Warn("Rate limit exceeded",
			logger.String("key", bucketKey),
			logger.Int("retry_after_seconds", decision.RetryAfterSeconds),
		)
		c.Writer.Header().Set(headers.HeaderRetryAfter, fmt.Sprintf("%d", decision.RetryAfterSeconds))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"message":     "rate limit exceeded",
			"retry_after": decision.RetryAfterSeconds,
		})
	}
}
