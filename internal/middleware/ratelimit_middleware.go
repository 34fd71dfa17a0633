package middleware

import (
	"net/http"
	"strconv"

	"skylearn-chat/internal/redis"
	"skylearn-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

// RateLimitMiddleware shields the HTTP surface. The per-sender message
// rules live in the spam detector; this limiter only caps request volume
// per caller (identity when resolved, client IP otherwise).
func RateLimitMiddleware(limiter *redis.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.ClientIP()
		if who, ok := IdentityFrom(c); ok {
			caller = who.ID
		}

		result, err := limiter.AllowRequest(c.Request.Context(), caller)
		if err != nil {
			// Redis trouble never blocks traffic.
			c.Next()
			return
		}

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse("rate limit exceeded", "RATE_LIMITED"))
			c.Abort()
			return
		}

		c.Next()
	}
}

// setRateLimitHeaders sets standard rate limit response headers
func setRateLimitHeaders(c *gin.Context, result *redis.RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(result.ResetIn.Seconds()), 10))
}
