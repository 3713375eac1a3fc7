// internal/interfaces/http/middleware/rate_limit.go
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-backend/internal/infrastructure/database/redis"
)

// WindowCounter counts hits per key in a fixed window
type WindowCounter interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

var _ WindowCounter = (*redis.Client)(nil)

// RateLimit limits each client IP to limit requests per minute. Requests are
// let through when the counter store is unavailable.
func RateLimit(limit int, counter WindowCounter, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		now := time.Now()
		window := now.Truncate(time.Minute)
		key := fmt.Sprintf("rate_limit:%s:%d", c.ClientIP(), window.Unix())

		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		current, err := counter.IncrementWindow(ctx, key, time.Minute)
		if err != nil {
			logger.WithError(err).Warn("Rate limit store unavailable")
			c.Next()
			return
		}

		remaining := int64(limit) - current
		if remaining < 0 {
			remaining = 0
		}
		reset := window.Add(time.Minute)

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if current > int64(limit) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": int(reset.Sub(now).Seconds()) + 1,
			})
			return
		}

		c.Next()
	}
}
