package middleware

import (
	"github.com/GoPolymarket/logreplay/internal/pkg/apperrors"
	"github.com/GoPolymarket/logreplay/internal/pkg/metrics"
	"github.com/GoPolymarket/logreplay/internal/service"
	"github.com/gin-gonic/gin"
)

// LoginRateLimit throttles by client IP. A nil limiter lets everything through.
// The key is gin's ClientIP, so forwarding headers only count when they come
// from a trusted proxy.
func LoginRateLimit(limiter *service.LoginLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			metrics.LoginAttempts.WithLabelValues("throttled").Inc()
			c.Error(apperrors.New(apperrors.ErrRateLimited, "too many login attempts", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}
