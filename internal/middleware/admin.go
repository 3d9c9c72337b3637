package middleware

import (
	"github.com/GoPolymarket/logreplay/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

// RequireRole must run after AuthMiddleware.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		claims := ClaimsFrom(c)
		if claims == nil {
			c.Error(apperrors.NewUnauthorized())
			c.Abort()
			return
		}
		if !allowed[claims.Role] {
			c.Error(apperrors.NewForbidden("insufficient role"))
			c.Abort()
			return
		}
		c.Next()
	}
}
