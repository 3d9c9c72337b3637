package middleware

import (
	"strings"

	"github.com/GoPolymarket/logreplay/internal/pkg/apperrors"
	"github.com/GoPolymarket/logreplay/internal/service"
	"github.com/gin-gonic/gin"
)

const ContextClaimsKey = "logreplay.claims"

type TokenValidator interface {
	ValidateToken(token string) (*service.AdminClaims, error)
}

// AuthMiddleware accepts "Authorization: Bearer <token>" or a token query
// parameter, which browsers need for the websocket tail.
func AuthMiddleware(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			c.Error(apperrors.NewUnauthorized())
			c.Abort()
			return
		}

		claims, err := tokens.ValidateToken(token)
		if err != nil {
			c.Error(apperrors.NewUnauthorized())
			c.Abort()
			return
		}

		c.Set(ContextClaimsKey, claims)
		c.Next()
	}
}

func BearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		if token = strings.TrimSpace(token); token != "" {
			return token
		}
	}
	return strings.TrimSpace(c.Query("token"))
}

// ClaimsFrom returns the claims stored by AuthMiddleware, or nil.
func ClaimsFrom(c *gin.Context) *service.AdminClaims {
	v, ok := c.Get(ContextClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*service.AdminClaims)
	return claims
}
