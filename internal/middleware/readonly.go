package middleware

import (
	"net/http"

	"github.com/GoPolymarket/logreplay/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

// ReadOnlyMiddleware rejects mutating requests on the routes it guards.
func ReadOnlyMiddleware(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
		default:
			c.Error(apperrors.New(apperrors.ErrReadOnly, "read-only mode enabled", nil))
			c.Abort()
		}
	}
}
