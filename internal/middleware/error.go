package middleware

import (
	"errors"

	"github.com/GoPolymarket/logreplay/internal/pkg/apperrors"
	"github.com/GoPolymarket/logreplay/internal/pkg/logger"
	"github.com/gin-gonic/gin"
)

// ErrorHandler renders the last error attached with c.Error as an AppError envelope.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			// never echo internal error text to the caller
			appErr = apperrors.New(apperrors.ErrInternal, "internal server error", err)
		}

		logFields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"code", appErr.Type,
			"client_ip", c.ClientIP(),
		}
		if rid := c.GetString(ContextRequestIDKey); rid != "" {
			logFields = append(logFields, "request_id", rid)
		}

		if appErr.HTTPStatus >= 500 {
			logger.LogError(c.Request.Context(), appErr, "request failed", logFields...)
		} else {
			logger.Warn(appErr.Message, logFields...)
		}

		// a handler that already streamed a response cannot be re-rendered
		if c.Writer.Written() {
			return
		}
		c.JSON(appErr.HTTPStatus, appErr)
	}
}
