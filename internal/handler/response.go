package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/GoPolymarket/logreplay/internal/pkg/apperrors"
	"github.com/GoPolymarket/logreplay/internal/repository"
	"github.com/GoPolymarket/logreplay/internal/service"
	"github.com/gin-gonic/gin"
)

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, envelope{Success: true, Data: data})
}

func respondMessage(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, envelope{Success: true, Message: msg})
}

// fail translates service and repository errors into the AppError taxonomy.
func fail(c *gin.Context, err error) {
	c.Error(toAppError(err))
}

func toAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.New(apperrors.ErrNotFound, "resource not found", err)
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.New(apperrors.ErrConflict, "resource already exists", err)
	case errors.Is(err, service.ErrInvalidCredentials):
		return apperrors.New(apperrors.ErrAuthFailed, err.Error(), nil)
	case errors.Is(err, service.ErrInvalidToken):
		return apperrors.NewUnauthorized()
	case errors.Is(err, service.ErrPasswordTooShort),
		errors.Is(err, service.ErrWrongPassword),
		errors.Is(err, service.ErrInvalidAccount),
		errors.Is(err, service.ErrInvalidBaseURL),
		errors.Is(err, service.ErrInvalidRetention):
		return apperrors.New(apperrors.ErrInvalidRequest, err.Error(), err)
	case errors.Is(err, service.ErrReplayFailed):
		return apperrors.New(apperrors.ErrReplayFailed, err.Error(), err)
	default:
		return apperrors.New(apperrors.ErrInternal, "internal server error", err)
	}
}

func parseTime(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time format %q", raw)
}

func queryTime(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := parseTime(raw)
	if err != nil {
		return nil, apperrors.NewInvalidRequest(fmt.Sprintf("%s: %v", key, err))
	}
	return &t, nil
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewInvalidRequest(fmt.Sprintf("%s must be an integer", key))
	}
	return v, nil
}
