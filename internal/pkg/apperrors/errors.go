package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrAuthFailed     ErrorType = "AUTH_FAILED"
	ErrForbidden      ErrorType = "FORBIDDEN"
	ErrInvalidRequest ErrorType = "INVALID_REQUEST"
	ErrInternal       ErrorType = "INTERNAL_ERROR"
	ErrNotFound       ErrorType = "NOT_FOUND"
	ErrConflict       ErrorType = "CONFLICT"
	ErrRateLimited    ErrorType = "RATE_LIMITED"
	ErrReplayFailed   ErrorType = "REPLAY_FAILED"
	ErrReadOnly       ErrorType = "READ_ONLY"
)

// AppError is the error envelope rendered by the ErrorHandler middleware.
type AppError struct {
	Success    bool      `json:"success"`
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func NewNotFound(msg string) *AppError {
	return New(ErrNotFound, msg, nil)
}

// NewUnauthorized never carries a cause so the response body stays uniform.
func NewUnauthorized() *AppError {
	return New(ErrAuthFailed, "unauthorized", nil)
}

func NewForbidden(msg string) *AppError {
	return New(ErrForbidden, msg, nil)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrAuthFailed:
		return http.StatusUnauthorized
	case ErrForbidden, ErrReadOnly:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict:
		return http.StatusConflict
	case ErrRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrAuthFailed:
		return "Sign in again to obtain a fresh token."
	case ErrForbidden:
		return "Ask an administrator for the required role."
	case ErrRateLimited:
		return "Wait a minute before retrying."
	case ErrReadOnly:
		return "Disable read-only mode to perform this action."
	case ErrReplayFailed:
		return "Check that the replay target is reachable."
	default:
		return ""
	}
}
