package model

import (
	"time"
)

const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

const (
	// MaskedValue replaces the value of every sensitive header.
	MaskedValue = "***MASKED***"
	// TruncatedMarker is appended to bodies cut at the capture cap.
	TruncatedMarker = "...[TRUNCATED]"
	// MaxUserAgentLength caps the stored user agent, in characters.
	MaxUserAgentLength = 500
)

// AccessLog is one captured HTTP exchange. Records are immutable once stored.
type AccessLog struct {
	ID             int64     `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	RequestID      string    `json:"requestId"`
	Method         string    `json:"method"`
	Path           string    `json:"path"`
	QueryString    string    `json:"queryString"`    // includes the leading "?" when present
	RequestHeaders string    `json:"requestHeaders"` // JSON object of header name to joined values
	RequestBody    string    `json:"requestBody"`
	StatusCode     *int      `json:"statusCode"` // nil when the handler never completed
	ResponseBody   string    `json:"responseBody"`
	Duration       *int64    `json:"duration"` // milliseconds
	Level          string    `json:"level"`
	Logger         string    `json:"logger"`
	ClientIP       string    `json:"clientIpAddress"`
	UserAgent      string    `json:"userAgent"`
	UserID         *string   `json:"userId"`
	Exception      string    `json:"exception,omitempty"`
}

// LevelForStatus derives the severity of an exchange from its status code.
func LevelForStatus(status *int) string {
	switch {
	case status == nil:
		return LevelError
	case *status >= 400:
		return LevelWarning
	default:
		return LevelInfo
	}
}

// Clone returns a deep copy so stores never share pointers with callers.
func (l *AccessLog) Clone() *AccessLog {
	if l == nil {
		return nil
	}
	cp := *l
	if l.StatusCode != nil {
		v := *l.StatusCode
		cp.StatusCode = &v
	}
	if l.Duration != nil {
		v := *l.Duration
		cp.Duration = &v
	}
	if l.UserID != nil {
		v := *l.UserID
		cp.UserID = &v
	}
	return &cp
}
