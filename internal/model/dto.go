package model

import (
	"math"
	"time"
)

// LogQuery filters and pages a log listing. Zero values mean "no filter".
type LogQuery struct {
	Method     string
	Path       string
	StatusCode *int
	StartDate  *time.Time
	EndDate    *time.Time
	Page       int
	PageSize   int
}

// Offset is the number of rows skipped for the requested page. It saturates
// at math.MaxInt, which every store treats as past the end.
func (q LogQuery) Offset() int {
	if q.Page < 1 || q.PageSize <= 0 {
		return 0
	}
	if q.Page-1 > math.MaxInt/q.PageSize {
		return math.MaxInt
	}
	return (q.Page - 1) * q.PageSize
}

type LogPage struct {
	Logs       []*AccessLog `json:"logs"`
	TotalCount int64        `json:"totalCount"`
	Page       int          `json:"page"`
	PageSize   int          `json:"pageSize"`
	TotalPages int          `json:"totalPages"`
}

// NewLogPage fills the envelope, reflecting page and pageSize back unchanged.
func NewLogPage(logs []*AccessLog, total int64, q LogQuery) *LogPage {
	if logs == nil {
		logs = []*AccessLog{}
	}
	return &LogPage{
		Logs:       logs,
		TotalCount: total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: TotalPages(total, q.PageSize),
	}
}

func TotalPages(total int64, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}

// LogSummary is the listing view of a record; bodies and headers are only
// returned by the detail endpoint.
type LogSummary struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"requestId"`
	Method      string    `json:"method"`
	Path        string    `json:"path"`
	QueryString string    `json:"queryString"`
	StatusCode  *int      `json:"statusCode"`
	Duration    *int64    `json:"duration"`
	Level       string    `json:"level"`
	ClientIP    string    `json:"clientIpAddress"`
	UserID      *string   `json:"userId"`
}

type LogSummaryPage struct {
	Logs       []LogSummary `json:"logs"`
	TotalCount int64        `json:"totalCount"`
	Page       int          `json:"page"`
	PageSize   int          `json:"pageSize"`
	TotalPages int          `json:"totalPages"`
}

func (p *LogPage) Summaries() *LogSummaryPage {
	out := &LogSummaryPage{
		Logs:       make([]LogSummary, 0, len(p.Logs)),
		TotalCount: p.TotalCount,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: p.TotalPages,
	}
	for _, l := range p.Logs {
		out.Logs = append(out.Logs, LogSummary{
			ID:          l.ID,
			Timestamp:   l.Timestamp,
			RequestID:   l.RequestID,
			Method:      l.Method,
			Path:        l.Path,
			QueryString: l.QueryString,
			StatusCode:  l.StatusCode,
			Duration:    l.Duration,
			Level:       l.Level,
			ClientIP:    l.ClientIP,
			UserID:      l.UserID,
		})
	}
	return out
}

type PurgeResult struct {
	DeletedCount  int64 `json:"deletedCount"`
	RetentionDays int   `json:"retentionDays"`
}

type StatusCodeCount struct {
	StatusCode *int  `json:"statusCode"`
	Count      int64 `json:"count"`
}

type LogStatistics struct {
	TotalRequests   int64             `json:"totalRequests"`
	AverageDuration float64           `json:"averageDuration"`
	StatusCodes     []StatusCodeCount `json:"statusCodeStats"`
}

type ReplayRequest struct {
	BaseURL             string `json:"baseUrl"`
	AuthorizationHeader string `json:"authorizationHeader"`
}

type ReplayedRequest struct {
	Method    string            `json:"method"`
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers"`
	Body      string            `json:"body,omitempty"`
	Truncated bool              `json:"bodyTruncated,omitempty"`
}

type ReplayedResponse struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	DurationMs int64             `json:"duration"`
}

type ReplayResult struct {
	OriginalLogID int64            `json:"originalLogId"`
	ReplayedAt    time.Time        `json:"replayedAt"`
	Request       ReplayedRequest  `json:"request"`
	Response      ReplayedResponse `json:"response"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Admin     AdminInfo `json:"admin"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

type TokenStatus struct {
	IsValid  bool   `json:"isValid"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
}
