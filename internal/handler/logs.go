package handler

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/GoPolymarket/logreplay/internal/model"
	"github.com/GoPolymarket/logreplay/internal/pkg/apperrors"
	"github.com/GoPolymarket/logreplay/internal/service"
	"github.com/gin-gonic/gin"
)

const (
	defaultPage          = 1
	defaultPageSize      = 20
	maxPageSize          = 1000
	defaultRetentionDays = 90
)

type LogsHandler struct {
	logs   *service.AccessLogService
	replay *service.ReplayService
}

func NewLogsHandler(logs *service.AccessLogService, replay *service.ReplayService) *LogsHandler {
	return &LogsHandler{logs: logs, replay: replay}
}

func (h *LogsHandler) List(c *gin.Context) {
	q, err := parseLogQuery(c)
	if err != nil {
		c.Error(err)
		return
	}
	page, err := h.logs.Query(c.Request.Context(), q)
	if err != nil {
		fail(c, err)
		return
	}
	respondOK(c, page.Summaries())
}

func parseLogQuery(c *gin.Context) (model.LogQuery, error) {
	var q model.LogQuery
	var err error
	if q.Page, err = queryInt(c, "page", defaultPage); err != nil {
		return q, err
	}
	if q.PageSize, err = queryInt(c, "pageSize", defaultPageSize); err != nil {
		return q, err
	}
	if q.Page < 1 {
		q.Page = defaultPage
	}
	if q.PageSize < 1 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}

	q.Method = strings.ToUpper(strings.TrimSpace(c.Query("method")))
	q.Path = strings.TrimSpace(c.Query("path"))
	if raw := c.Query("statusCode"); raw != "" {
		status, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return q, apperrors.NewInvalidRequest("statusCode must be an integer")
		}
		q.StatusCode = &status
	}
	if q.StartDate, err = queryTime(c, "startDate"); err != nil {
		return q, err
	}
	if q.EndDate, err = queryTime(c, "endDate"); err != nil {
		return q, err
	}
	return q, nil
}

func (h *LogsHandler) Get(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.Error(err)
		return
	}
	rec, err := h.logs.GetByID(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	respondOK(c, rec)
}

func (h *LogsHandler) Stats(c *gin.Context) {
	start, err := queryTime(c, "startDate")
	if err != nil {
		c.Error(err)
		return
	}
	end, err := queryTime(c, "endDate")
	if err != nil {
		c.Error(err)
		return
	}
	stats, err := h.logs.Statistics(c.Request.Context(), start, end)
	if err != nil {
		fail(c, err)
		return
	}
	respondOK(c, stats)
}

// Replay accepts an optional JSON body; an empty body replays against this server.
func (h *LogsHandler) Replay(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.Error(err)
		return
	}
	var opts model.ReplayRequest
	if err := c.ShouldBindJSON(&opts); err != nil && !errors.Is(err, io.EOF) {
		c.Error(apperrors.NewInvalidRequest("invalid replay options"))
		return
	}

	result, err := h.replay.Replay(c.Request.Context(), id, opts, selfBaseURL(c))
	if err != nil {
		fail(c, err)
		return
	}
	respondOK(c, result)
}

func (h *LogsHandler) Purge(c *gin.Context) {
	days, err := queryInt(c, "retentionDays", defaultRetentionDays)
	if err != nil {
		c.Error(err)
		return
	}
	removed, err := h.logs.Purge(c.Request.Context(), days)
	if err != nil {
		fail(c, err)
		return
	}
	respondOK(c, model.PurgeResult{DeletedCount: removed, RetentionDays: days})
}

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewInvalidRequest("id must be a positive integer")
	}
	return id, nil
}

// selfBaseURL is the scheme and host this request reached us on.
func selfBaseURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		first, _, _ := strings.Cut(proto, ",")
		scheme = strings.ToLower(strings.TrimSpace(first))
	}
	return scheme + "://" + c.Request.Host
}
