package service

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/GoPolymarket/logreplay/internal/config"
	"github.com/GoPolymarket/logreplay/internal/model"
	"github.com/GoPolymarket/logreplay/internal/pkg/logger"
	"github.com/GoPolymarket/logreplay/internal/pkg/metrics"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/http/httpguts"
)

const (
	HeaderReplayRequest = "X-Replay-Request"
	HeaderReplayLogID   = "X-Replay-LogId"

	defaultReplayContentType = "application/json"
)

var (
	ErrReplayFailed   = errors.New("replay request failed")
	ErrInvalidBaseURL = errors.New("baseUrl must be an absolute http or https URL")
)

// skippedReplayHeaders are hop-by-hop or rewritten on every replay.
var skippedReplayHeaders = map[string]bool{
	"host":              true,
	"content-length":    true,
	"transfer-encoding": true,
	"connection":        true,
	"keep-alive":        true,
	"upgrade":           true,
	"user-agent":        true,
	"content-type":      true, // re-derived when a body is attached
}

var bodyMethods = map[string]bool{
	http.MethodPost:  true,
	http.MethodPut:   true,
	http.MethodPatch: true,
}

type LogReader interface {
	GetByID(ctx context.Context, id int64) (*model.AccessLog, error)
}

// ReplayService re-issues a stored request against a live target.
type ReplayService struct {
	logs    LogReader
	client  *resty.Client
	product string
	now     func() time.Time
}

func NewReplayService(logs LogReader, cfg *config.ReplayConfig) *ReplayService {
	client := resty.New().
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second).
		SetTLSClientConfig(&tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for self-signed test targets
		}).
		SetRetryCount(0)

	product := cfg.UserAgentProduct
	if product == "" {
		product = "LogReplay/1.0"
	}
	return &ReplayService{logs: logs, client: client, product: product, now: time.Now}
}

// Replay rebuilds record id against opts.BaseURL, or fallbackBase when empty.
// Transport failures are returned wrapped in ErrReplayFailed.
func (s *ReplayService) Replay(ctx context.Context, id int64, opts model.ReplayRequest, fallbackBase string) (*model.ReplayResult, error) {
	rec, err := s.logs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		base = fallbackBase
	}
	target, err := replayTarget(base, rec)
	if err != nil {
		return nil, err
	}

	replayedAt := s.now().UTC()
	method := strings.ToUpper(rec.Method)
	headers := s.buildHeaders(rec, opts.AuthorizationHeader, replayedAt)

	req := s.client.R().SetContext(ctx)
	req.Header = headers

	summary := model.ReplayedRequest{
		Method:  method,
		URL:     target,
		Headers: flattenHeaders(headers),
	}
	if bodyMethods[method] && rec.RequestBody != "" {
		contentType := replayContentType(rec.RequestHeaders)
		req.Header.Set("Content-Type", contentType)
		req.SetBody(rec.RequestBody)
		summary.Headers["Content-Type"] = contentType
		summary.Body = rec.RequestBody
		summary.Truncated = strings.HasSuffix(rec.RequestBody, model.TruncatedMarker)
	}

	start := time.Now()
	resp, err := req.Execute(method, target)
	elapsed := time.Since(start)
	metrics.ReplayDuration.Observe(elapsed.Seconds())
	if err != nil {
		metrics.ReplayRequests.WithLabelValues("failed").Inc()
		logger.Warn("replay dispatch failed", "log_id", id, "url", target, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrReplayFailed, err)
	}
	metrics.ReplayRequests.WithLabelValues("completed").Inc()
	logger.Info("request replayed", "log_id", id, "url", target, "status", resp.StatusCode(), "duration_ms", elapsed.Milliseconds())

	return &model.ReplayResult{
		OriginalLogID: rec.ID,
		ReplayedAt:    replayedAt,
		Request:       summary,
		Response: model.ReplayedResponse{
			StatusCode: resp.StatusCode(),
			Headers:    flattenHeaders(resp.Header()),
			Body:       string(resp.Body()),
			DurationMs: elapsed.Milliseconds(),
		},
	}, nil
}

func replayTarget(base string, rec *model.AccessLog) (string, error) {
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidBaseURL
	}
	query := rec.QueryString
	if query != "" && !strings.HasPrefix(query, "?") {
		query = "?" + query
	}
	return strings.TrimRight(base, "/") + rec.Path + query, nil
}

func (s *ReplayService) buildHeaders(rec *model.AccessLog, authOverride string, replayedAt time.Time) http.Header {
	headers := http.Header{}
	for name, value := range parseStoredHeaders(rec.RequestHeaders, rec.ID) {
		lower := strings.ToLower(name)
		switch {
		case skippedReplayHeaders[lower], strings.HasPrefix(lower, "proxy-"):
			continue
		case lower == "authorization" && authOverride != "":
			continue
		case value == model.MaskedValue:
			continue
		case !httpguts.ValidHeaderFieldName(name) || !httpguts.ValidHeaderFieldValue(value):
			logger.Debug("replay: skipping malformed header", "log_id", rec.ID, "header", name)
			continue
		}
		headers.Set(name, value)
	}

	if authOverride != "" {
		headers.Set("Authorization", authOverride)
	}
	headers.Set("User-Agent", fmt.Sprintf("%s (LogId:%d; ReplayedAt:%s)",
		s.product, rec.ID, replayedAt.Format("2006-01-02T15:04:05Z")))
	headers.Set(HeaderReplayRequest, "true")
	headers.Set(HeaderReplayLogID, strconv.FormatInt(rec.ID, 10))
	return headers
}

// parseStoredHeaders decodes each entry on its own so one bad value does not
// discard the rest.
func parseStoredHeaders(raw string, logID int64) map[string]string {
	out := map[string]string{}
	if strings.TrimSpace(raw) == "" {
		return out
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		logger.Warn("replay: stored headers are not a JSON object", "log_id", logID, "error", err)
		return out
	}
	for name, v := range entries {
		var value string
		if err := json.Unmarshal(v, &value); err != nil {
			continue
		}
		out[name] = value
	}
	return out
}

func replayContentType(rawHeaders string) string {
	for name, value := range parseStoredHeaders(rawHeaders, 0) {
		if !strings.EqualFold(name, "Content-Type") {
			continue
		}
		if mediaType, _, err := mime.ParseMediaType(value); err == nil {
			return mediaType
		}
	}
	return defaultReplayContentType
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}
