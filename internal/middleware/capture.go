package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/GoPolymarket/logreplay/internal/config"
	"github.com/GoPolymarket/logreplay/internal/model"
	"github.com/GoPolymarket/logreplay/internal/pkg/clientip"
	"github.com/GoPolymarket/logreplay/internal/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ContextRequestIDKey = "logreplay.request_id"
	// ContextUserIDKey may be set by host handlers to attribute an exchange.
	ContextUserIDKey = "logreplay.user_id"
)

// Sink accepts finished records without blocking.
type Sink interface {
	Submit(rec *model.AccessLog) bool
}

type capturePolicy struct {
	cfg       config.CaptureConfig
	include   []string
	exclude   []string
	sensitive map[string]bool
}

func newCapturePolicy(cfg *config.CaptureConfig) *capturePolicy {
	p := &capturePolicy{cfg: *cfg, sensitive: make(map[string]bool, len(cfg.SensitiveHeaders))}
	for _, prefix := range cfg.IncludePaths {
		if prefix = strings.ToLower(strings.TrimSpace(prefix)); prefix != "" {
			p.include = append(p.include, prefix)
		}
	}
	for _, prefix := range cfg.ExcludedPaths {
		if prefix = strings.ToLower(strings.TrimSpace(prefix)); prefix != "" {
			p.exclude = append(p.exclude, prefix)
		}
	}
	for _, name := range cfg.SensitiveHeaders {
		p.sensitive[strings.ToLower(strings.TrimSpace(name))] = true
	}
	if p.cfg.MaxBufferBytes <= 0 {
		p.cfg.MaxBufferBytes = 10 << 20
	}
	return p
}

// matches applies exclusion first; an empty include list admits every path.
func (p *capturePolicy) matches(path string) bool {
	path = strings.ToLower(path)
	for _, prefix := range p.exclude {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	if len(p.include) == 0 {
		return true
	}
	for _, prefix := range p.include {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Capture records every matching exchange and hands it to sink. It must run
// inside gin.Recovery and outside ErrorHandler so rendered errors are captured.
func Capture(cfg *config.CaptureConfig, sink Sink) gin.HandlerFunc {
	policy := newCapturePolicy(cfg)
	return func(c *gin.Context) {
		if !policy.cfg.Enabled || !policy.matches(c.Request.URL.Path) {
			c.Next()
			return
		}

		start := time.Now()
		requestID := newRequestID()
		c.Set(ContextRequestIDKey, requestID)

		reqBody, reqComplete := policy.bufferRequestBody(c.Request)
		rec := &model.AccessLog{
			Timestamp:      start.UTC().Truncate(time.Millisecond),
			RequestID:      requestID,
			Method:         c.Request.Method,
			Path:           c.Request.URL.Path,
			RequestHeaders: policy.headersJSON(c.Request),
			Logger:         policy.cfg.LoggerName,
			ClientIP:       clientip.FromRequest(c.Request),
			UserAgent:      truncateRunes(c.Request.UserAgent(), model.MaxUserAgentLength),
		}
		if c.Request.URL.RawQuery != "" {
			rec.QueryString = "?" + c.Request.URL.RawQuery
		}
		if reqComplete {
			rec.RequestBody = capBody(reqBody, policy.cfg.MaxRequestBodySize)
		}

		base := c.Writer
		cw := newCaptureWriter(base, policy.cfg.MaxBufferBytes)
		c.Writer = cw

		defer func() {
			r := recover()
			if r == nil {
				return
			}
			c.Writer = base
			rec.Exception = fmt.Sprint(r)
			policy.complete(c, rec, nil, nil, start, sink)
			panic(r)
		}()

		c.Next()

		c.Writer = base
		cw.finish()
		status := cw.Status()
		policy.complete(c, rec, &status, cw.recordedBody(), start, sink)
	}
}

func (p *capturePolicy) complete(c *gin.Context, rec *model.AccessLog, status *int, respBody []byte, start time.Time, sink Sink) {
	duration := time.Since(start).Milliseconds()
	rec.Duration = &duration
	rec.StatusCode = status
	rec.Level = model.LevelForStatus(status)
	rec.ResponseBody = capBody(respBody, p.cfg.MaxResponseBodySize)
	rec.UserID = userIDFrom(c)

	logStatus := 0
	if status != nil {
		logStatus = *status
	}
	logger.Info("access",
		"request_id", rec.RequestID,
		"method", rec.Method,
		"path", rec.Path,
		"status", logStatus,
		"duration_ms", duration,
		"logger", rec.Logger,
	)
	sink.Submit(rec)
}

// bufferRequestBody reads up to the buffer budget and leaves the body
// re-readable for downstream handlers. complete is false when the body was
// larger than the budget or could not be read.
func (p *capturePolicy) bufferRequestBody(r *http.Request) (body []byte, complete bool) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, true
	}
	orig := r.Body
	prefix, err := io.ReadAll(io.LimitReader(orig, p.cfg.MaxBufferBytes+1))
	if err != nil || int64(len(prefix)) > p.cfg.MaxBufferBytes {
		r.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(prefix), orig), Closer: orig}
		return nil, false
	}
	r.Body = readCloser{Reader: bytes.NewReader(prefix), Closer: orig}
	return prefix, true
}

type readCloser struct {
	io.Reader
	io.Closer
}

func (p *capturePolicy) headersJSON(r *http.Request) string {
	if !p.cfg.LogRequestHeaders {
		return "{}"
	}
	headers := make(map[string]string, len(r.Header)+1)
	if r.Host != "" {
		headers["Host"] = r.Host
	}
	for name, values := range r.Header {
		if p.sensitive[strings.ToLower(name)] {
			headers[name] = model.MaskedValue
			continue
		}
		headers[name] = strings.Join(values, ", ")
	}
	if p.sensitive["host"] {
		if _, ok := headers["Host"]; ok {
			headers["Host"] = model.MaskedValue
		}
	}
	out, err := json.Marshal(headers)
	if err != nil {
		return "{}"
	}
	return string(out)
}

func userIDFrom(c *gin.Context) *string {
	if id := c.GetString(ContextUserIDKey); id != "" {
		return &id
	}
	if claims := ClaimsFrom(c); claims != nil && claims.Subject != "" {
		id := claims.Subject
		return &id
	}
	return nil
}

// capBody sanitizes b to UTF-8 and cuts it to limit characters plus the marker.
func capBody(b []byte, limit int) string {
	if len(b) == 0 {
		return ""
	}
	s := strings.ToValidUTF8(string(b), "\uFFFD")
	if limit < 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	return truncateRunes(s, limit) + model.TruncatedMarker
}

func truncateRunes(s string, limit int) string {
	if limit < 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

func newRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
