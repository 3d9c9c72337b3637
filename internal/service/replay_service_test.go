package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/GoPolymarket/logreplay/internal/config"
	"github.com/GoPolymarket/logreplay/internal/model"
	"github.com/GoPolymarket/logreplay/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seenRequest struct {
	method string
	uri    string
	host   string
	header http.Header
	body   string
}

func newEchoTarget(t *testing.T) (*httptest.Server, <-chan seenRequest) {
	t.Helper()
	seen := make(chan seenRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen <- seenRequest{method: r.Method, uri: r.RequestURI, host: r.Host, header: r.Header.Clone(), body: string(body)}
		w.Header().Set("X-Target", "echo")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func storeRecord(t *testing.T, store repository.AccessLogStore, rec *model.AccessLog) int64 {
	t.Helper()
	require.NoError(t, store.Insert(context.Background(), rec))
	return rec.ID
}

func headersJSON(t *testing.T, h map[string]string) string {
	t.Helper()
	b, err := json.Marshal(h)
	require.NoError(t, err)
	return string(b)
}

func newTestReplay(store repository.AccessLogStore) *ReplayService {
	cfg := config.Default().Replay
	cfg.TimeoutSeconds = 2
	svc := NewReplayService(store, &cfg)
	svc.now = func() time.Time { return time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC) }
	return svc
}

func TestReplayRebuildsRequest(t *testing.T) {
	store := repository.NewMemoryAccessLogStore(100)
	srv, seen := newEchoTarget(t)
	id := storeRecord(t, store, &model.AccessLog{
		Timestamp:   time.Now().UTC(),
		RequestID:   "req-1",
		Method:      "post",
		Path:        "/api/orders",
		QueryString: "?dry=1",
		RequestHeaders: headersJSON(t, map[string]string{
			"Content-Type":  "application/vnd.api+json; charset=utf-8",
			"Authorization": model.MaskedValue,
			"X-Tenant":      "acme",
			"Host":          "prod.example.com",
			"Connection":    "keep-alive",
			"Proxy-Foo":     "bar",
			"User-Agent":    "curl/8",
			"X-Bad":         "line\nbreak",
		}),
		RequestBody: `{"qty":2}`,
	})

	res, err := newTestReplay(store).Replay(context.Background(), id, model.ReplayRequest{BaseURL: srv.URL + "/"}, "")
	require.NoError(t, err)

	got := <-seen
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/api/orders?dry=1", got.uri)
	assert.Equal(t, strings.TrimPrefix(srv.URL, "http://"), got.host)
	assert.Equal(t, `{"qty":2}`, got.body)
	assert.Equal(t, "application/vnd.api+json", got.header.Get("Content-Type"))
	assert.Equal(t, "acme", got.header.Get("X-Tenant"))
	assert.Empty(t, got.header.Get("Authorization"))
	assert.Empty(t, got.header.Get("Proxy-Foo"))
	assert.Empty(t, got.header.Get("X-Bad"))
	assert.Equal(t, "true", got.header.Get(HeaderReplayRequest))
	assert.Equal(t, strconv.FormatInt(id, 10), got.header.Get(HeaderReplayLogID))
	assert.Equal(t, fmt.Sprintf("LogReplay/1.0 (LogId:%d; ReplayedAt:2025-05-06T07:08:09Z)", id), got.header.Get("User-Agent"))

	assert.Equal(t, id, res.OriginalLogID)
	assert.Equal(t, srv.URL+"/api/orders?dry=1", res.Request.URL)
	assert.Equal(t, http.StatusCreated, res.Response.StatusCode)
	assert.Equal(t, `{"ok":true}`, res.Response.Body)
	assert.Equal(t, "echo", res.Response.Headers["X-Target"])
	assert.GreaterOrEqual(t, res.Response.DurationMs, int64(0))
}

func TestReplayAuthorizationOverrideAndGetBody(t *testing.T) {
	store := repository.NewMemoryAccessLogStore(100)
	srv, seen := newEchoTarget(t)
	id := storeRecord(t, store, &model.AccessLog{
		Timestamp:      time.Now().UTC(),
		RequestID:      "req-2",
		Method:         http.MethodGet,
		Path:           "/api/items",
		RequestHeaders: headersJSON(t, map[string]string{"Authorization": "Bearer stale"}),
		RequestBody:    "ignored for GET",
	})

	_, err := newTestReplay(store).Replay(context.Background(), id,
		model.ReplayRequest{AuthorizationHeader: "Bearer fresh"}, srv.URL)
	require.NoError(t, err)

	got := <-seen
	assert.Equal(t, "Bearer fresh", got.header.Get("Authorization"))
	assert.Empty(t, got.body)
}

func TestReplayDefaultContentType(t *testing.T) {
	store := repository.NewMemoryAccessLogStore(100)
	srv, seen := newEchoTarget(t)
	id := storeRecord(t, store, &model.AccessLog{
		Timestamp:      time.Now().UTC(),
		RequestID:      "req-3",
		Method:         http.MethodPut,
		Path:           "/api/items/1",
		RequestHeaders: "{}",
		RequestBody:    `{"a":1}`,
	})

	_, err := newTestReplay(store).Replay(context.Background(), id, model.ReplayRequest{BaseURL: srv.URL}, "")
	require.NoError(t, err)
	assert.Equal(t, "application/json", (<-seen).header.Get("Content-Type"))
}

func TestReplayErrors(t *testing.T) {
	store := repository.NewMemoryAccessLogStore(100)
	id := storeRecord(t, store, &model.AccessLog{
		Timestamp: time.Now().UTC(), RequestID: "req-4", Method: "GET", Path: "/api/x", RequestHeaders: "not json",
	})
	svc := newTestReplay(store)
	ctx := context.Background()

	_, err := svc.Replay(ctx, 42, model.ReplayRequest{BaseURL: "http://localhost"}, "")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	for _, base := range []string{"ftp://host", "/relative", "http://", "::"} {
		_, err = svc.Replay(ctx, id, model.ReplayRequest{BaseURL: base}, "")
		assert.ErrorIs(t, err, ErrInvalidBaseURL, base)
	}

	// nothing listens on a closed server
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()
	_, err = svc.Replay(ctx, id, model.ReplayRequest{BaseURL: dead.URL}, "")
	assert.ErrorIs(t, err, ErrReplayFailed)
}

func TestReplayKeepsResponseBodyBytes(t *testing.T) {
	const payload = "  line one\nline two\n\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, payload)
	}))
	t.Cleanup(srv.Close)

	store := repository.NewMemoryAccessLogStore(100)
	id := storeRecord(t, store, &model.AccessLog{
		Timestamp:      time.Now().UTC(),
		RequestID:      "req-raw",
		Method:         http.MethodGet,
		Path:           "/api/raw",
		RequestHeaders: "{}",
	})

	res, err := newTestReplay(store).Replay(context.Background(), id, model.ReplayRequest{BaseURL: srv.URL}, "")
	require.NoError(t, err)
	assert.Equal(t, payload, res.Response.Body)
}
