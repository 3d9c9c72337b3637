package repository

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/GoPolymarket/logreplay/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var recordSeq int64
var recordSeqMu sync.Mutex

func newRecord(method, path string, status int, duration int64, ts time.Time) *model.AccessLog {
	recordSeqMu.Lock()
	recordSeq++
	rid := fmt.Sprintf("req%013d", recordSeq)
	recordSeqMu.Unlock()

	rec := &model.AccessLog{
		Timestamp:      ts.UTC().Truncate(time.Millisecond),
		RequestID:      rid,
		Method:         method,
		Path:           path,
		QueryString:    "?q=1",
		RequestHeaders: `{"Accept":"application/json"}`,
		RequestBody:    `{"a":1}`,
		ResponseBody:   `{"ok":true}`,
		Level:          model.LevelInfo,
		Logger:         "ApiAccessLog",
		ClientIP:       "203.0.113.5",
		UserAgent:      "contract-test",
	}
	if status > 0 {
		rec.StatusCode = &status
		rec.Level = model.LevelForStatus(&status)
	}
	if duration >= 0 {
		rec.Duration = &duration
	}
	return rec
}

func setClock(s AccessLogStore, now func() time.Time) {
	switch st := s.(type) {
	case *MemoryAccessLogStore:
		st.now = now
	case *SQLAccessLogStore:
		st.now = now
	case *RedisAccessLogStore:
		st.now = now
	}
}

func insertAll(t *testing.T, s AccessLogStore, recs ...*model.AccessLog) {
	t.Helper()
	for _, r := range recs {
		require.NoError(t, s.Insert(context.Background(), r))
		require.NotZero(t, r.ID)
	}
}

func ids(logs []*model.AccessLog) []int64 {
	out := make([]int64, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.ID)
	}
	return out
}

// runAccessLogStoreContract checks the behaviour every backend must share.
func runAccessLogStoreContract(t *testing.T, newStore func(t *testing.T) AccessLogStore) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("initialize is idempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Initialize(ctx))
		require.NoError(t, s.Initialize(ctx))
	})

	t.Run("insert then read back", func(t *testing.T) {
		s := newStore(t)
		rec := newRecord("GET", "/api/orders/5", 200, 12, now)
		userID := "42"
		rec.UserID = &userID
		insertAll(t, s, rec)

		got, err := s.GetByID(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.True(t, rec.Timestamp.Equal(got.Timestamp), "timestamp %v != %v", rec.Timestamp, got.Timestamp)
		assert.Equal(t, rec.RequestID, got.RequestID)
		assert.Equal(t, "GET", got.Method)
		assert.Equal(t, "/api/orders/5", got.Path)
		assert.Equal(t, rec.QueryString, got.QueryString)
		assert.Equal(t, rec.RequestHeaders, got.RequestHeaders)
		assert.Equal(t, rec.RequestBody, got.RequestBody)
		assert.Equal(t, rec.ResponseBody, got.ResponseBody)
		require.NotNil(t, got.StatusCode)
		assert.Equal(t, 200, *got.StatusCode)
		require.NotNil(t, got.Duration)
		assert.Equal(t, int64(12), *got.Duration)
		require.NotNil(t, got.UserID)
		assert.Equal(t, "42", *got.UserID)
		assert.Equal(t, rec.ClientIP, got.ClientIP)

		page, err := s.Query(ctx, model.LogQuery{Method: "get", Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Contains(t, ids(page.Logs), rec.ID)

		stats, err := s.GetStatistics(ctx, nil, nil)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, stats.TotalRequests, int64(1))
		require.NotEmpty(t, stats.StatusCodes)
		assert.Equal(t, 200, *stats.StatusCodes[0].StatusCode)
		assert.Equal(t, int64(1), stats.StatusCodes[0].Count)
	})

	t.Run("null status and duration survive", func(t *testing.T) {
		s := newStore(t)
		rec := newRecord("POST", "/api/panic", 0, -1, now)
		rec.Level = model.LevelError
		rec.Exception = "boom"
		insertAll(t, s, rec)

		got, err := s.GetByID(ctx, rec.ID)
		require.NoError(t, err)
		assert.Nil(t, got.StatusCode)
		assert.Nil(t, got.Duration)
		assert.Nil(t, got.UserID)
		assert.Equal(t, "boom", got.Exception)
	})

	t.Run("missing id", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetByID(ctx, 999999)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("query returns everything newest first", func(t *testing.T) {
		s := newStore(t)
		var recs []*model.AccessLog
		for i := 0; i < 7; i++ {
			recs = append(recs, newRecord("GET", fmt.Sprintf("/api/items/%d", i), 200, int64(i), now.Add(time.Duration(i)*time.Second)))
		}
		insertAll(t, s, recs...)

		page, err := s.Query(ctx, model.LogQuery{Page: 1, PageSize: 50})
		require.NoError(t, err)
		assert.Equal(t, int64(7), page.TotalCount)
		want := make([]int64, 0, len(recs))
		for i := len(recs) - 1; i >= 0; i-- {
			want = append(want, recs[i].ID)
		}
		assert.Equal(t, want, ids(page.Logs))
		for i := 1; i < len(want); i++ {
			assert.Greater(t, want[i-1], want[i])
		}

		page, err = s.Query(ctx, model.LogQuery{Page: 2, PageSize: 3})
		require.NoError(t, err)
		assert.Equal(t, want[3:6], ids(page.Logs))
		assert.Equal(t, 2, page.Page)
		assert.Equal(t, 3, page.PageSize)
		assert.Equal(t, 3, page.TotalPages)
		assert.Equal(t, int64(7), page.TotalCount)

		page, err = s.Query(ctx, model.LogQuery{Page: 1, PageSize: 0})
		require.NoError(t, err)
		assert.Empty(t, page.Logs)
		assert.Equal(t, int64(7), page.TotalCount)
		assert.Equal(t, 0, page.TotalPages)

		page, err = s.Query(ctx, model.LogQuery{Page: 9, PageSize: 3})
		require.NoError(t, err)
		assert.Empty(t, page.Logs)
		assert.Equal(t, 9, page.Page)
	})

	t.Run("filters", func(t *testing.T) {
		s := newStore(t)
		a := newRecord("GET", "/api/Orders/1", 200, 5, now.Add(-2*time.Hour))
		b := newRecord("POST", "/api/orders", 201, 7, now.Add(-1*time.Hour))
		c := newRecord("GET", "/api/users/100%", 404, 9, now)
		d := newRecord("DELETE", "/api/users_x", 500, 11, now.Add(time.Hour))
		insertAll(t, s, a, b, c, d)

		query := func(q model.LogQuery) []int64 {
			q.Page, q.PageSize = 1, 100
			page, err := s.Query(ctx, q)
			require.NoError(t, err)
			assert.Equal(t, int64(len(page.Logs)), page.TotalCount)
			return ids(page.Logs)
		}

		assert.Equal(t, []int64{c.ID, a.ID}, query(model.LogQuery{Method: "get"}))
		assert.Equal(t, []int64{b.ID, a.ID}, query(model.LogQuery{Path: "orders"}))
		assert.Equal(t, []int64{c.ID}, query(model.LogQuery{Path: "100%"}))
		assert.Equal(t, []int64{d.ID}, query(model.LogQuery{Path: "users_"}))
		status := 404
		assert.Equal(t, []int64{c.ID}, query(model.LogQuery{StatusCode: &status}))

		start, end := b.Timestamp, c.Timestamp
		assert.Equal(t, []int64{c.ID, b.ID}, query(model.LogQuery{StartDate: &start, EndDate: &end}))
		assert.Equal(t, []int64{c.ID}, query(model.LogQuery{Method: "GET", StartDate: &start}))
	})

	t.Run("method filter ignores stored case", func(t *testing.T) {
		s := newStore(t)
		lower := newRecord("get", "/api/lower", 200, 1, now)
		mixed := newRecord("Post", "/api/mixed", 201, 1, now)
		insertAll(t, s, lower, mixed)

		for _, method := range []string{"GET", "get", "Get"} {
			page, err := s.Query(ctx, model.LogQuery{Method: method, Page: 1, PageSize: 10})
			require.NoError(t, err)
			assert.Equal(t, int64(1), page.TotalCount, method)
			assert.Equal(t, []int64{lower.ID}, ids(page.Logs), method)
		}
		page, err := s.Query(ctx, model.LogQuery{Method: "POST", Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, []int64{mixed.ID}, ids(page.Logs))
	})

	t.Run("huge page is empty", func(t *testing.T) {
		s := newStore(t)
		rec := newRecord("GET", "/api/x", 200, 1, now)
		insertAll(t, s, rec)

		for _, q := range []model.LogQuery{
			{Page: 1 << 62, PageSize: 20},
			{Page: 1 << 62, PageSize: 20, Method: "GET"},
			{Page: math.MaxInt, PageSize: 1000, Path: "/api"},
		} {
			page, err := s.Query(ctx, q)
			require.NoError(t, err)
			assert.Empty(t, page.Logs)
			assert.Equal(t, int64(1), page.TotalCount)
			assert.Equal(t, q.Page, page.Page)
		}
	})

	t.Run("statistics", func(t *testing.T) {
		s := newStore(t)
		insertAll(t, s,
			newRecord("GET", "/a", 200, 1, now.Add(-3*time.Hour)),
			newRecord("GET", "/b", 200, 2, now.Add(-2*time.Hour)),
			newRecord("GET", "/c", 500, 2, now.Add(-1*time.Hour)),
			newRecord("GET", "/d", 404, -1, now),
		)

		stats, err := s.GetStatistics(ctx, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(4), stats.TotalRequests)
		assert.InDelta(t, 1.67, stats.AverageDuration, 1e-9)
		require.Len(t, stats.StatusCodes, 3)
		assert.Equal(t, 200, *stats.StatusCodes[0].StatusCode)
		assert.Equal(t, int64(2), stats.StatusCodes[0].Count)

		start := now.Add(-90 * time.Minute)
		stats, err = s.GetStatistics(ctx, &start, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.TotalRequests)
		assert.InDelta(t, 2.0, stats.AverageDuration, 1e-9)

		empty := newStore(t)
		stats, err = empty.GetStatistics(ctx, nil, nil)
		require.NoError(t, err)
		assert.Zero(t, stats.TotalRequests)
		assert.Zero(t, stats.AverageDuration)
		assert.Empty(t, stats.StatusCodes)
	})

	t.Run("duplicate request id is ignored", func(t *testing.T) {
		s := newStore(t)
		first := newRecord("GET", "/api/x", 200, 1, now)
		insertAll(t, s, first)
		again := newRecord("GET", "/api/x", 200, 1, now)
		again.RequestID = first.RequestID
		require.NoError(t, s.Insert(ctx, again))

		page, err := s.Query(ctx, model.LogQuery{Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(1), page.TotalCount)
	})

	t.Run("purge older than retention", func(t *testing.T) {
		s := newStore(t)
		old := newRecord("GET", "/old", 200, 1, now.AddDate(0, 0, -10))
		recent := newRecord("GET", "/recent", 200, 1, now.AddDate(0, 0, -1))
		fresh := newRecord("GET", "/fresh", 200, 1, now.Add(time.Minute))
		insertAll(t, s, old, recent, fresh)

		removed, err := s.PurgeOlderThan(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
		_, err = s.GetByID(ctx, old.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		removed, err = s.PurgeOlderThan(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)

		page, err := s.Query(ctx, model.LogQuery{Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, []int64{fresh.ID}, ids(page.Logs))
	})

	t.Run("purge keeps rows inserted after it began", func(t *testing.T) {
		s := newStore(t)
		stale := newRecord("GET", "/stale", 200, 1, now.Add(-time.Hour))
		insertAll(t, s, stale)

		// The clock is read after the purge has taken its snapshot; a row that
		// lands at that moment carries an old timestamp but must survive.
		late := newRecord("GET", "/late", 200, 1, now.Add(-2*time.Hour))
		setClock(s, func() time.Time {
			require.NoError(t, s.Insert(context.Background(), late))
			return now
		})

		removed, err := s.PurgeOlderThan(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
		got, err := s.GetByID(ctx, late.ID)
		require.NoError(t, err)
		assert.Equal(t, "/late", got.Path)
	})

	t.Run("concurrent inserts and purge", func(t *testing.T) {
		s := newStore(t)
		insertAll(t, s, newRecord("GET", "/expired", 200, 1, now.AddDate(0, 0, -30)))

		const writers = 8
		const perWriter = 10
		var wg sync.WaitGroup
		errs := make(chan error, writers*perWriter+1)
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < perWriter; i++ {
					rec := newRecord("POST", fmt.Sprintf("/api/w%d/%d", w, i), 201, 3, time.Now().Add(time.Hour))
					if err := s.Insert(ctx, rec); err != nil {
						errs <- err
					}
				}
			}(w)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.PurgeOlderThan(ctx, 7); err != nil {
				errs <- err
			}
		}()
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		page, err := s.Query(ctx, model.LogQuery{Page: 1, PageSize: 1000})
		require.NoError(t, err)
		assert.Equal(t, int64(writers*perWriter), page.TotalCount)
		seen := map[int64]bool{}
		for _, l := range page.Logs {
			assert.False(t, seen[l.ID], "duplicate id %d", l.ID)
			seen[l.ID] = true
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		s := newStore(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.Error(t, s.Insert(cctx, newRecord("GET", "/x", 200, 1, now)))
		_, err := s.Query(cctx, model.LogQuery{Page: 1, PageSize: 10})
		assert.Error(t, err)

		page, err := s.Query(ctx, model.LogQuery{Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Zero(t, page.TotalCount)
	})
}
