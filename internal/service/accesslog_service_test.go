package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/GoPolymarket/logreplay/internal/model"
	"github.com/GoPolymarket/logreplay/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedStore blocks every Insert until release is closed.
type gatedStore struct {
	*repository.MemoryAccessLogStore
	release chan struct{}
	fail    bool
}

func (g *gatedStore) Insert(ctx context.Context, rec *model.AccessLog) error {
	<-g.release
	if g.fail {
		return errors.New("disk full")
	}
	return g.MemoryAccessLogStore.Insert(ctx, rec)
}

func sampleLog(i int) *model.AccessLog {
	status := 200
	return &model.AccessLog{
		Timestamp:      time.Now().UTC(),
		RequestID:      fmt.Sprintf("req-%04d", i),
		Method:         "GET",
		Path:           fmt.Sprintf("/api/items/%d", i),
		RequestHeaders: "{}",
		StatusCode:     &status,
		Level:          model.LevelInfo,
		Logger:         "ApiAccessLog",
	}
}

func TestAccessLogServicePersistsAsync(t *testing.T) {
	store := repository.NewMemoryAccessLogStore(100)
	tail := NewTailHub()
	feed, leave := tail.Subscribe()
	defer leave()

	svc := NewAccessLogService(store, tail, 10, 2)
	for i := 0; i < 5; i++ {
		require.True(t, svc.Submit(sampleLog(i)))
	}
	svc.Close()

	page, err := svc.Query(context.Background(), model.LogQuery{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 5, page.TotalCount)

	var tailed model.AccessLog
	require.NoError(t, json.Unmarshal(<-feed, &tailed))
	assert.NotZero(t, tailed.ID)

	assert.False(t, svc.Submit(sampleLog(99)), "closed service accepts nothing")
	svc.Close()
}

func TestAccessLogServiceSkipsTailForDuplicates(t *testing.T) {
	store := repository.NewMemoryAccessLogStore(100)
	tail := NewTailHub()
	feed, leave := tail.Subscribe()
	defer leave()

	svc := NewAccessLogService(store, tail, 10, 1)
	require.True(t, svc.Submit(sampleLog(1)))
	require.True(t, svc.Submit(sampleLog(1)))
	svc.Close()

	require.Len(t, feed, 1)
	var tailed model.AccessLog
	require.NoError(t, json.Unmarshal(<-feed, &tailed))
	assert.NotZero(t, tailed.ID)
}

func TestAccessLogServiceDropsWhenFull(t *testing.T) {
	store := &gatedStore{MemoryAccessLogStore: repository.NewMemoryAccessLogStore(100), release: make(chan struct{})}
	svc := NewAccessLogService(store, nil, 1, 1)

	// one record held by the worker, one in the queue, the rest dropped
	require.True(t, svc.Submit(sampleLog(0)))
	require.Eventually(t, func() bool { return len(svc.queue) == 0 }, time.Second, time.Millisecond)
	require.True(t, svc.Submit(sampleLog(1)))
	assert.False(t, svc.Submit(sampleLog(2)))

	close(store.release)
	svc.Close()

	page, err := store.Query(context.Background(), model.LogQuery{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.TotalCount)
}

func TestAccessLogServiceSurvivesStoreErrors(t *testing.T) {
	store := &gatedStore{MemoryAccessLogStore: repository.NewMemoryAccessLogStore(100), release: make(chan struct{}), fail: true}
	close(store.release)
	svc := NewAccessLogService(store, nil, 10, 1)
	for i := 0; i < 3; i++ {
		svc.Submit(sampleLog(i))
	}
	svc.Close()

	page, err := store.Query(context.Background(), model.LogQuery{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Zero(t, page.TotalCount)
}

func TestAccessLogServicePurge(t *testing.T) {
	store := repository.NewMemoryAccessLogStore(100)
	old := sampleLog(1)
	old.Timestamp = time.Now().UTC().AddDate(0, 0, -30)
	require.NoError(t, store.Insert(context.Background(), old))
	require.NoError(t, store.Insert(context.Background(), sampleLog(2)))

	svc := NewAccessLogService(store, nil, 10, 1)
	defer svc.Close()

	_, err := svc.Purge(context.Background(), -1)
	assert.ErrorIs(t, err, ErrInvalidRetention)

	removed, err := svc.Purge(context.Background(), 7)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	_, err = svc.GetByID(context.Background(), old.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
