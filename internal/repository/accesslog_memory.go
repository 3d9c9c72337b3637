package repository

import (
	"context"
	"sync"
	"time"

	"github.com/GoPolymarket/logreplay/internal/model"
)

// MemoryAccessLogStore keeps the most recent maxRecords entries in process.
// Intended for development and tests; contents are lost on restart.
type MemoryAccessLogStore struct {
	mu         sync.RWMutex
	maxRecords int
	nextID     int64
	records    []*model.AccessLog // ascending ID
	requestIDs map[string]struct{}
	now        func() time.Time
}

func NewMemoryAccessLogStore(maxRecords int) *MemoryAccessLogStore {
	if maxRecords <= 0 {
		maxRecords = 10000
	}
	return &MemoryAccessLogStore{
		maxRecords: maxRecords,
		records:    make([]*model.AccessLog, 0, 64),
		requestIDs: make(map[string]struct{}),
		now:        time.Now,
	}
}

func (s *MemoryAccessLogStore) Initialize(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryAccessLogStore) Insert(ctx context.Context, rec *model.AccessLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.RequestID != "" {
		if _, dup := s.requestIDs[rec.RequestID]; dup {
			return nil
		}
		s.requestIDs[rec.RequestID] = struct{}{}
	}
	s.nextID++
	rec.ID = s.nextID
	s.records = append(s.records, rec.Clone())

	if overflow := len(s.records) - s.maxRecords; overflow > 0 {
		for _, old := range s.records[:overflow] {
			delete(s.requestIDs, old.RequestID)
		}
		s.records = append(s.records[:0:0], s.records[overflow:]...)
	}
	return nil
}

func (s *MemoryAccessLogStore) Query(ctx context.Context, q model.LogQuery) (*model.LogPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	matched := make([]*model.AccessLog, 0)
	for i := len(s.records) - 1; i >= 0; i-- {
		if matchesQuery(s.records[i], q) {
			matched = append(matched, s.records[i])
		}
	}
	page := pageOf(matched, q)
	s.mu.RUnlock()

	return model.NewLogPage(page, int64(len(matched)), q), nil
}

func (s *MemoryAccessLogStore) GetByID(ctx context.Context, id int64) (*model.AccessLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].ID == id {
			return s.records[i].Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryAccessLogStore) GetStatistics(ctx context.Context, start, end *time.Time) (*model.LogStatistics, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acc := newStatsAccumulator()
	s.mu.RLock()
	for _, l := range s.records {
		if inRange(l.Timestamp, start, end) {
			acc.add(l)
		}
	}
	s.mu.RUnlock()
	return acc.result(), nil
}

func (s *MemoryAccessLogStore) PurgeOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	maxID := s.nextID
	s.mu.RUnlock()
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0:0]
	var removed int64
	for _, l := range s.records {
		if l.ID <= maxID && l.Timestamp.Before(cutoff) {
			delete(s.requestIDs, l.RequestID)
			removed++
			continue
		}
		kept = append(kept, l)
	}
	s.records = kept
	return removed, nil
}
