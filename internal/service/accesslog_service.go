package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GoPolymarket/logreplay/internal/model"
	"github.com/GoPolymarket/logreplay/internal/pkg/logger"
	"github.com/GoPolymarket/logreplay/internal/pkg/metrics"
	"github.com/GoPolymarket/logreplay/internal/repository"
)

const insertTimeout = 5 * time.Second

var ErrInvalidRetention = errors.New("retention days must not be negative")

// AccessLogService persists captured records off the request path and
// serves the read side of the store.
type AccessLogService struct {
	store repository.AccessLogStore
	tail  *TailHub

	queue   chan *model.AccessLog
	errs    chan error
	workers sync.WaitGroup
	sinkWG  sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewAccessLogService(store repository.AccessLogStore, tail *TailHub, queueSize, workers int) *AccessLogService {
	if queueSize <= 0 {
		queueSize = 1000
	}
	if workers <= 0 {
		workers = 1
	}
	svc := &AccessLogService{
		store: store,
		tail:  tail,
		queue: make(chan *model.AccessLog, queueSize),
		errs:  make(chan error, queueSize),
	}

	svc.sinkWG.Add(1)
	go svc.errorSink()
	for i := 0; i < workers; i++ {
		svc.workers.Add(1)
		go svc.processLogs()
	}
	return svc
}

// Submit enqueues rec without blocking. A full queue drops the record.
func (s *AccessLogService) Submit(rec *model.AccessLog) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		metrics.CaptureRecords.WithLabelValues("dropped").Inc()
		return false
	}
	select {
	case s.queue <- rec:
		metrics.CaptureRecords.WithLabelValues("captured").Inc()
		return true
	default:
		metrics.CaptureRecords.WithLabelValues("dropped").Inc()
		logger.Warn("access log queue full, dropping record", "request_id", rec.RequestID, "path", rec.Path)
		return false
	}
}

func (s *AccessLogService) processLogs() {
	defer s.workers.Done()
	for rec := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
		err := s.store.Insert(ctx, rec)
		cancel()
		if err != nil {
			metrics.CaptureRecords.WithLabelValues("failed").Inc()
			s.reportError(fmt.Errorf("persist access log %s: %w", rec.RequestID, err))
			continue
		}
		// A zero ID means the store ignored a duplicate request id.
		if rec.ID == 0 {
			metrics.CaptureRecords.WithLabelValues("duplicate").Inc()
			continue
		}
		metrics.CaptureRecords.WithLabelValues("persisted").Inc()
		if s.tail != nil {
			s.tail.Publish(rec)
		}
	}
}

func (s *AccessLogService) reportError(err error) {
	select {
	case s.errs <- err:
	default:
		logger.Error("access log persistence failed", "error", err)
	}
}

func (s *AccessLogService) errorSink() {
	defer s.sinkWG.Done()
	for err := range s.errs {
		logger.Error("access log persistence failed", "error", err)
	}
}

// Close stops accepting records and drains the queue.
func (s *AccessLogService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.workers.Wait()
	close(s.errs)
	s.sinkWG.Wait()
}

func (s *AccessLogService) Query(ctx context.Context, q model.LogQuery) (*model.LogPage, error) {
	return s.store.Query(ctx, q)
}

func (s *AccessLogService) GetByID(ctx context.Context, id int64) (*model.AccessLog, error) {
	return s.store.GetByID(ctx, id)
}

func (s *AccessLogService) Statistics(ctx context.Context, start, end *time.Time) (*model.LogStatistics, error) {
	return s.store.GetStatistics(ctx, start, end)
}

func (s *AccessLogService) Purge(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays < 0 {
		return 0, ErrInvalidRetention
	}
	removed, err := s.store.PurgeOlderThan(ctx, retentionDays)
	if err != nil {
		return 0, err
	}
	metrics.PurgedRecords.Add(float64(removed))
	logger.Info("access logs purged", "retention_days", retentionDays, "removed", removed)
	return removed, nil
}
