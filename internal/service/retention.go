package service

import (
	"context"
	"time"

	"github.com/GoPolymarket/logreplay/internal/config"
	"github.com/GoPolymarket/logreplay/internal/pkg/logger"
	"github.com/robfig/cron/v3"
)

const purgeTimeout = 10 * time.Minute

type Purger interface {
	Purge(ctx context.Context, retentionDays int) (int64, error)
}

// RetentionJob purges records older than the configured window on a cron schedule.
type RetentionJob struct {
	purger   Purger
	days     int
	schedule string
	cron     *cron.Cron
}

func NewRetentionJob(purger Purger, cfg *config.RetentionConfig) *RetentionJob {
	return &RetentionJob{purger: purger, days: cfg.Days, schedule: cfg.Schedule}
}

// Enabled reports whether a schedule and a positive window are configured.
func (j *RetentionJob) Enabled() bool {
	return j.days > 0 && j.schedule != ""
}

// Start registers the purge. It is a no-op when retention is disabled.
func (j *RetentionJob) Start(ctx context.Context) error {
	if !j.Enabled() {
		logger.Info("retention purge disabled", "days", j.days, "schedule", j.schedule)
		return nil
	}

	// SkipIfStillRunning keeps a slow purge from overlapping the next tick.
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(j.schedule, func() { j.RunOnce(ctx) }); err != nil {
		return err
	}
	j.cron = c
	c.Start()
	logger.Info("retention purge scheduled", "days", j.days, "schedule", j.schedule)
	return nil
}

// RunOnce performs a single purge and returns the number of removed records.
func (j *RetentionJob) RunOnce(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, purgeTimeout)
	defer cancel()
	removed, err := j.purger.Purge(ctx, j.days)
	if err != nil {
		logger.LogError(ctx, err, "retention purge failed", "days", j.days)
		return 0
	}
	return removed
}

// Stop waits for a running purge to finish.
func (j *RetentionJob) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
}
