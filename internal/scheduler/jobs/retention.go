package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/tradepilot/backend/internal/tracker"
	"github.com/tradepilot/backend/pkg/logger"
)

// RetentionJob archives closed execution records past the retention
// window.
type RetentionJob struct {
	tracker   *tracker.Tracker
	logger    *logger.Logger
	retention time.Duration
}

// NewRetentionJob creates the record retention job.
func NewRetentionJob(t *tracker.Tracker, log *logger.Logger, retention time.Duration) *RetentionJob {
	return &RetentionJob{
		tracker:   t,
		logger:    log,
		retention: retention,
	}
}

// Name returns the job name
func (j *RetentionJob) Name() string {
	return "record_retention"
}

// Schedule returns the cron schedule (daily at 03:10)
func (j *RetentionJob) Schedule() string {
	return "0 10 3 * * *"
}

// Run executes the archive sweep.
func (j *RetentionJob) Run(ctx context.Context) error {
	if _, err := j.tracker.ArchiveOld(ctx, j.retention); err != nil {
		return fmt.Errorf("retention sweep failed: %w", err)
	}
	return nil
}
