package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/tradepilot/backend/internal/tracker"
	"github.com/tradepilot/backend/pkg/logger"
)

// TrackingJob reconciles open positions against the venue.
type TrackingJob struct {
	tracker  *tracker.Tracker
	logger   *logger.Logger
	interval time.Duration
}

// NewTrackingJob creates the position tracking job.
func NewTrackingJob(t *tracker.Tracker, log *logger.Logger, interval time.Duration) *TrackingJob {
	return &TrackingJob{
		tracker:  t,
		logger:   log,
		interval: interval,
	}
}

// Name returns the job name
func (j *TrackingJob) Name() string {
	return "position_tracking"
}

// Schedule returns the cron schedule
func (j *TrackingJob) Schedule() string {
	return fmt.Sprintf("@every %s", j.interval)
}

// Run executes one tracking pass. A skipped pass (bridge down) is not a
// job failure.
func (j *TrackingJob) Run(ctx context.Context) error {
	result, err := j.tracker.Poll(ctx)
	if err != nil {
		// Poll errors are transient by nature; the next tick retries.
		j.logger.WithError(err).Debug("Tracking pass degraded")
		return nil
	}

	if result.Closed > 0 {
		j.logger.WithFields(map[string]interface{}{
			"open":   result.Open,
			"closed": result.Closed,
		}).Info("Tracking pass closed positions")
	}

	return nil
}
