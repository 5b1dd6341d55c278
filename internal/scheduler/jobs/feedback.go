package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/tradepilot/backend/internal/feedback"
	"github.com/tradepilot/backend/pkg/logger"
)

// FeedbackJob runs the performance aggregation and policy adjustment.
type FeedbackJob struct {
	aggregator *feedback.Aggregator
	logger     *logger.Logger
	interval   time.Duration
}

// NewFeedbackJob creates the feedback aggregation job.
func NewFeedbackJob(a *feedback.Aggregator, log *logger.Logger, interval time.Duration) *FeedbackJob {
	return &FeedbackJob{
		aggregator: a,
		logger:     log,
		interval:   interval,
	}
}

// Name returns the job name
func (j *FeedbackJob) Name() string {
	return "feedback_aggregation"
}

// Schedule returns the cron schedule
func (j *FeedbackJob) Schedule() string {
	return fmt.Sprintf("@every %s", j.interval)
}

// Run executes one aggregation pass.
func (j *FeedbackJob) Run(ctx context.Context) error {
	if _, err := j.aggregator.Aggregate(ctx); err != nil {
		return fmt.Errorf("feedback aggregation failed: %w", err)
	}
	return nil
}
