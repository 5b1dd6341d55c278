// Package jobs contains the scheduled jobs of the automation loop.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/tradepilot/backend/internal/engine"
	"github.com/tradepilot/backend/pkg/logger"
)

// GenerationJob runs one full generation/selection/execution cycle.
type GenerationJob struct {
	generator *engine.Generator
	executor  *engine.Executor
	logger    *logger.Logger

	interval time.Duration
	params   engine.CycleParams
}

// NewGenerationJob creates the generation cycle job.
func NewGenerationJob(generator *engine.Generator, executor *engine.Executor, log *logger.Logger, interval time.Duration, params engine.CycleParams) *GenerationJob {
	return &GenerationJob{
		generator: generator,
		executor:  executor,
		logger:    log,
		interval:  interval,
		params:    params,
	}
}

// Name returns the job name
func (j *GenerationJob) Name() string {
	return "signal_generation"
}

// Schedule returns the cron schedule
func (j *GenerationJob) Schedule() string {
	return fmt.Sprintf("@every %s", j.interval)
}

// Run executes one generation cycle and hands the selected signals to
// the execution engine.
func (j *GenerationJob) Run(ctx context.Context) error {
	result, err := j.generator.RunCycle(ctx, j.params)
	if err != nil {
		return fmt.Errorf("generation cycle failed: %w", err)
	}

	if len(result.Selected) > 0 {
		j.executor.ExecuteBatch(ctx, result.Selected)
	}

	return nil
}
