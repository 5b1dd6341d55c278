// Package feedback aggregates realized trade outcomes and adapts the
// selection policy's confidence threshold toward the target win-rate
// band.
package feedback

import (
	"context"
	"sync"
	"time"

	"github.com/tradepilot/backend/internal/contracts"
	"github.com/tradepilot/backend/pkg/logger"
	"github.com/tradepilot/backend/pkg/redis"
)

const summaryCacheKey = "performance:summary"
const summaryCacheTTL = 5 * time.Minute

// minSampleSize is the trade count below which no threshold adjustment
// is made. Small samples produce noisy win rates.
const minSampleSize = 10

// Options configures the aggregator.
type Options struct {
	// Window is the lookback over closed trades, default 7 days.
	Window time.Duration

	// TargetWinRateLow/High bound the acceptable win-rate band. Below the
	// band the threshold tightens; above it the threshold loosens.
	TargetWinRateLow  float64
	TargetWinRateHigh float64
}

// DefaultOptions returns the standard aggregation parameters.
func DefaultOptions() Options {
	return Options{
		Window:            7 * 24 * time.Hour,
		TargetWinRateLow:  0.55,
		TargetWinRateHigh: 0.65,
	}
}

// Aggregator computes rolling performance summaries and owns the
// selection policy. It is the policy's single writer; readers take a
// snapshot through Policy() at cycle start.
type Aggregator struct {
	records contracts.ExecutionStore
	cache   *redis.Cache
	logger  *logger.Logger
	opts    Options

	mu      sync.RWMutex
	policy  contracts.SelectionPolicy
	summary *contracts.PerformanceSummary
}

// New creates an aggregator seeded with the given policy.
func New(records contracts.ExecutionStore, cache *redis.Cache, log *logger.Logger, policy contracts.SelectionPolicy, opts Options) *Aggregator {
	if opts.Window <= 0 {
		opts.Window = DefaultOptions().Window
	}
	return &Aggregator{
		records: records,
		cache:   cache,
		logger:  log.WithField("component", "feedback"),
		opts:    opts,
		policy:  policy,
	}
}

// Policy returns the current selection policy snapshot.
func (a *Aggregator) Policy() contracts.SelectionPolicy {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.policy
}

// SetPolicy replaces the policy wholesale, used by the settings API.
// The threshold is clamped to the permitted range.
func (a *Aggregator) SetPolicy(p contracts.SelectionPolicy) {
	p.MinConfidence = contracts.ClampThreshold(p.MinConfidence)
	a.mu.Lock()
	a.policy = p
	a.mu.Unlock()
}

// Summary returns the most recent performance summary, preferring the
// cache so API reads between aggregation passes stay cheap.
func (a *Aggregator) Summary(ctx context.Context) (*contracts.PerformanceSummary, error) {
	if a.cache != nil {
		var cached contracts.PerformanceSummary
		hit, err := a.cache.Get(ctx, summaryCacheKey, &cached)
		if err != nil {
			a.logger.WithError(err).Warn("Summary cache read failed")
		}
		if hit {
			return &cached, nil
		}
	}

	a.mu.RLock()
	summary := a.summary
	a.mu.RUnlock()
	if summary != nil {
		return summary, nil
	}
	return a.Aggregate(ctx)
}

// Aggregate computes the rolling summary over the lookback window and
// applies one bounded threshold adjustment.
func (a *Aggregator) Aggregate(ctx context.Context) (*contracts.PerformanceSummary, error) {
	now := time.Now()
	since := now.Add(-a.opts.Window)

	closed, err := a.records.ClosedRecordsSince(ctx, since)
	if err != nil {
		return nil, err
	}

	summary := a.compute(closed, since, now)

	a.mu.Lock()
	summary.Threshold = a.adjustThresholdLocked(summary)
	a.policy.MinConfidence = summary.Threshold
	a.summary = summary
	a.mu.Unlock()

	if a.cache != nil {
		if err := a.cache.Set(ctx, summaryCacheKey, summary, summaryCacheTTL); err != nil {
			a.logger.WithError(err).Warn("Summary cache write failed")
		}
	}

	a.logger.WithFields(map[string]interface{}{
		"trades":        summary.TotalTrades,
		"win_rate":      summary.WinRate,
		"profit_factor": summary.ProfitFactor,
		"threshold":     summary.Threshold,
	}).Info("Feedback aggregation completed")

	return summary, nil
}

// compute rolls closed records up into a summary. Win rate excludes
// breakevens from both numerator and denominator.
func (a *Aggregator) compute(closed []*contracts.ExecutionRecord, since, now time.Time) *contracts.PerformanceSummary {
	summary := &contracts.PerformanceSummary{
		WindowStart: since,
		WindowEnd:   now,
		ByStrategy:  make(map[string]contracts.StrategyStats),
		GeneratedAt: now,
	}

	for _, rec := range closed {
		summary.TotalTrades++
		summary.NetPL += rec.RealizedPL

		switch rec.Outcome {
		case contracts.OutcomeProfit:
			summary.Wins++
			summary.GrossProfit += rec.RealizedPL
		case contracts.OutcomeLoss:
			summary.Losses++
			summary.GrossLoss += -rec.RealizedPL
		default:
			summary.Breakevens++
		}

		strategy := rec.Strategy
		if strategy == "" {
			strategy = "default"
		}
		stats := summary.ByStrategy[strategy]
		stats.Trades++
		if rec.Outcome == contracts.OutcomeProfit {
			stats.Wins++
		}
		stats.NetPL += rec.RealizedPL
		summary.ByStrategy[strategy] = stats
	}

	decided := summary.Wins + summary.Losses
	if decided > 0 {
		summary.WinRate = float64(summary.Wins) / float64(decided)
	}
	if summary.GrossLoss > 0 {
		summary.ProfitFactor = summary.GrossProfit / summary.GrossLoss
	} else if summary.GrossProfit > 0 {
		summary.ProfitFactor = summary.GrossProfit
	}

	for name, stats := range summary.ByStrategy {
		if stats.Trades > 0 {
			stats.WinRate = float64(stats.Wins) / float64(stats.Trades)
		}
		summary.ByStrategy[name] = stats
	}

	return summary
}

// adjustThresholdLocked nudges the confidence threshold one bounded step
// toward the target win-rate band. Caller holds a.mu.
func (a *Aggregator) adjustThresholdLocked(summary *contracts.PerformanceSummary) float64 {
	current := a.policy.MinConfidence
	decided := summary.Wins + summary.Losses
	if decided < minSampleSize {
		return current
	}

	switch {
	case summary.WinRate < a.opts.TargetWinRateLow:
		// Losing more than acceptable: demand higher conviction.
		return contracts.ClampThreshold(current + contracts.ThresholdStep)
	case summary.WinRate > a.opts.TargetWinRateHigh:
		// Winning comfortably: loosen the gate to capture more trades.
		return contracts.ClampThreshold(current - contracts.ThresholdStep)
	default:
		return current
	}
}
