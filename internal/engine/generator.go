// Package engine contains the generation/selection engine and the
// auto-execution engine that drive the trading automation loop.
package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tradepilot/backend/internal/contracts"
	"github.com/tradepilot/backend/internal/events"
	"github.com/tradepilot/backend/internal/scorer"
	"github.com/tradepilot/backend/pkg/logger"
)

// PolicyProvider exposes the current selection policy. Implemented by the
// feedback aggregator, which is the policy's single writer.
type PolicyProvider interface {
	Policy() contracts.SelectionPolicy
}

// QuoteProvider supplies current prices for the ranking tie-break.
// Implemented by the bridge connection manager; returns an empty map when
// the link is down.
type QuoteProvider interface {
	Quotes(ctx context.Context, symbols []string) map[string]contracts.Quote
}

// CycleParams are the per-cycle generation parameters, snapshotted from
// configuration at cycle start.
type CycleParams struct {
	Universe       []string
	StrategyHint   string
	ScoringTimeout time.Duration
	MaxWorkers     int

	// Grace is how long unselected signals stay Generated before the
	// expiry sweep turns them Expired.
	Grace time.Duration
}

// CycleResult summarizes one generation/selection cycle.
type CycleResult struct {
	Scored   int
	TimedOut int
	Failed   int
	Expired  int
	Selected []*contracts.Signal
}

// Generator runs the per-cycle fan-out scoring, ranking and top-N
// selection.
type Generator struct {
	adapter *scorer.Adapter
	signals contracts.SignalStore
	records contracts.ExecutionStore
	quotes  QuoteProvider
	policy  PolicyProvider
	bus     *events.Bus
	logger  *logger.Logger
}

// NewGenerator creates a generation engine.
func NewGenerator(adapter *scorer.Adapter, signals contracts.SignalStore, records contracts.ExecutionStore, quotes QuoteProvider, policy PolicyProvider, bus *events.Bus, log *logger.Logger) *Generator {
	return &Generator{
		adapter: adapter,
		signals: signals,
		records: records,
		quotes:  quotes,
		policy:  policy,
		bus:     bus,
		logger:  log.WithField("component", "generator"),
	}
}

type scoringOutcome struct {
	signal *contracts.Signal
	reason string // rejection reason when signal is nil
	symbol string
}

// RunCycle executes one generation/selection pass. The policy is read
// once at the start so the pass stays internally consistent; a mid-cycle
// policy update is observed only by the next cycle.
func (g *Generator) RunCycle(ctx context.Context, params CycleParams) (*CycleResult, error) {
	policy := g.policy.Policy()
	now := time.Now()
	result := &CycleResult{}

	expired, err := g.signals.ExpireStale(ctx, now)
	if err != nil {
		g.logger.WithError(err).Warn("Expiry sweep failed")
	}
	result.Expired = expired

	outcomes := g.scoreUniverse(ctx, params)

	// A cancelled cycle discards partial results instead of half-applying
	// them.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var candidates []*contracts.Signal
	for _, out := range outcomes {
		if out.signal == nil {
			rejected := &contracts.Signal{
				ID:          uuid.NewString(),
				Symbol:      out.symbol,
				Status:      contracts.StatusRejected,
				Reason:      out.reason,
				GeneratedAt: now,
				UpdatedAt:   now,
			}
			if err := g.signals.SaveSignal(ctx, rejected); err != nil {
				g.logger.WithError(err).WithField("symbol", out.symbol).Error("Failed to save rejected signal")
			}
			if out.reason == contracts.ReasonScoringTimeout {
				result.TimedOut++
			} else {
				result.Failed++
			}
			continue
		}

		if err := g.signals.SaveSignal(ctx, out.signal); err != nil {
			g.logger.WithError(err).WithField("symbol", out.symbol).Error("Failed to save signal")
			continue
		}
		result.Scored++
		candidates = append(candidates, out.signal)
	}

	selected, err := g.selectTop(ctx, candidates, policy, params)
	if err != nil {
		return result, err
	}

	for _, sig := range selected {
		from := sig.Status
		sig.Status = contracts.StatusSelected
		sig.UpdatedAt = time.Now()
		if err := g.signals.UpdateSignal(ctx, sig); err != nil {
			g.logger.WithError(err).WithField("signal", sig.ID).Error("Failed to mark signal selected")
			continue
		}
		g.bus.Publish(events.TopicSignal, events.SignalEvent{Signal: sig, From: from, At: time.Now()})
		result.Selected = append(result.Selected, sig)
	}

	g.logger.WithFields(map[string]interface{}{
		"scored":    result.Scored,
		"selected":  len(result.Selected),
		"timed_out": result.TimedOut,
		"failed":    result.Failed,
		"expired":   result.Expired,
	}).Info("Generation cycle completed")

	return result, nil
}

// scoreUniverse fans scoring out over a bounded worker pool with a
// per-symbol timeout, so one slow symbol never blocks the cycle.
func (g *Generator) scoreUniverse(ctx context.Context, params CycleParams) []scoringOutcome {
	workers := params.MaxWorkers
	if workers <= 0 {
		workers = 10
	}
	if len(params.Universe) < workers {
		workers = len(params.Universe)
	}

	symbolCh := make(chan string)
	outcomes := make([]scoringOutcome, 0, len(params.Universe))
	var mu sync.Mutex
	var wg sync.WaitGroup

	expiresAt := time.Now().Add(params.Grace)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range symbolCh {
				out := g.scoreSymbol(ctx, symbol, params.StrategyHint, params.ScoringTimeout, expiresAt)
				mu.Lock()
				outcomes = append(outcomes, out)
				mu.Unlock()
			}
		}()
	}

	for _, symbol := range params.Universe {
		select {
		case symbolCh <- symbol:
		case <-ctx.Done():
			close(symbolCh)
			wg.Wait()
			return outcomes
		}
	}
	close(symbolCh)
	wg.Wait()

	return outcomes
}

// scoreSymbol scores one symbol under its own deadline.
func (g *Generator) scoreSymbol(ctx context.Context, symbol, hint string, timeout time.Duration, expiresAt time.Time) scoringOutcome {
	symbolCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sig, err := g.adapter.Generate(symbolCtx, symbol, hint, expiresAt)
	if err != nil {
		// A cycle-wide cancellation is not a symbol timeout.
		if ctx.Err() != nil {
			return scoringOutcome{symbol: symbol, reason: contracts.ReasonScoringFailed}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			g.logger.WithField("symbol", symbol).Warn("Scoring timed out")
			return scoringOutcome{symbol: symbol, reason: contracts.ReasonScoringTimeout}
		}
		g.logger.WithError(err).WithField("symbol", symbol).Warn("Scoring failed")
		return scoringOutcome{symbol: symbol, reason: contracts.ReasonScoringFailed}
	}

	return scoringOutcome{symbol: symbol, signal: sig}
}

// selectTop ranks candidates and picks the top N permitted by the policy,
// the concurrent-position cap and the per-symbol cooldown.
func (g *Generator) selectTop(ctx context.Context, candidates []*contracts.Signal, policy contracts.SelectionPolicy, params CycleParams) ([]*contracts.Signal, error) {
	var eligible []*contracts.Signal
	for _, sig := range candidates {
		if sig.Confidence >= policy.MinConfidence {
			eligible = append(eligible, sig)
		}
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	prices := g.currentPrices(ctx, eligible)

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		// Tie-break 1: better risk/reward.
		if a.RiskReward() != b.RiskReward() {
			return a.RiskReward() > b.RiskReward()
		}
		// Tie-break 2: closest to actionable.
		return a.DistanceTo(prices[a.Symbol]) < b.DistanceTo(prices[b.Symbol])
	})

	capacity := policy.MaxSelections
	open, err := g.records.OpenRecords(ctx)
	if err != nil {
		return nil, err
	}
	if room := policy.MaxConcurrentPositions - len(open); room < capacity {
		capacity = room
	}
	if capacity <= 0 {
		g.logger.WithField("open_positions", len(open)).Info("Concurrent position cap reached, selecting nothing")
		return nil, nil
	}

	now := time.Now()
	var selected []*contracts.Signal
	seen := make(map[string]bool)

	for _, sig := range eligible {
		if len(selected) >= capacity {
			break
		}
		if seen[sig.Symbol] {
			continue
		}

		last, err := g.signals.LastSelectedAt(ctx, sig.Symbol)
		if err != nil {
			return nil, err
		}
		if !last.IsZero() && now.Sub(last) < policy.SymbolCooldown {
			g.logger.WithFields(map[string]interface{}{
				"symbol":   sig.Symbol,
				"cooldown": policy.SymbolCooldown,
			}).Debug("Symbol in cooldown, skipping")
			continue
		}

		seen[sig.Symbol] = true
		selected = append(selected, sig)
	}

	return selected, nil
}

// currentPrices fetches quotes for the candidate symbols. Missing quotes
// leave a zero price, which DistanceTo treats as "no information".
func (g *Generator) currentPrices(ctx context.Context, candidates []*contracts.Signal) map[string]float64 {
	symbols := make([]string, 0, len(candidates))
	seen := make(map[string]bool)
	for _, sig := range candidates {
		if !seen[sig.Symbol] {
			seen[sig.Symbol] = true
			symbols = append(symbols, sig.Symbol)
		}
	}

	prices := make(map[string]float64, len(symbols))
	for sym, quote := range g.quotes.Quotes(ctx, symbols) {
		prices[sym] = quote.Mid()
	}
	return prices
}
