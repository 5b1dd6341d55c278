// Package scorer adapts the opaque scoring function into the core's
// signal representation. The model itself is a black box behind the
// contracts.Scorer interface.
package scorer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tradepilot/backend/internal/contracts"
)

// Adapter normalizes raw scorer output and builds Generated signals.
type Adapter struct {
	scorer    contracts.Scorer
	synthetic bool
}

// NewAdapter wraps a scorer. synthetic marks every produced signal so
// downstream policy can distinguish demo output from live output.
func NewAdapter(s contracts.Scorer, synthetic bool) *Adapter {
	return &Adapter{scorer: s, synthetic: synthetic}
}

// Generate scores one symbol and returns a Generated signal. The caller
// owns the context deadline; a deadline hit surfaces as the context
// error so the generation engine can classify it as a scoring timeout.
func (a *Adapter) Generate(ctx context.Context, symbol, strategyHint string, expiresAt time.Time) (*contracts.Signal, error) {
	raw, err := a.scorer.Score(ctx, symbol, strategyHint)
	if err != nil {
		return nil, &contracts.ScoringError{Symbol: symbol, Err: err}
	}

	norm, err := normalize(symbol, raw)
	if err != nil {
		return nil, &contracts.ScoringError{Symbol: symbol, Err: err}
	}

	now := time.Now()
	return &contracts.Signal{
		ID:          uuid.NewString(),
		Symbol:      symbol,
		Direction:   norm.Direction,
		Confidence:  norm.Confidence,
		Entry:       norm.Entry,
		StopLoss:    norm.Stop,
		TakeProfit:  norm.Target,
		Strategy:    norm.Strategy,
		Status:      contracts.StatusGenerated,
		Synthetic:   a.synthetic,
		GeneratedAt: now,
		ExpiresAt:   expiresAt,
		UpdatedAt:   now,
	}, nil
}

// normalize validates and cleans a raw score.
func normalize(symbol string, raw contracts.Score) (contracts.Score, error) {
	if raw.Direction != contracts.DirectionLong && raw.Direction != contracts.DirectionShort {
		return raw, fmt.Errorf("invalid direction %q", raw.Direction)
	}
	if raw.Entry <= 0 || raw.Stop <= 0 || raw.Target <= 0 {
		return raw, fmt.Errorf("non-positive price level (entry=%v stop=%v target=%v)", raw.Entry, raw.Stop, raw.Target)
	}

	// Stop and target must sit on the correct sides of the entry.
	if raw.Direction == contracts.DirectionLong && (raw.Stop >= raw.Entry || raw.Target <= raw.Entry) {
		return raw, fmt.Errorf("inconsistent long levels (entry=%v stop=%v target=%v)", raw.Entry, raw.Stop, raw.Target)
	}
	if raw.Direction == contracts.DirectionShort && (raw.Stop <= raw.Entry || raw.Target >= raw.Entry) {
		return raw, fmt.Errorf("inconsistent short levels (entry=%v stop=%v target=%v)", raw.Entry, raw.Stop, raw.Target)
	}

	// Clamp rather than reject out-of-range confidence: model wrappers
	// occasionally report 100.0001 style float noise.
	if raw.Confidence < 0 {
		raw.Confidence = 0
	}
	if raw.Confidence > 100 {
		raw.Confidence = 100
	}

	if raw.Strategy == "" {
		raw.Strategy = "default"
	}
	raw.Symbol = symbol
	return raw, nil
}
