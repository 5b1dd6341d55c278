package scorer

import (
	"context"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/tradepilot/backend/internal/contracts"
)

// syntheticBasePrices anchor the generated price levels per symbol.
var syntheticBasePrices = map[string]float64{
	"EURUSD": 1.0850,
	"GBPUSD": 1.2650,
	"USDJPY": 149.50,
	"XAUUSD": 2350.00,
	"AUDUSD": 0.6550,
	"USDCHF": 0.9050,
}

var syntheticStrategies = []string{"trend_follow", "mean_revert", "breakout"}

// Synthetic is a deterministic stand-in for the scoring model, used in
// demo mode and tests. Scores are seeded per symbol and five-minute time
// bucket, so repeated calls within a bucket agree.
type Synthetic struct{}

// NewSynthetic creates a synthetic scorer.
func NewSynthetic() *Synthetic {
	return &Synthetic{}
}

// Score produces a plausible score for the symbol.
func (s *Synthetic) Score(ctx context.Context, symbol, strategyHint string) (contracts.Score, error) {
	if err := ctx.Err(); err != nil {
		return contracts.Score{}, err
	}

	bucket := time.Now().Unix() / 300
	h := fnv.New64a()
	h.Write([]byte(symbol))
	rng := rand.New(rand.NewSource(int64(h.Sum64()) ^ bucket))

	base, ok := syntheticBasePrices[symbol]
	if !ok {
		base = 1.0
	}

	direction := contracts.DirectionLong
	if rng.Float64() < 0.5 {
		direction = contracts.DirectionShort
	}

	entry := base * (1 + 0.001*(rng.Float64()*2-1))
	stopDist := entry * (0.002 + 0.003*rng.Float64())
	targetDist := stopDist * (1.2 + 1.3*rng.Float64())

	var stop, target float64
	if direction == contracts.DirectionLong {
		stop = entry - stopDist
		target = entry + targetDist
	} else {
		stop = entry + stopDist
		target = entry - targetDist
	}

	strategy := strategyHint
	if strategy == "" {
		strategy = syntheticStrategies[rng.Intn(len(syntheticStrategies))]
	}

	return contracts.Score{
		Symbol:     symbol,
		Direction:  direction,
		Confidence: 55 + 40*rng.Float64(),
		Entry:      entry,
		Stop:       stop,
		Target:     target,
		Strategy:   strategy,
	}, nil
}
