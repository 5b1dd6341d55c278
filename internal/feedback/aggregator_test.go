package feedback

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradepilot/backend/internal/contracts"
	"github.com/tradepilot/backend/internal/store"
	"github.com/tradepilot/backend/pkg/logger"
)

func seedClosed(t *testing.T, mem *store.Memory, strategy string, pl float64) {
	t.Helper()
	now := time.Now()
	rec := &contracts.ExecutionRecord{
		ID:         uuid.NewString(),
		SignalID:   uuid.NewString(),
		Ticket:     now.UnixNano(),
		Symbol:     "EURUSD",
		Strategy:   strategy,
		LotSize:    0.1,
		Outcome:    contracts.ClassifyOutcome(pl),
		RealizedPL: pl,
		OpenedAt:   now.Add(-time.Hour),
		ClosedAt:   &now,
	}
	require.NoError(t, mem.SaveRecord(context.Background(), rec))
}

func newTestAggregator(mem *store.Memory) *Aggregator {
	return New(mem, nil, logger.NewNop(), contracts.DefaultSelectionPolicy(), DefaultOptions())
}

func TestAggregateComputesSummary(t *testing.T) {
	mem := store.NewMemory()
	// 6 wins, 3 losses, 1 breakeven.
	for i := 0; i < 6; i++ {
		seedClosed(t, mem, "trend_follow", 10)
	}
	for i := 0; i < 3; i++ {
		seedClosed(t, mem, "mean_revert", -5)
	}
	seedClosed(t, mem, "mean_revert", 0)

	agg := newTestAggregator(mem)
	summary, err := agg.Aggregate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, summary.TotalTrades)
	assert.Equal(t, 6, summary.Wins)
	assert.Equal(t, 3, summary.Losses)
	assert.Equal(t, 1, summary.Breakevens)

	// Breakevens are excluded from the win-rate denominator.
	assert.InDelta(t, 6.0/9.0, summary.WinRate, 1e-9)

	assert.InDelta(t, 60, summary.GrossProfit, 1e-9)
	assert.InDelta(t, 15, summary.GrossLoss, 1e-9)
	assert.InDelta(t, 45, summary.NetPL, 1e-9)
	assert.InDelta(t, 4.0, summary.ProfitFactor, 1e-9)

	trend := summary.ByStrategy["trend_follow"]
	assert.Equal(t, 6, trend.Trades)
	assert.Equal(t, 6, trend.Wins)
	assert.InDelta(t, 1.0, trend.WinRate, 1e-9)

	revert := summary.ByStrategy["mean_revert"]
	assert.Equal(t, 4, revert.Trades)
	assert.Zero(t, revert.Wins)
}

func TestThresholdTightensOnPoorWinRate(t *testing.T) {
	mem := store.NewMemory()
	// 3 wins, 9 losses: win rate 0.25 under the target band.
	for i := 0; i < 3; i++ {
		seedClosed(t, mem, "trend_follow", 10)
	}
	for i := 0; i < 9; i++ {
		seedClosed(t, mem, "trend_follow", -10)
	}

	agg := newTestAggregator(mem)
	before := agg.Policy().MinConfidence

	summary, err := agg.Aggregate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, before+contracts.ThresholdStep, summary.Threshold)
	assert.Equal(t, before+contracts.ThresholdStep, agg.Policy().MinConfidence)
}

func TestThresholdLoosensOnStrongWinRate(t *testing.T) {
	mem := store.NewMemory()
	for i := 0; i < 9; i++ {
		seedClosed(t, mem, "trend_follow", 10)
	}
	for i := 0; i < 1; i++ {
		seedClosed(t, mem, "trend_follow", -10)
	}

	agg := newTestAggregator(mem)
	before := agg.Policy().MinConfidence

	_, err := agg.Aggregate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before-contracts.ThresholdStep, agg.Policy().MinConfidence)
}

func TestThresholdBoundedByCeiling(t *testing.T) {
	mem := store.NewMemory()
	for i := 0; i < 12; i++ {
		seedClosed(t, mem, "trend_follow", -10)
	}

	agg := newTestAggregator(mem)

	// Repeated poor performance never pushes the gate past the ceiling.
	for i := 0; i < 30; i++ {
		_, err := agg.Aggregate(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, contracts.ConfidenceCeiling, agg.Policy().MinConfidence)
}

func TestThresholdBoundedByFloor(t *testing.T) {
	mem := store.NewMemory()
	for i := 0; i < 12; i++ {
		seedClosed(t, mem, "trend_follow", 10)
	}

	agg := newTestAggregator(mem)

	for i := 0; i < 30; i++ {
		_, err := agg.Aggregate(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, contracts.ConfidenceFloor, agg.Policy().MinConfidence)
}

func TestNoAdjustmentOnSmallSample(t *testing.T) {
	mem := store.NewMemory()
	for i := 0; i < 3; i++ {
		seedClosed(t, mem, "trend_follow", -10)
	}

	agg := newTestAggregator(mem)
	before := agg.Policy().MinConfidence

	_, err := agg.Aggregate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, agg.Policy().MinConfidence)
}

func TestNoAdjustmentInsideTargetBand(t *testing.T) {
	mem := store.NewMemory()
	// 6 wins, 4 losses: win rate 0.60 inside [0.55, 0.65].
	for i := 0; i < 6; i++ {
		seedClosed(t, mem, "trend_follow", 10)
	}
	for i := 0; i < 4; i++ {
		seedClosed(t, mem, "trend_follow", -10)
	}

	agg := newTestAggregator(mem)
	before := agg.Policy().MinConfidence

	_, err := agg.Aggregate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, agg.Policy().MinConfidence)
}

func TestSetPolicyClampsThreshold(t *testing.T) {
	agg := newTestAggregator(store.NewMemory())

	p := agg.Policy()
	p.MinConfidence = 250
	agg.SetPolicy(p)
	assert.Equal(t, contracts.ConfidenceCeiling, agg.Policy().MinConfidence)
}
