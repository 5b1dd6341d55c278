package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradepilot/backend/internal/contracts"
	"github.com/tradepilot/backend/internal/events"
	"github.com/tradepilot/backend/internal/scorer"
	"github.com/tradepilot/backend/internal/store"
	"github.com/tradepilot/backend/pkg/logger"
)

// scriptedScorer returns canned scores per symbol. Symbols in the block
// set hang until the context deadline.
type scriptedScorer struct {
	scores map[string]contracts.Score
	block  map[string]bool
	fail   map[string]bool
}

func (s *scriptedScorer) Score(ctx context.Context, symbol, hint string) (contracts.Score, error) {
	if s.block[symbol] {
		<-ctx.Done()
		return contracts.Score{}, ctx.Err()
	}
	if s.fail[symbol] {
		return contracts.Score{}, errors.New("model unavailable")
	}
	sc, ok := s.scores[symbol]
	if !ok {
		return contracts.Score{}, errors.New("unknown symbol")
	}
	return sc, nil
}

type staticPolicy struct {
	policy contracts.SelectionPolicy
}

func (p *staticPolicy) Policy() contracts.SelectionPolicy { return p.policy }

// steppingPolicy hands out a different policy on every call, so a test
// can tell how often a cycle consults the provider.
type steppingPolicy struct {
	mu       sync.Mutex
	calls    int
	policies []contracts.SelectionPolicy
}

func (p *steppingPolicy) Policy() contracts.SelectionPolicy {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.calls
	p.calls++
	if idx >= len(p.policies) {
		idx = len(p.policies) - 1
	}
	return p.policies[idx]
}

func (p *steppingPolicy) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type noQuotes struct{}

func (noQuotes) Quotes(ctx context.Context, symbols []string) map[string]contracts.Quote {
	return map[string]contracts.Quote{}
}

func longScore(symbol string, confidence, entry float64) contracts.Score {
	return contracts.Score{
		Symbol:     symbol,
		Direction:  contracts.DirectionLong,
		Confidence: confidence,
		Entry:      entry,
		Stop:       entry * 0.995,
		Target:     entry * 1.01,
		Strategy:   "trend_follow",
	}
}

func testPolicy() contracts.SelectionPolicy {
	return contracts.SelectionPolicy{
		MinConfidence:          70,
		MaxSelections:          2,
		MaxConcurrentPositions: 5,
		SymbolCooldown:         10 * time.Minute,
	}
}

func newTestGenerator(sc contracts.Scorer, mem *store.Memory, policy contracts.SelectionPolicy) *Generator {
	adapter := scorer.NewAdapter(sc, true)
	return NewGenerator(adapter, mem, mem, noQuotes{}, &staticPolicy{policy: policy}, events.NewBus(), logger.NewNop())
}

func TestRunCycleSelectsTopByConfidence(t *testing.T) {
	sc := &scriptedScorer{
		scores: map[string]contracts.Score{
			"EURUSD": longScore("EURUSD", 85, 1.0850),
			"GBPUSD": longScore("GBPUSD", 90, 1.2650),
			"USDJPY": longScore("USDJPY", 62, 149.50),
		},
		block: map[string]bool{"XAUUSD": true},
	}
	mem := store.NewMemory()
	g := newTestGenerator(sc, mem, testPolicy())

	result, err := g.RunCycle(context.Background(), CycleParams{
		Universe:       []string{"EURUSD", "GBPUSD", "USDJPY", "XAUUSD"},
		ScoringTimeout: 50 * time.Millisecond,
		MaxWorkers:     4,
		Grace:          time.Minute,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Scored)
	assert.Equal(t, 1, result.TimedOut)
	assert.Zero(t, result.Failed)

	require.Len(t, result.Selected, 2)
	assert.Equal(t, "GBPUSD", result.Selected[0].Symbol)
	assert.Equal(t, "EURUSD", result.Selected[1].Symbol)
	for _, sig := range result.Selected {
		assert.Equal(t, contracts.StatusSelected, sig.Status)
		assert.True(t, sig.Synthetic)
	}

	// The timed-out symbol leaves a rejected signal with the timeout
	// reason, so every cycle is fully accounted for.
	rejected, err := mem.SignalsByStatus(context.Background(), contracts.StatusRejected)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, "XAUUSD", rejected[0].Symbol)
	assert.Equal(t, contracts.ReasonScoringTimeout, rejected[0].Reason)

	// USDJPY scored below the gate and stays Generated.
	generated, err := mem.SignalsByStatus(context.Background(), contracts.StatusGenerated)
	require.NoError(t, err)
	require.Len(t, generated, 1)
	assert.Equal(t, "USDJPY", generated[0].Symbol)
}

func TestRunCycleScoringFailureIsIsolated(t *testing.T) {
	sc := &scriptedScorer{
		scores: map[string]contracts.Score{
			"EURUSD": longScore("EURUSD", 80, 1.0850),
		},
		fail: map[string]bool{"GBPUSD": true},
	}
	mem := store.NewMemory()
	g := newTestGenerator(sc, mem, testPolicy())

	result, err := g.RunCycle(context.Background(), CycleParams{
		Universe:       []string{"EURUSD", "GBPUSD"},
		ScoringTimeout: time.Second,
		MaxWorkers:     2,
		Grace:          time.Minute,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Scored)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Selected, 1)
	assert.Equal(t, "EURUSD", result.Selected[0].Symbol)
}

func TestRunCycleHonorsSymbolCooldown(t *testing.T) {
	sc := &scriptedScorer{
		scores: map[string]contracts.Score{
			"EURUSD": longScore("EURUSD", 95, 1.0850),
			"GBPUSD": longScore("GBPUSD", 75, 1.2650),
		},
	}
	mem := store.NewMemory()
	policy := testPolicy()
	policy.MaxSelections = 1
	g := newTestGenerator(sc, mem, policy)

	params := CycleParams{
		Universe:       []string{"EURUSD", "GBPUSD"},
		ScoringTimeout: time.Second,
		MaxWorkers:     2,
		Grace:          time.Hour,
	}

	first, err := g.RunCycle(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, first.Selected, 1)
	assert.Equal(t, "EURUSD", first.Selected[0].Symbol)

	// EURUSD is in cooldown; the weaker symbol wins the second cycle.
	second, err := g.RunCycle(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, second.Selected, 1)
	assert.Equal(t, "GBPUSD", second.Selected[0].Symbol)
}

func TestRunCycleSnapshotsPolicyOnce(t *testing.T) {
	sc := &scriptedScorer{
		scores: map[string]contracts.Score{
			"EURUSD": longScore("EURUSD", 85, 1.0850),
		},
	}
	mem := store.NewMemory()

	loose := testPolicy()
	strict := testPolicy()
	strict.MinConfidence = 90

	provider := &steppingPolicy{policies: []contracts.SelectionPolicy{loose, strict}}
	g := NewGenerator(scorer.NewAdapter(sc, true), mem, mem, noQuotes{}, provider, events.NewBus(), logger.NewNop())

	params := CycleParams{
		Universe:       []string{"EURUSD"},
		ScoringTimeout: time.Second,
		MaxWorkers:     1,
		Grace:          time.Minute,
	}

	// The cycle reads the policy exactly once, at the start; the stricter
	// policy the provider switches to is invisible until the next cycle.
	first, err := g.RunCycle(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, first.Selected, 1)
	assert.Equal(t, 1, provider.callCount())

	second, err := g.RunCycle(context.Background(), params)
	require.NoError(t, err)
	assert.Empty(t, second.Selected)
	assert.Equal(t, 2, provider.callCount())
}

func TestRunCycleRespectsConcurrentPositionCap(t *testing.T) {
	sc := &scriptedScorer{
		scores: map[string]contracts.Score{
			"EURUSD": longScore("EURUSD", 95, 1.0850),
		},
	}
	mem := store.NewMemory()
	policy := testPolicy()
	policy.MaxConcurrentPositions = 2
	g := newTestGenerator(sc, mem, policy)

	for i := 0; i < 2; i++ {
		require.NoError(t, mem.SaveRecord(context.Background(), &contracts.ExecutionRecord{
			ID:       uuid.NewString(),
			SignalID: uuid.NewString(),
			Ticket:   int64(100 + i),
			Symbol:   "USDJPY",
			OpenedAt: time.Now(),
		}))
	}

	result, err := g.RunCycle(context.Background(), CycleParams{
		Universe:       []string{"EURUSD"},
		ScoringTimeout: time.Second,
		MaxWorkers:     1,
		Grace:          time.Minute,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Selected)
}

func TestRunCycleExpiresStaleSignals(t *testing.T) {
	sc := &scriptedScorer{
		scores: map[string]contracts.Score{
			"EURUSD": longScore("EURUSD", 80, 1.0850),
		},
	}
	mem := store.NewMemory()
	g := newTestGenerator(sc, mem, testPolicy())

	stale := &contracts.Signal{
		ID:          uuid.NewString(),
		Symbol:      "GBPUSD",
		Status:      contracts.StatusGenerated,
		GeneratedAt: time.Now().Add(-time.Hour),
		ExpiresAt:   time.Now().Add(-30 * time.Minute),
	}
	require.NoError(t, mem.SaveSignal(context.Background(), stale))

	result, err := g.RunCycle(context.Background(), CycleParams{
		Universe:       []string{"EURUSD"},
		ScoringTimeout: time.Second,
		MaxWorkers:     1,
		Grace:          time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Expired)

	got, err := mem.GetSignal(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusExpired, got.Status)
}

func TestRunCycleCancelledContext(t *testing.T) {
	sc := &scriptedScorer{block: map[string]bool{"EURUSD": true}}
	mem := store.NewMemory()
	g := newTestGenerator(sc, mem, testPolicy())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.RunCycle(ctx, CycleParams{
		Universe:       []string{"EURUSD"},
		ScoringTimeout: time.Second,
		MaxWorkers:     1,
		Grace:          time.Minute,
	})
	assert.ErrorIs(t, err, context.Canceled)
}
