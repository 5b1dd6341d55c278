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
	"github.com/tradepilot/backend/internal/store"
	"github.com/tradepilot/backend/pkg/logger"
)

// fakeManager is a scriptable BridgeManager for executor tests.
type fakeManager struct {
	mu        sync.Mutex
	state     contracts.ConnectionState
	balance   float64
	submits   int
	submitErr []error // consumed per call; nil entry means success
	ticket    contracts.Ticket
}

func (f *fakeManager) State() contracts.StateSnapshot {
	return contracts.StateSnapshot{State: f.state}
}

func (f *fakeManager) Account(ctx context.Context) (contracts.AccountInfo, error) {
	return contracts.AccountInfo{Balance: f.balance, Currency: "USD"}, nil
}

func (f *fakeManager) SubmitOrder(ctx context.Context, req contracts.OrderRequest) (contracts.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.submits
	f.submits++
	if idx < len(f.submitErr) && f.submitErr[idx] != nil {
		return contracts.Ticket{}, f.submitErr[idx]
	}
	return f.ticket, nil
}

func execConfig() ExecConfig {
	return ExecConfig{
		RiskPerTradePct: 2.0,
		MinLot:          0.01,
		MaxLot:          100,
		SubmitTimeout:   time.Second,
		OrderComment:    "tradepilot",
		OrderMagic:      234000,
		DemoExecution:   true,
	}
}

func selectedSignal(t *testing.T, mem *store.Memory) *contracts.Signal {
	t.Helper()
	sig := &contracts.Signal{
		ID:          uuid.NewString(),
		Symbol:      "EURUSD",
		Direction:   contracts.DirectionLong,
		Confidence:  85,
		Entry:       1.0850,
		StopLoss:    1.0800,
		TakeProfit:  1.0950,
		Strategy:    "trend_follow",
		Status:      contracts.StatusGenerated,
		Synthetic:   true,
		GeneratedAt: time.Now(),
		UpdatedAt:   time.Now(),
	}
	require.NoError(t, mem.SaveSignal(context.Background(), sig))
	sig.Status = contracts.StatusSelected
	require.NoError(t, mem.UpdateSignal(context.Background(), sig))
	return sig
}

func TestComputeLotSize(t *testing.T) {
	// 10000 * 2% / 0.0050 = 40000, clamped to the venue maximum.
	assert.Equal(t, 100.0, ComputeLotSize(10000, 2.0, 0.0050, 0.01, 100))

	// 10000 * 1% / 50 = 2.0 lots, inside the bounds.
	assert.Equal(t, 2.0, ComputeLotSize(10000, 1.0, 50, 0.01, 100))

	// Tiny account: raw size below the venue minimum clamps up.
	assert.Equal(t, 0.01, ComputeLotSize(10, 0.5, 100, 0.01, 100))

	// Fractional result floors to the 0.01 lot step.
	assert.Equal(t, 0.57, ComputeLotSize(1000, 2.0, 34.5, 0.01, 100))

	// Degenerate inputs fall back to the minimum.
	assert.Equal(t, 0.01, ComputeLotSize(10000, 2.0, 0, 0.01, 100))
	assert.Equal(t, 0.01, ComputeLotSize(0, 2.0, 0.005, 0.01, 100))
}

func TestExecuteOneSuccess(t *testing.T) {
	mem := store.NewMemory()
	fm := &fakeManager{state: contracts.ConnConnected, balance: 10000, ticket: contracts.Ticket{Number: 42, Price: 1.0851}}
	ex := NewExecutor(fm, mem, mem, events.NewBus(), logger.NewNop(), execConfig())

	sig := selectedSignal(t, mem)
	ex.ExecuteOne(context.Background(), sig)

	got, err := mem.GetSignal(context.Background(), sig.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusExecuted, got.Status)
	assert.InDelta(t, 1.0851, got.ExecutionPrice, 1e-9)

	open, err := mem.OpenRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	rec := open[0]
	assert.EqualValues(t, 42, rec.Ticket)
	assert.Equal(t, sig.ID, rec.SignalID)
	assert.Equal(t, 100.0, rec.LotSize) // clamped to MaxLot
	assert.True(t, rec.Synthetic)
	assert.Equal(t, 1, fm.submits)
}

func TestExecuteOneBridgeUnavailable(t *testing.T) {
	mem := store.NewMemory()
	fm := &fakeManager{state: contracts.ConnDegraded, balance: 10000}
	ex := NewExecutor(fm, mem, mem, events.NewBus(), logger.NewNop(), execConfig())

	sig := selectedSignal(t, mem)
	ex.ExecuteOne(context.Background(), sig)

	got, err := mem.GetSignal(context.Background(), sig.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusRejected, got.Status)
	assert.Contains(t, got.Reason, contracts.ReasonBridgeUnavailable)

	// No execution record is ever created for a rejected signal.
	open, err := mem.OpenRecords(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.Zero(t, fm.submits)
}

func TestExecuteOneSyntheticSkippedByPolicy(t *testing.T) {
	mem := store.NewMemory()
	fm := &fakeManager{state: contracts.ConnConnected, balance: 10000}
	cfg := execConfig()
	cfg.DemoExecution = false
	ex := NewExecutor(fm, mem, mem, events.NewBus(), logger.NewNop(), cfg)

	sig := selectedSignal(t, mem)
	ex.ExecuteOne(context.Background(), sig)

	got, err := mem.GetSignal(context.Background(), sig.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusRejected, got.Status)
	assert.Contains(t, got.Reason, contracts.ReasonLiveOnlyPolicy)
	assert.Zero(t, fm.submits)
}

func TestExecuteOneTransientRetrySucceeds(t *testing.T) {
	mem := store.NewMemory()
	fm := &fakeManager{
		state:     contracts.ConnConnected,
		balance:   10000,
		ticket:    contracts.Ticket{Number: 7, Price: 1.0852},
		submitErr: []error{&contracts.OrderError{Transient: true, Reason: "requote", Err: errors.New("requote")}},
	}
	ex := NewExecutor(fm, mem, mem, events.NewBus(), logger.NewNop(), execConfig())

	sig := selectedSignal(t, mem)
	ex.ExecuteOne(context.Background(), sig)

	got, err := mem.GetSignal(context.Background(), sig.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusExecuted, got.Status)
	assert.Equal(t, 2, fm.submits)
}

func TestExecuteOneTransientRetryExhausted(t *testing.T) {
	mem := store.NewMemory()
	transient := &contracts.OrderError{Transient: true, Reason: "requote", Err: errors.New("requote")}
	fm := &fakeManager{
		state:     contracts.ConnConnected,
		balance:   10000,
		submitErr: []error{transient, transient},
	}
	ex := NewExecutor(fm, mem, mem, events.NewBus(), logger.NewNop(), execConfig())

	sig := selectedSignal(t, mem)
	ex.ExecuteOne(context.Background(), sig)

	got, err := mem.GetSignal(context.Background(), sig.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusRejected, got.Status)
	assert.Contains(t, got.Reason, contracts.ReasonOrderRejected)

	// Exactly one retry: two submissions total.
	assert.Equal(t, 2, fm.submits)

	open, err := mem.OpenRecords(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestExecuteOnePermanentRejectionNoRetry(t *testing.T) {
	mem := store.NewMemory()
	fm := &fakeManager{
		state:     contracts.ConnConnected,
		balance:   10000,
		submitErr: []error{&contracts.OrderError{Transient: false, Reason: "invalid volume"}},
	}
	ex := NewExecutor(fm, mem, mem, events.NewBus(), logger.NewNop(), execConfig())

	sig := selectedSignal(t, mem)
	ex.ExecuteOne(context.Background(), sig)

	got, err := mem.GetSignal(context.Background(), sig.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusRejected, got.Status)
	assert.Equal(t, 1, fm.submits)
}

func TestExecuteBatchIsolatesFailures(t *testing.T) {
	mem := store.NewMemory()
	fm := &fakeManager{
		state:     contracts.ConnConnected,
		balance:   10000,
		ticket:    contracts.Ticket{Number: 9, Price: 1.2651},
		submitErr: []error{&contracts.OrderError{Transient: false, Reason: "market closed"}, nil},
	}
	ex := NewExecutor(fm, mem, mem, events.NewBus(), logger.NewNop(), execConfig())

	first := selectedSignal(t, mem)
	second := selectedSignal(t, mem)

	ex.ExecuteBatch(context.Background(), []*contracts.Signal{first, second})

	gotFirst, err := mem.GetSignal(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusRejected, gotFirst.Status)

	gotSecond, err := mem.GetSignal(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusExecuted, gotSecond.Status)
}
