package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradepilot/backend/internal/contracts"
)

func newSignal(symbol string) *contracts.Signal {
	now := time.Now()
	return &contracts.Signal{
		ID:          uuid.NewString(),
		Symbol:      symbol,
		Direction:   contracts.DirectionLong,
		Confidence:  80,
		Entry:       1.1,
		StopLoss:    1.09,
		TakeProfit:  1.12,
		Status:      contracts.StatusGenerated,
		GeneratedAt: now,
		ExpiresAt:   now.Add(time.Minute),
		UpdatedAt:   now,
	}
}

func TestSignalRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	sig := newSignal("EURUSD")
	require.NoError(t, m.SaveSignal(ctx, sig))

	got, err := m.GetSignal(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, sig.Symbol, got.Symbol)

	// The store hands out copies, never its own state.
	got.Symbol = "MUTATED"
	again, err := m.GetSignal(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", again.Symbol)
}

func TestSaveSignalRejectsDuplicate(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	sig := newSignal("EURUSD")
	require.NoError(t, m.SaveSignal(ctx, sig))
	assert.Error(t, m.SaveSignal(ctx, sig))
}

func TestUpdateSignalEnforcesLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	sig := newSignal("EURUSD")
	require.NoError(t, m.SaveSignal(ctx, sig))

	// Legal forward step.
	sig.Status = contracts.StatusSelected
	require.NoError(t, m.UpdateSignal(ctx, sig))

	// Skipping Submitted is illegal.
	illegal := *sig
	illegal.Status = contracts.StatusExecuted
	assert.Error(t, m.UpdateSignal(ctx, &illegal))

	// Rejection is allowed from any live state.
	sig.Status = contracts.StatusRejected
	require.NoError(t, m.UpdateSignal(ctx, sig))

	// Terminal states are frozen.
	sig.Status = contracts.StatusSelected
	assert.Error(t, m.UpdateSignal(ctx, sig))
}

func TestLastSelectedAt(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	last, err := m.LastSelectedAt(ctx, "EURUSD")
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	sig := newSignal("EURUSD")
	require.NoError(t, m.SaveSignal(ctx, sig))
	sig.Status = contracts.StatusSelected
	require.NoError(t, m.UpdateSignal(ctx, sig))

	last, err = m.LastSelectedAt(ctx, "EURUSD")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), last, time.Second)

	// Later lifecycle transitions must not move the selection time, or
	// the cooldown would restart every time a position closes.
	for _, status := range []contracts.SignalStatus{contracts.StatusSubmitted, contracts.StatusExecuted} {
		sig.Status = status
		require.NoError(t, m.UpdateSignal(ctx, sig))
	}
	after, err := m.LastSelectedAt(ctx, "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, last, after)
}

func TestExpireStale(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	stale := newSignal("EURUSD")
	stale.ExpiresAt = time.Now().Add(-time.Minute)
	fresh := newSignal("GBPUSD")
	fresh.ExpiresAt = time.Now().Add(time.Hour)

	// Selected signals are exempt even when past expiry.
	selected := newSignal("USDJPY")
	selected.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, m.SaveSignal(ctx, stale))
	require.NoError(t, m.SaveSignal(ctx, fresh))
	require.NoError(t, m.SaveSignal(ctx, selected))
	selected.Status = contracts.StatusSelected
	require.NoError(t, m.UpdateSignal(ctx, selected))

	n, err := m.ExpireStale(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := m.GetSignal(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusExpired, got.Status)
	assert.Equal(t, contracts.ReasonNotSelected, got.Reason)

	got, err = m.GetSignal(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusGenerated, got.Status)
}

func TestRecordLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	rec := &contracts.ExecutionRecord{
		ID:       uuid.NewString(),
		SignalID: uuid.NewString(),
		Ticket:   42,
		Symbol:   "EURUSD",
		OpenedAt: time.Now(),
	}
	require.NoError(t, m.SaveRecord(ctx, rec))

	open, err := m.OpenRecords(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)

	now := time.Now()
	rec.Outcome = contracts.OutcomeProfit
	rec.RealizedPL = 12.5
	rec.ClosedAt = &now
	require.NoError(t, m.UpdateRecord(ctx, rec))

	open, err = m.OpenRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	closed, err := m.ClosedRecordsSince(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, contracts.OutcomeProfit, closed[0].Outcome)
}

func TestArchiveBeforeKeepsRecords(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	oldClose := time.Now().Add(-48 * time.Hour)
	recent := time.Now().Add(-time.Hour)

	older := &contracts.ExecutionRecord{ID: uuid.NewString(), Ticket: 1, Symbol: "EURUSD", ClosedAt: &oldClose, OpenedAt: oldClose.Add(-time.Hour)}
	newer := &contracts.ExecutionRecord{ID: uuid.NewString(), Ticket: 2, Symbol: "GBPUSD", ClosedAt: &recent, OpenedAt: recent.Add(-time.Hour)}
	require.NoError(t, m.SaveRecord(ctx, older))
	require.NoError(t, m.SaveRecord(ctx, newer))

	n, err := m.ArchiveBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Archiving is idempotent.
	n, err = m.ArchiveBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	// Both records remain visible to window queries.
	closed, err := m.ClosedRecordsSince(ctx, time.Now().Add(-72*time.Hour))
	require.NoError(t, err)
	assert.Len(t, closed, 2)
}
