// Package tracker reconciles open execution records against the venue
// positions reported by the bridge and finalizes closed trades.
package tracker

import (
	"context"
	"time"

	"github.com/tradepilot/backend/internal/contracts"
	"github.com/tradepilot/backend/internal/events"
	"github.com/tradepilot/backend/pkg/logger"
)

// PositionSource is the slice of the connection manager the tracker
// needs.
type PositionSource interface {
	State() contracts.StateSnapshot
	PollPositions(ctx context.Context) ([]contracts.Position, error)
}

// Tracker polls venue positions on an interval and drives the
// Executed -> Monitoring -> Closed tail of the signal lifecycle.
type Tracker struct {
	source  PositionSource
	signals contracts.SignalStore
	records contracts.ExecutionStore
	bus     *events.Bus
	logger  *logger.Logger

	// lastProfit remembers the most recent observed floating P/L per
	// ticket, used as the realized P/L when the position disappears and
	// the bridge reports no close detail.
	lastProfit map[int64]float64
	lastPrice  map[int64]float64
}

// New creates a position tracker.
func New(source PositionSource, signals contracts.SignalStore, records contracts.ExecutionStore, bus *events.Bus, log *logger.Logger) *Tracker {
	return &Tracker{
		source:     source,
		signals:    signals,
		records:    records,
		bus:        bus,
		logger:     log.WithField("component", "tracker"),
		lastProfit: make(map[int64]float64),
		lastPrice:  make(map[int64]float64),
	}
}

// PollResult summarizes one reconciliation pass.
type PollResult struct {
	Open      int
	Monitored int
	Closed    int
	Skipped   bool
}

// Poll runs one reconciliation pass. When the bridge is not Connected
// the pass is skipped entirely: an unreachable bridge must never be
// mistaken for "all positions closed".
func (t *Tracker) Poll(ctx context.Context) (PollResult, error) {
	if !t.source.State().IsConnected() {
		t.logger.Debug("Bridge not connected, skipping position poll")
		return PollResult{Skipped: true}, nil
	}

	positions, err := t.source.PollPositions(ctx)
	if err != nil {
		// A failed poll is treated the same way as a disconnected bridge.
		t.logger.WithError(err).Warn("Position poll failed")
		return PollResult{Skipped: true}, &contracts.PollError{Err: err}
	}

	open, err := t.records.OpenRecords(ctx)
	if err != nil {
		return PollResult{}, err
	}

	byTicket := make(map[int64]contracts.Position, len(positions))
	for _, pos := range positions {
		byTicket[pos.Ticket] = pos
	}

	result := PollResult{Open: len(open)}
	for _, rec := range open {
		pos, present := byTicket[rec.Ticket]
		if present {
			t.lastProfit[rec.Ticket] = pos.Profit
			t.lastPrice[rec.Ticket] = pos.PriceCurrent
			if t.markMonitoring(ctx, rec) {
				result.Monitored++
			}
			continue
		}

		// The ticket disappeared from the venue listing: the position
		// closed (stop, target, or manual) since the last poll.
		if err := t.finalize(ctx, rec); err != nil {
			t.logger.WithError(err).WithField("ticket", rec.Ticket).Error("Failed to finalize closed position")
			continue
		}
		result.Closed++
	}

	return result, nil
}

// markMonitoring advances the record's signal from Executed to
// Monitoring on the first poll that observes the position live.
func (t *Tracker) markMonitoring(ctx context.Context, rec *contracts.ExecutionRecord) bool {
	sig, err := t.signals.GetSignal(ctx, rec.SignalID)
	if err != nil {
		t.logger.WithError(err).WithField("signal", rec.SignalID).Warn("Signal lookup failed")
		return false
	}
	if sig.Status != contracts.StatusExecuted {
		return false
	}

	from := sig.Status
	sig.Status = contracts.StatusMonitoring
	sig.UpdatedAt = time.Now()
	if err := t.signals.UpdateSignal(ctx, sig); err != nil {
		t.logger.WithError(err).WithField("signal", sig.ID).Error("Failed to mark signal monitoring")
		return false
	}
	t.bus.Publish(events.TopicSignal, events.SignalEvent{Signal: sig, From: from, At: sig.UpdatedAt})
	return true
}

// finalize closes out a record whose ticket has left the venue listing,
// classifying the outcome from the last observed floating P/L.
func (t *Tracker) finalize(ctx context.Context, rec *contracts.ExecutionRecord) error {
	now := time.Now()
	realized := t.lastProfit[rec.Ticket]

	rec.RealizedPL = realized
	rec.Outcome = contracts.ClassifyOutcome(realized)
	rec.ClosePrice = t.lastPrice[rec.Ticket]
	rec.ClosedAt = &now

	if err := t.records.UpdateRecord(ctx, rec); err != nil {
		return err
	}
	delete(t.lastProfit, rec.Ticket)
	delete(t.lastPrice, rec.Ticket)

	t.bus.Publish(events.TopicExecution, events.ExecutionEvent{Record: rec, At: now})
	t.logger.WithFields(map[string]interface{}{
		"ticket":      rec.Ticket,
		"symbol":      rec.Symbol,
		"outcome":     rec.Outcome,
		"realized_pl": realized,
	}).Info("Position closed")

	sig, err := t.signals.GetSignal(ctx, rec.SignalID)
	if err != nil {
		t.logger.WithError(err).WithField("signal", rec.SignalID).Warn("Signal lookup failed during close")
		return nil
	}
	if sig.Status.IsTerminal() {
		return nil
	}

	from := sig.Status
	// A close observed while the signal is still Executed (the position
	// opened and closed between two polls) walks through Monitoring first
	// so the lifecycle stays monotonic.
	if sig.Status == contracts.StatusExecuted {
		sig.Status = contracts.StatusMonitoring
		sig.UpdatedAt = now
		if err := t.signals.UpdateSignal(ctx, sig); err != nil {
			t.logger.WithError(err).WithField("signal", sig.ID).Error("Failed intermediate monitoring transition")
			return nil
		}
	}

	sig.Status = contracts.StatusClosed
	sig.ClosePrice = rec.ClosePrice
	sig.RealizedPL = realized
	sig.ClosedAt = &now
	sig.UpdatedAt = now
	if err := t.signals.UpdateSignal(ctx, sig); err != nil {
		t.logger.WithError(err).WithField("signal", sig.ID).Error("Failed to close signal")
		return nil
	}
	t.bus.Publish(events.TopicSignal, events.SignalEvent{Signal: sig, From: from, At: now})
	return nil
}

// ArchiveOld marks closed records older than the retention window as
// archived. Records are never deleted.
func (t *Tracker) ArchiveOld(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)
	n, err := t.records.ArchiveBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		t.logger.WithField("archived", n).Info("Archived old execution records")
	}
	return n, nil
}
