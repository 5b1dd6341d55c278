package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tradepilot/backend/internal/contracts"
	"github.com/tradepilot/backend/internal/events"
	"github.com/tradepilot/backend/pkg/logger"
)

// BridgeManager is the slice of the connection manager the executor
// needs: a state gate, account metadata and order submission.
type BridgeManager interface {
	State() contracts.StateSnapshot
	Account(ctx context.Context) (contracts.AccountInfo, error)
	SubmitOrder(ctx context.Context, req contracts.OrderRequest) (contracts.Ticket, error)
}

// ExecConfig holds the execution engine parameters.
type ExecConfig struct {
	RiskPerTradePct float64
	MinLot          float64
	MaxLot          float64
	SubmitTimeout   time.Duration
	OrderComment    string
	OrderMagic      int

	// DemoExecution permits submitting synthetic-tagged signals to the
	// (demo) bridge. When false, synthetic signals are rejected so demo
	// data can never trigger a real submission path.
	DemoExecution bool
}

// Executor submits selected signals to the venue through the connection
// manager, creates execution records, and isolates per-signal failures.
type Executor struct {
	manager BridgeManager
	signals contracts.SignalStore
	records contracts.ExecutionStore
	bus     *events.Bus
	logger  *logger.Logger
	cfg     ExecConfig

	// The venue does not guarantee safe concurrent order placement, so
	// submissions are serialized per account.
	submitMu sync.Mutex
}

// NewExecutor creates an execution engine.
func NewExecutor(manager BridgeManager, signals contracts.SignalStore, records contracts.ExecutionStore, bus *events.Bus, log *logger.Logger, cfg ExecConfig) *Executor {
	return &Executor{
		manager: manager,
		signals: signals,
		records: records,
		bus:     bus,
		logger:  log.WithField("component", "executor"),
		cfg:     cfg,
	}
}

// ExecuteBatch processes each selected signal independently. One
// signal's failure never blocks the rest of the batch.
func (e *Executor) ExecuteBatch(ctx context.Context, selected []*contracts.Signal) {
	for _, sig := range selected {
		if ctx.Err() != nil {
			return
		}
		e.ExecuteOne(ctx, sig)
	}
}

// ExecuteOne runs the full submission path for a single selected signal.
func (e *Executor) ExecuteOne(ctx context.Context, sig *contracts.Signal) {
	log := e.logger.WithFields(map[string]interface{}{
		"signal": sig.ID,
		"symbol": sig.Symbol,
	})

	// Connection gate. No retry queue: market conditions invalidate
	// stale signals, so an unavailable bridge rejects immediately.
	if !e.manager.State().IsConnected() {
		e.reject(ctx, sig, contracts.ReasonBridgeUnavailable, "bridge not connected at submission time")
		return
	}

	if sig.Synthetic && !e.cfg.DemoExecution {
		e.reject(ctx, sig, contracts.ReasonLiveOnlyPolicy, "synthetic signal skipped by live-only execution policy")
		return
	}

	account, err := e.manager.Account(ctx)
	if err != nil {
		e.reject(ctx, sig, contracts.ReasonBridgeUnavailable, "account info unavailable: "+err.Error())
		return
	}

	lot := ComputeLotSize(account.Balance, e.cfg.RiskPerTradePct, sig.StopDistance(), e.cfg.MinLot, e.cfg.MaxLot)

	if !e.transition(ctx, sig, contracts.StatusSubmitted, "") {
		return
	}

	req := contracts.OrderRequest{
		Symbol:     sig.Symbol,
		Direction:  sig.Direction,
		Volume:     lot,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Comment:    e.cfg.OrderComment,
		Magic:      e.cfg.OrderMagic,
	}

	ticket, err := e.submit(ctx, req)
	if err != nil {
		if errors.Is(err, contracts.ErrNotConnected) {
			e.reject(ctx, sig, contracts.ReasonBridgeUnavailable, "bridge disconnected during submission")
			return
		}
		e.reject(ctx, sig, contracts.ReasonOrderRejected, err.Error())
		return
	}

	now := time.Now()
	record := &contracts.ExecutionRecord{
		ID:         uuid.NewString(),
		SignalID:   sig.ID,
		Ticket:     ticket.Number,
		Symbol:     sig.Symbol,
		Strategy:   sig.Strategy,
		LotSize:    lot,
		EntryPrice: ticket.Price,
		Synthetic:  sig.Synthetic || ticket.Synthetic,
		OpenedAt:   now,
	}
	if record.EntryPrice == 0 {
		record.EntryPrice = sig.Entry
	}

	if err := e.records.SaveRecord(ctx, record); err != nil {
		log.WithError(err).Error("Failed to save execution record")
	}

	sig.ExecutionPrice = record.EntryPrice
	if !e.transition(ctx, sig, contracts.StatusExecuted, "") {
		return
	}

	e.bus.Publish(events.TopicExecution, events.ExecutionEvent{Record: record, At: now})
	log.WithFields(map[string]interface{}{
		"ticket": ticket.Number,
		"lot":    lot,
	}).Info("Order executed")
}

// submit serializes the order call and applies the transient-retry rule:
// one immediate retry, no backoff, because the opportunity is
// time-sensitive.
func (e *Executor) submit(ctx context.Context, req contracts.OrderRequest) (contracts.Ticket, error) {
	e.submitMu.Lock()
	defer e.submitMu.Unlock()

	submitCtx, cancel := context.WithTimeout(ctx, e.cfg.SubmitTimeout)
	defer cancel()

	ticket, err := e.manager.SubmitOrder(submitCtx, req)
	if err == nil || !contracts.IsTransientOrderError(err) {
		return ticket, err
	}

	e.logger.WithError(err).WithField("symbol", req.Symbol).Warn("Transient order failure, retrying once")

	retryCtx, cancelRetry := context.WithTimeout(ctx, e.cfg.SubmitTimeout)
	defer cancelRetry()
	return e.manager.SubmitOrder(retryCtx, req)
}

// reject marks the signal Rejected with a human-readable reason. No
// execution record is created for rejected signals.
func (e *Executor) reject(ctx context.Context, sig *contracts.Signal, reason, detail string) {
	msg := reason
	if detail != "" {
		msg = reason + ": " + detail
	}
	e.logger.WithFields(map[string]interface{}{
		"signal": sig.ID,
		"symbol": sig.Symbol,
		"reason": msg,
	}).Warn("Signal rejected")

	sig.Reason = msg
	e.transition(ctx, sig, contracts.StatusRejected, msg)
}

// transition updates the signal status in the store and publishes the
// lifecycle event. Returns false when the store update failed.
func (e *Executor) transition(ctx context.Context, sig *contracts.Signal, to contracts.SignalStatus, reason string) bool {
	from := sig.Status
	sig.Status = to
	if reason != "" {
		sig.Reason = reason
	}
	sig.UpdatedAt = time.Now()

	if err := e.signals.UpdateSignal(ctx, sig); err != nil {
		e.logger.WithError(err).WithField("signal", sig.ID).Error("Failed to update signal status")
		sig.Status = from
		return false
	}

	e.bus.Publish(events.TopicSignal, events.SignalEvent{Signal: sig, From: from, At: sig.UpdatedAt})
	return true
}

// ComputeLotSize sizes a position from account balance, the configured
// risk percentage and the stop distance in price units, clamped to the
// venue lot bounds and floored to the 0.01 lot step.
func ComputeLotSize(balance, riskPct, stopDistance, minLot, maxLot float64) float64 {
	if stopDistance <= 0 || balance <= 0 || riskPct <= 0 {
		return minLot
	}

	lot := (balance * riskPct / 100) / stopDistance
	lot = math.Floor(lot*100) / 100

	if lot < minLot {
		return minLot
	}
	if lot > maxLot {
		return maxLot
	}
	return lot
}
