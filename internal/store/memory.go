// Package store provides signal and execution-record repositories. The
// memory implementation backs demo mode and tests; the postgres
// implementation backs durable deployments.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tradepilot/backend/internal/contracts"
)

// Memory is an in-process implementation of SignalStore and
// ExecutionStore. Callers receive copies; the store never leaks its own
// pointers.
type Memory struct {
	mu           sync.RWMutex
	signals      map[string]contracts.Signal
	records      map[string]contracts.ExecutionRecord
	lastSelected map[string]time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		signals:      make(map[string]contracts.Signal),
		records:      make(map[string]contracts.ExecutionRecord),
		lastSelected: make(map[string]time.Time),
	}
}

// SaveSignal stores a new signal.
func (m *Memory) SaveSignal(_ context.Context, sig *contracts.Signal) error {
	if sig.ID == "" {
		return fmt.Errorf("signal id must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.signals[sig.ID]; exists {
		return fmt.Errorf("signal %s already exists", sig.ID)
	}
	m.signals[sig.ID] = *sig
	return nil
}

// UpdateSignal replaces an existing signal after verifying the lifecycle
// transition is permitted.
func (m *Memory) UpdateSignal(_ context.Context, sig *contracts.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.signals[sig.ID]
	if !exists {
		return fmt.Errorf("signal %s not found", sig.ID)
	}

	if current.Status != sig.Status && !current.Status.CanTransition(sig.Status) {
		return fmt.Errorf("signal %s: illegal transition %s -> %s", sig.ID, current.Status, sig.Status)
	}

	if sig.Status == contracts.StatusSelected && current.Status != contracts.StatusSelected {
		m.lastSelected[sig.Symbol] = time.Now()
	}

	m.signals[sig.ID] = *sig
	return nil
}

// GetSignal returns a copy of the signal with the given id.
func (m *Memory) GetSignal(_ context.Context, id string) (*contracts.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sig, exists := m.signals[id]
	if !exists {
		return nil, fmt.Errorf("signal %s not found", id)
	}
	out := sig
	return &out, nil
}

// ActiveSignals returns all signals in a non-terminal state, newest first.
func (m *Memory) ActiveSignals(_ context.Context) ([]*contracts.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*contracts.Signal
	for _, sig := range m.signals {
		if sig.IsActive() {
			s := sig
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].GeneratedAt.After(out[j].GeneratedAt)
	})
	return out, nil
}

// SignalsByStatus returns all signals in the given status, newest first.
func (m *Memory) SignalsByStatus(_ context.Context, status contracts.SignalStatus) ([]*contracts.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*contracts.Signal
	for _, sig := range m.signals {
		if sig.Status == status {
			s := sig
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].GeneratedAt.After(out[j].GeneratedAt)
	})
	return out, nil
}

// LastSelectedAt returns when the symbol was last selected.
func (m *Memory) LastSelectedAt(_ context.Context, symbol string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSelected[symbol], nil
}

// ExpireStale transitions Generated signals past their expiry to Expired.
func (m *Memory) ExpireStale(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expired := 0
	for id, sig := range m.signals {
		if sig.Status == contracts.StatusGenerated && !sig.ExpiresAt.IsZero() && sig.ExpiresAt.Before(now) {
			sig.Status = contracts.StatusExpired
			sig.Reason = contracts.ReasonNotSelected
			sig.UpdatedAt = now
			m.signals[id] = sig
			expired++
		}
	}
	return expired, nil
}

// SaveRecord stores a new execution record.
func (m *Memory) SaveRecord(_ context.Context, rec *contracts.ExecutionRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("record id must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[rec.ID]; exists {
		return fmt.Errorf("record %s already exists", rec.ID)
	}
	m.records[rec.ID] = *rec
	return nil
}

// UpdateRecord replaces an existing execution record.
func (m *Memory) UpdateRecord(_ context.Context, rec *contracts.ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[rec.ID]; !exists {
		return fmt.Errorf("record %s not found", rec.ID)
	}
	m.records[rec.ID] = *rec
	return nil
}

// OpenRecords returns records whose positions have not closed yet.
func (m *Memory) OpenRecords(_ context.Context) ([]*contracts.ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*contracts.ExecutionRecord
	for _, rec := range m.records {
		if rec.IsOpen() {
			r := rec
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out, nil
}

// ClosedRecordsSince returns closed records with ClosedAt >= since,
// including archived ones: the aggregator may look back past the
// retention sweep.
func (m *Memory) ClosedRecordsSince(_ context.Context, since time.Time) ([]*contracts.ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*contracts.ExecutionRecord
	for _, rec := range m.records {
		if rec.ClosedAt != nil && !rec.ClosedAt.Before(since) {
			r := rec
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ClosedAt.Before(*out[j].ClosedAt)
	})
	return out, nil
}

// ArchiveBefore marks closed records older than cutoff as archived.
// Records are never deleted.
func (m *Memory) ArchiveBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	archived := 0
	for id, rec := range m.records {
		if !rec.Archived && rec.ClosedAt != nil && rec.ClosedAt.Before(cutoff) {
			rec.Archived = true
			m.records[id] = rec
			archived++
		}
	}
	return archived, nil
}
