package bridge

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/tradepilot/backend/internal/contracts"
	"github.com/tradepilot/backend/internal/events"
	"github.com/tradepilot/backend/pkg/logger"
)

// Options holds the connection manager's link-health parameters.
type Options struct {
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	// FailureLimit is the number of consecutive heartbeat failures that
	// turns Degraded into Disconnected.
	FailureLimit int

	// Reconnect backoff: base doubles per attempt up to the cap, with
	// ±JitterFraction applied, for at most MaxReconnectAttempts.
	BackoffBase          time.Duration
	BackoffCap           time.Duration
	JitterFraction       float64
	MaxReconnectAttempts int

	ConnectTimeout time.Duration

	// Demo marks the manager as driving a synthetic bridge.
	Demo bool
}

// DefaultOptions returns the default link-health parameters.
func DefaultOptions() Options {
	return Options{
		HeartbeatInterval:    20 * time.Second,
		HeartbeatTimeout:     10 * time.Second,
		FailureLimit:         3,
		BackoffBase:          2 * time.Second,
		BackoffCap:           60 * time.Second,
		JitterFraction:       0.2,
		MaxReconnectAttempts: 10,
		ConnectTimeout:       10 * time.Second,
	}
}

// Manager owns the bridge connection lifecycle: configuration, handshake,
// health polling, reconnection and degraded-mode fallback. It is the only
// writer of the connection state; every other component reads snapshots.
type Manager struct {
	bridge contracts.Bridge
	bus    *events.Bus
	logger *logger.Logger
	opts   Options

	mu             sync.Mutex
	state          contracts.ConnectionState
	cfg            contracts.BridgeConfig
	configured     bool
	account        contracts.AccountInfo
	hasAccount     bool
	lastHeartbeat  time.Time
	lastErr        string
	hbFailures     int
	reconnectTry   int
	reconnectTimer *time.Timer
	closed         bool

	rng *rand.Rand

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewManager creates a connection manager around the given bridge
// implementation.
func NewManager(b contracts.Bridge, bus *events.Bus, log *logger.Logger, opts Options) *Manager {
	return &Manager{
		bridge: b,
		bus:    bus,
		logger: log.WithField("component", "bridge-manager"),
		opts:   opts,
		state:  contracts.ConnUnconfigured,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		stopCh: make(chan struct{}),
	}
}

// Configure validates and stores a candidate configuration. It does not
// itself connect, but re-enters Validating immediately so a pending
// reconnect backoff never delays a manual reconfiguration.
func (m *Manager) Configure(cfg contracts.BridgeConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelReconnectLocked()
	m.cfg = cfg
	m.configured = true
	m.hasAccount = false
	m.hbFailures = 0
	m.reconnectTry = 0
	m.transitionLocked(contracts.ConnValidating, "configuration received")
	return nil
}

// RemoveConfiguration drops the configuration and returns to
// Unconfigured from any state.
func (m *Manager) RemoveConfiguration() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelReconnectLocked()
	m.configured = false
	m.hasAccount = false
	m.hbFailures = 0
	m.reconnectTry = 0
	m.transitionLocked(contracts.ConnUnconfigured, "configuration removed")
}

// Connect performs the handshake. Idempotent: calling while Connected
// returns the cached account info without re-handshaking.
func (m *Manager) Connect(ctx context.Context) (contracts.AccountInfo, error) {
	m.mu.Lock()
	if !m.configured {
		m.mu.Unlock()
		return contracts.AccountInfo{}, contracts.ErrNotConfigured
	}
	if m.state == contracts.ConnConnected && m.hasAccount {
		acc := m.account
		m.mu.Unlock()
		return acc, nil
	}
	cfg := m.cfg
	m.transitionLocked(contracts.ConnValidating, "handshake started")
	m.mu.Unlock()

	connectCtx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
	defer cancel()

	acc, err := m.bridge.Connect(connectCtx, cfg)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.lastErr = err.Error()
		m.transitionLocked(contracts.ConnDisconnected, err.Error())
		m.scheduleReconnectLocked()
		return contracts.AccountInfo{}, err
	}

	m.account = acc
	m.hasAccount = true
	m.hbFailures = 0
	m.reconnectTry = 0
	m.lastErr = ""
	m.lastHeartbeat = time.Now()
	m.transitionLocked(contracts.ConnConnected, "handshake succeeded")
	return acc, nil
}

// Start launches the heartbeat loop. Call once.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.opts.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.heartbeat(ctx)
			}
		}
	}()
}

// heartbeat probes the bridge when the link is Connected or Degraded and
// applies the failure-accumulation rules.
func (m *Manager) heartbeat(ctx context.Context) {
	m.mu.Lock()
	state := m.state
	m.mu.Unlock()

	if state != contracts.ConnConnected && state != contracts.ConnDegraded {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.opts.HeartbeatTimeout)
	err := m.bridge.Heartbeat(probeCtx)
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	// State may have moved while the probe was in flight.
	if m.state != contracts.ConnConnected && m.state != contracts.ConnDegraded {
		return
	}

	if err == nil {
		m.lastHeartbeat = time.Now()
		m.hbFailures = 0
		m.lastErr = ""
		if m.state == contracts.ConnDegraded {
			m.transitionLocked(contracts.ConnConnected, "heartbeat recovered")
		}
		return
	}

	m.hbFailures++
	m.lastErr = err.Error()
	m.logger.WithFields(map[string]interface{}{
		"failures": m.hbFailures,
		"error":    err.Error(),
	}).Warn("Heartbeat failed")

	if m.hbFailures >= m.opts.FailureLimit {
		m.transitionLocked(contracts.ConnDisconnected, "heartbeat failure limit reached")
		m.scheduleReconnectLocked()
		return
	}
	if m.state == contracts.ConnConnected {
		m.transitionLocked(contracts.ConnDegraded, err.Error())
	}
}

// scheduleReconnectLocked arms the backoff timer for the next automatic
// reconnect attempt. Caller must hold m.mu.
func (m *Manager) scheduleReconnectLocked() {
	if !m.configured || m.closed {
		return
	}

	m.reconnectTry++
	if m.reconnectTry > m.opts.MaxReconnectAttempts {
		m.logger.WithField("attempts", m.opts.MaxReconnectAttempts).
			Error("Reconnect budget exhausted, giving up until reconfiguration")
		m.bus.Publish(events.TopicConnection, events.ConnectionEvent{
			From:              m.state,
			To:                contracts.ConnDisconnected,
			Reason:            "reconnect budget exhausted",
			At:                time.Now(),
			PersistentFailure: true,
		})
		return
	}

	delay := Backoff(m.reconnectTry, m.opts.BackoffBase, m.opts.BackoffCap, m.opts.JitterFraction, m.rng)
	m.logger.WithFields(map[string]interface{}{
		"attempt": m.reconnectTry,
		"delay":   delay,
	}).Info("Scheduling bridge reconnect")

	m.cancelReconnectLocked()
	m.reconnectTimer = time.AfterFunc(delay, m.tryReconnect)
}

// tryReconnect runs one automatic reconnect attempt.
func (m *Manager) tryReconnect() {
	m.mu.Lock()
	if m.closed || !m.configured || m.state != contracts.ConnDisconnected {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	if _, err := m.Connect(context.Background()); err != nil {
		m.logger.WithError(err).Warn("Automatic reconnect attempt failed")
	}
}

// cancelReconnectLocked stops a pending reconnect timer. Caller must
// hold m.mu.
func (m *Manager) cancelReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

// SubmitOrder relays an order through the bridge. Fails fast with
// ErrNotConnected when the link is not Connected; orders are never
// queued.
func (m *Manager) SubmitOrder(ctx context.Context, req contracts.OrderRequest) (contracts.Ticket, error) {
	m.mu.Lock()
	if m.state != contracts.ConnConnected {
		m.mu.Unlock()
		return contracts.Ticket{}, contracts.ErrNotConnected
	}
	m.mu.Unlock()

	return m.bridge.SubmitOrder(ctx, req)
}

// PollPositions lists open venue positions. Fails fast when not
// Connected so stale data is never reported as current.
func (m *Manager) PollPositions(ctx context.Context) ([]contracts.Position, error) {
	m.mu.Lock()
	if m.state != contracts.ConnConnected {
		m.mu.Unlock()
		return nil, contracts.ErrNotConnected
	}
	m.mu.Unlock()

	return m.bridge.Positions(ctx)
}

// Quotes returns current quotes, or an empty map when the link is down;
// ranking degrades gracefully without current prices.
func (m *Manager) Quotes(ctx context.Context, symbols []string) map[string]contracts.Quote {
	m.mu.Lock()
	connected := m.state == contracts.ConnConnected
	m.mu.Unlock()

	if !connected {
		return map[string]contracts.Quote{}
	}

	quotes, err := m.bridge.Quotes(ctx, symbols)
	if err != nil {
		m.logger.WithError(err).Debug("Quote lookup failed")
		return map[string]contracts.Quote{}
	}
	return quotes
}

// Account returns account metadata: refreshed from the bridge when the
// link is up, the cached handshake copy otherwise.
func (m *Manager) Account(ctx context.Context) (contracts.AccountInfo, error) {
	m.mu.Lock()
	connected := m.state == contracts.ConnConnected
	cached := m.account
	hasCached := m.hasAccount
	m.mu.Unlock()

	if connected {
		acc, err := m.bridge.AccountInfo(ctx)
		if err == nil {
			m.mu.Lock()
			m.account = acc
			m.mu.Unlock()
			return acc, nil
		}
		m.logger.WithError(err).Debug("Account refresh failed, using cached info")
	}

	if hasCached {
		return cached, nil
	}
	return contracts.AccountInfo{}, contracts.ErrNotConnected
}

// State returns a read-only snapshot of the connection state.
func (m *Manager) State() contracts.StateSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := contracts.StateSnapshot{
		State:         m.state,
		Demo:          m.opts.Demo,
		LastHeartbeat: m.lastHeartbeat,
		LastError:     m.lastErr,
		HeartbeatFail: m.hbFailures,
	}
	if m.configured {
		snap.Host = m.cfg.Host
		snap.Port = m.cfg.Port
		snap.Login = m.cfg.Login
		snap.Server = m.cfg.Server
	}
	return snap
}

// Close stops the heartbeat loop and releases the bridge transport.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	m.cancelReconnectLocked()
	m.mu.Unlock()

	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
	return m.bridge.Close()
}

// transitionLocked moves the state machine and publishes the transition.
// Caller must hold m.mu.
func (m *Manager) transitionLocked(to contracts.ConnectionState, reason string) {
	if m.state == to {
		return
	}
	from := m.state
	m.state = to

	m.logger.WithFields(map[string]interface{}{
		"from":   from,
		"to":     to,
		"reason": reason,
	}).Info("Bridge connection state changed")

	m.bus.Publish(events.TopicConnection, events.ConnectionEvent{
		From:   from,
		To:     to,
		Reason: reason,
		At:     time.Now(),
	})
}

// Backoff computes the reconnect delay for the given 1-based attempt:
// base doubled per attempt, capped, with ±jitter applied.
func Backoff(attempt int, base, ceiling time.Duration, jitter float64, rng *rand.Rand) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= ceiling {
			delay = ceiling
			break
		}
	}
	if delay > ceiling {
		delay = ceiling
	}

	if jitter > 0 && rng != nil {
		factor := 1 + jitter*(rng.Float64()*2-1)
		delay = time.Duration(float64(delay) * factor)
	}
	return delay
}
