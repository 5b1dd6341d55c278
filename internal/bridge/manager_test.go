package bridge

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradepilot/backend/internal/contracts"
	"github.com/tradepilot/backend/internal/events"
	"github.com/tradepilot/backend/pkg/logger"
)

// fakeBridge is a scriptable bridge for manager tests.
type fakeBridge struct {
	mu          sync.Mutex
	connectErr  error
	heartbeatOK bool
	positions   []contracts.Position
	submitErr   error
	ticket      contracts.Ticket
	connects    int
}

func (f *fakeBridge) Connect(ctx context.Context, cfg contracts.BridgeConfig) (contracts.AccountInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return contracts.AccountInfo{}, f.connectErr
	}
	return contracts.AccountInfo{Login: cfg.Login, Balance: 10000, Currency: "USD"}, nil
}

func (f *fakeBridge) AccountInfo(ctx context.Context) (contracts.AccountInfo, error) {
	return contracts.AccountInfo{Login: "fake", Balance: 10000, Currency: "USD"}, nil
}

func (f *fakeBridge) SubmitOrder(ctx context.Context, req contracts.OrderRequest) (contracts.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return contracts.Ticket{}, f.submitErr
	}
	return f.ticket, nil
}

func (f *fakeBridge) Positions(ctx context.Context) ([]contracts.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.positions, nil
}

func (f *fakeBridge) Quotes(ctx context.Context, symbols []string) (map[string]contracts.Quote, error) {
	out := make(map[string]contracts.Quote, len(symbols))
	for _, s := range symbols {
		out[s] = contracts.Quote{Symbol: s, Bid: 1.0, Ask: 1.0002}
	}
	return out, nil
}

func (f *fakeBridge) Heartbeat(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.heartbeatOK {
		return nil
	}
	return errors.New("bridge unreachable")
}

func (f *fakeBridge) Close() error { return nil }

func (f *fakeBridge) setHeartbeat(ok bool) {
	f.mu.Lock()
	f.heartbeatOK = ok
	f.mu.Unlock()
}

func testManager(t *testing.T, fb *fakeBridge) *Manager {
	t.Helper()
	opts := DefaultOptions()
	// Long enough that no automatic reconnect fires during a test.
	opts.BackoffBase = time.Hour
	opts.BackoffCap = time.Hour
	return NewManager(fb, events.NewBus(), logger.NewNop(), opts)
}

func validConfig() contracts.BridgeConfig {
	return contracts.BridgeConfig{Host: "localhost", Port: 8080, Login: "12345", Password: "secret", Server: "Broker-Demo"}
}

func TestManagerInitialState(t *testing.T) {
	m := testManager(t, &fakeBridge{heartbeatOK: true})
	assert.Equal(t, contracts.ConnUnconfigured, m.State().State)
}

func TestConfigureRejectsInvalid(t *testing.T) {
	m := testManager(t, &fakeBridge{})

	err := m.Configure(contracts.BridgeConfig{Host: "localhost"})
	var cfgErr *contracts.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, contracts.ConnUnconfigured, m.State().State)
}

func TestConnectLifecycle(t *testing.T) {
	fb := &fakeBridge{heartbeatOK: true}
	m := testManager(t, fb)

	require.NoError(t, m.Configure(validConfig()))
	assert.Equal(t, contracts.ConnValidating, m.State().State)

	acc, err := m.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "12345", acc.Login)
	assert.Equal(t, contracts.ConnConnected, m.State().State)

	// Idempotent: a second Connect returns the cached account without a
	// new handshake.
	_, err = m.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fb.connects)
}

func TestConnectWithoutConfiguration(t *testing.T) {
	m := testManager(t, &fakeBridge{})

	_, err := m.Connect(context.Background())
	assert.ErrorIs(t, err, contracts.ErrNotConfigured)
}

func TestConnectFailureGoesDisconnected(t *testing.T) {
	fb := &fakeBridge{connectErr: &contracts.ConnectError{Kind: contracts.ConnectUnreachable, Err: errors.New("refused")}}
	m := testManager(t, fb)

	require.NoError(t, m.Configure(validConfig()))
	_, err := m.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, contracts.ConnDisconnected, m.State().State)
	assert.NotEmpty(t, m.State().LastError)
}

func TestHeartbeatDegradesThenDisconnects(t *testing.T) {
	fb := &fakeBridge{heartbeatOK: true}
	m := testManager(t, fb)

	require.NoError(t, m.Configure(validConfig()))
	_, err := m.Connect(context.Background())
	require.NoError(t, err)

	fb.setHeartbeat(false)
	ctx := context.Background()

	m.heartbeat(ctx)
	assert.Equal(t, contracts.ConnDegraded, m.State().State)
	assert.Equal(t, 1, m.State().HeartbeatFail)

	m.heartbeat(ctx)
	assert.Equal(t, contracts.ConnDegraded, m.State().State)
	assert.Equal(t, 2, m.State().HeartbeatFail)

	m.heartbeat(ctx)
	assert.Equal(t, contracts.ConnDisconnected, m.State().State)
}

func TestHeartbeatRecoveryResetsCounter(t *testing.T) {
	fb := &fakeBridge{heartbeatOK: true}
	m := testManager(t, fb)

	require.NoError(t, m.Configure(validConfig()))
	_, err := m.Connect(context.Background())
	require.NoError(t, err)

	ctx := context.Background()
	fb.setHeartbeat(false)
	m.heartbeat(ctx)
	m.heartbeat(ctx)
	require.Equal(t, contracts.ConnDegraded, m.State().State)

	fb.setHeartbeat(true)
	m.heartbeat(ctx)
	assert.Equal(t, contracts.ConnConnected, m.State().State)
	assert.Zero(t, m.State().HeartbeatFail)

	// Counter restarted: two more failures only degrade.
	fb.setHeartbeat(false)
	m.heartbeat(ctx)
	m.heartbeat(ctx)
	assert.Equal(t, contracts.ConnDegraded, m.State().State)
}

func TestSubmitFailsFastWhenNotConnected(t *testing.T) {
	fb := &fakeBridge{heartbeatOK: true}
	m := testManager(t, fb)

	_, err := m.SubmitOrder(context.Background(), contracts.OrderRequest{Symbol: "EURUSD"})
	assert.ErrorIs(t, err, contracts.ErrNotConnected)

	require.NoError(t, m.Configure(validConfig()))
	_, err = m.SubmitOrder(context.Background(), contracts.OrderRequest{Symbol: "EURUSD"})
	assert.ErrorIs(t, err, contracts.ErrNotConnected)

	_, err = m.Connect(context.Background())
	require.NoError(t, err)

	fb.ticket = contracts.Ticket{Number: 77}
	ticket, err := m.SubmitOrder(context.Background(), contracts.OrderRequest{Symbol: "EURUSD"})
	require.NoError(t, err)
	assert.EqualValues(t, 77, ticket.Number)
}

func TestPollFailsFastWhenDegraded(t *testing.T) {
	fb := &fakeBridge{heartbeatOK: true}
	m := testManager(t, fb)

	require.NoError(t, m.Configure(validConfig()))
	_, err := m.Connect(context.Background())
	require.NoError(t, err)

	fb.setHeartbeat(false)
	m.heartbeat(context.Background())
	require.Equal(t, contracts.ConnDegraded, m.State().State)

	_, err = m.PollPositions(context.Background())
	assert.ErrorIs(t, err, contracts.ErrNotConnected)
}

func TestQuotesEmptyWhenDown(t *testing.T) {
	m := testManager(t, &fakeBridge{})
	quotes := m.Quotes(context.Background(), []string{"EURUSD"})
	assert.Empty(t, quotes)
}

func TestRemoveConfiguration(t *testing.T) {
	fb := &fakeBridge{heartbeatOK: true}
	m := testManager(t, fb)

	require.NoError(t, m.Configure(validConfig()))
	_, err := m.Connect(context.Background())
	require.NoError(t, err)

	m.RemoveConfiguration()
	snap := m.State()
	assert.Equal(t, contracts.ConnUnconfigured, snap.State)
	assert.Empty(t, snap.Host)

	_, err = m.Connect(context.Background())
	assert.ErrorIs(t, err, contracts.ErrNotConfigured)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	base := 2 * time.Second
	ceiling := 60 * time.Second

	// No jitter: exact doubling until the cap.
	assert.Equal(t, 2*time.Second, Backoff(1, base, ceiling, 0, nil))
	assert.Equal(t, 4*time.Second, Backoff(2, base, ceiling, 0, nil))
	assert.Equal(t, 8*time.Second, Backoff(3, base, ceiling, 0, nil))
	assert.Equal(t, 32*time.Second, Backoff(5, base, ceiling, 0, nil))
	assert.Equal(t, 60*time.Second, Backoff(6, base, ceiling, 0, nil))
	assert.Equal(t, 60*time.Second, Backoff(10, base, ceiling, 0, nil))
}

func TestBackoffJitterBounds(t *testing.T) {
	base := 2 * time.Second
	ceiling := 60 * time.Second
	rng := rand.New(rand.NewSource(1))

	for attempt := 1; attempt <= 10; attempt++ {
		nominal := Backoff(attempt, base, ceiling, 0, nil)
		for i := 0; i < 50; i++ {
			d := Backoff(attempt, base, ceiling, 0.2, rng)
			assert.GreaterOrEqual(t, float64(d), float64(nominal)*0.8-1)
			assert.LessOrEqual(t, float64(d), float64(nominal)*1.2+1)
		}
	}
}

func TestReconnectBudgetExhaustionPublishesPersistentFailure(t *testing.T) {
	fb := &fakeBridge{heartbeatOK: true}
	bus := events.NewBus()
	opts := DefaultOptions()
	opts.BackoffBase = time.Hour
	opts.MaxReconnectAttempts = 2
	m := NewManager(fb, bus, logger.NewNop(), opts)

	require.NoError(t, m.Configure(validConfig()))
	_, err := m.Connect(context.Background())
	require.NoError(t, err)

	ch, unsub := bus.Subscribe(events.TopicConnection, 16)
	defer unsub()

	m.mu.Lock()
	m.state = contracts.ConnDisconnected
	m.reconnectTry = opts.MaxReconnectAttempts
	m.scheduleReconnectLocked()
	m.mu.Unlock()

	select {
	case raw := <-ch:
		ev, ok := raw.(events.ConnectionEvent)
		require.True(t, ok)
		assert.True(t, ev.PersistentFailure)
	case <-time.After(time.Second):
		t.Fatal("expected persistent-failure event")
	}
}
