package bridge

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/tradepilot/backend/internal/contracts"
)

// demoBasePrices seed the synthetic quote walk per symbol. Unknown
// symbols start at 1.0.
var demoBasePrices = map[string]float64{
	"EURUSD": 1.0850,
	"GBPUSD": 1.2650,
	"USDJPY": 149.50,
	"XAUUSD": 2350.00,
	"AUDUSD": 0.6550,
	"USDCHF": 0.9050,
}

// Demo is a synthetic bridge used when no real bridge process is
// reachable. It fabricates plausible account and position data and tags
// every payload Synthetic so downstream consumers can tell it apart from
// live data.
type Demo struct {
	mu         sync.Mutex
	rng        *rand.Rand
	connected  bool
	account    contracts.AccountInfo
	prices     map[string]float64
	positions  map[int64]contracts.Position
	nextTicket int64

	// positionLifetime bounds how long a synthetic position stays open
	// before the demo venue closes it with a randomized outcome.
	positionLifetime time.Duration
}

// NewDemo creates a synthetic bridge with a fixed starting balance.
func NewDemo() *Demo {
	return &Demo{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		account: contracts.AccountInfo{
			Login:        "demo",
			Balance:      10000,
			Equity:       10000,
			Currency:     "USD",
			Leverage:     100,
			Server:       "TradePilot-Demo",
			TradeAllowed: true,
			Synthetic:    true,
		},
		prices:           make(map[string]float64),
		positions:        make(map[int64]contracts.Position),
		nextTicket:       100000,
		positionLifetime: 2 * time.Minute,
	}
}

// Connect always succeeds and returns the synthetic account.
func (d *Demo) Connect(_ context.Context, cfg contracts.BridgeConfig) (contracts.AccountInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.connected = true
	if cfg.Login != "" {
		d.account.Login = cfg.Login
	}
	if cfg.Server != "" {
		d.account.Server = cfg.Server
	}
	return d.account, nil
}

// AccountInfo returns the synthetic account with equity tracking open P/L.
func (d *Demo) AccountInfo(_ context.Context) (contracts.AccountInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	open := 0.0
	for _, pos := range d.positions {
		open += pos.Profit
	}
	acc := d.account
	acc.Equity = acc.Balance + open
	return acc, nil
}

// SubmitOrder opens a synthetic position and returns its ticket.
func (d *Demo) SubmitOrder(_ context.Context, req contracts.OrderRequest) (contracts.Ticket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	price := d.walkLocked(req.Symbol)
	d.nextTicket++
	ticket := d.nextTicket

	d.positions[ticket] = contracts.Position{
		Ticket:       ticket,
		Symbol:       req.Symbol,
		Direction:    req.Direction,
		Volume:       req.Volume,
		PriceOpen:    price,
		PriceCurrent: price,
		Comment:      req.Comment,
		OpenedAt:     time.Now(),
		Synthetic:    true,
	}

	return contracts.Ticket{Number: ticket, Price: price, Synthetic: true}, nil
}

// Positions advances the synthetic market one step, closes positions past
// their lifetime, and returns the remaining open ones.
func (d *Demo) Positions(_ context.Context) ([]contracts.Position, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	out := make([]contracts.Position, 0, len(d.positions))

	for ticket, pos := range d.positions {
		price := d.walkLocked(pos.Symbol)
		pos.PriceCurrent = price

		diff := price - pos.PriceOpen
		if pos.Direction == contracts.DirectionShort {
			diff = -diff
		}
		// 100000 units per standard lot keeps profits in a realistic range.
		pos.Profit = round2(diff * pos.Volume * 100000)

		if now.Sub(pos.OpenedAt) > d.positionLifetime {
			// Position closed by the venue; realize the P/L on balance.
			d.account.Balance = round2(d.account.Balance + pos.Profit)
			delete(d.positions, ticket)
			continue
		}

		d.positions[ticket] = pos
		out = append(out, pos)
	}

	return out, nil
}

// Quotes returns one synthetic quote per requested symbol.
func (d *Demo) Quotes(_ context.Context, symbols []string) (map[string]contracts.Quote, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	quotes := make(map[string]contracts.Quote, len(symbols))
	for _, sym := range symbols {
		mid := d.walkLocked(sym)
		spread := mid * 0.0001
		quotes[sym] = contracts.Quote{
			Symbol:    sym,
			Bid:       round5(mid - spread/2),
			Ask:       round5(mid + spread/2),
			Time:      time.Now(),
			Synthetic: true,
		}
	}
	return quotes, nil
}

// Heartbeat always succeeds once connected.
func (d *Demo) Heartbeat(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return contracts.ErrNotConnected
	}
	return nil
}

// Close disconnects the synthetic bridge.
func (d *Demo) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
	return nil
}

// walkLocked advances the symbol's price one random-walk step. Caller
// must hold d.mu.
func (d *Demo) walkLocked(symbol string) float64 {
	price, ok := d.prices[symbol]
	if !ok {
		price, ok = demoBasePrices[symbol]
		if !ok {
			price = 1.0
		}
	}

	step := price * 0.0004 * (d.rng.Float64()*2 - 1)
	price += step
	d.prices[symbol] = price
	return price
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round5(v float64) float64 {
	return math.Round(v*100000) / 100000
}
