package contracts

import (
	"context"
	"time"
)

// Bridge is the capability interface over the local bridge process that
// relays orders and account data to the execution venue. Two
// implementations exist: the HTTP client against a real bridge, and a
// synthetic demo bridge that tags every payload Synthetic.
type Bridge interface {
	// Connect performs the handshake and returns account metadata.
	Connect(ctx context.Context, cfg BridgeConfig) (AccountInfo, error)

	// AccountInfo returns fresh account metadata for an established link.
	AccountInfo(ctx context.Context) (AccountInfo, error)

	// SubmitOrder relays an order to the venue and returns its ticket.
	SubmitOrder(ctx context.Context, req OrderRequest) (Ticket, error)

	// Positions lists currently open venue positions.
	Positions(ctx context.Context) ([]Position, error)

	// Quotes returns current bid/ask for the given symbols.
	Quotes(ctx context.Context, symbols []string) (map[string]Quote, error)

	// Heartbeat probes bridge liveness.
	Heartbeat(ctx context.Context) error

	// Close releases the underlying transport.
	Close() error
}

// Score is the normalized output of the opaque scoring function.
type Score struct {
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"` // 0-100
	Entry      float64   `json:"entry"`
	Stop       float64   `json:"stop"`
	Target     float64   `json:"target"`
	Strategy   string    `json:"strategy"`
}

// Scorer is the capability interface over the signal scoring model. Its
// internals are opaque to the core; it is swapped via injection.
type Scorer interface {
	Score(ctx context.Context, symbol, strategyHint string) (Score, error)
}

// SignalStore persists signals and their lifecycle transitions.
type SignalStore interface {
	SaveSignal(ctx context.Context, sig *Signal) error
	UpdateSignal(ctx context.Context, sig *Signal) error
	GetSignal(ctx context.Context, id string) (*Signal, error)
	ActiveSignals(ctx context.Context) ([]*Signal, error)
	SignalsByStatus(ctx context.Context, status SignalStatus) ([]*Signal, error)

	// LastSelectedAt returns when a symbol was last selected, for the
	// per-symbol cooldown check. Zero time when never selected.
	LastSelectedAt(ctx context.Context, symbol string) (time.Time, error)

	// ExpireStale transitions Generated signals past their expiry to
	// Expired and returns how many were expired.
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

// ExecutionStore persists execution records. Records are never deleted;
// the retention sweep archives them instead.
type ExecutionStore interface {
	SaveRecord(ctx context.Context, rec *ExecutionRecord) error
	UpdateRecord(ctx context.Context, rec *ExecutionRecord) error
	OpenRecords(ctx context.Context) ([]*ExecutionRecord, error)
	ClosedRecordsSince(ctx context.Context, since time.Time) ([]*ExecutionRecord, error)

	// ArchiveBefore marks closed records older than cutoff as archived
	// and returns how many were archived.
	ArchiveBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// PerformanceSummary is the rolled-up view of realized outcomes produced
// by the feedback aggregator.
type PerformanceSummary struct {
	WindowStart  time.Time                `json:"window_start"`
	WindowEnd    time.Time                `json:"window_end"`
	TotalTrades  int                      `json:"total_trades"`
	Wins         int                      `json:"wins"`
	Losses       int                      `json:"losses"`
	Breakevens   int                      `json:"breakevens"`
	WinRate      float64                  `json:"win_rate"` // 0.0-1.0, breakevens excluded
	GrossProfit  float64                  `json:"gross_profit"`
	GrossLoss    float64                  `json:"gross_loss"` // positive magnitude
	NetPL        float64                  `json:"net_pl"`
	ProfitFactor float64                  `json:"profit_factor"`
	ByStrategy   map[string]StrategyStats `json:"by_strategy"`
	Threshold    float64                  `json:"confidence_threshold"`
	GeneratedAt  time.Time                `json:"generated_at"`
}

// StrategyStats is the per-strategy accuracy breakdown.
type StrategyStats struct {
	Trades  int     `json:"trades"`
	Wins    int     `json:"wins"`
	WinRate float64 `json:"win_rate"`
	NetPL   float64 `json:"net_pl"`
}
