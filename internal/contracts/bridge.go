package contracts

import (
	"fmt"
	"strings"
	"time"
)

// ConnectionState represents the lifecycle state of the bridge link
type ConnectionState string

const (
	ConnUnconfigured ConnectionState = "UNCONFIGURED"
	ConnValidating   ConnectionState = "VALIDATING"
	ConnConnected    ConnectionState = "CONNECTED"
	ConnDegraded     ConnectionState = "DEGRADED"
	ConnDisconnected ConnectionState = "DISCONNECTED"
)

// BridgeConfig holds the endpoint and credentials of the local bridge
// process that relays orders to the execution venue.
type BridgeConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Login    string `json:"login"`
	Password string `json:"-"`
	Server   string `json:"server"` // venue/server name, e.g. broker server id
}

// Validate checks the configuration shape. It does not attempt a
// connection; that is the manager's job.
func (c BridgeConfig) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return &ConfigError{Field: "host", Reason: "must not be empty"}
	}
	if c.Port <= 0 || c.Port > 65535 {
		return &ConfigError{Field: "port", Reason: fmt.Sprintf("invalid port %d", c.Port)}
	}
	if strings.TrimSpace(c.Login) == "" {
		return &ConfigError{Field: "login", Reason: "must not be empty"}
	}
	if c.Password == "" {
		return &ConfigError{Field: "password", Reason: "must not be empty"}
	}
	if strings.TrimSpace(c.Server) == "" {
		return &ConfigError{Field: "server", Reason: "must not be empty"}
	}
	return nil
}

// BaseURL returns the HTTP base URL of the bridge endpoint.
func (c BridgeConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

// AccountInfo is the venue account metadata returned by a successful
// handshake.
type AccountInfo struct {
	Login        string  `json:"login"`
	Balance      float64 `json:"balance"`
	Equity       float64 `json:"equity"`
	Currency     string  `json:"currency"`
	Leverage     int     `json:"leverage"`
	Server       string  `json:"server"`
	TradeAllowed bool    `json:"trade_allowed"`
	Synthetic    bool    `json:"synthetic"`
}

// Position is an open venue position as reported by the bridge.
type Position struct {
	Ticket       int64     `json:"ticket"`
	Symbol       string    `json:"symbol"`
	Direction    Direction `json:"direction"`
	Volume       float64   `json:"volume"`
	PriceOpen    float64   `json:"price_open"`
	PriceCurrent float64   `json:"price_current"`
	Profit       float64   `json:"profit"`
	Comment      string    `json:"comment"`
	OpenedAt     time.Time `json:"opened_at"`
	Synthetic    bool      `json:"synthetic"`
}

// Quote is a current bid/ask snapshot for a symbol.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Time      time.Time `json:"time"`
	Synthetic bool      `json:"synthetic"`
}

// Mid returns the quote mid price.
func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// OrderRequest is a submission request relayed to the venue.
type OrderRequest struct {
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	Volume     float64   `json:"volume"`
	StopLoss   float64   `json:"stop_loss,omitempty"`
	TakeProfit float64   `json:"take_profit,omitempty"`
	Comment    string    `json:"comment,omitempty"`
	Magic      int       `json:"magic,omitempty"`
}

// Ticket identifies a venue order/position.
type Ticket struct {
	Number    int64   `json:"number"`
	Price     float64 `json:"price"` // fill price when reported by the venue
	Synthetic bool    `json:"synthetic"`
}

// StateSnapshot is a read-only view of the connection manager's state,
// safe to hand to any component.
type StateSnapshot struct {
	State         ConnectionState `json:"state"`
	Host          string          `json:"host,omitempty"`
	Port          int             `json:"port,omitempty"`
	Login         string          `json:"login,omitempty"`
	Server        string          `json:"server,omitempty"`
	Demo          bool            `json:"demo"`
	LastHeartbeat time.Time       `json:"last_heartbeat,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
	HeartbeatFail int             `json:"heartbeat_failures"`
}

// IsConnected reports whether order submission is currently permitted.
func (s StateSnapshot) IsConnected() bool {
	return s.State == ConnConnected
}
