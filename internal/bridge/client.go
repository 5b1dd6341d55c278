// Package bridge owns the link to the external execution venue: the
// HTTP client against the local bridge process, a synthetic demo bridge,
// and the connection manager that validates, monitors and recovers the
// link.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/tradepilot/backend/internal/contracts"
	"github.com/tradepilot/backend/pkg/httputil"
	"github.com/tradepilot/backend/pkg/logger"
)

// Client talks HTTP/JSON to the local bridge process. Retry semantics
// live in the connection manager and the execution engine, so the
// underlying HTTP client never retries on its own.
type Client struct {
	http   *httputil.Client
	logger *logger.Logger

	// baseURL is rewritten by Connect while the manager's heartbeat and
	// pollers keep reading it, so access goes through the mutex.
	mu      sync.RWMutex
	baseURL string
}

// NewClient creates a bridge client. rps caps outbound requests per
// second against the bridge process.
func NewClient(log *logger.Logger, timeout time.Duration, rps float64) *Client {
	httpClient := httputil.NewWithTimeout(log, timeout).
		DisableRetry().
		WithRateLimit(rps)

	return &Client{
		http:   httpClient,
		logger: log,
	}
}

type connectRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Server   string `json:"server"`
}

type accountPayload struct {
	Login        json.Number `json:"login"`
	Balance      float64     `json:"balance"`
	Equity       float64     `json:"equity"`
	Currency     string      `json:"currency"`
	Leverage     int         `json:"leverage"`
	Server       string      `json:"server"`
	TradeAllowed bool        `json:"trade_allowed"`
}

type connectResponse struct {
	Success bool           `json:"success"`
	Account accountPayload `json:"account"`
	Error   string         `json:"error,omitempty"`
}

// Connect performs the handshake against the bridge and returns venue
// account metadata. Failures are classified as auth, unreachable or
// timeout.
func (c *Client) Connect(ctx context.Context, cfg contracts.BridgeConfig) (contracts.AccountInfo, error) {
	base := cfg.BaseURL()
	c.mu.Lock()
	c.baseURL = base
	c.mu.Unlock()

	req := connectRequest{Login: cfg.Login, Password: cfg.Password, Server: cfg.Server}
	resp, err := c.http.PostJSON(ctx, base+"/api/mt5/connect", req)
	if err != nil {
		return contracts.AccountInfo{}, classifyTransportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return contracts.AccountInfo{}, &contracts.ConnectError{
			Kind: contracts.ConnectAuth,
			Err:  fmt.Errorf("bridge rejected credentials: %s", readError(resp.Body)),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return contracts.AccountInfo{}, &contracts.ConnectError{
			Kind: contracts.ConnectUnreachable,
			Err:  fmt.Errorf("bridge returned status %d: %s", resp.StatusCode, readError(resp.Body)),
		}
	}

	var body connectResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return contracts.AccountInfo{}, &contracts.ConnectError{
			Kind: contracts.ConnectUnreachable,
			Err:  fmt.Errorf("malformed connect response: %w", err),
		}
	}
	if !body.Success {
		return contracts.AccountInfo{}, &contracts.ConnectError{
			Kind: contracts.ConnectAuth,
			Err:  fmt.Errorf("bridge connect failed: %s", body.Error),
		}
	}

	return accountFromPayload(body.Account), nil
}

// AccountInfo fetches fresh account metadata.
func (c *Client) AccountInfo(ctx context.Context) (contracts.AccountInfo, error) {
	resp, err := c.http.Get(ctx, c.endpoint()+"/api/mt5/account-info")
	if err != nil {
		return contracts.AccountInfo{}, classifyTransportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return contracts.AccountInfo{}, fmt.Errorf("account-info returned status %d: %s", resp.StatusCode, readError(resp.Body))
	}

	var body struct {
		Account accountPayload `json:"account"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return contracts.AccountInfo{}, fmt.Errorf("malformed account-info response: %w", err)
	}
	return accountFromPayload(body.Account), nil
}

type placeOrderRequest struct {
	Symbol string  `json:"symbol"`
	Action string  `json:"action"`
	Volume float64 `json:"volume"`
	SL     float64 `json:"sl,omitempty"`
	TP     float64 `json:"tp,omitempty"`
	Magic  int     `json:"magic,omitempty"`
	// Comment tags the order so venue-side positions are attributable.
	Comment string `json:"comment,omitempty"`
}

type placeOrderResponse struct {
	Success     bool    `json:"success"`
	OrderTicket int64   `json:"order_ticket"`
	Price       float64 `json:"price"`
	Retcode     int     `json:"retcode"`
	Comment     string  `json:"comment"`
	Error       string  `json:"error,omitempty"`
}

// SubmitOrder relays an order to the venue. Transport-level failures and
// 5xx responses are transient; venue rejections (4xx with a retcode) are
// permanent.
func (c *Client) SubmitOrder(ctx context.Context, req contracts.OrderRequest) (contracts.Ticket, error) {
	action := "BUY"
	if req.Direction == contracts.DirectionShort {
		action = "SELL"
	}

	payload := placeOrderRequest{
		Symbol:  req.Symbol,
		Action:  action,
		Volume:  req.Volume,
		SL:      req.StopLoss,
		TP:      req.TakeProfit,
		Magic:   req.Magic,
		Comment: req.Comment,
	}

	resp, err := c.http.PostJSON(ctx, c.endpoint()+"/api/mt5/place-order", payload)
	if err != nil {
		return contracts.Ticket{}, &contracts.OrderError{
			Transient: true,
			Reason:    "bridge unreachable during submission",
			Err:       err,
		}
	}
	defer resp.Body.Close()

	var body placeOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return contracts.Ticket{}, &contracts.OrderError{
			Transient: true,
			Reason:    "malformed order response",
			Err:       err,
		}
	}

	switch {
	case resp.StatusCode >= 500:
		return contracts.Ticket{}, &contracts.OrderError{
			Transient: true,
			Reason:    fmt.Sprintf("bridge error %d: %s", resp.StatusCode, body.Error),
		}
	case resp.StatusCode != http.StatusOK || !body.Success:
		reason := body.Error
		if reason == "" {
			reason = body.Comment
		}
		return contracts.Ticket{}, &contracts.OrderError{
			Transient: false,
			Reason:    fmt.Sprintf("venue rejected order (retcode %d): %s", body.Retcode, reason),
		}
	}

	return contracts.Ticket{Number: body.OrderTicket, Price: body.Price}, nil
}

type positionPayload struct {
	Ticket       int64   `json:"ticket"`
	Symbol       string  `json:"symbol"`
	Type         string  `json:"type"` // BUY or SELL
	Volume       float64 `json:"volume"`
	PriceOpen    float64 `json:"price_open"`
	PriceCurrent float64 `json:"price_current"`
	Profit       float64 `json:"profit"`
	Comment      string  `json:"comment"`
	Time         string  `json:"time"`
}

// Positions lists currently open venue positions.
func (c *Client) Positions(ctx context.Context) ([]contracts.Position, error) {
	resp, err := c.http.Get(ctx, c.endpoint()+"/api/mt5/positions")
	if err != nil {
		return nil, &contracts.PollError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &contracts.PollError{
			Err: fmt.Errorf("positions returned status %d: %s", resp.StatusCode, readError(resp.Body)),
		}
	}

	var body struct {
		Positions []positionPayload `json:"positions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &contracts.PollError{Err: fmt.Errorf("malformed positions response: %w", err)}
	}

	out := make([]contracts.Position, 0, len(body.Positions))
	for _, p := range body.Positions {
		direction := contracts.DirectionLong
		if p.Type == "SELL" {
			direction = contracts.DirectionShort
		}
		out = append(out, contracts.Position{
			Ticket:       p.Ticket,
			Symbol:       p.Symbol,
			Direction:    direction,
			Volume:       p.Volume,
			PriceOpen:    p.PriceOpen,
			PriceCurrent: p.PriceCurrent,
			Profit:       p.Profit,
			Comment:      p.Comment,
			OpenedAt:     parseBridgeTime(p.Time),
		})
	}
	return out, nil
}

type quotePayload struct {
	Bid  float64 `json:"bid"`
	Ask  float64 `json:"ask"`
	Time string  `json:"time"`
}

// Quotes returns current bid/ask for the given symbols.
func (c *Client) Quotes(ctx context.Context, symbols []string) (map[string]contracts.Quote, error) {
	resp, err := c.http.PostJSON(ctx, c.endpoint()+"/api/mt5/quotes", map[string]any{"symbols": symbols})
	if err != nil {
		return nil, fmt.Errorf("quotes request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quotes returned status %d: %s", resp.StatusCode, readError(resp.Body))
	}

	var body struct {
		Quotes map[string]quotePayload `json:"quotes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("malformed quotes response: %w", err)
	}

	out := make(map[string]contracts.Quote, len(body.Quotes))
	for sym, q := range body.Quotes {
		if q.Bid == 0 && q.Ask == 0 {
			// Symbol not available on the venue; skip rather than feed a
			// zero price into ranking.
			continue
		}
		out[sym] = contracts.Quote{
			Symbol: sym,
			Bid:    q.Bid,
			Ask:    q.Ask,
			Time:   parseBridgeTime(q.Time),
		}
	}
	return out, nil
}

// Heartbeat probes the bridge health endpoint.
func (c *Client) Heartbeat(ctx context.Context) error {
	resp, err := c.http.Get(ctx, c.endpoint()+"/health")
	if err != nil {
		return fmt.Errorf("heartbeat failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("heartbeat returned status %d", resp.StatusCode)
	}

	var body struct {
		Status       string `json:"status"`
		MT5Connected bool   `json:"mt5_connected"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("malformed heartbeat response: %w", err)
	}
	if !body.MT5Connected {
		return fmt.Errorf("bridge reports terminal disconnected")
	}
	return nil
}

// endpoint returns the current bridge base URL.
func (c *Client) endpoint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// Close is a no-op for the HTTP transport.
func (c *Client) Close() error {
	return nil
}

// classifyTransportErr maps a transport failure to a classified
// ConnectError.
func classifyTransportErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &contracts.ConnectError{Kind: contracts.ConnectTimeout, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &contracts.ConnectError{Kind: contracts.ConnectTimeout, Err: err}
	}

	return &contracts.ConnectError{Kind: contracts.ConnectUnreachable, Err: err}
}

func accountFromPayload(p accountPayload) contracts.AccountInfo {
	return contracts.AccountInfo{
		Login:        p.Login.String(),
		Balance:      p.Balance,
		Equity:       p.Equity,
		Currency:     p.Currency,
		Leverage:     p.Leverage,
		Server:       p.Server,
		TradeAllowed: p.TradeAllowed,
	}
}

// readError extracts the error field of a JSON error body, falling back
// to the raw text.
func readError(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return "no response body"
	}

	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return body.Error
	}
	return string(data)
}

// parseBridgeTime parses the bridge's ISO timestamps, tolerating both
// zoned and naive forms.
func parseBridgeTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	// Some bridges report unix seconds.
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0)
	}
	return time.Time{}
}
