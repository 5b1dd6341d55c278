package contracts

import (
	"math"
	"time"
)

// Direction represents the trade direction of a signal
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// SignalStatus represents the lifecycle state of a signal
type SignalStatus string

const (
	StatusGenerated  SignalStatus = "GENERATED"
	StatusSelected   SignalStatus = "SELECTED"
	StatusSubmitted  SignalStatus = "SUBMITTED"
	StatusExecuted   SignalStatus = "EXECUTED"
	StatusMonitoring SignalStatus = "MONITORING"
	StatusClosed     SignalStatus = "CLOSED"
	StatusRejected   SignalStatus = "REJECTED"
	StatusExpired    SignalStatus = "EXPIRED"
)

// forwardEdges defines the permitted forward transitions of the signal
// lifecycle. Rejected and Expired are handled separately in CanTransition
// because they are reachable from any non-terminal state.
var forwardEdges = map[SignalStatus][]SignalStatus{
	StatusGenerated:  {StatusSelected},
	StatusSelected:   {StatusSubmitted},
	StatusSubmitted:  {StatusExecuted},
	StatusExecuted:   {StatusMonitoring},
	StatusMonitoring: {StatusClosed},
}

// IsTerminal reports whether no further transitions are allowed from s.
func (s SignalStatus) IsTerminal() bool {
	return s == StatusClosed || s == StatusRejected || s == StatusExpired
}

// CanTransition reports whether moving from s to next is a permitted
// lifecycle edge. Transitions are monotonic forward; Rejected and Expired
// are terminal states reachable from any non-Closed, non-terminal state.
func (s SignalStatus) CanTransition(next SignalStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StatusRejected || next == StatusExpired {
		return true
	}
	for _, allowed := range forwardEdges[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Signal represents a generated trading recommendation and its lifecycle.
// Once Executed a signal is immutable except for the outcome fields owned
// by the position tracker (ExecutionPrice, ClosePrice, RealizedPL, ClosedAt).
type Signal struct {
	ID         string       `json:"id"`
	Symbol     string       `json:"symbol"`
	Direction  Direction    `json:"direction"`
	Confidence float64      `json:"confidence"` // 0-100
	Entry      float64      `json:"entry"`
	StopLoss   float64      `json:"stop_loss"`
	TakeProfit float64      `json:"take_profit"`
	Strategy   string       `json:"strategy"`
	Status     SignalStatus `json:"status"`
	Reason     string       `json:"reason,omitempty"` // rejection/failure reason, human readable
	Synthetic  bool         `json:"synthetic"`

	GeneratedAt time.Time `json:"generated_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Outcome fields, written only by the position tracker.
	ExecutionPrice float64    `json:"execution_price,omitempty"`
	ClosePrice     float64    `json:"close_price,omitempty"`
	RealizedPL     float64    `json:"realized_pl,omitempty"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
}

// StopDistance returns the absolute distance between entry and stop price.
func (s *Signal) StopDistance() float64 {
	return math.Abs(s.Entry - s.StopLoss)
}

// RiskReward returns the reward-to-risk ratio of the signal's price levels.
// Returns 0 when the stop distance is degenerate.
func (s *Signal) RiskReward() float64 {
	risk := s.StopDistance()
	if risk == 0 {
		return 0
	}
	return math.Abs(s.TakeProfit-s.Entry) / risk
}

// DistanceTo returns the absolute distance between the signal entry and a
// current market price. Used as the final ranking tie-break: signals closest
// to actionable are preferred. A zero price means no quote is available and
// yields a neutral 0.
func (s *Signal) DistanceTo(price float64) float64 {
	if price == 0 {
		return 0
	}
	return math.Abs(s.Entry - price)
}

// IsActive reports whether the signal is still in a live lifecycle state.
func (s *Signal) IsActive() bool {
	return !s.Status.IsTerminal()
}
