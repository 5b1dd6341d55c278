package contracts

import "time"

// Outcome classifies the realized result of a closed execution
type Outcome string

const (
	OutcomeProfit    Outcome = "PROFIT"
	OutcomeLoss      Outcome = "LOSS"
	OutcomeBreakeven Outcome = "BREAKEVEN"
)

// BreakevenTolerance is the absolute P/L band (account currency) inside
// which a closed trade is classified as breakeven.
const BreakevenTolerance = 0.01

// ClassifyOutcome maps a realized P/L to its outcome classification.
func ClassifyOutcome(realizedPL float64) Outcome {
	switch {
	case realizedPL > BreakevenTolerance:
		return OutcomeProfit
	case realizedPL < -BreakevenTolerance:
		return OutcomeLoss
	default:
		return OutcomeBreakeven
	}
}

// ExecutionRecord links a signal to a venue-assigned ticket. Created on
// successful submission, finalized on position closure, never deleted.
// Superseded records are retained (Archived) for the feedback aggregator.
type ExecutionRecord struct {
	ID       string `json:"id"`
	SignalID string `json:"signal_id"`
	Ticket   int64  `json:"ticket"`
	Symbol   string `json:"symbol"`
	Strategy string `json:"strategy"`

	LotSize    float64 `json:"lot_size"`
	EntryPrice float64 `json:"entry_price"`

	Outcome    Outcome `json:"outcome,omitempty"` // empty while the position is open
	RealizedPL float64 `json:"realized_pl"`
	ClosePrice float64 `json:"close_price,omitempty"`

	Synthetic bool `json:"synthetic"`
	Archived  bool `json:"archived"`

	OpenedAt time.Time  `json:"opened_at"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`
}

// IsOpen reports whether the record's position has not yet closed.
func (r *ExecutionRecord) IsOpen() bool {
	return r.ClosedAt == nil
}
