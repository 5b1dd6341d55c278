package events

import (
	"time"

	"github.com/tradepilot/backend/internal/contracts"
)

// ConnectionEvent describes a bridge connection state transition.
type ConnectionEvent struct {
	From   contracts.ConnectionState `json:"from"`
	To     contracts.ConnectionState `json:"to"`
	Reason string                    `json:"reason,omitempty"`
	At     time.Time                 `json:"at"`

	// PersistentFailure is set when the reconnect retry budget has been
	// exhausted and the manager has given up until reconfiguration.
	PersistentFailure bool `json:"persistent_failure,omitempty"`
}

// SignalEvent describes a signal lifecycle transition.
type SignalEvent struct {
	Signal *contracts.Signal      `json:"signal"`
	From   contracts.SignalStatus `json:"from"`
	At     time.Time              `json:"at"`
}

// ExecutionEvent describes an execution record creation or finalization.
type ExecutionEvent struct {
	Record *contracts.ExecutionRecord `json:"record"`
	At     time.Time                  `json:"at"`
}
