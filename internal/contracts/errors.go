package contracts

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across components.
var (
	// ErrNotConnected is returned by order submission when the bridge link
	// is not in the Connected state. Orders are never silently queued.
	ErrNotConnected = errors.New("bridge not connected")

	// ErrNotConfigured is returned when an operation requires a bridge
	// configuration that has not been supplied.
	ErrNotConfigured = errors.New("bridge not configured")

	// ErrCycleInFlight is returned when a generation cycle is requested
	// while the previous one is still executing.
	ErrCycleInFlight = errors.New("generation cycle already in flight")
)

// Rejection reasons attached to signals. These are user-visible through
// the presentation API, so they stay short and descriptive.
const (
	ReasonScoringTimeout    = "ScoringTimeout"
	ReasonScoringFailed     = "ScoringFailed"
	ReasonBridgeUnavailable = "BridgeUnavailable"
	ReasonOrderRejected     = "OrderRejected"
	ReasonNotSelected       = "NotSelected"
	ReasonLiveOnlyPolicy    = "SyntheticSkipped"
)

// ConfigError reports a malformed bridge configuration. It is returned
// before any connection attempt is made.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid bridge config: %s %s", e.Field, e.Reason)
}

// ConnectErrorKind classifies handshake failures.
type ConnectErrorKind string

const (
	ConnectAuth        ConnectErrorKind = "auth"
	ConnectUnreachable ConnectErrorKind = "unreachable"
	ConnectTimeout     ConnectErrorKind = "timeout"
)

// ConnectError is a classified handshake failure. All kinds are retried
// by the connection manager's backoff loop.
type ConnectError struct {
	Kind ConnectErrorKind
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("bridge connect failed (%s): %v", e.Kind, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// AsConnectError extracts a ConnectError from an error chain.
func AsConnectError(err error) (*ConnectError, bool) {
	var ce *ConnectError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// OrderError is a classified order submission failure. Transient failures
// get one immediate retry; permanent failures reject the signal outright.
type OrderError struct {
	Transient bool
	Reason    string
	Err       error
}

func (e *OrderError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("order failed (%s): %s", kind, e.Reason)
}

func (e *OrderError) Unwrap() error { return e.Err }

// IsTransientOrderError reports whether err is an order failure worth one
// immediate retry.
func IsTransientOrderError(err error) bool {
	var oe *OrderError
	return errors.As(err, &oe) && oe.Transient
}

// ScoringError is a per-symbol scoring failure. Isolated to the symbol's
// signal; never aborts the generation cycle.
type ScoringError struct {
	Symbol string
	Err    error
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("scoring %s failed: %v", e.Symbol, e.Err)
}

func (e *ScoringError) Unwrap() error { return e.Err }

// PollError is a position poll failure. Polls are skipped, not escalated.
type PollError struct {
	Err error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("position poll failed: %v", e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }
