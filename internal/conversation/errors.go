package conversation

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrSessionTerminal rejects a turn that arrived for a completed or
	// escalated session. State is never mutated on this path.
	ErrSessionTerminal = errors.New("session is terminal")

	// ErrInvalidInput rejects a turn with missing required fields before a
	// session is created.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTurnInFlight is returned by stores constructed with the reject lock
	// policy when a turn is already running for the conversation id.
	ErrTurnInFlight = errors.New("turn already in flight")
)

// AdapterErrorKind splits adapter failures into the two recoverable classes.
type AdapterErrorKind string

const (
	AdapterTimeout     AdapterErrorKind = "timeout"
	AdapterUnavailable AdapterErrorKind = "unavailable"
)

// AdapterError wraps a failure from one of the capability adapters. The
// orchestrator recovers these locally; callers only ever see a TurnResult.
type AdapterError struct {
	Adapter string
	Kind    AdapterErrorKind
	Err     error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s adapter %s: %v", e.Adapter, e.Kind, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

func classifyAdapterError(adapter string, err error) *AdapterError {
	kind := AdapterUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		kind = AdapterTimeout
	}
	return &AdapterError{Adapter: adapter, Kind: kind, Err: err}
}
