package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the engine.
var (
	// ErrInvalidCommand is returned when a command is not legal in the current state.
	ErrInvalidCommand = errors.New("invalid command for session state")

	// ErrUnknownFrame is returned when a frame id is not in the current call stack.
	ErrUnknownFrame = errors.New("unknown stack frame")

	// ErrUnknownBreakpoint is returned when a breakpoint id does not exist.
	ErrUnknownBreakpoint = errors.New("unknown breakpoint")

	// ErrUnknownWatch is returned when a watch id does not exist.
	ErrUnknownWatch = errors.New("unknown watch expression")

	// ErrUnknownVariable is returned when a variable node does not exist.
	ErrUnknownVariable = errors.New("unknown variable")

	// ErrDuplicateBreakpoint is returned when a breakpoint already exists at a location.
	ErrDuplicateBreakpoint = errors.New("breakpoint already exists at location")

	// ErrAdapterTimeout is returned when the adapter did not answer in time.
	ErrAdapterTimeout = errors.New("adapter request timed out")

	// ErrAdapterDisconnected is returned when the adapter connection is lost.
	ErrAdapterDisconnected = errors.New("adapter disconnected")

	// ErrSuperseded is returned for queued commands dropped by a stop.
	ErrSuperseded = errors.New("command superseded by stop")

	// ErrClosed is returned when the engine has been closed.
	ErrClosed = errors.New("engine closed")
)

// CommandError describes a failed or rejected command.
type CommandError struct {
	// Command is the kind of command that failed.
	Command CommandKind

	// State is the session state when the failure was observed.
	State SessionState

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	return fmt.Sprintf("%s (state %s): %v", e.Command, e.State, e.Err)
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// EvaluationError is a failure reported by the target while evaluating an
// expression. It is stored on the watch and never faults the session.
type EvaluationError struct {
	Expression string
	Message    string
}

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate %q: %s", e.Expression, e.Message)
}

func rejectf(kind CommandKind, state SessionState, err error) error {
	return &CommandError{Command: kind, State: state, Err: err}
}
