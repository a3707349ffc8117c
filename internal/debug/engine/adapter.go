package engine

import "context"

// Adapter is the capability the engine consumes from a debug target.
// Every method may block; the engine never calls them from its event loop.
type Adapter interface {
	// Start connects to the target and launches or attaches the debuggee.
	// The debuggee is held until ConfigurationDone.
	Start(ctx context.Context) error

	// ConfigurationDone releases the debuggee once breakpoints are set.
	ConfigurationDone(ctx context.Context) error

	// Pause requests the debuggee to suspend.
	Pause(ctx context.Context) error

	// Continue resumes the debuggee.
	Continue(ctx context.Context) error

	// StepOver executes to the next line in the current frame.
	StepOver(ctx context.Context) error

	// StepInto steps into the call on the current line.
	StepInto(ctx context.Context) error

	// StepOut runs until the current frame returns.
	StepOut(ctx context.Context) error

	// Stop ends the session and terminates the debuggee.
	Stop(ctx context.Context) error

	// SetBreakpoints replaces the full breakpoint set for a file. The
	// result is positional: result[i] describes breakpoints[i].
	SetBreakpoints(ctx context.Context, file string, breakpoints []SourceBreakpoint) ([]BreakpointStatus, error)

	// StackTrace returns the frames of the stopped thread, innermost first.
	StackTrace(ctx context.Context) ([]StackFrame, error)

	// Scopes returns the variable scopes for a frame.
	Scopes(ctx context.Context, frameID int) ([]ScopeRef, error)

	// FetchVariables returns the children of a variables reference.
	FetchVariables(ctx context.Context, reference int) ([]Variable, error)

	// Evaluate evaluates an expression in the context of a frame.
	Evaluate(ctx context.Context, expression string, frameID int) (string, error)

	// Events returns the ordered stream of target events.
	Events() <-chan Event
}

// SourceBreakpoint is a breakpoint as sent to the adapter.
type SourceBreakpoint struct {
	Line      int
	Condition string
	Enabled   bool
}

// BreakpointStatus is the adapter's answer for one sent breakpoint.
type BreakpointStatus struct {
	// AdapterID is the adapter-side identifier, zero if none.
	AdapterID int
	Line      int
	Verified  bool
	Message   string
}

// Scope identifies a variable root set.
type Scope string

const (
	// ScopeLocal holds locals and arguments of the selected frame.
	ScopeLocal Scope = "local"
	// ScopeGlobal holds package or module level variables.
	ScopeGlobal Scope = "global"
)

// ScopeRef is a scope reported by the adapter for a frame.
type ScopeRef struct {
	Scope     Scope
	Name      string
	Reference int
}

// Variable is a variable as returned by the adapter.
type Variable struct {
	Name      string
	Value     string
	Type      string
	Reference int
}

// EventKind identifies an adapter event.
type EventKind int

const (
	// EventStopped reports that execution paused.
	EventStopped EventKind = iota
	// EventContinued reports that execution resumed without a request.
	EventContinued
	// EventTerminated reports that the debuggee ended.
	EventTerminated
	// EventOutput carries program or adapter output.
	EventOutput
	// EventBreakpointChanged reports a verification change.
	EventBreakpointChanged
	// EventDisconnected reports that the transport was lost.
	EventDisconnected
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventStopped:
		return "stopped"
	case EventContinued:
		return "continued"
	case EventTerminated:
		return "terminated"
	case EventOutput:
		return "output"
	case EventBreakpointChanged:
		return "breakpoint"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is a single adapter event. Fields are populated per Kind.
type Event struct {
	Kind EventKind

	// Stopped
	Reason   string
	FrameID  int
	HitIDs   []int
	Frames   []StackFrame
	Category string

	// Output
	Output string

	// BreakpointChanged
	Breakpoint BreakpointStatus

	// Disconnected
	Err error
}
