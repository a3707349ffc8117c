package engine

import (
	"context"
	"sync"
)

// CommandKind enumerates the fixed command set accepted by the engine.
type CommandKind int

const (
	CommandStart CommandKind = iota
	CommandPause
	CommandContinue
	CommandStepOver
	CommandStepInto
	CommandStepOut
	CommandRestart
	CommandStop
	CommandAddBreakpoint
	CommandRemoveBreakpoint
	CommandToggleBreakpoint
	CommandSelectFrame
	CommandExpandVariable
	CommandCollapseVariable
	CommandAddWatch
	CommandRemoveWatch
	CommandRefreshWatches
)

var commandNames = map[CommandKind]string{
	CommandStart:            "start",
	CommandPause:            "pause",
	CommandContinue:         "continue",
	CommandStepOver:         "stepOver",
	CommandStepInto:         "stepInto",
	CommandStepOut:          "stepOut",
	CommandRestart:          "restart",
	CommandStop:             "stop",
	CommandAddBreakpoint:    "addBreakpoint",
	CommandRemoveBreakpoint: "removeBreakpoint",
	CommandToggleBreakpoint: "toggleBreakpoint",
	CommandSelectFrame:      "selectFrame",
	CommandExpandVariable:   "expandVariable",
	CommandCollapseVariable: "collapseVariable",
	CommandAddWatch:         "addWatch",
	CommandRemoveWatch:      "removeWatch",
	CommandRefreshWatches:   "refreshWatches",
}

// String returns the command name.
func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return "unknown"
}

// resumes reports whether the command moves a paused session forward.
func (k CommandKind) resumes() bool {
	switch k {
	case CommandContinue, CommandStepOver, CommandStepInto, CommandStepOut:
		return true
	}
	return false
}

// Command is a request from the presentation layer. Only the fields
// relevant to Kind are read.
type Command struct {
	Kind CommandKind

	// File, Line and Condition describe a new breakpoint.
	File      string
	Line      int
	Condition string

	// ID names a breakpoint, frame or watch.
	ID int

	// Node names a variable node.
	Node NodeID

	// Expression is a new watch expression.
	Expression string
}

// Ticket tracks the outcome of an accepted command. Commands that talk to
// the adapter complete when the adapter answers; the others complete when
// accepted.
type Ticket struct {
	kind   CommandKind
	result any

	once sync.Once
	done chan struct{}
	err  error
}

func newTicket(kind CommandKind) *Ticket {
	return &Ticket{kind: kind, done: make(chan struct{})}
}

// Kind returns the command kind.
func (t *Ticket) Kind() CommandKind {
	return t.kind
}

// Result returns the value produced when the command was accepted, such as
// the created Breakpoint or WatchExpression.
func (t *Ticket) Result() any {
	return t.result
}

// Done is closed once the command completed.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Err returns the command error after Done is closed.
func (t *Ticket) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the command completes or ctx ends.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Ticket) complete(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}
