package script

import (
	"context"
	"sync"

	"github.com/dshills/debugsession/internal/debug/engine"
)

// fakeTarget pauses at main.go:10 when configuration is done, moves one
// line per step and terminates on continue.
type fakeTarget struct {
	mu     sync.Mutex
	events chan engine.Event
	line   int
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{events: make(chan engine.Event, 32), line: 10}
}

func (f *fakeTarget) stopped(reason string) {
	f.mu.Lock()
	line := f.line
	f.mu.Unlock()
	f.events <- engine.Event{
		Kind:   engine.EventStopped,
		Reason: reason,
		Frames: []engine.StackFrame{
			{ID: 1, Name: "main.handle", File: "/src/main.go", Line: line},
			{ID: 2, Name: "main.main", File: "/src/main.go", Line: 30},
		},
	}
}

func (f *fakeTarget) Start(context.Context) error { return nil }

func (f *fakeTarget) ConfigurationDone(context.Context) error {
	f.stopped("breakpoint")
	return nil
}

func (f *fakeTarget) Pause(context.Context) error {
	f.stopped("pause")
	return nil
}

func (f *fakeTarget) Continue(context.Context) error {
	f.events <- engine.Event{Kind: engine.EventOutput, Category: "stdout", Output: "done\n"}
	f.events <- engine.Event{Kind: engine.EventTerminated}
	return nil
}

func (f *fakeTarget) StepOver(context.Context) error {
	f.mu.Lock()
	f.line++
	f.mu.Unlock()
	f.stopped("step")
	return nil
}

func (f *fakeTarget) StepInto(ctx context.Context) error { return f.StepOver(ctx) }
func (f *fakeTarget) StepOut(ctx context.Context) error  { return f.StepOver(ctx) }
func (f *fakeTarget) Stop(context.Context) error         { return nil }

func (f *fakeTarget) SetBreakpoints(_ context.Context, _ string, bps []engine.SourceBreakpoint) ([]engine.BreakpointStatus, error) {
	out := make([]engine.BreakpointStatus, len(bps))
	for i, bp := range bps {
		out[i] = engine.BreakpointStatus{AdapterID: i + 1, Line: bp.Line, Verified: true}
	}
	return out, nil
}

func (f *fakeTarget) StackTrace(context.Context) ([]engine.StackFrame, error) {
	return nil, nil
}

func (f *fakeTarget) Scopes(context.Context, int) ([]engine.ScopeRef, error) {
	return []engine.ScopeRef{
		{Scope: engine.ScopeLocal, Name: "Locals", Reference: 1},
		{Scope: engine.ScopeGlobal, Name: "Globals", Reference: 3},
	}, nil
}

func (f *fakeTarget) FetchVariables(_ context.Context, ref int) ([]engine.Variable, error) {
	switch ref {
	case 1:
		return []engine.Variable{
			{Name: "x", Value: "41", Type: "int"},
			{Name: "cfg", Value: "main.Config {...}", Type: "main.Config", Reference: 2},
		}, nil
	case 2:
		return []engine.Variable{{Name: "Port", Value: "8080", Type: "int"}}, nil
	case 3:
		return []engine.Variable{{Name: "version", Value: `"1.0"`, Type: "string"}}, nil
	}
	return nil, nil
}

func (f *fakeTarget) Evaluate(_ context.Context, expr string, _ int) (string, error) {
	if expr == "x+1" {
		return "42", nil
	}
	return "", &engine.EvaluationError{Expression: expr, Message: "undefined: " + expr}
}

func (f *fakeTarget) Events() <-chan engine.Event { return f.events }
