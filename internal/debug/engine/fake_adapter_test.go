package engine

import (
	"context"
	"fmt"
	"sync"
)

// fakeAdapter is a scriptable Adapter. Methods block on a gate when one is
// installed for their name.
type fakeAdapter struct {
	mu sync.Mutex

	events chan Event
	calls  []string
	gates  map[string]chan struct{}
	errs   map[string]error

	frames   []StackFrame
	scopes   map[int][]ScopeRef
	vars     map[int][]Variable
	evals    map[string]string
	evalErrs map[string]error

	sent     map[string][][]SourceBreakpoint
	returned map[string]int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		events:   make(chan Event, 64),
		gates:    make(map[string]chan struct{}),
		errs:     make(map[string]error),
		scopes:   make(map[int][]ScopeRef),
		vars:     make(map[int][]Variable),
		evals:    make(map[string]string),
		evalErrs: make(map[string]error),
		sent:     make(map[string][][]SourceBreakpoint),
		returned: make(map[string]int),
	}
}

// gate installs a gate for name and returns the function opening it.
func (f *fakeAdapter) gate(name string) func() {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[name] = ch
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.gates, name)
			f.mu.Unlock()
			close(ch)
		})
	}
}

func (f *fakeAdapter) fail(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[name] = err
}

func (f *fakeAdapter) emit(ev Event) {
	f.events <- ev
}

func (f *fakeAdapter) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAdapter) count(name string) int {
	n := 0
	for _, c := range f.callLog() {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeAdapter) returns(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.returned[name]
}

func (f *fakeAdapter) lastSent(file string) []SourceBreakpoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	sets := f.sent[file]
	if len(sets) == 0 {
		return nil
	}
	return sets[len(sets)-1]
}

func (f *fakeAdapter) call(ctx context.Context, name string) error {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	gate := f.gates[name]
	err := f.errs[name]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.returned[name]++
		f.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeAdapter) Start(ctx context.Context) error             { return f.call(ctx, "start") }
func (f *fakeAdapter) ConfigurationDone(ctx context.Context) error { return f.call(ctx, "configurationDone") }
func (f *fakeAdapter) Pause(ctx context.Context) error             { return f.call(ctx, "pause") }
func (f *fakeAdapter) Continue(ctx context.Context) error          { return f.call(ctx, "continue") }
func (f *fakeAdapter) StepOver(ctx context.Context) error          { return f.call(ctx, "stepOver") }
func (f *fakeAdapter) StepInto(ctx context.Context) error          { return f.call(ctx, "stepInto") }
func (f *fakeAdapter) StepOut(ctx context.Context) error           { return f.call(ctx, "stepOut") }
func (f *fakeAdapter) Stop(ctx context.Context) error              { return f.call(ctx, "stop") }

// SetBreakpoints verifies every breakpoint and assigns adapter id 1000+line.
func (f *fakeAdapter) SetBreakpoints(ctx context.Context, file string, bps []SourceBreakpoint) ([]BreakpointStatus, error) {
	f.mu.Lock()
	f.sent[file] = append(f.sent[file], append([]SourceBreakpoint(nil), bps...))
	f.mu.Unlock()

	if err := f.call(ctx, "setBreakpoints:"+file); err != nil {
		return nil, err
	}
	statuses := make([]BreakpointStatus, len(bps))
	for i, bp := range bps {
		statuses[i] = BreakpointStatus{AdapterID: 1000 + bp.Line, Line: bp.Line, Verified: true}
	}
	return statuses, nil
}

func (f *fakeAdapter) StackTrace(ctx context.Context) ([]StackFrame, error) {
	if err := f.call(ctx, "stackTrace"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]StackFrame(nil), f.frames...), nil
}

// Scopes returns the scripted scopes, or a locals scope with reference
// frameID*100 and a globals scope with reference 1.
func (f *fakeAdapter) Scopes(ctx context.Context, frameID int) ([]ScopeRef, error) {
	if err := f.call(ctx, fmt.Sprintf("scopes:%d", frameID)); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.scopes[frameID]; ok {
		return s, nil
	}
	return []ScopeRef{
		{Scope: ScopeLocal, Name: "Locals", Reference: frameID * 100},
		{Scope: ScopeGlobal, Name: "Globals", Reference: 1},
	}, nil
}

func (f *fakeAdapter) FetchVariables(ctx context.Context, reference int) ([]Variable, error) {
	if err := f.call(ctx, fmt.Sprintf("variables:%d", reference)); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Variable(nil), f.vars[reference]...), nil
}

func (f *fakeAdapter) Evaluate(ctx context.Context, expression string, _ int) (string, error) {
	if err := f.call(ctx, "evaluate:"+expression); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.evalErrs[expression]; ok {
		return "", err
	}
	return f.evals[expression], nil
}

func (f *fakeAdapter) Events() <-chan Event {
	return f.events
}
