package script

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/debugsession/internal/debug/engine"
)

// module implements the dbg table.
type module struct {
	r   *Runner
	e   *engine.Engine
	ctx context.Context
}

func newModule(ctx context.Context, r *Runner) *module {
	return &module{r: r, e: r.engine, ctx: ctx}
}

func (m *module) register(L *lua.LState) {
	mod := L.NewTable()

	// Breakpoints
	L.SetField(mod, "set_break", L.NewFunction(m.addBreakpoint))
	L.SetField(mod, "remove", L.NewFunction(m.removeBreakpoint))
	L.SetField(mod, "toggle", L.NewFunction(m.toggleBreakpoint))
	L.SetField(mod, "breakpoints", L.NewFunction(m.breakpoints))

	// Execution control
	L.SetField(mod, "start", L.NewFunction(m.control(m.e.Start)))
	L.SetField(mod, "restart", L.NewFunction(m.control(m.e.Restart)))
	L.SetField(mod, "continue", L.NewFunction(m.control(m.e.Continue)))
	L.SetField(mod, "step", L.NewFunction(m.control(m.e.StepOver)))
	L.SetField(mod, "step_in", L.NewFunction(m.control(m.e.StepInto)))
	L.SetField(mod, "step_out", L.NewFunction(m.control(m.e.StepOut)))
	L.SetField(mod, "pause", L.NewFunction(m.control(m.e.Pause)))
	L.SetField(mod, "stop", L.NewFunction(m.control(m.e.Stop)))
	L.SetField(mod, "wait", L.NewFunction(m.wait))
	L.SetField(mod, "state", L.NewFunction(m.state))
	L.SetField(mod, "sleep", L.NewFunction(m.sleep))

	// Inspection
	L.SetField(mod, "stack", L.NewFunction(m.stack))
	L.SetField(mod, "frame", L.NewFunction(m.selectFrame))
	L.SetField(mod, "locals", L.NewFunction(m.scope(engine.ScopeLocal)))
	L.SetField(mod, "globals", L.NewFunction(m.scope(engine.ScopeGlobal)))
	L.SetField(mod, "var", L.NewFunction(m.variable))
	L.SetField(mod, "expand", L.NewFunction(m.expand))
	L.SetField(mod, "watch", L.NewFunction(m.addWatch))
	L.SetField(mod, "unwatch", L.NewFunction(m.removeWatch))
	L.SetField(mod, "watches", L.NewFunction(m.watches))
	L.SetField(mod, "eval", L.NewFunction(m.eval))
	L.SetField(mod, "output", L.NewFunction(m.output))

	L.SetGlobal("dbg", mod)
}

// raise turns err into a Lua error. It never returns normally.
func raise(L *lua.LState, name string, err error) int {
	L.RaiseError("%s: %v", name, err)
	return 0
}

func (m *module) control(fn func(context.Context) error) lua.LGFunction {
	return func(L *lua.LState) int {
		if err := fn(m.ctx); err != nil {
			return raise(L, "dbg", err)
		}
		return 0
	}
}

// set_break(file, line [, condition]) -> id
func (m *module) addBreakpoint(L *lua.LState) int {
	file := L.CheckString(1)
	line := L.CheckInt(2)
	cond := L.OptString(3, "")

	bp, err := m.e.AddBreakpoint(m.ctx, file, line, cond)
	if err != nil {
		return raise(L, "set_break", err)
	}
	L.Push(lua.LNumber(bp.ID))
	return 1
}

// remove(id)
func (m *module) removeBreakpoint(L *lua.LState) int {
	if err := m.e.RemoveBreakpoint(m.ctx, L.CheckInt(1)); err != nil {
		return raise(L, "remove", err)
	}
	return 0
}

// toggle(id) -> enabled
func (m *module) toggleBreakpoint(L *lua.LState) int {
	bp, err := m.e.ToggleBreakpoint(m.ctx, L.CheckInt(1))
	if err != nil {
		return raise(L, "toggle", err)
	}
	L.Push(lua.LBool(bp.Enabled))
	return 1
}

// breakpoints() -> {{id, file, line, condition, enabled, verified, message}, ...}
func (m *module) breakpoints(L *lua.LState) int {
	list := L.NewTable()
	for _, bp := range m.e.Snapshot().Breakpoints {
		t := L.NewTable()
		L.SetField(t, "id", lua.LNumber(bp.ID))
		L.SetField(t, "file", lua.LString(bp.File))
		L.SetField(t, "line", lua.LNumber(bp.Line))
		L.SetField(t, "condition", lua.LString(bp.Condition))
		L.SetField(t, "enabled", lua.LBool(bp.Enabled))
		L.SetField(t, "verified", lua.LBool(bp.Verified))
		L.SetField(t, "message", lua.LString(bp.Message))
		list.Append(t)
	}
	L.Push(list)
	return 1
}

// state() -> "idle" | "running" | "paused" | "stopped"
func (m *module) state(L *lua.LState) int {
	L.Push(lua.LString(m.e.Snapshot().State.String()))
	return 1
}

// wait(state [, timeout_ms]) -> state
// Blocks until the session reaches state. Waiting for anything but
// "stopped" fails once the session has stopped.
func (m *module) wait(L *lua.LState) int {
	want := L.CheckString(1)
	timeout := m.timeout(L, 2)

	var got engine.SessionState
	err := m.poll(timeout, func(s *engine.Snapshot) (bool, error) {
		got = s.State
		if got.String() == want {
			return true, nil
		}
		if got == engine.StateStopped {
			if s.LastError != "" {
				return false, fmt.Errorf("%w: %s", ErrSessionStopped, s.LastError)
			}
			return false, ErrSessionStopped
		}
		return false, nil
	})
	if err != nil {
		return raise(L, "wait "+want, err)
	}
	L.Push(lua.LString(got.String()))
	return 1
}

// sleep(ms)
func (m *module) sleep(L *lua.LState) int {
	d := time.Duration(L.CheckInt(1)) * time.Millisecond
	select {
	case <-time.After(d):
	case <-m.ctx.Done():
		return raise(L, "sleep", m.ctx.Err())
	}
	return 0
}

// stack() -> {{id, name, file, line, column, selected}, ...}
func (m *module) stack(L *lua.LState) int {
	s := m.e.Snapshot()
	list := L.NewTable()
	for _, f := range s.Stack {
		t := L.NewTable()
		L.SetField(t, "id", lua.LNumber(f.ID))
		L.SetField(t, "name", lua.LString(f.Name))
		L.SetField(t, "file", lua.LString(f.File))
		L.SetField(t, "line", lua.LNumber(f.Line))
		L.SetField(t, "column", lua.LNumber(f.Column))
		L.SetField(t, "selected", lua.LBool(s.HasSelection && s.SelectedFrame == f.ID))
		list.Append(t)
	}
	L.Push(list)
	return 1
}

// frame(id)
func (m *module) selectFrame(L *lua.LState) int {
	if err := m.e.SelectFrame(m.ctx, L.CheckInt(1)); err != nil {
		return raise(L, "frame", err)
	}
	return 0
}

// locals() / globals() -> {name = value, ...}
func (m *module) scope(scope engine.Scope) lua.LGFunction {
	return func(L *lua.LState) int {
		t := L.NewTable()
		for _, v := range m.e.Snapshot().Variables[scope] {
			L.SetField(t, v.Name, lua.LString(v.Value))
		}
		L.Push(t)
		return 1
	}
}

// var(scope, name, ...) -> value, type
// Returns nil when the path is not visible.
func (m *module) variable(L *lua.LState) int {
	scope, path := m.path(L)
	v, ok := m.e.Snapshot().FindVariable(scope, path...)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(v.Value))
	L.Push(lua.LString(v.Type))
	return 2
}

// expand(scope, name, ...) -> {name = value, ...}
// Expands the variable and waits for its children.
func (m *module) expand(L *lua.LState) int {
	scope, path := m.path(L)
	label := strings.Join(path, ".")

	v, ok := m.e.Snapshot().FindVariable(scope, path...)
	if !ok {
		return raise(L, "expand "+label, engine.ErrUnknownVariable)
	}
	if err := m.e.ExpandVariable(m.ctx, v.ID); err != nil {
		return raise(L, "expand "+label, err)
	}

	var children []engine.VariableView
	err := m.poll(m.r.waitTimeout, func(s *engine.Snapshot) (bool, error) {
		v, ok := s.FindVariable(scope, path...)
		if !ok {
			return false, engine.ErrUnknownVariable
		}
		if v.Error != "" {
			return false, errors.New(v.Error)
		}
		children = v.Children
		return v.Reference == 0 || len(children) > 0, nil
	})
	if err != nil {
		return raise(L, "expand "+label, err)
	}

	t := L.NewTable()
	for _, c := range children {
		L.SetField(t, c.Name, lua.LString(c.Value))
	}
	L.Push(t)
	return 1
}

func (m *module) path(L *lua.LState) (engine.Scope, []string) {
	scope := engine.Scope(L.CheckString(1))
	if scope != engine.ScopeLocal && scope != engine.ScopeGlobal {
		L.ArgError(1, "scope must be \"local\" or \"global\"")
	}
	top := L.GetTop()
	if top < 2 {
		L.ArgError(2, "variable name expected")
	}
	path := make([]string, 0, top-1)
	for i := 2; i <= top; i++ {
		path = append(path, L.CheckString(i))
	}
	return scope, path
}

// watch(expr) -> id
func (m *module) addWatch(L *lua.LState) int {
	w, err := m.e.AddWatch(m.ctx, L.CheckString(1))
	if err != nil {
		return raise(L, "watch", err)
	}
	L.Push(lua.LNumber(w.ID))
	return 1
}

// unwatch(id)
func (m *module) removeWatch(L *lua.LState) int {
	if err := m.e.RemoveWatch(m.ctx, L.CheckInt(1)); err != nil {
		return raise(L, "unwatch", err)
	}
	return 0
}

// watches() -> {{id, expression, value, error}, ...}
func (m *module) watches(L *lua.LState) int {
	list := L.NewTable()
	for _, w := range m.e.Snapshot().Watches {
		t := L.NewTable()
		L.SetField(t, "id", lua.LNumber(w.ID))
		L.SetField(t, "expression", lua.LString(w.Expression))
		if w.Evaluated {
			if w.Error != "" {
				L.SetField(t, "error", lua.LString(w.Error))
			} else {
				L.SetField(t, "value", lua.LString(w.Value))
			}
		}
		list.Append(t)
	}
	L.Push(list)
	return 1
}

// eval(expr [, timeout_ms]) -> value
func (m *module) eval(L *lua.LState) int {
	expr := L.CheckString(1)
	value, err := m.r.evaluate(m.ctx, expr, m.timeout(L, 2))
	if err != nil {
		return raise(L, "eval "+expr, err)
	}
	L.Push(lua.LString(value))
	return 1
}

// output() -> string
func (m *module) output(L *lua.LState) int {
	var b strings.Builder
	for _, line := range m.e.Snapshot().Output {
		b.WriteString(line.Text)
	}
	L.Push(lua.LString(b.String()))
	return 1
}

func (m *module) timeout(L *lua.LState, n int) time.Duration {
	if ms := L.OptInt(n, 0); ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return m.r.waitTimeout
}

func (m *module) poll(timeout time.Duration, check func(*engine.Snapshot) (bool, error)) error {
	return m.r.poll(m.ctx, timeout, check)
}
