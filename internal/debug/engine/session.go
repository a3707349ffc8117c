package engine

import "context"

// do dispatches a command and waits for it to complete.
func (e *Engine) do(ctx context.Context, cmd Command) (*Ticket, error) {
	t, err := e.Dispatch(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if err := t.Wait(ctx); err != nil {
		return t, err
	}
	return t, nil
}

// Start launches the debuggee and sends every breakpoint before releasing it.
func (e *Engine) Start(ctx context.Context) error {
	_, err := e.do(ctx, Command{Kind: CommandStart})
	return err
}

// Restart starts a fresh run after the previous one stopped. Breakpoints
// and watch expressions are kept.
func (e *Engine) Restart(ctx context.Context) error {
	_, err := e.do(ctx, Command{Kind: CommandRestart})
	return err
}

// Pause requests a running debuggee to suspend. The session becomes paused
// when the target reports the stop.
func (e *Engine) Pause(ctx context.Context) error {
	_, err := e.do(ctx, Command{Kind: CommandPause})
	return err
}

// Continue resumes a paused debuggee.
func (e *Engine) Continue(ctx context.Context) error {
	_, err := e.do(ctx, Command{Kind: CommandContinue})
	return err
}

// StepOver executes the next line.
func (e *Engine) StepOver(ctx context.Context) error {
	_, err := e.do(ctx, Command{Kind: CommandStepOver})
	return err
}

// StepInto steps into the next call.
func (e *Engine) StepInto(ctx context.Context) error {
	_, err := e.do(ctx, Command{Kind: CommandStepInto})
	return err
}

// StepOut runs until the current function returns.
func (e *Engine) StepOut(ctx context.Context) error {
	_, err := e.do(ctx, Command{Kind: CommandStepOut})
	return err
}

// Stop ends the session.
func (e *Engine) Stop(ctx context.Context) error {
	_, err := e.do(ctx, Command{Kind: CommandStop})
	return err
}

// AddBreakpoint creates a breakpoint. While a session is live it returns
// once the adapter acknowledged the file's new breakpoint set.
func (e *Engine) AddBreakpoint(ctx context.Context, file string, line int, condition string) (Breakpoint, error) {
	return e.breakpointCommand(ctx, Command{Kind: CommandAddBreakpoint, File: file, Line: line, Condition: condition})
}

// RemoveBreakpoint deletes a breakpoint.
func (e *Engine) RemoveBreakpoint(ctx context.Context, id int) error {
	_, err := e.breakpointCommand(ctx, Command{Kind: CommandRemoveBreakpoint, ID: id})
	return err
}

// ToggleBreakpoint flips the enabled flag and returns the updated breakpoint.
func (e *Engine) ToggleBreakpoint(ctx context.Context, id int) (Breakpoint, error) {
	return e.breakpointCommand(ctx, Command{Kind: CommandToggleBreakpoint, ID: id})
}

func (e *Engine) breakpointCommand(ctx context.Context, cmd Command) (Breakpoint, error) {
	t, err := e.do(ctx, cmd)
	if t == nil {
		return Breakpoint{}, err
	}
	bp, _ := t.Result().(Breakpoint)
	return bp, err
}

// SelectFrame selects a frame of the current stack and reloads its scopes.
func (e *Engine) SelectFrame(ctx context.Context, id int) error {
	_, err := e.do(ctx, Command{Kind: CommandSelectFrame, ID: id})
	return err
}

// ExpandVariable expands a variable node, fetching its children if needed.
// The children appear in a later snapshot.
func (e *Engine) ExpandVariable(ctx context.Context, id NodeID) error {
	_, err := e.do(ctx, Command{Kind: CommandExpandVariable, Node: id})
	return err
}

// CollapseVariable collapses a variable node.
func (e *Engine) CollapseVariable(ctx context.Context, id NodeID) error {
	_, err := e.do(ctx, Command{Kind: CommandCollapseVariable, Node: id})
	return err
}

// AddWatch adds a watch expression.
func (e *Engine) AddWatch(ctx context.Context, expression string) (WatchExpression, error) {
	t, err := e.do(ctx, Command{Kind: CommandAddWatch, Expression: expression})
	if err != nil {
		return WatchExpression{}, err
	}
	w, _ := t.Result().(WatchExpression)
	return w, nil
}

// RemoveWatch removes a watch expression.
func (e *Engine) RemoveWatch(ctx context.Context, id int) error {
	_, err := e.do(ctx, Command{Kind: CommandRemoveWatch, ID: id})
	return err
}

// RefreshWatches re-evaluates every watch at the current pause point.
func (e *Engine) RefreshWatches(ctx context.Context) error {
	_, err := e.do(ctx, Command{Kind: CommandRefreshWatches})
	return err
}
