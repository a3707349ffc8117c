package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/dshills/debugsession/internal/config"
	"github.com/dshills/debugsession/internal/debug/engine"
	"github.com/dshills/debugsession/internal/script"
)

const consoleHelp = `Commands:
  break FILE:LINE[:COND]   add a breakpoint (b)
  delete ID                remove a breakpoint (d)
  toggle ID                enable or disable a breakpoint
  breakpoints              list breakpoints (bl)
  start                    start the session (r, run)
  restart                  restart the session
  continue                 resume execution (c)
  next                     step over (n)
  step                     step into (s)
  out                      step out (o)
  pause                    pause execution (p)
  stop                     end the session
  stack                    show the call stack (bt)
  frame ID                 select a frame (f)
  locals / globals         show variables
  expand SCOPE NAME...     expand a variable (x)
  collapse SCOPE NAME...   collapse a variable
  watch EXPR               add a watch expression (w)
  unwatch ID               remove a watch expression
  watches                  list watch expressions
  print EXPR               evaluate an expression in the selected frame
  lua CODE                 run a line of Lua with the dbg module
  state                    show the session state
  help                     show this help
  quit                     stop the session and exit (q, exit)`

// errQuit ends the console loop.
var errQuit = errors.New("quit")

// console is the interactive line interface over a session.
type console struct {
	s      *session
	runner *script.Runner
	in     io.Reader
	out    io.Writer
	prompt bool
}

func newConsole(s *session, in io.Reader) *console {
	return &console{
		s:      s,
		runner: script.NewRunner(s.engine, script.WithOutput(s.out), script.WithLogger(s.log)),
		in:     in,
		out:    s.out,
		prompt: isTerminal(in),
	}
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// run reads commands until quit, end of input or ctx ends.
func (c *console) run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		if c.prompt {
			fmt.Fprint(c.out, "(dbg) ")
		}
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok = <-lines:
		}
		if !ok {
			return nil
		}

		err := c.exec(ctx, line)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	}
}

// exec runs one console command.
func (c *console) exec(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	e := c.s.engine

	switch name {
	case "help", "h", "?":
		fmt.Fprintln(c.out, consoleHelp)
	case "quit", "q", "exit":
		return errQuit

	case "break", "b":
		spec, err := config.ParseBreakpoint(rest)
		if err != nil {
			return err
		}
		bp, err := e.AddBreakpoint(ctx, spec.File, spec.Line, spec.Condition)
		if bp.ID > 0 {
			fmt.Fprintf(c.out, "breakpoint %d at %s:%d\n", bp.ID, bp.File, bp.Line)
		}
		return err
	case "delete", "d":
		id, err := parseID(rest)
		if err != nil {
			return err
		}
		return e.RemoveBreakpoint(ctx, id)
	case "toggle":
		id, err := parseID(rest)
		if err != nil {
			return err
		}
		bp, err := e.ToggleBreakpoint(ctx, id)
		if err == nil {
			fmt.Fprintf(c.out, "breakpoint %d %s\n", bp.ID, enabledText(bp.Enabled))
		}
		return err
	case "breakpoints", "bl":
		c.printBreakpoints(e.Snapshot())

	case "start", "run", "r":
		return e.Start(ctx)
	case "restart":
		return e.Restart(ctx)
	case "continue", "c":
		return e.Continue(ctx)
	case "next", "n":
		return e.StepOver(ctx)
	case "step", "s":
		return e.StepInto(ctx)
	case "out", "o":
		return e.StepOut(ctx)
	case "pause", "p":
		return e.Pause(ctx)
	case "stop":
		return e.Stop(ctx)

	case "stack", "bt":
		c.printStack(e.Snapshot())
	case "frame", "f":
		id, err := parseID(rest)
		if err != nil {
			return err
		}
		return e.SelectFrame(ctx, id)
	case "locals":
		printVariables(c.out, e.Snapshot().Variables[engine.ScopeLocal], 0)
	case "globals":
		printVariables(c.out, e.Snapshot().Variables[engine.ScopeGlobal], 0)
	case "expand", "x":
		id, err := c.variable(rest)
		if err != nil {
			return err
		}
		return e.ExpandVariable(ctx, id)
	case "collapse":
		id, err := c.variable(rest)
		if err != nil {
			return err
		}
		return e.CollapseVariable(ctx, id)

	case "watch", "w":
		if rest == "" {
			return errors.New("usage: watch EXPR")
		}
		w, err := e.AddWatch(ctx, rest)
		if err == nil {
			fmt.Fprintf(c.out, "watch %d: %s\n", w.ID, w.Expression)
		}
		return err
	case "unwatch":
		id, err := parseID(rest)
		if err != nil {
			return err
		}
		return e.RemoveWatch(ctx, id)
	case "watches":
		c.printWatches(e.Snapshot())
	case "print", "eval":
		if rest == "" {
			return errors.New("usage: print EXPR")
		}
		v, err := c.runner.Evaluate(ctx, rest)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s = %s\n", rest, v)
	case "lua":
		return c.runner.RunString(ctx, "console", rest)

	case "state":
		snap := e.Snapshot()
		fmt.Fprintf(c.out, "%s (generation %d, %d pending)\n", snap.State, snap.Generation, snap.Pending)
		if snap.LastError != "" {
			fmt.Fprintf(c.out, "last error: %s\n", snap.LastError)
		}
	default:
		return fmt.Errorf("unknown command %q (try help)", name)
	}
	return nil
}

// variable resolves "SCOPE NAME..." to a node of the current snapshot.
func (c *console) variable(args string) (engine.NodeID, error) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return 0, errors.New("usage: SCOPE NAME... (scope is local or global)")
	}
	scope := engine.Scope(fields[0])
	if scope != engine.ScopeLocal && scope != engine.ScopeGlobal {
		return 0, fmt.Errorf("unknown scope %q", fields[0])
	}
	v, ok := c.s.engine.Snapshot().FindVariable(scope, fields[1:]...)
	if !ok {
		return 0, fmt.Errorf("%w: %s", engine.ErrUnknownVariable, strings.Join(fields[1:], "."))
	}
	return v.ID, nil
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func enabledText(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

func (c *console) printBreakpoints(snap *engine.Snapshot) {
	if len(snap.Breakpoints) == 0 {
		fmt.Fprintln(c.out, "no breakpoints")
		return
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLOCATION\tSTATE\tCONDITION\tMESSAGE")
	for _, bp := range snap.Breakpoints {
		state := enabledText(bp.Enabled)
		if bp.Verified {
			state += ", verified"
		}
		fmt.Fprintf(tw, "%d\t%s:%d\t%s\t%s\t%s\n", bp.ID, bp.File, bp.Line, state, bp.Condition, bp.Message)
	}
	_ = tw.Flush()
}

func (c *console) printStack(snap *engine.Snapshot) {
	if len(snap.Stack) == 0 {
		fmt.Fprintln(c.out, "no stack")
		return
	}
	for i, f := range snap.Stack {
		marker := " "
		if snap.HasSelection && f.ID == snap.SelectedFrame {
			marker = "*"
		}
		fmt.Fprintf(c.out, "%s #%d [%d] %s at %s\n", marker, i, f.ID, f.Name, f.FormatLocation())
	}
}

func (c *console) printWatches(snap *engine.Snapshot) {
	if len(snap.Watches) == 0 {
		fmt.Fprintln(c.out, "no watches")
		return
	}
	for _, w := range snap.Watches {
		switch {
		case !w.Evaluated:
			fmt.Fprintf(c.out, "%d: %s = <not evaluated>\n", w.ID, w.Expression)
		case w.Error != "":
			fmt.Fprintf(c.out, "%d: %s = <error: %s>\n", w.ID, w.Expression, w.Error)
		default:
			fmt.Fprintf(c.out, "%d: %s = %s\n", w.ID, w.Expression, w.Value)
		}
	}
}

// printVariables prints a variable tree. Containers are marked + when
// collapsed and - when expanded.
func printVariables(w io.Writer, vars []engine.VariableView, depth int) {
	if depth == 0 && len(vars) == 0 {
		fmt.Fprintln(w, "no variables")
		return
	}
	indent := strings.Repeat("  ", depth)
	for _, v := range vars {
		marker := "  "
		if v.Reference > 0 {
			marker = "+ "
			if v.Expanded {
				marker = "- "
			}
		}
		fmt.Fprintf(w, "%s%s%s = %s", indent, marker, v.Name, v.Value)
		if v.Type != "" {
			fmt.Fprintf(w, " (%s)", v.Type)
		}
		if v.Error != "" {
			fmt.Fprintf(w, " <error: %s>", v.Error)
		}
		fmt.Fprintln(w)
		if v.Expanded {
			printVariables(w, v.Children, depth+1)
		}
	}
}
