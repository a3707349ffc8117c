package script

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/debugsession/internal/debug/engine"
)

// Defaults for script execution.
const (
	DefaultWaitTimeout  = 30 * time.Second
	DefaultPollInterval = 10 * time.Millisecond
)

// Runner executes Lua scripts against an engine. Each run gets a fresh Lua
// state; a Runner may be reused but not shared between goroutines.
type Runner struct {
	engine *engine.Engine
	log    *slog.Logger
	out    io.Writer

	waitTimeout  time.Duration
	pollInterval time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Runner) {
		r.log = log
	}
}

// WithOutput redirects print.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) {
		r.out = w
	}
}

// WithWaitTimeout sets the default timeout of dbg.wait and dbg.eval.
func WithWaitTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.waitTimeout = d
		}
	}
}

// NewRunner creates a runner for e.
func NewRunner(e *engine.Engine, opts ...Option) *Runner {
	r := &Runner{
		engine:       e,
		log:          slog.New(slog.DiscardHandler),
		out:          os.Stdout,
		waitTimeout:  DefaultWaitTimeout,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunFile executes the script at path.
func (r *Runner) RunFile(ctx context.Context, path string) error {
	r.log.Info("running script", slog.String("path", path))
	return r.run(ctx, func(L *lua.LState) error {
		return L.DoFile(path)
	})
}

// RunString executes src. name is used in log records only.
func (r *Runner) RunString(ctx context.Context, name, src string) error {
	r.log.Debug("running script", slog.String("name", name))
	return r.run(ctx, func(L *lua.LState) error {
		return L.DoString(src)
	})
}

func (r *Runner) run(ctx context.Context, fn func(*lua.LState) error) (err error) {
	L := r.newState(ctx)
	defer L.Close()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("lua panic: %v", p)
		}
	}()
	if err := fn(L); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("script: %w", ctx.Err())
		}
		return fmt.Errorf("script: %w", err)
	}
	return nil
}

func (r *Runner) newState(ctx context.Context) *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	L.SetContext(ctx)

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// No file or chunk loading beyond the script itself.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	L.SetGlobal("print", L.NewFunction(r.print))

	newModule(ctx, r).register(L)
	return L
}

func (r *Runner) print(L *lua.LState) int {
	top := L.GetTop()
	for i := 1; i <= top; i++ {
		if i > 1 {
			_, _ = io.WriteString(r.out, "\t")
		}
		_, _ = io.WriteString(r.out, L.ToStringMeta(L.Get(i)).String())
	}
	_, _ = io.WriteString(r.out, "\n")
	return 0
}

// Evaluate evaluates expr in the selected frame of a paused session and
// returns its value. The expression is added as a watch for the duration of
// the call.
func (r *Runner) Evaluate(ctx context.Context, expr string) (string, error) {
	return r.evaluate(ctx, expr, r.waitTimeout)
}

func (r *Runner) evaluate(ctx context.Context, expr string, timeout time.Duration) (string, error) {
	if st := r.engine.Snapshot().State; st != engine.StatePaused {
		return "", fmt.Errorf("%w: %s", engine.ErrInvalidCommand, st)
	}
	w, err := r.engine.AddWatch(ctx, expr)
	if err != nil {
		return "", err
	}
	defer func() { _ = r.engine.RemoveWatch(context.WithoutCancel(ctx), w.ID) }()

	var result engine.WatchExpression
	err = r.poll(ctx, timeout, func(s *engine.Snapshot) (bool, error) {
		got, ok := s.Watch(w.ID)
		if !ok {
			return false, engine.ErrUnknownWatch
		}
		result = got
		return got.Evaluated, nil
	})
	if err != nil {
		return "", err
	}
	if result.Error != "" {
		return "", errors.New(result.Error)
	}
	return result.Value, nil
}

// poll calls check with fresh snapshots until it reports done, fails, or
// the timeout expires.
func (r *Runner) poll(ctx context.Context, timeout time.Duration, check func(*engine.Snapshot) (bool, error)) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		done, err := check(r.engine.Snapshot())
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ticker.C:
		case <-deadline.C:
			return fmt.Errorf("%w after %s", ErrWaitTimeout, timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
