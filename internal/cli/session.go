package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"

	"github.com/dshills/debugsession/internal/config"
	"github.com/dshills/debugsession/internal/debug/adapters"
	"github.com/dshills/debugsession/internal/debug/engine"
	"github.com/dshills/debugsession/internal/event"
	"github.com/dshills/debugsession/internal/event/topic"
)

const tracerName = "github.com/dshills/debugsession"

// session wires an adapter target, the event bus and the engine, and keeps
// track of the breakpoints and watches that came from configuration.
type session struct {
	engine *engine.Engine
	target engine.Adapter
	bus    event.Bus
	log    *slog.Logger
	out    io.Writer

	mu          sync.Mutex
	breakpoints map[config.BreakpointSpec]int
	watches     map[string]int
}

// openSession resolves the adapter profile for cfg and builds a session.
func openSession(cfg config.Config, log *slog.Logger, out io.Writer) (*session, error) {
	profile, err := adapters.NewRegistry().Resolve(cfg.Adapter)
	if err != nil {
		return nil, err
	}
	target, err := adapters.NewTarget(profile, cfg.Adapter, log)
	if err != nil {
		return nil, err
	}
	log.Info("adapter selected",
		slog.String("type", string(profile.Type())),
		slog.String("request", cfg.Adapter.Request),
		slog.String("program", cfg.Adapter.Program))
	return newSession(target, cfg, log, out)
}

func newSession(target engine.Adapter, cfg config.Config, log *slog.Logger, out io.Writer) (*session, error) {
	out = &lockedWriter{w: out}
	bus := event.NewBus(event.WithLogger(log))
	e := engine.New(target,
		engine.WithLogger(log),
		engine.WithBus(bus),
		engine.WithTracer(otel.Tracer(tracerName)),
		engine.WithRequestTimeout(cfg.Engine.RequestTimeout.Std()),
		engine.WithOutputLines(cfg.Engine.OutputLines),
	)

	s := &session{
		engine:      e,
		target:      target,
		bus:         bus,
		log:         log,
		out:         out,
		breakpoints: make(map[config.BreakpointSpec]int),
		watches:     make(map[string]int),
	}
	if err := s.subscribe(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// subscribe prints session notifications as they arrive.
func (s *session) subscribe() error {
	subs := []struct {
		pattern topic.Topic
		handler event.Handler
	}{
		{engine.TopicSessionPaused, event.Typed(func(_ context.Context, ev event.Event[engine.Snapshot]) error {
			snap := ev.Payload
			if f, ok := snap.Selected(); ok {
				fmt.Fprintf(s.out, "paused in %s at %s\n", f.Name, f.FormatLocation())
			} else {
				fmt.Fprintln(s.out, "paused")
			}
			return nil
		})},
		{engine.TopicSessionStopped, event.Typed(func(_ context.Context, ev event.Event[engine.Snapshot]) error {
			if ev.Payload.LastError != "" {
				fmt.Fprintf(s.out, "session ended: %s\n", ev.Payload.LastError)
				return nil
			}
			fmt.Fprintln(s.out, "session ended")
			return nil
		})},
		{engine.TopicOutputReceived, event.Typed(func(_ context.Context, ev event.Event[engine.OutputLine]) error {
			_, err := io.WriteString(s.out, ev.Payload.Text)
			return err
		})},
		{engine.TopicCommandFailed, event.Typed(func(_ context.Context, ev event.Event[engine.CommandFailure]) error {
			fmt.Fprintf(s.out, "%s failed: %s\n", ev.Payload.Command, ev.Payload.Error)
			return nil
		})},
	}
	for _, sub := range subs {
		if _, err := s.bus.Subscribe(sub.pattern, sub.handler); err != nil {
			return fmt.Errorf("subscribe %s: %w", sub.pattern, err)
		}
	}
	return nil
}

// apply brings the configured breakpoints and watches in line with cfg.
// Entries added earlier from configuration and missing from cfg are
// removed; entries added by hand are left alone.
func (s *session) apply(ctx context.Context, cfg config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error

	want := make(map[config.BreakpointSpec]bool, len(cfg.Breakpoints))
	for _, spec := range cfg.Breakpoints {
		want[spec] = true
	}
	for spec, id := range s.breakpoints {
		if want[spec] {
			continue
		}
		delete(s.breakpoints, spec)
		if err := s.engine.RemoveBreakpoint(ctx, id); err != nil && !errors.Is(err, engine.ErrUnknownBreakpoint) {
			errs = append(errs, fmt.Errorf("remove breakpoint %s: %w", spec, err))
		}
	}
	for _, spec := range cfg.Breakpoints {
		if _, ok := s.breakpoints[spec]; ok {
			continue
		}
		bp, err := s.engine.AddBreakpoint(ctx, spec.File, spec.Line, spec.Condition)
		if bp.ID > 0 {
			s.breakpoints[spec] = bp.ID
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("breakpoint %s: %w", spec, err))
		}
	}

	wantWatch := make(map[string]bool, len(cfg.Watches))
	for _, expr := range cfg.Watches {
		wantWatch[expr] = true
	}
	for expr, id := range s.watches {
		if wantWatch[expr] {
			continue
		}
		delete(s.watches, expr)
		if err := s.engine.RemoveWatch(ctx, id); err != nil && !errors.Is(err, engine.ErrUnknownWatch) {
			errs = append(errs, fmt.Errorf("remove watch %q: %w", expr, err))
		}
	}
	for _, expr := range cfg.Watches {
		if _, ok := s.watches[expr]; ok {
			continue
		}
		w, err := s.engine.AddWatch(ctx, expr)
		if err != nil {
			errs = append(errs, fmt.Errorf("watch %q: %w", expr, err))
			continue
		}
		s.watches[expr] = w.ID
	}

	return errors.Join(errs...)
}

// shutdown stops a live session.
func (s *session) shutdown(ctx context.Context) {
	if !s.engine.Snapshot().State.Live() {
		return
	}
	if err := s.engine.Stop(ctx); err != nil {
		s.log.Warn("stop failed", slog.Any("error", err))
	}
}

// Close releases the engine, the adapter connection and the bus.
func (s *session) Close() error {
	errs := []error{s.engine.Close()}
	if c, ok := s.target.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, s.bus.Close())
	return errors.Join(errs...)
}

// lockedWriter serializes writes from bus handlers and the console.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
