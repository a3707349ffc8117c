package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/debugsession/internal/event"
	"github.com/dshills/debugsession/internal/event/topic"
)

const tracerName = "github.com/dshills/debugsession/internal/debug/engine"

// Engine is the command dispatcher of a debug session. A single loop
// goroutine owns the state machine, breakpoints, call stack, variable tree
// and watches; adapter requests run on helper goroutines and report back
// into the loop.
type Engine struct {
	id          string
	adapter     Adapter
	log         *slog.Logger
	bus         event.Bus
	tracer      trace.Tracer
	timeout     time.Duration
	outputLimit int

	ctx       context.Context
	cancel    context.CancelFunc
	requests  chan request
	results   chan func()
	loopDone  chan struct{}
	closeOnce sync.Once

	snapshot atomic.Pointer[Snapshot]

	// Owned by the loop goroutine.
	sm          *StateMachine
	breakpoints *BreakpointRegistry
	stack       *CallStack
	vars        *VariableTree
	watches     *WatchEvaluator
	generation  uint64
	session     uint64
	queue       []*job
	inflight    *job
	stopping    *job
	superseded  []*job
	output      []OutputLine
	lastErr     string
}

type request struct {
	cmd   Command
	reply chan reply
}

type reply struct {
	ticket *Ticket
	err    error
}

// adapterCall runs off the loop. The returned function, if any, is applied
// on the loop before the job completes.
type adapterCall func(ctx context.Context) (func(), error)

// job is a serialized adapter command.
type job struct {
	kind      CommandKind
	name      string
	lifecycle bool
	final     bool
	session   uint64
	ticket    *Ticket
	prepare   func() adapterCall
}

func (j *job) complete(err error) {
	if j.ticket != nil {
		j.ticket.complete(err)
	}
}

// New creates an engine bound to adapter and starts its loop.
func New(adapter Adapter, opts ...Option) *Engine {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	if cfg.tracer == nil {
		cfg.tracer = otel.Tracer(tracerName)
	}
	if cfg.sessionID == "" {
		cfg.sessionID = uuid.NewString()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		id:          cfg.sessionID,
		adapter:     adapter,
		log:         cfg.logger.With(slog.String("session", cfg.sessionID)),
		bus:         cfg.bus,
		tracer:      cfg.tracer,
		timeout:     cfg.requestTimeout,
		outputLimit: cfg.outputLines,
		ctx:         ctx,
		cancel:      cancel,
		requests:    make(chan request),
		results:     make(chan func(), 64),
		loopDone:    make(chan struct{}),
		sm:          NewStateMachine(),
		breakpoints: NewBreakpointRegistry(),
		stack:       NewCallStack(),
		vars:        NewVariableTree(),
		watches:     NewWatchEvaluator(),
	}
	e.snapshot.Store(e.buildSnapshot())

	go e.loop()
	return e
}

// ID returns the session identifier.
func (e *Engine) ID() string {
	return e.id
}

// Snapshot returns the latest immutable state view.
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshot.Load()
}

// Close stops the loop. Pending tickets fail with ErrClosed. The adapter is
// not stopped; issue Stop first for a clean shutdown.
func (e *Engine) Close() error {
	e.closeOnce.Do(e.cancel)
	<-e.loopDone
	return nil
}

// Dispatch submits a command. Rejections are returned synchronously and
// leave the engine untouched; accepted commands return a ticket.
func (e *Engine) Dispatch(ctx context.Context, cmd Command) (*Ticket, error) {
	req := request{cmd: cmd, reply: make(chan reply, 1)}
	select {
	case e.requests <- req:
	case <-e.ctx.Done():
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-req.reply:
		return r.ticket, r.err
	case <-e.loopDone:
		return nil, ErrClosed
	}
}

func (e *Engine) loop() {
	defer close(e.loopDone)

	events := e.adapter.Events()
	for {
		select {
		case <-e.ctx.Done():
			e.shutdown()
			return
		case req := <-e.requests:
			t, err := e.handle(req.cmd)
			req.reply <- reply{ticket: t, err: err}
		case apply := <-e.results:
			apply()
		case ev, ok := <-events:
			if !ok {
				events = nil
				ev = Event{Kind: EventDisconnected, Err: ErrAdapterDisconnected}
			}
			e.applyEvent(ev)
		}
	}
}

func (e *Engine) shutdown() {
	pending := append([]*job{}, e.queue...)
	pending = append(pending, e.superseded...)
	if e.inflight != nil {
		pending = append(pending, e.inflight)
	}
	if e.stopping != nil {
		pending = append(pending, e.stopping)
	}
	for _, j := range pending {
		j.complete(ErrClosed)
	}
	e.queue, e.superseded, e.inflight, e.stopping = nil, nil, nil, nil
}

// handle validates and applies a command on the loop.
func (e *Engine) handle(cmd Command) (*Ticket, error) {
	state := e.sm.State()
	if !e.sm.Allows(cmd.Kind) {
		e.log.Debug("command rejected",
			slog.String("command", cmd.Kind.String()),
			slog.String("state", state.String()))
		return nil, rejectf(cmd.Kind, state, ErrInvalidCommand)
	}

	var (
		t   *Ticket
		err error
	)
	switch cmd.Kind {
	case CommandStart, CommandRestart:
		t = e.start(cmd.Kind)
	case CommandPause:
		t = e.pause()
	case CommandContinue, CommandStepOver, CommandStepInto, CommandStepOut:
		t = e.resume(cmd.Kind)
	case CommandStop:
		t = e.stop()
	case CommandAddBreakpoint:
		t, err = e.addBreakpoint(cmd)
	case CommandRemoveBreakpoint:
		t, err = e.removeBreakpoint(cmd)
	case CommandToggleBreakpoint:
		t, err = e.toggleBreakpoint(cmd)
	case CommandSelectFrame:
		t, err = e.selectFrame(cmd)
	case CommandExpandVariable:
		t, err = e.expandVariable(cmd)
	case CommandCollapseVariable:
		t, err = e.collapseVariable(cmd)
	case CommandAddWatch:
		t, err = e.addWatch(cmd)
	case CommandRemoveWatch:
		t, err = e.removeWatch(cmd)
	case CommandRefreshWatches:
		t = e.refreshWatches()
	}
	if err != nil {
		e.log.Debug("command rejected",
			slog.String("command", cmd.Kind.String()),
			slog.String("state", state.String()),
			slog.Any("error", err))
		return nil, rejectf(cmd.Kind, state, err)
	}

	e.changed()
	switch {
	case cmd.Kind == CommandStart, cmd.Kind == CommandRestart, cmd.Kind.resumes():
		e.notify(TopicSessionResumed)
	case cmd.Kind == CommandStop:
		e.notify(TopicSessionStopped)
	}
	return t, nil
}

func doneTicket(kind CommandKind, result any) *Ticket {
	t := newTicket(kind)
	t.result = result
	t.complete(nil)
	return t
}

// Lifecycle commands

func (e *Engine) start(kind CommandKind) *Ticket {
	e.sm.Begin(kind)
	e.session++
	e.invalidate()
	e.watches.ClearValues()
	e.breakpoints.ResetVerification()
	e.lastErr = ""

	e.log.Info("session starting", slog.String("command", kind.String()))

	t := newTicket(kind)
	e.enqueue(e.lifecycleJob(kind, "launch", t, false, e.adapter.Start))
	for _, file := range e.breakpoints.Files() {
		e.enqueue(e.breakpointJob(kind, file, nil))
	}
	e.enqueue(e.lifecycleJob(kind, "configurationDone", t, true, e.adapter.ConfigurationDone))
	return t
}

func (e *Engine) pause() *Ticket {
	if e.sm.State() == StatePaused || e.sm.PausePending() {
		return doneTicket(CommandPause, nil)
	}
	e.sm.Begin(CommandPause)

	t := newTicket(CommandPause)
	j := e.lifecycleJob(CommandPause, "pause", t, true, e.adapter.Pause)
	j.lifecycle = false
	e.enqueue(j)
	return t
}

func (e *Engine) resume(kind CommandKind) *Ticket {
	e.sm.Begin(kind)
	e.invalidate()

	var (
		name string
		fn   func(context.Context) error
	)
	switch kind {
	case CommandContinue:
		name, fn = "continue", e.adapter.Continue
	case CommandStepOver:
		name, fn = "next", e.adapter.StepOver
	case CommandStepInto:
		name, fn = "stepIn", e.adapter.StepInto
	default:
		name, fn = "stepOut", e.adapter.StepOut
	}

	t := newTicket(kind)
	e.enqueue(e.lifecycleJob(kind, name, t, true, fn))
	return t
}

// stop is sent immediately, ahead of any queued command. Commands queued
// before it are dropped once it is acknowledged.
func (e *Engine) stop() *Ticket {
	e.sm.Begin(CommandStop)
	e.invalidate()
	e.breakpoints.ResetVerification()
	e.superseded = append(e.superseded, e.queue...)
	e.queue = nil

	e.log.Info("session stopping", slog.Int("superseded", len(e.superseded)))

	t := newTicket(CommandStop)
	j := e.lifecycleJob(CommandStop, "disconnect", t, true, e.adapter.Stop)
	j.lifecycle = false
	e.stopping = j
	e.send(j, func(err error) { e.stopAcknowledged(j, err) })
	return t
}

func (e *Engine) stopAcknowledged(j *job, err error) {
	if e.stopping == j {
		e.stopping = nil
	}
	dropped := e.superseded
	e.superseded = nil

	var cerr *CommandError
	if err != nil {
		cerr = e.report(j, err)
	}
	e.sendNext()
	e.changed()

	failJobs(dropped, ErrSuperseded)
	if cerr != nil {
		j.complete(cerr)
	} else {
		j.complete(nil)
	}
}

// Breakpoint commands

func (e *Engine) addBreakpoint(cmd Command) (*Ticket, error) {
	if cmd.File == "" || cmd.Line <= 0 {
		return nil, fmt.Errorf("%w: breakpoint needs a file and a positive line", ErrInvalidCommand)
	}
	bp, err := e.breakpoints.Add(cmd.File, cmd.Line, cmd.Condition)
	if err != nil {
		return nil, err
	}
	return e.syncFile(CommandAddBreakpoint, bp.File, bp), nil
}

func (e *Engine) removeBreakpoint(cmd Command) (*Ticket, error) {
	bp, err := e.breakpoints.Remove(cmd.ID)
	if err != nil {
		return nil, err
	}
	return e.syncFile(CommandRemoveBreakpoint, bp.File, bp), nil
}

func (e *Engine) toggleBreakpoint(cmd Command) (*Ticket, error) {
	bp, err := e.breakpoints.ToggleEnabled(cmd.ID)
	if err != nil {
		return nil, err
	}
	return e.syncFile(CommandToggleBreakpoint, bp.File, bp), nil
}

// syncFile re-sends the full set of a file when a session is live.
func (e *Engine) syncFile(kind CommandKind, file string, result Breakpoint) *Ticket {
	if !e.sm.State().Live() {
		return doneTicket(kind, result)
	}
	t := newTicket(kind)
	t.result = result
	e.enqueue(e.breakpointJob(kind, file, t))
	return t
}

func (e *Engine) breakpointJob(kind CommandKind, file string, t *Ticket) *job {
	session := e.session
	return &job{
		kind:    kind,
		name:    "setBreakpoints",
		final:   true,
		session: session,
		ticket:  t,
		prepare: func() adapterCall {
			ids, set := e.breakpoints.request(file)
			return func(ctx context.Context) (func(), error) {
				statuses, err := e.adapter.SetBreakpoints(ctx, file, set)
				if err != nil {
					return nil, err
				}
				return func() { e.applyBreakpoints(session, ids, statuses) }, nil
			}
		},
	}
}

func (e *Engine) applyBreakpoints(session uint64, ids []int, statuses []BreakpointStatus) {
	if session != e.session || !e.sm.State().Live() {
		e.log.Debug("discarding breakpoint response from an ended session")
		return
	}
	for i, id := range ids {
		if i >= len(statuses) {
			break
		}
		e.breakpoints.MarkVerified(id, statuses[i])
	}
}

// Inspection commands

func (e *Engine) selectFrame(cmd Command) (*Ticket, error) {
	frame, err := e.stack.Select(cmd.ID)
	if err != nil {
		return nil, err
	}
	e.vars.ResetRoots()
	e.refreshScopes()
	return doneTicket(CommandSelectFrame, frame), nil
}

func (e *Engine) expandVariable(cmd Command) (*Ticket, error) {
	ref, err := e.vars.Expand(cmd.Node)
	if err != nil {
		return nil, err
	}
	if ref != 0 {
		e.fetchChildren(ref)
	}
	return doneTicket(CommandExpandVariable, nil), nil
}

func (e *Engine) collapseVariable(cmd Command) (*Ticket, error) {
	if err := e.vars.Collapse(cmd.Node); err != nil {
		return nil, err
	}
	return doneTicket(CommandCollapseVariable, nil), nil
}

func (e *Engine) addWatch(cmd Command) (*Ticket, error) {
	if cmd.Expression == "" {
		return nil, fmt.Errorf("%w: empty watch expression", ErrInvalidCommand)
	}
	w := e.watches.Add(cmd.Expression)
	if e.sm.State() == StatePaused {
		e.evaluateWatch(w.ID)
	}
	return doneTicket(CommandAddWatch, w), nil
}

func (e *Engine) removeWatch(cmd Command) (*Ticket, error) {
	if err := e.watches.Remove(cmd.ID); err != nil {
		return nil, err
	}
	return doneTicket(CommandRemoveWatch, nil), nil
}

func (e *Engine) refreshWatches() *Ticket {
	if e.sm.State() == StatePaused {
		e.reevaluateWatches()
	}
	return doneTicket(CommandRefreshWatches, nil)
}

// Serialized adapter queue

func (e *Engine) lifecycleJob(kind CommandKind, name string, t *Ticket, final bool, fn func(context.Context) error) *job {
	return &job{
		kind:      kind,
		name:      name,
		lifecycle: true,
		final:     final,
		session:   e.session,
		ticket:    t,
		prepare: func() adapterCall {
			return func(ctx context.Context) (func(), error) {
				return nil, fn(ctx)
			}
		},
	}
}

func (e *Engine) enqueue(j *job) {
	e.queue = append(e.queue, j)
	e.sendNext()
}

// sendNext starts the next queued command when nothing is in flight.
func (e *Engine) sendNext() {
	if e.inflight != nil || e.stopping != nil || len(e.queue) == 0 {
		return
	}
	j := e.queue[0]
	e.queue = e.queue[1:]
	e.inflight = j
	e.send(j, func(err error) { e.finish(j, err) })
}

func (e *Engine) send(j *job, done func(error)) {
	call := j.prepare()
	e.spawn(j.name, func(ctx context.Context) func() {
		apply, err := call(ctx)
		err = adapterError(ctx, err)
		return func() {
			if apply != nil {
				apply()
			}
			done(err)
		}
	})
}

// finish applies the outcome of a queued job. Tickets complete after the
// snapshot reflects the outcome.
func (e *Engine) finish(j *job, err error) {
	if e.inflight == j {
		e.inflight = nil
	}

	var (
		cerr    *CommandError
		dropped []*job
	)
	if err != nil {
		current := j.session == e.session
		if j.kind == CommandPause && current {
			e.sm.CancelPause()
		}
		cerr = e.report(j, err)
		if j.lifecycle && current && e.sm.State().Live() {
			e.log.Warn("lifecycle command failed, stopping session",
				slog.String("command", j.kind.String()),
				slog.Any("error", err))
			dropped = e.endSession("lifecycle failure")
			e.lastErr = cerr.Error()
		}
	}
	e.sendNext()
	e.changed()

	switch {
	case cerr != nil:
		j.complete(cerr)
	case j.final:
		j.complete(nil)
	}
	failJobs(dropped, ErrSuperseded)
}

// report records and publishes a failed job.
func (e *Engine) report(j *job, err error) *CommandError {
	cerr := &CommandError{Command: j.kind, State: e.sm.State(), Err: err}
	e.lastErr = cerr.Error()
	e.log.Warn("adapter request failed",
		slog.String("request", j.name),
		slog.String("command", j.kind.String()),
		slog.Any("error", err))
	publish(e, TopicCommandFailed, CommandFailure{Command: j.kind, Error: err.Error()})
	return cerr
}

func failJobs(jobs []*job, err error) {
	for _, j := range jobs {
		j.complete(&CommandError{Command: j.kind, State: StateStopped, Err: err})
	}
}

// spawn runs fn off the loop under the request timeout and posts the
// returned continuation back to the loop.
func (e *Engine) spawn(name string, fn func(ctx context.Context) func()) {
	gen := e.generation
	go func() {
		ctx, cancel := context.WithTimeout(e.ctx, e.timeout)
		defer cancel()

		ctx, span := e.tracer.Start(ctx, "debug.adapter."+name,
			trace.WithAttributes(
				attribute.String("debug.session_id", e.id),
				attribute.Int64("debug.generation", int64(gen)),
			))
		apply := fn(ctx)
		span.End()

		e.post(apply)
	}()
}

func (e *Engine) post(apply func()) {
	if apply == nil {
		return
	}
	select {
	case e.results <- apply:
	case <-e.ctx.Done():
	}
}

// adapterError maps deadline failures to ErrAdapterTimeout.
func adapterError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrAdapterTimeout) || errors.Is(err, ErrAdapterDisconnected) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrAdapterTimeout, err)
	}
	return err
}

// Generation tagged fetches

// invalidate starts a new generation: every outstanding fetch becomes
// stale and all pause-point data is dropped.
func (e *Engine) invalidate() {
	e.generation++
	e.stack.Clear()
	e.vars.Invalidate(e.generation)
	e.watches.Forget()
}

func (e *Engine) refreshScopes() {
	frame, ok := e.stack.Selected()
	if !ok {
		return
	}
	gen, frameID := e.generation, frame.ID

	e.spawn("scopes", func(ctx context.Context) func() {
		roots, err := e.loadRoots(ctx, frameID)
		err = adapterError(ctx, err)
		return func() {
			if gen != e.generation {
				e.log.Debug("discarding stale scopes", slog.Uint64("generation", gen))
				return
			}
			if sel, ok := e.stack.Selected(); !ok || sel.ID != frameID {
				return
			}
			if err != nil {
				e.lastErr = fmt.Sprintf("load variables: %v", err)
				e.log.Warn("scope refresh failed", slog.Int("frame", frameID), slog.Any("error", err))
				e.changed()
				return
			}
			e.vars.SetRoots(ScopeLocal, gen, roots[ScopeLocal])
			e.vars.SetRoots(ScopeGlobal, gen, roots[ScopeGlobal])
			e.changed()
		}
	})
}

func (e *Engine) loadRoots(ctx context.Context, frameID int) (map[Scope][]Variable, error) {
	scopes, err := e.adapter.Scopes(ctx, frameID)
	if err != nil {
		return nil, fmt.Errorf("scopes: %w", err)
	}
	roots := make(map[Scope][]Variable, 2)
	for _, s := range scopes {
		vars, err := e.adapter.FetchVariables(ctx, s.Reference)
		if err != nil {
			return nil, fmt.Errorf("variables of %s: %w", s.Name, err)
		}
		roots[s.Scope] = append(roots[s.Scope], vars...)
	}
	return roots, nil
}

func (e *Engine) fetchChildren(ref int) {
	gen := e.generation
	e.spawn("variables", func(ctx context.Context) func() {
		vars, err := e.adapter.FetchVariables(ctx, ref)
		err = adapterError(ctx, err)
		return func() {
			var applied bool
			if err != nil {
				applied = e.vars.Fail(ref, gen, err)
			} else {
				applied = e.vars.Populate(ref, gen, vars)
			}
			if !applied {
				e.log.Debug("discarding stale variables",
					slog.Int("reference", ref),
					slog.Uint64("generation", gen))
				return
			}
			e.changed()
		}
	})
}

func (e *Engine) reevaluateWatches() {
	for _, w := range e.watches.All() {
		e.evaluateWatch(w.ID)
	}
}

func (e *Engine) evaluateWatch(id int) {
	frame, ok := e.stack.Selected()
	if !ok {
		return
	}
	w, ok := e.watches.Get(id)
	if !ok {
		return
	}
	token, _ := e.watches.Issue(id)
	gen, frameID, expr := e.generation, frame.ID, w.Expression

	e.spawn("evaluate", func(ctx context.Context) func() {
		value, err := e.adapter.Evaluate(ctx, expr, frameID)
		err = adapterError(ctx, err)
		if err != nil && !errors.Is(err, ErrAdapterTimeout) && !errors.Is(err, ErrAdapterDisconnected) {
			var evalErr *EvaluationError
			if !errors.As(err, &evalErr) {
				err = &EvaluationError{Expression: expr, Message: err.Error()}
			}
		}
		return func() {
			if gen != e.generation {
				e.log.Debug("discarding stale watch result",
					slog.String("expression", expr),
					slog.Uint64("generation", gen))
				return
			}
			if e.watches.Apply(id, token, value, err) {
				e.changed()
			}
		}
	})
}

// Adapter events

func (e *Engine) applyEvent(ev Event) {
	e.log.Debug("adapter event", slog.String("event", ev.Kind.String()))

	switch ev.Kind {
	case EventStopped:
		e.onStopped(ev)
	case EventContinued:
		if e.sm.Resumed() {
			e.invalidate()
			e.changed()
			e.notify(TopicSessionResumed)
		}
	case EventTerminated:
		failJobs(e.endSession("terminated"), ErrSuperseded)
	case EventDisconnected:
		cause := ev.Err
		if cause == nil {
			cause = ErrAdapterDisconnected
		}
		if e.sm.State().Live() {
			e.lastErr = cause.Error()
		}
		failJobs(e.endSession("disconnected"), ErrAdapterDisconnected)
	case EventOutput:
		e.appendOutput(OutputLine{Category: ev.Category, Text: ev.Output})
	case EventBreakpointChanged:
		bp, ok := e.breakpoints.ByAdapterID(ev.Breakpoint.AdapterID)
		if ok && e.breakpoints.MarkVerified(bp.ID, ev.Breakpoint) {
			e.changed()
		}
	}
}

func (e *Engine) onStopped(ev Event) {
	if !e.sm.State().Live() {
		e.log.Debug("ignoring stop outside a live session")
		return
	}
	if ev.Frames != nil {
		e.applyStop(ev, ev.Frames)
		return
	}

	gen, session := e.generation, e.session
	e.spawn("stackTrace", func(ctx context.Context) func() {
		frames, err := e.adapter.StackTrace(ctx)
		err = adapterError(ctx, err)
		return func() {
			if gen != e.generation || session != e.session {
				e.log.Debug("discarding stale stack trace", slog.Uint64("generation", gen))
				return
			}
			if err != nil {
				e.lastErr = fmt.Sprintf("stack trace: %v", err)
				e.log.Warn("stack trace failed", slog.Any("error", err))
			}
			e.applyStop(ev, frames)
		}
	})
}

// applyStop performs the Paused transition atomically: state, stack,
// selection, then scope and watch refreshes.
func (e *Engine) applyStop(ev Event, frames []StackFrame) {
	if !e.sm.State().Live() {
		return
	}
	if e.spurious(ev, frames) {
		e.log.Debug("ignoring stop at disabled breakpoint", slog.Any("hits", ev.HitIDs))
		return
	}

	if e.sm.State() == StatePaused {
		e.invalidate()
	}
	e.sm.Stopped()
	e.stack.Replace(frames, ev.FrameID)
	e.vars.ResetRoots()
	e.refreshScopes()
	e.reevaluateWatches()

	e.log.Info("session paused",
		slog.String("reason", ev.Reason),
		slog.Int("frames", len(frames)))
	e.changed()
	e.notify(TopicSessionPaused)
}

// spurious reports whether a breakpoint stop only matches disabled
// breakpoints.
func (e *Engine) spurious(ev Event, frames []StackFrame) bool {
	if ev.Reason != "breakpoint" {
		return false
	}

	var hits []Breakpoint
	for _, id := range ev.HitIDs {
		if bp, ok := e.breakpoints.ByAdapterID(id); ok {
			hits = append(hits, bp)
		}
	}
	if len(hits) == 0 && len(frames) > 0 && frames[0].File != "" {
		if bp, ok := e.breakpoints.ByLocation(frames[0].File, frames[0].Line); ok {
			hits = append(hits, bp)
		}
	}
	if len(hits) == 0 {
		return false
	}
	for _, bp := range hits {
		if bp.Enabled {
			return false
		}
	}
	return true
}

// endSession forces Stopped and drops pause-point data. Breakpoints
// survive. The queued jobs are returned for the caller to fail once the
// new state is published.
func (e *Engine) endSession(reason string) []*job {
	if !e.sm.Terminate() {
		return nil
	}
	e.invalidate()
	e.breakpoints.ResetVerification()

	dropped := e.queue
	e.queue = nil

	e.log.Info("session ended", slog.String("reason", reason), slog.Int("dropped", len(dropped)))
	e.changed()
	e.notify(TopicSessionStopped)
	return dropped
}

func (e *Engine) appendOutput(line OutputLine) {
	e.output = append(e.output, line)
	if over := len(e.output) - e.outputLimit; over > 0 {
		e.output = append([]OutputLine(nil), e.output[over:]...)
	}
	publish(e, TopicOutputReceived, line)
	e.changed()
}

// Snapshots

func (e *Engine) buildSnapshot() *Snapshot {
	sel, hasSel := e.stack.Selected()

	pending := len(e.queue) + len(e.superseded)
	if e.inflight != nil {
		pending++
	}
	if e.stopping != nil {
		pending++
	}

	return &Snapshot{
		SessionID:     e.id,
		State:         e.sm.State(),
		Generation:    e.generation,
		PausePending:  e.sm.PausePending(),
		Breakpoints:   e.breakpoints.All(),
		Stack:         e.stack.Frames(),
		SelectedFrame: sel.ID,
		HasSelection:  hasSel,
		Variables: map[Scope][]VariableView{
			ScopeLocal:  e.vars.View(ScopeLocal),
			ScopeGlobal: e.vars.View(ScopeGlobal),
		},
		Watches:   e.watches.All(),
		Output:    append([]OutputLine(nil), e.output...),
		Pending:   pending,
		LastError: e.lastErr,
	}
}

// changed stores a fresh snapshot and publishes it.
func (e *Engine) changed() {
	snap := e.buildSnapshot()
	e.snapshot.Store(snap)
	publish(e, TopicSessionChanged, *snap)
}

func (e *Engine) notify(t topic.Topic) {
	publish(e, t, *e.snapshot.Load())
}

func publish[T any](e *Engine, t topic.Topic, payload T) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(e.ctx, event.NewEvent(t, payload, EventSource).ForSession(e.id, e.generation)); err != nil {
		e.log.Debug("publish failed", slog.String("topic", t.String()), slog.Any("error", err))
	}
}
