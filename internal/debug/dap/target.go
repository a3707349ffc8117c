package dap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/go-dap"

	"github.com/dshills/debugsession/internal/debug/engine"
)

// ErrNotConnected is returned when a request is made with no live adapter
// connection.
var ErrNotConnected = fmt.Errorf("%w: no adapter connection", engine.ErrAdapterDisconnected)

var errNoThreads = errors.New("debuggee has no threads")

// Dialer opens a fresh transport to a debug adapter. It is called once per
// session start.
type Dialer func(ctx context.Context) (Transport, error)

// Config describes how a Target launches or attaches.
type Config struct {
	// AdapterID is sent in the initialize request ("go", "python", "node").
	AdapterID string

	// Request is "launch" or "attach".
	Request string

	// Arguments is the adapter-specific launch or attach body.
	Arguments json.RawMessage

	// StackDepth limits the frames requested per stack trace. Zero asks
	// for all frames.
	StackDepth int

	// EventTimeout bounds the stack trace fetched for a stopped event.
	EventTimeout time.Duration

	Logger *slog.Logger
}

// Target drives one debug adapter on behalf of the engine. Each Start dials
// a new connection; events from replaced or stopped connections are dropped.
type Target struct {
	dial   Dialer
	cfg    Config
	log    *slog.Logger
	events chan engine.Event

	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	client   *Client
	launch   *Call
	caps     dap.Capabilities
	threadID int
}

var _ engine.Adapter = (*Target)(nil)

// NewTarget creates a Target. Nothing is dialed until Start.
func NewTarget(dial Dialer, cfg Config) *Target {
	if cfg.Request == "" {
		cfg.Request = "launch"
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = 5 * time.Second
	}
	if len(cfg.Arguments) == 0 {
		cfg.Arguments = json.RawMessage("{}")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Target{
		dial:   dial,
		cfg:    cfg,
		log:    log.With(slog.String("component", "dap"), slog.String("adapter", cfg.AdapterID)),
		events: make(chan engine.Event, 256),
		closed: make(chan struct{}),
	}
}

// Events returns the stream of engine events. It stays open across
// sessions.
func (t *Target) Events() <-chan engine.Event {
	return t.events
}

// Capabilities returns the capabilities reported by the current adapter.
func (t *Target) Capabilities() dap.Capabilities {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.caps
}

// Close drops the current connection and stops event delivery.
func (t *Target) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	if c := t.release(nil); c != nil {
		return c.Close()
	}
	return nil
}

// Start dials the adapter, initializes it and sends the launch or attach
// request. It returns once the adapter reports that it is ready for
// configuration.
func (t *Target) Start(ctx context.Context) error {
	tr, err := t.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect adapter: %w", err)
	}
	c := NewClient(tr)
	initialized := make(chan struct{})

	t.mu.Lock()
	old := t.client
	t.client, t.launch, t.threadID = c, nil, 0
	t.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	go t.forward(c, initialized)

	caps, err := c.Initialize(ctx, dap.InitializeRequestArguments{
		ClientID:             "debugsession",
		ClientName:           "debugsession",
		AdapterID:            t.cfg.AdapterID,
		Locale:               "en-US",
		LinesStartAt1:        true,
		ColumnsStartAt1:      true,
		PathFormat:           "path",
		SupportsVariableType: true,
	})
	if err != nil {
		t.abandon(c)
		return fmt.Errorf("initialize: %w", err)
	}

	var call *Call
	if t.cfg.Request == "attach" {
		call, err = c.Attach(t.cfg.Arguments)
	} else {
		call, err = c.Launch(t.cfg.Arguments)
	}
	if err != nil {
		t.abandon(c)
		return err
	}

	t.mu.Lock()
	t.caps, t.launch = caps, call
	t.mu.Unlock()

	launched := call.Done()
	for {
		select {
		case <-initialized:
			t.log.Debug("adapter initialized", slog.String("request", t.cfg.Request))
			return nil
		case <-launched:
			// Some adapters answer launch before sending initialized.
			if _, err := call.Wait(ctx); err != nil {
				t.abandon(c)
				return fmt.Errorf("%s: %w", t.cfg.Request, err)
			}
			launched = nil
		case <-c.Dead():
			t.abandon(c)
			return fmt.Errorf("%s: %w: %v", t.cfg.Request, engine.ErrAdapterDisconnected, c.Err())
		case <-ctx.Done():
			t.abandon(c)
			return ctx.Err()
		}
	}
}

// ConfigurationDone releases the debuggee and waits for the launch or
// attach response.
func (t *Target) ConfigurationDone(ctx context.Context) error {
	c, err := t.conn()
	if err != nil {
		return err
	}

	t.mu.Lock()
	supported, launch := t.caps.SupportsConfigurationDoneRequest, t.launch
	t.mu.Unlock()

	if supported {
		if err := c.ConfigurationDone(ctx); err != nil {
			return err
		}
	}
	if launch != nil {
		if _, err := launch.Wait(ctx); err != nil {
			return fmt.Errorf("%s: %w", t.cfg.Request, err)
		}
	}
	return nil
}

// Pause suspends the current thread.
func (t *Target) Pause(ctx context.Context) error {
	return t.onThread(ctx, (*Client).Pause)
}

// Continue resumes the debuggee.
func (t *Target) Continue(ctx context.Context) error {
	return t.onThread(ctx, (*Client).Continue)
}

// StepOver sends next.
func (t *Target) StepOver(ctx context.Context) error {
	return t.onThread(ctx, (*Client).Next)
}

// StepInto sends stepIn.
func (t *Target) StepInto(ctx context.Context) error {
	return t.onThread(ctx, (*Client).StepIn)
}

// StepOut sends stepOut.
func (t *Target) StepOut(ctx context.Context) error {
	return t.onThread(ctx, (*Client).StepOut)
}

func (t *Target) onThread(ctx context.Context, fn func(*Client, context.Context, int) error) error {
	c, err := t.conn()
	if err != nil {
		return err
	}
	thread, err := t.thread(ctx, c)
	if err != nil {
		return err
	}
	return fn(c, ctx, thread)
}

// Stop disconnects and terminates the debuggee. No disconnected event is
// emitted for a connection closed this way.
func (t *Target) Stop(ctx context.Context) error {
	c := t.release(nil)
	if c == nil {
		return nil
	}
	err := c.Disconnect(ctx, true)
	if cerr := c.Close(); cerr != nil {
		t.log.Debug("close transport", slog.Any("error", cerr))
	}
	return err
}

// SetBreakpoints replaces a file's breakpoints. A disabled breakpoint is
// sent with condition "false" so the debuggee never stops on it while the
// adapter still reports its verification.
func (t *Target) SetBreakpoints(ctx context.Context, file string, bps []engine.SourceBreakpoint) ([]engine.BreakpointStatus, error) {
	c, err := t.conn()
	if err != nil {
		return nil, err
	}

	req := make([]dap.SourceBreakpoint, len(bps))
	for i, bp := range bps {
		req[i] = dap.SourceBreakpoint{Line: bp.Line, Condition: bp.Condition}
		if !bp.Enabled {
			req[i].Condition = "false"
		}
	}

	resp, err := c.SetBreakpoints(ctx, file, req)
	if err != nil {
		return nil, err
	}

	out := make([]engine.BreakpointStatus, len(resp))
	for i, b := range resp {
		out[i] = breakpointStatus(b)
	}
	return out, nil
}

// StackTrace returns the frames of the last stopped thread.
func (t *Target) StackTrace(ctx context.Context) ([]engine.StackFrame, error) {
	c, err := t.conn()
	if err != nil {
		return nil, err
	}
	thread, err := t.thread(ctx, c)
	if err != nil {
		return nil, err
	}
	return t.stackTrace(ctx, c, thread)
}

func (t *Target) stackTrace(ctx context.Context, c *Client, thread int) ([]engine.StackFrame, error) {
	frames, err := c.StackTrace(ctx, thread, t.cfg.StackDepth)
	if err != nil {
		return nil, err
	}
	out := make([]engine.StackFrame, len(frames))
	for i, f := range frames {
		out[i] = engine.StackFrame{ID: f.Id, Name: f.Name, Line: f.Line, Column: f.Column}
		if f.Source != nil {
			out[i].File = f.Source.Path
			if out[i].File == "" {
				out[i].File = f.Source.Name
			}
		}
	}
	return out, nil
}

// Scopes returns the local and global scopes of a frame. Register scopes
// are skipped.
func (t *Target) Scopes(ctx context.Context, frameID int) ([]engine.ScopeRef, error) {
	c, err := t.conn()
	if err != nil {
		return nil, err
	}
	scopes, err := c.Scopes(ctx, frameID)
	if err != nil {
		return nil, err
	}

	out := make([]engine.ScopeRef, 0, len(scopes))
	for _, s := range scopes {
		kind, ok := classifyScope(s)
		if !ok || s.VariablesReference == 0 {
			continue
		}
		out = append(out, engine.ScopeRef{Scope: kind, Name: s.Name, Reference: s.VariablesReference})
	}
	return out, nil
}

func classifyScope(s dap.Scope) (engine.Scope, bool) {
	hint := strings.ToLower(s.PresentationHint)
	name := strings.ToLower(s.Name)
	switch {
	case hint == "registers" || strings.Contains(name, "register"):
		return "", false
	case strings.Contains(name, "global"), name == "package", name == "module", name == "script":
		return engine.ScopeGlobal, true
	default:
		// locals, arguments, closures and blocks
		return engine.ScopeLocal, true
	}
}

// FetchVariables returns the children of a reference.
func (t *Target) FetchVariables(ctx context.Context, reference int) ([]engine.Variable, error) {
	c, err := t.conn()
	if err != nil {
		return nil, err
	}
	vars, err := c.Variables(ctx, reference)
	if err != nil {
		return nil, err
	}
	out := make([]engine.Variable, len(vars))
	for i, v := range vars {
		out[i] = engine.Variable{Name: v.Name, Value: v.Value, Type: v.Type, Reference: v.VariablesReference}
	}
	return out, nil
}

// Evaluate evaluates a watch expression. An error reported by the adapter
// is returned as *engine.EvaluationError.
func (t *Target) Evaluate(ctx context.Context, expression string, frameID int) (string, error) {
	c, err := t.conn()
	if err != nil {
		return "", err
	}
	body, err := c.Evaluate(ctx, expression, frameID, "watch")
	if err != nil {
		var re *ResponseError
		if errors.As(err, &re) {
			return "", &engine.EvaluationError{Expression: expression, Message: re.Message}
		}
		return "", err
	}
	return body.Result, nil
}

func (t *Target) conn() (*Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil, ErrNotConnected
	}
	return t.client, nil
}

func (t *Target) current(c *Client) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client == c
}

// release detaches c (or whichever client is current when c is nil) and
// returns it. It returns nil when c is no longer current.
func (t *Target) release(c *Client) *Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil || (c != nil && t.client != c) {
		return nil
	}
	c, t.client, t.launch = t.client, nil, nil
	return c
}

func (t *Target) abandon(c *Client) {
	if t.release(c) != nil {
		_ = c.Close()
	}
}

// thread returns the thread targeted by execution requests: the last
// stopped thread, else the first one the adapter lists.
func (t *Target) thread(ctx context.Context, c *Client) (int, error) {
	t.mu.Lock()
	id := t.threadID
	t.mu.Unlock()
	if id != 0 {
		return id, nil
	}

	threads, err := c.Threads(ctx)
	if err != nil {
		return 0, err
	}
	if len(threads) == 0 {
		return 0, errNoThreads
	}

	t.mu.Lock()
	if t.threadID == 0 {
		t.threadID = threads[0].Id
	}
	id = t.threadID
	t.mu.Unlock()
	return id, nil
}

// forward translates the events of c in arrival order. A stopped event is
// delivered with the stack of its thread attached.
func (t *Target) forward(c *Client, initialized chan struct{}) {
	var once sync.Once
	for msg := range c.Events() {
		if !t.current(c) {
			continue
		}
		switch ev := msg.(type) {
		case *dap.InitializedEvent:
			once.Do(func() { close(initialized) })
		case *dap.StoppedEvent:
			t.stopped(c, ev.Body)
		case *dap.ContinuedEvent:
			t.emit(engine.Event{Kind: engine.EventContinued})
		case *dap.ExitedEvent:
			t.emit(engine.Event{
				Kind:     engine.EventOutput,
				Category: "console",
				Output:   fmt.Sprintf("process exited with code %d\n", ev.Body.ExitCode),
			})
		case *dap.TerminatedEvent:
			t.emit(engine.Event{Kind: engine.EventTerminated})
		case *dap.OutputEvent:
			if ev.Body.Category == "telemetry" {
				continue
			}
			t.emit(engine.Event{Kind: engine.EventOutput, Category: ev.Body.Category, Output: ev.Body.Output})
		case *dap.BreakpointEvent:
			if ev.Body.Reason == "removed" {
				continue
			}
			t.emit(engine.Event{Kind: engine.EventBreakpointChanged, Breakpoint: breakpointStatus(ev.Body.Breakpoint)})
		default:
			t.log.Debug("ignoring event", slog.String("event", msg.GetEvent().Event))
		}
	}

	if t.release(c) == nil {
		return
	}
	err := c.Err()
	t.log.Warn("adapter connection lost", slog.Any("error", err))
	t.emit(engine.Event{Kind: engine.EventDisconnected, Err: fmt.Errorf("%w: %v", engine.ErrAdapterDisconnected, err)})
}

func (t *Target) stopped(c *Client, body dap.StoppedEventBody) {
	t.mu.Lock()
	if body.ThreadId != 0 {
		t.threadID = body.ThreadId
	}
	thread := t.threadID
	t.mu.Unlock()

	ev := engine.Event{Kind: engine.EventStopped, Reason: body.Reason, HitIDs: body.HitBreakpointIds}
	if thread != 0 {
		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.EventTimeout)
		frames, err := t.stackTrace(ctx, c, thread)
		cancel()
		if err != nil {
			t.log.Debug("stack trace for stopped event", slog.Int("thread", thread), slog.Any("error", err))
		} else {
			ev.Frames = frames
		}
	}
	t.emit(ev)
}

func (t *Target) emit(ev engine.Event) {
	select {
	case t.events <- ev:
	case <-t.closed:
	}
}

func breakpointStatus(b dap.Breakpoint) engine.BreakpointStatus {
	return engine.BreakpointStatus{AdapterID: b.Id, Line: b.Line, Verified: b.Verified, Message: b.Message}
}
