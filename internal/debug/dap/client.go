package dap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/go-dap"
)

// ErrClientClosed is returned for requests issued on a closed client.
var ErrClientClosed = errors.New("dap client closed")

// ResponseError is an unsuccessful response from the adapter.
type ResponseError struct {
	Command string
	Message string
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Command, e.Message)
}

func responseError(resp dap.ResponseMessage) error {
	r := resp.GetResponse()
	msg := r.Message
	if er, ok := resp.(*dap.ErrorResponse); ok && er.Body.Error != nil && er.Body.Error.Format != "" {
		msg = er.Body.Error.Format
	}
	return &ResponseError{Command: r.Command, Message: msg}
}

// Client correlates DAP requests with their responses and queues events in
// arrival order.
type Client struct {
	transport Transport
	seq       atomic.Int64

	pendingMu sync.Mutex
	pending   map[int]*Call
	closed    bool

	events    *mailbox
	dead      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	errMu sync.RWMutex
	err   error
}

// NewClient starts reading from transport.
func NewClient(transport Transport) *Client {
	c := &Client{
		transport: transport,
		pending:   make(map[int]*Call),
		events:    newMailbox(),
		dead:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go c.events.run()
	go c.receiveLoop()
	return c
}

// Close closes the transport and fails every pending request.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.transport.Close()
		c.events.stop()
	})
	return err
}

// Events returns the stream of adapter events. It is closed when the
// connection ends.
func (c *Client) Events() <-chan dap.EventMessage {
	return c.events.out
}

// Dead is closed once the receive loop has exited.
func (c *Client) Dead() <-chan struct{} {
	return c.dead
}

// Err returns the error that ended the receive loop.
func (c *Client) Err() error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()
	return c.err
}

func (c *Client) receiveLoop() {
	defer close(c.dead)
	defer c.events.close()

	for {
		msg, err := c.transport.Receive()
		if err != nil {
			var fieldErr *dap.DecodeProtocolMessageFieldError
			if errors.As(err, &fieldErr) {
				continue
			}
			select {
			case <-c.done:
				err = ErrClientClosed
			default:
			}
			c.fail(err)
			return
		}

		switch m := msg.(type) {
		case dap.ResponseMessage:
			c.handleResponse(m)
		case dap.EventMessage:
			c.events.put(m)
		}
	}
}

func (c *Client) fail(err error) {
	c.errMu.Lock()
	c.err = err
	c.errMu.Unlock()

	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[int]*Call)
	c.closed = true
	c.pendingMu.Unlock()

	for _, call := range pending {
		call.finish(nil, fmt.Errorf("%s: connection lost: %w", call.command, err))
	}
}

func (c *Client) handleResponse(resp dap.ResponseMessage) {
	seq := resp.GetResponse().RequestSeq

	c.pendingMu.Lock()
	call, ok := c.pending[seq]
	delete(c.pending, seq)
	c.pendingMu.Unlock()

	if ok {
		call.finish(resp, nil)
	}
}

func (c *Client) forget(seq int) {
	c.pendingMu.Lock()
	delete(c.pending, seq)
	c.pendingMu.Unlock()
}

// Call is an issued request awaiting its response.
type Call struct {
	client  *Client
	seq     int
	command string

	done chan struct{}
	once sync.Once
	resp dap.ResponseMessage
	err  error
}

func (c *Call) finish(resp dap.ResponseMessage, err error) {
	c.once.Do(func() {
		c.resp, c.err = resp, err
		close(c.done)
	})
}

// Done is closed when the response arrived or the connection failed.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Wait blocks for the response. An unsuccessful response is returned as a
// *ResponseError.
func (c *Call) Wait(ctx context.Context) (dap.ResponseMessage, error) {
	select {
	case <-ctx.Done():
		c.client.forget(c.seq)
		return nil, ctx.Err()
	case <-c.done:
	}
	if c.err != nil {
		return nil, c.err
	}
	if !c.resp.GetResponse().Success {
		return c.resp, responseError(c.resp)
	}
	return c.resp, nil
}

// Go sends req without waiting for the response. The sequence number and
// message type are assigned here.
func (c *Client) Go(req dap.RequestMessage) (*Call, error) {
	r := req.GetRequest()
	r.Seq = int(c.seq.Add(1))
	r.Type = "request"

	call := &Call{client: c, seq: r.Seq, command: r.Command, done: make(chan struct{})}

	c.pendingMu.Lock()
	if c.closed {
		c.pendingMu.Unlock()
		return nil, fmt.Errorf("%s: %w", r.Command, ErrClientClosed)
	}
	c.pending[r.Seq] = call
	c.pendingMu.Unlock()

	if err := c.transport.Send(req); err != nil {
		c.forget(r.Seq)
		return nil, fmt.Errorf("send %s: %w", r.Command, err)
	}
	return call, nil
}

// send issues req and waits for a response of type T.
func send[T dap.ResponseMessage](ctx context.Context, c *Client, req dap.RequestMessage) (T, error) {
	var zero T
	call, err := c.Go(req)
	if err != nil {
		return zero, err
	}
	resp, err := call.Wait(ctx)
	if err != nil {
		return zero, err
	}
	typed, ok := resp.(T)
	if !ok {
		return zero, fmt.Errorf("%s: unexpected response %T", call.command, resp)
	}
	return typed, nil
}

func newRequest(command string) dap.Request {
	return dap.Request{Command: command}
}

// Initialize sends the initialize request.
func (c *Client) Initialize(ctx context.Context, args dap.InitializeRequestArguments) (dap.Capabilities, error) {
	resp, err := send[*dap.InitializeResponse](ctx, c, &dap.InitializeRequest{
		Request:   newRequest("initialize"),
		Arguments: args,
	})
	if err != nil {
		return dap.Capabilities{}, err
	}
	return resp.Body, nil
}

// Launch sends the launch request. Many adapters answer it only after
// configurationDone, so the call is returned without waiting.
func (c *Client) Launch(args json.RawMessage) (*Call, error) {
	return c.Go(&dap.LaunchRequest{Request: newRequest("launch"), Arguments: args})
}

// Attach sends the attach request without waiting for the response.
func (c *Client) Attach(args json.RawMessage) (*Call, error) {
	return c.Go(&dap.AttachRequest{Request: newRequest("attach"), Arguments: args})
}

// ConfigurationDone sends the configurationDone request.
func (c *Client) ConfigurationDone(ctx context.Context) error {
	_, err := send[*dap.ConfigurationDoneResponse](ctx, c, &dap.ConfigurationDoneRequest{
		Request: newRequest("configurationDone"),
	})
	return err
}

// SetBreakpoints replaces the breakpoints of a source file.
func (c *Client) SetBreakpoints(ctx context.Context, path string, bps []dap.SourceBreakpoint) ([]dap.Breakpoint, error) {
	resp, err := send[*dap.SetBreakpointsResponse](ctx, c, &dap.SetBreakpointsRequest{
		Request: newRequest("setBreakpoints"),
		Arguments: dap.SetBreakpointsArguments{
			Source:      dap.Source{Path: path},
			Breakpoints: bps,
		},
	})
	if err != nil {
		return nil, err
	}
	return resp.Body.Breakpoints, nil
}

// Threads lists the debuggee threads.
func (c *Client) Threads(ctx context.Context) ([]dap.Thread, error) {
	resp, err := send[*dap.ThreadsResponse](ctx, c, &dap.ThreadsRequest{Request: newRequest("threads")})
	if err != nil {
		return nil, err
	}
	return resp.Body.Threads, nil
}

// StackTrace returns up to levels frames of a thread. Zero means all.
func (c *Client) StackTrace(ctx context.Context, threadID, levels int) ([]dap.StackFrame, error) {
	resp, err := send[*dap.StackTraceResponse](ctx, c, &dap.StackTraceRequest{
		Request:   newRequest("stackTrace"),
		Arguments: dap.StackTraceArguments{ThreadId: threadID, Levels: levels},
	})
	if err != nil {
		return nil, err
	}
	return resp.Body.StackFrames, nil
}

// Scopes returns the scopes of a frame.
func (c *Client) Scopes(ctx context.Context, frameID int) ([]dap.Scope, error) {
	resp, err := send[*dap.ScopesResponse](ctx, c, &dap.ScopesRequest{
		Request:   newRequest("scopes"),
		Arguments: dap.ScopesArguments{FrameId: frameID},
	})
	if err != nil {
		return nil, err
	}
	return resp.Body.Scopes, nil
}

// Variables returns the children of a variables reference.
func (c *Client) Variables(ctx context.Context, reference int) ([]dap.Variable, error) {
	resp, err := send[*dap.VariablesResponse](ctx, c, &dap.VariablesRequest{
		Request:   newRequest("variables"),
		Arguments: dap.VariablesArguments{VariablesReference: reference},
	})
	if err != nil {
		return nil, err
	}
	return resp.Body.Variables, nil
}

// Evaluate evaluates expression in a frame. evalContext is one of the DAP
// contexts such as "watch", "repl" or "hover".
func (c *Client) Evaluate(ctx context.Context, expression string, frameID int, evalContext string) (dap.EvaluateResponseBody, error) {
	resp, err := send[*dap.EvaluateResponse](ctx, c, &dap.EvaluateRequest{
		Request: newRequest("evaluate"),
		Arguments: dap.EvaluateArguments{
			Expression: expression,
			FrameId:    frameID,
			Context:    evalContext,
		},
	})
	if err != nil {
		return dap.EvaluateResponseBody{}, err
	}
	return resp.Body, nil
}

// Continue resumes a thread.
func (c *Client) Continue(ctx context.Context, threadID int) error {
	_, err := send[*dap.ContinueResponse](ctx, c, &dap.ContinueRequest{
		Request:   newRequest("continue"),
		Arguments: dap.ContinueArguments{ThreadId: threadID},
	})
	return err
}

// Next steps over the current line.
func (c *Client) Next(ctx context.Context, threadID int) error {
	_, err := send[*dap.NextResponse](ctx, c, &dap.NextRequest{
		Request:   newRequest("next"),
		Arguments: dap.NextArguments{ThreadId: threadID},
	})
	return err
}

// StepIn steps into the next call.
func (c *Client) StepIn(ctx context.Context, threadID int) error {
	_, err := send[*dap.StepInResponse](ctx, c, &dap.StepInRequest{
		Request:   newRequest("stepIn"),
		Arguments: dap.StepInArguments{ThreadId: threadID},
	})
	return err
}

// StepOut runs until the current function returns.
func (c *Client) StepOut(ctx context.Context, threadID int) error {
	_, err := send[*dap.StepOutResponse](ctx, c, &dap.StepOutRequest{
		Request:   newRequest("stepOut"),
		Arguments: dap.StepOutArguments{ThreadId: threadID},
	})
	return err
}

// Pause suspends a thread.
func (c *Client) Pause(ctx context.Context, threadID int) error {
	_, err := send[*dap.PauseResponse](ctx, c, &dap.PauseRequest{
		Request:   newRequest("pause"),
		Arguments: dap.PauseArguments{ThreadId: threadID},
	})
	return err
}

// Disconnect ends the debug session.
func (c *Client) Disconnect(ctx context.Context, terminateDebuggee bool) error {
	_, err := send[*dap.DisconnectResponse](ctx, c, &dap.DisconnectRequest{
		Request:   newRequest("disconnect"),
		Arguments: &dap.DisconnectArguments{TerminateDebuggee: terminateDebuggee},
	})
	return err
}

// mailbox is an unbounded FIFO between the receive loop and the event
// consumer. The receive loop never blocks on a slow consumer, so responses
// keep flowing while an event handler waits on a request.
type mailbox struct {
	mu     sync.Mutex
	items  []dap.EventMessage
	closed bool
	wake   chan struct{}
	quit   chan struct{}
	out    chan dap.EventMessage
}

func newMailbox() *mailbox {
	return &mailbox{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		out:  make(chan dap.EventMessage),
	}
}

func (m *mailbox) put(ev dap.EventMessage) {
	m.mu.Lock()
	m.items = append(m.items, ev)
	m.mu.Unlock()
	m.signal()
}

// close delivers what is queued, then closes out.
func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.signal()
}

// stop abandons undelivered events.
func (m *mailbox) stop() {
	close(m.quit)
}

func (m *mailbox) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox) run() {
	defer close(m.out)
	for {
		m.mu.Lock()
		if len(m.items) == 0 {
			closed := m.closed
			m.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-m.wake:
			case <-m.quit:
				return
			}
			continue
		}
		ev := m.items[0]
		m.items[0] = nil
		m.items = m.items[1:]
		m.mu.Unlock()

		select {
		case m.out <- ev:
		case <-m.quit:
			return
		}
	}
}
