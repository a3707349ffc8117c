package dap

import (
	"bufio"
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-dap"
)

// fakeServer is an in-memory debug adapter speaking DAP over net.Pipe.
type fakeServer struct {
	conn   net.Conn
	reader *bufio.Reader
	wmu    sync.Mutex
	seq    atomic.Int64

	mu       sync.Mutex
	requests []dap.RequestMessage
	launch   dap.RequestMessage
	frames   []dap.StackFrame
	vars     map[int][]dap.Variable
	// hold, when set for a command, swallows the request without answering.
	hold map[string]bool
}

func newFakeServer(conn net.Conn) *fakeServer {
	return &fakeServer{
		conn:   conn,
		reader: bufio.NewReader(conn),
		frames: []dap.StackFrame{
			{Id: 1000, Name: "main.handle", Source: &dap.Source{Path: "/src/main.go"}, Line: 10, Column: 2},
			{Id: 1001, Name: "main.main", Source: &dap.Source{Name: "main.go"}, Line: 30},
		},
		vars: map[int][]dap.Variable{
			100: {{Name: "x", Value: "41", Type: "int"}, {Name: "cfg", Value: "Config{...}", Type: "Config", VariablesReference: 7}},
			7:   {{Name: "Port", Value: "8080", Type: "int"}},
			200: {{Name: "version", Value: "\"1.0\"", Type: "string"}},
		},
		hold: make(map[string]bool),
	}
}

// pipeDialer returns a Dialer that hands out a fresh in-memory connection
// per call and the servers behind them.
func pipeDialer(t *testing.T) (Dialer, <-chan *fakeServer) {
	t.Helper()
	servers := make(chan *fakeServer, 8)
	dial := func(context.Context) (Transport, error) {
		client, server := net.Pipe()
		s := newFakeServer(server)
		t.Cleanup(func() { _ = server.Close() })
		go s.serve()
		servers <- s
		return NewRawTransport(client), nil
	}
	return dial, servers
}

func (s *fakeServer) serve() {
	for {
		msg, err := dap.ReadProtocolMessage(s.reader)
		if err != nil {
			return
		}
		req, ok := msg.(dap.RequestMessage)
		if !ok {
			continue
		}
		s.mu.Lock()
		s.requests = append(s.requests, req)
		held := s.hold[req.GetRequest().Command]
		s.mu.Unlock()
		if !held {
			s.reply(req)
		}
	}
}

func (s *fakeServer) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.requests))
	for i, r := range s.requests {
		out[i] = r.GetRequest().Command
	}
	return out
}

func (s *fakeServer) lastRequest(command string) dap.RequestMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.requests) - 1; i >= 0; i-- {
		if s.requests[i].GetRequest().Command == command {
			return s.requests[i]
		}
	}
	return nil
}

func (s *fakeServer) setHold(command string, held bool) {
	s.mu.Lock()
	s.hold[command] = held
	s.mu.Unlock()
}

func (s *fakeServer) write(msg dap.Message) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_ = dap.WriteProtocolMessage(s.conn, msg)
}

func (s *fakeServer) response(req dap.RequestMessage) dap.Response {
	r := req.GetRequest()
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Seq: int(s.seq.Add(1)), Type: "response"},
		Command:         r.Command,
		RequestSeq:      r.Seq,
		Success:         true,
	}
}

func (s *fakeServer) event(name string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Seq: int(s.seq.Add(1)), Type: "event"},
		Event:           name,
	}
}

func (s *fakeServer) fail(req dap.RequestMessage, format string) {
	resp := s.response(req)
	resp.Success = false
	resp.Message = "error"
	s.write(&dap.ErrorResponse{
		Response: resp,
		Body:     dap.ErrorResponseBody{Error: &dap.ErrorMessage{Id: 1, Format: format}},
	})
}

func (s *fakeServer) stop(reason string, hits ...int) {
	s.write(&dap.StoppedEvent{
		Event: s.event("stopped"),
		Body:  dap.StoppedEventBody{Reason: reason, ThreadId: 1, AllThreadsStopped: true, HitBreakpointIds: hits},
	})
}

func (s *fakeServer) reply(req dap.RequestMessage) {
	switch r := req.(type) {
	case *dap.InitializeRequest:
		s.write(&dap.InitializeResponse{
			Response: s.response(req),
			Body:     dap.Capabilities{SupportsConfigurationDoneRequest: true},
		})
	case *dap.LaunchRequest, *dap.AttachRequest:
		// Answered after configurationDone, like debugpy does.
		s.mu.Lock()
		s.launch = req
		s.mu.Unlock()
		s.write(&dap.InitializedEvent{Event: s.event("initialized")})
	case *dap.ConfigurationDoneRequest:
		s.write(&dap.ConfigurationDoneResponse{Response: s.response(req)})
		s.mu.Lock()
		launch := s.launch
		s.mu.Unlock()
		if launch != nil {
			s.write(&dap.LaunchResponse{Response: s.response(launch)})
		}
	case *dap.SetBreakpointsRequest:
		bps := make([]dap.Breakpoint, len(r.Arguments.Breakpoints))
		for i, sb := range r.Arguments.Breakpoints {
			bps[i] = dap.Breakpoint{Id: 10 + i, Line: sb.Line, Verified: sb.Line%2 == 0}
			if !bps[i].Verified {
				bps[i].Message = "no code at line"
			}
		}
		s.write(&dap.SetBreakpointsResponse{
			Response: s.response(req),
			Body:     dap.SetBreakpointsResponseBody{Breakpoints: bps},
		})
	case *dap.ThreadsRequest:
		s.write(&dap.ThreadsResponse{
			Response: s.response(req),
			Body:     dap.ThreadsResponseBody{Threads: []dap.Thread{{Id: 1, Name: "main"}}},
		})
	case *dap.StackTraceRequest:
		s.mu.Lock()
		frames := s.frames
		s.mu.Unlock()
		s.write(&dap.StackTraceResponse{
			Response: s.response(req),
			Body:     dap.StackTraceResponseBody{StackFrames: frames, TotalFrames: len(frames)},
		})
	case *dap.ScopesRequest:
		s.write(&dap.ScopesResponse{
			Response: s.response(req),
			Body: dap.ScopesResponseBody{Scopes: []dap.Scope{
				{Name: "Locals", PresentationHint: "locals", VariablesReference: 100},
				{Name: "Registers", PresentationHint: "registers", VariablesReference: 300},
				{Name: "Globals", VariablesReference: 200},
			}},
		})
	case *dap.VariablesRequest:
		s.mu.Lock()
		vars := s.vars[r.Arguments.VariablesReference]
		s.mu.Unlock()
		s.write(&dap.VariablesResponse{
			Response: s.response(req),
			Body:     dap.VariablesResponseBody{Variables: vars},
		})
	case *dap.EvaluateRequest:
		if r.Arguments.Expression == "undefined_var" {
			s.fail(req, "could not find symbol value for undefined_var")
			return
		}
		s.write(&dap.EvaluateResponse{
			Response: s.response(req),
			Body:     dap.EvaluateResponseBody{Result: "42", Type: "int"},
		})
	case *dap.ContinueRequest:
		s.write(&dap.ContinueResponse{
			Response: s.response(req),
			Body:     dap.ContinueResponseBody{AllThreadsContinued: true},
		})
	case *dap.NextRequest:
		s.write(&dap.NextResponse{Response: s.response(req)})
		s.stop("step")
	case *dap.StepInRequest:
		s.write(&dap.StepInResponse{Response: s.response(req)})
		s.stop("step")
	case *dap.StepOutRequest:
		s.write(&dap.StepOutResponse{Response: s.response(req)})
		s.stop("step")
	case *dap.PauseRequest:
		s.write(&dap.PauseResponse{Response: s.response(req)})
		s.stop("pause")
	case *dap.DisconnectRequest:
		s.write(&dap.DisconnectResponse{Response: s.response(req)})
		_ = s.conn.Close()
	default:
		s.fail(req, "unsupported request")
	}
}
