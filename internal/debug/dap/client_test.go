package dap

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPipeClient(t *testing.T) (*Client, *fakeServer) {
	t.Helper()
	client, server := net.Pipe()
	s := newFakeServer(server)
	go s.serve()
	c := NewClient(NewRawTransport(client))
	t.Cleanup(func() {
		_ = c.Close()
		_ = server.Close()
	})
	return c, s
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestClientCorrelatesResponses(t *testing.T) {
	c, s := newPipeClient(t)
	ctx := testContext(t)

	caps, err := c.Initialize(ctx, dap.InitializeRequestArguments{AdapterID: "go"})
	require.NoError(t, err)
	assert.True(t, caps.SupportsConfigurationDoneRequest)

	threads, err := c.Threads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, 1, threads[0].Id)

	vars, err := c.Variables(ctx, 100)
	require.NoError(t, err)
	require.Len(t, vars, 2)
	assert.Equal(t, "cfg", vars[1].Name)
	assert.Equal(t, 7, vars[1].VariablesReference)

	assert.Equal(t, []string{"initialize", "threads", "variables"}, s.commands())

	// Sequence numbers are assigned by the client and strictly increase.
	seq := s.lastRequest("variables").GetRequest().Seq
	assert.Greater(t, seq, s.lastRequest("threads").GetRequest().Seq)
}

func TestClientResponseError(t *testing.T) {
	c, _ := newPipeClient(t)

	_, err := c.Evaluate(testContext(t), "undefined_var", 1, "watch")
	var re *ResponseError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "evaluate", re.Command)
	assert.Equal(t, "could not find symbol value for undefined_var", re.Message)
}

func TestClientDeliversEventsInOrder(t *testing.T) {
	c, s := newPipeClient(t)

	s.write(&dap.OutputEvent{Event: s.event("output"), Body: dap.OutputEventBody{Category: "stdout", Output: "one\n"}})
	s.stop("pause")
	s.write(&dap.OutputEvent{Event: s.event("output"), Body: dap.OutputEventBody{Category: "stdout", Output: "two\n"}})

	var got []string
	for len(got) < 3 {
		select {
		case ev := <-c.Events():
			got = append(got, ev.GetEvent().Event)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %v", got)
		}
	}
	assert.Equal(t, []string{"output", "stopped", "output"}, got)
}

func TestClientFailsPendingOnConnectionLoss(t *testing.T) {
	c, s := newPipeClient(t)
	s.setHold("threads", true)

	call, err := c.Go(&dap.ThreadsRequest{Request: newRequest("threads")})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return s.lastRequest("threads") != nil }, time.Second, 5*time.Millisecond)
	_ = s.conn.Close()

	_, err = call.Wait(testContext(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection lost")

	select {
	case <-c.Dead():
	case <-time.After(time.Second):
		t.Fatal("receive loop did not exit")
	}
	_, ok := <-c.Events()
	assert.False(t, ok, "events channel closed")

	_, err = c.Threads(testContext(t))
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestCallWaitHonorsContext(t *testing.T) {
	c, s := newPipeClient(t)
	s.setHold("pause", true)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Pause(ctx, 1)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	assert.Empty(t, c.pending)
}

func TestMailboxDrainsBeforeClosing(t *testing.T) {
	m := newMailbox()
	go m.run()

	for i := range 5 {
		m.put(&dap.OutputEvent{Event: dap.Event{ProtocolMessage: dap.ProtocolMessage{Seq: i + 1}, Event: "output"}})
	}
	m.close()

	var seqs []int
	for ev := range m.out {
		seqs = append(seqs, ev.GetSeq())
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, seqs)
}
