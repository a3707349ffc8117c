// Package dap connects the debug session engine to a Debug Adapter Protocol
// server. Wire framing and message types come from github.com/google/go-dap.
package dap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os/exec"
	"sync"

	"github.com/google/go-dap"
)

// Transport carries DAP messages to and from a debug adapter.
type Transport interface {
	// Send writes one message.
	Send(msg dap.Message) error

	// Receive blocks until the next message arrives.
	Receive() (dap.Message, error)

	// Close releases the connection.
	Close() error
}

// codec frames messages over a reader and writer pair.
type codec struct {
	mu     sync.Mutex
	w      io.Writer
	reader *bufio.Reader
}

func newCodec(r io.Reader, w io.Writer) *codec {
	return &codec{w: w, reader: bufio.NewReader(r)}
}

func (c *codec) send(msg dap.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := dap.WriteProtocolMessage(c.w, msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

func (c *codec) receive() (dap.Message, error) {
	return dap.ReadProtocolMessage(c.reader)
}

// StdioTransport talks to an adapter process over its stdin and stdout.
type StdioTransport struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	codec *codec
}

// NewStdioTransport starts cmd and connects to its standard streams.
func NewStdioTransport(cmd *exec.Cmd) (*StdioTransport, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("get stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("get stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}

	return &StdioTransport{
		cmd:   cmd,
		stdin: stdin,
		codec: newCodec(stdout, stdin),
	}, nil
}

// Send writes a message to the adapter's stdin.
func (t *StdioTransport) Send(msg dap.Message) error {
	return t.codec.send(msg)
}

// Receive reads a message from the adapter's stdout.
func (t *StdioTransport) Receive() (dap.Message, error) {
	return t.codec.receive()
}

// Close closes stdin and terminates the adapter process.
func (t *StdioTransport) Close() error {
	_ = t.stdin.Close()
	if t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}

	err := t.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// SocketTransport talks to an adapter listening on a TCP address.
type SocketTransport struct {
	conn  net.Conn
	codec *codec
}

// DialSocket connects to an adapter at address.
func DialSocket(ctx context.Context, address string) (*SocketTransport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return NewSocketTransport(conn), nil
}

// NewSocketTransport wraps an established connection.
func NewSocketTransport(conn net.Conn) *SocketTransport {
	return &SocketTransport{
		conn:  conn,
		codec: newCodec(conn, conn),
	}
}

// Send writes a message to the socket.
func (t *SocketTransport) Send(msg dap.Message) error {
	return t.codec.send(msg)
}

// Receive reads a message from the socket.
func (t *SocketTransport) Receive() (dap.Message, error) {
	return t.codec.receive()
}

// Close closes the socket.
func (t *SocketTransport) Close() error {
	return t.conn.Close()
}

// RawTransport wraps any io.ReadWriteCloser.
type RawTransport struct {
	rwc   io.ReadWriteCloser
	codec *codec
}

// NewRawTransport creates a transport from rwc.
func NewRawTransport(rwc io.ReadWriteCloser) *RawTransport {
	return &RawTransport{
		rwc:   rwc,
		codec: newCodec(rwc, rwc),
	}
}

// Send writes a message.
func (t *RawTransport) Send(msg dap.Message) error {
	return t.codec.send(msg)
}

// Receive reads a message.
func (t *RawTransport) Receive() (dap.Message, error) {
	return t.codec.receive()
}

// Close closes the underlying stream.
func (t *RawTransport) Close() error {
	return t.rwc.Close()
}
