package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"os/exec"
	"time"

	"github.com/dshills/debugsession/internal/debug/dap"
)

// DefaultStartupTimeout bounds how long a socket adapter may take to start
// listening.
const DefaultStartupTimeout = 10 * time.Second

// Arguments returns the launch or attach body for cfg, with cfg.Options
// merged on top.
func Arguments(p Profile, cfg Config) (json.RawMessage, error) {
	var args map[string]any
	if cfg.request() == RequestAttach {
		args = p.AttachArgs(cfg)
	} else {
		args = p.LaunchArgs(cfg)
	}
	maps.Copy(args, cfg.Options)

	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s arguments: %w", cfg.request(), err)
	}
	return raw, nil
}

// Dialer returns a dap.Dialer that connects to a running adapter when
// cfg.Connect is set, and otherwise spawns one with the profile's command.
func Dialer(p Profile, cfg Config, log *slog.Logger) dap.Dialer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return func(ctx context.Context) (dap.Transport, error) {
		if cfg.Connect != "" {
			log.Debug("connecting to adapter", slog.String("address", cfg.Connect))
			return dap.DialSocket(ctx, cfg.Connect)
		}

		cmd, err := p.Command(cfg)
		if err != nil {
			return nil, err
		}

		if p.ConnectionType(cfg) == ConnStdio {
			log.Debug("starting adapter", slog.String("path", cmd.Path), slog.Any("args", cmd.Args[1:]))
			return dap.NewStdioTransport(cmd)
		}

		addr := p.ListenAddress(cfg)
		log.Debug("starting socket adapter", slog.String("path", cmd.Path), slog.String("address", addr))
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
		}
		wctx, cancel := context.WithTimeout(ctx, DefaultStartupTimeout)
		defer cancel()
		if err := WaitForPort(wctx, addr); err != nil {
			killProcess(cmd)
			return nil, err
		}
		tr, err := dap.DialSocket(ctx, addr)
		if err != nil {
			killProcess(cmd)
			return nil, err
		}
		return &processTransport{SocketTransport: tr, cmd: cmd}, nil
	}
}

// NewTarget validates cfg and returns a DAP target for it.
func NewTarget(p Profile, cfg Config, log *slog.Logger) (*dap.Target, error) {
	if err := p.Validate(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", p.Type(), err)
	}
	args, err := Arguments(p, cfg)
	if err != nil {
		return nil, err
	}
	return dap.NewTarget(Dialer(p, cfg, log), dap.Config{
		AdapterID: p.AdapterID(),
		Request:   cfg.request(),
		Arguments: args,
		Logger:    log,
	}), nil
}

// processTransport owns the adapter process behind a socket.
type processTransport struct {
	*dap.SocketTransport
	cmd *exec.Cmd
}

func (t *processTransport) Close() error {
	err := t.SocketTransport.Close()
	killProcess(t.cmd)
	return err
}

func killProcess(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	_ = cmd.Wait()
}
