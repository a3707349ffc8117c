package adapters

import (
	"errors"
	"fmt"
	"os/exec"
)

// DelveProfile starts "dlv dap" for Go programs.
type DelveProfile struct{}

// Type returns AdapterDelve.
func (DelveProfile) Type() AdapterType { return AdapterDelve }

// Name returns the display name.
func (DelveProfile) Name() string { return "Delve (Go Debugger)" }

// AdapterID returns "go".
func (DelveProfile) AdapterID() string { return "go" }

// Validate requires a program to launch or a process to attach to.
func (DelveProfile) Validate(cfg Config) error {
	return validateRequest(cfg,
		func() error {
			if cfg.Program == "" {
				return errors.New("program is required for launch request")
			}
			return nil
		},
		func() error {
			if cfg.ProcessID == 0 {
				return errors.New("process_id is required for attach request")
			}
			return nil
		})
}

// Command returns the dlv dap command.
func (p DelveProfile) Command(cfg Config) (*exec.Cmd, error) {
	dlv := cfg.AdapterPath
	if dlv == "" {
		var err error
		dlv, err = FindExecutable("dlv")
		if err != nil {
			return nil, fmt.Errorf("delve debugger not found: %w (install with: go install github.com/go-delve/delve/cmd/dlv@latest)", err)
		}
	}

	args := []string{"dap"}
	if p.ConnectionType(cfg) == ConnSocket {
		args = append(args, "--listen", p.ListenAddress(cfg))
	}
	args = append(args, cfg.AdapterArgs...)
	return command(dlv, args, cfg), nil
}

// ConnectionType is socket when an adapter port is configured.
func (DelveProfile) ConnectionType(cfg Config) string {
	if cfg.AdapterPort > 0 {
		return ConnSocket
	}
	return ConnStdio
}

// ListenAddress returns the dlv --listen address.
func (DelveProfile) ListenAddress(cfg Config) string {
	if cfg.AdapterPort == 0 {
		return ""
	}
	return socketAddress(cfg, 0)
}

// LaunchArgs returns the dlv launch body. Globals are requested so the
// global scope is populated.
func (DelveProfile) LaunchArgs(cfg Config) map[string]any {
	return commonLaunchArgs(cfg, map[string]any{
		"mode":                "debug",
		"showGlobalVariables": true,
		"stackTraceDepth":     50,
	})
}

// AttachArgs returns the dlv attach body.
func (DelveProfile) AttachArgs(cfg Config) map[string]any {
	return map[string]any{
		"request":             RequestAttach,
		"mode":                "local",
		"processId":           cfg.ProcessID,
		"stopOnEntry":         cfg.StopOnEntry,
		"showGlobalVariables": true,
	}
}
