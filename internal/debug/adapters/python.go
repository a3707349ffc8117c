package adapters

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
)

// PythonProfile starts debugpy's adapter.
type PythonProfile struct{}

// Type returns AdapterPython.
func (PythonProfile) Type() AdapterType { return AdapterPython }

// Name returns the display name.
func (PythonProfile) Name() string { return "Python Debugger (debugpy)" }

// AdapterID returns "python".
func (PythonProfile) AdapterID() string { return "python" }

// Validate requires a program or module to launch, or a port or process
// to attach to.
func (PythonProfile) Validate(cfg Config) error {
	return validateRequest(cfg,
		func() error {
			if cfg.Program == "" && cfg.Module == "" {
				return errors.New("program or module is required for launch request")
			}
			return nil
		},
		func() error {
			if cfg.Port == 0 && cfg.ProcessID == 0 {
				return errors.New("port or process_id is required for attach request")
			}
			return nil
		})
}

// Command returns "python -m debugpy.adapter". AdapterPath selects the
// interpreter.
func (p PythonProfile) Command(cfg Config) (*exec.Cmd, error) {
	python := cfg.AdapterPath
	if python == "" {
		var err error
		python, err = FindExecutable("python3")
		if err != nil {
			python, err = FindExecutable("python")
		}
		if err != nil {
			return nil, fmt.Errorf("python interpreter not found: %w (install Python 3 and debugpy: pip install debugpy)", err)
		}
	}

	args := []string{"-m", "debugpy.adapter"}
	if p.ConnectionType(cfg) == ConnSocket {
		args = append(args, "--host", defaultHost, "--port", strconv.Itoa(cfg.AdapterPort))
	}
	args = append(args, cfg.AdapterArgs...)
	return command(python, args, cfg), nil
}

// ConnectionType is socket when an adapter port is configured.
func (PythonProfile) ConnectionType(cfg Config) string {
	if cfg.AdapterPort > 0 {
		return ConnSocket
	}
	return ConnStdio
}

// ListenAddress returns the adapter's listen address.
func (PythonProfile) ListenAddress(cfg Config) string {
	if cfg.AdapterPort == 0 {
		return ""
	}
	return socketAddress(cfg, 0)
}

// LaunchArgs returns the debugpy launch body.
func (PythonProfile) LaunchArgs(cfg Config) map[string]any {
	args := commonLaunchArgs(cfg, map[string]any{
		"type":           "python",
		"console":        "internalConsole",
		"justMyCode":     true,
		"redirectOutput": true,
	})
	if cfg.Module != "" {
		delete(args, "program")
		args["module"] = cfg.Module
	}
	return args
}

// AttachArgs returns the debugpy attach body.
func (PythonProfile) AttachArgs(cfg Config) map[string]any {
	args := map[string]any{
		"type":           "python",
		"request":        RequestAttach,
		"justMyCode":     true,
		"redirectOutput": true,
	}
	if cfg.Port > 0 {
		args["connect"] = map[string]any{"host": cfg.host(), "port": cfg.Port}
	}
	if cfg.ProcessID > 0 {
		args["processId"] = cfg.ProcessID
	}
	return args
}
