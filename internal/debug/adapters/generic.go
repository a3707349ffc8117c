package adapters

import (
	"errors"
	"os/exec"
)

// GenericProfile runs any DAP adapter named by AdapterPath, such as
// lldb-dap. Launch arguments are the common ones plus Options.
type GenericProfile struct{}

// Type returns AdapterGeneric.
func (GenericProfile) Type() AdapterType { return AdapterGeneric }

// Name returns the display name.
func (GenericProfile) Name() string { return "Generic DAP adapter" }

// AdapterID returns "generic".
func (GenericProfile) AdapterID() string { return "generic" }

// Validate requires an adapter to run or connect to.
func (GenericProfile) Validate(cfg Config) error {
	if cfg.AdapterPath == "" && cfg.Connect == "" {
		return errors.New("adapter_path or connect is required for the generic adapter")
	}
	return validateRequest(cfg, func() error { return nil }, func() error { return nil })
}

// Command runs AdapterPath with AdapterArgs.
func (GenericProfile) Command(cfg Config) (*exec.Cmd, error) {
	path, err := exec.LookPath(cfg.AdapterPath)
	if err != nil {
		return nil, err
	}
	return command(path, cfg.AdapterArgs, cfg), nil
}

// ConnectionType is socket when an adapter port is configured. The port
// must then also be passed in AdapterArgs.
func (GenericProfile) ConnectionType(cfg Config) string {
	if cfg.AdapterPort > 0 {
		return ConnSocket
	}
	return ConnStdio
}

// ListenAddress returns the adapter's listen address.
func (GenericProfile) ListenAddress(cfg Config) string {
	if cfg.AdapterPort == 0 {
		return ""
	}
	return socketAddress(cfg, 0)
}

// LaunchArgs returns the common launch fields.
func (GenericProfile) LaunchArgs(cfg Config) map[string]any {
	return commonLaunchArgs(cfg, map[string]any{})
}

// AttachArgs returns the common attach fields.
func (GenericProfile) AttachArgs(cfg Config) map[string]any {
	args := map[string]any{"request": RequestAttach}
	if cfg.ProcessID > 0 {
		args["pid"] = cfg.ProcessID
	}
	if cfg.Port > 0 {
		args["host"] = cfg.host()
		args["port"] = cfg.Port
	}
	return args
}
