package adapters

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
)

// DefaultNodeAdapterPort is the port js-debug's DAP server listens on.
const DefaultNodeAdapterPort = 8123

// NodeJSProfile runs vscode-js-debug's dapDebugServer.js under node. The
// server always listens on a socket.
type NodeJSProfile struct{}

// Type returns AdapterNodeJS.
func (NodeJSProfile) Type() AdapterType { return AdapterNodeJS }

// Name returns the display name.
func (NodeJSProfile) Name() string { return "Node.js Debugger (js-debug)" }

// AdapterID returns "pwa-node".
func (NodeJSProfile) AdapterID() string { return "pwa-node" }

// Validate requires the js-debug server script unless connecting to a
// running server.
func (NodeJSProfile) Validate(cfg Config) error {
	if cfg.AdapterPath == "" && cfg.Connect == "" {
		return errors.New("adapter_path must point at js-debug's dapDebugServer.js")
	}
	return validateRequest(cfg,
		func() error {
			if cfg.Program == "" {
				return errors.New("program is required for launch request")
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

// Command returns "node dapDebugServer.js <port> <host>".
func (p NodeJSProfile) Command(cfg Config) (*exec.Cmd, error) {
	node, err := FindExecutable("node")
	if err != nil {
		return nil, fmt.Errorf("node.js runtime not found: %w (install from https://nodejs.org/)", err)
	}
	args := []string{cfg.AdapterPath, strconv.Itoa(p.port(cfg)), defaultHost}
	args = append(args, cfg.AdapterArgs...)
	return command(node, args, cfg), nil
}

func (NodeJSProfile) port(cfg Config) int {
	if cfg.AdapterPort > 0 {
		return cfg.AdapterPort
	}
	return DefaultNodeAdapterPort
}

// ConnectionType is always socket.
func (NodeJSProfile) ConnectionType(Config) string { return ConnSocket }

// ListenAddress returns the DAP server address.
func (p NodeJSProfile) ListenAddress(cfg Config) string {
	return socketAddress(cfg, DefaultNodeAdapterPort)
}

// LaunchArgs returns the js-debug launch body.
func (NodeJSProfile) LaunchArgs(cfg Config) map[string]any {
	return commonLaunchArgs(cfg, map[string]any{
		"type":       "pwa-node",
		"console":    "internalConsole",
		"sourceMaps": true,
	})
}

// AttachArgs returns the js-debug attach body.
func (NodeJSProfile) AttachArgs(cfg Config) map[string]any {
	args := map[string]any{
		"type":       "pwa-node",
		"request":    RequestAttach,
		"sourceMaps": true,
	}
	if cfg.Port > 0 {
		args["address"] = cfg.host()
		args["port"] = cfg.Port
	}
	if cfg.ProcessID > 0 {
		args["processId"] = strconv.Itoa(cfg.ProcessID)
	}
	return args
}
