// Package adapters holds launch profiles for the debug adapters the session
// engine can drive, and turns a profile plus configuration into a DAP
// target.
package adapters

import (
	"context"
	"fmt"
	"maps"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// AdapterType identifies a debug adapter.
type AdapterType string

const (
	// AdapterDelve is the Go debugger (dlv dap).
	AdapterDelve AdapterType = "delve"
	// AdapterPython is debugpy.
	AdapterPython AdapterType = "python"
	// AdapterNodeJS is vscode-js-debug's DAP server.
	AdapterNodeJS AdapterType = "nodejs"
	// AdapterGeneric runs any DAP adapter from AdapterPath.
	AdapterGeneric AdapterType = "generic"
)

// Request kinds.
const (
	RequestLaunch = "launch"
	RequestAttach = "attach"
)

// Connection types.
const (
	ConnStdio  = "stdio"
	ConnSocket = "socket"
)

const defaultHost = "127.0.0.1"

// Config describes what to debug and how to reach the adapter.
type Config struct {
	// Type selects the profile. Empty means detect from Program.
	Type AdapterType `toml:"type" yaml:"type" env:"TYPE"`

	// Request is "launch" or "attach".
	Request string `toml:"request" yaml:"request" env:"REQUEST"`

	// Program is the program to debug.
	Program string `toml:"program" yaml:"program" env:"PROGRAM"`

	// Module is the module to run (python -m).
	Module string `toml:"module" yaml:"module" env:"MODULE"`

	// Args are the program arguments.
	Args []string `toml:"args" yaml:"args" env:"ARGS" envSeparator:" "`

	// Cwd is the working directory.
	Cwd string `toml:"cwd" yaml:"cwd" env:"CWD"`

	// Env are additional environment variables for the debuggee.
	Env map[string]string `toml:"env" yaml:"env" env:"ENV"`

	// StopOnEntry stops at the program entry point.
	StopOnEntry bool `toml:"stop_on_entry" yaml:"stop_on_entry" env:"STOP_ON_ENTRY"`

	// Host and Port locate the debuggee for attach requests.
	Host string `toml:"host" yaml:"host" env:"HOST"`
	Port int    `toml:"port" yaml:"port" env:"PORT"`

	// ProcessID is the process to attach to.
	ProcessID int `toml:"process_id" yaml:"process_id" env:"PROCESS_ID"`

	// AdapterPath overrides the adapter executable (or script for nodejs).
	AdapterPath string `toml:"adapter_path" yaml:"adapter_path" env:"ADAPTER_PATH"`

	// AdapterArgs are extra arguments for the adapter executable.
	AdapterArgs []string `toml:"adapter_args" yaml:"adapter_args" env:"ADAPTER_ARGS" envSeparator:" "`

	// AdapterPort makes a spawned adapter listen on a TCP port instead of
	// speaking over stdio.
	AdapterPort int `toml:"adapter_port" yaml:"adapter_port" env:"ADAPTER_PORT"`

	// Connect is the address of an adapter that is already running. No
	// process is spawned when it is set.
	Connect string `toml:"connect" yaml:"connect" env:"CONNECT"`

	// Options are merged into the launch or attach arguments verbatim.
	Options map[string]any `toml:"options" yaml:"options"`
}

func (c Config) request() string {
	if c.Request == "" {
		return RequestLaunch
	}
	return c.Request
}

func (c Config) host() string {
	if c.Host != "" {
		return c.Host
	}
	return defaultHost
}

// Profile knows how to start one kind of debug adapter and what it expects
// in launch and attach requests.
type Profile interface {
	// Type returns the adapter type.
	Type() AdapterType

	// Name returns a human-readable adapter name.
	Name() string

	// AdapterID is the id sent in the DAP initialize request.
	AdapterID() string

	// Validate checks the configuration.
	Validate(cfg Config) error

	// Command returns the command that starts the adapter.
	Command(cfg Config) (*exec.Cmd, error)

	// ConnectionType returns ConnStdio or ConnSocket.
	ConnectionType(cfg Config) string

	// ListenAddress is where a socket adapter accepts the client.
	ListenAddress(cfg Config) string

	// LaunchArgs returns the body of the launch request.
	LaunchArgs(cfg Config) map[string]any

	// AttachArgs returns the body of the attach request.
	AttachArgs(cfg Config) map[string]any
}

// Registry holds the known profiles.
type Registry struct {
	profiles map[AdapterType]Profile
}

// NewRegistry creates a registry with the built-in profiles.
func NewRegistry() *Registry {
	r := &Registry{profiles: make(map[AdapterType]Profile)}
	r.Register(DelveProfile{})
	r.Register(PythonProfile{})
	r.Register(NodeJSProfile{})
	r.Register(GenericProfile{})
	return r
}

// Register adds or replaces a profile.
func (r *Registry) Register(p Profile) {
	r.profiles[p.Type()] = p
}

// Get returns the profile for a type.
func (r *Registry) Get(t AdapterType) (Profile, error) {
	p, ok := r.profiles[t]
	if !ok {
		return nil, fmt.Errorf("unknown adapter type: %s", t)
	}
	return p, nil
}

// Resolve returns the profile for cfg, detecting the type from the program
// when cfg.Type is empty.
func (r *Registry) Resolve(cfg Config) (Profile, error) {
	t := cfg.Type
	if t == "" {
		t = DetectAdapterType(cfg.Program)
	}
	return r.Get(t)
}

// Profiles returns the registered profiles ordered by type.
func (r *Registry) Profiles() []Profile {
	out := make([]Profile, 0, len(r.profiles))
	for _, t := range slices.Sorted(maps.Keys(r.profiles)) {
		out = append(out, r.profiles[t])
	}
	return out
}

// FindExecutable searches for an executable in PATH.
func FindExecutable(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	return path, nil
}

// DetectAdapterType guesses the adapter from a program path. A directory or
// Go package path without extension is assumed to be Go.
func DetectAdapterType(program string) AdapterType {
	switch strings.ToLower(filepath.Ext(program)) {
	case ".go", "":
		if program == "" {
			return AdapterGeneric
		}
		return AdapterDelve
	case ".js", ".ts", ".mjs", ".cjs":
		return AdapterNodeJS
	case ".py":
		return AdapterPython
	default:
		return AdapterGeneric
	}
}

// WaitForPort polls address until it accepts connections or ctx ends.
func WaitForPort(ctx context.Context, address string) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		conn, err := net.DialTimeout("tcp", address, 50*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", address, ctx.Err())
		case <-ticker.C:
		}
	}
}

func validateRequest(cfg Config, launch, attach func() error) error {
	switch cfg.request() {
	case RequestLaunch:
		return launch()
	case RequestAttach:
		return attach()
	default:
		return fmt.Errorf("invalid request type: %s", cfg.Request)
	}
}

// command builds an adapter command inheriting the environment. The
// debuggee environment travels in the launch arguments, not here.
func command(path string, args []string, cfg Config) *exec.Cmd {
	cmd := exec.Command(path, args...)
	cmd.Dir = cfg.Cwd
	cmd.Env = os.Environ()
	return cmd
}

func socketAddress(cfg Config, defaultPort int) string {
	port := cfg.AdapterPort
	if port == 0 {
		port = defaultPort
	}
	return net.JoinHostPort(defaultHost, fmt.Sprint(port))
}

// commonLaunchArgs fills the fields every adapter understands.
func commonLaunchArgs(cfg Config, args map[string]any) map[string]any {
	args["request"] = RequestLaunch
	args["stopOnEntry"] = cfg.StopOnEntry
	if cfg.Program != "" {
		args["program"] = cfg.Program
	}
	if len(cfg.Args) > 0 {
		args["args"] = cfg.Args
	}
	if cfg.Cwd != "" {
		args["cwd"] = cfg.Cwd
	}
	if len(cfg.Env) > 0 {
		args["env"] = cfg.Env
	}
	return args
}
