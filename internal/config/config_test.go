package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/debugsession/internal/debug/adapters"
)

const tomlConfig = `
watches = ["len(queue)", "cfg.Port"]

[engine]
request_timeout = "3s"
output_lines = 200

[log]
level = "debug"
format = "json"

[adapter]
type = "delve"
program = "./cmd/server"
args = ["-addr", ":8080"]
stop_on_entry = true

[adapter.env]
GOFLAGS = "-mod=mod"

[adapter.options]
buildFlags = "-tags=dev"

[[breakpoints]]
file = "/src/server/handler.go"
line = 42

[[breakpoints]]
file = "/src/server/router.go"
line = 7
condition = "len(path) > 1"
`

const yamlConfig = `
engine:
  request_timeout: 1500ms
log:
  level: warn
adapter:
  type: python
  module: http.server
  request: launch
breakpoints:
  - file: app.py
    line: 12
watches:
  - request.path
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadTOML(t *testing.T) {
	cfg, err := Load(writeFile(t, "debugsession.toml", tomlConfig))
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Engine.RequestTimeout.Std())
	assert.Equal(t, 200, cfg.Engine.OutputLines)
	assert.Equal(t, LogConfig{Level: "debug", Format: "json"}, cfg.Log)

	assert.Equal(t, adapters.AdapterDelve, cfg.Adapter.Type)
	assert.Equal(t, "./cmd/server", cfg.Adapter.Program)
	assert.Equal(t, []string{"-addr", ":8080"}, cfg.Adapter.Args)
	assert.True(t, cfg.Adapter.StopOnEntry)
	assert.Equal(t, map[string]string{"GOFLAGS": "-mod=mod"}, cfg.Adapter.Env)
	assert.Equal(t, "-tags=dev", cfg.Adapter.Options["buildFlags"])
	assert.Equal(t, adapters.RequestLaunch, cfg.Adapter.Request, "default kept")

	require.Len(t, cfg.Breakpoints, 2)
	assert.Equal(t, BreakpointSpec{File: "/src/server/router.go", Line: 7, Condition: "len(path) > 1"}, cfg.Breakpoints[1])
	assert.Equal(t, []string{"len(queue)", "cfg.Port"}, cfg.Watches)
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "debugsession.yaml", yamlConfig))
	require.NoError(t, err)

	assert.Equal(t, 1500*time.Millisecond, cfg.Engine.RequestTimeout.Std())
	assert.Equal(t, 500, cfg.Engine.OutputLines, "default kept")
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, adapters.AdapterPython, cfg.Adapter.Type)
	assert.Equal(t, "http.server", cfg.Adapter.Module)
	assert.Equal(t, []BreakpointSpec{{File: "app.py", Line: 12}}, cfg.Breakpoints)
	assert.Equal(t, []string{"request.path"}, cfg.Watches)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("DEBUGSESSION_ENGINE_REQUEST_TIMEOUT", "250ms")
	t.Setenv("DEBUGSESSION_LOG_LEVEL", "error")
	t.Setenv("DEBUGSESSION_ADAPTER_PROGRAM", "./cmd/worker")
	t.Setenv("DEBUGSESSION_ADAPTER_ADAPTER_PORT", "38697")
	t.Setenv("DEBUGSESSION_WATCHES", "a;b.c")

	cfg, err := Load(writeFile(t, "debugsession.toml", tomlConfig))
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Engine.RequestTimeout.Std())
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, "./cmd/worker", cfg.Adapter.Program)
	assert.Equal(t, 38697, cfg.Adapter.AdapterPort)
	assert.Equal(t, []string{"a", "b.c"}, cfg.Watches)
	assert.Equal(t, 200, cfg.Engine.OutputLines, "untouched values keep the file setting")
}

func TestLoadParseError(t *testing.T) {
	_, err := Load(writeFile(t, "bad.toml", "[engine\noutput_lines = 3\n"))
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Path, "bad.toml")
	assert.Positive(t, perr.Line)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Engine.OutputLines = 0
	cfg.Adapter.Request = "run"
	cfg.Breakpoints = []BreakpointSpec{{File: "main.go"}}

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorContains(t, err, "output_lines")
	assert.ErrorContains(t, err, "adapter.request")
	assert.ErrorContains(t, err, "breakpoints[0]")
}

func TestParseBreakpoint(t *testing.T) {
	bp, err := ParseBreakpoint("main.go:42")
	require.NoError(t, err)
	assert.Equal(t, BreakpointSpec{File: "main.go", Line: 42}, bp)

	bp, err = ParseBreakpoint("pkg/server.go:7:n > 3")
	require.NoError(t, err)
	assert.Equal(t, "n > 3", bp.Condition)
	assert.Equal(t, "pkg/server.go:7:n > 3", bp.String())

	for _, bad := range []string{"main.go", ":3", "main.go:x", "main.go:0"} {
		_, err := ParseBreakpoint(bad)
		assert.Error(t, err, bad)
	}
}
