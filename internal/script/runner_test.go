package script

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/debugsession/internal/debug/engine"
)

func newTestRunner(t *testing.T) (*Runner, *engine.Engine, *bytes.Buffer) {
	t.Helper()
	e := engine.New(newFakeTarget(), engine.WithRequestTimeout(time.Second))
	t.Cleanup(func() { _ = e.Close() })
	var out bytes.Buffer
	return NewRunner(e, WithOutput(&out), WithWaitTimeout(2*time.Second)), e, &out
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestScriptDrivesSession(t *testing.T) {
	r, e, out := newTestRunner(t)

	err := r.RunString(testContext(t), "session", `
		local id = dbg.set_break("/src/main.go", 10)
		dbg.start()
		dbg.wait("paused")
		print("bp", id, dbg.breakpoints()[1].verified)

		local top = dbg.stack()[1]
		print("at", top.name, top.line, top.selected)
		print("x+1 =", dbg.eval("x+1"))

		dbg.step()
		dbg.wait("paused")
		print("line", dbg.stack()[1].line)

		dbg.continue()
		dbg.wait("stopped")
		print("output", dbg.output())
	`)
	require.NoError(t, err)

	assert.Equal(t, engine.StateStopped, e.Snapshot().State)
	assert.Contains(t, out.String(), "bp\t1\ttrue\n")
	assert.Contains(t, out.String(), "at\tmain.handle\t10\ttrue\n")
	assert.Contains(t, out.String(), "x+1 =\t42\n")
	assert.Contains(t, out.String(), "line\t11\n")
	assert.Contains(t, out.String(), "output\tdone\n")
	assert.Empty(t, e.Snapshot().Watches, "eval removes its temporary watch")
}

func TestModuleFunctionsUseCallableNames(t *testing.T) {
	r, _, out := newTestRunner(t)

	// Every name must parse as dbg.<name>, so no Lua keywords.
	err := r.RunString(testContext(t), "names", `
		local names = {}
		for name, fn in pairs(dbg) do
			assert(type(fn) == "function", name)
			table.insert(names, name)
		end
		table.sort(names)
		print(table.concat(names, " "))
		print(type(dbg.set_break), type(dbg["break"]))
	`)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "function\tnil\n")

	keywords := []string{"and", "break", "do", "else", "elseif", "end", "false", "for",
		"function", "goto", "if", "in", "local", "nil", "not", "or", "repeat", "return",
		"then", "true", "until", "while"}
	for _, name := range strings.Fields(strings.SplitN(out.String(), "\n", 2)[0]) {
		assert.NotContains(t, keywords, name)
	}

	err = r.RunString(testContext(t), "dot call", `dbg.set_break("/src/main.go", 10)`)
	require.NoError(t, err)
}

func TestScriptInspectsVariables(t *testing.T) {
	r, _, out := newTestRunner(t)

	err := r.RunString(testContext(t), "vars", `
		dbg.start()
		dbg.wait("paused")
		while dbg.var("local", "x") == nil do dbg.sleep(5) end

		local v, ty = dbg.var("local", "x")
		print("x", v, ty)
		print("version", dbg.globals().version)
		print("missing", dbg.var("local", "nope"))

		local cfg = dbg.expand("local", "cfg")
		print("port", cfg.Port, dbg.var("local", "cfg", "Port"))

		dbg.frame(2)
		print("selected", dbg.stack()[2].selected)
		dbg.stop()
	`)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "x\t41\tint\n")
	assert.Contains(t, out.String(), "version\t\"1.0\"\n")
	assert.Contains(t, out.String(), "missing\tnil\n")
	assert.Contains(t, out.String(), "port\t8080\t8080\tint\n")
	assert.Contains(t, out.String(), "selected\ttrue\n")
}

func TestScriptWatches(t *testing.T) {
	r, e, out := newTestRunner(t)

	err := r.RunString(testContext(t), "watches", `
		local ok = dbg.watch("x+1")
		local bad = dbg.watch("y")
		dbg.start()
		dbg.wait("paused")

		local function settled()
			for _, w in ipairs(dbg.watches()) do
				if w.value == nil and w.error == nil then return false end
			end
			return true
		end
		while not settled() do dbg.sleep(5) end

		for _, w in ipairs(dbg.watches()) do
			print(w.id, w.expression, w.value, w.error)
		end
		dbg.unwatch(bad)
	`)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "1\tx+1\t42\tnil\n")
	assert.Contains(t, out.String(), "2\ty\tnil\t")
	assert.Contains(t, out.String(), "undefined: y")
	require.Len(t, e.Snapshot().Watches, 1)
}

func TestScriptErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{"command in wrong state", `dbg.continue()`, "invalid command"},
		{"eval while idle", `dbg.eval("x")`, "eval"},
		{"duplicate breakpoint", `dbg.set_break("a.go", 1); dbg.set_break("a.go", 1)`, "already exists"},
		{"bad scope", `dbg.var("register", "x")`, "scope must be"},
		{"wait timeout", `dbg.wait("paused", 20)`, "timed out"},
		{"syntax", `dbg.start(`, "script"},
		{"sandboxed", `if dofile == nil and io == nil and os == nil then error("sandboxed") end`, "sandboxed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, _ := newTestRunner(t)
			err := r.RunString(testContext(t), tt.name, tt.src)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestScriptEvalFailureIsCatchable(t *testing.T) {
	r, _, out := newTestRunner(t)

	err := r.RunString(testContext(t), "pcall", `
		dbg.start()
		dbg.wait("paused")
		local ok, err = pcall(dbg.eval, "nope")
		print(ok, err)
	`)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "false\t")
	assert.Contains(t, out.String(), "undefined: nope")
}

func TestWaitFailsWhenSessionStops(t *testing.T) {
	r, _, _ := newTestRunner(t)

	err := r.RunString(testContext(t), "stopped", `
		dbg.start()
		dbg.wait("paused")
		dbg.continue()
		dbg.wait("paused")
	`)
	assert.ErrorContains(t, err, "session stopped")
}

func TestRunFileHonorsContext(t *testing.T) {
	r, _, _ := newTestRunner(t)
	path := filepath.Join(t.TempDir(), "spin.lua")
	require.NoError(t, os.WriteFile(path, []byte(`while true do end`), 0o600))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := r.RunFile(ctx, path)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEvaluate(t *testing.T) {
	r, e, _ := newTestRunner(t)
	ctx := testContext(t)

	_, err := r.Evaluate(ctx, "x+1")
	require.ErrorIs(t, err, engine.ErrInvalidCommand)

	require.NoError(t, e.Start(ctx))
	require.Eventually(t, func() bool { return e.Snapshot().State == engine.StatePaused }, 2*time.Second, 5*time.Millisecond)

	v, err := r.Evaluate(ctx, "x+1")
	require.NoError(t, err)
	assert.Equal(t, "42", v)

	_, err = r.Evaluate(ctx, "y")
	assert.ErrorContains(t, err, "undefined: y")
	assert.Empty(t, e.Snapshot().Watches)
}
