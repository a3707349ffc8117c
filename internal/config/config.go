// Package config loads debugsession settings from a TOML or YAML file and
// DEBUGSESSION_* environment variables. Environment values win over the
// file, the file wins over defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/dshills/debugsession/internal/debug/adapters"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DEBUGSESSION_"

// Config is the full application configuration.
type Config struct {
	Engine      EngineConfig     `toml:"engine" yaml:"engine" envPrefix:"ENGINE_"`
	Log         LogConfig        `toml:"log" yaml:"log" envPrefix:"LOG_"`
	Adapter     adapters.Config  `toml:"adapter" yaml:"adapter" envPrefix:"ADAPTER_"`
	Breakpoints []BreakpointSpec `toml:"breakpoints" yaml:"breakpoints"`
	Watches     []string         `toml:"watches" yaml:"watches" env:"WATCHES" envSeparator:";"`
}

// EngineConfig tunes the session engine.
type EngineConfig struct {
	// RequestTimeout bounds every adapter request.
	RequestTimeout Duration `toml:"request_timeout" yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	// OutputLines is the number of output lines kept in snapshots.
	OutputLines int `toml:"output_lines" yaml:"output_lines" env:"OUTPUT_LINES"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level" env:"LEVEL"`
	Format string `toml:"format" yaml:"format" env:"FORMAT"`
}

// BreakpointSpec is a breakpoint installed before the session starts.
type BreakpointSpec struct {
	File      string `toml:"file" yaml:"file"`
	Line      int    `toml:"line" yaml:"line"`
	Condition string `toml:"condition" yaml:"condition"`
}

// ParseBreakpoint parses "file:line" or "file:line:condition".
func ParseBreakpoint(s string) (BreakpointSpec, error) {
	file, rest, ok := strings.Cut(s, ":")
	if !ok || file == "" {
		return BreakpointSpec{}, fmt.Errorf("breakpoint %q: want file:line[:condition]", s)
	}
	lineText, cond, _ := strings.Cut(rest, ":")
	line, err := strconv.Atoi(lineText)
	if err != nil || line <= 0 {
		return BreakpointSpec{}, fmt.Errorf("breakpoint %q: invalid line %q", s, lineText)
	}
	return BreakpointSpec{File: file, Line: line, Condition: cond}, nil
}

// String formats the spec as ParseBreakpoint accepts it.
func (b BreakpointSpec) String() string {
	if b.Condition != "" {
		return fmt.Sprintf("%s:%d:%s", b.File, b.Line, b.Condition)
	}
	return fmt.Sprintf("%s:%d", b.File, b.Line)
}

// Duration is a time.Duration written as "10s" in files and environment.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			RequestTimeout: Duration(10 * time.Second),
			OutputLines:    500,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Adapter: adapters.Config{
			Request: adapters.RequestLaunch,
		},
	}
}

// Load reads path (if not empty) over the defaults, then applies the
// environment and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := Decode(path, data, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode parses data into cfg. The format follows the file extension:
// .yaml and .yml are YAML, anything else is TOML.
func Decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return &ParseError{Path: path, Err: err}
		}
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			perr := &ParseError{Path: path, Err: err}
			var derr *toml.DecodeError
			if errors.As(err, &derr) {
				perr.Line, perr.Column = derr.Position()
			}
			return perr
		}
	}
	return nil
}

// ApplyEnv overrides cfg from DEBUGSESSION_* variables.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if c.Engine.RequestTimeout <= 0 {
		errs = append(errs, errors.New("engine.request_timeout must be positive"))
	}
	if c.Engine.OutputLines <= 0 {
		errs = append(errs, errors.New("engine.output_lines must be positive"))
	}
	switch c.Adapter.Request {
	case "", adapters.RequestLaunch, adapters.RequestAttach:
	default:
		errs = append(errs, fmt.Errorf("adapter.request must be launch or attach, got %q", c.Adapter.Request))
	}
	for i, bp := range c.Breakpoints {
		if bp.File == "" || bp.Line <= 0 {
			errs = append(errs, fmt.Errorf("breakpoints[%d]: file and positive line required", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// SearchPaths returns the files Find looks at, in order.
func SearchPaths() []string {
	paths := []string{"debugsession.toml", "debugsession.yaml", "debugsession.yml"}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths,
			filepath.Join(dir, "debugsession", "config.toml"),
			filepath.Join(dir, "debugsession", "config.yaml"),
		)
	}
	return paths
}

// Find returns the first existing file of SearchPaths, or "".
func Find() string {
	for _, p := range SearchPaths() {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}
