// Package cli implements the debugsession command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/debugsession/internal/config"
	"github.com/dshills/debugsession/internal/logging"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "debugsession",
		Short: "Drive debug adapters from the terminal",
		Long: `debugsession runs an interactive debugging session against any Debug
Adapter Protocol server (delve, debugpy, vscode-js-debug or a custom one).

Configuration is read from --config, ./debugsession.toml or
~/.config/debugsession/config.toml, then DEBUGSESSION_* environment variables.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to a TOML or YAML configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format (text, json)")

	root.AddCommand(newRunCommand(opts))
	root.AddCommand(newScriptCommand(opts))
	root.AddCommand(newAdaptersCommand())
	root.AddCommand(newVersionCommand())
	return root
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// load resolves the configuration file and applies flag overrides.
func (o *globalOptions) load() (config.Config, string, error) {
	path := o.configPath
	if path == "" {
		path = config.Find()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, "", err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	return cfg, path, nil
}

// logger writes to stderr so it never interleaves with REPL output on stdout.
func (o *globalOptions) logger(cfg config.Config, w io.Writer) (*slog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	log, err := logging.New(w, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	return log, nil
}
