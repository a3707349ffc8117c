package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/debugsession/internal/config"
	"github.com/dshills/debugsession/internal/debug/adapters"
	"github.com/dshills/debugsession/internal/script"
)

// sessionFlags are shared by commands that open a session.
type sessionFlags struct {
	adapterType string
	breaks      []string
	watches     []string

	program     string
	programArgs []string
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.adapterType, "type", "t", "", "adapter type (delve, python, nodejs, generic)")
	flags.StringArrayVarP(&f.breaks, "break", "b", nil, "breakpoint as FILE:LINE[:COND] (repeatable)")
	flags.StringArrayVarP(&f.watches, "watch", "w", nil, "watch expression (repeatable)")
}

// positional takes the program and its arguments from args, ignoring the
// first skip entries. Arguments after "--" always go to the program.
func (f *sessionFlags) positional(cmd *cobra.Command, args []string, skip int) {
	dash := cmd.ArgsLenAtDash()
	args = args[skip:]
	if dash < 0 {
		if len(args) > 0 {
			f.program, f.programArgs = args[0], args[1:]
		}
		return
	}
	dash = min(max(dash-skip, 0), len(args))
	if dash > 0 {
		f.program = args[0]
	}
	f.programArgs = args[dash:]
}

// merge applies the flags to cfg and validates the result.
func (f *sessionFlags) merge(cfg *config.Config) error {
	if f.adapterType != "" {
		cfg.Adapter.Type = adapters.AdapterType(f.adapterType)
	}
	for _, b := range f.breaks {
		spec, err := config.ParseBreakpoint(b)
		if err != nil {
			return err
		}
		cfg.Breakpoints = append(cfg.Breakpoints, spec)
	}
	cfg.Watches = append(cfg.Watches, f.watches...)

	if f.program != "" {
		cfg.Adapter.Program = f.program
	}
	if len(f.programArgs) > 0 {
		cfg.Adapter.Args = f.programArgs
	}
	return cfg.Validate()
}

func newRunCommand(global *globalOptions) *cobra.Command {
	var (
		flags       sessionFlags
		start       bool
		watchConfig bool
	)

	cmd := &cobra.Command{
		Use:   "run [program] [-- args...]",
		Short: "Open an interactive debugging console",
		Long: `Opens a line console for a debug session. The program and adapter come
from the configuration file unless given on the command line. Breakpoints
and watches from the configuration are applied before the session starts.

With --watch-config, edits to the configuration file update the configured
breakpoints and watches of the running session.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := global.load()
			if err != nil {
				return err
			}
			flags.positional(cmd, args, 0)
			if err := flags.merge(&cfg); err != nil {
				return err
			}
			log, err := global.logger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			s, err := openSession(cfg, log, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			if err := s.apply(ctx, cfg); err != nil {
				fmt.Fprintf(s.out, "warning: %v\n", err)
			}
			if watchConfig && path != "" {
				if err := watchConfigFile(ctx, s, path, &flags); err != nil {
					return err
				}
			}

			c := newConsole(s, cmd.InOrStdin())
			if start {
				if err := s.engine.Start(ctx); err != nil {
					fmt.Fprintf(s.out, "error: %v\n", err)
				}
			}
			err = c.run(ctx)
			s.shutdown(context.WithoutCancel(ctx))
			return err
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&start, "start", false, "start the session immediately")
	cmd.Flags().BoolVar(&watchConfig, "watch-config", false, "reload breakpoints and watches when the config file changes")
	return cmd
}

// watchConfigFile reapplies the configuration whenever the file changes.
// Command line breakpoints and watches stay in effect.
func watchConfigFile(ctx context.Context, s *session, path string, flags *sessionFlags) error {
	return config.Watch(ctx, path, s.log, func(cfg config.Config) {
		if err := flags.merge(&cfg); err != nil {
			s.log.Warn("ignoring reloaded config", slog.Any("error", err))
			return
		}
		if err := s.apply(ctx, cfg); err != nil {
			s.log.Warn("config reload incomplete", slog.Any("error", err))
			return
		}
		s.log.Info("config reloaded", slog.String("path", path))
	})
}

func newScriptCommand(global *globalOptions) *cobra.Command {
	var flags sessionFlags

	cmd := &cobra.Command{
		Use:   "script FILE [program] [-- args...]",
		Short: "Run a Lua script against a debug session",
		Long: `Runs a Lua script that drives a debug session through the dbg module:

  dbg.set_break("main.go", 42)
  dbg.start()
  dbg.wait("paused")
  print(dbg.eval("len(queue)"))
  dbg.stop()

The session is stopped when the script ends.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := global.load()
			if err != nil {
				return err
			}
			file := args[0]
			flags.positional(cmd, args, 1)
			if err := flags.merge(&cfg); err != nil {
				return err
			}
			log, err := global.logger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if _, err := os.Stat(file); err != nil {
				return err
			}

			s, err := openSession(cfg, log, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer s.Close()
			return runScript(cmd.Context(), s, cfg, file)
		},
	}
	flags.register(cmd)
	return cmd
}

func runScript(ctx context.Context, s *session, cfg config.Config, file string) error {
	if err := s.apply(ctx, cfg); err != nil {
		return err
	}
	runner := script.NewRunner(s.engine, script.WithOutput(s.out), script.WithLogger(s.log))
	err := runner.RunFile(ctx, file)
	s.shutdown(context.WithoutCancel(ctx))
	return err
}
