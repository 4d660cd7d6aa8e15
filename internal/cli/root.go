// Package cli implements the cobra-based CLI commands for fmrepl.
//
// Each subcommand (serve, analyze, stats, containers) is defined in its own
// file within this package. This file defines the root command, which runs
// the interactive command loop when invoked without a subcommand, and
// handles global flags, configuration loading and exit codes.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/fmrepl/internal/config"
	"github.com/shinji-kodama/fmrepl/internal/logging"
	"github.com/shinji-kodama/fmrepl/internal/model"
)

// Global flag variables shared across all subcommands. They are bound to
// persistent flags on the root command.
var (
	// configPath is an explicit configuration file; empty searches the
	// default locations.
	configPath string

	// jsonOutput switches command output and error reports to JSON.
	jsonOutput bool

	// verbose forces debug logging regardless of the configured level.
	verbose bool

	// backendFlag overrides the configured backend when set.
	backendFlag string

	// metricsFile overrides the configured metrics textfile when set.
	metricsFile string
)

// appConfig is the effective configuration, loaded before any subcommand
// runs.
var appConfig = config.Default()

// Version, Commit and Date are injected from the main package at build
// time via ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// NewRootCommand creates the root cobra command with all subcommands
// registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fmrepl",
		Short: "Line-oriented command server for feature model analysis",
		Long: `fmrepl reads commands from standard input, one per line, and answers
questions about feature models using flamapy.

Commands:
  set_model <path>
  estimated_number_of_configurations
  configurations_number
  satisfiable_configuration <configuration>

Without a subcommand fmrepl behaves like "fmrepl serve".`,

		Args: cobra.NoArgs,

		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd)
		},

		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (YAML or JSONC)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "Analysis backend: exec or docker")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")

	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewAnalyzeCommand())
	rootCmd.AddCommand(NewStatsCommand())
	rootCmd.AddCommand(NewContainersCommand())

	return rootCmd
}

// setup resolves the effective configuration (defaults, file, .env and
// environment, flags, in increasing precedence), validates it and attaches
// a logger to the command context.
func setup(cmd *cobra.Command) error {
	// Step 1: .env only fills variables that are not already set, so it
	// must run before the environment is read below.
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	// Step 2: Defaults overlaid with the configuration file, if any.
	cfg, used, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Step 3: FMREPL_* variables override the file.
	if err := config.ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return err
	}

	// Step 4: Flags override everything. Only flags the user set take
	// part; empty values mean "not given".
	if backendFlag != "" {
		b, err := model.ParseBackend(backendFlag)
		if err != nil {
			return model.WrapCLIError(model.ExitConfigError, "invalid --backend flag", err)
		}
		cfg.Backend = b
	}
	if metricsFile != "" {
		cfg.Metrics.File = metricsFile
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	// Validate the merged result, so a bad value is reported wherever it
	// came from.
	if err := cfg.Validate(); err != nil {
		return err
	}

	// The logger travels in the command context; subcommands and the
	// packages they call fetch it with logging.FromContext.
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	logger.Debug("configuration loaded", "file", used, "backend", cfg.Backend)

	appConfig = cfg
	cmd.SetContext(logging.WithLogger(cmd.Context(), logger))
	return nil
}

// Execute runs the root command and exits with the code carried by the
// returned error. SIGINT and SIGTERM cancel the command context.
func Execute(rootCmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	os.Exit(handleError(rootCmd.ErrOrStderr(), err))
}

// handleError reports err and returns the process exit code for it.
func handleError(w io.Writer, err error) int {
	if err == nil {
		return int(model.ExitSuccess)
	}

	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		printError(w, cliErr.Message, cliErr.Err)
		return int(cliErr.Code)
	}

	if errors.Is(err, context.Canceled) {
		printError(w, "interrupted", nil)
		return int(model.ExitGeneralError)
	}

	printError(w, err.Error(), nil)
	return int(model.ExitGeneralError)
}

// printError outputs an error message in text or JSON form depending on
// the --json flag.
func printError(w io.Writer, message string, underlying error) {
	if jsonOutput {
		errObj := map[string]any{
			"message": message,
		}
		if underlying != nil {
			errObj["detail"] = underlying.Error()
		}
		data, _ := json.MarshalIndent(map[string]any{"error": errObj}, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	if underlying != nil {
		fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
	} else {
		fmt.Fprintf(w, "Error: %s\n", message)
	}
}

// loggerFrom returns the logger attached to the command by setup.
func loggerFrom(cmd *cobra.Command) *slog.Logger {
	return logging.FromContext(cmd.Context())
}

// IsJSONOutput returns whether the --json flag is set.
func IsJSONOutput() bool {
	return jsonOutput
}

// printJSON writes v to w as indented JSON.
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
