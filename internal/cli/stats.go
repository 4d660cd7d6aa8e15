package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/fmrepl/internal/client"
	"github.com/shinji-kodama/fmrepl/internal/model"
	"github.com/shinji-kodama/fmrepl/internal/stats"
)

// statsFlags holds the flag values for the stats command.
type statsFlags struct {
	configsDir   string
	format       string
	output       string
	serverScript string
	inProcess    bool
	timeout      time.Duration
	retries      int
}

// NewStatsCommand creates the "stats" cobra command.
func NewStatsCommand() *cobra.Command {
	flags := &statsFlags{}

	cmd := &cobra.Command{
		Use:   "stats <model>...",
		Short: "Collect configuration counts for many models",
		Long: `Collect the estimated and exact number of configurations of each model
through a command loop session.

By default the session is a spawned "fmrepl serve" process using the same
configuration. --server-script runs a Python server with the interpreter of
the installed flamapy launcher instead, and --in-process runs the loop inside
this process.

With --configs, every file in the directory is also checked against each
model and the share of satisfiable configurations is reported.

A model that fails is reported with its error and the batch continues.

Examples:
  fmrepl stats models/*.uvl
  fmrepl stats --configs configs/serde --format json models/serde.uvl
  fmrepl stats --server-script flamapy_server.py -o out.csv models/*.uvl`,

		Args: cobra.MinimumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, args, flags)
		},
	}

	cmd.Flags().StringVar(&flags.configsDir, "configs", "", "Directory of configuration files to check against each model")
	cmd.Flags().StringVar(&flags.format, "format", "csv", "Output format: csv or json (--json implies json)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Write results to a file instead of stdout")
	cmd.Flags().StringVar(&flags.serverScript, "server-script", "", "Python server script to run instead of fmrepl serve")
	cmd.Flags().BoolVar(&flags.inProcess, "in-process", false, "Run the command loop inside this process")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 10*time.Minute, "Time limit for the queries of one model (0 disables)")
	cmd.Flags().IntVar(&flags.retries, "retries", 3, "Attempts to start a server session")

	cmd.MarkFlagsMutuallyExclusive("server-script", "in-process")

	return cmd
}

func runStats(cmd *cobra.Command, models []string, flags *statsFlags) error {
	ctx := cmd.Context()
	logger := loggerFrom(cmd)

	format := model.FormatCSV
	if IsJSONOutput() {
		format = model.FormatJSON
	} else {
		f, err := model.ParseOutputFormat(flags.format)
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "invalid --format flag", err)
		}
		format = f
	}

	var opts []stats.Option
	if flags.timeout > 0 {
		opts = append(opts, stats.WithTimeout(flags.timeout))
	}
	if flags.configsDir != "" {
		configs, err := listConfigurations(flags.configsDir)
		if err != nil {
			return err
		}
		logger.Info("checking configurations", "dir", flags.configsDir, "count", len(configs))
		opts = append(opts, stats.WithConfigurations(configs))
	}

	dial, release, err := newDialer(cmd, flags)
	if err != nil {
		return err
	}
	defer release()

	results, err := stats.Collect(ctx, dial, models, opts...)
	if err != nil {
		return model.WrapCLIError(model.ExitServerError, "statistics collection aborted", err)
	}

	out := cmd.OutOrStdout()
	if flags.output != "" {
		f, err := os.Create(flags.output)
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError, fmt.Sprintf("failed to create %s", flags.output), err)
		}
		defer f.Close()
		out = f
	}

	if err := writeStats(out, format, results); err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Err != "" {
			failed++
		}
	}
	logger.Info("statistics collected", "models", len(results), "failed", failed)
	return nil
}

func writeStats(w io.Writer, format model.OutputFormat, results []stats.ModelStats) error {
	if format == model.FormatJSON {
		return stats.WriteJSON(w, results)
	}
	return stats.WriteCSV(w, results)
}

// newDialer returns the session dialer selected by flags. Spawned servers
// are started with retries.
func newDialer(cmd *cobra.Command, flags *statsFlags) (stats.Dialer, func(), error) {
	if flags.inProcess {
		analyzer, release, err := openAnalyzer(cmd.Context(), appConfig)
		if err != nil {
			return nil, nil, err
		}
		return func(ctx context.Context) (stats.Session, error) {
			return client.Connect(ctx, analyzer), nil
		}, release, nil
	}

	argv, err := serverCommand(flags)
	if err != nil {
		return nil, nil, err
	}

	logger := loggerFrom(cmd)
	stderr := cmd.ErrOrStderr()
	return func(ctx context.Context) (stats.Session, error) {
		return client.Retry(ctx, flags.retries, func(ctx context.Context) (stats.Session, error) {
			c, err := client.Start(ctx, argv, client.WithStderr(stderr))
			if err != nil {
				return nil, err
			}
			return c, nil
		}, func(attempt int, err error) {
			logger.Warn("failed to start server", "attempt", attempt, "error", err)
		})
	}, func() {}, nil
}

// serverCommand returns the argv of the server process: the Python server
// script, or this executable's serve command with the global flags that
// shape its configuration.
func serverCommand(flags *statsFlags) ([]string, error) {
	if flags.serverScript != "" {
		return client.PythonServerCommand(flags.serverScript)
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate fmrepl executable: %w", err)
	}
	argv := []string{exe, "serve"}
	if configPath != "" {
		argv = append(argv, "--config", configPath)
	}
	argv = append(argv, "--backend", appConfig.Backend.String())
	return argv, nil
}

// listConfigurations returns the regular files in dir, sorted.
func listConfigurations(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("failed to read configurations directory %s", dir), err)
	}

	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		return nil, model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("no configuration files in %s", dir))
	}
	return paths, nil
}
