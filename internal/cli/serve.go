package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/fmrepl/internal/flamapy"
	"github.com/shinji-kodama/fmrepl/internal/repl"
)

// NewServeCommand creates the "serve" cobra command.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the command loop on standard input and output",
		Long: `Read commands from standard input, one per line, and write results to
standard output.

On a terminal, input has line editing, history and completion of command
names and file paths. Piped input is read as plain lines, which is how the
stats command and other programs drive fmrepl.

A flamapy failure is reported on standard output and ends the session.

Examples:
  fmrepl serve
  printf 'set_model m.uvl\nconfigurations_number\n' | fmrepl serve`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
}

// runServe runs the command loop until end of input, a flamapy failure, or
// cancellation of the command context.
func runServe(cmd *cobra.Command) error {
	ctx := cmd.Context()
	logger := loggerFrom(cmd)

	analyzer, release, err := openAnalyzer(ctx, appConfig)
	if err != nil {
		return err
	}
	defer release()

	reader, closeReader, err := newLineReader(cmd)
	if err != nil {
		return err
	}
	defer closeReader()

	loop := repl.New(analyzer, reader, cmd.OutOrStdout())

	// The reader does not observe ctx, so the loop runs on its own
	// goroutine and an interrupt abandons it.
	done := make(chan error, 1)
	go func() {
		done <- loop.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if flamapy.IsFailure(err) {
			// Already reported on stdout; the session ends normally.
			logger.Debug("session ended by model failure", "error", err)
			return nil
		}
		return err
	}
}

// newLineReader returns a terminal reader when stdin is a terminal and a
// plain stream reader otherwise.
func newLineReader(cmd *cobra.Command) (repl.LineReader, func(), error) {
	in := cmd.InOrStdin()

	if f, ok := in.(*os.File); ok && repl.IsTerminal(f) {
		tr, err := repl.NewTerminalReader(repl.TerminalConfig{
			Prompt:      appConfig.REPL.Prompt,
			HistoryFile: appConfig.REPL.HistoryFile,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialise terminal: %w", err)
		}
		return tr, func() { _ = tr.Close() }, nil
	}

	return repl.NewStreamReader(in), func() {}, nil
}
