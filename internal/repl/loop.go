package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/shinji-kodama/fmrepl/internal/command"
	"github.com/shinji-kodama/fmrepl/internal/flamapy"
	"github.com/shinji-kodama/fmrepl/internal/logging"
)

// Protocol messages for recoverable user errors.
const (
	MsgModelNotAssigned = "Error: Model not assigned"
	MsgCommandInvalid   = "Error: Command invalid"
)

// FailureHeader is the first line of the diagnostic printed when flamapy
// rejects a model or configuration.
func FailureHeader(modelPath string) string {
	return fmt.Sprintf("Error with model %s:", modelPath)
}

// LineReader yields input lines without their line terminator and returns
// io.EOF once input is exhausted.
type LineReader interface {
	ReadLine() (string, error)
}

// Session is the state a loop carries between commands. Both fields start
// empty and are only replaced together, by set_model.
type Session struct {
	// ModelPath is the path given to the last set_model.
	ModelPath string

	// Model is the handle opened from ModelPath, nil when none is loaded.
	Model flamapy.Model
}

// Loaded reports whether a model is available for analysis commands.
func (s Session) Loaded() bool {
	return s.Model != nil
}

// Loop is the command loop. It is not safe for concurrent use; one
// goroutine owns it for the lifetime of the session.
type Loop struct {
	analyzer flamapy.Analyzer
	in       LineReader
	out      *bufio.Writer
	session  Session
}

// New creates a loop reading commands from in, writing answers to out and
// forwarding analysis to analyzer.
func New(analyzer flamapy.Analyzer, in LineReader, out io.Writer) *Loop {
	return &Loop{
		analyzer: analyzer,
		in:       in,
		out:      bufio.NewWriter(out),
	}
}

// Session returns a copy of the current session state.
func (l *Loop) Session() Session {
	return l.session
}

// Run processes lines until input is exhausted or flamapy reports a
// failure.
//
// It returns nil at end of input. After a flamapy failure it prints the
// two-line diagnostic and returns the *flamapy.Failure, so callers can tell
// an aborted session from a finished one. Any other error (unreadable
// input, unwritable output, unavailable backend) is returned as is.
func (l *Loop) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	for {
		if err := l.flush(); err != nil {
			return err
		}

		line, err := l.in.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Debug("end of input")
				return l.flush()
			}
			return fmt.Errorf("failed to read command: %w", err)
		}

		if err := l.Execute(ctx, line); err != nil {
			if failure, ok := flamapy.AsFailure(err); ok {
				logger.Warn("session aborted by model failure",
					"model", l.session.ModelPath, "operation", failure.Operation)
				l.writeFailure(failure)
				if flushErr := l.flush(); flushErr != nil {
					return flushErr
				}
				return failure
			}
			_ = l.flush()
			return err
		}
	}
}

// Execute runs a single command line. Results and user errors are written
// to the output; flamapy failures and infrastructure errors are returned
// without printing anything.
func (l *Loop) Execute(ctx context.Context, line string) error {
	logger := logging.FromContext(ctx)

	cmd, err := command.Parse(line)
	if err != nil {
		logger.Debug("unparseable command line", "line", line, "error", err)
		return l.println(MsgCommandInvalid)
	}
	if cmd.Kind == command.KindUnknown {
		logger.Debug("unknown command", "name", cmd.Name)
		return l.println(MsgCommandInvalid)
	}
	// The model check comes first, so a query without a model reports the
	// missing model even when its argument is missing too.
	if cmd.Kind.RequiresModel() && !l.session.Loaded() {
		return l.println(MsgModelNotAssigned)
	}
	if !cmd.HasRequiredArgs() {
		return l.println(MsgCommandInvalid)
	}

	switch cmd.Kind {
	case command.KindSetModel:
		return l.setModel(ctx, cmd.Args[0])
	case command.KindEstimatedNumberOfConfigurations:
		return l.printResult(l.session.Model.EstimatedNumberOfConfigurations(ctx))
	case command.KindConfigurationsNumber:
		return l.printResult(l.session.Model.ConfigurationsNumber(ctx))
	case command.KindSatisfiableConfiguration:
		return l.printResult(l.session.Model.SatisfiableConfiguration(ctx, cmd.Args[0]))
	default:
		return fmt.Errorf("unhandled command %s", cmd.Kind)
	}
}

// setModel replaces the session with a model opened from path. When flamapy
// rejects the model the session keeps the new path without a model, so the
// failure diagnostic names the model that failed.
func (l *Loop) setModel(ctx context.Context, path string) error {
	m, err := l.analyzer.Open(ctx, path)
	if err != nil {
		if flamapy.IsFailure(err) {
			l.session = Session{ModelPath: path}
		}
		return err
	}

	l.session = Session{ModelPath: path, Model: m}
	logging.FromContext(ctx).Debug("model loaded", "path", path)
	return nil
}

// printResult prints a present result and propagates errors.
func (l *Loop) printResult(res flamapy.Result, err error) error {
	if err != nil {
		return err
	}
	if !res.Present {
		return nil
	}
	return l.println(res.Value)
}

// writeFailure prints the diagnostic for a flamapy failure. Output errors
// are ignored: the session is ending anyway.
func (l *Loop) writeFailure(f *flamapy.Failure) {
	_ = l.println(FailureHeader(l.session.ModelPath))
	_ = l.println(f.Detail)
}

func (l *Loop) println(s string) error {
	if _, err := fmt.Fprintln(l.out, s); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (l *Loop) flush() error {
	if err := l.out.Flush(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}
	return nil
}
