package flamapy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"

	"github.com/shinji-kodama/fmrepl/internal/logging"
	"github.com/shinji-kodama/fmrepl/internal/model"
)

// DefaultCommand is the flamapy launcher installed by `pip install flamapy`.
var DefaultCommand = []string{"flamapy"}

// Output is what one flamapy invocation wrote and how it ended.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes argv and reports its output. A non-nil error means the
// process could not be run at all; a non-zero exit status is reported
// through Output.ExitCode instead.
type Runner func(ctx context.Context, argv []string) (Output, error)

// ExecAnalyzer runs the flamapy CLI on the host, one process per operation:
//
//	flamapy <operation> <model> [<configuration>]
//
// It is stateless apart from its configuration, so one value can serve any
// number of sessions.
type ExecAnalyzer struct {
	command []string
	run     Runner
}

// ExecOption customizes an ExecAnalyzer.
type ExecOption func(*ExecAnalyzer)

// WithRunner replaces the process runner, mainly for tests.
func WithRunner(r Runner) ExecOption {
	return func(a *ExecAnalyzer) {
		a.run = r
	}
}

// NewExecAnalyzer creates an analyzer invoking command (for example
// ["flamapy"] or ["python3", "-m", "flamapy"]). An empty command selects
// DefaultCommand.
func NewExecAnalyzer(command []string, opts ...ExecOption) *ExecAnalyzer {
	if len(command) == 0 {
		command = DefaultCommand
	}
	a := &ExecAnalyzer{
		command: append([]string(nil), command...),
		run:     runProcess,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Command returns the configured launcher argv.
func (a *ExecAnalyzer) Command() []string {
	return append([]string(nil), a.command...)
}

// Check verifies that the launcher can be found on PATH. It lets the CLI
// fail fast with ExitAnalyzerUnavailable instead of at the first command.
func (a *ExecAnalyzer) Check() error {
	if _, err := exec.LookPath(a.command[0]); err != nil {
		return model.WrapCLIError(model.ExitAnalyzerUnavailable,
			fmt.Sprintf("flamapy launcher %q not found (install it with `pip install flamapy` or set flamapy.command)", a.command[0]),
			err)
	}
	return nil
}

// Open checks that the model file exists and returns a handle for it.
// flamapy parses the model on every operation, so syntax errors surface
// from the first operation rather than from Open.
func (a *ExecAnalyzer) Open(ctx context.Context, path string) (Model, error) {
	if err := CheckModelFile(path); err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Debug("model opened", "backend", "exec", "path", path)
	return &execModel{analyzer: a, path: path}, nil
}

// CheckModelFile returns a *Failure when path does not name a readable
// regular file.
func CheckModelFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Failure{ModelPath: path, Detail: fmt.Sprintf("File not found: %s", path)}
		}
		return &Failure{ModelPath: path, Detail: err.Error()}
	}
	if info.IsDir() {
		return &Failure{ModelPath: path, Detail: fmt.Sprintf("Not a file: %s", path)}
	}
	return nil
}

// execModel is a model handle bound to an ExecAnalyzer.
type execModel struct {
	analyzer *ExecAnalyzer
	path     string
}

func (m *execModel) EstimatedNumberOfConfigurations(ctx context.Context) (Result, error) {
	return m.analyzer.invoke(ctx, OpEstimatedNumberOfConfigurations, m.path)
}

func (m *execModel) ConfigurationsNumber(ctx context.Context) (Result, error) {
	return m.analyzer.invoke(ctx, OpConfigurationsNumber, m.path)
}

func (m *execModel) SatisfiableConfiguration(ctx context.Context, configPath string) (Result, error) {
	return m.analyzer.invoke(ctx, OpSatisfiableConfiguration, m.path, configPath)
}

// invoke runs one flamapy operation and interprets its output.
func (a *ExecAnalyzer) invoke(ctx context.Context, op Operation, modelPath string, extra ...string) (Result, error) {
	argv := make([]string, 0, len(a.command)+2+len(extra))
	argv = append(argv, a.command...)
	argv = append(argv, op.String(), modelPath)
	argv = append(argv, extra...)

	logger := logging.FromContext(ctx)
	logger.Debug("running flamapy", "argv", argv)

	out, err := a.run(ctx, argv)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return None(), ctxErr
		}
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return None(), model.WrapCLIError(model.ExitAnalyzerUnavailable,
				fmt.Sprintf("flamapy launcher %q could not be started", a.command[0]), err)
		}
		return None(), fmt.Errorf("failed to run %s: %w", strings.Join(argv, " "), err)
	}

	logger.Debug("flamapy finished", "operation", op, "exit_code", out.ExitCode)
	return ParseOutput(op, modelPath, out)
}

// ParseOutput turns the output of one flamapy CLI invocation into a Result.
//
// Anything on stderr, or a non-zero exit status, is a *Failure carrying the
// stderr text. Otherwise stdout is trimmed; empty stdout is an absent
// result.
func ParseOutput(op Operation, modelPath string, out Output) (Result, error) {
	stderr := strings.TrimSpace(out.Stderr)
	if stderr != "" {
		return None(), &Failure{Operation: op, ModelPath: modelPath, Detail: stderr}
	}
	if out.ExitCode != 0 {
		return None(), &Failure{
			Operation: op,
			ModelPath: modelPath,
			Detail:    fmt.Sprintf("flamapy exited with status %d", out.ExitCode),
		}
	}

	stdout := strings.TrimSpace(out.Stdout)
	if stdout == "" {
		return None(), nil
	}
	return Some(stdout), nil
}

// runProcess is the default Runner. It captures stdout and stderr
// separately so stderr can become the failure detail.
func runProcess(ctx context.Context, argv []string) (Output, error) {
	// #nosec G204 -- argv is the configured launcher plus file paths
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		return out, err
	}
	return out, nil
}
