package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/shinji-kodama/fmrepl/internal/flamapy"
	"github.com/shinji-kodama/fmrepl/internal/logging"
	"github.com/shinji-kodama/fmrepl/internal/model"
	"github.com/shinji-kodama/fmrepl/internal/repl"
)

var (
	// ErrEmptyLauncher is returned when the flamapy launcher script is empty.
	ErrEmptyLauncher = errors.New("flamapy launcher script is empty")

	// ErrNoShebang is returned when the flamapy launcher has no "#!" line.
	ErrNoShebang = errors.New("flamapy launcher script has no shebang")
)

// waitDelay bounds how long Close and Kill wait for a server's output
// pipes after the process exited.
const waitDelay = 2 * time.Second

// Option configures a spawned server.
type Option func(*exec.Cmd)

// WithStderr sends the server's standard error to w instead of discarding
// it.
func WithStderr(w io.Writer) Option {
	return func(cmd *exec.Cmd) {
		cmd.Stderr = w
	}
}

// WithDir runs the server in dir.
func WithDir(dir string) Option {
	return func(cmd *exec.Cmd) {
		cmd.Dir = dir
	}
}

// Start spawns argv as a server process and connects to its standard
// streams. The process is killed if ctx is cancelled.
func Start(ctx context.Context, argv []string, opts ...Option) (*Client, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty server command")
	}

	// #nosec G204 -- argv comes from the user's own flags or config
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	// Children of a killed server may keep its output pipes open; stop
	// waiting for them after a grace period.
	cmd.WaitDelay = waitDelay
	for _, opt := range opts {
		opt(cmd)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open server stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open server stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, model.WrapCLIError(model.ExitAnalyzerUnavailable,
				fmt.Sprintf("server %q could not be started", argv[0]), err)
		}
		return nil, fmt.Errorf("failed to start server: %w", err)
	}

	logging.FromContext(ctx).Debug("server started", "argv", argv, "pid", cmd.Process.Pid)

	wait := func() error {
		if err := cmd.Wait(); err != nil {
			return fmt.Errorf("server %s: %w", argv[0], err)
		}
		return nil
	}
	kill := func() error {
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("failed to kill server %s: %w", argv[0], err)
		}
		// Wait reports the kill itself as an error. It also closes the
		// stdout pipe, which ends the reader goroutine.
		_ = cmd.Wait()
		logging.FromContext(ctx).Debug("server killed", "argv", argv)
		return nil
	}
	return newClient(stdout, stdin, wait, kill), nil
}

// Connect runs a command loop over analyzer in a goroutine and returns a
// client connected to it through pipes. The loop stops when the client is
// closed or ctx is cancelled.
func Connect(ctx context.Context, analyzer flamapy.Analyzer) *Client {
	cmdR, cmdW := io.Pipe()
	respR, respW := io.Pipe()
	ctx, cancel := context.WithCancel(ctx)

	loop := repl.New(analyzer, repl.NewStreamReader(cmdR), respW)
	done := make(chan error, 1)
	go func() {
		err := loop.Run(ctx)
		_ = respW.Close()
		_ = cmdR.Close()
		done <- err
	}()

	wait := func() error {
		err := <-done
		cancel()
		// The failure has already been delivered to the caller.
		if flamapy.IsFailure(err) {
			return nil
		}
		return err
	}
	kill := func() error {
		// The loop may be stuck in the analyzer; cancel it and cut the
		// response stream without waiting. Its goroutine exits once the
		// analyzer returns and the next write fails.
		cancel()
		return respR.Close()
	}
	return newClient(respR, cmdW, wait, kill)
}

// PythonServerCommand returns the command running script with the Python
// interpreter of the installed flamapy launcher, so the server sees the same
// flamapy installation as the CLI.
func PythonServerCommand(script string) ([]string, error) {
	launcher, err := exec.LookPath("flamapy")
	if err != nil {
		return nil, model.WrapCLIError(model.ExitAnalyzerUnavailable,
			"flamapy launcher not found in PATH", err)
	}
	interp, err := ShebangInterpreter(launcher)
	if err != nil {
		return nil, err
	}
	return append(interp, script), nil
}

// ShebangInterpreter reads the "#!" line of the script at path and returns
// the interpreter and its arguments.
func ShebangInterpreter(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	first, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	first = strings.TrimRight(first, "\r\n")
	if first == "" {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyLauncher)
	}

	rest, ok := strings.CutPrefix(first, "#!")
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrNoShebang)
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoShebang)
	}
	return fields, nil
}
