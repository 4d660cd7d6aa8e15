package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync"

	"github.com/shinji-kodama/fmrepl/internal/command"
	"github.com/shinji-kodama/fmrepl/internal/logging"
	"github.com/shinji-kodama/fmrepl/internal/repl"
)

const (
	failurePrefix = "Error with model "
	failureSuffix = ":"
)

type lineResult struct {
	line string
	err  error
}

// Client sends commands to a command loop and decodes its responses.
// Methods are safe for concurrent use but serialise on the connection.
type Client struct {
	mu    sync.Mutex
	w     *bufio.Writer
	lines <-chan lineResult
	wait  func() error
	kill  func() error

	// dead is set once the server has reported a failure or gone away.
	dead error
}

// newClient wraps the server's response stream r and command stream w.
// wait is called by Close after the command stream is closed; kill is
// called by Kill and must make r fail so the reader goroutine ends.
func newClient(r io.Reader, w io.WriteCloser, wait, kill func() error) *Client {
	lines := make(chan lineResult)
	go readLines(r, lines)

	return &Client{
		w:     bufio.NewWriter(w),
		lines: lines,
		wait: func() error {
			closeErr := w.Close()
			// The server exits once its input is closed; consume whatever
			// it still prints so the reader goroutine can finish.
			for range lines {
			}
			if err := wait(); err != nil {
				return err
			}
			return closeErr
		},
		kill: func() error {
			_ = w.Close()
			err := kill()
			// kill has cut the response stream, so this ends promptly
			// even while the server is still busy.
			for range lines {
			}
			return err
		},
	}
}

// readLines forwards lines from r until it fails. The final result carries
// the read error, io.EOF at the end of the stream.
func readLines(r io.Reader, out chan<- lineResult) {
	defer close(out)
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			out <- lineResult{line: strings.TrimRight(line, "\r\n")}
		}
		if err != nil {
			out <- lineResult{err: err}
			return
		}
	}
}

// SetModel assigns the session model. The server does not acknowledge
// success; a failure to load the model surfaces on the next query.
func (c *Client) SetModel(ctx context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(ctx, command.Format(command.KindSetModel, path))
}

// EstimatedNumberOfConfigurations queries the approximate count.
func (c *Client) EstimatedNumberOfConfigurations(ctx context.Context) (*big.Int, error) {
	return c.queryInt(ctx, command.Format(command.KindEstimatedNumberOfConfigurations))
}

// ConfigurationsNumber queries the exact count.
func (c *Client) ConfigurationsNumber(ctx context.Context) (*big.Int, error) {
	return c.queryInt(ctx, command.Format(command.KindConfigurationsNumber))
}

// SatisfiableConfiguration reports whether the configuration at path is
// valid for the session model.
func (c *Client) SatisfiableConfiguration(ctx context.Context, path string) (bool, error) {
	line, err := c.query(ctx, command.Format(command.KindSatisfiableConfiguration, path))
	if err != nil {
		return false, err
	}
	switch line {
	case "True":
		return true, nil
	case "False":
		return false, nil
	default:
		return false, &ParseError{Want: "boolean", Line: line}
	}
}

// Close ends the session by closing the command stream and waits for the
// server to finish. A server that already reported a failure is not an
// error.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.wait == nil {
		return nil
	}
	wait := c.wait
	c.wait, c.kill = nil, nil
	if c.dead == nil {
		c.dead = ErrClosed
	}
	_ = c.w.Flush()
	return wait()
}

// Kill ends the session without waiting for the command in progress. A
// spawned server is killed; an in-process loop is cancelled and abandoned.
// Use it when a query timed out: Close would wait for the server to finish
// the slow analysis first. Kill and Close are mutually exclusive, and only
// the first call has any effect.
func (c *Client) Kill() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.kill == nil {
		return nil
	}
	kill := c.kill
	c.wait, c.kill = nil, nil
	if c.dead == nil {
		c.dead = ErrClosed
	}
	return kill()
}

func (c *Client) queryInt(ctx context.Context, line string) (*big.Int, error) {
	resp, err := c.query(ctx, line)
	if err != nil {
		return nil, err
	}
	n, ok := new(big.Int).SetString(resp, 10)
	if !ok {
		return nil, &ParseError{Want: "integer", Line: resp}
	}
	return n, nil
}

// query sends line and returns the single response line.
func (c *Client) query(ctx context.Context, line string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(ctx, line); err != nil {
		return "", err
	}
	return c.response(ctx)
}

// send writes one command line. Callers hold c.mu.
func (c *Client) send(ctx context.Context, line string) error {
	// A server that reported a failure has exited; every later command
	// fails the same way without touching the pipes.
	if c.dead != nil {
		return c.dead
	}

	logging.FromContext(ctx).Debug("sending command", "line", line)

	// The server reads line by line, so flush every command right away.
	_, err := c.w.WriteString(line + "\n")
	if err == nil {
		err = c.w.Flush()
	}
	if err != nil {
		// A server that exits after a failure closes its input, so the
		// write fails; the failure report is still waiting to be read.
		if _, readErr := c.response(ctx); readErr != nil && !errors.Is(readErr, ErrClosed) {
			return readErr
		}
		c.dead = ErrClosed
		return fmt.Errorf("failed to send command: %w", err)
	}
	return nil
}

// response reads one response line and decodes protocol errors.
func (c *Client) response(ctx context.Context) (string, error) {
	line, err := c.readLine(ctx)
	if err != nil {
		return "", err
	}

	// User errors leave the session usable. A failure header is followed
	// by flamapy's message and the end of the stream, so the rest of the
	// output is the detail and the client is dead afterwards.
	switch {
	case line == repl.MsgModelNotAssigned:
		return "", ErrModelNotAssigned
	case line == repl.MsgCommandInvalid:
		return "", ErrCommandInvalid
	case strings.HasPrefix(line, failurePrefix) && strings.HasSuffix(line, failureSuffix):
		failure := &ServerFailure{
			Model:  strings.TrimSuffix(strings.TrimPrefix(line, failurePrefix), failureSuffix),
			Detail: c.drain(ctx),
		}
		c.dead = ErrClosed
		logging.FromContext(ctx).Debug("server reported failure", "model", failure.Model)
		return "", failure
	}
	return line, nil
}

// drain collects the rest of the server output, which follows a failure
// header until the server exits.
func (c *Client) drain(ctx context.Context) string {
	var detail []string
	for {
		line, err := c.readLine(ctx)
		if err != nil {
			return strings.Join(detail, "\n")
		}
		detail = append(detail, line)
	}
}

func (c *Client) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res, ok := <-c.lines:
		if !ok {
			c.dead = ErrClosed
			return "", ErrClosed
		}
		if res.err != nil {
			c.dead = ErrClosed
			if errors.Is(res.err, io.EOF) {
				return "", ErrClosed
			}
			return "", fmt.Errorf("failed to read server output: %w", res.err)
		}
		return res.line, nil
	}
}
