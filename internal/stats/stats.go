package stats

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/shinji-kodama/fmrepl/internal/client"
	"github.com/shinji-kodama/fmrepl/internal/logging"
)

// Session is the part of *client.Client used here.
type Session interface {
	SetModel(ctx context.Context, path string) error
	EstimatedNumberOfConfigurations(ctx context.Context) (*big.Int, error)
	ConfigurationsNumber(ctx context.Context) (*big.Int, error)
	SatisfiableConfiguration(ctx context.Context, path string) (bool, error)
	Close() error
	Kill() error
}

var _ Session = (*client.Client)(nil)

// Dialer opens a new session.
type Dialer func(ctx context.Context) (Session, error)

// ModelStats is the outcome for one model. Err is set when any query for
// the model failed; the fields gathered before the failure are kept.
type ModelStats struct {
	Model     string   `json:"model"`
	Estimated *big.Int `json:"estimated,omitempty"`
	Exact     *big.Int `json:"exact,omitempty"`
	Checked   int      `json:"checked,omitempty"`
	Satisfied int      `json:"satisfied,omitempty"`
	Err       string   `json:"error,omitempty"`
}

// Quality returns the fraction of checked configurations the model
// accepts, or false when none were checked.
func (s ModelStats) Quality() (float64, bool) {
	if s.Checked == 0 {
		return 0, false
	}
	return float64(s.Satisfied) / float64(s.Checked), true
}

type options struct {
	timeout time.Duration
	configs []string
}

// Option configures Collect.
type Option func(*options)

// WithTimeout bounds the queries for each model. A model whose analysis
// prints no result would otherwise block the batch.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithConfigurations checks every configuration in paths against each
// model after counting.
func WithConfigurations(paths []string) Option {
	return func(o *options) {
		o.configs = paths
	}
}

// Collect gathers statistics for models in order. A failure for one model
// is recorded in its ModelStats and the batch continues; when the failure
// ended the session, a new one is dialled for the next model. Collect
// returns an error only when dialling fails or ctx is done.
func Collect(ctx context.Context, dial Dialer, models []string, opts ...Option) ([]ModelStats, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.FromContext(ctx)

	var session Session
	// closeSession drops the current session. A server still busy with a
	// timed-out or cancelled query is killed, since Close would wait for
	// it to finish.
	closeSession := func(kill bool) {
		if session == nil {
			return
		}
		var err error
		if kill {
			err = session.Kill()
		} else {
			err = session.Close()
		}
		if err != nil {
			logger.Debug("session closed with error", "error", err, "killed", kill)
		}
		session = nil
	}
	defer func() { closeSession(ctx.Err() != nil) }()

	results := make([]ModelStats, 0, len(models))
	for i, path := range models {
		if session == nil {
			s, err := dial(ctx)
			if err != nil {
				return results, fmt.Errorf("failed to open session: %w", err)
			}
			session = s
		}

		logger.Info("collecting statistics", "model", path, "index", i+1, "total", len(models))

		res, err := collectOne(ctx, session, path, o)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			res.Err = err.Error()
			logger.Warn("statistics incomplete", "model", path, "error", err)
			if sessionLost(err) {
				closeSession(errors.Is(err, context.DeadlineExceeded))
			}
		}
		results = append(results, res)
	}

	return results, nil
}

// collectOne runs the queries for one model.
func collectOne(ctx context.Context, s Session, path string, o options) (ModelStats, error) {
	res := ModelStats{Model: path}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	if err := s.SetModel(ctx, path); err != nil {
		return res, fmt.Errorf("failed to set model: %w", err)
	}

	est, err := s.EstimatedNumberOfConfigurations(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to get estimated number of configurations: %w", err)
	}
	res.Estimated = est

	exact, err := s.ConfigurationsNumber(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to get configurations number: %w", err)
	}
	res.Exact = exact

	if len(o.configs) > 0 {
		satisfied, err := countSatisfied(ctx, s, o.configs)
		if err != nil {
			return res, err
		}
		res.Checked = len(o.configs)
		res.Satisfied = satisfied
	}

	return res, nil
}

// sessionLost reports whether err leaves the session unusable. A timed-out
// query leaves an unread response behind, so that session is dropped too.
func sessionLost(err error) bool {
	return client.IsServerFailure(err) ||
		errors.Is(err, client.ErrClosed) ||
		errors.Is(err, context.DeadlineExceeded)
}

// countSatisfied checks configs in order and counts the accepted ones.
func countSatisfied(ctx context.Context, s Session, configs []string) (int, error) {
	n := 0
	for _, cfg := range configs {
		ok, err := s.SatisfiableConfiguration(ctx, cfg)
		if err != nil {
			return n, fmt.Errorf("failed to check configuration %s: %w", cfg, err)
		}
		if ok {
			n++
		}
	}
	return n, nil
}
