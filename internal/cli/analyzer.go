package cli

import (
	"context"

	"github.com/shinji-kodama/fmrepl/internal/config"
	"github.com/shinji-kodama/fmrepl/internal/docker"
	"github.com/shinji-kodama/fmrepl/internal/flamapy"
	"github.com/shinji-kodama/fmrepl/internal/logging"
	"github.com/shinji-kodama/fmrepl/internal/metrics"
	"github.com/shinji-kodama/fmrepl/internal/model"
)

// openAnalyzer builds the backend and, when a metrics file is configured,
// instruments it. The release function writes the metrics file.
func openAnalyzer(ctx context.Context, cfg config.Config) (flamapy.Analyzer, func(), error) {
	a, release, err := newAnalyzer(ctx, cfg)
	if err != nil || cfg.Metrics.File == "" {
		return a, release, err
	}

	logger := logging.FromContext(ctx)
	m := metrics.New()
	return m.Instrument(a, cfg.Backend.String()), func() {
		release()
		if err := m.WriteTextfile(cfg.Metrics.File); err != nil {
			logger.Warn("metrics not written", "error", err)
			return
		}
		logger.Debug("metrics written", "file", cfg.Metrics.File)
	}, nil
}

// newAnalyzer builds the configured backend and verifies it can be reached.
// The returned function releases backend resources. Tests replace it.
var newAnalyzer = buildAnalyzer

func buildAnalyzer(ctx context.Context, cfg config.Config) (flamapy.Analyzer, func(), error) {
	logger := logging.FromContext(ctx)

	switch cfg.Backend {
	case model.BackendDocker:
		cli, err := docker.NewClient(cfg.Docker.Host)
		if err != nil {
			return nil, nil, err
		}
		if err := cli.Ping(ctx); err != nil {
			_ = cli.Close()
			return nil, nil, err
		}
		logger.Debug("connected to Docker daemon", "image", cfg.Docker.Image)

		a := docker.NewAnalyzer(cli, docker.AnalyzerOptions{
			Image:   cfg.Docker.Image,
			Command: cfg.Docker.Command,
			Pull:    cfg.Docker.Pull,
		})
		return a, func() { _ = cli.Close() }, nil

	default:
		a := flamapy.NewExecAnalyzer(cfg.Flamapy.Command)
		if err := a.Check(); err != nil {
			return nil, nil, err
		}
		logger.Debug("using flamapy launcher", "command", a.Command())
		return a, func() {}, nil
	}
}
