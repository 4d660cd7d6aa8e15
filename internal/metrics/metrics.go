// Package metrics records Prometheus metrics for flamapy operations.
//
// Metrics live in a private registry and are written out in the text
// exposition format with WriteTextfile, for the node_exporter textfile
// collector. fmrepl serves no HTTP endpoint.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shinji-kodama/fmrepl/internal/flamapy"
)

// Outcome label values.
const (
	OutcomeOK      = "ok"
	OutcomeAbsent  = "absent"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// OpOpen is the operation label recorded for Analyzer.Open.
const OpOpen = "open"

// Metrics holds the operation metrics and their registry.
type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// New creates the metrics and registers them in a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fmrepl",
			Subsystem: "flamapy",
			Name:      "operations_total",
			Help:      "flamapy operations by backend, operation and outcome",
		}, []string{"backend", "operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fmrepl",
			Subsystem: "flamapy",
			Name:      "operation_duration_seconds",
			Help:      "Wall-clock duration of flamapy operations",
			// flamapy spends seconds to hours on counting.
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 10),
		}, []string{"backend", "operation"}),
	}

	m.registry.MustRegister(m.operations, m.duration)
	return m
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes all metrics to path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

// Instrument wraps a so that every operation is counted and timed under
// the given backend label.
func (m *Metrics) Instrument(a flamapy.Analyzer, backend string) flamapy.Analyzer {
	return &analyzer{inner: a, metrics: m, backend: backend}
}

func (m *Metrics) observe(backend, op string, start time.Time, res flamapy.Result, err error) {
	m.duration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
	m.operations.WithLabelValues(backend, op, outcome(res, err)).Inc()
}

func outcome(res flamapy.Result, err error) string {
	switch {
	case err == nil && res.Present:
		return OutcomeOK
	case err == nil:
		return OutcomeAbsent
	case flamapy.IsFailure(err):
		return OutcomeFailure
	default:
		return OutcomeError
	}
}

type analyzer struct {
	inner   flamapy.Analyzer
	metrics *Metrics
	backend string
}

func (a *analyzer) Open(ctx context.Context, path string) (flamapy.Model, error) {
	start := time.Now()
	m, err := a.inner.Open(ctx, path)
	// Open has no value; a successful open counts as ok.
	a.metrics.observe(a.backend, OpOpen, start, flamapy.Some(""), err)
	if err != nil {
		return nil, err
	}
	return &model{inner: m, analyzer: a}, nil
}

type model struct {
	inner    flamapy.Model
	analyzer *analyzer
}

func (m *model) EstimatedNumberOfConfigurations(ctx context.Context) (flamapy.Result, error) {
	return m.run(ctx, flamapy.OpEstimatedNumberOfConfigurations, m.inner.EstimatedNumberOfConfigurations)
}

func (m *model) ConfigurationsNumber(ctx context.Context) (flamapy.Result, error) {
	return m.run(ctx, flamapy.OpConfigurationsNumber, m.inner.ConfigurationsNumber)
}

func (m *model) SatisfiableConfiguration(ctx context.Context, configPath string) (flamapy.Result, error) {
	return m.run(ctx, flamapy.OpSatisfiableConfiguration, func(ctx context.Context) (flamapy.Result, error) {
		return m.inner.SatisfiableConfiguration(ctx, configPath)
	})
}

func (m *model) run(ctx context.Context, op flamapy.Operation, fn func(context.Context) (flamapy.Result, error)) (flamapy.Result, error) {
	start := time.Now()
	res, err := fn(ctx)
	m.analyzer.metrics.observe(m.analyzer.backend, op.String(), start, res, err)
	return res, err
}
