// Package flamapytest provides an in-memory flamapy.Analyzer for tests of
// the command loop, the pipe client and the CLI.
package flamapytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/shinji-kodama/fmrepl/internal/flamapy"
)

// OpOpen is the Call.Op recorded for Analyzer.Open.
const OpOpen = "open"

// Call records one request that reached the fake.
type Call struct {
	Op         string
	ModelPath  string
	ConfigPath string
}

// Model scripts the answers for one model path.
type Model struct {
	// OpenErr, when set, is returned by Analyzer.Open.
	OpenErr error

	Estimated flamapy.Result
	Exact     flamapy.Result

	// Configurations maps configuration paths to satisfiability answers.
	// Unknown paths fail like a missing file.
	Configurations map[string]flamapy.Result

	// Errors makes individual operations fail.
	Errors map[flamapy.Operation]error
}

// Analyzer is a scripted flamapy.Analyzer. Paths without a Model fail to
// open with a *flamapy.Failure. It is safe for concurrent use.
type Analyzer struct {
	mu     sync.Mutex
	models map[string]*Model
	calls  []Call
}

// New returns an empty fake.
func New() *Analyzer {
	return &Analyzer{models: make(map[string]*Model)}
}

// Add registers m under path and returns the analyzer for chaining.
func (a *Analyzer) Add(path string, m *Model) *Analyzer {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.models[path] = m
	return a
}

// Calls returns a copy of the recorded requests in order.
func (a *Analyzer) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Call(nil), a.calls...)
}

func (a *Analyzer) record(c Call) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, c)
}

func (a *Analyzer) lookup(path string) (*Model, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.models[path]
	return m, ok
}

// Open implements flamapy.Analyzer.
func (a *Analyzer) Open(_ context.Context, path string) (flamapy.Model, error) {
	a.record(Call{Op: OpOpen, ModelPath: path})

	m, ok := a.lookup(path)
	if !ok {
		return nil, &flamapy.Failure{ModelPath: path, Detail: fmt.Sprintf("File not found: %s", path)}
	}
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	return &handle{analyzer: a, path: path, model: m}, nil
}

// handle is the flamapy.Model returned by Open.
type handle struct {
	analyzer *Analyzer
	path     string
	model    *Model
}

func (h *handle) EstimatedNumberOfConfigurations(_ context.Context) (flamapy.Result, error) {
	h.analyzer.record(Call{Op: flamapy.OpEstimatedNumberOfConfigurations.String(), ModelPath: h.path})
	if err := h.model.Errors[flamapy.OpEstimatedNumberOfConfigurations]; err != nil {
		return flamapy.None(), err
	}
	return h.model.Estimated, nil
}

func (h *handle) ConfigurationsNumber(_ context.Context) (flamapy.Result, error) {
	h.analyzer.record(Call{Op: flamapy.OpConfigurationsNumber.String(), ModelPath: h.path})
	if err := h.model.Errors[flamapy.OpConfigurationsNumber]; err != nil {
		return flamapy.None(), err
	}
	return h.model.Exact, nil
}

func (h *handle) SatisfiableConfiguration(_ context.Context, configPath string) (flamapy.Result, error) {
	h.analyzer.record(Call{
		Op:         flamapy.OpSatisfiableConfiguration.String(),
		ModelPath:  h.path,
		ConfigPath: configPath,
	})
	if err := h.model.Errors[flamapy.OpSatisfiableConfiguration]; err != nil {
		return flamapy.None(), err
	}
	result, ok := h.model.Configurations[configPath]
	if !ok {
		return flamapy.None(), &flamapy.Failure{
			Operation: flamapy.OpSatisfiableConfiguration,
			ModelPath: h.path,
			Detail:    fmt.Sprintf("File not found: %s", configPath),
		}
	}
	return result, nil
}
