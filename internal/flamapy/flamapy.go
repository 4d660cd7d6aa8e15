// Package flamapy defines the collaborator the command loop forwards to: an
// Analyzer that opens feature models, and the Model operations flamapy
// offers on them.
//
// The analysis itself (parsing UVL/FeatureIDE models, counting and checking
// configurations) happens in flamapy. This package only describes the
// contract and provides ExecAnalyzer, which runs the flamapy command-line
// tool installed on the host. A Docker-based analyzer lives in
// internal/docker.
package flamapy

import (
	"context"
	"errors"
	"fmt"
)

// Operation names a flamapy analysis operation. The values double as the
// flamapy CLI subcommands and as the command loop keywords.
type Operation string

const (
	// OpEstimatedNumberOfConfigurations approximates the configuration count.
	OpEstimatedNumberOfConfigurations Operation = "estimated_number_of_configurations"

	// OpConfigurationsNumber counts configurations exactly.
	OpConfigurationsNumber Operation = "configurations_number"

	// OpSatisfiableConfiguration checks one configuration file against the
	// model.
	OpSatisfiableConfiguration Operation = "satisfiable_configuration"
)

// String returns the operation name.
func (o Operation) String() string {
	return string(o)
}

// ParseOperation maps an operation name to an Operation.
func ParseOperation(s string) (Operation, error) {
	switch op := Operation(s); op {
	case OpEstimatedNumberOfConfigurations, OpConfigurationsNumber, OpSatisfiableConfiguration:
		return op, nil
	default:
		return "", fmt.Errorf("unknown flamapy operation %q (valid: %s, %s, %s)", s,
			OpEstimatedNumberOfConfigurations, OpConfigurationsNumber, OpSatisfiableConfiguration)
	}
}

// NeedsConfiguration reports whether the operation takes a configuration
// file argument.
func (o Operation) NeedsConfiguration() bool {
	return o == OpSatisfiableConfiguration
}

// Analyzer opens feature models.
type Analyzer interface {
	// Open constructs a model handle for the file at path. Rejections of
	// the model are returned as *Failure; anything else is an
	// infrastructure error.
	Open(ctx context.Context, path string) (Model, error)
}

// Model is an opened feature model. Every operation returns either a
// Result (possibly absent) or an error; rejections by flamapy are *Failure.
type Model interface {
	EstimatedNumberOfConfigurations(ctx context.Context) (Result, error)
	ConfigurationsNumber(ctx context.Context) (Result, error)
	SatisfiableConfiguration(ctx context.Context, configPath string) (Result, error)
}

// Run invokes op on m. configPath is only used by operations that need it.
func Run(ctx context.Context, m Model, op Operation, configPath string) (Result, error) {
	switch op {
	case OpEstimatedNumberOfConfigurations:
		return m.EstimatedNumberOfConfigurations(ctx)
	case OpConfigurationsNumber:
		return m.ConfigurationsNumber(ctx)
	case OpSatisfiableConfiguration:
		return m.SatisfiableConfiguration(ctx, configPath)
	default:
		return None(), fmt.Errorf("unknown flamapy operation %q", op)
	}
}

// Result is the textual outcome of an operation. flamapy may answer with
// nothing at all, which is represented by Present == false.
type Result struct {
	// Value is flamapy's textual answer, e.g. "42" or "True".
	Value string

	// Present is false when flamapy produced no answer.
	Present bool
}

// Some returns a present result holding v.
func Some(v string) Result {
	return Result{Value: v, Present: true}
}

// None returns an absent result.
func None() Result {
	return Result{}
}

// String returns the value, or the empty string for an absent result.
func (r Result) String() string {
	return r.Value
}

// Failure is a domain failure reported by flamapy: the model or
// configuration could not be parsed or analysed. The command loop treats it
// as fatal for the session.
type Failure struct {
	// Operation is the operation that failed; empty when opening the model
	// failed.
	Operation Operation

	// ModelPath is the model the failure refers to.
	ModelPath string

	// Detail is flamapy's own error text.
	Detail string
}

// Error satisfies the error interface.
func (f *Failure) Error() string {
	if f.Operation == "" {
		return fmt.Sprintf("flamapy could not load model %s: %s", f.ModelPath, f.Detail)
	}
	return fmt.Sprintf("flamapy %s failed for model %s: %s", f.Operation, f.ModelPath, f.Detail)
}

// IsFailure reports whether err is or wraps a *Failure.
func IsFailure(err error) bool {
	var f *Failure
	return errors.As(err, &f)
}

// AsFailure extracts the *Failure from err's chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
