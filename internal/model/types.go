// Package model defines the shared domain types for the fmrepl CLI.
//
// These types are passed between the CLI layer, the configuration loader,
// the analysis backends and the statistics collector. None of them carry
// behaviour beyond parsing and validation.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Backend selects how feature-model operations reach flamapy.
type Backend string

const (
	// BackendExec runs the flamapy command-line tool installed on the host,
	// one process per operation.
	BackendExec Backend = "exec"

	// BackendDocker runs the flamapy command-line tool inside a short-lived
	// Docker container, one container per operation. Useful on hosts
	// without a Python toolchain.
	BackendDocker Backend = "docker"
)

// String returns the string representation of Backend.
func (b Backend) String() string {
	return string(b)
}

// IsValid checks whether the Backend value is one of the predefined backends.
func (b Backend) IsValid() bool {
	switch b {
	case BackendExec, BackendDocker:
		return true
	default:
		return false
	}
}

// ParseBackend converts a string to a Backend. Matching is case-insensitive.
// Returns an error if the string does not name a known backend.
func ParseBackend(s string) (Backend, error) {
	backend := Backend(strings.ToLower(strings.TrimSpace(s)))
	if !backend.IsValid() {
		return "", fmt.Errorf("invalid backend: %q (valid: exec, docker)", s)
	}
	return backend, nil
}

// OutputFormat is the serialization used by the stats command.
type OutputFormat string

const (
	// FormatCSV writes one row per model with a header line.
	FormatCSV OutputFormat = "csv"

	// FormatJSON writes a single indented JSON document.
	FormatJSON OutputFormat = "json"
)

// String returns the string representation of OutputFormat.
func (f OutputFormat) String() string {
	return string(f)
}

// IsValid checks whether the OutputFormat value is supported.
func (f OutputFormat) IsValid() bool {
	return f == FormatCSV || f == FormatJSON
}

// ParseOutputFormat converts a string to an OutputFormat (case-insensitive).
func ParseOutputFormat(s string) (OutputFormat, error) {
	format := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	if !format.IsValid() {
		return "", fmt.Errorf("invalid output format: %q (valid: csv, json)", s)
	}
	return format, nil
}

// AnalysisContainer describes a Docker container started by the docker
// backend to run a single flamapy operation. Containers are normally removed
// as soon as the operation finishes; the ones that survive (interrupted
// sessions, daemon hiccups) are listed and pruned by `fmrepl containers`.
//
// All fields are reconstructed from Docker container labels at runtime.
type AnalysisContainer struct {
	// ContainerID is the Docker container identifier.
	ContainerID string `json:"containerId"`

	// ContainerName is the human-readable Docker container name.
	ContainerName string `json:"containerName"`

	// ModelPath is the host path of the feature model being analysed.
	ModelPath string `json:"modelPath"`

	// Operation is the flamapy operation the container was running,
	// e.g. "configurations_number".
	Operation string `json:"operation"`

	// Status is the Docker container state ("running", "exited", "created").
	Status string `json:"status"`

	// CreatedAt is the timestamp recorded when the container was created.
	CreatedAt time.Time `json:"createdAt"`
}

// IsRunning reports whether the container is still executing its operation.
func (c *AnalysisContainer) IsRunning() bool {
	return c.Status == "running"
}

// ExitCode defines the CLI exit codes. Scripts driving fmrepl can rely on
// these to tell configuration mistakes from missing tooling.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully. The REPL also
	// exits with this code after reporting a model failure.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitConfigError indicates the configuration file, environment or flags
	// could not be loaded or failed validation.
	ExitConfigError ExitCode = 2

	// ExitAnalyzerUnavailable indicates the analysis backend cannot be
	// reached: the flamapy binary is missing or the Docker daemon is down.
	ExitAnalyzerUnavailable ExitCode = 3

	// ExitModelError indicates flamapy rejected a model or configuration in
	// a one-shot `analyze` invocation.
	ExitModelError ExitCode = 4

	// ExitServerError indicates a REPL subprocess driven by the pipe client
	// died or answered with something unexpected.
	ExitServerError ExitCode = 5
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
