// Package model defines the shared domain types and value objects for the
// fmrepl CLI.
//
// This package contains plain data structures with no external dependencies:
// the analysis backend selector (Backend), output formats (OutputFormat),
// runtime information about analysis containers (AnalysisContainer), and the
// exit codes (ExitCode) and error type (CLIError) that the CLI layer turns
// into process exit statuses.
package model
