package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBackend_String verifies that Backend values produce the strings used
// in configuration files and the --backend flag.
func TestBackend_String(t *testing.T) {
	tests := []struct {
		backend  Backend
		expected string
	}{
		{BackendExec, "exec"},
		{BackendDocker, "docker"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.backend.String())
		})
	}
}

// TestBackend_IsValid checks that only defined backends pass validation.
func TestBackend_IsValid(t *testing.T) {
	assert.True(t, BackendExec.IsValid())
	assert.True(t, BackendDocker.IsValid())
	assert.False(t, Backend("podman").IsValid())
	assert.False(t, Backend("").IsValid())
}

// TestParseBackend verifies string-to-backend conversion, including case
// normalization, surrounding whitespace and error cases.
func TestParseBackend(t *testing.T) {
	tests := []struct {
		input    string
		expected Backend
		hasError bool
	}{
		{"exec", BackendExec, false},
		{"docker", BackendDocker, false},
		{"Docker", BackendDocker, false}, // case insensitive
		{" exec ", BackendExec, false},   // trimmed
		{"python", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseBackend(tt.input)
			if tt.hasError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

// TestParseOutputFormat verifies string-to-format conversion.
func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected OutputFormat
		hasError bool
	}{
		{"csv", FormatCSV, false},
		{"JSON", FormatJSON, false},
		{"xml", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseOutputFormat(tt.input)
			if tt.hasError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

func TestAnalysisContainer_IsRunning(t *testing.T) {
	assert.True(t, (&AnalysisContainer{Status: "running"}).IsRunning())
	assert.False(t, (&AnalysisContainer{Status: "exited"}).IsRunning())
	assert.False(t, (&AnalysisContainer{}).IsRunning())
}

// TestCLIError verifies the custom error type used for exit code mapping.
func TestCLIError(t *testing.T) {
	t.Run("simple error", func(t *testing.T) {
		err := NewCLIError(ExitAnalyzerUnavailable, "flamapy not found")
		assert.Equal(t, ExitAnalyzerUnavailable, err.Code)
		assert.Equal(t, "flamapy not found", err.Error())
		assert.Nil(t, err.Unwrap())
	})

	t.Run("wrapped error", func(t *testing.T) {
		inner := errors.New("connection refused")
		err := WrapCLIError(ExitAnalyzerUnavailable, "Docker daemon is not running", inner)
		assert.Equal(t, ExitAnalyzerUnavailable, err.Code)
		assert.Contains(t, err.Error(), "connection refused")
		assert.Equal(t, inner, err.Unwrap())
	})

	t.Run("errors.Is chain", func(t *testing.T) {
		inner := errors.New("connection refused")
		err := WrapCLIError(ExitConfigError, "bad config", inner)
		assert.True(t, errors.Is(err, inner))
	})
}
