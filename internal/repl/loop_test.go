package repl

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/fmrepl/internal/flamapy"
	"github.com/shinji-kodama/fmrepl/internal/flamapy/flamapytest"
	"github.com/shinji-kodama/fmrepl/internal/model"
)

// runLoop feeds input to a fresh loop backed by analyzer and returns what
// the loop printed together with Run's error.
func runLoop(t *testing.T, analyzer flamapy.Analyzer, input string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	loop := New(analyzer, NewStreamReader(strings.NewReader(input)), &out)
	err := loop.Run(context.Background())
	return out.String(), err
}

// newFake returns an analyzer knowing a regular model, a model whose
// operations answer nothing, and a model flamapy cannot count.
func newFake() *flamapytest.Analyzer {
	return flamapytest.New().
		Add("serde.uvl", &flamapytest.Model{
			Estimated: flamapy.Some("96"),
			Exact:     flamapy.Some("64"),
			Configurations: map[string]flamapy.Result{
				"my config.xml": flamapy.Some("True"),
				"bad.xml":       flamapy.Some("False"),
			},
		}).
		Add("silent.uvl", &flamapytest.Model{
			Configurations: map[string]flamapy.Result{"c.xml": flamapy.None()},
		}).
		Add("broken.uvl", &flamapytest.Model{
			Errors: map[flamapy.Operation]error{
				flamapy.OpConfigurationsNumber: &flamapy.Failure{
					Operation: flamapy.OpConfigurationsNumber,
					ModelPath: "broken.uvl",
					Detail:    "Unsupported constraint: x > 3",
				},
			},
		})
}

func TestLoop_ModelNotAssigned(t *testing.T) {
	for _, line := range []string{
		"configurations_number",
		"estimated_number_of_configurations",
		"satisfiable_configuration c.xml",
	} {
		t.Run(line, func(t *testing.T) {
			fake := newFake()
			out, err := runLoop(t, fake, line+"\n")
			require.NoError(t, err)
			assert.Equal(t, "Error: Model not assigned\n", out)
			assert.Empty(t, fake.Calls(), "the collaborator must not be called without a model")
		})
	}
}

func TestLoop_CommandInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unknown keyword", "count\n"},
		{"unknown keyword with model loaded", "set_model serde.uvl\nhelp me\n"},
		{"keyword is case sensitive", "Configurations_Number\n"},
		{"empty line", "\n"},
		{"unterminated quote", "set_model \"serde.uvl\n"},
		{"set_model without path", "set_model\n"},
		{"set_model without path after a model", "set_model serde.uvl\nset_model\n"},
		{"unknown keyword with arguments", "frobnicate serde.uvl\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runLoop(t, newFake(), tt.input)
			require.NoError(t, err)
			assert.Equal(t, "Error: Command invalid\n", out)
		})
	}
}

// TestLoop_SatisfiableWithoutPath checks the guard order: a missing model
// is reported before a missing argument.
func TestLoop_SatisfiableWithoutPath(t *testing.T) {
	out, err := runLoop(t, newFake(), "satisfiable_configuration\nset_model serde.uvl\nsatisfiable_configuration\n")
	require.NoError(t, err)
	assert.Equal(t, "Error: Model not assigned\nError: Command invalid\n", out)
}

func TestLoop_ExtraArgumentsIgnored(t *testing.T) {
	out, err := runLoop(t, newFake(), "set_model serde.uvl extra\nconfigurations_number now\nsatisfiable_configuration bad.xml b.xml\n")
	require.NoError(t, err)
	assert.Equal(t, "64\nFalse\n", out)
}

func TestLoop_Results(t *testing.T) {
	fake := newFake()
	input := strings.Join([]string{
		"set_model serde.uvl",
		"estimated_number_of_configurations",
		"configurations_number",
		`satisfiable_configuration "my config.xml"`,
		"satisfiable_configuration bad.xml",
	}, "\n") + "\n"

	out, err := runLoop(t, fake, input)
	require.NoError(t, err)
	assert.Equal(t, "96\n64\nTrue\nFalse\n", out)

	calls := fake.Calls()
	require.Len(t, calls, 5)
	assert.Equal(t, flamapytest.Call{Op: flamapytest.OpOpen, ModelPath: "serde.uvl"}, calls[0])
	assert.Equal(t, flamapytest.Call{
		Op:         "satisfiable_configuration",
		ModelPath:  "serde.uvl",
		ConfigPath: "my config.xml",
	}, calls[3], "quoted argument must arrive as a single token")
}

func TestLoop_AbsentResultPrintsNothing(t *testing.T) {
	fake := newFake()
	out, err := runLoop(t, fake, "set_model silent.uvl\nconfigurations_number\nestimated_number_of_configurations\nsatisfiable_configuration c.xml\n")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Len(t, fake.Calls(), 4)
}

func TestLoop_EOF(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		out, err := runLoop(t, newFake(), "")
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("last line without newline is processed", func(t *testing.T) {
		out, err := runLoop(t, newFake(), "set_model serde.uvl\nconfigurations_number")
		require.NoError(t, err)
		assert.Equal(t, "64\n", out)
	})
}

// TestLoop_SetModelReplacesSession verifies that set_model swaps the model
// used by subsequent commands.
func TestLoop_SetModelReplacesSession(t *testing.T) {
	fake := newFake()
	var out bytes.Buffer
	loop := New(fake, NewStreamReader(strings.NewReader(
		"set_model serde.uvl\nconfigurations_number\nset_model silent.uvl\nconfigurations_number\n")), &out)

	assert.False(t, loop.Session().Loaded())
	require.NoError(t, loop.Run(context.Background()))
	assert.Equal(t, "64\n", out.String())

	session := loop.Session()
	assert.True(t, session.Loaded())
	assert.Equal(t, "silent.uvl", session.ModelPath)
}

// TestLoop_FailureAbortsSession checks that a flamapy failure prints the
// two-line diagnostic and that no further input is processed.
func TestLoop_FailureAbortsSession(t *testing.T) {
	fake := newFake()
	out, err := runLoop(t, fake, "set_model broken.uvl\nconfigurations_number\nset_model serde.uvl\nconfigurations_number\n")

	require.Error(t, err)
	assert.True(t, flamapy.IsFailure(err))
	assert.Equal(t, "Error with model broken.uvl:\nUnsupported constraint: x > 3\n", out)
	assert.Len(t, fake.Calls(), 2, "commands after the failure must not reach the collaborator")
}

func TestLoop_SetModelFailureNamesNewPath(t *testing.T) {
	fake := newFake()
	out, err := runLoop(t, fake, "set_model serde.uvl\nset_model missing.uvl\nconfigurations_number\n")

	require.Error(t, err)
	assert.True(t, flamapy.IsFailure(err))
	assert.Equal(t, "Error with model missing.uvl:\nFile not found: missing.uvl\n", out)
}

func TestLoop_ConfigurationFailure(t *testing.T) {
	out, err := runLoop(t, newFake(), "set_model serde.uvl\nsatisfiable_configuration nope.xml\nconfigurations_number\n")

	require.Error(t, err)
	assert.Equal(t, "Error with model serde.uvl:\nFile not found: nope.xml\n", out)
}

// TestLoop_InfrastructureError verifies that errors which are not flamapy
// failures end the loop without the model diagnostic.
func TestLoop_InfrastructureError(t *testing.T) {
	unavailable := model.NewCLIError(model.ExitAnalyzerUnavailable, "flamapy launcher not found")
	fake := flamapytest.New().Add("m.uvl", &flamapytest.Model{
		Errors: map[flamapy.Operation]error{flamapy.OpConfigurationsNumber: unavailable},
	})

	out, err := runLoop(t, fake, "set_model m.uvl\nconfigurations_number\nconfigurations_number\n")
	require.Error(t, err)
	assert.False(t, flamapy.IsFailure(err))

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitAnalyzerUnavailable, cliErr.Code)
	assert.Empty(t, out)
}

// failingReader returns an I/O error instead of a line.
type failingReader struct{}

func (failingReader) ReadLine() (string, error) {
	return "", errors.New("input closed unexpectedly")
}

func TestLoop_ReadError(t *testing.T) {
	var out bytes.Buffer
	loop := New(newFake(), failingReader{}, &out)
	err := loop.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input closed unexpectedly")
}

// flushRecorder records the output visible each time a line is requested,
// proving that answers are flushed before the loop blocks on input.
type flushRecorder struct {
	lines []string
	out   *bytes.Buffer
	seen  []string
}

func (r *flushRecorder) ReadLine() (string, error) {
	r.seen = append(r.seen, r.out.String())
	if len(r.lines) == 0 {
		return "", errEOF
	}
	line := r.lines[0]
	r.lines = r.lines[1:]
	return line, nil
}

func TestLoop_FlushesBeforeReading(t *testing.T) {
	var out bytes.Buffer
	reader := &flushRecorder{lines: []string{"set_model serde.uvl", "configurations_number", "bogus"}, out: &out}
	loop := New(newFake(), reader, &out)

	require.NoError(t, loop.Run(context.Background()))
	assert.Equal(t, []string{"", "", "64\n", "64\nError: Command invalid\n"}, reader.seen)
}

func TestExecute(t *testing.T) {
	var out bytes.Buffer
	loop := New(newFake(), NewStreamReader(strings.NewReader("")), &out)
	ctx := context.Background()

	require.NoError(t, loop.Execute(ctx, "set_model serde.uvl"))
	require.NoError(t, loop.Execute(ctx, "configurations_number"))
	require.NoError(t, loop.flush())
	assert.Equal(t, "64\n", out.String())

	err := loop.Execute(ctx, "satisfiable_configuration unknown.xml")
	assert.True(t, flamapy.IsFailure(err))
}

func TestFailureHeader(t *testing.T) {
	assert.Equal(t, "Error with model data/model/fca/tokio.uvl:", FailureHeader("data/model/fca/tokio.uvl"))
}
