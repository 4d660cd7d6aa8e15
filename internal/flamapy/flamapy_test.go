package flamapy

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOperation(t *testing.T) {
	for _, op := range []Operation{OpEstimatedNumberOfConfigurations, OpConfigurationsNumber, OpSatisfiableConfiguration} {
		got, err := ParseOperation(op.String())
		require.NoError(t, err)
		assert.Equal(t, op, got)
	}

	_, err := ParseOperation("set_model")
	assert.Error(t, err)

	assert.True(t, OpSatisfiableConfiguration.NeedsConfiguration())
	assert.False(t, OpConfigurationsNumber.NeedsConfiguration())
}

func TestFailure(t *testing.T) {
	open := &Failure{ModelPath: "a.uvl", Detail: "bad token"}
	assert.Equal(t, "flamapy could not load model a.uvl: bad token", open.Error())

	op := &Failure{Operation: OpConfigurationsNumber, ModelPath: "a.uvl", Detail: "timeout"}
	assert.Equal(t, "flamapy configurations_number failed for model a.uvl: timeout", op.Error())

	wrapped := fmt.Errorf("session: %w", op)
	assert.True(t, IsFailure(wrapped))
	f, ok := AsFailure(wrapped)
	require.True(t, ok)
	assert.Same(t, op, f)

	assert.False(t, IsFailure(fmt.Errorf("plain")))
}

func TestResult(t *testing.T) {
	assert.Equal(t, Result{Value: "3", Present: true}, Some("3"))
	assert.False(t, None().Present)
	assert.Equal(t, "3", Some("3").String())
	assert.Equal(t, "", None().String())
}

// stubModel answers every operation with its own name.
type stubModel struct{}

func (stubModel) EstimatedNumberOfConfigurations(context.Context) (Result, error) {
	return Some("estimated"), nil
}

func (stubModel) ConfigurationsNumber(context.Context) (Result, error) {
	return Some("exact"), nil
}

func (stubModel) SatisfiableConfiguration(_ context.Context, path string) (Result, error) {
	return Some("check " + path), nil
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	res, err := Run(ctx, stubModel{}, OpEstimatedNumberOfConfigurations, "")
	require.NoError(t, err)
	assert.Equal(t, "estimated", res.Value)

	res, err = Run(ctx, stubModel{}, OpConfigurationsNumber, "")
	require.NoError(t, err)
	assert.Equal(t, "exact", res.Value)

	res, err = Run(ctx, stubModel{}, OpSatisfiableConfiguration, "c.csvconf")
	require.NoError(t, err)
	assert.Equal(t, "check c.csvconf", res.Value)

	_, err = Run(ctx, stubModel{}, Operation("bogus"), "")
	assert.Error(t, err)
}
