package stats

import (
	"context"
	"errors"
	"math/big"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/fmrepl/internal/client"
	"github.com/shinji-kodama/fmrepl/internal/flamapy"
	"github.com/shinji-kodama/fmrepl/internal/flamapy/flamapytest"
)

func newFake() *flamapytest.Analyzer {
	configs := map[string]flamapy.Result{
		"a.xml": flamapy.Some("True"),
		"b.xml": flamapy.Some("False"),
		"c.xml": flamapy.Some("True"),
		"d.xml": flamapy.Some("True"),
	}
	return flamapytest.New().
		Add("serde.uvl", &flamapytest.Model{
			Estimated:      flamapy.Some("96"),
			Exact:          flamapy.Some("64"),
			Configurations: configs,
		}).
		Add("broken.uvl", &flamapytest.Model{
			Estimated: flamapy.Some("10"),
			Errors: map[flamapy.Operation]error{
				flamapy.OpConfigurationsNumber: &flamapy.Failure{
					Operation: flamapy.OpConfigurationsNumber,
					ModelPath: "broken.uvl",
					Detail:    "Unsupported constraint",
				},
			},
		}).
		Add("garbled.uvl", &flamapytest.Model{
			Estimated: flamapy.Some("3"),
			Exact:     flamapy.Some("n/a"),
		}).
		Add("silent.uvl", &flamapytest.Model{})
}

// countingDialer connects in-process sessions to fake and counts them.
func countingDialer(fake flamapy.Analyzer, dials *int) Dialer {
	return func(ctx context.Context) (Session, error) {
		*dials++
		return client.Connect(ctx, fake), nil
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestCollect(t *testing.T) {
	ctx := testContext(t)
	dials := 0

	got, err := Collect(ctx, countingDialer(newFake(), &dials),
		[]string{"serde.uvl", "broken.uvl", "missing.uvl", "garbled.uvl", "serde.uvl"})

	require.NoError(t, err)
	require.Len(t, got, 5)

	assert.Equal(t, ModelStats{Model: "serde.uvl", Estimated: big.NewInt(96), Exact: big.NewInt(64)}, got[0])

	assert.Equal(t, big.NewInt(10), got[1].Estimated, "values before the failure are kept")
	assert.Nil(t, got[1].Exact)
	assert.Contains(t, got[1].Err, "Unsupported constraint")

	assert.Nil(t, got[2].Estimated)
	assert.Contains(t, got[2].Err, "File not found: missing.uvl")

	assert.Equal(t, big.NewInt(3), got[3].Estimated)
	assert.Contains(t, got[3].Err, `"n/a"`)

	assert.Equal(t, big.NewInt(64), got[4].Exact)
	assert.Empty(t, got[4].Err)

	assert.Equal(t, 3, dials, "a new session after each server failure, none after a parse error")
}

func TestCollect_WithConfigurations(t *testing.T) {
	ctx := testContext(t)
	dials := 0

	got, err := Collect(ctx, countingDialer(newFake(), &dials), []string{"serde.uvl"},
		WithConfigurations([]string{"a.xml", "b.xml", "c.xml", "d.xml"}))

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 4, got[0].Checked)
	assert.Equal(t, 3, got[0].Satisfied)
	q, ok := got[0].Quality()
	assert.True(t, ok)
	assert.InDelta(t, 0.75, q, 1e-9)
}

func TestCollect_Timeout(t *testing.T) {
	ctx := testContext(t)
	dials := 0

	got, err := Collect(ctx, countingDialer(newFake(), &dials), []string{"silent.uvl", "serde.uvl"},
		WithTimeout(100*time.Millisecond))

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Contains(t, got[0].Err, context.DeadlineExceeded.Error())
	assert.Empty(t, got[1].Err)
	assert.Equal(t, 2, dials, "a timed-out session is replaced")
}

func TestCollect_TimeoutKillsSlowServer(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	ctx := testContext(t)
	dial := func(ctx context.Context) (Session, error) {
		// Accepts set_model and the first query, then stalls.
		return client.Start(ctx, []string{"sh", "-c", "read a; read b; sleep 3; echo 1"})
	}

	start := time.Now()
	got, err := Collect(ctx, dial, []string{"a.uvl"}, WithTimeout(200*time.Millisecond))
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Err, context.DeadlineExceeded.Error())
	assert.Less(t, elapsed, time.Second, "the timeout bounds the model, not the server")
}

func TestCollect_DialError(t *testing.T) {
	errDial := errors.New("no server")

	got, err := Collect(context.Background(), func(context.Context) (Session, error) {
		return nil, errDial
	}, []string{"serde.uvl"})

	require.ErrorIs(t, err, errDial)
	assert.Empty(t, got)
}

func TestCollect_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fake := &scriptedSession{onSetModel: cancel}

	got, err := Collect(ctx, func(context.Context) (Session, error) { return fake, nil },
		[]string{"a.uvl", "b.uvl"})

	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, got)
	assert.True(t, fake.killed, "a cancelled session is killed, not waited for")
	assert.False(t, fake.closed)
}

// scriptedSession is a Session whose SetModel runs a hook and fails with
// the context error.
type scriptedSession struct {
	onSetModel func()
	closed     bool
	killed     bool
}

func (s *scriptedSession) SetModel(ctx context.Context, _ string) error {
	s.onSetModel()
	return ctx.Err()
}

func (s *scriptedSession) EstimatedNumberOfConfigurations(context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (s *scriptedSession) ConfigurationsNumber(context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (s *scriptedSession) SatisfiableConfiguration(context.Context, string) (bool, error) {
	return true, nil
}

func (s *scriptedSession) Close() error {
	s.closed = true
	return nil
}

func (s *scriptedSession) Kill() error {
	s.killed = true
	return nil
}
