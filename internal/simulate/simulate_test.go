package simulate

import (
	"errors"
	"os/exec"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xrr-analyzer/internal/extproc"
	"xrr-analyzer/internal/layer"
	"xrr-analyzer/internal/metrics"
)

var q = []float64{0.01, 0.02, 0.03}

func TestRun(t *testing.T) {
	good := Func(func(q []float64, _ layer.Stack) ([]float64, error) { return []float64{1, 0.5, 0.25}, nil })
	out := Run(good, q, layer.Default())
	require.True(t, out.OK())
	assert.Equal(t, []float64{1, 0.5, 0.25}, out.Curve)

	boom := errors.New("boom")
	failing := Func(func([]float64, layer.Stack) ([]float64, error) { return nil, boom })
	out = Run(failing, q, layer.Default())
	assert.False(t, out.OK())
	assert.ErrorIs(t, out.Err, boom)

	empty := Func(func([]float64, layer.Stack) ([]float64, error) { return nil, nil })
	assert.ErrorIs(t, Run(empty, q, layer.Default()).Err, ErrShortCurve)

	panicky := Func(func([]float64, layer.Stack) ([]float64, error) { panic("index out of range") })
	out = Run(panicky, q, layer.Default())
	require.Error(t, out.Err)
	assert.Contains(t, out.Err.Error(), "index out of range")
}

func TestCached(t *testing.T) {
	calls := 0
	inner := Func(func(q []float64, s layer.Stack) ([]float64, error) {
		calls++
		return []float64{s.At(0).Thickness.Num, 1, 2}, nil
	})
	m := metrics.New(prometheus.NewRegistry())
	c, err := NewCached(inner, 8, m)
	require.NoError(t, err)

	s := layer.Default()
	first, err := c.Simulate(q, s)
	require.NoError(t, err)
	first[0] = -1 // callers may scribble on the returned curve

	second, err := c.Simulate(q, s)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 100.0, second[0])

	edited, err := s.Replace(0, s.At(0).With(layer.FieldThickness, layer.Num(50)))
	require.NoError(t, err)
	third, err := c.Simulate(q, edited)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 50.0, third[0])

	_, err = c.Simulate([]float64{0.5, 0.6, 0.7}, s)
	require.NoError(t, err)
	assert.Equal(t, 3, calls, "different q must miss")
	assert.Equal(t, 3, c.Len())
}

func TestCachedSkipsFailures(t *testing.T) {
	calls := 0
	inner := Func(func([]float64, layer.Stack) ([]float64, error) {
		calls++
		return nil, errors.New("diverged")
	})
	c, err := NewCached(inner, 4, nil)
	require.NoError(t, err)
	_, err = c.Simulate(q, layer.Default())
	assert.Error(t, err)
	_, err = c.Simulate(q, layer.Default())
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, c.Len())

	_, err = NewCached(inner, 0, nil)
	assert.Error(t, err)
}

func TestInstrumentedPassesThrough(t *testing.T) {
	inner := Func(func([]float64, layer.Stack) ([]float64, error) { return []float64{1}, nil })
	s := NewInstrumented(inner, metrics.New(nil))
	curve, err := s.Simulate(q, layer.Default())
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, curve)
}

func TestExec(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	ok := NewExec(extproc.Command{Path: "sh", Args: []string{"-c", `cat >/dev/null; echo '{"intensity":[1,0.1,0.01]}'`}})
	curve, err := ok.Simulate(q, layer.Default())
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0.1, 0.01}, curve)

	reported := NewExec(extproc.Command{Path: "sh", Args: []string{"-c", `cat >/dev/null; echo '{"error":"no film"}'`}})
	_, err = reported.Simulate(q, layer.Default())
	var modelErr *ModelError
	require.ErrorAs(t, err, &modelErr)
	assert.Equal(t, "no film", modelErr.Message)
}

func TestKiessig(t *testing.T) {
	q := []float64{0.005, 0.05, 0.1, 0.2, 0.3}
	curve, err := Kiessig{}.Simulate(q, layer.Default())
	require.NoError(t, err)
	require.Len(t, curve, len(q))
	assert.Equal(t, 1.0, curve[0], "below the critical edge")
	for i := 1; i < len(curve); i++ {
		assert.Positive(t, curve[i])
		assert.Less(t, curve[i], 1.0)
	}
	assert.Less(t, curve[4], curve[1])

	_, err = Kiessig{}.Simulate(q, layer.NewStack(layer.Substrate("Si Substrate", 2.33, 0.2)))
	assert.Error(t, err)
}
