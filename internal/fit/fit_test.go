package fit

import (
	"errors"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"xrr-analyzer/internal/layer"
	"xrr-analyzer/internal/metrics"
	"xrr-analyzer/internal/params"
	"xrr-analyzer/internal/simulate"
	"xrr-analyzer/internal/solver"
)

// toyModel is a smooth stand-in for a reflectivity model. It depends on the
// film thickness and SLD and is normalized to 1 at the first q.
type toyModel struct {
	calls int
}

func (m *toyModel) Simulate(q []float64, s layer.Stack) ([]float64, error) {
	m.calls++
	film := s.At(s.Index(layer.RoleTunable))
	t, sld := film.Thickness.Num, film.SLD.Num
	shape := func(x float64) float64 {
		return math.Exp(-sld*x) / (1 + (x*t/10)*(x*t/10))
	}
	ref := shape(q[0])
	out := make([]float64, len(q))
	for i, x := range q {
		out[i] = shape(x) / ref
	}
	return out, nil
}

func linspace(lo, hi float64, n int) []float64 {
	return floats.Span(make([]float64, n), lo, hi)
}

// pinned returns the default stack with everything but the film thickness
// and SLD fixed.
func pinned(thickness, sld float64) layer.Stack {
	s := layer.Default()
	film := s.At(0).
		With(layer.FieldThickness, layer.Num(thickness)).
		With(layer.FieldSLD, layer.Num(sld)).
		WithFixed(layer.FieldRoughness)
	s, _ = s.Replace(0, film)
	s, _ = s.Replace(1, s.At(1).WithFixed(layer.Fields[:]...))
	s, _ = s.Replace(2, s.At(2).WithFixed(layer.Fields[:]...))
	return s
}

func measure(t *testing.T, sim simulate.Simulator, s layer.Stack, q []float64, peak float64) []float64 {
	t.Helper()
	curve, err := Model(sim, s, q, peak)
	require.NoError(t, err)
	return curve
}

func TestScaleFactor(t *testing.T) {
	assert.Equal(t, 5.0, ScaleFactor([]float64{1, 5, 3}))
	assert.Equal(t, 1.0, ScaleFactor(nil))
	assert.Equal(t, 1.0, ScaleFactor([]float64{}))
	assert.Equal(t, 2e6, ScaleFactor([]float64{2e6}))
}

func TestLogResidualsTruncate(t *testing.T) {
	measured := make([]float64, 500)
	simulated := make([]float64, 480)
	for i := range measured {
		measured[i] = 10
	}
	for i := range simulated {
		simulated[i] = 1
	}
	r := LogResiduals(measured, simulated, 1)
	require.Len(t, r, 480)
	for _, v := range r {
		assert.InDelta(t, 1.0, v, 1e-9)
	}
}

func TestEvaluatorZeroAtTruth(t *testing.T) {
	q := linspace(0.01, 0.5, 200)
	model := &toyModel{}
	truth := pinned(60, 4)
	measured := measure(t, model, truth, q, 1e5)

	vec := params.Flatten(truth, params.DefaultBounds())
	ev := NewEvaluator(truth, vec.Mapping, q, measured, model)
	assert.InDelta(t, 1e5, ev.Scale(), 1e-6)

	r := ev.Residuals(vec.X)
	require.Len(t, r, len(q))
	for _, v := range r {
		assert.InDelta(t, 0, v, 1e-9)
	}
}

func TestEvaluatorDegenerateStack(t *testing.T) {
	s := layer.NewStack(
		layer.New("Cap", layer.Num(5), layer.Num(1), layer.Num(0.2)),
		layer.Substrate("Si Substrate", 2.33, 0.2),
	)
	model := &toyModel{}
	measured := []float64{1, 2, 3, 4}
	vec := params.Flatten(s, params.DefaultBounds())
	ev := NewEvaluator(s, vec.Mapping, []float64{0.1, 0.2, 0.3, 0.4}, measured, model)

	r := ev.Residuals(vec.X)
	assert.Equal(t, []float64{0, 0, 0, 0}, r)
	assert.Zero(t, model.calls)
}

func TestEvaluatorSimulatorFailure(t *testing.T) {
	q := []float64{0.1, 0.2, 0.3}
	measured := []float64{100, 10, 1}
	broken := simulate.Func(func([]float64, layer.Stack) ([]float64, error) {
		return nil, errors.New("model diverged")
	})
	s := layer.Default()
	vec := params.Flatten(s, params.DefaultBounds())
	ev := NewEvaluator(s, vec.Mapping, q, measured, broken)

	r := ev.Residuals(vec.X)
	require.Len(t, r, 3)
	for i, v := range r {
		assert.False(t, math.IsInf(v, 0) || math.IsNaN(v))
		assert.InDelta(t, math.Log10(measured[i]+logFloor)+10, v, 1e-9)
	}
	assert.Equal(t, 1, ev.Failures())
	assert.Equal(t, 1, ev.Simulations())
	assert.EqualError(t, ev.LastError(), "model diverged")
	assert.Zero(t, ev.CurveLength())
}

func TestEvaluatorPanicsOnMappingMismatch(t *testing.T) {
	s := layer.Default()
	vec := params.Flatten(s, params.DefaultBounds())
	ev := NewEvaluator(s, vec.Mapping, []float64{0.1}, []float64{1}, &toyModel{})
	assert.Panics(t, func() { ev.Residuals(vec.X[:2]) })
}

func TestFitRecoversThickness(t *testing.T) {
	q := linspace(0.01, 0.5, 300)
	model := &toyModel{}
	measured := measure(t, model, pinned(60, 4), q, 3e5)

	set := solver.DefaultSettings()
	set.FTol = 1e-10
	observed := 0
	set.Observer = func(solver.Iteration) { observed++ }

	reg := prometheus.NewRegistry()
	opts := DefaultOptions().WithSolver(set)
	opts.Metrics = metrics.New(reg)

	res := New(model, opts).Fit(pinned(45, 2.5), q, measured, 1.5406)
	require.True(t, res.Success, "fit failed: %v", res.Err)
	require.NoError(t, res.Err)

	film := res.Stack.At(0)
	assert.InEpsilon(t, 60, film.Thickness.Num, 1e-3)
	assert.InEpsilon(t, 4, film.SLD.Num, 1e-3)
	assert.Equal(t, 0.5, film.Roughness.Num, "fixed fields stay put")
	assert.True(t, res.Stack.At(2).Thickness.IsInfinite())
	assert.Less(t, res.Cost, res.InitialCost)
	assert.Greater(t, res.Improvement(), 0.99)
	assert.Equal(t, 1.5406, res.Wavelength)
	assert.InDelta(t, 3e5, res.Scale, 1e-3)
	assert.Positive(t, observed)
	assert.Equal(t, observed, res.Iterations)

	refined, ok := res.Refined()
	assert.True(t, ok)
	assert.True(t, refined.Equal(res.Stack))
	series, err := testutil.GatherAndCount(reg, "xrr_fits_total")
	require.NoError(t, err)
	assert.Equal(t, 1, series)
}

func TestFitStaysInBounds(t *testing.T) {
	q := linspace(0.01, 0.5, 100)
	model := &toyModel{}
	// The best thickness lies outside the allowed range.
	measured := measure(t, model, pinned(80, 3), q, 1e4)

	b := params.DefaultBounds()
	b.Thickness = params.Range{Min: 0, Max: 50}
	start := pinned(30, 3)
	start, _ = start.Replace(0, start.At(0).WithFixed(layer.FieldSLD))
	res := New(model, DefaultOptions().WithBounds(b)).Fit(start, q, measured, 1.54)
	require.True(t, res.Success, "fit failed: %v", res.Err)

	film := res.Stack.At(0)
	assert.GreaterOrEqual(t, film.Thickness.Num, 0.0)
	assert.LessOrEqual(t, film.Thickness.Num, 50.0)
	assert.Greater(t, film.Thickness.Num, 45.0, "thickness should press against the upper bound")
	assert.Equal(t, 3.0, film.SLD.Num)
}

func TestFitPreconditions(t *testing.T) {
	q := []float64{0.1, 0.2, 0.3}
	intensity := []float64{3, 2, 1}
	badStack := layer.NewStack(layer.New("Film", layer.Num(-5), layer.Num(1), layer.Num(0)), layer.Substrate("Si Substrate", 2.33, 0.2))
	tight := params.DefaultBounds()
	tight.SLD = params.Range{Min: 5, Max: 1}

	tests := []struct {
		name      string
		stack     layer.Stack
		q, i      []float64
		opts      Options
		wantErr   error
		wantCalls bool
	}{
		{"empty q", layer.Default(), nil, intensity, DefaultOptions(), ErrEmptyInput, false},
		{"empty intensity", layer.Default(), q, nil, DefaultOptions(), ErrEmptyInput, false},
		{"empty stack", layer.Stack{}, q, intensity, DefaultOptions(), ErrEmptyInput, false},
		{"length mismatch", layer.Default(), q, intensity[:2], DefaultOptions(), ErrLengthMismatch, false},
		{"invalid stack", badStack, q, intensity, DefaultOptions(), ErrInvalidStack, false},
		{"invalid bounds", layer.Default(), q, intensity, DefaultOptions().WithBounds(tight), solver.ErrInvalidBounds, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &toyModel{}
			res := New(model, tt.opts).Fit(tt.stack, tt.q, tt.i, 1.54)
			assert.False(t, res.Success)
			assert.ErrorIs(t, res.Err, tt.wantErr)
			assert.True(t, res.Stack.Equal(tt.stack), "initial stack must be the fallback")
			assert.True(t, res.Fallback().Equal(tt.stack))
			assert.Zero(t, model.calls)
		})
	}
}

func TestFitInfeasibleStart(t *testing.T) {
	s := layer.Default()
	s, _ = s.Replace(0, s.At(0).With(layer.FieldThickness, layer.Num(9000)))
	res := New(&toyModel{}, DefaultOptions()).Fit(s, []float64{0.1, 0.2}, []float64{2, 1}, 1.54)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, solver.ErrInfeasibleStart)
	assert.True(t, res.Stack.Equal(s))
}

func TestFitNonFiniteResiduals(t *testing.T) {
	res := New(&toyModel{}, DefaultOptions()).Fit(layer.Default(), []float64{0.1, 0.2}, []float64{math.NaN(), 1}, 1.54)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, solver.ErrNonFinite)
}

func TestFitBudgetExhausted(t *testing.T) {
	q := linspace(0.01, 0.5, 50)
	model := &toyModel{}
	measured := measure(t, model, pinned(60, 4), q, 1e3)
	set := solver.DefaultSettings()
	set.MaxEvaluations = 1
	start := pinned(20, 1)

	res := New(model, DefaultOptions().WithSolver(set)).Fit(start, q, measured, 1.54)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, solver.ErrMaxEvaluations)
	assert.True(t, res.Stack.Equal(start))
}

func TestFitDegenerateStackConverges(t *testing.T) {
	s := layer.NewStack(
		layer.New("Cap", layer.Num(5), layer.Num(1), layer.Num(0.2)),
		layer.Substrate("Si Substrate", 2.33, 0.2),
	)
	model := &toyModel{}
	res := New(model, DefaultOptions()).Fit(s, []float64{0.1, 0.2}, []float64{5, 1}, 1.54)
	require.True(t, res.Success)
	assert.Zero(t, res.Cost)
	assert.Equal(t, solver.StatusGTol, res.Status)
	assert.Zero(t, model.calls)
}

func TestFitSeedsPendingValues(t *testing.T) {
	s := layer.Default().Placeholder()
	model := &toyModel{}
	q := linspace(0.01, 0.3, 40)
	// Measured at the seed values, so the fit starts at the optimum.
	measured := measure(t, model, pinned(params.Seeds[layer.FieldThickness], params.Seeds[layer.FieldSLD]), q, 1e3)
	res := New(model, DefaultOptions()).Fit(s, q, measured, 1.54)
	require.NoError(t, res.Err)
	assert.Equal(t, solver.StatusGTol, res.Status)
	assert.Equal(t, 10.0, res.Stack.At(0).Thickness.Num)
	for i := 0; i < res.Stack.Len(); i++ {
		l := res.Stack.At(i)
		assert.True(t, l.SLD.IsKnown(), "layer %d sld", i)
		assert.True(t, l.Roughness.IsKnown(), "layer %d roughness", i)
	}
}

// flaky fails its first call and afterwards returns only the first n points
// of the toy model.
type flaky struct {
	toyModel
	n int
}

func (m *flaky) Simulate(q []float64, s layer.Stack) ([]float64, error) {
	curve, _ := m.toyModel.Simulate(q, s)
	if m.calls == 1 {
		return nil, errors.New("license server busy")
	}
	return curve[:m.n], nil
}

func TestFitEarlyFailureThenShortCurve(t *testing.T) {
	q := linspace(0.01, 0.5, 500)
	measured := measure(t, &toyModel{}, pinned(60, 4), q, 3e5)
	set := solver.DefaultSettings()
	set.FTol = 1e-10

	model := &flaky{n: 480}
	res := New(model, DefaultOptions().WithSolver(set)).Fit(pinned(45, 2.5), q, measured, 1.54)
	require.True(t, res.Success, "fit failed: %v", res.Err)
	assert.Equal(t, 1, res.SimulationFailures)
	assert.Equal(t, model.calls, res.Evaluations)
	assert.InEpsilon(t, 60, res.Stack.At(0).Thickness.Num, 1e-2)
}

func TestFitEverySimulationFails(t *testing.T) {
	broken := simulate.Func(func([]float64, layer.Stack) ([]float64, error) {
		return nil, errors.New("model diverged")
	})
	start := pinned(45, 2.5)
	res := New(broken, DefaultOptions()).Fit(start, linspace(0.01, 0.5, 50), linspace(10, 1, 50), 1.54)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrSimulatorFailed)
	assert.Contains(t, res.Err.Error(), "model diverged")
	assert.Equal(t, res.Evaluations, res.SimulationFailures)
	assert.True(t, res.Stack.Equal(start))
}
