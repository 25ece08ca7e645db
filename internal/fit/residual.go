package fit

import (
	"math"

	"github.com/rs/zerolog"

	"xrr-analyzer/internal/layer"
	"xrr-analyzer/internal/params"
	"xrr-analyzer/internal/simulate"
)

// logFloor keeps log10 finite for zero or vanishing intensities.
const logFloor = 1e-10

// Evaluator computes log-intensity residuals for parameter vectors. It is
// bound to one measurement and one mapping and is not safe for concurrent use.
type Evaluator struct {
	template layer.Stack
	mapping  *params.Mapping
	q        []float64
	measured []float64
	scale    float64
	sim      simulate.Simulator
	log      zerolog.Logger

	calls       int
	simulations int
	failures    int
	lastLen     int
	lastErr     error
}

// NewEvaluator closes over the measurement. The scale factor is taken from
// the measured intensity.
func NewEvaluator(template layer.Stack, m *params.Mapping, q, measured []float64, sim simulate.Simulator) *Evaluator {
	return &Evaluator{
		template: template,
		mapping:  m,
		q:        q,
		measured: measured,
		scale:    ScaleFactor(measured),
		sim:      sim,
		log:      zerolog.Nop(),
	}
}

// WithLogger sets the logger used for simulator failures.
func (e *Evaluator) WithLogger(l zerolog.Logger) *Evaluator {
	e.log = l.Sample(&zerolog.BasicSampler{N: 10})
	return e
}

// Scale returns the scale factor applied to simulated curves.
func (e *Evaluator) Scale() float64 { return e.scale }

// Calls returns how many vectors have been evaluated.
func (e *Evaluator) Calls() int { return e.calls }

// Simulations returns how many times the simulator was called.
func (e *Evaluator) Simulations() int { return e.simulations }

// Failures returns how many simulator calls failed.
func (e *Evaluator) Failures() int { return e.failures }

// LastError returns the most recent simulator error, or nil.
func (e *Evaluator) LastError() error { return e.lastErr }

// CurveLength returns the length of the last successful simulation, or 0
// before the first success. Failed simulations are padded to this length.
func (e *Evaluator) CurveLength() int { return e.lastLen }

// Residuals returns log10(measured) - log10(scale*simulated) for the stack
// described by x. A stack without a tunable film or reference layer yields
// zeros without calling the simulator. A failed simulation is treated as a
// zero curve. x must match the mapping; anything else panics.
func (e *Evaluator) Residuals(x []float64) []float64 {
	e.calls++
	s, err := params.Unflatten(e.template, x, e.mapping)
	if err != nil {
		panic(err)
	}
	if !s.Simulatable() {
		return make([]float64, len(e.measured))
	}

	e.simulations++
	out := simulate.Run(e.sim, e.q, s)
	simulated := out.Curve
	if !out.OK() {
		e.failures++
		e.lastErr = out.Err
		e.log.Debug().Err(out.Err).Int("failures", e.failures).Msg("simulation failed")
		n := e.lastLen
		if n == 0 {
			n = len(e.measured)
		}
		simulated = make([]float64, n)
	} else {
		e.lastLen = len(simulated)
	}
	return LogResiduals(e.measured, simulated, e.scale)
}

// LogResiduals compares two curves on a log scale over their common prefix.
func LogResiduals(measured, simulated []float64, scale float64) []float64 {
	n := min(len(measured), len(simulated))
	r := make([]float64, n)
	for i := range r {
		m := math.Log10(math.Abs(measured[i]) + logFloor)
		s := math.Log10(math.Abs(scale*simulated[i]) + logFloor)
		r[i] = m - s
	}
	return r
}

// Model simulates s and scales the curve onto the measurement. It is used to
// draw fitted and predicted curves next to the data.
func Model(sim simulate.Simulator, s layer.Stack, q []float64, scale float64) ([]float64, error) {
	out := simulate.Run(sim, q, s)
	if !out.OK() {
		return nil, out.Err
	}
	curve := make([]float64, len(out.Curve))
	for i, v := range out.Curve {
		curve[i] = scale * v
	}
	return curve, nil
}
