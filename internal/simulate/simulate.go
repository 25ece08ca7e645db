// Package simulate is the boundary to the external forward reflectivity
// model. The model itself lives outside this module; this package adapts it,
// caches it and turns its failures into values.
package simulate

import (
	"errors"
	"fmt"

	"xrr-analyzer/internal/layer"
)

// ErrShortCurve is reported when a model returns no samples.
var ErrShortCurve = errors.New("simulator returned an empty curve")

// Simulator computes a reflectivity curve for a stack at the given q values.
// The curve is normalized to the model's own reference scale (peak near 1).
type Simulator interface {
	Simulate(q []float64, s layer.Stack) ([]float64, error)
}

// Func adapts a plain function to Simulator.
type Func func(q []float64, s layer.Stack) ([]float64, error)

// Simulate implements Simulator.
func (f Func) Simulate(q []float64, s layer.Stack) ([]float64, error) { return f(q, s) }

// Outcome is the result of one simulator call: either a curve or the reason
// there is none.
type Outcome struct {
	Curve []float64
	Err   error
}

// OK reports whether the call produced a curve.
func (o Outcome) OK() bool { return o.Err == nil }

// Run calls sim and folds errors, empty curves and panics into the Outcome.
func Run(sim Simulator, q []float64, s layer.Stack) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Err: fmt.Errorf("simulator panic: %v", r)}
		}
	}()
	curve, err := sim.Simulate(q, s)
	if err != nil {
		return Outcome{Err: err}
	}
	if len(curve) == 0 {
		return Outcome{Err: ErrShortCurve}
	}
	return Outcome{Curve: curve}
}
