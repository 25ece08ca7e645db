package fit

import (
	"time"

	"xrr-analyzer/internal/layer"
	"xrr-analyzer/internal/solver"
)

// Result is the outcome of one fit. On failure Stack is the caller's initial
// stack and Err says why.
type Result struct {
	Stack   layer.Stack
	Initial layer.Stack
	Success bool
	Err     error

	Wavelength float64
	Scale      float64

	Cost        float64
	InitialCost float64
	// RMS is the root mean square of the final log10 residuals.
	RMS    float64
	Status solver.Status

	Iterations         int
	Evaluations        int
	SimulationFailures int
	Duration           time.Duration
}

// Refined returns the fitted stack and true, or the initial stack and false.
func (r Result) Refined() (layer.Stack, bool) {
	if !r.Success {
		return r.Initial, false
	}
	return r.Stack, true
}

// Fallback returns the stack a caller should show after a failed fit.
func (r Result) Fallback() layer.Stack { return r.Initial }

// Improvement is the relative cost reduction, 0 when nothing was gained.
func (r Result) Improvement() float64 {
	if r.InitialCost <= 0 || r.Cost >= r.InitialCost {
		return 0
	}
	return 1 - r.Cost/r.InitialCost
}
