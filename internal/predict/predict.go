// Package predict produces an initial layer stack for a measured curve.
package predict

import (
	"context"
	"errors"
	"fmt"
	"math"

	"xrr-analyzer/internal/extproc"
	"xrr-analyzer/internal/fourier"
	"xrr-analyzer/internal/layer"
)

// ErrNoPeak means the curve shows no thickness fringe in the search window.
var ErrNoPeak = errors.New("no fringe peak in depth window")

// noiseFloor is the relative amplitude below which a peak is rounding noise.
const noiseFloor = 1e-9

// Predictor guesses a starting stack from a measurement.
type Predictor interface {
	Predict(q, intensity []float64, wavelength float64) (layer.Stack, error)
}

// Heuristic fills the film thickness of a template from the dominant Fourier
// peak of the curve. Other values come from the template unchanged.
type Heuristic struct {
	Template layer.Stack
	MinDepth float64
	MaxDepth float64
}

// NewHeuristic returns a Heuristic over the default template, searching
// depths between 20 and 1000 Å.
func NewHeuristic() *Heuristic {
	return &Heuristic{Template: layer.Default(), MinDepth: 20, MaxDepth: 1000}
}

// Predict implements Predictor.
func (h *Heuristic) Predict(q, intensity []float64, _ float64) (layer.Stack, error) {
	film := h.Template.Index(layer.RoleTunable)
	if film < 0 {
		return h.Template, fmt.Errorf("template has no film layer")
	}
	spectrum := fourier.Estimate(q, intensity)
	peak, ok := spectrum.Peak(h.MinDepth, h.MaxDepth)
	if !ok || peak.Amplitude <= noiseFloor*math.Abs(spectrum.Mean)*float64(len(q)) {
		return h.Template, ErrNoPeak
	}

	// The fringe period reflects everything above the substrate.
	thickness := peak.Depth
	for i := 0; i < h.Template.Len(); i++ {
		if l := h.Template.At(i); i != film && !l.IsSubstrate() {
			thickness -= l.Thickness.Or(0)
		}
	}
	if thickness <= 0 {
		thickness = peak.Depth
	}
	return h.Template.Replace(film, h.Template.At(film).With(layer.FieldThickness, layer.Num(thickness)))
}

// Request is sent to an external predictor.
type Request struct {
	Q          []float64 `json:"q"`
	Intensity  []float64 `json:"intensity"`
	Wavelength float64   `json:"wavelength"`
}

// Response is what an external predictor writes back.
type Response struct {
	Layers layer.Stack `json:"layers"`
	Error  string      `json:"error,omitempty"`
}

// Exec asks an external process, typically a trained model, for the stack.
type Exec struct {
	Command extproc.Command
}

// Predict implements Predictor.
func (e *Exec) Predict(q, intensity []float64, wavelength float64) (layer.Stack, error) {
	var resp Response
	req := Request{Q: q, Intensity: intensity, Wavelength: wavelength}
	if err := e.Command.Call(context.Background(), req, &resp); err != nil {
		return layer.Stack{}, fmt.Errorf("predictor: %w", err)
	}
	if resp.Error != "" {
		return layer.Stack{}, fmt.Errorf("predictor: %s", resp.Error)
	}
	if err := resp.Layers.Validate(); err != nil {
		return layer.Stack{}, fmt.Errorf("predictor returned an invalid stack: %w", err)
	}
	return resp.Layers, nil
}
