package fit

import "gonum.org/v1/gonum/floats"

// ScaleFactor returns the peak measured intensity, which maps a simulated
// curve normalized to 1 onto the detector's counts. An empty curve gives 1.
func ScaleFactor(intensity []float64) float64 {
	if len(intensity) == 0 {
		return 1.0
	}
	return floats.Max(intensity)
}
