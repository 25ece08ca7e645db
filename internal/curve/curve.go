// Package curve reads measured reflectivity curves.
package curve

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrTooShort means the curve has fewer than two points.
	ErrTooShort = errors.New("curve needs at least two points")
	// ErrNotIncreasing means q is not strictly increasing.
	ErrNotIncreasing = errors.New("q must be strictly increasing")
)

// Curve is a measured reflectivity curve: intensity against momentum
// transfer q in Å⁻¹.
type Curve struct {
	Q         []float64 `json:"q"`
	Intensity []float64 `json:"intensity"`
}

// Len returns the number of points.
func (c Curve) Len() int { return len(c.Q) }

// Validate checks that the curve can be fitted and transformed.
func (c Curve) Validate() error {
	if len(c.Q) != len(c.Intensity) {
		return fmt.Errorf("curve has %d q values and %d intensities", len(c.Q), len(c.Intensity))
	}
	if len(c.Q) < 2 {
		return ErrTooShort
	}
	for i := range c.Q {
		if !finite(c.Q[i]) || !finite(c.Intensity[i]) {
			return fmt.Errorf("point %d is not finite", i)
		}
		if i > 0 && c.Q[i] <= c.Q[i-1] {
			return fmt.Errorf("%w: q[%d]=%g after %g", ErrNotIncreasing, i, c.Q[i], c.Q[i-1])
		}
	}
	return nil
}

// Range returns the smallest and largest q.
func (c Curve) Range() (float64, float64) {
	if len(c.Q) == 0 {
		return 0, 0
	}
	return floats.Min(c.Q), floats.Max(c.Q)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Synthetic returns the demo curve: a q⁻⁴ Fresnel decay with fringes of a
// 100 Å film and a little Gaussian noise. A zero noise level gives an exact
// curve.
func Synthetic(n int, noise float64, seed uint64) Curve {
	q := floats.Span(make([]float64, n), 0.01, 0.5)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	intensity := make([]float64, n)
	for i, x := range q {
		v := math.Pow(x, -4) * math.Exp(-0.02*x) * (1 + 0.5*math.Sin(100*x))
		if noise > 0 {
			v += rng.NormFloat64() * noise
		}
		intensity[i] = math.Abs(v) + 1e-10
	}
	return Curve{Q: q, Intensity: intensity}
}
