package simulate

import (
	"errors"
	"math"

	"xrr-analyzer/internal/layer"
)

var errNotSimulatable = errors.New("stack has no film or reference layer")

// Kiessig is a closed-form stand-in for a real reflectivity model: the
// substrate's Fresnel decay, damped by roughness, carrying fringes whose
// period is set by the film thickness. It is good enough for demos and
// smoke tests, not for analysis.
type Kiessig struct{}

// Simulate implements Simulator. The curve is normalized so that total
// reflection is 1.
func (Kiessig) Simulate(q []float64, s layer.Stack) ([]float64, error) {
	if !s.Simulatable() {
		return nil, errNotSimulatable
	}
	film := s.At(s.Index(layer.RoleTunable))
	ref := s.At(s.Index(layer.RoleReference))
	sub := film
	if i := s.Index(layer.RoleSubstrate); i >= 0 {
		sub = s.At(i)
	}

	t := film.Thickness.Or(0) + ref.Thickness.Or(0)
	filmSLD, refSLD := film.SLD.Or(0), ref.SLD.Or(0)
	qc := criticalQ(math.Max(sub.SLD.Or(0), filmSLD))
	contrast := 0.0
	if sum := math.Abs(filmSLD) + math.Abs(refSLD); sum > 0 {
		contrast = math.Abs(filmSLD-refSLD) / sum
	}
	sigSub, sigFilm := sub.Roughness.Or(0), film.Roughness.Or(0)

	out := make([]float64, len(q))
	for i, x := range q {
		if x <= qc {
			out[i] = 1
			continue
		}
		kz := math.Sqrt(x*x - qc*qc)
		r := (x - kz) / (x + kz)
		fresnel := r * r
		fringe := 1 + contrast*math.Exp(-x*x*sigFilm*sigFilm)*math.Cos(x*t)
		out[i] = math.Min(1, fresnel*math.Exp(-x*x*sigSub*sigSub)*fringe)
	}
	return out, nil
}

// criticalQ converts an SLD in 10⁻⁶ Å⁻² to the critical momentum transfer.
func criticalQ(sld float64) float64 {
	if sld <= 0 {
		return 0
	}
	return 4 * math.Sqrt(math.Pi*sld*1e-6)
}
