// Package fourier estimates film thickness from the oscillation period of a
// reflectivity curve.
package fourier

import (
	"math"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// DefaultStep is the q spacing assumed when a curve has fewer than two points.
const DefaultStep = 0.01

// Spectrum is the one-sided amplitude spectrum of I·q⁴, indexed by depth.
type Spectrum struct {
	Depth     []float64 `json:"depth"`
	Amplitude []float64 `json:"amplitude"`
	// Mean is the removed average of I·q⁴.
	Mean float64 `json:"mean"`
}

// Peak is one spectral maximum.
type Peak struct {
	Depth     float64 `json:"depth"`
	Amplitude float64 `json:"amplitude"`
}

// Estimate multiplies the intensity by q⁴ to flatten the Fresnel decay,
// removes the mean and takes the real FFT. Frequencies are converted to depth
// by 2π. The q spacing is taken from the first two points; equal first
// points give an empty spectrum.
func Estimate(q, intensity []float64) Spectrum {
	n := min(len(q), len(intensity))
	if n == 0 {
		return Spectrum{}
	}

	r := make([]float64, n)
	for i := range r {
		q2 := q[i] * q[i]
		r[i] = intensity[i] * q2 * q2
	}
	mean := stat.Mean(r, nil)
	for i := range r {
		r[i] -= mean
	}

	dq := DefaultStep
	if n > 1 {
		// A descending axis has the same magnitude spectrum.
		dq = math.Abs(q[1] - q[0])
	}
	if !(dq > 0) || math.IsInf(dq, 0) {
		return Spectrum{Mean: mean}
	}

	var coeffs []complex128
	if n == 1 {
		coeffs = []complex128{complex(r[0], 0)}
	} else {
		coeffs = fourier.NewFFT(n).Coefficients(nil, r)
	}

	s := Spectrum{
		Depth:     make([]float64, len(coeffs)),
		Amplitude: make([]float64, len(coeffs)),
		Mean:      mean,
	}
	for k, c := range coeffs {
		freq := float64(k) / (float64(n) * dq)
		s.Depth[k] = 2 * math.Pi * freq
		s.Amplitude[k] = cmplx.Abs(c)
	}
	return s
}

// Len returns the number of bins.
func (s Spectrum) Len() int { return len(s.Depth) }

// Peak returns the strongest bin with minDepth <= depth <= maxDepth. A
// non-positive maxDepth means no upper limit.
func (s Spectrum) Peak(minDepth, maxDepth float64) (Peak, bool) {
	best, found := Peak{}, false
	for i, d := range s.Depth {
		if d < minDepth || (maxDepth > 0 && d > maxDepth) {
			continue
		}
		if !found || s.Amplitude[i] > best.Amplitude {
			best = Peak{Depth: d, Amplitude: s.Amplitude[i]}
			found = true
		}
	}
	return best, found
}

// Peaks returns up to n local maxima with depth >= minDepth, strongest first.
func (s Spectrum) Peaks(n int, minDepth float64) []Peak {
	var peaks []Peak
	for i := 1; i < len(s.Amplitude)-1; i++ {
		if s.Depth[i] < minDepth {
			continue
		}
		a := s.Amplitude[i]
		if a >= s.Amplitude[i-1] && a > s.Amplitude[i+1] {
			peaks = append(peaks, Peak{Depth: s.Depth[i], Amplitude: a})
		}
	}
	sort.SliceStable(peaks, func(i, j int) bool { return peaks[i].Amplitude > peaks[j].Amplitude })
	if len(peaks) > n {
		peaks = peaks[:n]
	}
	return peaks
}

// Window returns the bins with depth <= maxDepth.
func (s Spectrum) Window(maxDepth float64) Spectrum {
	end := sort.SearchFloat64s(s.Depth, math.Nextafter(maxDepth, math.Inf(1)))
	return Spectrum{
		Depth:     append([]float64(nil), s.Depth[:end]...),
		Amplitude: append([]float64(nil), s.Amplitude[:end]...),
		Mean:      s.Mean,
	}
}
