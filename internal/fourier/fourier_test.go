package fourier

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func kiessig(n int, period float64) (q, intensity []float64) {
	q = floats.Span(make([]float64, n), 0.01, 0.5)
	intensity = make([]float64, n)
	for i, x := range q {
		intensity[i] = math.Pow(x, -4) * (1 + 0.5*math.Sin(period*x))
	}
	return q, intensity
}

func TestEstimateFindsOscillationDepth(t *testing.T) {
	q, intensity := kiessig(500, 100)
	s := Estimate(q, intensity)
	require.Equal(t, 251, s.Len())
	assert.Zero(t, s.Depth[0])

	p, ok := s.Peak(10, 300)
	require.True(t, ok)
	assert.InEpsilon(t, 100, p.Depth, 0.1)

	peaks := s.Peaks(3, 10)
	require.NotEmpty(t, peaks)
	assert.Equal(t, p, peaks[0])
}

func TestEstimateRemovesMean(t *testing.T) {
	q := floats.Span(make([]float64, 64), 0.01, 0.2)
	intensity := make([]float64, len(q))
	for i, x := range q {
		intensity[i] = 7 / math.Pow(x, 4)
	}
	s := Estimate(q, intensity)
	for _, a := range s.Amplitude {
		assert.InDelta(t, 0, a, 1e-9)
	}
}

func TestEstimateShortInput(t *testing.T) {
	assert.Zero(t, Estimate(nil, nil).Len())

	s := Estimate([]float64{0.1}, []float64{5})
	require.Equal(t, 1, s.Len())
	assert.Zero(t, s.Depth[0])
	assert.Zero(t, s.Amplitude[0])
}

func TestEstimateDepthAxis(t *testing.T) {
	q := []float64{0.1, 0.2, 0.3, 0.4}
	s := Estimate(q, []float64{1, 2, 1, 2})
	require.Equal(t, 3, s.Len())
	// rfftfreq(4, 0.1) = 0, 2.5, 5
	assert.InDeltaSlice(t, []float64{0, 2 * math.Pi * 2.5, 2 * math.Pi * 5}, s.Depth, 1e-9)
}

func TestWindow(t *testing.T) {
	s := Spectrum{
		Depth:     []float64{0, 50, 100, 150, 300, 450},
		Amplitude: []float64{0, 1, 2, 3, 4, 5},
	}
	w := s.Window(300)
	assert.Equal(t, []float64{0, 50, 100, 150, 300}, w.Depth)
	assert.Equal(t, []float64{0, 1, 2, 3, 4}, w.Amplitude)
	assert.Zero(t, s.Window(-1).Len())

	p, ok := s.Peak(0, 300)
	require.True(t, ok)
	assert.Equal(t, Peak{Depth: 300, Amplitude: 4}, p)

	p, ok = s.Peak(0, 0)
	require.True(t, ok)
	assert.Equal(t, 450.0, p.Depth)

	_, ok = s.Peak(1000, 2000)
	assert.False(t, ok)
}

func TestEstimateDescendingQ(t *testing.T) {
	q, intensity := kiessig(500, 100)
	floats.Reverse(q)
	floats.Reverse(intensity)
	s := Estimate(q, intensity)
	require.Equal(t, 251, s.Len())
	for i := 1; i < s.Len(); i++ {
		require.Greater(t, s.Depth[i], s.Depth[i-1])
	}
	p, ok := s.Peak(10, 300)
	require.True(t, ok)
	assert.InEpsilon(t, 100, p.Depth, 0.1)
	assert.NotZero(t, s.Window(300).Len())
}

func TestEstimateRepeatedQ(t *testing.T) {
	s := Estimate([]float64{0.1, 0.1, 0.2}, []float64{1, 2, 3})
	assert.Zero(t, s.Len())
	assert.Zero(t, s.Window(300).Len())
	_, ok := s.Peak(0, 0)
	assert.False(t, ok)
}
