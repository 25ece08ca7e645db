package plot

import (
	"image/color"

	"xrr-analyzer/internal/curve"
	"xrr-analyzer/internal/fourier"
	"xrr-analyzer/pkg/colorutil"
)

// MaxFourierDepth is the depth shown on the Fourier panel, in Å.
const MaxFourierDepth = 300.0

// Curves groups what a reflectivity figure can show. Predicted and Fitted
// are optional and skipped when empty.
type Curves struct {
	Measured  curve.Curve
	Predicted []float64
	Fitted    []float64
}

// ReflectivityPanel compares the measured curve with the predicted and
// fitted simulations on a log scale.
func ReflectivityPanel(c Curves) Panel {
	p := Panel{
		Title:  "Reflectivity",
		XLabel: "q (1/Å)",
		YLabel: "R",
		LogY:   true,
		Series: []Series{{
			Name:  "measured",
			X:     c.Measured.Q,
			Y:     c.Measured.Intensity,
			Color: colorutil.Measured,
			Style: Markers,
		}},
	}
	p.Series = appendModel(p.Series, "predicted", c.Measured.Q, c.Predicted, colorutil.Predicted)
	p.Series = appendModel(p.Series, "fitted", c.Measured.Q, c.Fitted, colorutil.Fitted)
	return p
}

func appendModel(series []Series, name string, q, y []float64, c color.RGBA) []Series {
	if len(y) == 0 {
		return series
	}
	n := min(len(q), len(y))
	return append(series, Series{Name: name, X: q[:n], Y: y[:n], Color: c, Style: Line, Width: 2})
}

// ResidualPanel shows log10(measured) - log10(model) against q.
func ResidualPanel(q, residuals []float64) Panel {
	n := min(len(q), len(residuals))
	return Panel{
		Title:    "Residuals",
		XLabel:   "q (1/Å)",
		YLabel:   "Δlog R",
		ZeroLine: true,
		Series: []Series{{
			X:     q[:n],
			Y:     residuals[:n],
			Color: colorutil.Residual,
			Style: Line,
		}},
	}
}

// FourierPanel shows the amplitude spectrum up to MaxFourierDepth.
func FourierPanel(s fourier.Spectrum) Panel {
	w := s.Window(MaxFourierDepth)
	return Panel{
		Title:  "Fourier transform",
		XLabel: "depth (Å)",
		YLabel: "|F|",
		XMin:   0,
		XMax:   MaxFourierDepth,
		Series: []Series{{
			Name:  "spectrum",
			X:     w.Depth,
			Y:     w.Amplitude,
			Color: colorutil.Spectrum,
			Style: Area,
			Width: 2,
		}},
	}
}
