// Package colorutil provides the plot palette and small color helpers.
package colorutil

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Plot palette.
var (
	Black     = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White     = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Measured  = MustHex("#2563eb")
	Fitted    = MustHex("#dc2626")
	Predicted = MustHex("#f59e0b")
	Spectrum  = MustHex("#059669")
	Residual  = MustHex("#64748b")
	Grid      = MustHex("#e2e8f0")
	Axis      = MustHex("#0f172a")
)

// ParseHex parses #rgb or #rrggbb.
func ParseHex(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

// MustHex is ParseHex for constants.
func MustHex(s string) color.RGBA {
	c, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Blend mixes c over base with the given opacity in [0,1].
func Blend(base, c color.RGBA, opacity float64) color.RGBA {
	mix := func(a, b uint8) uint8 {
		return uint8(float64(a)*(1-opacity) + float64(b)*opacity + 0.5)
	}
	return color.RGBA{R: mix(base.R, c.R), G: mix(base.G, c.G), B: mix(base.B, c.B), A: 255}
}
