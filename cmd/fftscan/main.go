// Command fftscan runs the Fourier thickness estimate on a curve and prints
// the strongest peaks.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"xrr-analyzer/internal/curve"
	"xrr-analyzer/internal/fourier"
)

func main() {
	curvePath := pflag.String("curve", "", "Path to curve (CSV, whitespace separated or .xlsx)")
	demo := pflag.Bool("demo", false, "Use the synthetic 100 Å demo curve")
	n := pflag.Int("n", 10, "Number of peaks to print")
	minDepth := pflag.Float64("min-depth", 10, "Ignore peaks below this depth in Å")
	maxDepth := pflag.Float64("max-depth", 300, "Spectrum window in Å")
	pflag.Parse()

	var c curve.Curve
	switch {
	case *demo:
		c = curve.Synthetic(500, 0, 1)
		fmt.Println("Using synthetic demo curve")
	case *curvePath != "":
		var err error
		c, err = curve.ReadFile(*curvePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read curve: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Println("Usage: fftscan -curve <path> | -demo [-n 10] [-min-depth 10] [-max-depth 300]")
		os.Exit(1)
	}

	qmin, qmax := c.Range()
	fmt.Printf("Loaded curve: %d points, q %.4f - %.4f 1/Å\n", c.Len(), qmin, qmax)

	spectrum := fourier.Estimate(c.Q, c.Intensity)
	window := spectrum.Window(*maxDepth)
	fmt.Printf("Spectrum: %d bins, %d within %.0f Å, bin width %.2f Å\n",
		spectrum.Len(), window.Len(), *maxDepth, binWidth(spectrum))

	peaks := window.Peaks(*n, *minDepth)
	fmt.Printf("\n%-4s %12s %14s\n", "#", "Depth (Å)", "Amplitude")
	fmt.Println(strings.Repeat("-", 32))
	for i, p := range peaks {
		fmt.Printf("%-4d %12.1f %14.4g\n", i+1, p.Depth, p.Amplitude)
	}

	if best, ok := spectrum.Peak(*minDepth, *maxDepth); ok {
		fmt.Printf("\nDominant thickness: %.1f Å\n", best.Depth)
	} else {
		fmt.Println("\nNo peak in window")
	}
}

func binWidth(s fourier.Spectrum) float64 {
	if s.Len() < 2 {
		return 0
	}
	return s.Depth[1] - s.Depth[0]
}
