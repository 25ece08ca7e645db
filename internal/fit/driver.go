// Package fit refines a layer stack against a measured reflectivity curve.
package fit

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"xrr-analyzer/internal/layer"
	"xrr-analyzer/internal/metrics"
	"xrr-analyzer/internal/params"
	"xrr-analyzer/internal/simulate"
	"xrr-analyzer/internal/solver"
)

var (
	// ErrEmptyInput means the curve or the stack had nothing in it.
	ErrEmptyInput = errors.New("empty input")
	// ErrInvalidStack means the initial stack failed validation.
	ErrInvalidStack = errors.New("invalid layer stack")
	// ErrLengthMismatch means q and intensity have different lengths.
	ErrLengthMismatch = errors.New("q and intensity lengths differ")
	// ErrSimulatorFailed means no forward simulation of the fit succeeded.
	ErrSimulatorFailed = errors.New("every forward simulation failed")
)

// Options configures a Fitter.
type Options struct {
	Bounds  params.Bounds
	Solver  solver.Settings
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// DefaultOptions returns the stock bounds and a loose solver tolerance.
func DefaultOptions() Options {
	return Options{
		Bounds: params.DefaultBounds(),
		Solver: solver.DefaultSettings(),
		Logger: zerolog.Nop(),
	}
}

// WithBounds returns a copy with different bounds.
func (o Options) WithBounds(b params.Bounds) Options {
	o.Bounds = b
	return o
}

// WithSolver returns a copy with different solver settings.
func (o Options) WithSolver(s solver.Settings) Options {
	o.Solver = s
	return o
}

// Fitter runs fits against one forward model. A Fitter holds no per-fit
// state and may be shared between goroutines if its simulator can.
type Fitter struct {
	sim  simulate.Simulator
	opts Options
	log  zerolog.Logger
}

// New creates a Fitter.
func New(sim simulate.Simulator, opts Options) *Fitter {
	return &Fitter{
		sim:  sim,
		opts: opts,
		log:  opts.Logger.With().Str("component", "fit").Logger(),
	}
}

// Fit refines initial against the measured curve. It never returns an error
// directly: failures come back as an unsuccessful Result that carries the
// initial stack.
func (f *Fitter) Fit(initial layer.Stack, q, intensity []float64, wavelength float64) Result {
	start := time.Now()
	res := Result{
		Stack:      initial,
		Initial:    initial,
		Wavelength: wavelength,
	}

	if err := f.run(&res, initial, q, intensity); err != nil {
		res.Stack = initial
		res.Success = false
		res.Err = err
	}
	res.Duration = time.Since(start)
	f.opts.Metrics.ObserveFit(res.Success, res.Iterations, res.Duration)

	ev := f.log.Info()
	if !res.Success {
		ev = f.log.Warn().Err(res.Err)
	}
	ev.Bool("success", res.Success).
		Str("status", res.Status.String()).
		Int("iterations", res.Iterations).
		Int("evaluations", res.Evaluations).
		Int("sim_failures", res.SimulationFailures).
		Float64("cost", res.Cost).
		Dur("duration", res.Duration).
		Msg("fit finished")
	return res
}

func (f *Fitter) run(res *Result, initial layer.Stack, q, intensity []float64) error {
	switch {
	case len(q) == 0 || len(intensity) == 0:
		return ErrEmptyInput
	case initial.IsEmpty():
		return fmt.Errorf("%w: %w", ErrEmptyInput, layer.ErrEmptyStack)
	case len(q) != len(intensity):
		return fmt.Errorf("%w: %d q values, %d intensities", ErrLengthMismatch, len(q), len(intensity))
	}
	if err := initial.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidStack, err)
	}
	if err := f.opts.Bounds.Validate(); err != nil {
		return fmt.Errorf("%w: %w", solver.ErrInvalidBounds, err)
	}

	vec := params.Flatten(initial, f.opts.Bounds)
	ev := NewEvaluator(initial, vec.Mapping, q, intensity, f.sim).WithLogger(f.log)
	res.Scale = ev.Scale()

	settings := f.opts.Solver
	user := settings.Observer
	settings.Observer = func(it solver.Iteration) {
		f.log.Debug().Int("iteration", it.N).Float64("cost", it.Cost).Float64("lambda", it.Lambda).Msg("step accepted")
		if user != nil {
			user(it)
		}
	}

	f.log.Debug().
		Int("layers", initial.Len()).
		Int("parameters", len(vec.X)).
		Int("points", len(q)).
		Float64("scale", res.Scale).
		Msg("fit started")

	problem := solver.Problem{
		Residuals: ev.Residuals,
		Lower:     vec.Lower,
		Upper:     vec.Upper,
	}
	sr, err := solver.Solve(problem, vec.X, settings)
	// Failures before the first successful simulation are padded to the
	// measured length. Once the model's own curve length is known the
	// residual length is stable, so start over from x0 once.
	if errors.Is(err, solver.ErrResidualLength) && ev.Failures() > 0 && ev.CurveLength() > 0 {
		f.log.Debug().
			Int("curve_length", ev.CurveLength()).
			Int("evaluations", ev.Calls()).
			Msg("simulated curve length settled, restarting solver")
		sr, err = solver.Solve(problem, vec.X, settings)
	}
	res.SimulationFailures = ev.Failures()
	res.Evaluations = ev.Calls()
	if sr != nil {
		res.Cost = sr.Cost
		res.InitialCost = sr.InitialCost
		res.Status = sr.Status
		res.Iterations = sr.Iterations
		res.RMS = rms(sr.Residuals)
	}
	if err != nil {
		return fmt.Errorf("solver: %w", err)
	}
	if ev.Simulations() > 0 && ev.Failures() == ev.Simulations() {
		return fmt.Errorf("%w: %d calls: %w", ErrSimulatorFailed, ev.Failures(), ev.LastError())
	}

	refined, err := params.Unflatten(initial, sr.X, vec.Mapping)
	if err != nil {
		return err
	}
	res.Stack = refined
	res.Success = true
	return nil
}

func rms(r []float64) float64 {
	if len(r) == 0 {
		return 0
	}
	return floats.Norm(r, 2) / math.Sqrt(float64(len(r)))
}
