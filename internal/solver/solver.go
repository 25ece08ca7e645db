// Package solver implements a bounded nonlinear least-squares minimizer: a
// Levenberg–Marquardt trust region whose trial points are projected or
// reflected back into the feasible box, with a forward-difference Jacobian.
package solver

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInvalidBounds means the bound arrays are malformed or lower >= upper.
	ErrInvalidBounds = errors.New("invalid bounds")
	// ErrInfeasibleStart means the initial point lies outside the bounds.
	ErrInfeasibleStart = errors.New("initial point outside bounds")
	// ErrSingular means no damping made the normal equations solvable.
	ErrSingular = errors.New("singular system")
	// ErrNonFinite means a residual evaluation produced NaN or Inf.
	ErrNonFinite = errors.New("non-finite residuals")
	// ErrMaxEvaluations means the evaluation budget ran out before convergence.
	ErrMaxEvaluations = errors.New("evaluation budget exhausted")
	// ErrResidualLength means the residual vector changed length between calls.
	ErrResidualLength = errors.New("residual length changed")
	// ErrNoResiduals means the residual function returned an empty vector.
	ErrNoResiduals = errors.New("no residuals")
)

// Func returns the residual vector at x. It must not retain x.
type Func func(x []float64) []float64

// Problem is a box-constrained least-squares problem.
type Problem struct {
	Residuals Func
	Lower     []float64
	Upper     []float64
}

// Status tells which convergence test stopped the solver.
type Status int

const (
	StatusNone Status = iota
	// StatusGTol means the projected gradient vanished.
	StatusGTol
	// StatusFTol means the cost stopped decreasing by more than FTol relative.
	StatusFTol
	// StatusXTol means the step became negligible relative to x.
	StatusXTol
)

func (s Status) String() string {
	switch s {
	case StatusGTol:
		return "gtol"
	case StatusFTol:
		return "ftol"
	case StatusXTol:
		return "xtol"
	default:
		return "none"
	}
}

// Iteration is reported to Settings.Observer after every accepted step.
type Iteration struct {
	N           int
	Cost        float64
	Lambda      float64
	Evaluations int
}

// Settings tunes the solver.
type Settings struct {
	FTol float64
	XTol float64
	GTol float64
	// MaxEvaluations caps residual evaluations at trial points.
	// Zero means 100 per parameter.
	MaxEvaluations int
	// DiffStep is the relative forward-difference step. Zero means sqrt(eps).
	DiffStep float64
	Observer func(Iteration)
}

// DefaultSettings returns a loose tolerance suited to interactive use.
func DefaultSettings() Settings {
	return Settings{
		FTol: 1e-3,
		XTol: 1e-8,
		GTol: 1e-8,
	}
}

func (s Settings) withDefaults(n int) Settings {
	if s.MaxEvaluations <= 0 {
		s.MaxEvaluations = 100 * max(n, 1)
	}
	if s.DiffStep <= 0 {
		s.DiffStep = math.Sqrt(epsilon)
	}
	return s
}

const (
	epsilon     = 2.220446049250313e-16
	lambdaStart = 1e-3
	lambdaMax   = 1e20
)

// Result describes the solver's final state.
type Result struct {
	X           []float64
	Residuals   []float64
	Cost        float64 // half the sum of squared residuals
	InitialCost float64
	Status      Status
	Iterations  int
	// Evaluations counts residual calls at trial points, including x0.
	Evaluations int
	// JacobianEvaluations counts residual calls spent on finite differences.
	JacobianEvaluations int
}

// Solve minimizes half the sum of squared residuals starting from x0 while
// keeping every iterate inside [Lower, Upper]. On ErrMaxEvaluations the
// returned Result holds the best point reached.
func Solve(p Problem, x0 []float64, set Settings) (*Result, error) {
	n := len(x0)
	if err := checkBounds(p.Lower, p.Upper, x0); err != nil {
		return nil, err
	}
	set = set.withDefaults(n)

	s := &state{
		p:   p,
		set: set,
		x:   append([]float64(nil), x0...),
	}
	r, err := s.eval(s.x)
	if err != nil {
		return nil, err
	}
	s.evals++
	s.r = r
	s.cost = halfSquaredNorm(r)

	res := &Result{InitialCost: s.cost}
	if n == 0 {
		s.fill(res, StatusGTol)
		return res, nil
	}

	status, err := s.run()
	s.fill(res, status)
	if err != nil {
		if errors.Is(err, ErrMaxEvaluations) {
			return res, err
		}
		return nil, err
	}
	return res, nil
}

func checkBounds(lower, upper, x0 []float64) error {
	n := len(x0)
	if len(lower) != n || len(upper) != n {
		return fmt.Errorf("%w: %d parameters, %d lower, %d upper", ErrInvalidBounds, n, len(lower), len(upper))
	}
	for i := range x0 {
		if !(lower[i] < upper[i]) {
			return fmt.Errorf("%w: parameter %d has lower %g >= upper %g", ErrInvalidBounds, i, lower[i], upper[i])
		}
		if math.IsNaN(x0[i]) || x0[i] < lower[i] || x0[i] > upper[i] {
			return fmt.Errorf("%w: parameter %d = %g not in [%g, %g]", ErrInfeasibleStart, i, x0[i], lower[i], upper[i])
		}
	}
	return nil
}

type state struct {
	p   Problem
	set Settings

	x      []float64
	r      []float64
	cost   float64
	iters  int
	evals  int
	jevals int
}

func (s *state) fill(res *Result, status Status) {
	res.X = append([]float64(nil), s.x...)
	res.Residuals = append([]float64(nil), s.r...)
	res.Cost = s.cost
	res.Status = status
	res.Iterations = s.iters
	res.Evaluations = s.evals
	res.JacobianEvaluations = s.jevals
}

// eval calls the residual function and checks the result.
func (s *state) eval(x []float64) ([]float64, error) {
	r := s.p.Residuals(x)
	if len(r) == 0 {
		return nil, ErrNoResiduals
	}
	if s.r != nil && len(r) != len(s.r) {
		return nil, fmt.Errorf("%w: %d, want %d", ErrResidualLength, len(r), len(s.r))
	}
	for _, v := range r {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, ErrNonFinite
		}
	}
	return r, nil
}

func (s *state) run() (Status, error) {
	n := len(s.x)
	lower, upper := s.p.Lower, s.p.Upper

	lambda := lambdaStart
	nu := 2.0
	var (
		jac  *mat.Dense
		jtj  mat.SymDense
		grad mat.VecDense
		diag = make([]float64, n)
	)

	refresh := func() error {
		var err error
		jac, err = s.jacobian()
		if err != nil {
			return err
		}
		jtj.Reset()
		jtj.SymOuterK(1, jac.T())
		grad.Reset()
		grad.MulVec(jac.T(), mat.NewVecDense(len(s.r), s.r))

		maxDiag := 0.0
		for i := 0; i < n; i++ {
			maxDiag = math.Max(maxDiag, jtj.At(i, i))
		}
		floor := 1e-12 * math.Max(1, maxDiag)
		for i := 0; i < n; i++ {
			diag[i] = math.Max(jtj.At(i, i), floor)
		}
		return nil
	}
	if err := refresh(); err != nil {
		return StatusNone, err
	}

	for {
		if projectedGradientNorm(s.x, grad.RawVector().Data, lower, upper) < s.set.GTol {
			return StatusGTol, nil
		}
		if s.evals >= s.set.MaxEvaluations {
			return StatusNone, ErrMaxEvaluations
		}

		step, ok := dampedStep(&jtj, &grad, diag, lambda)
		if !ok {
			step, ok = qrStep(jac, s.r, diag, lambda)
		}
		if !ok {
			lambda *= nu
			nu *= 2
			if lambda > lambdaMax {
				return StatusNone, ErrSingular
			}
			continue
		}

		// Try the box projection first. If it clipped and did not help,
		// fold the overshoot back across the bound instead.
		trial, clipped := s.candidate(step, project)
		rt, costT, err := s.try(trial)
		if err != nil {
			return StatusNone, err
		}
		if clipped && costT >= s.cost && s.evals < s.set.MaxEvaluations {
			reflected, _ := s.candidate(step, reflect)
			rr, costR, err := s.try(reflected)
			if err != nil {
				return StatusNone, err
			}
			if costR < costT {
				trial, rt, costT = reflected, rr, costR
			}
		}

		dx := make([]float64, n)
		floats.SubTo(dx, trial, s.x)
		dxNorm := floats.Norm(dx, 2)
		xNorm := floats.Norm(s.x, 2)

		actual := s.cost - costT
		predicted := predictedReduction(&jtj, grad.RawVector().Data, dx)
		rho := 0.0
		if predicted > 0 && !math.IsInf(actual, 0) {
			rho = actual / predicted
		}

		ftolHit := actual >= 0 && actual < s.set.FTol*s.cost && rho > 0.25
		xtolHit := dxNorm < s.set.XTol*(s.set.XTol+xNorm)

		if actual > 0 {
			s.x = trial
			s.r = rt
			s.cost = costT
			s.iters++
			lambda *= math.Max(1.0/3, 1-math.Pow(2*rho-1, 3))
			nu = 2
			if s.set.Observer != nil {
				s.set.Observer(Iteration{N: s.iters, Cost: s.cost, Lambda: lambda, Evaluations: s.evals})
			}
		} else {
			lambda *= nu
			nu *= 2
		}

		switch {
		case ftolHit:
			return StatusFTol, nil
		case xtolHit:
			return StatusXTol, nil
		case lambda > lambdaMax:
			return StatusNone, ErrSingular
		}

		if actual > 0 {
			if err := refresh(); err != nil {
				return StatusNone, err
			}
		}
	}
}

// candidate maps x+step into the box with fold and reports whether any
// component had to be moved.
func (s *state) candidate(step []float64, fold func(v, lo, hi float64) float64) ([]float64, bool) {
	out := make([]float64, len(s.x))
	moved := false
	for i := range out {
		v := s.x[i] + step[i]
		out[i] = fold(v, s.p.Lower[i], s.p.Upper[i])
		if out[i] != v {
			moved = true
		}
	}
	return out, moved
}

// try evaluates a trial point. A non-finite result counts as an infinitely
// bad point rather than an error.
func (s *state) try(x []float64) ([]float64, float64, error) {
	r, err := s.eval(x)
	s.evals++
	if err != nil {
		if errors.Is(err, ErrNonFinite) {
			return nil, math.Inf(1), nil
		}
		return nil, 0, err
	}
	return r, halfSquaredNorm(r), nil
}

// jacobian builds the forward-difference Jacobian at s.x, stepping backwards
// when a forward step would leave the box.
func (s *state) jacobian() (*mat.Dense, error) {
	m, n := len(s.r), len(s.x)
	jac := mat.NewDense(m, n, nil)
	xt := append([]float64(nil), s.x...)
	for j := 0; j < n; j++ {
		lo, hi := s.p.Lower[j], s.p.Upper[j]
		h := s.set.DiffStep * math.Max(1, math.Abs(s.x[j]))
		xj := s.x[j] + h
		if xj > hi {
			xj = s.x[j] - h
			if xj < lo {
				// The box is narrower than the step; use the wider side.
				if hi-s.x[j] >= s.x[j]-lo {
					xj = hi
				} else {
					xj = lo
				}
			}
		}
		xt[j] = xj
		hj := xj - s.x[j]
		rt, err := s.eval(xt)
		s.jevals++
		xt[j] = s.x[j]
		if err != nil {
			return nil, err
		}
		for i := 0; i < m; i++ {
			jac.Set(i, j, (rt[i]-s.r[i])/hj)
		}
	}
	return jac, nil
}

// dampedStep solves (JᵀJ + λ·D)·δ = −Jᵀr.
func dampedStep(jtj *mat.SymDense, grad *mat.VecDense, diag []float64, lambda float64) ([]float64, bool) {
	n := len(diag)
	a := mat.NewSymDense(n, nil)
	a.CopySym(jtj)
	for i := 0; i < n; i++ {
		a.SetSym(i, i, jtj.At(i, i)+lambda*diag[i])
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return nil, false
	}
	var step mat.VecDense
	if err := chol.SolveVecTo(&step, grad); err != nil {
		return nil, false
	}
	return negated(&step)
}

// qrStep solves the same damped problem as the least-squares system
// [J; sqrt(λ·D)]·δ = [−r; 0] by QR, which avoids squaring the condition
// number of J.
func qrStep(jac *mat.Dense, r, diag []float64, lambda float64) ([]float64, bool) {
	m, n := jac.Dims()
	a := mat.NewDense(m+n, n, nil)
	a.Slice(0, m, 0, n).(*mat.Dense).Copy(jac)
	for i := 0; i < n; i++ {
		a.Set(m+i, i, math.Sqrt(lambda*diag[i]))
	}
	b := mat.NewVecDense(m+n, nil)
	for i, v := range r {
		b.SetVec(i, v)
	}

	var qr mat.QR
	qr.Factorize(a)
	var step mat.VecDense
	if err := qr.SolveVecTo(&step, false, b); err != nil {
		return nil, false
	}
	return negated(&step)
}

// negated returns −v, or false if any component is not finite.
func negated(v *mat.VecDense) ([]float64, bool) {
	out := make([]float64, v.Len())
	for i := range out {
		x := -v.AtVec(i)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, false
		}
		out[i] = x
	}
	return out, true
}

// predictedReduction is the decrease of the quadratic model along dx.
func predictedReduction(jtj *mat.SymDense, grad, dx []float64) float64 {
	d := mat.NewVecDense(len(dx), dx)
	var ad mat.VecDense
	ad.MulVec(jtj, d)
	return -(floats.Dot(grad, dx) + 0.5*mat.Dot(d, &ad))
}

// projectedGradientNorm is the max-norm of the gradient with components that
// push against an active bound removed.
func projectedGradientNorm(x, g, lower, upper []float64) float64 {
	var norm float64
	for i, gi := range g {
		if (x[i] <= lower[i] && gi > 0) || (x[i] >= upper[i] && gi < 0) {
			continue
		}
		norm = math.Max(norm, math.Abs(gi))
	}
	return norm
}

// project clips v to [lo, hi].
func project(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// reflect folds v back into [lo, hi] across the violated bound, then clips.
func reflect(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		v = lo + (lo - v)
	case v > hi:
		v = hi - (v - hi)
	}
	return math.Max(lo, math.Min(hi, v))
}

func halfSquaredNorm(r []float64) float64 {
	return 0.5 * floats.Dot(r, r)
}
