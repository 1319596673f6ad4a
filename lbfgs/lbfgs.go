// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lbfgs implements a compact limited-memory BFGS optimizer for
// smooth unconstrained problems.
package lbfgs

import (
	"errors"
	"math"
	"slices"
)

const (
	searchAlpha = 1.0e-4 // sufficient decrease factor
	searchScale = 0.5    // backtracking shrink factor
	searchBack  = 40     // backtracking attempt limit
)

// Evaluation computes the objective at x and stores the gradient in g.
type Evaluation func(x, g []float64) (f float64)

// Termination specifies the stopping criteria for the optimizer.
type Termination struct {
	// The iteration stops when the number of iterations exceeds the limit.
	MaxIterations int
	// The iteration stops when the total number of evaluations exceeds the limit (0 = unlimited).
	MaxEvaluations int
	// The iteration stops when the function value satisfies:
	//   (fₖ - fₖ₊₁)/𝚖𝚊𝚡(|fₖ|,|fₖ₊₁|,1) ≤ 𝚏𝚝𝚘𝚕
	FuncTolerance float64
	// The iteration stops when the gradient satisfies: ‖ gₖ ‖∞ ≤ 𝚐𝚝𝚘𝚕
	GradTolerance float64
}

// Problem specifies the problem for the L-BFGS optimizer.
type Problem struct {
	N    int         // The problem dimension
	M    int         // The correction number of BFGS (0 selects 6)
	Eval Evaluation  // Objective function and gradient
	Stop Termination // Stop condition
}

// Result contains the final result of the optimization process.
type Result struct {
	OK      bool      // Whether the optimization converged.
	F       float64   // Final function value.
	X, G    []float64 // Final solution and gradient.
	NumIter int       // Number of iterations performed.
	NumEval int       // Number of evaluations performed.
}

// Optimizer implemented with the two-loop recursion form of L-BFGS.
type Optimizer struct {
	n, m int
	eval Evaluation
	stop Termination
}

// New validates the problem and creates an optimizer for it.
func (p *Problem) New() (*Optimizer, error) {

	m := p.M
	if m == 0 {
		m = 6
	}

	switch {
	case p.N <= 0:
		return nil, errors.New("problem dimension must greater than 0")
	case m < 0:
		return nil, errors.New("correction number must greater than 0")
	case p.Eval == nil:
		return nil, errors.New("evaluation target is required")
	case p.Stop.MaxIterations <= 0:
		return nil, errors.New("max iteration must greater than 0")
	case p.Stop.FuncTolerance < 0 || p.Stop.GradTolerance < 0:
		return nil, errors.New("tolerance must not less than 0")
	}

	return &Optimizer{n: p.N, m: m, eval: p.Eval, stop: p.Stop}, nil
}

// Fit runs the optimization from the initial guess x0.
// The optimizer keeps no state between calls: separate calls never share
// a workspace, so one optimizer may serve multiple goroutines.
func (o *Optimizer) Fit(x0 []float64) *Result {

	if len(x0) != o.n {
		panic("initial x dimension not match spec")
	}

	n, m, stop := o.n, o.m, o.stop
	maxEval := stop.MaxEvaluations
	if maxEval <= 0 {
		maxEval = math.MaxInt
	}

	x := slices.Clone(x0)
	g := make([]float64, n)
	xn := make([]float64, n)
	gn := make([]float64, n)
	d := make([]float64, n)

	// Correction history ring: sₖ = xₖ₊₁ - xₖ, yₖ = gₖ₊₁ - gₖ, ρₖ = 1/yₖᵀsₖ.
	sh := make([][]float64, m)
	yh := make([][]float64, m)
	rho := make([]float64, m)
	for i := 0; i < m; i++ {
		sh[i] = make([]float64, n)
		yh[i] = make([]float64, n)
	}
	hist, head := 0, 0
	alpha := make([]float64, m)

	f := o.eval(x, g)
	neval := 1

	res := func(ok bool, iter int) *Result {
		return &Result{OK: ok, F: f, X: x, G: g, NumIter: iter, NumEval: neval}
	}

	if !isFinite(f, g) {
		return res(false, 0)
	}

	for iter := 1; iter <= stop.MaxIterations; iter++ {

		if normInf(g) <= stop.GradTolerance {
			return res(true, iter-1)
		}

		// Two-loop recursion: d = -Hₖgₖ.
		copy(d, g)
		for i := 0; i < hist; i++ {
			k := (head - 1 - i + m) % m
			alpha[k] = rho[k] * dot(sh[k], d)
			axpy(-alpha[k], yh[k], d)
		}
		if hist > 0 {
			// Initial Hessian scaling γ = sᵀy/yᵀy.
			k := (head - 1 + m) % m
			gamma := 1 / (rho[k] * dot(yh[k], yh[k]))
			scal(gamma, d)
			for i := 0; i < hist; i++ {
				k := (head - hist + i + m) % m
				beta := rho[k] * dot(yh[k], d)
				axpy(alpha[k]-beta, sh[k], d)
			}
		}
		neg(d)

		gd := dot(g, d)
		if gd >= 0 {
			// Not a descent direction: discard the history and restart
			// from steepest descent.
			hist, head = 0, 0
			for i := range d {
				d[i] = -g[i]
			}
			gd = -dot(g, g)
			if gd == 0 {
				return res(true, iter-1)
			}
		}

		// Backtracking line search with the sufficient decrease condition
		//   fₖ₊₁ ≤ fₖ + ɑλₖgₖᵀdₖ (ɑ = 10⁻⁴)
		step := 1.0
		var fn float64
		accepted := false
		for back := 0; back < searchBack; back++ {
			for i := range xn {
				xn[i] = x[i] + step*d[i]
			}
			fn = o.eval(xn, gn)
			if neval++; neval > maxEval {
				return res(false, iter)
			}
			if isFinite(fn, gn) && fn <= f+searchAlpha*step*gd {
				accepted = true
				break
			}
			step *= searchScale
		}
		if !accepted {
			// No acceptable step: report convergence only when the
			// gradient is already negligible at the current point.
			return res(normInf(g) <= math.Sqrt(stop.GradTolerance+1e-300), iter)
		}

		// Curvature update, skipped when yᵀs is not safely positive.
		k := head
		ys := 0.0
		for i := range x {
			sk := xn[i] - x[i]
			yk := gn[i] - g[i]
			sh[k][i], yh[k][i] = sk, yk
			ys += sk * yk
		}
		if ys > 1e-10*norm2(sh[k])*norm2(yh[k]) {
			rho[k] = 1 / ys
			head = (head + 1) % m
			if hist < m {
				hist++
			}
		}

		df := f - fn
		x, xn = xn, x
		g, gn = gn, g
		f = fn

		if df <= stop.FuncTolerance*math.Max(math.Max(math.Abs(f), math.Abs(f+df)), 1) {
			return res(true, iter)
		}
	}

	return res(false, stop.MaxIterations)
}

func isFinite(f float64, g []float64) bool {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	for _, v := range g {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func dot(a, b []float64) (d float64) {
	for i := range a {
		d += a[i] * b[i]
	}
	return
}

func axpy(a float64, x, y []float64) {
	for i := range y {
		y[i] += a * x[i]
	}
}

func scal(a float64, x []float64) {
	for i := range x {
		x[i] *= a
	}
}

func neg(x []float64) {
	for i := range x {
		x[i] = -x[i]
	}
}

func norm2(x []float64) float64 {
	return math.Sqrt(dot(x, x))
}

func normInf(x []float64) (n float64) {
	for _, v := range x {
		n = math.Max(n, math.Abs(v))
	}
	return
}
