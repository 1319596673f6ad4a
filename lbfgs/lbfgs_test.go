// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lbfgs

import (
	"math"
	"testing"
)

func newOpt(t *testing.T, n int, eval Evaluation) *Optimizer {
	t.Helper()
	p := &Problem{
		N:    n,
		Eval: eval,
		Stop: Termination{
			MaxIterations: 2000,
			FuncTolerance: 1e-14,
			GradTolerance: 1e-10,
		},
	}
	o, err := p.New()
	if err != nil {
		t.Fatal(err)
	}
	return o
}

func TestQuadratic(t *testing.T) {

	// f(x) = Σ cᵢ(xᵢ - tᵢ)²
	c := []float64{1, 10, 0.5}
	target := []float64{-1, 2, 4}

	o := newOpt(t, 3, func(x, g []float64) (f float64) {
		for i := range x {
			d := x[i] - target[i]
			f += c[i] * d * d
			g[i] = 2 * c[i] * d
		}
		return
	})

	r := o.Fit([]float64{0, 0, 0})
	if !r.OK {
		t.Fatalf("not converged: %+v", r)
	}
	for i := range target {
		if math.Abs(r.X[i]-target[i]) > 1e-6 {
			t.Fatalf("x[%d]: want %v, got %v", i, target[i], r.X[i])
		}
	}
}

func TestRosenbrock(t *testing.T) {

	// The backtracking-only line search takes roughly 700 iterations from
	// the classical start, so the budget must sit well above that.
	o := newOpt(t, 2, func(x, g []float64) (f float64) {
		a, b := 1-x[0], x[1]-x[0]*x[0]
		f = a*a + 100*b*b
		g[0] = -2*a - 400*x[0]*b
		g[1] = 200 * b
		return
	})

	r := o.Fit([]float64{-1.2, 1})
	if !r.OK {
		t.Fatalf("not converged: %+v", r)
	}
	if math.Abs(r.X[0]-1) > 1e-5 || math.Abs(r.X[1]-1) > 1e-5 {
		t.Fatalf("minimum missed: %v (f=%v, iter=%d)", r.X, r.F, r.NumIter)
	}
}

func TestIterationBound(t *testing.T) {

	p := &Problem{
		N: 2,
		Eval: func(x, g []float64) (f float64) {
			a, b := 1-x[0], x[1]-x[0]*x[0]
			f = a*a + 100*b*b
			g[0] = -2*a - 400*x[0]*b
			g[1] = 200 * b
			return
		},
		Stop: Termination{MaxIterations: 2},
	}
	o, err := p.New()
	if err != nil {
		t.Fatal(err)
	}
	if r := o.Fit([]float64{-1.2, 1}); r.OK {
		t.Fatal("want non-convergence within 2 iterations")
	}
}

func TestNonFinite(t *testing.T) {

	o := newOpt(t, 1, func(x, g []float64) (f float64) {
		g[0] = 1
		return math.NaN()
	})
	if r := o.Fit([]float64{1}); r.OK {
		t.Fatal("want failure on NaN objective")
	}
}

func TestRejectsBadSpec(t *testing.T) {
	bad := []Problem{
		{N: 0, Eval: func(x, g []float64) float64 { return 0 }, Stop: Termination{MaxIterations: 1}},
		{N: 1, Stop: Termination{MaxIterations: 1}},
		{N: 1, Eval: func(x, g []float64) float64 { return 0 }},
		{N: 1, Eval: func(x, g []float64) float64 { return 0 }, Stop: Termination{MaxIterations: 1, FuncTolerance: -1}},
	}
	for i := range bad {
		if _, err := bad[i].New(); err == nil {
			t.Fatalf("case %d: want error", i)
		}
	}
}
