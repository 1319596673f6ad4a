// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scaling

import (
	"math"

	"github.com/chemopt/ordscale/lbfgs"
	"github.com/chemopt/ordscale/nnls"
	"github.com/chemopt/ordscale/ordinal"
	"github.com/chemopt/ordscale/pava"
)

// InnerSolution holds the optimum of one group's inner problem: the
// surrogate value per category, the achieved weighted sum-of-squares
// objective, and the residual structure the gradient module reuses.
// It is recomputed fresh on every outer-parameter evaluation and carries
// no state beyond that evaluation.
type InnerSolution struct {
	Group     int
	Values    []float64 // surrogate value per category, indexed by rank-1
	Objective float64
	// Per-measurement residual structure, aligned slices: the index of
	// the measurement in the ordinal.Index, its residual sim - s, and
	// its weight.
	Measurements []int
	Residuals    []float64
	Weights      []float64
	// Active marks adjacent category pairs sitting at the minimum
	// separation: Active[k] refers to the pair (rank k+1, rank k+2).
	Active []bool
}

// SolveGroup solves the inner problem of one group against the supplied
// simulated values, which must be aligned with idx.Measurements.
//
// The solve is a pure function of its inputs: no state persists across
// calls, identical inputs yield identical solutions. Failures to
// converge within bounded iterations and non-finite intermediate values
// surface as *InnerSolveError.
func SolveGroup(idx *ordinal.Index, g *ordinal.Group, sim []float64, opts *Options) (*InnerSolution, error) {

	ch, err := buildChain(idx, g, sim, opts)
	if err != nil {
		return nil, err
	}

	gs := &groupSolver{group: g.ID, opts: opts}

	n := len(ch.mu)
	y := make([]float64, n)     // targets in shifted coordinates
	capsT := make([]float64, n) // per-entry caps in shifted coordinates
	for i := 0; i < n; i++ {
		y[i] = ch.mu[i] - ch.off[i]
		capsT[i] = ch.cap[i] - ch.off[i]
	}

	t, err := gs.capped(y, ch.wt, capsT, 0, math.Inf(1))
	if err != nil {
		return nil, err
	}

	values := backfill(g, ch, t, opts.MinGap)

	sol := &InnerSolution{Group: g.ID, Values: values}
	for _, cat := range g.Categories {
		s := values[cat.Rank-1]
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, &InnerSolveError{Group: g.ID, Reason: "non-finite surrogate value"}
		}
		for _, m := range cat.Measurements {
			r := sim[m] - s
			w := idx.Measurements[m].Weight
			sol.Measurements = append(sol.Measurements, m)
			sol.Residuals = append(sol.Residuals, r)
			sol.Weights = append(sol.Weights, w)
			sol.Objective += w * r * r
		}
	}

	sol.Active = make([]bool, len(values)-1)
	for k := range sol.Active {
		gap := values[k+1] - values[k]
		sol.Active[k] = gap <= opts.MinGap+1e-8*(1+math.Abs(values[k+1]))
	}

	if l := opts.Logger; l.enable(LogGroup) {
		mode := opts.Method.String()
		if opts.Method == Reduced && opts.Reparameterized {
			mode += "/reparameterized"
		}
		l.log("group %d: %s categories=%d nonempty=%d obj=%.8g\n",
			g.ID, mode, len(g.Categories), n, sol.Objective)
	}

	return sol, nil
}

// groupSolver carries the per-solve context shared by the recursive
// cap handling and the core solvers.
type groupSolver struct {
	group int
	opts  *Options
}

// capped solves the chain subproblem on shifted targets y with floor
// pinned below and a constant upper bound, then enforces the per-entry
// caps (MaxMin) by a clamp-and-resolve active-set loop: the lowest-ranked
// violated category is pinned at its cap, which splits the chain into a
// left segment inheriting the pin as a constant top bound and a right
// segment inheriting it as a raised floor. Every recursion pins one
// entry, so the loop is bounded by the chain length.
func (gs *groupSolver) capped(y, w, caps []float64, floor, bound float64) ([]float64, error) {

	if len(y) == 0 {
		return nil, nil
	}

	t, err := gs.core(y, w, floor)
	if err != nil {
		return nil, err
	}
	// Constant bounds project by clamping: the chain stays isotone.
	for i := range t {
		t[i] = math.Min(t[i], bound)
	}

	viol := -1
	for i := range t {
		if t[i] > caps[i]+1e-10*(1+math.Abs(caps[i])) {
			viol = i
			break
		}
	}
	if viol < 0 {
		return t, nil
	}

	pin := math.Max(caps[viol], floor) // a cap below the floor cannot break the ordering
	left, err := gs.capped(y[:viol], w[:viol], caps[:viol], floor, math.Min(bound, pin))
	if err != nil {
		return nil, err
	}
	right, err := gs.capped(y[viol+1:], w[viol+1:], caps[viol+1:], pin, bound)
	if err != nil {
		return nil, err
	}

	out := make([]float64, 0, len(y))
	out = append(out, left...)
	out = append(out, pin)
	out = append(out, right...)
	return out, nil
}

// core solves min 𝚺 wᵢ(tᵢ - yᵢ)² over isotone t with t ≥ floor, using
// the configured formulation. All three cores solve the same convex
// chain QP and agree within solver tolerance.
func (gs *groupSolver) core(y, w []float64, floor float64) ([]float64, error) {

	n := len(y)
	ys := make([]float64, n)
	for i := range ys {
		ys[i] = y[i] - floor
	}

	if l := gs.opts.Logger; l.enable(LogTrace) {
		l.log("group %d: core segment n=%d floor=%.8g\n", gs.group, n, floor)
	}

	var t []float64
	switch {
	case gs.opts.Method == Standard:
		t = pava.Solve(ys, w, make([]float64, n), 0, math.Inf(1))

	case !gs.opts.Reparameterized:
		var ok bool
		if t, ok = nnls.Chain(ys, w, gs.opts.MaxIterations); !ok {
			return nil, &InnerSolveError{Group: gs.group, Reason: "active-set iteration bound exceeded"}
		}

	default:
		var err error
		if t, err = gs.smooth(ys, w); err != nil {
			return nil, err
		}
	}

	for i := range t {
		t[i] += floor
	}
	return t, nil
}

// smooth solves the reduced problem under the squared-variable
// substitution g = x²: the box constraint g ≥ 0 disappears and the
// resulting quartic is minimized by unconstrained L-BFGS with the inner
// tolerances of the reference pipeline (ftol 1e-10, 2000 iterations).
func (gs *groupSolver) smooth(y, w []float64) ([]float64, error) {

	n := len(y)

	// Seed the gaps from the running maximum of the clamped targets; the
	// small positive shift keeps the seed away from the x = 0 saddle.
	scale := 0.0
	for _, v := range y {
		scale = math.Max(scale, math.Abs(v))
	}
	eps0 := 1e-8 * (1 + scale)
	x0 := make([]float64, n)
	prev := 0.0
	for i := range y {
		tv := math.Max(y[i], prev)
		if tv < 0 {
			tv = 0
		}
		x0[i] = math.Sqrt(tv - prev + eps0)
		prev = tv
	}

	tbuf := make([]float64, n)
	eval := func(x, g []float64) (f float64) {
		acc := 0.0
		for i := range x {
			acc += x[i] * x[i]
			tbuf[i] = acc
			d := acc - y[i]
			f += w[i] * d * d
		}
		suffix := 0.0
		for j := n - 1; j >= 0; j-- {
			suffix += 2 * w[j] * (tbuf[j] - y[j])
			g[j] = 2 * x[j] * suffix
		}
		return
	}

	maxIter := gs.opts.MaxIterations
	if maxIter <= 0 {
		maxIter = 2000
	}
	p := &lbfgs.Problem{
		N:    n,
		Eval: eval,
		Stop: lbfgs.Termination{
			MaxIterations: maxIter,
			FuncTolerance: 1e-10,
			GradTolerance: 1e-12 * (1 + scale),
		},
	}
	o, err := p.New()
	if err != nil {
		return nil, &InnerSolveError{Group: gs.group, Reason: err.Error()}
	}
	r := o.Fit(x0)
	if !r.OK {
		return nil, &InnerSolveError{Group: gs.group, Reason: "smooth solve did not converge"}
	}

	if l := gs.opts.Logger; l.enable(LogTrace) {
		l.log("group %d: smooth core iter=%d eval=%d f=%.8g\n", gs.group, r.NumIter, r.NumEval, r.F)
	}

	t := make([]float64, n)
	acc := 0.0
	for i := range t {
		acc += r.X[i] * r.X[i]
		t[i] = acc
	}
	return t, nil
}

// backfill assembles the full surrogate vector from the solved chain.
// Empty categories carry no objective term: interior runs are spaced
// evenly between their solved neighbors, leading and trailing runs sit
// at one minimum gap per skipped rank from the nearest solved value.
func backfill(g *ordinal.Group, ch *chain, t []float64, minGap float64) []float64 {

	vals := make([]float64, len(g.Categories))

	if len(ch.ranks) == 0 {
		// Nothing to fit: the whole group rides the floor chain.
		for k := range vals {
			vals[k] = float64(k) * minGap
		}
		return vals
	}

	for i, r := range ch.ranks {
		vals[r-1] = t[i] + ch.off[i]
	}

	first := ch.ranks[0] - 1
	for k := first - 1; k >= 0; k-- {
		vals[k] = vals[first] - minGap*float64(first-k)
	}

	last := ch.ranks[len(ch.ranks)-1] - 1
	for k := last + 1; k < len(vals); k++ {
		vals[k] = vals[last] + minGap*float64(k-last)
	}

	prev := first
	for i := 1; i < len(ch.ranks); i++ {
		cur := ch.ranks[i] - 1
		for k := prev + 1; k < cur; k++ {
			frac := float64(k-prev) / float64(cur-prev)
			vals[k] = vals[prev] + frac*(vals[cur]-vals[prev])
		}
		prev = cur
	}

	return vals
}
