// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scaling

import (
	"math"

	"github.com/chemopt/ordscale/ordinal"
)

// chain is the quadratic subproblem of one group, assembled fresh from
// the current simulated values. Only non-empty categories enter the
// chain; empty ones stay in the ordering through the rank-based offsets
// and are back-filled after the solve.
//
// The weighted least-squares objective over the measurements of category
// c collapses onto its weighted mean: up to a constant independent of the
// surrogate values,
//
//	𝚺_c 𝚺_{m∈c} w_m(sim_m - s_c)² = 𝚺_c W_c(s_c - μ_c)² + const
//
// so the chain carries (μ, W) per non-empty category. The ordering
// constraints s_{c+1} - s_c ≥ minGap·Δrank and the floor s_1 ≥ 0 are
// encoded through off_c = (rank_c - 1)·minGap: substituting t = s - off
// leaves an isotone chain with t ≥ 0.
type chain struct {
	ranks []int     // global category rank per entry, ascending
	mu    []float64 // weighted mean simulated value per entry
	wt    []float64 // total measurement weight per entry
	off   []float64 // minimum admissible surrogate: (rank-1)·minGap
	cap   []float64 // surrogate upper bound per entry, +Inf under Max
}

// buildChain aggregates the group's measurements into the chain form.
// Non-finite simulated values poison the whole group.
func buildChain(idx *ordinal.Index, g *ordinal.Group, sim []float64, opts *Options) (*chain, error) {

	ch := &chain{}
	for _, cat := range g.Categories {
		if len(cat.Measurements) == 0 {
			continue
		}
		var sw, swy, top float64
		top = math.Inf(-1)
		for _, m := range cat.Measurements {
			v, w := sim[m], idx.Measurements[m].Weight
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &InnerSolveError{Group: g.ID, Reason: "non-finite simulated value"}
			}
			sw += w
			swy += w * v
			top = math.Max(top, v)
		}
		ub := math.Inf(1)
		if opts.IntervalConstraints == MaxMin {
			ub = top
		}
		ch.ranks = append(ch.ranks, cat.Rank)
		ch.mu = append(ch.mu, swy/sw)
		ch.wt = append(ch.wt, sw)
		ch.off = append(ch.off, float64(cat.Rank-1)*opts.MinGap)
		ch.cap = append(ch.cap, ub)
	}
	return ch, nil
}
