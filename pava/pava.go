// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pava solves weighted least-squares problems over an ordered
// chain with minimum separations, using the classical
// pool-adjacent-violators construction.
package pava

import "math"

// Solve minimizes 𝚺 wᵢ(sᵢ - μᵢ)² subject to the chain constraints
//
//	sᵢ₊₁ - sᵢ ≥ offᵢ₊₁ - offᵢ   (i = 1 ··· n-1)
//	lo ≤ sᵢ - offᵢ ≤ hi          (i = 1 ··· n)
//
// where off is a non-decreasing vector of required minimum positions.
// lo and hi may be ±Inf to drop either bound.
//
// Substituting 𝐭 = 𝐬 - 𝐨𝐟𝐟 reduces the problem to isotonic regression of
// 𝐭 against μ - 𝐨𝐟𝐟 with box constraints lo ≤ 𝐭ᵢ ≤ hi. Pool-adjacent-violators
// merges every adjacent pair of blocks whose pooled means violate the
// ordering, repeatedly, until the block values are non-decreasing; the
// merge order is immaterial, the fixed point is the unique projection
// onto the monotone cone. For constant bounds the box-constrained
// solution is the clipped unconstrained one, so the bounds are applied
// by a final clamp.
//
// All weights must be strictly positive; empty chain positions are the
// caller's concern. The algorithm is exact and terminates after at most
// n-1 merges.
//
// # References
//
//	R.E. Barlow et al., 'Statistical inference under order restrictions',
//	Wiley, 1972. Chapter 1.2 (pool-adjacent-violators).
func Solve(mu, w, off []float64, lo, hi float64) []float64 {

	n := len(mu)
	if len(w) != n || len(off) != n {
		panic("bound check error")
	}

	type block struct {
		v, w float64
		n    int
	}

	blocks := make([]block, 0, n)
	for i := 0; i < n; i++ {
		if !(w[i] > 0) {
			panic("non-positive weight")
		}
		blocks = append(blocks, block{v: mu[i] - off[i], w: w[i], n: 1})
		// Pool while the last two blocks violate the ordering.
		for k := len(blocks) - 1; k > 0 && blocks[k-1].v > blocks[k].v; k-- {
			a, b := blocks[k-1], blocks[k]
			ws := a.w + b.w
			blocks[k-1] = block{v: (a.w*a.v + b.w*b.v) / ws, w: ws, n: a.n + b.n}
			blocks = blocks[:k]
		}
	}

	s := make([]float64, n)
	i := 0
	for _, b := range blocks {
		v := math.Min(math.Max(b.v, lo), hi)
		for j := 0; j < b.n; j++ {
			s[i] = v + off[i]
			i++
		}
	}
	return s
}
