// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nnls solves the chain-structured nonnegative least-squares
// problem produced by the gap reparameterization of an ordered category
// chain.
package nnls

import "math"

// Chain solves 𝚖𝚒𝚗 𝚺 Wᵢ(𝐭ᵢ - 𝐲ᵢ)² subject to 𝐠 ≥ 0 where 𝐭ᵢ = 𝚺ⱼ≤ᵢ 𝐠ⱼ,
// with the Lawson-Hanson active-set method.
//
// The design matrix is the lower-triangular matrix of ones (cumulative
// sums), so the general dense QR machinery of NNLS collapses: given a
// passive set ℙ, the columns of ℙ cut the chain into runs on which 𝐭 is
// constant, and the restricted unconstrained solution is the weighted
// mean of 𝐲 over each run (the run before the first passive index is
// pinned at zero).
//
// There are two index sets ℤ(zero) and ℙ(passive):
//   - 𝐠ⱼ = 0, j ∈ ℤ : the gap is held at zero (categories j-1 and j sit
//     at the minimum separation; for j = 1 the chain is pinned at the floor)
//   - 𝐠ⱼ > 0, j ∈ ℙ : the gap is free to take any positive value
//
// The dual vector is 𝐰ⱼ = -½ ∂𝒇/∂𝐠ⱼ = 𝚺ᵢ≥ⱼ Wᵢ(𝐲ᵢ - 𝐭ᵢ), a suffix sum of
// weighted residuals. KKT optimality:
//   - 𝐰ⱼ = 0, ∀j ∈ ℙ
//   - 𝐰ⱼ ≤ 0, ∀j ∈ ℤ
//
// Each outer iteration relaxes the most violated constraint
// (𝚊𝚛𝚐 𝚖𝚊𝚡 𝐰ⱼ, j ∈ ℤ); the inner loop interpolates back towards the
// previous feasible point whenever the restricted solution turns a gap
// negative, moving the blocking index back to ℤ.
//
// maxIter ≤ 0 selects the default bound of 3n. On return ok reports
// whether the KKT conditions were met within the bound; the slice t
// holds the last (always feasible) chain values either way.
//
// # References
//
//	C.L. Lawson, R.J. Hanson, 'Solving least squares problems' Prentice
//	Hall, 1974. Chapter 23, Algorithm 23.10.
func Chain(y, w []float64, maxIter int) (t []float64, ok bool) {

	n := len(y)
	if len(w) != n {
		panic("bound check error")
	}
	t = make([]float64, n)
	if n == 0 {
		return t, true
	}

	if maxIter <= 0 {
		maxIter = 3 * n
	}

	g := make([]float64, n)  // current feasible gaps
	z := make([]float64, n)  // restricted unconstrained gaps
	passive := make([]bool, n)

	// KKT tolerance relative to the problem scale.
	scale := 0.0
	for i := range y {
		if !(w[i] > 0) {
			panic("non-positive weight")
		}
		scale += w[i] * (math.Abs(y[i]) + 1)
	}
	kktTol := 1e-12 * scale

	// chain recomputes t from gaps.
	chain := func(gaps []float64) {
		acc := 0.0
		for i := range t {
			acc += gaps[i]
			t[i] = acc
		}
	}

	// restricted solves the equality subproblem on the current ℙ:
	// weighted mean per run, zero level ahead of the first passive index.
	restricted := func() {
		level := 0.0
		start := n // start of the pending run, n means none
		flush := func(end int) {
			if start < end {
				var sy, sw float64
				for i := start; i < end; i++ {
					sy += w[i] * y[i]
					sw += w[i]
				}
				prev := level
				level = sy / sw
				z[start] = level - prev
				for i := start + 1; i < end; i++ {
					z[i] = 0
				}
			}
		}
		for j := 0; j < n; j++ {
			if passive[j] {
				flush(j)
				start = j
			} else if start == n {
				z[j] = 0 // pinned prefix
			}
		}
		flush(n)
	}

	iter := 0
	for {
		chain(g)

		// Dual 𝐰ⱼ = 𝚺ᵢ≥ⱼ Wᵢ(𝐲ᵢ - 𝐭ᵢ): pick the most violated index in ℤ.
		suffix := 0.0
		wmax, jmax := kktTol, -1
		for j := n - 1; j >= 0; j-- {
			suffix += w[j] * (y[j] - t[j])
			if !passive[j] && suffix > wmax {
				wmax, jmax = suffix, j
			}
		}

		// Quit when 𝐰ⱼ ≤ 0 ∀j ∈ ℤ: Kuhn-Tucker conditions hold.
		if jmax < 0 {
			return t, true
		}
		passive[jmax] = true

		// The inner loop is continued until all violating gaps moved to ℤ.
		for {
			if iter++; iter > maxIter {
				chain(g)
				return t, false
			}

			restricted()

			// Find the blocking index: 𝚊𝚛𝚐 𝚖𝚒𝚗 { 𝐠ⱼ/(𝐠ⱼ-𝐳ⱼ) : 𝐳ⱼ ≤ 0, j ∈ ℙ }.
			alpha, jj := 2.0, -1
			for j := 0; j < n; j++ {
				if passive[j] && z[j] <= 0 {
					a := g[j] / (g[j] - z[j])
					if a < alpha {
						alpha, jj = a, j
					}
				}
			}

			// Restricted solution feasible: accept and return to the main loop.
			if jj < 0 {
				copy(g, z)
				break
			}

			// Interpolate 𝐠 = 𝐠 + ɑ(𝐳 - 𝐠) and retire the blocking gaps.
			for j := 0; j < n; j++ {
				if passive[j] {
					g[j] += alpha * (z[j] - g[j])
				}
			}
			g[jj] = 0
			passive[jj] = false
			for j := 0; j < n; j++ {
				// Any gap rounded to non-positive is due to round-off: pin it.
				if passive[j] && g[j] <= 0 {
					g[j] = 0
					passive[j] = false
				}
			}
		}
	}
}
