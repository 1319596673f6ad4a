// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pava

import (
	"math"
	"testing"
)

const tol = 1e-12

func unbounded() (lo, hi float64) {
	return math.Inf(-1), math.Inf(1)
}

func checkSolve(t *testing.T, mu, w, off, want []float64, lo, hi float64) {
	t.Helper()
	got := Solve(mu, w, off, lo, hi)
	for i := range want {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("s[%d]: want %v, got %v", i, want[i], got[i])
		}
	}
}

func ones(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

func TestIsotonic(t *testing.T) {

	lo, hi := unbounded()

	cases := []struct {
		name     string
		mu, w    []float64
		want     []float64
	}{
		{
			name: "already ordered",
			mu:   []float64{1, 2, 3, 4},
			want: []float64{1, 2, 3, 4},
		},
		{
			name: "total reversal pools everything",
			mu:   []float64{4, 3, 2, 1},
			want: []float64{2.5, 2.5, 2.5, 2.5},
		},
		{
			name: "single interior violation",
			mu:   []float64{1, 3, 2, 4},
			want: []float64{1, 2.5, 2.5, 4},
		},
		{
			name: "cascading merge",
			mu:   []float64{1, 4, 3, 2},
			want: []float64{1, 3, 3, 3},
		},
		{
			name: "weighted pool",
			mu:   []float64{2, 1},
			w:    []float64{2, 1},
			want: []float64{5. / 3, 5. / 3},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := tc.w
			if w == nil {
				w = ones(len(tc.mu))
			}
			checkSolve(t, tc.mu, w, make([]float64, len(tc.mu)), tc.want, lo, hi)
		})
	}
}

func TestMinimumGap(t *testing.T) {

	lo, hi := unbounded()

	// Equal means with a required separation of 0.5:
	// shifted values (1, 0.5) pool to 0.75, split back as (0.75, 1.25).
	checkSolve(t,
		[]float64{1, 1}, ones(2), []float64{0, 0.5},
		[]float64{0.75, 1.25}, lo, hi)

	// Feasible means stay untouched.
	checkSolve(t,
		[]float64{1, 2}, ones(2), []float64{0, 0.5},
		[]float64{1, 2}, lo, hi)
}

func TestBounds(t *testing.T) {

	// Floor clamps the leading block only.
	checkSolve(t,
		[]float64{-1, 2}, ones(2), make([]float64, 2),
		[]float64{0, 2}, 0, math.Inf(1))

	// Cap clamps from the top, floor from the bottom, ordering kept.
	checkSolve(t,
		[]float64{-1, 5}, ones(2), make([]float64, 2),
		[]float64{0, 3}, 0, 3)

	// Bounds combine with offsets: clamp applies in shifted coordinates.
	checkSolve(t,
		[]float64{10, 10}, ones(2), []float64{0, 1},
		[]float64{3, 4}, 0, 3)
}

func TestStationarity(t *testing.T) {

	// The pooled solution must be the exact projection: within every
	// pooled run the weighted residuals sum to zero.
	mu := []float64{3, 1, 4, 1.5, 1.5, 6}
	w := []float64{1, 2, 1, 3, 1, 2}
	off := []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5}

	s := Solve(mu, w, off, math.Inf(-1), math.Inf(1))

	for i := 1; i < len(s); i++ {
		if s[i]-s[i-1] < off[i]-off[i-1]-tol {
			t.Fatalf("gap violated at %d: %v -> %v", i, s[i-1], s[i])
		}
	}

	sum := 0.0
	for i := range s {
		sum += w[i] * (mu[i] - s[i])
		// At a block boundary (strict gap slack) the prefix residual must vanish.
		if i+1 == len(s) || s[i+1]-s[i] > off[i+1]-off[i]+tol {
			if math.Abs(sum) > 1e-9 {
				t.Fatalf("block ending at %d not stationary: residual sum %v", i, sum)
			}
			sum = 0
		}
	}
}
