// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scaling

import "fmt"

// AddGradient accumulates this solution's contribution to the gradient
// of the total objective with respect to the outer parameters.
//
// By the envelope theorem the total derivative of the inner optimum
// equals the partial derivative of the inner objective with the
// surrogate values held fixed at their optimum: for unconstrained
// coordinates the surrogate sensitivity term vanishes at stationarity,
// and for coordinates at an active ordering constraint the pooled
// residual structure already encodes the merge, so the same fixed-point
// formula applies. With residual r_m = sim_m - s_c,
//
//	∂obj/∂θ = 2 𝚺_m w_m r_m ∂sim_m/∂θ
//
// No differentiation through the solver's iterative control flow takes
// place.
//
// sens holds one row per measurement of the whole index, aligned with
// the simulated values the solution was computed from; each row holds
// the partial derivatives with respect to the outer parameters, aligned
// with grad. A nil sens, a missing row, or a row of the wrong width
// reports *GradientUnavailableError.
func (sol *InnerSolution) AddGradient(sens [][]float64, grad []float64) error {

	if sens == nil {
		return &GradientUnavailableError{Reason: "no sensitivities supplied by the simulation collaborator"}
	}

	for i, m := range sol.Measurements {
		if m >= len(sens) || sens[m] == nil {
			return &GradientUnavailableError{Reason: fmt.Sprintf("no sensitivity row for measurement %d", m)}
		}
		row := sens[m]
		if len(row) != len(grad) {
			return &GradientUnavailableError{
				Reason: fmt.Sprintf("sensitivity row %d has %d parameters, gradient has %d", m, len(row), len(grad)),
			}
		}
		c := 2 * sol.Weights[i] * sol.Residuals[i]
		for p, dy := range row {
			grad[p] += c * dy
		}
	}
	return nil
}
