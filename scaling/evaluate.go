// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scaling

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/chemopt/ordscale/ordinal"
)

// Evaluator aggregates the inner solutions of all groups into the total
// qualitative-data objective and its gradient. The category/group index
// is read-only and shared; evaluators are safe for concurrent use across
// outer multi-starts.
type Evaluator struct {
	idx  *ordinal.Index
	opts Options
}

// Evaluation is the aggregated result of one outer-parameter evaluation.
// When OK is false an inner solve failed: Objective is +Inf so the outer
// optimizer rejects the step, and Failure holds the *InnerSolveError for
// inspection. Group solutions are cached on the result so the objective
// and the gradient of one parameter point share a single inner solve.
type Evaluation struct {
	OK        bool
	Objective float64
	Gradient  []float64 // nil unless sensitivities were supplied
	Groups    []*InnerSolution
	Failure   error
}

// NewEvaluator validates the options and binds them to the index.
func NewEvaluator(idx *ordinal.Index, opts Options) (*Evaluator, error) {
	if idx == nil || len(idx.Groups) == 0 {
		return nil, errors.New("scaling: empty category/group index")
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("scaling: %w", err)
	}
	return &Evaluator{idx: idx, opts: opts}, nil
}

// Evaluate solves every group's inner problem against the supplied
// simulated values (aligned with the index measurements) and sums the
// objectives. Groups are independent and solved in parallel; the sum is
// commutative, so completion order is irrelevant, and the result is
// assembled in group order for determinism.
func (e *Evaluator) Evaluate(ctx context.Context, sim []float64) (*Evaluation, error) {
	return e.evaluate(ctx, sim, nil, 0)
}

// EvaluateGradient additionally computes the envelope-theorem gradient
// from the sensitivities ∂sim/∂θ (one row per measurement, nPar wide).
// It fails with *GradientUnavailableError when sens is nil: a
// gradient-based caller must not silently proceed with a zero gradient.
func (e *Evaluator) EvaluateGradient(ctx context.Context, sim []float64, sens [][]float64, nPar int) (*Evaluation, error) {
	if sens == nil {
		return nil, &GradientUnavailableError{Reason: "no sensitivities supplied by the simulation collaborator"}
	}
	if len(sens) != len(e.idx.Measurements) {
		return nil, &GradientUnavailableError{
			Reason: fmt.Sprintf("got %d sensitivity rows for %d measurements", len(sens), len(e.idx.Measurements)),
		}
	}
	return e.evaluate(ctx, sim, sens, nPar)
}

func (e *Evaluator) evaluate(ctx context.Context, sim []float64, sens [][]float64, nPar int) (*Evaluation, error) {

	if len(sim) != len(e.idx.Measurements) {
		return nil, fmt.Errorf("scaling: got %d simulated values for %d measurements",
			len(sim), len(e.idx.Measurements))
	}

	groups := e.idx.Groups
	sols := make([]*InnerSolution, len(groups))
	fails := make([]error, len(groups))

	wg, ctx := errgroup.WithContext(ctx)
	for gi := range groups {
		gi := gi
		wg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sol, err := SolveGroup(e.idx, &groups[gi], sim, &e.opts)
			if err != nil {
				var ise *InnerSolveError
				if errors.As(err, &ise) {
					// Recovered locally: the evaluation is reported as
					// invalid instead of failing the call.
					fails[gi] = err
					return nil
				}
				return err
			}
			sols[gi] = sol
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		return nil, err
	}

	for _, err := range fails {
		if err != nil {
			return &Evaluation{Objective: math.Inf(1), Failure: err}, nil
		}
	}

	ev := &Evaluation{OK: true, Groups: sols}
	for _, sol := range sols {
		ev.Objective += sol.Objective
	}

	if sens != nil {
		// Parameters not affecting any qualitative group keep a zero entry.
		ev.Gradient = make([]float64, nPar)
		for _, sol := range sols {
			if err := sol.AddGradient(sens, ev.Gradient); err != nil {
				return nil, err
			}
		}
	}

	return ev, nil
}
