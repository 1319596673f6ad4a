// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scaling

import "fmt"

// InnerSolveError reports an inner optimization that failed to converge
// within its iteration bound or produced a non-finite result. The outer
// objective evaluation must be treated as invalid (+Inf), never as a
// crash: the outer optimizer rejects the step and continues.
type InnerSolveError struct {
	Group  int
	Reason string
}

func (e *InnerSolveError) Error() string {
	return fmt.Sprintf("scaling: inner solve failed for group %d: %s", e.Group, e.Reason)
}

// GradientUnavailableError reports a gradient request that cannot be
// served because the simulation collaborator supplied no sensitivities.
// Gradient-based outer optimizers must not proceed silently with a zero
// gradient.
type GradientUnavailableError struct {
	Reason string
}

func (e *GradientUnavailableError) Error() string {
	return "scaling: gradient unavailable: " + e.Reason
}
