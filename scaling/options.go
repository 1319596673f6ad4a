// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scaling solves the optimal-scaling inner subproblem for
// ordinal measurement data.
//
// Given fixed outer model parameters and the simulated values they
// produce, the solver computes for every independent category group the
// numeric surrogate values minimizing the weighted sum-of-squares
// mismatch against the simulation, subject to the category ordering with
// a minimum separation. The inner optimum feeds an objective value and,
// through the envelope theorem, a gradient contribution back to the
// outer optimizer.
package scaling

import (
	"errors"
	"fmt"
	"io"
)

// Method selects the inner problem formulation.
type Method int

const (
	// Reduced reparameterizes the ordering constraints into nonnegative
	// gaps between consecutive surrogate values, leaving a box-constrained
	// least-squares problem. Preferred for numerical robustness.
	Reduced Method = iota
	// Standard treats the surrogate values directly as the
	// inequality-constrained variables and solves the quadratic program
	// by pool-adjacent-violators merging.
	Standard
)

func (m Method) String() string {
	switch m {
	case Reduced:
		return "reduced"
	case Standard:
		return "standard"
	}
	return fmt.Sprintf("method(%d)", int(m))
}

// IntervalConstraint selects how category bounds are derived.
type IntervalConstraint int

const (
	// Max enforces only the minimum gap between consecutive categories.
	Max IntervalConstraint = iota
	// MaxMin additionally caps each category's surrogate value at the
	// maximum simulated value among its own measurements.
	MaxMin
)

func (c IntervalConstraint) String() string {
	switch c {
	case Max:
		return "max"
	case MaxMin:
		return "max-min"
	}
	return fmt.Sprintf("intervalConstraints(%d)", int(c))
}

// LogLevel controls the frequency and type of logger output.
type LogLevel int

const (
	// LogNoop no output is generated.
	LogNoop LogLevel = -1
	// LogGroup print one line per solved group.
	LogGroup LogLevel = 0
	// LogTrace print also core solver iteration counts.
	LogTrace LogLevel = 1
)

// Logger handles diagnostic output for the solver.
// Note the writer must be thread-safe: groups are solved concurrently.
type Logger struct {
	Level LogLevel
	Msg   io.Writer
}

func (l *Logger) enable(level LogLevel) bool {
	return l != nil && l.Msg != nil && l.Level >= level
}

func (l *Logger) log(format string, a ...any) {
	_, _ = fmt.Fprintf(l.Msg, format, a...)
}

// Options configures the inner solver.
type Options struct {
	// Method selects the standard or reduced formulation.
	Method Method
	// Reparameterized substitutes each nonnegative gap g with x² so the
	// reduced problem becomes unconstrained and smooth. Only valid with
	// the Reduced method.
	Reparameterized bool
	// IntervalConstraints selects the Max or MaxMin bound derivation.
	IntervalConstraints IntervalConstraint
	// MinGap is the minimum separation enforced between consecutive
	// category surrogate values. Zero is accepted and degenerates the
	// ordering into plain isotonicity.
	MinGap float64
	// MaxIterations bounds the core solver iterations per group.
	// Zero selects the defaults (3n for the active-set core, 2000 for
	// the smooth reparameterized core).
	MaxIterations int
	// Logger receives solve diagnostics; nil disables logging.
	Logger *Logger
}

// DefaultOptions returns the recognized defaults: reduced method,
// reparameterized, max interval constraints, minGap 1e-10.
func DefaultOptions() Options {
	return Options{
		Method:              Reduced,
		Reparameterized:     true,
		IntervalConstraints: Max,
		MinGap:              1e-10,
	}
}

// Validate checks the option combination before any optimization starts.
func (o *Options) Validate() error {
	switch {
	case o.Method != Standard && o.Method != Reduced:
		return fmt.Errorf("unknown method %v", o.Method)
	case o.IntervalConstraints != Max && o.IntervalConstraints != MaxMin:
		return fmt.Errorf("unknown interval constraints %v", o.IntervalConstraints)
	case o.Method == Standard && o.Reparameterized:
		return errors.New("combining standard method with reparameterization is not supported")
	case o.MinGap < 0:
		return fmt.Errorf("minGap must not be negative, got %g", o.MinGap)
	case o.MaxIterations < 0:
		return fmt.Errorf("max iterations must not be negative, got %d", o.MaxIterations)
	}
	return nil
}
