package numdiff

import (
	"errors"
	"math"
)

var sqrtEps = math.Sqrt(math.Nextafter(1, 2) - 1)
var cubeEps = math.Pow(math.Nextafter(1, 2)-1, float64(1)/3)

type Method int

const (
	// Forward use the first order accuracy forward difference.
	Forward Method = iota
	// Central use the second order accuracy central difference.
	Central
)

// GradSpec estimates the gradient of a scalar function by finite differences.
//
// # Reference:
//
//   - https://en.wikipedia.org/wiki/Finite_difference
//   - https://github.com/scipy/scipy/blob/main/scipy/optimize/_numdiff.py
type GradSpec struct {
	N int
	// Function of which to estimate the derivatives.
	// The argument x passed to this function is an n-vector.
	Object func(x []float64) float64
	// Finite difference method to use.
	Method Method
	// Relative step size used to compute absolute step size as
	// h = RelStep * sign(x0) * abs(x0). When zero, the step is selected
	// automatically as h = eps^(1/2 or 1/3) * sign(x0) * max(1, abs(x0)).
	RelStep float64
	// Absolute step size to use. RelStep is used when AbsStep is zero.
	AbsStep float64
}

func (gs *GradSpec) check(x0, grad []float64) error {
	switch {
	case gs.N <= 0:
		return errors.New("negative dimensions")
	case gs.Method != Forward && gs.Method != Central:
		return errors.New("unknown method")
	case gs.Object == nil:
		return errors.New("object function is required")
	case gs.N != len(x0):
		return errors.New("invalid x0 dimensions")
	case gs.N != len(grad):
		return errors.New("invalid grad dimensions")
	}
	return nil
}

func (gs *GradSpec) step(x float64) float64 {
	eps := sqrtEps
	if gs.Method == Central {
		eps = cubeEps
	}
	s := gs.AbsStep
	if s == 0 {
		if gs.RelStep != 0 {
			s = math.Copysign(gs.RelStep, x) * math.Abs(x)
		}
		if d := (x + s) - x; s == 0 || d == 0 {
			s = math.Copysign(eps, x) * math.Max(1.0, math.Abs(x))
		}
	}
	return s
}

// Grad calculates the gradient approximation at x0 and stores it in grad.
// x0 is restored to its original values on return.
func (gs *GradSpec) Grad(x0, grad []float64) error {

	if err := gs.check(x0, grad); err != nil {
		return err
	}

	fun := gs.Object
	var f0 float64
	if gs.Method == Forward {
		f0 = fun(x0)
	}

	for i := range x0 {
		t := x0[i]
		h := gs.step(t)
		if gs.Method == Forward {
			x0[i] = t + h
			grad[i] = (fun(x0) - f0) / h
		} else {
			x0[i] = t - h
			f1 := fun(x0)
			x0[i] = t + h
			f2 := fun(x0)
			grad[i] = (f2 - f1) / (2 * h)
		}
		x0[i] = t
	}
	return nil
}
