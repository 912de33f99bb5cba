// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package kernel provides covariance functions of Gaussian processes and
// builds lazy covariance operators from them.
//
// All hyperparameters are stored and exchanged as natural logarithms, so
// that unconstrained optimization keeps length scales, periods and output
// scales positive. EvalGrad returns derivatives with respect to these
// log-hyperparameters.
package kernel

import (
	"fmt"
	"math"

	"github.com/vladimir-ch/lazygp/iterative"
)

// Bound is an interval of a log-hyperparameter.
type Bound struct {
	Min float64
	Max float64
}

// Contains reports whether v lies in the closed interval.
func (b Bound) Contains(v float64) bool { return b.Min <= v && v <= b.Max }

// Clamp returns v restricted to the interval.
func (b Bound) Clamp(v float64) float64 { return math.Max(b.Min, math.Min(b.Max, v)) }

// Kernel is a positive definite covariance function.
//
// Kernels are immutable. WithHyper returns a new kernel, so a trainer may
// evaluate several hyperparameter settings concurrently.
type Kernel interface {
	// Eval returns k(x, y).
	Eval(x, y []float64) float64
	// EvalGrad returns k(x, y) and stores its derivatives with respect
	// to the log-hyperparameters in deriv, which must have length
	// NumHyper.
	EvalGrad(deriv, x, y []float64) float64
	// NumHyper returns the number of hyperparameters.
	NumHyper() int
	// Hyper stores the log-hyperparameters in dst and returns it. A new
	// slice is allocated if dst is nil.
	Hyper(dst []float64) []float64
	// WithHyper returns a copy of the kernel with the given
	// log-hyperparameters.
	WithHyper(h []float64) (Kernel, error)
	// Bounds returns the intervals of the log-hyperparameters.
	Bounds() []Bound
}

// Clamp returns k with every hyperparameter moved into its bounds.
func Clamp(k Kernel) Kernel {
	h := k.Hyper(nil)
	for i, b := range k.Bounds() {
		h[i] = b.Clamp(h[i])
	}
	c, err := k.WithHyper(h)
	if err != nil {
		panic(err)
	}
	return c
}

func checkHyper(name string, k Kernel, h []float64) error {
	if len(h) != k.NumHyper() {
		return fmt.Errorf("kernel: %s has %d hyperparameters, got %d: %w", name, k.NumHyper(), len(h), iterative.ErrShape)
	}
	return iterative.CheckFinite("kernel."+name, h)
}

func hyperSlice(dst []float64, n int) []float64 {
	if dst == nil {
		return make([]float64, n)
	}
	if len(dst) != n {
		panic("kernel: hyperparameter length mismatch")
	}
	return dst
}

func checkDeriv(deriv []float64, n int) {
	if len(deriv) != n {
		panic("kernel: deriv length mismatch")
	}
}

// sqDist returns |x-y|².
func sqDist(x, y []float64) float64 {
	if len(x) != len(y) {
		panic("kernel: length mismatch")
	}
	var d float64
	for i, v := range x {
		t := v - y[i]
		d += t * t
	}
	return d
}
