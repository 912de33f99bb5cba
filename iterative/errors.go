// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package iterative

import (
	"errors"
	"fmt"
	"math"
)

// ErrShape is returned, possibly wrapped, when operand dimensions are
// incompatible. It is always fatal to the call that returned it.
var ErrShape = errors.New("dimension mismatch")

// NumericalError reports input that violates a numerical contract, such as a
// matrix that is not positive definite, a degenerate preconditioner or an
// invalid configuration value.
type NumericalError struct {
	// Op is the operation that failed.
	Op string
	// Reason describes the violated contract.
	Reason string
}

func (e *NumericalError) Error() string {
	return e.Op + ": " + e.Reason
}

// Numerical returns a *NumericalError for op with a formatted reason.
func Numerical(op, format string, args ...interface{}) error {
	return &NumericalError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// ConvergenceWarning is returned together with a usable approximate result
// when an iterative method stopped at its iteration cap before reaching the
// requested tolerance.
type ConvergenceWarning struct {
	// Op is the method that did not converge.
	Op string
	// Iterations is the number of iterations done.
	Iterations int
	// ResidualNorm is the final relative residual norm. For batched
	// solves it is the largest one across right-hand sides.
	ResidualNorm float64
	// Tolerance is the tolerance that was not reached.
	Tolerance float64
}

func (w *ConvergenceWarning) Error() string {
	return fmt.Sprintf("%s: no convergence after %d iterations (residual %.3e, tolerance %.3e)",
		w.Op, w.Iterations, w.ResidualNorm, w.Tolerance)
}

// AsWarning reports whether err is or wraps a *ConvergenceWarning.
func AsWarning(err error) (*ConvergenceWarning, bool) {
	var w *ConvergenceWarning
	if errors.As(err, &w) {
		return w, true
	}
	return nil, false
}

// IsWarning reports whether err is nil or only a convergence warning, that
// is, whether the accompanying result may be used.
func IsWarning(err error) bool {
	if err == nil {
		return true
	}
	_, ok := AsWarning(err)
	return ok
}

// CheckFinite returns a *NumericalError if any element of v is NaN or
// infinite.
func CheckFinite(op string, v []float64) error {
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return Numerical(op, "non-finite value %v at index %d", x, i)
		}
	}
	return nil
}
