// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linalg

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/vladimir-ch/lazygp/iterative"
	"github.com/vladimir-ch/lazygp/linop"
)

// SolveGrad is the adjoint of a solve X = A⁻¹B. For a scalar loss L with
// gradient ∂L/∂X, the gradient with respect to B is GradB = A⁻¹ ∂L/∂X and
// the derivative with respect to a parameter θ of A is
//  ∂L/∂θ = −Σⱼ GradBⱼᵀ (∂A/∂θ) Xⱼ.
type SolveGrad struct {
	// GradB is ∂L/∂B.
	GradB *mat.Dense

	x *mat.Dense
}

// SolveBackward computes the adjoint of X = A⁻¹B from the solution x and the
// loss gradient gradX. It costs one additional solve with A, which is
// symmetric, whatever method produced x.
func SolveBackward(op linop.Operator, x, gradX mat.Matrix, s Settings) (*SolveGrad, Info, error) {
	r, c := x.Dims()
	if gr, gc := gradX.Dims(); gr != r || gc != c {
		return nil, Info{}, fmt.Errorf("linalg: gradient is %d×%d, solution is %d×%d: %w", gr, gc, r, c, iterative.ErrShape)
	}
	gb, info, err := Solve(op, gradX, s)
	if gb == nil {
		return nil, info, err
	}
	return &SolveGrad{GradB: gb, x: mat.DenseCopyOf(x)}, info, err
}

// Contract returns ∂L/∂θ for a parameter whose derivative of A is dA.
func (g *SolveGrad) Contract(dA linop.Operator) (float64, error) {
	dax, err := linop.Mul(dA, g.x)
	if err != nil {
		return 0, err
	}
	_, c := dax.Dims()
	var v float64
	for j := 0; j < c; j++ {
		v -= colDot(g.GradB, dax, j)
	}
	return v, nil
}

// LogDetBackward returns ∂ log det A/∂θ = tr(A⁻¹ ∂A/∂θ) for a parameter
// with derivative dA, estimated from the probe solves of res.
func LogDetBackward(res *InvQuadLogDetResult, dA linop.Operator) (iterative.Estimate, error) {
	return res.Trace(dA)
}
