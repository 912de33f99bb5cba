// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linalg

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/vladimir-ch/lazygp/iterative"
	"github.com/vladimir-ch/lazygp/linop"
	"github.com/vladimir-ch/lazygp/precond"
)

// Solve returns X = A⁻¹B for a symmetric positive definite operator A.
//
// If an iterative solve stops at the iteration limit, Solve returns the best
// approximation together with a *iterative.ConvergenceWarning.
func Solve(op linop.Operator, b mat.Matrix, s Settings) (*mat.Dense, Info, error) {
	start := time.Now()
	if err := linop.CheckBatch(op, b); err != nil {
		return nil, Info{}, err
	}
	if err := s.check("linalg.Solve"); err != nil {
		return nil, Info{}, err
	}
	x, info, err := solve(op, mat.DenseCopyOf(b), s)
	if x != nil && iterative.IsWarning(err) {
		if ferr := iterative.CheckFinite("linalg.Solve", x.RawMatrix().Data); ferr != nil {
			x, err = nil, ferr
		}
	}
	finish(s, "solve", op, start, &info, err)
	return x, info, err
}

// InvQuad returns the inverse quadratic forms bⱼᵀA⁻¹bⱼ of the columns of B.
func InvQuad(op linop.Operator, b mat.Matrix, s Settings) ([]float64, Info, error) {
	x, info, err := Solve(op, b, s)
	if x == nil {
		return nil, info, err
	}
	bd := mat.DenseCopyOf(b)
	_, k := x.Dims()
	q := make([]float64, k)
	for j := range q {
		q[j] = colDot(bd, x, j)
	}
	return q, info, err
}

func solve(op linop.Operator, b *mat.Dense, s Settings) (*mat.Dense, Info, error) {
	switch o := op.(type) {
	case *linop.BlockDiag:
		return solveBlocks(o, b, s)
	case *linop.Scaled:
		c := o.Scalar()
		if !(c > 0) {
			return nil, Info{}, iterative.Numerical("linalg.Solve", "scaling by %v is not positive", c)
		}
		x, info, err := solve(o.Operand(), b, s)
		if x != nil {
			x.Scale(1/c, x)
		}
		return x, info, err
	}

	_, k := b.Dims()
	closed, ok := linop.SolveCost(op, s.DenseThreshold)
	strat, err := choose(s, closed, ok, cgCost(op, s, k))
	if err != nil {
		return nil, Info{}, fmt.Errorf("linalg: %v operator: %w", op.Kind(), err)
	}
	if strat == ClosedForm {
		x, err := linop.Solve(op, b, s.DenseThreshold)
		return x, Info{Strategy: ClosedForm}, err
	}
	return solveCG(op, b, s)
}

func solveBlocks(o *linop.BlockDiag, b *mat.Dense, s Settings) (*mat.Dense, Info, error) {
	n, k := b.Dims()
	x := mat.NewDense(n, k, nil)
	var (
		info Info
		werr error
	)
	for i, blk := range o.Blocks() {
		lo, hi := o.Offset(i), o.Offset(i+1)
		xi, bi, err := solve(blk, mat.DenseCopyOf(b.Slice(lo, hi, 0, k)), s)
		if !iterative.IsWarning(err) {
			return nil, info, err
		}
		x.Slice(lo, hi, 0, k).(*mat.Dense).Copy(xi)
		if i == 0 {
			info = bi
		} else {
			info.merge(bi)
		}
		werr = joinWarning(werr, err)
	}
	return x, info, werr
}

// solveCG solves with preconditioned CG, through LinearSolve for a single
// right-hand side and BatchCG for several.
func solveCG(op linop.Operator, b *mat.Dense, s Settings) (*mat.Dense, Info, error) {
	info := Info{Strategy: Iterative}
	if !op.Symmetric() {
		return nil, info, iterative.Numerical("linalg.Solve", "%v operator is not symmetric", op.Kind())
	}
	p, err := precond.ForOperator(op, s.PreconditionerRank)
	if err != nil {
		return nil, info, err
	}
	n, k := b.Dims()
	if k == 1 {
		res, err := iterative.LinearSolve(linop.MatrixOps(op), mat.Col(nil, 0, b), &iterative.CG{}, iterative.Settings{
			Tolerance:     s.Tolerance,
			MaxIterations: s.maxIterations(),
			PSolve:        vecPSolve(p, n),
			Precision:     s.Precision,
		})
		info.Iterations = res.Stats.Iterations
		info.MatVecs = res.Stats.MatVec
		info.ResidualNorm = res.Stats.ResidualNorm
		if !iterative.IsWarning(err) || res.X == nil {
			return nil, info, err
		}
		return mat.NewDense(n, 1, res.X), info, err
	}

	res, err := iterative.BatchCG(linop.BlockOps(op), b, iterative.BatchSettings{
		Tolerance:     s.Tolerance,
		MaxIterations: s.maxIterations(),
		PSolve:        blockPSolve(p),
		Precision:     s.Precision,
	})
	info.Iterations = res.Stats.Iterations
	info.MatVecs = res.Stats.MatVec
	info.ResidualNorm = res.Stats.ResidualNorm
	if !iterative.IsWarning(err) {
		return nil, info, err
	}
	return res.X, info, err
}

func vecPSolve(p precond.Preconditioner, n int) func(dst, rhs []float64) error {
	if p == nil {
		return nil
	}
	return func(dst, rhs []float64) error {
		return p.Apply(mat.NewDense(n, 1, dst), mat.NewDense(n, 1, rhs))
	}
}

func blockPSolve(p precond.Preconditioner) func(dst, rhs *mat.Dense) error {
	if p == nil {
		return nil
	}
	return p.Apply
}

func colDot(a, b *mat.Dense, j int) float64 {
	return mat.Dot(a.ColView(j), b.ColView(j))
}
