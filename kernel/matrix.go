// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/vladimir-ch/lazygp/iterative"
	"github.com/vladimir-ch/lazygp/linop"
)

// evalCost is the approximate number of flops of one kernel evaluation in
// d dimensions.
func evalCost(d int) float64 { return float64(3*d + 20) }

// Matrix returns the covariance operator K with Kᵢⱼ = k(xᵢ, xⱼ) for the
// points in the rows of x. For at most threshold points the matrix is
// formed densely, otherwise its entries are evaluated on demand.
func Matrix(k Kernel, x mat.Matrix, threshold int) linop.Operator {
	xd := mat.DenseCopyOf(x)
	n, d := xd.Dims()
	if n <= threshold {
		s := mat.NewSymDense(n, nil)
		for i := 0; i < n; i++ {
			xi := xd.RawRowView(i)
			for j := i; j < n; j++ {
				s.SetSym(i, j, k.Eval(xi, xd.RawRowView(j)))
			}
		}
		return linop.NewDense(s)
	}
	return linop.NewImplicit(n, func(i, j int) float64 {
		return k.Eval(xd.RawRowView(i), xd.RawRowView(j))
	}, evalCost(d))
}

// Cross returns the n×m matrix k(xᵢ, zⱼ) for the rows of x and z.
func Cross(k Kernel, x, z mat.Matrix) (*mat.Dense, error) {
	xd, zd := mat.DenseCopyOf(x), mat.DenseCopyOf(z)
	n, d := xd.Dims()
	m, dz := zd.Dims()
	if d != dz {
		return nil, fmt.Errorf("kernel: points of dimension %d and %d: %w", d, dz, iterative.ErrShape)
	}
	c := mat.NewDense(n, m, nil)
	for i := 0; i < n; i++ {
		xi := xd.RawRowView(i)
		for j := 0; j < m; j++ {
			c.Set(i, j, k.Eval(xi, zd.RawRowView(j)))
		}
	}
	return c, nil
}

// MatrixGrad returns one operator per hyperparameter of k holding the
// derivatives of K with respect to that log-hyperparameter.
func MatrixGrad(k Kernel, x mat.Matrix, threshold int) []linop.Operator {
	xd := mat.DenseCopyOf(x)
	n, d := xd.Dims()
	p := k.NumHyper()
	ops := make([]linop.Operator, p)
	if n <= threshold {
		ss := make([]*mat.SymDense, p)
		for h := range ss {
			ss[h] = mat.NewSymDense(n, nil)
		}
		deriv := make([]float64, p)
		for i := 0; i < n; i++ {
			xi := xd.RawRowView(i)
			for j := i; j < n; j++ {
				k.EvalGrad(deriv, xi, xd.RawRowView(j))
				for h, v := range deriv {
					ss[h].SetSym(i, j, v)
				}
			}
		}
		for h, s := range ss {
			ops[h] = linop.NewDense(s)
		}
		return ops
	}
	for h := range ops {
		h := h
		ops[h] = linop.NewImplicit(n, func(i, j int) float64 {
			deriv := make([]float64, p)
			k.EvalGrad(deriv, xd.RawRowView(i), xd.RawRowView(j))
			return deriv[h]
		}, evalCost(d)*float64(p))
	}
	return ops
}

type separable interface {
	Separable() bool
}

// Grid returns the covariance operator of a kernel that factors over
// dimensions on the Cartesian product of the one-dimensional grids. The
// point with grid indices (i₀, i₁, …) has index (i₀·n₁ + i₁)·n₂ + … and the
// operator is the Kronecker product of the per-dimension matrices.
//
// k must be an RBF or Periodic kernel, possibly wrapped by Scale.
func Grid(k Kernel, grids [][]float64) (linop.Operator, error) {
	if len(grids) == 0 {
		return nil, fmt.Errorf("kernel: empty grid: %w", iterative.ErrShape)
	}
	scale := 1.0
	if s, ok := k.(Scale); ok {
		scale = math.Exp(s.LogScale)
		k = s.Base
	}
	if sep, ok := k.(separable); !ok || !sep.Separable() {
		return nil, fmt.Errorf("kernel: %T does not factor over dimensions", k)
	}
	factors := make([]linop.Operator, len(grids))
	for i, g := range grids {
		if len(g) == 0 {
			return nil, fmt.Errorf("kernel: empty grid dimension %d: %w", i, iterative.ErrShape)
		}
		factors[i] = Matrix(k, mat.NewDense(len(g), 1, append([]float64(nil), g...)), len(g))
	}
	op, err := linop.Kron(factors...)
	if err != nil {
		return nil, err
	}
	return linop.Scale(scale, op), nil
}

// GridPoints returns the points of the Cartesian product of the grids in the
// order used by Grid.
func GridPoints(grids [][]float64) *mat.Dense {
	n := 1
	for _, g := range grids {
		n *= len(g)
	}
	x := mat.NewDense(n, len(grids), nil)
	for i := 0; i < n; i++ {
		r := i
		for d := len(grids) - 1; d >= 0; d-- {
			g := grids[d]
			x.Set(i, d, g[r%len(g)])
			r /= len(g)
		}
	}
	return x
}

// Multitask returns the covariance B ⊗ K of a multitask GP with task
// covariance B and data covariance K of kernel k at the rows of x. The
// observation of task t at point i has index t·n + i.
func Multitask(taskCov mat.Symmetric, k Kernel, x mat.Matrix, threshold int) (linop.Operator, error) {
	return linop.Kron(linop.NewDense(taskCov), Matrix(k, x, threshold))
}

// Inducing returns the Nyström approximation K_xz (K_zz + jitter·I)⁻¹ K_zx
// of the covariance at the rows of x with inducing points in the rows of z
// as the low-rank operator UUᵀ with U = K_xz L⁻ᵀ, where LLᵀ = K_zz + jitter·I.
func Inducing(k Kernel, x, z mat.Matrix, jitter float64) (*linop.LowRank, error) {
	kxz, err := Cross(k, x, z)
	if err != nil {
		return nil, err
	}
	zd := mat.DenseCopyOf(z)
	m, _ := zd.Dims()
	kzz := mat.NewSymDense(m, nil)
	for i := 0; i < m; i++ {
		zi := zd.RawRowView(i)
		for j := i; j < m; j++ {
			v := k.Eval(zi, zd.RawRowView(j))
			if i == j {
				v += jitter
			}
			kzz.SetSym(i, j, v)
		}
	}
	var chol mat.Cholesky
	if !chol.Factorize(kzz) {
		return nil, iterative.Numerical("kernel.Inducing", "inducing covariance is not positive definite")
	}
	var l, li mat.TriDense
	chol.LTo(&l)
	if err := li.InverseTri(&l); err != nil {
		return nil, iterative.Numerical("kernel.Inducing", "%v", err)
	}
	n, _ := kxz.Dims()
	u := mat.NewDense(n, m, nil)
	u.Mul(kxz, li.T())
	return linop.NewLowRank(u), nil
}
