// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package precond provides preconditioners for conjugate gradient solves with
// GP covariance operators.
//
// A preconditioner M approximates the operator A and is cheap to solve with.
// It only affects the speed of convergence: any symmetric positive definite
// M leaves the solution of preconditioned CG unchanged.
package precond

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/vladimir-ch/lazygp/iterative"
	"github.com/vladimir-ch/lazygp/linop"
)

// Preconditioner is a symmetric positive definite approximation M of an
// operator.
type Preconditioner interface {
	// Apply stores M⁻¹src in dst.
	Apply(dst, src *mat.Dense) error
	// LogDet returns log det M.
	LogDet() float64
	// Size returns the order of M.
	Size() int
}

// Sampler is implemented by preconditioners that can draw samples from
// N(0, M). Stochastic log-determinant estimation with such probes only
// needs to estimate log det(M⁻¹A).
type Sampler interface {
	// Sample fills the columns of dst with independent draws from N(0, M).
	Sample(dst *mat.Dense, rnd *rand.Rand)
}

// ForOperator returns a preconditioner for op. For K + D it is a rank-limited
// pivoted Cholesky approximation of K plus D; for any other operator it is
// the Jacobi preconditioner. If rank is zero, ForOperator returns nil, which
// callers treat as the identity.
func ForOperator(op linop.Operator, rank int) (Preconditioner, error) {
	if rank < 0 {
		return nil, iterative.Numerical("precond.ForOperator", "negative rank %d", rank)
	}
	if rank == 0 {
		return nil, nil
	}
	if ad, ok := op.(*linop.AddedDiag); ok {
		p, err := PivotedCholesky(ad.Base(), rank, ad.Diagonal())
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	p, err := Jacobi(op)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Diagonal is the preconditioner M = diag(A).
type Diagonal struct {
	d []float64
}

// Jacobi returns the diagonal preconditioner of op. It fails with a
// *iterative.NumericalError if the diagonal of op is not positive.
func Jacobi(op linop.Operator) (*Diagonal, error) {
	d := linop.Diag(op)
	for i, v := range d {
		if !(v > 0) {
			return nil, iterative.Numerical("precond.Jacobi", "diagonal entry %d is %v, not positive", i, v)
		}
	}
	return &Diagonal{d: d}, nil
}

func (p *Diagonal) Size() int { return len(p.d) }

func (p *Diagonal) Apply(dst, src *mat.Dense) error {
	if err := checkApply(p, dst, src); err != nil {
		return err
	}
	_, c := src.Dims()
	for i, v := range p.d {
		for j := 0; j < c; j++ {
			dst.Set(i, j, src.At(i, j)/v)
		}
	}
	return nil
}

func (p *Diagonal) LogDet() float64 {
	var s float64
	for _, v := range p.d {
		s += math.Log(v)
	}
	return s
}

func (p *Diagonal) Sample(dst *mat.Dense, rnd *rand.Rand) {
	_, c := dst.Dims()
	for i, v := range p.d {
		sd := math.Sqrt(v)
		for j := 0; j < c; j++ {
			dst.Set(i, j, sd*rnd.NormFloat64())
		}
	}
}

func checkApply(p Preconditioner, dst, src *mat.Dense) error {
	r, c := src.Dims()
	dr, dc := dst.Dims()
	if r != p.Size() || dr != r || dc != c {
		return fmt.Errorf("precond: order %d preconditioner applied to %d×%d into %d×%d: %w", p.Size(), r, c, dr, dc, iterative.ErrShape)
	}
	return nil
}

// LowRankDiag is the preconditioner M = L Lᵀ + D built by PivotedCholesky.
type LowRankDiag struct {
	l  *mat.Dense // n×m, nil if m == 0
	d  []float64
	op linop.Operator
	f  linop.Factor

	traceErr float64
}

// pivotTol is the pivot size, relative to the largest diagonal entry, below
// which the factorization is considered exhausted.
const pivotTol = 1e-10

// PivotedCholesky computes the rank-limited partial pivoted Cholesky
// factorization K ≈ L Lᵀ, L of size n×m with m ≤ rank, and returns the
// preconditioner L Lᵀ + noise. The factorization costs O(n·rank²) plus rank
// column evaluations of K and stops early when the remaining diagonal is
// numerically zero.
//
// noise must be positive; otherwise a *iterative.NumericalError is returned.
func PivotedCholesky(k linop.Operator, rank int, noise *linop.Diagonal) (*LowRankDiag, error) {
	n := k.Size()
	if noise == nil || noise.Size() != n {
		return nil, iterative.Numerical("precond.PivotedCholesky", "missing or mismatched noise diagonal")
	}
	d := noise.Values()
	for i, v := range d {
		if !(v > 0) {
			return nil, iterative.Numerical("precond.PivotedCholesky", "noise entry %d is %v, not positive", i, v)
		}
	}
	if rank < 0 {
		return nil, iterative.Numerical("precond.PivotedCholesky", "negative rank %d", rank)
	}
	if rank > n {
		rank = n
	}

	resid := linop.Diag(k)
	done := make([]bool, n)
	tol := pivotTol * floats.Max(resid)
	cols := make([][]float64, 0, rank)
	col := make([]float64, n)
	for m := 0; m < rank; m++ {
		piv, pval := -1, tol
		for i, v := range resid {
			if !done[i] && v > pval {
				piv, pval = i, v
			}
		}
		if piv < 0 {
			break
		}
		if err := linop.Column(col, k, piv); err != nil {
			return nil, err
		}
		lm := make([]float64, n)
		copy(lm, col)
		for _, lj := range cols {
			floats.AddScaled(lm, -lj[piv], lj)
		}
		floats.Scale(1/math.Sqrt(pval), lm)
		for i, v := range lm {
			resid[i] -= v * v
		}
		resid[piv] = 0
		done[piv] = true
		cols = append(cols, lm)
	}

	p := &LowRankDiag{d: d}
	for i, v := range resid {
		if !done[i] && v > 0 {
			p.traceErr += v
		}
	}
	if len(cols) > 0 {
		p.l = mat.NewDense(n, len(cols), nil)
		for j, c := range cols {
			p.l.SetCol(j, c)
		}
		op, err := linop.Add(linop.NewLowRank(p.l), noise)
		if err != nil {
			return nil, err
		}
		p.op = op
	} else {
		p.op = noise
	}
	f, err := linop.Factorize(p.op, 0)
	if err != nil {
		return nil, err
	}
	p.f = f
	return p, nil
}

// Rank returns the number of columns of L.
func (p *LowRankDiag) Rank() int {
	if p.l == nil {
		return 0
	}
	_, m := p.l.Dims()
	return m
}

// Factor returns a copy of L.
func (p *LowRankDiag) Factor() *mat.Dense {
	if p.l == nil {
		return nil
	}
	return mat.DenseCopyOf(p.l)
}

// TraceError returns tr(K - L Lᵀ) over the rows that were not pivoted,
// the trace norm of the approximation error when K is positive
// semi-definite.
func (p *LowRankDiag) TraceError() float64 { return p.traceErr }

// Operator returns M as a lazy operator.
func (p *LowRankDiag) Operator() linop.Operator { return p.op }

func (p *LowRankDiag) Size() int { return len(p.d) }

func (p *LowRankDiag) Apply(dst, src *mat.Dense) error {
	if err := checkApply(p, dst, src); err != nil {
		return err
	}
	return p.f.SolveTo(dst, src)
}

func (p *LowRankDiag) LogDet() float64 { return p.f.LogDet() }

// Sample fills dst with draws L e₁ + D^½ e₂ where e₁ and e₂ are standard
// normal.
func (p *LowRankDiag) Sample(dst *mat.Dense, rnd *rand.Rand) {
	n, c := dst.Dims()
	for i := 0; i < n; i++ {
		sd := math.Sqrt(p.d[i])
		for j := 0; j < c; j++ {
			dst.Set(i, j, sd*rnd.NormFloat64())
		}
	}
	if p.l == nil {
		return
	}
	_, m := p.l.Dims()
	e := mat.NewDense(m, c, nil)
	for i := 0; i < m; i++ {
		for j := 0; j < c; j++ {
			e.Set(i, j, rnd.NormFloat64())
		}
	}
	var le mat.Dense
	le.Mul(p.l, e)
	dst.Add(dst, &le)
}
