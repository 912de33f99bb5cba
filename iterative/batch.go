// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package iterative

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// BlockOps describes the symmetric matrix of a
// linear system with several right-hand sides.
type BlockOps struct {
	// Compute A*X for the n×k matrix X
	// and store the result into dst.
	// It must be non-nil.
	MatMul func(dst, x *mat.Dense)
}

// BatchSettings holds settings for BatchCG.
type BatchSettings struct {
	// X0 is an initial guess with the
	// same dimensions as the right-hand
	// side. If it is nil, zero is used.
	X0 *mat.Dense

	// Tolerance is the relative residual
	// tolerance applied to every column.
	// Zero means 1e-6.
	Tolerance float64

	// MaxIterations is the limit on the
	// number of lockstep iterations. Zero
	// means twice the dimension.
	MaxIterations int

	// PSolve stores into dst the solution
	// of M Z = R for all columns at once.
	// If it is nil, M is the identity.
	PSolve func(dst, rhs *mat.Dense) error

	// Precision is the precision at
	// which iterates are kept.
	Precision Precision

	// RecordSteps is the number of
	// leading CG coefficients recorded
	// per column for Lanczos
	// tridiagonalization. Zero disables
	// recording.
	RecordSteps int
}

// BatchResult holds the result of BatchCG.
type BatchResult struct {
	// X holds the approximate solutions
	// column by column.
	X *mat.Dense

	// Stats aggregates all columns.
	// Stats.ResidualNorm is the largest
	// relative residual norm.
	Stats Stats

	// ResidualNorms are the final
	// relative residual norms per column.
	ResidualNorms []float64

	// Iterations is the number of
	// iterations each column was
	// active.
	Iterations []int

	// Rho0 holds rᵀM⁻¹r of the initial
	// residual of every column.
	Rho0 []float64

	// Alphas and Betas hold the recorded
	// CG coefficients per column. For
	// column j, len(Betas[j]) is
	// len(Alphas[j])-1 when non-empty.
	Alphas, Betas [][]float64
}

// Tridiagonal returns the Lanczos tridiagonal matrix of column j implied by
// the recorded CG coefficients.
func (r BatchResult) Tridiagonal(j int) Tridiagonal {
	return TridiagonalFromCG(r.Alphas[j], r.Betas[j])
}

// BatchCG solves A X = B with preconditioned conjugate gradients for all
// columns of B simultaneously. Every iteration performs one block matrix
// multiply and one block preconditioner solve; the scalar recurrences are
// kept per column. Columns advance in lockstep and share the iteration
// counter; a column that has converged is frozen until all columns converge
// or the iteration limit is reached.
//
// As with LinearSolve, reaching the iteration limit is reported with a
// *ConvergenceWarning and the best iterate of each column is returned.
func BatchCG(a BlockOps, b *mat.Dense, settings BatchSettings) (BatchResult, error) {
	stats := Stats{StartTime: time.Now()}
	if a.MatMul == nil {
		panic("iterative: nil matrix-matrix multiplication")
	}
	n, k := b.Dims()
	if n == 0 || k == 0 {
		return BatchResult{Stats: stats}, nil
	}
	if settings.X0 != nil {
		if r, c := settings.X0.Dims(); r != n || c != k {
			return BatchResult{}, fmt.Errorf("iterative: initial guess is %d×%d, want %d×%d: %w", r, c, n, k, ErrShape)
		}
	}
	s := Settings{Tolerance: settings.Tolerance, MaxIterations: settings.MaxIterations, Precision: settings.Precision}
	if err := defaultSettings(&s, n); err != nil {
		return BatchResult{}, err
	}
	if settings.RecordSteps < 0 {
		return BatchResult{}, Numerical("iterative.BatchCG", "negative number of recorded steps %d", settings.RecordSteps)
	}
	prec := s.Precision

	res := BatchResult{
		X:             mat.NewDense(n, k, nil),
		ResidualNorms: make([]float64, k),
		Iterations:    make([]int, k),
		Rho0:          make([]float64, k),
		Alphas:        make([][]float64, k),
		Betas:         make([][]float64, k),
	}

	x := mat.NewDense(n, k, nil)
	r := mat.NewDense(n, k, nil)
	if settings.X0 != nil {
		x.Copy(settings.X0)
		a.MatMul(r, x)
		stats.MatVec += k
		roundDense(prec, r)
		r.Sub(b, r) // R = B - AX
	} else {
		r.Copy(b)
	}

	bnorm := make([]float64, k)
	best := make([]float64, k)
	active := make([]bool, k)
	nactive := 0
	for j := 0; j < k; j++ {
		bnorm[j] = colNorm(b, j)
		if bnorm[j] == 0 {
			// Zero right-hand side: the solution is zero.
			setCol(x, j, 0)
			setCol(r, j, 0)
			continue
		}
		best[j] = colNorm(r, j) / bnorm[j]
		if best[j] >= s.Tolerance {
			active[j] = true
			nactive++
		}
	}
	res.X.Copy(x)
	copy(res.ResidualNorms, best)
	if nactive == 0 {
		stats.ResidualNorm = maxOf(best)
		stats.Runtime = time.Since(stats.StartTime)
		res.Stats = stats
		return res, nil
	}

	z := mat.NewDense(n, k, nil)
	p := mat.NewDense(n, k, nil)
	ap := mat.NewDense(n, k, nil)
	psolve := func() error {
		if settings.PSolve == nil {
			z.Copy(r)
			return nil
		}
		if err := settings.PSolve(z, r); err != nil {
			return err
		}
		stats.PSolve += k
		roundDense(prec, z)
		return nil
	}

	if err := psolve(); err != nil {
		return res, err
	}
	p.Copy(z)
	rho := make([]float64, k)
	for j := 0; j < k; j++ {
		rho[j] = colDot(r, z, j)
		res.Rho0[j] = rho[j]
		if active[j] && rho[j] <= 0 {
			return res, Numerical("iterative.BatchCG", "preconditioner is not positive definite (ρ = %v)", rho[j])
		}
	}

	cur := append([]float64(nil), best...)
	var err error
	for {
		if nactive == 0 {
			break
		}
		if stats.Iterations == s.MaxIterations {
			err = &ConvergenceWarning{
				Op:           "iterative.BatchCG",
				Iterations:   stats.Iterations,
				ResidualNorm: maxOf(best),
				Tolerance:    s.Tolerance,
			}
			break
		}

		a.MatMul(ap, p)
		stats.MatVec += k
		roundDense(prec, ap)

		for j := 0; j < k; j++ {
			if !active[j] {
				continue
			}
			pap := colDot(p, ap, j)
			if pap <= 0 {
				return res, Numerical("iterative.BatchCG", "matrix is not positive definite (pᵀAp = %v)", pap)
			}
			alpha := rho[j] / pap
			colAddScaled(x, alpha, p, j)   // x = x + α p
			colAddScaled(r, -alpha, ap, j) // r = r - α Ap
			roundCol(prec, x, j)
			if len(res.Alphas[j]) < settings.RecordSteps {
				res.Alphas[j] = append(res.Alphas[j], alpha)
			}
			res.Iterations[j]++

			rel := colNorm(r, j) / bnorm[j]
			cur[j] = rel
			if rel < best[j] {
				best[j] = rel
				copyCol(res.X, x, j)
			}
			if rel < s.Tolerance {
				active[j] = false
				nactive--
			}
		}
		stats.Iterations++
		stats.ResidualHistory = append(stats.ResidualHistory, maxOf(best))
		stats.Residuals = append(stats.Residuals, maxOf(cur))
		if nactive == 0 {
			break
		}

		if err := psolve(); err != nil {
			return res, err
		}
		for j := 0; j < k; j++ {
			if !active[j] {
				continue
			}
			rhoNew := colDot(r, z, j)
			if rhoNew <= 0 {
				return res, Numerical("iterative.BatchCG", "preconditioner is not positive definite (ρ = %v)", rhoNew)
			}
			beta := rhoNew / rho[j]
			rho[j] = rhoNew
			// p = z + β p
			for i := 0; i < n; i++ {
				p.Set(i, j, z.At(i, j)+beta*p.At(i, j))
			}
			if len(res.Betas[j]) < len(res.Alphas[j]) && len(res.Alphas[j]) < settings.RecordSteps {
				res.Betas[j] = append(res.Betas[j], beta)
			}
		}
	}

	copy(res.ResidualNorms, best)
	stats.ResidualNorm = maxOf(best)
	stats.Runtime = time.Since(stats.StartTime)
	res.Stats = stats
	return res, err
}

func roundDense(p Precision, m *mat.Dense) {
	if p != Float32 {
		return
	}
	raw := m.RawMatrix()
	for i := 0; i < raw.Rows; i++ {
		p.Round(raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols])
	}
}

func roundCol(p Precision, m *mat.Dense, j int) {
	if p != Float32 {
		return
	}
	raw := m.RawMatrix()
	for i := 0; i < raw.Rows; i++ {
		idx := i*raw.Stride + j
		raw.Data[idx] = float64(float32(raw.Data[idx]))
	}
}

func colDot(a, b *mat.Dense, j int) float64 {
	ra, rb := a.RawMatrix(), b.RawMatrix()
	var s float64
	for i := 0; i < ra.Rows; i++ {
		s += ra.Data[i*ra.Stride+j] * rb.Data[i*rb.Stride+j]
	}
	return s
}

func colNorm(a *mat.Dense, j int) float64 {
	return math.Sqrt(colDot(a, a, j))
}

func colAddScaled(dst *mat.Dense, alpha float64, src *mat.Dense, j int) {
	rd, rs := dst.RawMatrix(), src.RawMatrix()
	for i := 0; i < rd.Rows; i++ {
		rd.Data[i*rd.Stride+j] += alpha * rs.Data[i*rs.Stride+j]
	}
}

func copyCol(dst, src *mat.Dense, j int) {
	rd, rs := dst.RawMatrix(), src.RawMatrix()
	for i := 0; i < rd.Rows; i++ {
		rd.Data[i*rd.Stride+j] = rs.Data[i*rs.Stride+j]
	}
}

func setCol(dst *mat.Dense, j int, v float64) {
	rd := dst.RawMatrix()
	for i := 0; i < rd.Rows; i++ {
		rd.Data[i*rd.Stride+j] = v
	}
}

func maxOf(v []float64) float64 {
	var m float64
	for _, x := range v {
		m = math.Max(m, x)
	}
	return m
}
