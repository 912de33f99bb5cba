// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package iterative

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// LanczosSettings holds settings for Lanczos.
type LanczosSettings struct {
	// Steps is the maximum number of
	// Lanczos steps, that is, the
	// maximum order of the computed
	// tridiagonal matrix. It must be
	// positive.
	Steps int

	// PSolve describes the
	// preconditioner solve M z = rhs.
	// If it is non-nil, the iteration
	// runs on M⁻¹A in the M-inner
	// product which is equivalent to
	// tridiagonalizing L⁻¹AL⁻ᵀ for
	// M = LLᵀ. If it is nil, M is
	// the identity.
	PSolve func(dst, rhs []float64) error

	// Precision is the precision at
	// which the Lanczos vectors are kept.
	Precision Precision
}

// LanczosResult holds the result of Lanczos.
type LanczosResult struct {
	// T is the computed tridiagonal
	// matrix.
	T Tridiagonal
	// StartNorm2 is the squared norm of
	// the starting vector in the
	// M⁻¹-inner product, zᵀM⁻¹z.
	StartNorm2 float64
	// Stats holds the statistics of the
	// iteration.
	Stats Stats
}

// Lanczos runs at most settings.Steps steps of the (preconditioned) Lanczos
// process for the symmetric matrix A started from z and returns the
// tridiagonal matrix T such that, with w = L⁻¹z/|L⁻¹z|,
//  wᵀ f(L⁻¹AL⁻ᵀ) w ≈ e₁ᵀ f(T) e₁.
// The Lanczos vectors are fully reorthogonalized. The process stops early
// when it finds an invariant subspace.
func Lanczos(a MatrixOps, z []float64, settings LanczosSettings) (LanczosResult, error) {
	stats := Stats{StartTime: time.Now()}
	if a.MatVec == nil {
		panic("iterative: nil matrix-vector multiplication")
	}
	if settings.Steps <= 0 {
		return LanczosResult{}, Numerical("iterative.Lanczos", "number of steps %d not positive", settings.Steps)
	}
	n := len(z)
	if n == 0 {
		return LanczosResult{}, fmt.Errorf("iterative: empty starting vector: %w", ErrShape)
	}
	steps := settings.Steps
	if steps > n {
		steps = n
	}
	prec := settings.Precision
	psolve := func(dst, src []float64) error {
		if settings.PSolve == nil {
			copy(dst, src)
			return nil
		}
		stats.PSolve++
		if err := settings.PSolve(dst, src); err != nil {
			return err
		}
		prec.Round(dst)
		return nil
	}

	// u holds the Lanczos vectors in the original space and y = M⁻¹u.
	ld := n
	u := make([]float64, ld*(steps+1))
	y := make([]float64, ld*(steps+1))
	w := make([]float64, n)

	copy(u[:n], z)
	if err := psolve(y[:n], u[:n]); err != nil {
		return LanczosResult{}, err
	}
	nrm2 := floats.Dot(u[:n], y[:n])
	if nrm2 < 0 {
		return LanczosResult{}, Numerical("iterative.Lanczos", "preconditioner is not positive definite (zᵀM⁻¹z = %v)", nrm2)
	}
	res := LanczosResult{StartNorm2: nrm2}
	if nrm2 == 0 {
		stats.Runtime = time.Since(stats.StartTime)
		res.Stats = stats
		return res, nil
	}
	beta := math.Sqrt(nrm2)
	floats.Scale(1/beta, u[:n])
	floats.Scale(1/beta, y[:n])

	var diag, off []float64
	beta = 0
	for i := 0; i < steps; i++ {
		ui := u[i*ld : i*ld+n]
		yi := y[i*ld : i*ld+n]

		a.MatVec(w, yi)
		stats.MatVec++
		prec.Round(w)

		alpha := floats.Dot(yi, w) // α_i = y_iᵀ A y_i
		if alpha <= 0 {
			return LanczosResult{}, Numerical("iterative.Lanczos", "matrix is not positive definite (α = %v)", alpha)
		}
		diag = append(diag, alpha)
		floats.AddScaled(w, -alpha, ui)
		if i > 0 {
			floats.AddScaled(w, -beta, u[(i-1)*ld:(i-1)*ld+n])
		}
		// Full reorthogonalization against all previous vectors in the
		// M⁻¹-inner product, twice is enough.
		for pass := 0; pass < 2; pass++ {
			for k := 0; k <= i; k++ {
				c := floats.Dot(y[k*ld:k*ld+n], w)
				floats.AddScaled(w, -c, u[k*ld:k*ld+n])
			}
		}
		stats.Iterations++
		if i == steps-1 {
			break
		}

		next := y[(i+1)*ld : (i+1)*ld+n]
		if err := psolve(next, w); err != nil {
			return LanczosResult{}, err
		}
		b2 := floats.Dot(w, next)
		if b2 <= 0 || math.Sqrt(b2) <= 1e3*prec.Eps()*alpha {
			// Invariant subspace found.
			break
		}
		beta = math.Sqrt(b2)
		off = append(off, beta)
		copy(u[(i+1)*ld:(i+1)*ld+n], w)
		floats.Scale(1/beta, u[(i+1)*ld:(i+1)*ld+n])
		floats.Scale(1/beta, next)
	}

	res.T = Tridiagonal{Diag: diag, Off: off}
	stats.Runtime = time.Since(stats.StartTime)
	res.Stats = stats
	return res, nil
}
