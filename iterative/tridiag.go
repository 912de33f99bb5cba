// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package iterative

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Tridiagonal is a symmetric tridiagonal matrix with the main diagonal Diag
// and the off-diagonal Off, len(Off) == len(Diag)-1.
type Tridiagonal struct {
	Diag []float64
	Off  []float64
}

// Order returns the order of t.
func (t Tridiagonal) Order() int {
	return len(t.Diag)
}

// TridiagonalFromCG returns the Lanczos tridiagonal matrix implied by the
// coefficients of the first m iterations of (preconditioned) CG,
//  T_jj     = 1/α_j + β_j/α_{j-1},
//  T_{j,j+1} = √β_{j+1} / α_j,
// where alphas[j] = α_j and betas[j-1] = β_j.
func TridiagonalFromCG(alphas, betas []float64) Tridiagonal {
	m := len(alphas)
	if m == 0 {
		return Tridiagonal{}
	}
	if len(betas) < m-1 {
		panic("iterative: too few CG β coefficients")
	}
	t := Tridiagonal{
		Diag: make([]float64, m),
		Off:  make([]float64, m-1),
	}
	for j := 0; j < m; j++ {
		t.Diag[j] = 1 / alphas[j]
		if j > 0 {
			t.Diag[j] += betas[j-1] / alphas[j-1]
		}
		if j < m-1 {
			t.Off[j] = math.Sqrt(betas[j]) / alphas[j]
		}
	}
	return t
}

// Dense returns t as a symmetric dense matrix.
func (t Tridiagonal) Dense() *mat.SymDense {
	m := t.Order()
	s := mat.NewSymDense(m, nil)
	for i, d := range t.Diag {
		s.SetSym(i, i, d)
		if i < m-1 {
			s.SetSym(i, i+1, t.Off[i])
		}
	}
	return s
}

// Quad returns the Gauss quadrature estimate e₁ᵀ f(T) e₁ = Σ τ_k² f(θ_k)
// where θ_k are the eigenvalues of T and τ_k the first components of its
// normalized eigenvectors.
func (t Tridiagonal) Quad(f func(float64) float64) (float64, error) {
	m := t.Order()
	if m == 0 {
		return 0, nil
	}
	if len(t.Off) != m-1 {
		panic("iterative: malformed tridiagonal matrix")
	}
	if m == 1 {
		return f(t.Diag[0]), nil
	}
	var es mat.EigenSym
	if ok := es.Factorize(t.Dense(), true); !ok {
		return 0, Numerical("iterative.Tridiagonal.Quad", "eigendecomposition failed")
	}
	theta := es.Values(nil)
	var ev mat.Dense
	es.VectorsTo(&ev)
	var q float64
	for k, th := range theta {
		tau := ev.At(0, k)
		q += tau * tau * f(th)
	}
	return q, nil
}

// QuadLog returns e₁ᵀ log(T) e₁. It fails with a *NumericalError if T has a
// non-positive eigenvalue.
func (t Tridiagonal) QuadLog() (float64, error) {
	var (
		bad    float64
		failed bool
	)
	q, err := t.Quad(func(th float64) float64 {
		if th <= 0 {
			bad, failed = th, true
			return 0
		}
		return math.Log(th)
	})
	if err != nil {
		return 0, err
	}
	if failed || math.IsNaN(q) {
		return 0, Numerical("iterative.Tridiagonal.QuadLog", "non-positive Ritz value %v", bad)
	}
	return q, nil
}
