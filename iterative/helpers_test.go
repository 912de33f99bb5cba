// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package iterative

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/mat"
)

type testCase struct {
	name string
	n    int
	a    []float64 // Upper triangle of a symmetric matrix, row-major.
	ops  MatrixOps
}

func (tc testCase) sym() *mat.SymDense {
	s := mat.NewSymDense(tc.n, nil)
	for i := 0; i < tc.n; i++ {
		for j := i; j < tc.n; j++ {
			s.SetSym(i, j, tc.a[i*tc.n+j])
		}
	}
	return s
}

func (tc testCase) block() BlockOps {
	s := tc.sym()
	return BlockOps{
		MatMul: func(dst, x *mat.Dense) {
			dst.Mul(s, x)
		},
	}
}

// randomSPD returns a random symmetric diagonally dominant matrix of order n.
func randomSPD(n int, rnd *rand.Rand) testCase {
	a := make([]float64, n*n)
	lda := n
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			a[i*lda+j] = rnd.Float64()
		}
	}
	for i := 0; i < n; i++ {
		a[i*lda+i] += float64(n)
	}
	return testCase{
		name: fmt.Sprintf("randomSPD%d", n),
		n:    n,
		a:    a,
		ops: MatrixOps{
			MatVec: func(dst, x []float64) {
				blas64.Implementation().Dsymv(blas.Upper, n, 1, a, lda, x, 1, 0, dst, 1)
			},
		},
	}
}

// laplacian returns the 1D discrete Laplacian of order n shifted by shift.
func laplacian(n int, shift float64) testCase {
	a := make([]float64, n*n)
	for i := 0; i < n; i++ {
		a[i*n+i] = 2 + shift
		if i+1 < n {
			a[i*n+i+1] = -1
		}
	}
	tc := testCase{name: fmt.Sprintf("laplacian%d", n), n: n, a: a}
	tc.ops = MatrixOps{
		MatVec: func(dst, x []float64) {
			blas64.Implementation().Dsymv(blas.Upper, n, 1, a, n, x, 1, 0, dst, 1)
		},
	}
	return tc
}

func jacobi(tc testCase) func(dst, rhs []float64) error {
	return func(dst, rhs []float64) error {
		for i := range dst {
			dst[i] = rhs[i] / tc.a[i*tc.n+i]
		}
		return nil
	}
}
