// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package iterative

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestBatchCG(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for _, tc := range []testCase{
		randomSPD(1, rnd),
		randomSPD(5, rnd),
		randomSPD(30, rnd),
		laplacian(40, 0.5),
	} {
		n := tc.n
		const k = 4
		b := mat.NewDense(n, k, nil)
		for i := 0; i < n; i++ {
			for j := 0; j < k-1; j++ {
				b.Set(i, j, rnd.NormFloat64())
			}
		}
		// The last column is zero.
		pjac := jacobi(tc)
		psolve := func(dst, rhs *mat.Dense) error {
			col := make([]float64, n)
			out := make([]float64, n)
			for j := 0; j < k; j++ {
				mat.Col(col, j, rhs)
				_ = pjac(out, col)
				dst.SetCol(j, out)
			}
			return nil
		}
		res, err := BatchCG(tc.block(), b, BatchSettings{Tolerance: 1e-12, PSolve: psolve})
		if err != nil {
			t.Fatalf("Case %v: unexpected error %v", tc.name, err)
		}
		for j := 0; j < k; j++ {
			bj := mat.Col(nil, j, b)
			single, err := LinearSolve(tc.ops, bj, &CG{}, Settings{Tolerance: 1e-12, PSolve: pjac})
			if err != nil {
				t.Fatalf("Case %v: unexpected error %v", tc.name, err)
			}
			got := mat.Col(nil, j, res.X)
			if dist := floats.Distance(got, single.X, math.Inf(1)); dist > 1e-9 {
				t.Errorf("Case %v: column %d differs from single solve by %v", tc.name, j, dist)
			}
		}
		if res.Iterations[k-1] != 0 || res.ResidualNorms[k-1] != 0 {
			t.Errorf("Case %v: zero column iterated %d times", tc.name, res.Iterations[k-1])
		}
		for j := 0; j < k; j++ {
			if res.Iterations[j] > res.Stats.Iterations {
				t.Errorf("Case %v: column %d ran %d iterations, more than %d", tc.name, j, res.Iterations[j], res.Stats.Iterations)
			}
		}
		h, cur := res.Stats.ResidualHistory, res.Stats.Residuals
		if len(h) != res.Stats.Iterations || len(cur) != len(h) {
			t.Fatalf("Case %v: history has %d and %d entries, want %d", tc.name, len(h), len(cur), res.Stats.Iterations)
		}
		for i := range h {
			if h[i] > cur[i] {
				t.Errorf("Case %v: best residual %v above current %v at iteration %d", tc.name, h[i], cur[i], i)
			}
		}
	}
}

func TestBatchCGIterationLimit(t *testing.T) {
	tc := laplacian(50, 0.01)
	b := mat.NewDense(tc.n, 2, nil)
	for i := 0; i < tc.n; i++ {
		b.Set(i, 0, 1)
		b.Set(i, 1, math.Sin(float64(i)))
	}
	res, err := BatchCG(tc.block(), b, BatchSettings{Tolerance: 1e-12, MaxIterations: 3})
	w, ok := AsWarning(err)
	if !ok {
		t.Fatalf("expected a convergence warning, got %v", err)
	}
	if w.Iterations != 3 || res.Iterations[0] != 3 || res.Iterations[1] != 3 {
		t.Errorf("columns did not advance in lockstep: %v", res.Iterations)
	}
	if err := CheckFinite("test", res.X.RawMatrix().Data); err != nil {
		t.Error(err)
	}
}

func TestTridiagonalFromCG(t *testing.T) {
	// Without preconditioning the CG coefficients reproduce the Lanczos
	// tridiagonal matrix started from b.
	tc := randomSPD(12, rand.New(rand.NewSource(2)))
	b := make([]float64, tc.n)
	for i := range b {
		b[i] = float64(i%3) + 1
	}
	const steps = 5
	res, err := BatchCG(tc.block(), mat.NewDense(tc.n, 1, b), BatchSettings{Tolerance: 1e-14, RecordSteps: steps})
	if !IsWarning(err) {
		t.Fatalf("unexpected error %v", err)
	}
	if len(res.Alphas[0]) != steps || len(res.Betas[0]) != steps-1 {
		t.Fatalf("recorded %d α and %d β, want %d and %d", len(res.Alphas[0]), len(res.Betas[0]), steps, steps-1)
	}
	fromCG := res.Tridiagonal(0)

	lz, err := Lanczos(tc.ops, b, LanczosSettings{Steps: steps})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if math.Abs(lz.StartNorm2-res.Rho0[0]) > 1e-12*lz.StartNorm2 {
		t.Errorf("start norms differ: %v vs %v", lz.StartNorm2, res.Rho0[0])
	}
	if !floats.EqualApprox(fromCG.Diag, lz.T.Diag, 1e-8) {
		t.Errorf("diagonals differ:\n%v\n%v", fromCG.Diag, lz.T.Diag)
	}
	for i := range fromCG.Off {
		if math.Abs(math.Abs(fromCG.Off[i])-math.Abs(lz.T.Off[i])) > 1e-8 {
			t.Errorf("off-diagonals differ:\n%v\n%v", fromCG.Off, lz.T.Off)
			break
		}
	}
}
