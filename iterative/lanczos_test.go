// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package iterative

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// quadLogDense returns zᵀ log(A) z.
func quadLogDense(a *mat.SymDense, z []float64) float64 {
	var es mat.EigenSym
	if !es.Factorize(a, true) {
		panic("eigendecomposition failed")
	}
	vals := es.Values(nil)
	var ev mat.Dense
	es.VectorsTo(&ev)
	var q float64
	for k, v := range vals {
		c := floats.Dot(mat.Col(nil, k, &ev), z)
		q += c * c * math.Log(v)
	}
	return q
}

func TestLanczosQuadLog(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for _, tc := range []testCase{randomSPD(8, rnd), laplacian(16, 0.3)} {
		z := make([]float64, tc.n)
		for i := range z {
			z[i] = rnd.NormFloat64()
		}
		want := quadLogDense(tc.sym(), z)

		for _, psolve := range []func(dst, rhs []float64) error{nil, jacobi(tc)} {
			// With M = I the full Krylov space is exact. With Jacobi
			// preconditioning the estimate is of wᵀ log(L⁻¹AL⁻ᵀ) w,
			// so only check the unpreconditioned case against want.
			res, err := Lanczos(tc.ops, z, LanczosSettings{Steps: tc.n, PSolve: psolve})
			if err != nil {
				t.Fatalf("Case %v: unexpected error %v", tc.name, err)
			}
			if res.T.Order() == 0 || res.T.Order() > tc.n {
				t.Fatalf("Case %v: unexpected order %d", tc.name, res.T.Order())
			}
			q, err := res.T.QuadLog()
			if err != nil {
				t.Fatalf("Case %v: unexpected error %v", tc.name, err)
			}
			if psolve != nil {
				continue
			}
			got := res.StartNorm2 * q
			if math.Abs(got-want) > 1e-8*math.Max(1, math.Abs(want)) {
				t.Errorf("Case %v: zᵀlog(A)z = %v, want %v", tc.name, got, want)
			}
		}
	}
}

func TestLanczosInvalid(t *testing.T) {
	tc := laplacian(4, 0)
	var ne *NumericalError
	if _, err := Lanczos(tc.ops, []float64{1, 1, 1, 1}, LanczosSettings{}); !errors.As(err, &ne) {
		t.Errorf("expected a numerical error for zero steps, got %v", err)
	}
	res, err := Lanczos(tc.ops, make([]float64, 4), LanczosSettings{Steps: 2})
	if err != nil || res.T.Order() != 0 || res.StartNorm2 != 0 {
		t.Errorf("zero start vector: got %+v, %v", res, err)
	}
}

func TestHutchinsonDiagonal(t *testing.T) {
	// For a diagonal matrix every Rademacher probe gives the exact trace.
	d := []float64{1, 2, 3, 4, 5}
	est, err := Hutchinson(len(d), 7, Rademacher, rand.New(rand.NewSource(1)), func(z []float64) (float64, error) {
		var q float64
		for i, v := range z {
			q += v * d[i] * v
		}
		return q, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(est.Value-15) > 1e-12 || est.StdErr > 1e-12 || len(est.Samples) != 7 {
		t.Errorf("unexpected estimate %+v", est)
	}
	if _, err := Hutchinson(len(d), 0, Gaussian, rand.New(rand.NewSource(1)), nil); err == nil {
		t.Errorf("expected an error for zero probes")
	}
}

func TestHutchinsonGaussian(t *testing.T) {
	tc := randomSPD(20, rand.New(rand.NewSource(3)))
	var want float64
	for i := 0; i < tc.n; i++ {
		want += tc.a[i*tc.n+i]
	}
	z := Probes(tc.n, 2000, Gaussian, rand.New(rand.NewSource(4)))
	var az mat.Dense
	az.Mul(tc.sym(), z)
	est := HutchinsonMatrix(z, &az)
	if math.Abs(est.Value-want) > 5*est.StdErr {
		t.Errorf("trace estimate %v ± %v, want %v", est.Value, est.StdErr, want)
	}
}

func TestTridiagonalQuad(t *testing.T) {
	tr := Tridiagonal{Diag: []float64{2, 2}, Off: []float64{1}}
	// Eigenvalues 1 and 3 with first components 1/√2.
	got, err := tr.Quad(func(x float64) float64 { return x * x })
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-5) > 1e-12 {
		t.Errorf("e₁ᵀT²e₁ = %v, want 5", got)
	}
	bad := Tridiagonal{Diag: []float64{1, 1}, Off: []float64{2}}
	if _, err := bad.QuadLog(); err == nil {
		t.Errorf("expected an error for an indefinite matrix")
	}
}
