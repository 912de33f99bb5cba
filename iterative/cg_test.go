// Copyright ©2016 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package iterative

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/floats"
)

func TestCG(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for _, tc := range []testCase{
		randomSPD(1, rnd),
		randomSPD(2, rnd),
		randomSPD(3, rnd),
		randomSPD(4, rnd),
		randomSPD(5, rnd),
		randomSPD(10, rnd),
		randomSPD(20, rnd),
		randomSPD(50, rnd),
		randomSPD(100, rnd),
		randomSPD(200, rnd),
	} {
		n := tc.n
		// Compute the right-hand side b so that the vector [1,1,...,1]
		// is the solution.
		want := make([]float64, n)
		for i := range want {
			want[i] = 1
		}
		b := make([]float64, n)
		tc.ops.MatVec(b, want)

		for _, psolve := range []func(dst, rhs []float64) error{nil, jacobi(tc)} {
			r, err := LinearSolve(tc.ops, b, &CG{}, Settings{Tolerance: 1e-14, PSolve: psolve})
			if err != nil {
				t.Errorf("Case %v: unexpected error %v", tc.name, err)
				continue
			}
			dist := floats.Distance(r.X, want, math.Inf(1))
			if dist > 1e-10 {
				t.Errorf("Case %v: unexpected solution, |want-got|=%v", tc.name, dist)
			}
			// A x must reproduce b within the tolerance.
			ax := make([]float64, n)
			tc.ops.MatVec(ax, r.X)
			if resid := floats.Distance(ax, b, 2) / floats.Norm(b, 2); resid > 1e-12 {
				t.Errorf("Case %v: relative residual %v too large", tc.name, resid)
			}
		}
	}
}

func TestCGZeroRHS(t *testing.T) {
	tc := randomSPD(10, rand.New(rand.NewSource(2)))
	x0 := make([]float64, tc.n)
	for i := range x0 {
		x0[i] = float64(i)
	}
	for _, s := range []Settings{{}, {X0: x0}} {
		r, err := LinearSolve(tc.ops, make([]float64, tc.n), &CG{}, s)
		if err != nil {
			t.Fatalf("unexpected error %v", err)
		}
		if r.Stats.Iterations != 0 {
			t.Errorf("unexpected number of iterations %v, want 0", r.Stats.Iterations)
		}
		for i, v := range r.X {
			if v != 0 {
				t.Errorf("x[%d] = %v, want 0", i, v)
			}
		}
	}
}

func TestCGResidualHistory(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	for _, tc := range []testCase{randomSPD(40, rnd), laplacian(60, 0.01)} {
		b := make([]float64, tc.n)
		for i := range b {
			b[i] = rnd.NormFloat64()
		}
		r, err := LinearSolve(tc.ops, b, &CG{}, Settings{Tolerance: 1e-10})
		if !IsWarning(err) {
			t.Fatalf("Case %v: unexpected error %v", tc.name, err)
		}
		h, res := r.Stats.ResidualHistory, r.Stats.Residuals
		if len(h) != r.Stats.Iterations || len(res) != r.Stats.Iterations {
			t.Fatalf("Case %v: history has %d and %d entries, want %d", tc.name, len(h), len(res), r.Stats.Iterations)
		}
		// The zero initial guess has relative residual 1.
		best := 1.0
		for i := range h {
			best = math.Min(best, res[i])
			if h[i] != best {
				t.Errorf("Case %v: best residual at iteration %d is %v, want %v", tc.name, i, h[i], best)
			}
		}
		if len(h) > 0 && h[len(h)-1] != r.Stats.ResidualNorm {
			t.Errorf("Case %v: final residual %v does not match history %v", tc.name, r.Stats.ResidualNorm, h[len(h)-1])
		}
	}
}

// cgIterates drives CG directly and returns the iterate after each
// iteration until the residual norm drops below tol·|b|.
func cgIterates(tc testCase, b []float64, psolve func(dst, rhs []float64) error, tol float64) ([][]float64, error) {
	n := tc.n
	ctx := &Context{
		X:        make([]float64, n),
		Residual: append([]float64(nil), b...),
	}
	bnorm := floats.Norm(b, 2)
	var cg CG
	cg.Init(n)
	var xs [][]float64
	for len(xs) < 2*n {
		op, err := cg.Iterate(ctx)
		if err != nil {
			return xs, err
		}
		switch op {
		case MatVec:
			tc.ops.MatVec(ctx.Dst, ctx.Src)
		case PSolve:
			if psolve == nil {
				copy(ctx.Dst, ctx.Src)
				continue
			}
			if err := psolve(ctx.Dst, ctx.Src); err != nil {
				return xs, err
			}
		case CheckResidualNorm:
			ctx.Converged = ctx.ResidualNorm < tol*bnorm
		case EndIteration:
			xs = append(xs, append([]float64(nil), ctx.X...))
			if ctx.Converged {
				return xs, nil
			}
		}
	}
	return xs, nil
}

func TestCGErrorANormDecreases(t *testing.T) {
	rnd := rand.New(rand.NewSource(4))
	for _, tc := range []testCase{randomSPD(30, rnd), laplacian(80, 0.01)} {
		want := make([]float64, tc.n)
		for i := range want {
			want[i] = rnd.NormFloat64()
		}
		b := make([]float64, tc.n)
		tc.ops.MatVec(b, want)

		aNorm := func(x []float64) float64 {
			e := make([]float64, tc.n)
			floats.SubTo(e, x, want)
			ae := make([]float64, tc.n)
			tc.ops.MatVec(ae, e)
			return math.Sqrt(floats.Dot(e, ae))
		}

		for _, psolve := range []func(dst, rhs []float64) error{nil, jacobi(tc)} {
			xs, err := cgIterates(tc, b, psolve, 1e-10)
			if err != nil {
				t.Fatalf("Case %v: unexpected error %v", tc.name, err)
			}
			if len(xs) < 2 {
				t.Fatalf("Case %v: only %d iterations", tc.name, len(xs))
			}
			prev := aNorm(make([]float64, tc.n))
			slack := 1e-10 * prev
			for i, x := range xs {
				cur := aNorm(x)
				if cur > prev*(1+1e-8)+slack {
					t.Errorf("Case %v: A-norm of the error increased at iteration %d: %v > %v", tc.name, i, cur, prev)
				}
				prev = cur
			}
			if last := aNorm(xs[len(xs)-1]); last > 1e-6*aNorm(make([]float64, tc.n)) {
				t.Errorf("Case %v: final A-norm error %v too large", tc.name, last)
			}
		}
	}
}

func TestCGIterationLimit(t *testing.T) {
	tc := laplacian(100, 0.05)
	b := make([]float64, tc.n)
	for i := range b {
		b[i] = 1
	}
	r, err := LinearSolve(tc.ops, b, &CG{}, Settings{Tolerance: 1e-12, MaxIterations: 5})
	w, ok := AsWarning(err)
	if !ok {
		t.Fatalf("expected a convergence warning, got %v", err)
	}
	if w.Iterations != 5 || r.Stats.Iterations != 5 {
		t.Errorf("unexpected number of iterations %v", w.Iterations)
	}
	if err := CheckFinite("test", r.X); err != nil {
		t.Errorf("returned estimate is not finite: %v", err)
	}
	if r.Stats.ResidualNorm > 1 || r.Stats.ResidualNorm <= 1e-12 {
		t.Errorf("unexpected residual norm %v", r.Stats.ResidualNorm)
	}
}

func TestCGNotPositiveDefinite(t *testing.T) {
	a := MatrixOps{
		MatVec: func(dst, x []float64) {
			for i := range dst {
				dst[i] = -x[i]
			}
		},
	}
	_, err := LinearSolve(a, []float64{1, 2, 3}, &CG{}, Settings{})
	var ne *NumericalError
	if !errors.As(err, &ne) {
		t.Fatalf("expected a numerical error, got %v", err)
	}
}

func TestLinearSolveSettings(t *testing.T) {
	tc := randomSPD(4, rand.New(rand.NewSource(4)))
	b := []float64{1, 2, 3, 4}
	if _, err := LinearSolve(tc.ops, b, &CG{}, Settings{X0: []float64{1}}); !errors.Is(err, ErrShape) {
		t.Errorf("expected a shape error, got %v", err)
	}
	for _, s := range []Settings{
		{Tolerance: 2},
		{Tolerance: 1e-20},
		{Tolerance: 1e-10, Precision: Float32},
		{MaxIterations: -1},
	} {
		var ne *NumericalError
		if _, err := LinearSolve(tc.ops, b, &CG{}, s); !errors.As(err, &ne) {
			t.Errorf("settings %+v: expected a numerical error, got %v", s, err)
		}
	}
}

func TestCGFloat32(t *testing.T) {
	tc := randomSPD(20, rand.New(rand.NewSource(5)))
	want := make([]float64, tc.n)
	for i := range want {
		want[i] = 1
	}
	b := make([]float64, tc.n)
	tc.ops.MatVec(b, want)
	r, err := LinearSolve(tc.ops, b, &CG{}, Settings{Tolerance: 1e-5, Precision: Float32})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	for i, v := range r.X {
		if v != float64(float32(v)) {
			t.Errorf("x[%d] = %v is not representable in float32", i, v)
		}
	}
	if dist := floats.Distance(r.X, want, math.Inf(1)); dist > 1e-4 {
		t.Errorf("unexpected solution, |want-got|=%v", dist)
	}
}

func TestParsePrecision(t *testing.T) {
	for s, want := range map[string]Precision{"float64": Float64, "Float32": Float32, "single": Float32, "": Float64} {
		got, err := ParsePrecision(s)
		if err != nil || got != want {
			t.Errorf("ParsePrecision(%q) = %v, %v, want %v", s, got, err, want)
		}
	}
	if _, err := ParsePrecision("float16"); err == nil {
		t.Errorf("expected an error for float16")
	}
}
