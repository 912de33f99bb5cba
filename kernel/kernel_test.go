// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/vladimir-ch/lazygp/iterative"
	"github.com/vladimir-ch/lazygp/linop"
)

func testKernels() map[string]Kernel {
	return map[string]Kernel{
		"RBF":       RBF{LogLength: math.Log(0.7)},
		"Matern12":  Matern{Nu: Half, LogLength: math.Log(0.5)},
		"Matern32":  Matern{Nu: ThreeHalves, LogLength: math.Log(1.3)},
		"Matern52":  Matern{Nu: FiveHalves, LogLength: math.Log(0.9)},
		"Periodic":  Periodic{LogLength: math.Log(0.8), LogPeriod: math.Log(1.7)},
		"ScaledRBF": Scale{Base: RBF{LogLength: math.Log(0.4)}, LogScale: math.Log(2.5)},
		"Sum":       NewSum(RBF{LogLength: 0.1}, Scale{Base: Matern{Nu: FiveHalves, LogLength: -0.3}, LogScale: 0.2}),
		"Product":   NewProduct(Periodic{LogLength: 0.3, LogPeriod: 0.5}, RBF{LogLength: 0.2}),
	}
}

func randPoints(n, d int, rnd *rand.Rand) *mat.Dense {
	x := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			x.Set(i, j, rnd.Float64())
		}
	}
	return x
}

func TestEvalGrad(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for name, k := range testKernels() {
		for trial := 0; trial < 5; trial++ {
			x := []float64{rnd.Float64(), rnd.Float64()}
			y := []float64{rnd.Float64(), rnd.Float64()}
			deriv := make([]float64, k.NumHyper())
			v := k.EvalGrad(deriv, x, y)
			assert.InDelta(t, k.Eval(x, y), v, 1e-14, name)

			want := fd.Gradient(nil, func(h []float64) float64 {
				kh, err := k.WithHyper(h)
				require.NoError(t, err)
				return kh.Eval(x, y)
			}, k.Hyper(nil), &fd.Settings{Formula: fd.Central})
			assert.InDeltaSlice(t, want, deriv, 1e-6, name)
		}
	}
}

func TestEvalAtZeroDistance(t *testing.T) {
	x := []float64{0.3, -1}
	for _, nu := range []Nu{Half, ThreeHalves, FiveHalves} {
		k := Matern{Nu: nu, LogLength: 0.4}
		deriv := make([]float64, 1)
		assert.Equal(t, 1.0, k.EvalGrad(deriv, x, x), nu.String())
		assert.Equal(t, 0.0, deriv[0], nu.String())
	}
	assert.Equal(t, 1.0, RBF{}.Eval(x, x))
	assert.InDelta(t, 1.0, Periodic{LogPeriod: 0}.Eval(x, []float64{1.3, 0}), 1e-12, "one period apart")
}

func TestHyper(t *testing.T) {
	for name, k := range testKernels() {
		h := k.Hyper(nil)
		require.Len(t, h, k.NumHyper(), name)
		require.Len(t, k.Bounds(), k.NumHyper(), name)
		c, err := k.WithHyper(h)
		require.NoError(t, err, name)
		x, y := []float64{0.1, 0.2}, []float64{0.5, -0.3}
		assert.Equal(t, k.Eval(x, y), c.Eval(x, y), name)

		_, err = k.WithHyper(append(h, 1))
		assert.True(t, errors.Is(err, iterative.ErrShape), name)

		h[0] = math.NaN()
		_, err = k.WithHyper(h)
		var ne *iterative.NumericalError
		assert.True(t, errors.As(err, &ne), name)
	}
}

func TestWithHyperDoesNotModify(t *testing.T) {
	k := NewSum(RBF{LogLength: 1}, RBF{LogLength: 2})
	_, err := k.WithHyper([]float64{3, 4})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, k.Hyper(nil))
}

func TestFlatten(t *testing.T) {
	a, b, c := RBF{}, Matern{}, Periodic{}
	s := NewSum(NewSum(a, b), c)
	assert.Len(t, s.Terms(), 3)
	assert.Equal(t, 4, s.NumHyper())

	p := NewProduct(a, NewProduct(b, c), NewSum(a, b))
	assert.Len(t, p.Factors(), 4)
	assert.Equal(t, 6, p.NumHyper())
}

func TestClamp(t *testing.T) {
	k := Scale{Base: RBF{LogLength: 50}, LogScale: -50}
	c := Clamp(k)
	h := c.Hyper(nil)
	assert.Equal(t, lengthBound.Max, h[0])
	assert.Equal(t, scaleBound.Min, h[1])
	for i, b := range c.Bounds() {
		assert.True(t, b.Contains(h[i]))
	}
}

func TestMatrix(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	x := randPoints(12, 3, rnd)
	for name, k := range testKernels() {
		dense := Matrix(k, x, 12)
		implicit := Matrix(k, x, 11)
		assert.Equal(t, linop.KindDense, dense.Kind(), name)
		assert.Equal(t, linop.KindImplicit, implicit.Kind(), name)
		assert.True(t, mat.EqualApprox(linop.ToDense(dense), linop.ToDense(implicit), 1e-15), name)
		assert.InDelta(t, k.Eval(x.RawRowView(2), x.RawRowView(7)), linop.ToDense(dense).At(2, 7), 1e-15, name)

		c, err := Cross(k, x, x)
		require.NoError(t, err)
		assert.True(t, mat.EqualApprox(linop.ToDense(dense), c, 1e-15), name)
	}
	_, err := Cross(RBF{}, x, randPoints(2, 2, rnd))
	assert.True(t, errors.Is(err, iterative.ErrShape))
}

func TestMatrixGrad(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	x := randPoints(6, 2, rnd)
	const h = 1e-6
	for name, k := range testKernels() {
		hyper := k.Hyper(nil)
		dense := MatrixGrad(k, x, 10)
		implicit := MatrixGrad(k, x, 0)
		require.Len(t, dense, k.NumHyper())
		for p := range hyper {
			hp := append([]float64(nil), hyper...)
			hm := append([]float64(nil), hyper...)
			hp[p] += h
			hm[p] -= h
			kp, err := k.WithHyper(hp)
			require.NoError(t, err)
			km, err := k.WithHyper(hm)
			require.NoError(t, err)
			var want mat.Dense
			want.Sub(linop.ToDense(Matrix(kp, x, 10)), linop.ToDense(Matrix(km, x, 10)))
			want.Scale(1/(2*h), &want)
			assert.True(t, mat.EqualApprox(&want, linop.ToDense(dense[p]), 1e-6), "%s hyper %d", name, p)
			assert.True(t, mat.EqualApprox(linop.ToDense(dense[p]), linop.ToDense(implicit[p]), 1e-15), "%s hyper %d", name, p)
		}
	}
}

func TestGrid(t *testing.T) {
	grids := [][]float64{{0, 0.5, 1}, {-1, 0, 1, 2}}
	for _, k := range []Kernel{
		RBF{LogLength: math.Log(0.6)},
		Scale{Base: RBF{LogLength: math.Log(0.6)}, LogScale: math.Log(3)},
		Periodic{LogLength: 0.2, LogPeriod: 0.4},
	} {
		op, err := Grid(k, grids)
		require.NoError(t, err)
		assert.Equal(t, 12, op.Size())
		want := linop.ToDense(Matrix(k, GridPoints(grids), 100))
		assert.True(t, mat.EqualApprox(want, linop.ToDense(op), 1e-12), "%T", k)
	}

	pts := GridPoints(grids)
	assert.Equal(t, []float64{0.5, 1}, pts.RawRowView(6))

	_, err := Grid(Matern{}, grids)
	assert.Error(t, err)
	_, err = Grid(RBF{}, nil)
	assert.True(t, errors.Is(err, iterative.ErrShape))
}

func TestMultitask(t *testing.T) {
	rnd := rand.New(rand.NewSource(4))
	x := randPoints(5, 1, rnd)
	b := mat.NewSymDense(2, []float64{2, 0.5, 0.5, 1})
	k := Matern{Nu: ThreeHalves}
	op, err := Multitask(b, k, x, 10)
	require.NoError(t, err)
	full := linop.ToDense(op)
	kx := linop.ToDense(Matrix(k, x, 10))
	for s := 0; s < 2; s++ {
		for u := 0; u < 2; u++ {
			for i := 0; i < 5; i++ {
				for j := 0; j < 5; j++ {
					assert.InDelta(t, b.At(s, u)*kx.At(i, j), full.At(s*5+i, u*5+j), 1e-14)
				}
			}
		}
	}
}

func TestInducing(t *testing.T) {
	rnd := rand.New(rand.NewSource(5))
	x := randPoints(20, 1, rnd)
	k := RBF{LogLength: math.Log(0.3)}
	kx := linop.ToDense(Matrix(k, x, 20))

	// Inducing points at the data reproduce the covariance.
	lr, err := Inducing(k, x, x, 1e-6)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(kx, linop.ToDense(lr), 1e-4))

	z := mat.NewDense(4, 1, []float64{0.1, 0.4, 0.6, 0.9})
	lr, err = Inducing(k, x, z, 1e-8)
	require.NoError(t, err)
	assert.Equal(t, 4, lr.Rank())
	var r mat.Dense
	r.Sub(kx, linop.ToDense(lr))
	assert.Greater(t, mat.Trace(&r), 0.0)

	_, err = Inducing(k, x, randPoints(3, 2, rnd), 0)
	assert.True(t, errors.Is(err, iterative.ErrShape))
}
