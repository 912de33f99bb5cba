// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package precond

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/vladimir-ch/lazygp/iterative"
	"github.com/vladimir-ch/lazygp/linop"
)

// rbf returns the kernel matrix exp(-(xi-xj)²/2) on n regular points of
// [0, 5], a numerically low-rank matrix.
func rbf(n int) *linop.Dense {
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			d := 5 * float64(i-j) / float64(n-1)
			s.SetSym(i, j, math.Exp(-d*d/2))
		}
	}
	return linop.NewDense(s)
}

func randFactor(n, k int, rnd *rand.Rand) *mat.Dense {
	u := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < k; j++ {
			u.Set(i, j, rnd.NormFloat64())
		}
	}
	return u
}

func TestPivotedCholeskyFullRank(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	u := randFactor(8, 8, rnd)
	var kk mat.SymDense
	kk.SymOuterK(1, u)
	k := linop.NewDense(&kk)

	p, err := PivotedCholesky(k, 8, linop.Constant(8, 1))
	require.NoError(t, err)
	require.Equal(t, 8, p.Rank())
	l := p.Factor()
	var llt mat.Dense
	llt.Mul(l, l.T())
	assert.True(t, mat.EqualApprox(&kk, &llt, 1e-8))
	assert.InDelta(t, 0, p.TraceError(), 1e-8)
}

func TestPivotedCholeskyEarlyStop(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	k := linop.NewLowRank(randFactor(10, 2, rnd))
	p, err := PivotedCholesky(k, 5, linop.Constant(10, 0.1))
	require.NoError(t, err)
	assert.Equal(t, 2, p.Rank())
}

func TestPivotedCholeskyTraceError(t *testing.T) {
	k := rbf(30)
	prev := 31.0
	for _, rank := range []int{1, 2, 4, 8, 12} {
		p, err := PivotedCholesky(k, rank, linop.Constant(30, 0.01))
		require.NoError(t, err)
		assert.Less(t, p.TraceError(), prev, "rank %d", rank)
		prev = p.TraceError()
	}
	assert.Less(t, prev, 0.1)
}

func TestLowRankDiagApply(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	k := rbf(12)
	noise := linop.NewDiagonal([]float64{0.1, 0.2, 0.3, 0.1, 0.2, 0.3, 0.1, 0.2, 0.3, 0.1, 0.2, 0.3})
	p, err := PivotedCholesky(k, 3, noise)
	require.NoError(t, err)

	m := linop.ToDense(p.Operator())
	sym := mat.NewSymDense(12, nil)
	for i := 0; i < 12; i++ {
		for j := i; j < 12; j++ {
			sym.SetSym(i, j, m.At(i, j))
		}
	}
	var chol mat.Cholesky
	require.True(t, chol.Factorize(sym))

	src := randFactor(12, 2, rnd)
	var want mat.Dense
	require.NoError(t, chol.SolveTo(&want, src))
	got := mat.NewDense(12, 2, nil)
	require.NoError(t, p.Apply(got, src))
	assert.True(t, mat.EqualApprox(&want, got, 1e-9))
	assert.InDelta(t, chol.LogDet(), p.LogDet(), 1e-9)

	err = p.Apply(mat.NewDense(11, 2, nil), src)
	assert.True(t, errors.Is(err, iterative.ErrShape))
}

func TestSample(t *testing.T) {
	rnd := rand.New(rand.NewSource(4))
	k := rbf(3)
	p, err := PivotedCholesky(k, 1, linop.Constant(3, 0.5))
	require.NoError(t, err)

	const samples = 40000
	z := mat.NewDense(3, samples, nil)
	p.Sample(z, rnd)
	var cov mat.Dense
	cov.Mul(z, z.T())
	cov.Scale(1.0/samples, &cov)
	m := linop.ToDense(p.Operator())
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(t, m.At(i, j), cov.At(i, j), 0.05, "entry (%d,%d)", i, j)
		}
	}
}

func TestForOperator(t *testing.T) {
	k := rbf(6)
	ad, err := linop.Add(k, linop.Constant(6, 0.04))
	require.NoError(t, err)

	p, err := ForOperator(ad, 0)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = ForOperator(ad, 2)
	require.NoError(t, err)
	assert.IsType(t, &LowRankDiag{}, p)

	p, err = ForOperator(k, 2)
	require.NoError(t, err)
	require.IsType(t, &Diagonal{}, p)
	assert.InDelta(t, 0, p.LogDet(), 1e-12)

	_, err = ForOperator(ad, -1)
	var ne *iterative.NumericalError
	assert.True(t, errors.As(err, &ne))

	bad, err := linop.Add(k, linop.NewDiagonal([]float64{1, 1, 0, 1, 1, 1}))
	require.NoError(t, err)
	_, err = ForOperator(bad, 2)
	assert.True(t, errors.As(err, &ne))
}
