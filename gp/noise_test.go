// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gp

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/vladimir-ch/lazygp/iterative"
	"github.com/vladimir-ch/lazygp/kernel"
	"github.com/vladimir-ch/lazygp/linalg"
	"github.com/vladimir-ch/lazygp/linop"
)

func newHeteroskedastic(t *testing.T, n int, s linalg.Settings) *ExactGP {
	t.Helper()
	x, y := regular(n)
	g := newModel(t, x, y, s)
	nk := kernel.Scale{Base: kernel.RBF{LogLength: math.Log(0.3)}, LogScale: math.Log(0.5)}
	g.Noise = NewHeteroskedasticNoise(nk, n)
	g.Noise.Jitter = 0.1
	rnd := rand.New(rand.NewSource(3))
	for i := range g.Noise.G {
		g.Noise.G[i] = 0.3 * rnd.NormFloat64()
	}
	return g
}

func TestHeteroskedasticCovariance(t *testing.T) {
	n := 8
	g := newHeteroskedastic(t, n, closedSettings())
	require.Equal(t, 4+n, g.NumHyper())
	require.Len(t, g.Bounds(), 4+n)

	h := g.Hyper(nil)
	assert.Equal(t, g.Noise.G, h[4:])
	h[5] = 0.7
	c, err := g.WithHyper(h)
	require.NoError(t, err)
	assert.Equal(t, 0.7, c.Noise.G[1])
	assert.NotEqual(t, 0.7, g.Noise.G[1], "offsets are copied")

	cov, err := g.Covariance()
	require.NoError(t, err)
	require.Equal(t, linop.KindAddedDiag, cov.Kind())
	noise := g.NoiseVariances()
	assert.InDeltaSlice(t, noise, cov.(*linop.AddedDiag).Diagonal().Values(), 1e-15)
	for i, v := range noise {
		assert.InDelta(t, math.Exp(g.LogNoise+g.Noise.G[i]), v, 1e-15)
	}

	k := linop.ToDense(kernel.Matrix(g.Kernel, g.x, 0))
	dense := linop.ToDense(cov)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			want := k.At(i, j)
			if i == j {
				want += noise[i]
			}
			assert.InDelta(t, want, dense.At(i, j), 1e-12)
		}
	}

	g.Noise.G = g.Noise.G[:3]
	_, err = g.Covariance()
	assert.ErrorIs(t, err, iterative.ErrShape)
}

func TestHeteroskedasticGradient(t *testing.T) {
	n := 10
	exact := NewExactMarginalLogLikelihood(newHeteroskedastic(t, n, closedSettings()), NoiseModelAddedLossTerm{})
	h := exact.Hyper(nil)
	want := fd.Gradient(nil, func(h []float64) float64 {
		v, err := exact.Evaluate(h, nil)
		require.NoError(t, err)
		return v
	}, h, &fd.Settings{Formula: fd.Central})

	grad := make([]float64, len(h))
	_, err := exact.Evaluate(h, grad)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, grad, 1e-6)

	s := closedSettings()
	s.DenseThreshold = 5
	s.Strategy = linalg.Iterative
	s.NumProbes = 10000
	approx := NewExactMarginalLogLikelihood(newHeteroskedastic(t, n, s), NoiseModelAddedLossTerm{})
	_, err = approx.Evaluate(h, grad)
	require.NoError(t, err)
	for i := range want {
		assert.InDelta(t, want[i], grad[i], 0.1+0.1*math.Abs(want[i]), "hyper %d", i)
	}
}

func TestNoiseModelAddedLossTerm(t *testing.T) {
	n := 9
	g := newHeteroskedastic(t, n, closedSettings())
	c, err := linop.ToSymDense(kernel.Matrix(g.Noise.Kernel, g.x, 256))
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		c.SetSym(i, i, c.At(i, i)+g.Noise.Jitter)
	}
	prior, ok := distmv.NewNormal(make([]float64, n), c, nil)
	require.True(t, ok)

	grad := make([]float64, g.NumHyper())
	v, err := NoiseModelAddedLossTerm{}.Value(g, grad)
	require.NoError(t, err)
	assert.InDelta(t, prior.LogProb(g.Noise.G), v, 1e-10)

	for i := 0; i < 4; i++ {
		assert.Equal(t, 0.0, grad[i], "hyper %d", i)
	}
	want := fd.Gradient(nil, prior.LogProb, g.Noise.G, &fd.Settings{Formula: fd.Central})
	assert.InDeltaSlice(t, want, grad[4:], 1e-6)

	_, err = NoiseModelAddedLossTerm{}.Value(newModel(t, g.x, g.y, closedSettings()), nil)
	var ne *iterative.NumericalError
	assert.ErrorAs(t, err, &ne)
}

func TestTrainHeteroskedastic(t *testing.T) {
	g := newHeteroskedastic(t, 12, closedSettings())
	m := NewExactMarginalLogLikelihood(g, NoiseModelAddedLossTerm{})
	res, err := Train(m, TrainSettings{MaxIterations: 20})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Value, res.Initial)
	assert.Len(t, res.Hyper, m.NumHyper())
	assert.Equal(t, res.Hyper[4:], m.Model.Noise.G)
}
