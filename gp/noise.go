// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gp

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/vladimir-ch/lazygp/iterative"
	"github.com/vladimir-ch/lazygp/kernel"
	"github.com/vladimir-ch/lazygp/linalg"
	"github.com/vladimir-ch/lazygp/linop"
)

var offsetBound = kernel.Bound{Min: math.Log(1e-4), Max: math.Log(1e4)}

// DefaultNoiseJitter is the jitter of a new HeteroskedasticNoise.
const DefaultNoiseJitter = 1e-6

// HeteroskedasticNoise is a noise model with one log offset per training
// point. The offsets G are a priori a zero-mean Gaussian process over the
// training inputs with covariance Kernel + Jitter·I; the hyperparameters of
// Kernel are held fixed.
type HeteroskedasticNoise struct {
	Kernel kernel.Kernel
	Jitter float64
	G      []float64
}

// NewHeteroskedasticNoise returns a noise model with zero offsets for n
// training points.
func NewHeteroskedasticNoise(k kernel.Kernel, n int) *HeteroskedasticNoise {
	return &HeteroskedasticNoise{Kernel: k, Jitter: DefaultNoiseJitter, G: make([]float64, n)}
}

func (h *HeteroskedasticNoise) len() int {
	if h == nil {
		return 0
	}
	return len(h.G)
}

var _ AddedLossTerm = NoiseModelAddedLossTerm{}

// NoiseModelAddedLossTerm is the log density of the noise offsets under the
// prior of a heteroskedastic noise model,
//  -½ gᵀC⁻¹g - ½ log det C - n/2 log 2π.
// Its gradient with respect to the offsets is -C⁻¹g.
type NoiseModelAddedLossTerm struct{}

func (NoiseModelAddedLossTerm) Value(g *ExactGP, grad []float64) (float64, error) {
	if g.Noise == nil {
		return 0, iterative.Numerical("gp.NoiseModelAddedLossTerm", "model has no noise model")
	}
	n := g.NumData()
	if len(g.Noise.G) != n {
		return 0, iterative.Numerical("gp.NoiseModelAddedLossTerm", "%d noise offsets for %d training points", len(g.Noise.G), n)
	}
	c, err := linop.AddDiag(
		kernel.Matrix(g.Noise.Kernel, g.x, g.Settings.DenseThreshold),
		linop.Constant(n, g.Noise.Jitter))
	if err != nil {
		return 0, err
	}
	off := mat.NewDense(n, 1, append([]float64(nil), g.Noise.G...))
	res, werr := linalg.InvQuadLogDet(c, off, g.Settings)
	if res == nil {
		return 0, werr
	}
	v := -0.5*res.InvQuad[0] - 0.5*res.LogDet.Value - 0.5*float64(n)*math.Log(2*math.Pi)
	if grad != nil {
		nk := g.Kernel.NumHyper()
		for i := 0; i < n; i++ {
			grad[nk+2+i] -= res.Solve.At(i, 0)
		}
	}
	return v, werr
}
