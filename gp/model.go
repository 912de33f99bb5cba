// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gp implements exact Gaussian process regression on top of lazy
// covariance operators: fitting, prediction, the marginal log-likelihood with
// its gradient, and hyperparameter training.
//
// The hyperparameters of a model are, in order, the log-hyperparameters of
// the kernel, the constant mean and the log noise variance, followed by the
// per-point log noise offsets of a heteroskedastic noise model if the model
// has one.
package gp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/vladimir-ch/lazygp/iterative"
	"github.com/vladimir-ch/lazygp/kernel"
	"github.com/vladimir-ch/lazygp/linalg"
	"github.com/vladimir-ch/lazygp/linop"
)

var noiseBound = kernel.Bound{Min: math.Log(1e-6), Max: math.Log(1e2)}

// ExactGP is a Gaussian process with constant mean and Gaussian
// observation noise conditioned on the training data exactly.
type ExactGP struct {
	Kernel   kernel.Kernel
	Mean     float64
	LogNoise float64 // log σ²

	// Noise, if not nil, makes the noise variance of training point i
	// exp(LogNoise + Noise.G[i]).
	Noise *HeteroskedasticNoise

	// Settings controls the linear algebra. Its DenseThreshold also
	// decides whether kernel matrices are formed densely.
	Settings linalg.Settings

	x *mat.Dense
	y []float64

	alpha *mat.Dense // K⁻¹(y - μ) after Fit
}

// NewExactGP returns a model of the observations y at the points in the
// rows of x.
func NewExactGP(k kernel.Kernel, x mat.Matrix, y []float64, s linalg.Settings) (*ExactGP, error) {
	n, _ := x.Dims()
	if n == 0 {
		return nil, fmt.Errorf("gp: no training points: %w", iterative.ErrShape)
	}
	if len(y) != n {
		return nil, fmt.Errorf("gp: %d observations at %d points: %w", len(y), n, iterative.ErrShape)
	}
	return &ExactGP{
		Kernel:   k,
		LogNoise: math.Log(0.1),
		Settings: s,
		x:        mat.DenseCopyOf(x),
		y:        append([]float64(nil), y...),
	}, nil
}

// NumData returns the number of training points.
func (g *ExactGP) NumData() int { return len(g.y) }

// Inputs returns the training points.
func (g *ExactGP) Inputs() mat.Matrix { return g.x }

// NumHyper returns the number of hyperparameters.
func (g *ExactGP) NumHyper() int { return g.Kernel.NumHyper() + 2 + g.Noise.len() }

// Hyper stores the hyperparameters in dst and returns it. A new slice is
// allocated if dst is nil.
func (g *ExactGP) Hyper(dst []float64) []float64 {
	nk := g.Kernel.NumHyper()
	if dst == nil {
		dst = make([]float64, g.NumHyper())
	}
	if len(dst) != g.NumHyper() {
		panic("gp: hyperparameter length mismatch")
	}
	g.Kernel.Hyper(dst[:nk])
	dst[nk] = g.Mean
	dst[nk+1] = g.LogNoise
	if g.Noise != nil {
		copy(dst[nk+2:], g.Noise.G)
	}
	return dst
}

// Bounds returns the intervals of the hyperparameters. The mean is
// unbounded.
func (g *ExactGP) Bounds() []kernel.Bound {
	b := append(g.Kernel.Bounds(),
		kernel.Bound{Min: math.Inf(-1), Max: math.Inf(1)},
		noiseBound)
	for i := 0; i < g.Noise.len(); i++ {
		b = append(b, offsetBound)
	}
	return b
}

// WithHyper returns an unfitted copy of the model with the given
// hyperparameters.
func (g *ExactGP) WithHyper(h []float64) (*ExactGP, error) {
	if len(h) != g.NumHyper() {
		return nil, fmt.Errorf("gp: model has %d hyperparameters, got %d: %w", g.NumHyper(), len(h), iterative.ErrShape)
	}
	if err := iterative.CheckFinite("gp.WithHyper", h); err != nil {
		return nil, err
	}
	nk := g.Kernel.NumHyper()
	k, err := g.Kernel.WithHyper(h[:nk])
	if err != nil {
		return nil, err
	}
	c := *g
	c.Kernel = k
	c.Mean = h[nk]
	c.LogNoise = h[nk+1]
	if g.Noise != nil {
		c.Noise = &HeteroskedasticNoise{
			Kernel: g.Noise.Kernel,
			Jitter: g.Noise.Jitter,
			G:      append([]float64(nil), h[nk+2:]...),
		}
	}
	c.alpha = nil
	return &c, nil
}

// Covariance returns the covariance K + D of the observations, where D is
// σ²I or, with a noise model, the diagonal of the per-point noise variances.
func (g *ExactGP) Covariance() (linop.Operator, error) {
	d, err := g.noiseDiag()
	if err != nil {
		return nil, err
	}
	return linop.AddDiag(kernel.Matrix(g.Kernel, g.x, g.Settings.DenseThreshold), d)
}

// NoiseVariances returns the noise variance of each training point.
func (g *ExactGP) NoiseVariances() []float64 {
	v := make([]float64, g.NumData())
	s := math.Exp(g.LogNoise)
	for i := range v {
		v[i] = s
		if g.Noise != nil {
			v[i] = math.Exp(g.LogNoise + g.Noise.G[i])
		}
	}
	return v
}

func (g *ExactGP) noiseDiag() (*linop.Diagonal, error) {
	if g.Noise == nil {
		return linop.Constant(g.NumData(), math.Exp(g.LogNoise)), nil
	}
	if len(g.Noise.G) != g.NumData() {
		return nil, fmt.Errorf("gp: %d noise offsets for %d training points: %w", len(g.Noise.G), g.NumData(), iterative.ErrShape)
	}
	return linop.NewPositiveDiagonal(g.NoiseVariances())
}

func (g *ExactGP) residual() *mat.Dense {
	r := make([]float64, len(g.y))
	for i, v := range g.y {
		r[i] = v - g.Mean
	}
	return mat.NewDense(len(r), 1, r)
}

// Fit solves for the representer weights K⁻¹(y - μ) used by Predict. A
// *iterative.ConvergenceWarning leaves the model fitted with the best
// approximation.
func (g *ExactGP) Fit() error {
	cov, err := g.Covariance()
	if err != nil {
		return err
	}
	alpha, _, err := linalg.Solve(cov, g.residual(), g.Settings)
	if alpha == nil {
		return err
	}
	g.alpha = alpha
	return err
}

func (g *ExactGP) fitted() error {
	if g.alpha == nil {
		return iterative.Numerical("gp.Predict", "model is not fitted")
	}
	return nil
}

// Predict returns the posterior mean and the variance of the latent function
// at the points in the rows of xs. The variances of all test points come
// from a single batched solve. Noise is not included; add exp(LogNoise) for
// the predictive variance of observations under homoskedastic noise.
func (g *ExactGP) Predict(xs mat.Matrix) (mean, variance []float64, err error) {
	if err := g.fitted(); err != nil {
		return nil, nil, err
	}
	kxs, err := kernel.Cross(g.Kernel, g.x, xs)
	if err != nil {
		return nil, nil, err
	}
	_, m := kxs.Dims()
	mean = make([]float64, m)
	for j := range mean {
		mean[j] = g.Mean + mat.Dot(kxs.ColView(j), g.alpha.ColView(0))
	}

	cov, err := g.Covariance()
	if err != nil {
		return nil, nil, err
	}
	q, _, werr := linalg.InvQuad(cov, kxs, g.Settings)
	if q == nil {
		return nil, nil, werr
	}
	xd := mat.DenseCopyOf(xs)
	variance = make([]float64, m)
	for j := range variance {
		xj := xd.RawRowView(j)
		variance[j] = math.Max(0, g.Kernel.Eval(xj, xj)-q[j])
	}
	return mean, variance, werr
}

// PredictCov returns the posterior covariance K** - K*ₓ K⁻¹ Kₓ* of the latent
// function at the points in the rows of xs.
func (g *ExactGP) PredictCov(xs mat.Matrix) (*mat.SymDense, error) {
	kxs, err := kernel.Cross(g.Kernel, g.x, xs)
	if err != nil {
		return nil, err
	}
	cov, err := g.Covariance()
	if err != nil {
		return nil, err
	}
	v, _, werr := linalg.Solve(cov, kxs, g.Settings)
	if v == nil {
		return nil, werr
	}
	kss, err := kernel.Cross(g.Kernel, xs, xs)
	if err != nil {
		return nil, err
	}
	var red mat.Dense
	red.Mul(kxs.T(), v)
	_, m := kxs.Dims()
	c := mat.NewSymDense(m, nil)
	for i := 0; i < m; i++ {
		for j := i; j < m; j++ {
			c.SetSym(i, j, kss.At(i, j)-(red.At(i, j)+red.At(j, i))/2)
		}
	}
	return c, werr
}

// sumCol returns the sum of column j of a.
func sumCol(a *mat.Dense, j int) float64 {
	return floats.Sum(mat.Col(nil, j, a))
}
