// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/vladimir-ch/lazygp/iterative"
	"github.com/vladimir-ch/lazygp/kernel"
	"github.com/vladimir-ch/lazygp/linalg"
	"github.com/vladimir-ch/lazygp/linop"
)

// MarginalLogLikelihood is an objective of model hyperparameters.
type MarginalLogLikelihood interface {
	// NumHyper returns the number of hyperparameters.
	NumHyper() int
	// Hyper returns the current hyperparameters.
	Hyper(dst []float64) []float64
	// Bounds returns the intervals of the hyperparameters.
	Bounds() []kernel.Bound
	// SetHyper replaces the current hyperparameters.
	SetHyper(h []float64) error
	// Evaluate returns the objective at h and, if grad is not nil,
	// stores its gradient in grad. The current hyperparameters are not
	// changed. A *iterative.ConvergenceWarning accompanies a usable
	// value.
	Evaluate(h, grad []float64) (float64, error)
}

var (
	_ MarginalLogLikelihood = (*ExactMarginalLogLikelihood)(nil)
	_ MarginalLogLikelihood = (*SumMarginalLogLikelihood)(nil)
)

// ExactMarginalLogLikelihood is the marginal log-likelihood of an exact GP
// divided by the number of training points,
//  (-½ rᵀK⁻¹r - ½ log det K - n/2 log 2π + Σ added terms) / n
// with r = y - μ and K the covariance of the observations.
type ExactMarginalLogLikelihood struct {
	Model *ExactGP
	Added []AddedLossTerm
}

// NewExactMarginalLogLikelihood returns the marginal log-likelihood of g
// with optional added loss terms.
func NewExactMarginalLogLikelihood(g *ExactGP, added ...AddedLossTerm) *ExactMarginalLogLikelihood {
	return &ExactMarginalLogLikelihood{Model: g, Added: added}
}

func (m *ExactMarginalLogLikelihood) NumHyper() int                 { return m.Model.NumHyper() }
func (m *ExactMarginalLogLikelihood) Hyper(dst []float64) []float64 { return m.Model.Hyper(dst) }
func (m *ExactMarginalLogLikelihood) Bounds() []kernel.Bound        { return m.Model.Bounds() }

func (m *ExactMarginalLogLikelihood) SetHyper(h []float64) error {
	g, err := m.Model.WithHyper(h)
	if err != nil {
		return err
	}
	m.Model = g
	return nil
}

// Evaluate computes the value and gradient from one InvQuadLogDet call.
// With α = K⁻¹r the derivative with respect to a hyperparameter θ of K is
//  ½ αᵀ (∂K/∂θ) α - ½ tr(K⁻¹ ∂K/∂θ),
// where the trace reuses the probe solves of the log-determinant, and the
// derivative with respect to the mean is Σᵢ αᵢ. The derivatives with
// respect to the noise offsets gᵢ are ½ σᵢ² (αᵢ² - (K⁻¹)ᵢᵢ), all of them
// from one estimate of the diagonal of K⁻¹.
func (m *ExactMarginalLogLikelihood) Evaluate(h, grad []float64) (float64, error) {
	if grad != nil && len(grad) != m.NumHyper() {
		return math.NaN(), fmt.Errorf("gp: gradient of length %d for %d hyperparameters: %w", len(grad), m.NumHyper(), iterative.ErrShape)
	}
	g, err := m.Model.WithHyper(h)
	if err != nil {
		return math.NaN(), err
	}
	cov, err := g.Covariance()
	if err != nil {
		return math.NaN(), err
	}
	res, werr := linalg.InvQuadLogDet(cov, g.residual(), g.Settings)
	if res == nil {
		return math.NaN(), werr
	}
	n := float64(g.NumData())
	v := -0.5*res.InvQuad[0] - 0.5*res.LogDet.Value - 0.5*n*math.Log(2*math.Pi)

	if grad != nil {
		nk := g.Kernel.NumHyper()
		for i, dk := range kernel.MatrixGrad(g.Kernel, g.x, g.Settings.DenseThreshold) {
			d, err := derivative(res, dk)
			if err != nil {
				return math.NaN(), err
			}
			grad[i] = d
		}
		grad[nk] = sumCol(res.Solve, 0)
		noise := g.NoiseVariances()
		d, err := derivative(res, linop.NewDiagonal(noise))
		if err != nil {
			return math.NaN(), err
		}
		grad[nk+1] = d
		if g.Noise != nil {
			inv, err := res.InverseDiag()
			if err != nil {
				return math.NaN(), err
			}
			for i, s := range noise {
				a := res.Solve.At(i, 0)
				grad[nk+2+i] = 0.5 * s * (a*a - inv[i])
			}
		}
	}

	for _, t := range m.Added {
		tv, err := t.Value(g, grad)
		if !iterative.IsWarning(err) {
			return math.NaN(), err
		}
		if err != nil {
			werr = err
		}
		v += tv
	}

	v /= n
	if grad != nil {
		floats.Scale(1/n, grad)
	}
	return v, werr
}

// derivative returns ½ αᵀ dK α - ½ tr(K⁻¹ dK).
func derivative(res *linalg.InvQuadLogDetResult, dK linop.Operator) (float64, error) {
	q, err := res.InvQuadGrad(dK)
	if err != nil {
		return 0, err
	}
	tr, err := linalg.LogDetBackward(res, dK)
	if err != nil {
		return 0, err
	}
	return -0.5*q[0] - 0.5*tr.Value, nil
}

// SumMarginalLogLikelihood is the sum of the objectives of independent
// models. Its hyperparameters are those of the terms in order.
type SumMarginalLogLikelihood struct {
	Terms []MarginalLogLikelihood
}

// NewSumMarginalLogLikelihood returns the sum of the objectives.
func NewSumMarginalLogLikelihood(terms ...MarginalLogLikelihood) *SumMarginalLogLikelihood {
	return &SumMarginalLogLikelihood{Terms: terms}
}

func (s *SumMarginalLogLikelihood) NumHyper() int {
	var n int
	for _, t := range s.Terms {
		n += t.NumHyper()
	}
	return n
}

func (s *SumMarginalLogLikelihood) Hyper(dst []float64) []float64 {
	if dst == nil {
		dst = make([]float64, s.NumHyper())
	}
	s.split(dst, func(t MarginalLogLikelihood, h []float64) error {
		t.Hyper(h)
		return nil
	})
	return dst
}

func (s *SumMarginalLogLikelihood) Bounds() []kernel.Bound {
	var b []kernel.Bound
	for _, t := range s.Terms {
		b = append(b, t.Bounds()...)
	}
	return b
}

func (s *SumMarginalLogLikelihood) SetHyper(h []float64) error {
	if len(h) != s.NumHyper() {
		return fmt.Errorf("gp: sum has %d hyperparameters, got %d: %w", s.NumHyper(), len(h), iterative.ErrShape)
	}
	return s.split(h, func(t MarginalLogLikelihood, h []float64) error {
		return t.SetHyper(h)
	})
}

func (s *SumMarginalLogLikelihood) Evaluate(h, grad []float64) (float64, error) {
	if len(h) != s.NumHyper() || (grad != nil && len(grad) != len(h)) {
		return math.NaN(), fmt.Errorf("gp: sum has %d hyperparameters, got %d: %w", s.NumHyper(), len(h), iterative.ErrShape)
	}
	var (
		v    float64
		off  int
		werr error
	)
	for _, t := range s.Terms {
		nh := t.NumHyper()
		var g []float64
		if grad != nil {
			g = grad[off : off+nh]
		}
		tv, err := t.Evaluate(h[off:off+nh], g)
		if !iterative.IsWarning(err) {
			return math.NaN(), err
		}
		if err != nil {
			werr = err
		}
		v += tv
		off += nh
	}
	return v, werr
}

func (s *SumMarginalLogLikelihood) split(h []float64, fn func(MarginalLogLikelihood, []float64) error) error {
	var off int
	for _, t := range s.Terms {
		nh := t.NumHyper()
		if err := fn(t, h[off:off+nh]); err != nil {
			return err
		}
		off += nh
	}
	return nil
}
