// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/vladimir-ch/lazygp/iterative"
	"github.com/vladimir-ch/lazygp/kernel"
)

// AddedLossTerm is an additional term of the marginal log-likelihood, such
// as a log prior or a regularizer of an approximate kernel.
type AddedLossTerm interface {
	// Value returns the term for the hyperparameters of g and, if grad
	// is not nil, adds the gradient of the term to grad.
	Value(g *ExactGP, grad []float64) (float64, error)
}

var (
	_ AddedLossTerm = PriorTerm{}
	_ AddedLossTerm = (*InducingPointTerm)(nil)
)

// Prior is a univariate density. It is satisfied by the distributions of
// gonum's distuv package.
type Prior interface {
	LogProb(x float64) float64
}

// PriorTerm is the log prior density of one log-parameterized
// hyperparameter h, evaluated at exp(h).
type PriorTerm struct {
	Index int
	Prior Prior
}

// LogNormalPrior returns the log-normal prior with parameters mu and sigma
// on hyperparameter index.
func LogNormalPrior(index int, mu, sigma float64) PriorTerm {
	return PriorTerm{Index: index, Prior: distuv.LogNormal{Mu: mu, Sigma: sigma}}
}

// GammaPrior returns the gamma prior with shape alpha and rate beta on
// hyperparameter index.
func GammaPrior(index int, alpha, beta float64) PriorTerm {
	return PriorTerm{Index: index, Prior: distuv.Gamma{Alpha: alpha, Beta: beta}}
}

func (t PriorTerm) Value(g *ExactGP, grad []float64) (float64, error) {
	if t.Index < 0 || g.NumHyper() <= t.Index {
		return 0, fmt.Errorf("gp: prior on hyperparameter %d of %d: %w", t.Index, g.NumHyper(), iterative.ErrShape)
	}
	h := g.Hyper(nil)[t.Index]
	x := math.Exp(h)
	v := t.Prior.LogProb(x)
	if grad != nil {
		grad[t.Index] += t.deriv(h, x)
	}
	return v, nil
}

// deriv returns d log p(exp(h)) / dh.
func (t PriorTerm) deriv(h, x float64) float64 {
	switch p := t.Prior.(type) {
	case distuv.LogNormal:
		return -1 - (h-p.Mu)/(p.Sigma*p.Sigma)
	case distuv.Gamma:
		return (p.Alpha - 1) - p.Beta*x
	}
	return fd.Derivative(func(h float64) float64 {
		return t.Prior.LogProb(math.Exp(h))
	}, h, &fd.Settings{Formula: fd.Central})
}

// InducingPointTerm is the regularizer -½σ⁻² tr(K - Q) of a kernel replaced
// by its Nyström approximation Q with inducing points in the rows of Z.
// The term vanishes when Q equals K.
type InducingPointTerm struct {
	Z      *mat.Dense
	Jitter float64
}

// Value computes the gradient by central differences; each evaluation costs
// O(nm²) for n training and m inducing points.
func (t *InducingPointTerm) Value(g *ExactGP, grad []float64) (float64, error) {
	v, err := t.value(g)
	if err != nil || grad == nil {
		return v, err
	}
	var ferr error
	d := fd.Gradient(nil, func(h []float64) float64 {
		c, err := g.WithHyper(h)
		if err != nil {
			ferr = err
			return math.NaN()
		}
		v, err := t.value(c)
		if err != nil {
			ferr = err
		}
		return v
	}, g.Hyper(nil), &fd.Settings{Formula: fd.Central})
	if ferr != nil {
		return v, ferr
	}
	for i, di := range d {
		grad[i] += di
	}
	return v, nil
}

func (t *InducingPointTerm) value(g *ExactGP) (float64, error) {
	q, err := kernel.Inducing(g.Kernel, g.x, t.Z, t.Jitter)
	if err != nil {
		return 0, err
	}
	var tr float64
	n, _ := g.x.Dims()
	for i := 0; i < n; i++ {
		xi := g.x.RawRowView(i)
		tr += g.Kernel.Eval(xi, xi)
	}
	u := q.Factor()
	tr -= mat.Norm(u, 2) * mat.Norm(u, 2)
	return -0.5 * tr / math.Exp(g.LogNoise), nil
}
