// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gp

import (
	"io"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/vladimir-ch/lazygp/iterative"
)

// Objective exposes a marginal log-likelihood as an unnormalized log
// density of the hyperparameters for an external sampler such as HMC or
// NUTS.
type Objective struct {
	MLL MarginalLogLikelihood
	// Scale multiplies the objective. An ExactMarginalLogLikelihood
	// is normalized by the number of training points, so a Scale of
	// that number recovers the log marginal likelihood. Zero means 1.
	Scale float64

	// Err is the first error other than a convergence warning met
	// during an evaluation.
	Err error
}

// NewObjective returns the objective of m scaled by its number of
// training points.
func NewObjective(m *ExactMarginalLogLikelihood) *Objective {
	return &Objective{MLL: m, Scale: float64(m.Model.NumData())}
}

func (o *Objective) scale() float64 {
	if o.Scale == 0 {
		return 1
	}
	return o.Scale
}

func (o *Objective) record(err error) bool {
	if iterative.IsWarning(err) {
		return false
	}
	if o.Err == nil {
		o.Err = err
	}
	return true
}

// LogDensity returns the log density at theta, or -Inf if it cannot be
// evaluated.
func (o *Objective) LogDensity(theta []float64) float64 {
	v, err := o.MLL.Evaluate(theta, nil)
	if o.record(err) {
		return math.Inf(-1)
	}
	return o.scale() * v
}

// Grad stores the gradient of the log density at theta in dst. It stores
// NaN values if the gradient cannot be evaluated.
func (o *Objective) Grad(dst, theta []float64) {
	_, err := o.MLL.Evaluate(theta, dst)
	if o.record(err) {
		for i := range dst {
			dst[i] = math.NaN()
		}
		return
	}
	floats.Scale(o.scale(), dst)
}

// TrainSettings controls Train.
type TrainSettings struct {
	// MaxIterations is the limit on the
	// number of L-BFGS iterations. Zero
	// means 100.
	MaxIterations int
	// GradientThreshold stops the
	// optimization when the infinity norm
	// of the gradient is below it. Zero
	// means 1e-5.
	GradientThreshold float64
	// Logger receives progress at Debug
	// and the result at Info.
	Logger *slog.Logger
}

// TrainResult is the outcome of Train.
type TrainResult struct {
	Hyper      []float64
	Value      float64
	Initial    float64
	Iterations int
	Evals      int
	Status     optimize.Status
}

// Train maximizes m over its hyperparameters with L-BFGS, starting from the
// current hyperparameters moved into their bounds, and sets the best
// hyperparameters found.
//
// The objective is deterministic for a fixed linalg Settings.Seed, so the
// line search sees the same probe vectors at every point.
func Train(m MarginalLogLikelihood, s TrainSettings) (*TrainResult, error) {
	log := s.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.MaxIterations == 0 {
		s.MaxIterations = 100
	}
	if s.GradientThreshold == 0 {
		s.GradientThreshold = 1e-5
	}

	x0 := m.Hyper(nil)
	for i, b := range m.Bounds() {
		x0[i] = b.Clamp(x0[i])
	}

	c := &evalCache{m: m}
	initial, err := c.eval(x0)
	if err != nil {
		return nil, err
	}

	evals := 0
	p := optimize.Problem{
		Func: func(x []float64) float64 {
			evals++
			v, err := c.eval(x)
			if err != nil {
				return math.Inf(1)
			}
			log.Debug("objective", "mll", v, "hyper", x)
			return -v
		},
		Grad: func(grad, x []float64) {
			if _, err := c.eval(x); err != nil {
				for i := range grad {
					grad[i] = math.NaN()
				}
				return
			}
			for i, g := range c.grad {
				grad[i] = -g
			}
		},
	}
	res, err := optimize.Minimize(p, x0, &optimize.Settings{
		MajorIterations:   s.MaxIterations,
		GradientThreshold: s.GradientThreshold,
	}, &optimize.LBFGS{})
	if res == nil {
		return nil, err
	}
	best, value := res.X, -res.F
	if !(value >= initial) {
		best, value = x0, initial
	}
	if err != nil {
		// Keep the best point when the line search fails.
		log.Debug("optimizer stopped", "err", err)
	}
	if err := m.SetHyper(best); err != nil {
		return nil, err
	}
	out := &TrainResult{
		Hyper:      append([]float64(nil), best...),
		Value:      value,
		Initial:    initial,
		Iterations: res.Stats.MajorIterations,
		Evals:      evals,
		Status:     res.Status,
	}
	log.Info("training done",
		"initial", initial,
		"mll", value,
		"iterations", out.Iterations,
		"status", out.Status.String())
	return out, nil
}

// evalCache keeps the last evaluation, since the optimizer requests the
// value and the gradient at a point separately.
type evalCache struct {
	m    MarginalLogLikelihood
	x    []float64
	v    float64
	grad []float64
	err  error
}

func (c *evalCache) eval(x []float64) (float64, error) {
	if c.x != nil && floats.Equal(c.x, x) {
		return c.v, c.err
	}
	c.x = append(c.x[:0], x...)
	if c.grad == nil {
		c.grad = make([]float64, len(x))
	}
	v, err := c.m.Evaluate(x, c.grad)
	if iterative.IsWarning(err) {
		err = nil
	}
	if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
		err = iterative.Numerical("gp.Train", "non-finite objective %v", v)
	}
	c.v, c.err = v, err
	return v, err
}
