// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package linalg chooses between closed-form and iterative algorithms for
// solves and log-determinants of lazy operators.
//
// Every function recurses through block-diagonal and scaled operators so
// that each part takes its cheapest path: a closed form from package linop
// when one exists and is cheaper than the estimated cost of conjugate
// gradients, preconditioned conjugate gradients otherwise. Log-determinants
// of operators without a closed form are estimated by stochastic Lanczos
// quadrature.
//
// Iterative results that did not reach the requested tolerance are returned
// together with a *iterative.ConvergenceWarning. Non-finite results are
// reported as *iterative.NumericalError.
package linalg

import (
	"io"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/vladimir-ch/lazygp/iterative"
	"github.com/vladimir-ch/lazygp/linop"
)

// Strategy selects how a computation is carried out.
type Strategy int

const (
	// Auto picks the cheaper of the available strategies.
	Auto Strategy = iota
	// ClosedForm uses a structured factorization or dense Cholesky.
	ClosedForm
	// Iterative uses preconditioned conjugate gradients and stochastic
	// Lanczos quadrature.
	Iterative
)

func (s Strategy) String() string {
	switch s {
	case Auto:
		return "auto"
	case ClosedForm:
		return "closed-form"
	case Iterative:
		return "iterative"
	}
	return "unknown"
}

// Default values of Settings.
const (
	DefaultMaxIterations      = 1000
	DefaultTolerance          = 1e-6
	DefaultPreconditionerRank = 15
	DefaultNumProbes          = 10
	DefaultLanczosSteps       = 30
	DefaultDenseThreshold     = 256
)

// Settings controls the accuracy and speed of the computations.
type Settings struct {
	// MaxIterations is the limit on the
	// number of CG iterations.
	MaxIterations int
	// Tolerance is the relative residual
	// tolerance of CG.
	Tolerance float64
	// PreconditionerRank is the rank of
	// the pivoted Cholesky
	// preconditioner. Zero disables
	// preconditioning.
	PreconditionerRank int
	// NumProbes is the number of random
	// probe vectors of stochastic
	// estimators. It must be positive for
	// log-determinants.
	NumProbes int
	// LanczosSteps is the maximum number
	// of Lanczos steps per probe. It must
	// be positive for log-determinants.
	LanczosSteps int
	// Precision is the working precision
	// of the iterative methods.
	Precision iterative.Precision
	// DenseThreshold is the largest order
	// of an operator that may be formed
	// densely for a Cholesky
	// factorization. Zero or negative
	// disables dense factorizations.
	DenseThreshold int
	// Strategy forces a strategy. Auto
	// compares estimated costs.
	Strategy Strategy
	// Seed seeds the random source of
	// the probe vectors. Calls with the
	// same seed draw the same probes.
	Seed int64

	// Logger receives convergence
	// warnings and strategy decisions. If
	// it is nil, nothing is logged.
	Logger *slog.Logger
	// Observer, if not nil, is notified
	// after every computation.
	Observer Observer
}

// DefaultSettings returns the default settings.
func DefaultSettings() Settings {
	return Settings{
		MaxIterations:      DefaultMaxIterations,
		Tolerance:          DefaultTolerance,
		PreconditionerRank: DefaultPreconditionerRank,
		NumProbes:          DefaultNumProbes,
		LanczosSteps:       DefaultLanczosSteps,
		DenseThreshold:     DefaultDenseThreshold,
	}
}

func (s Settings) check(op string) error {
	if s.MaxIterations < 0 {
		return iterative.Numerical(op, "negative iteration limit %d", s.MaxIterations)
	}
	if s.PreconditionerRank < 0 {
		return iterative.Numerical(op, "negative preconditioner rank %d", s.PreconditionerRank)
	}
	if s.Strategy < Auto || Iterative < s.Strategy {
		return iterative.Numerical(op, "unknown strategy %d", int(s.Strategy))
	}
	return nil
}

func (s Settings) checkStochastic(op string) error {
	if err := s.check(op); err != nil {
		return err
	}
	if s.NumProbes <= 0 {
		return iterative.Numerical(op, "number of probe vectors %d not positive", s.NumProbes)
	}
	if s.LanczosSteps <= 0 {
		return iterative.Numerical(op, "number of Lanczos steps %d not positive", s.LanczosSteps)
	}
	return nil
}

func (s Settings) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s.Logger
}

func (s Settings) rand() *rand.Rand {
	return rand.New(rand.NewSource(s.Seed))
}

func (s Settings) maxIterations() int {
	if s.MaxIterations == 0 {
		return DefaultMaxIterations
	}
	return s.MaxIterations
}

// Info describes how a computation was carried out.
type Info struct {
	// Strategy is the strategy that was
	// used. It is Auto when parts of a
	// block-diagonal operator used
	// different strategies.
	Strategy Strategy
	// Iterations is the largest number
	// of CG or Lanczos iterations.
	Iterations int
	// MatVecs is the number of
	// operator-vector products.
	MatVecs int
	// ResidualNorm is the largest final
	// relative residual norm of the
	// iterative solves.
	ResidualNorm float64
	// Runtime is the duration of the
	// computation.
	Runtime time.Duration
}

func (i *Info) merge(o Info) {
	if i.Strategy != o.Strategy {
		i.Strategy = Auto
	}
	if o.Iterations > i.Iterations {
		i.Iterations = o.Iterations
	}
	i.MatVecs += o.MatVecs
	i.ResidualNorm = math.Max(i.ResidualNorm, o.ResidualNorm)
}

// Event is passed to an Observer after a computation.
type Event struct {
	// Op is the name of the computation,
	// for example "solve" or "logdet".
	Op string
	// Kind is the kind of the operator.
	Kind linop.Kind
	// Size is the order of the operator.
	Size int
	// Info describes the computation.
	Info Info
	// Warning is true if an iterative
	// method did not converge.
	Warning bool
	// Err is true if the computation
	// failed.
	Err bool
}

// Observer is notified of completed computations.
type Observer interface {
	Observe(Event)
}

// finish logs and reports a completed computation.
func finish(s Settings, name string, op linop.Operator, start time.Time, info *Info, err error) {
	info.Runtime = time.Since(start)
	log := s.logger()
	w, warn := iterative.AsWarning(err)
	switch {
	case warn:
		log.Warn("iterative method did not converge",
			"op", name,
			"operator", op.Kind().String(),
			"size", op.Size(),
			"iterations", w.Iterations,
			"residual", w.ResidualNorm,
			"tolerance", w.Tolerance)
	case err != nil:
		log.Debug("computation failed", "op", name, "operator", op.Kind().String(), "err", err)
	default:
		log.Debug("computation done",
			"op", name,
			"operator", op.Kind().String(),
			"size", op.Size(),
			"strategy", info.Strategy.String(),
			"iterations", info.Iterations,
			"matvecs", info.MatVecs,
			"runtime", info.Runtime)
	}
	if s.Observer != nil {
		s.Observer.Observe(Event{
			Op:      name,
			Kind:    op.Kind(),
			Size:    op.Size(),
			Info:    *info,
			Warning: warn,
			Err:     err != nil && !warn,
		})
	}
}

// joinWarning combines the errors of independent parts. A hard error wins
// over a warning; of two warnings the one with the larger residual is kept.
func joinWarning(acc, err error) error {
	if err == nil {
		return acc
	}
	if acc == nil {
		return err
	}
	wa, okA := iterative.AsWarning(acc)
	we, okE := iterative.AsWarning(err)
	switch {
	case !okA:
		return acc
	case !okE:
		return err
	case we.ResidualNorm > wa.ResidualNorm:
		return err
	}
	return acc
}

// choose decides between a closed form of estimated cost closed (ok false
// if none exists) and an iterative method of estimated cost iter.
func choose(s Settings, closed float64, ok bool, iter float64) (Strategy, error) {
	switch s.Strategy {
	case ClosedForm:
		if !ok {
			return 0, linop.ErrNoClosedForm
		}
		return ClosedForm, nil
	case Iterative:
		return Iterative, nil
	}
	if ok && closed <= iter {
		return ClosedForm, nil
	}
	return Iterative, nil
}

// cgCost estimates the flops of solving with op for k right-hand sides by
// CG: at most min(n, MaxIterations) iterations of one product and the
// preconditioner solve.
func cgCost(op linop.Operator, s Settings, k int) float64 {
	n := float64(op.Size())
	its := math.Min(n, float64(s.maxIterations()))
	per := linop.MulCost(op) + 10*n + 4*n*float64(s.PreconditionerRank)
	return float64(k) * its * per
}
