// Copyright ©2016 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package iterative provides Krylov subspace methods for symmetric
// positive-definite linear systems whose matrix is available only through
// matrix-vector products: preconditioned conjugate gradients for one or many
// right-hand sides, Lanczos tridiagonalization and the quadrature and
// stochastic trace estimators built on top of it.
package iterative

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
)

// MatrixOps describes the symmetric matrix of the
// linear system in terms of A*x operations.
type MatrixOps struct {
	// Compute A*x and store the result
	// into dst.
	// It must be non-nil.
	MatVec func(dst, x []float64)
}

// Settings holds various settings for
// solving a linear system.
type Settings struct {
	// X0 is an initial guess.
	// If it is nil, the zero vector will
	// be used.
	// If it is not nil, the length of X0
	// must be equal to the dimension of
	// the system.
	X0 []float64

	// Tolerance specifies error
	// tolerance for the final
	// approximate solution produced by
	// the iterative method. The
	// stopping criterion is
	//  |r_i| < Tolerance * |b|.
	// Tolerance must be smaller than one
	// and not smaller than the machine
	// epsilon of Precision.
	Tolerance float64

	// MaxIterations is the limit on the
	// number of iterations.
	// If it is zero, it will be set to
	// twice the dimension of the system.
	MaxIterations int

	// PSolve describes the
	// preconditioner solve that stores
	// into dst the solution of the
	// system
	//  M z = rhs.
	// If it is nil, no preconditioning
	// will be used (M is the
	// identity).
	PSolve func(dst, rhs []float64) error

	// Precision is the precision at
	// which iterates are kept.
	Precision Precision
}

func defaultSettings(s *Settings, dim int) error {
	if s.Tolerance == 0 {
		s.Tolerance = 1e-6
	}
	if s.MaxIterations == 0 {
		s.MaxIterations = 2 * dim
	}
	if s.MaxIterations < 0 {
		return Numerical("iterative.LinearSolve", "negative iteration limit %d", s.MaxIterations)
	}
	if s.Tolerance < s.Precision.Eps() || 1 <= s.Tolerance {
		return Numerical("iterative.LinearSolve", "invalid tolerance %v for %v", s.Tolerance, s.Precision)
	}
	return nil
}

// Operation specifies the type of operation.
type Operation uint64

// Operations commanded by Method.Iterate.
const (
	NoOperation Operation = 0

	// Multiply A*x where x is stored
	// in Context.Src and the result will
	// be stored in Context.Dst.
	MatVec Operation = 1 << (iota - 1)

	// Do the preconditioner solve
	//  M z = r,
	// where r is stored in Context.Src,
	// and store the solution z in
	// Context.Dst.
	PSolve

	// Compute b - A*x where x is stored
	// in Context.X and store the result
	// into Context.Residual.
	ComputeResidual

	// Check convergence using the
	// current approximation in Context.X
	// and the residual in Context.ResidualNorm.
	// If convergence is detected,
	// Context.Converged will be set to
	// true before Method.Iterate is
	// called again.
	CheckResidualNorm

	// EndIteration indicates that Method
	// has finished what it considers to
	// be one iteration. It can be used
	// to update an iteration counter. If
	// Context.Converged is true, the
	// iterative process must be
	// terminated, and Method.Init must
	// be called before calling
	// Method.Iterate again.
	EndIteration
)

// Method is an iterative method that produces a sequence of vectors converging
// to the vector x satisfying a system of linear equations
//  A x = b,
// where A is a symmetric positive-definite dim×dim matrix, and x and b are
// vectors of dimension dim.
//
// Method uses a reverse-communication interface between the iterative algorithm
// and the caller. Method acts as a client that commands the caller to perform
// needed operations via Operation returned from Iterate methods. This provides
// independence of Method on representation of the matrix A, and enables
// automation of common operations like checking for convergence and maintaining
// statistics.
type Method interface {
	// Init initializes the method for solving a dim×dim linear system.
	Init(dim int)

	// Iterate retrieves data from Context, updates it, and returns the next
	// operation. The caller must perform the Operation using data in
	// Context, and depending on the state call Iterate again.
	Iterate(*Context) (Operation, error)
}

// Context mediates the communication between a Method and the caller. It must
// not be modified or accessed apart from the commanded Operations.
type Context struct {
	// X is the current approximate solution. On the first call to
	// Method.Iterate, X must contain the initial estimate. Method must
	// update X with the current estimate when it commands ComputeResidual
	// and EndIteration.
	X []float64
	// Residual is the current residual b-A*x. On the first call to
	// Method.Iterate, Residual must contain the initial residual.
	Residual []float64
	// ResidualNorm is (an estimate of) the norm of the current residual.
	// Method must update it when it commands CheckResidualNorm.
	ResidualNorm float64
	// Converged indicates to Method that the ResidualNorm satisfies the
	// stopping criterion as a result of CheckResidualNorm operation.
	// If a Method commands EndIteration with Converged true, the caller
	// must not call Method.Iterate again without calling Method.Init first.
	Converged bool

	// Src and Dst are the source and destination vectors for various
	// Operations.
	Src, Dst []float64
}

// Result holds the result of an iterative solve.
type Result struct {
	// X is the approximate solution. If the
	// solve did not converge, it is the
	// iterate with the smallest residual.
	X []float64
	// Stats holds the statistics of the
	// solve.
	Stats Stats
}

// Stats holds statistics about an iterative solve.
type Stats struct {
	// Iterations is the number of
	// iteration done by Method.
	Iterations int
	// MatVec is the number of MatVec
	// operations commanded by a Method.
	MatVec int
	// PSolve is the number of PSolve
	// operations commanded by a Method.
	PSolve int
	// ResidualNorm is the final relative
	// norm of the residual of X.
	ResidualNorm float64
	// ResidualHistory holds, for each
	// iteration, the smallest relative
	// residual norm seen so far. It is
	// non-increasing.
	ResidualHistory []float64
	// Residuals holds the relative
	// residual norm of the iterate of
	// each iteration. For batched solves
	// it is the largest one across
	// right-hand sides.
	Residuals []float64
	// StartTime is an approximate time
	// when the solve was started.
	StartTime time.Time
	// Runtime is an approximate duration
	// of the solve.
	Runtime time.Duration
}

// LinearSolve solves the system of n linear equations
//  A*x = b,
// where the symmetric positive-definite n×n matrix A is represented by the
// matrix-vector operation in a. The dimension of the problem n is determined
// by the length of b.
//
// method is an iterative method used for finding an approximate solution of the
// linear system. It must not be nil.
//
// settings provide means for adjusting the iterative process. Zero values of
// the fields mean default values.
//
// If the iteration limit is reached before convergence, LinearSolve returns
// the best iterate found together with a *ConvergenceWarning. A zero b
// yields the zero solution without any iteration.
func LinearSolve(a MatrixOps, b []float64, method Method, settings Settings) (Result, error) {
	stats := Stats{StartTime: time.Now()}

	dim := len(b)
	if a.MatVec == nil {
		panic("iterative: nil matrix-vector multiplication")
	}
	if method == nil {
		panic("iterative: nil method")
	}
	if settings.X0 != nil && len(settings.X0) != dim {
		return Result{}, fmt.Errorf("iterative: initial guess has length %d, want %d: %w", len(settings.X0), dim, ErrShape)
	}

	if dim == 0 {
		return Result{Stats: stats}, nil
	}

	if err := defaultSettings(&settings, dim); err != nil {
		return Result{}, err
	}

	ctx := &Context{
		X:        make([]float64, dim),
		Residual: make([]float64, dim),
	}
	bnorm := floats.Norm(b, 2)
	if bnorm == 0 {
		// The solution of A x = 0 is x = 0 regardless of X0.
		stats.Runtime = time.Since(stats.StartTime)
		return Result{X: ctx.X, Stats: stats}, nil
	}
	if settings.X0 != nil {
		copy(ctx.X, settings.X0)
		a.MatVec(ctx.Residual, ctx.X)
		stats.MatVec++
		settings.Precision.Round(ctx.Residual)
		floats.AddScaledTo(ctx.Residual, b, -1, ctx.Residual) // r = b - Ax
	} else {
		copy(ctx.Residual, b) // r = b
	}

	ctx.ResidualNorm = floats.Norm(ctx.Residual, 2)
	stats.ResidualNorm = ctx.ResidualNorm / bnorm
	best := ctx.X
	var err error
	if stats.ResidualNorm >= settings.Tolerance {
		best, err = iterate(a, b, bnorm, ctx, settings, method, &stats)
	}

	stats.Runtime = time.Since(stats.StartTime)
	return Result{
		X:     best,
		Stats: stats,
	}, err
}

func iterate(a MatrixOps, b []float64, bnorm float64, ctx *Context, settings Settings, method Method, stats *Stats) ([]float64, error) {
	dim := len(ctx.X)
	prec := settings.Precision

	best := make([]float64, dim)
	copy(best, ctx.X)
	bestNorm := stats.ResidualNorm

	method.Init(dim)

	for {
		op, err := method.Iterate(ctx)
		if err != nil {
			return best, err
		}

		switch op {
		case NoOperation:

		case ComputeResidual:
			a.MatVec(ctx.Residual, ctx.X)
			stats.MatVec++
			prec.Round(ctx.Residual)
			floats.AddScaledTo(ctx.Residual, b, -1, ctx.Residual)

		case MatVec:
			a.MatVec(ctx.Dst, ctx.Src)
			stats.MatVec++
			prec.Round(ctx.Dst)

		case PSolve:
			if settings.PSolve == nil {
				copy(ctx.Dst, ctx.Src)
				continue
			}
			err = settings.PSolve(ctx.Dst, ctx.Src)
			if err != nil {
				return best, err
			}
			stats.PSolve++
			prec.Round(ctx.Dst)

		case CheckResidualNorm:
			ctx.Converged = ctx.ResidualNorm/bnorm < settings.Tolerance

		case EndIteration:
			prec.Round(ctx.X)
			stats.Iterations++
			rel := ctx.ResidualNorm / bnorm
			if rel < bestNorm {
				bestNorm = rel
				copy(best, ctx.X)
			}
			stats.Residuals = append(stats.Residuals, rel)
			stats.ResidualNorm = bestNorm
			stats.ResidualHistory = append(stats.ResidualHistory, bestNorm)
			if ctx.Converged {
				return best, nil
			}
			if stats.Iterations == settings.MaxIterations {
				return best, &ConvergenceWarning{
					Op:           "iterative.LinearSolve",
					Iterations:   stats.Iterations,
					ResidualNorm: bestNorm,
					Tolerance:    settings.Tolerance,
				}
			}

		default:
			panic("iterate: invalid operation")
		}
	}
}

func reuse(v []float64, n int) []float64 {
	if cap(v) < n {
		return make([]float64, n)
	}
	v = v[:n]
	for i := range v {
		v[i] = 0
	}
	return v
}
