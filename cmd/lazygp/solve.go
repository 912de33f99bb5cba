// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/vladimir-ch/lazygp/kernel"
	"github.com/vladimir-ch/lazygp/linalg"
	"github.com/vladimir-ch/lazygp/linop"
)

// regularPoints returns n regularly spaced points of [0, 1] as the rows of
// an n×1 matrix.
func regularPoints(n int) *mat.Dense {
	x := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, float64(i)/math.Max(1, float64(n-1)))
	}
	return x
}

// covariance returns K + noise·I for an RBF kernel at the rows of x.
func covariance(x *mat.Dense, length, noise float64, threshold int) (linop.Operator, error) {
	n, _ := x.Dims()
	k := kernel.RBF{LogLength: math.Log(length)}
	return linop.Add(kernel.Matrix(k, x, threshold), linop.Constant(n, noise))
}

// reference returns s changed to factorize operators of order n densely.
func reference(s linalg.Settings, n int) linalg.Settings {
	s.Strategy = linalg.ClosedForm
	if s.DenseThreshold < n {
		s.DenseThreshold = n
	}
	return s
}

func newSolveCmd(e *env) *cobra.Command {
	var (
		n      int
		length float64
		noise  float64
		tol    float64
		seed   int64
	)
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Solve a kernel system with CG and with Cholesky and compare",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			x := regularPoints(n)
			cov, err := covariance(x, length, noise, n)
			if err != nil {
				return err
			}
			rnd := rand.New(rand.NewSource(seed))
			y := make([]float64, n)
			for i := range y {
				y[i] = rnd.NormFloat64()
			}
			b := mat.NewDense(n, 1, y)

			it := e.settings
			it.Strategy = linalg.Iterative
			xi, info, err := linalg.Solve(cov, b, it)
			if xi == nil {
				return err
			}
			xc, _, err := linalg.Solve(cov, b, reference(e.settings, n))
			if err != nil {
				return err
			}

			si, sc := mat.Col(nil, 0, xi), mat.Col(nil, 0, xc)
			diff := floats.Distance(si, sc, math.Inf(1))
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%4s %14s %14s\n", "i", "cg", "cholesky")
			for i := range si {
				fmt.Fprintf(out, "%4d %14.8f %14.8f\n", i, si[i], sc[i])
			}
			fmt.Fprintf(out, "iterations %d, matvecs %d, residual %.3e\n", info.Iterations, info.MatVecs, info.ResidualNorm)
			fmt.Fprintf(out, "max difference %.3e\n", diff)
			if diff > tol {
				return fmt.Errorf("solutions differ by %.3e, more than %.1e", diff, tol)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVarP(&n, "points", "n", 6, "number of training points")
	f.Float64Var(&length, "length", 0.25, "RBF length scale")
	f.Float64Var(&noise, "noise", 0.04, "noise variance added to the diagonal")
	f.Float64Var(&tol, "tolerance", 1e-4, "largest allowed difference of the solutions")
	f.Int64Var(&seed, "seed", 1, "seed of the target vector")
	return cmd
}
