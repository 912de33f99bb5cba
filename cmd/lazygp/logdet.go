// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/vladimir-ch/lazygp/iterative"
	"github.com/vladimir-ch/lazygp/linalg"
)

func newLogDetCmd(e *env) *cobra.Command {
	var (
		n      int
		length float64
		noise  float64
	)
	cmd := &cobra.Command{
		Use:   "logdet",
		Short: "Compare the stochastic Lanczos log-determinant with Cholesky",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The kernel matrix is implicit so that the iterative
			// estimate never forms it.
			cov, err := covariance(regularPoints(n), length, noise, 0)
			if err != nil {
				return err
			}
			it := e.settings
			it.Strategy = linalg.Iterative
			est, info, err := linalg.LogDet(cov, it)
			if !iterative.IsWarning(err) {
				return err
			}
			exact, _, err := linalg.LogDet(cov, reference(e.settings, n))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "exact     %.6f\n", exact.Value)
			fmt.Fprintf(out, "estimate  %.6f ± %.6f (%d probes, %d iterations)\n",
				est.Value, est.StdErr, len(est.Samples), info.Iterations)
			fmt.Fprintf(out, "relative error %.3e\n", math.Abs(est.Value-exact.Value)/math.Abs(exact.Value))
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVarP(&n, "points", "n", 400, "number of points")
	f.Float64Var(&length, "length", 0.1, "RBF length scale")
	f.Float64Var(&noise, "noise", 0.04, "noise variance added to the diagonal")
	return cmd
}
