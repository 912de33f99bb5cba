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

	"github.com/vladimir-ch/lazygp/gp"
	"github.com/vladimir-ch/lazygp/kernel"
)

func newTrainCmd(e *env) *cobra.Command {
	var (
		n       int
		noise   float64
		iters   int
		seed    int64
		priors  bool
		matern  bool
		initial float64
		hetero  bool
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit GP hyperparameters to noisy samples of sin(2πx)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rnd := rand.New(rand.NewSource(seed))
			x := mat.NewDense(n, 1, nil)
			y := make([]float64, n)
			for i := range y {
				v := rnd.Float64()
				x.Set(i, 0, v)
				y[i] = math.Sin(2*math.Pi*v) + math.Sqrt(noise)*rnd.NormFloat64()
			}

			var base kernel.Kernel = kernel.RBF{LogLength: math.Log(initial)}
			if matern {
				base = kernel.Matern{Nu: kernel.FiveHalves, LogLength: math.Log(initial)}
			}
			g, err := gp.NewExactGP(kernel.Scale{Base: base}, x, y, e.settings)
			if err != nil {
				return err
			}
			var added []gp.AddedLossTerm
			if priors {
				added = append(added,
					gp.LogNormalPrior(0, 0, 1),
					gp.GammaPrior(g.Kernel.NumHyper()+1, 1.1, 20))
			}
			if hetero {
				noiseKernel := kernel.Scale{Base: kernel.RBF{LogLength: math.Log(0.3)}, LogScale: math.Log(0.5)}
				g.Noise = gp.NewHeteroskedasticNoise(noiseKernel, n)
				added = append(added, gp.NoiseModelAddedLossTerm{})
			}
			m := gp.NewExactMarginalLogLikelihood(g, added...)

			res, err := gp.Train(m, gp.TrainSettings{MaxIterations: iters, Logger: e.log})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mll %.6f -> %.6f (%d iterations, %d evaluations, %v)\n",
				res.Initial, res.Value, res.Iterations, res.Evals, res.Status)
			nk := m.Model.Kernel.NumHyper()
			fmt.Fprintf(out, "length   %.6f\n", math.Exp(res.Hyper[0]))
			fmt.Fprintf(out, "scale    %.6f\n", math.Exp(res.Hyper[nk-1]))
			fmt.Fprintf(out, "mean     %.6f\n", res.Hyper[nk])
			fmt.Fprintf(out, "noise    %.6f\n", math.Exp(res.Hyper[nk+1]))
			if hetero {
				v := m.Model.NoiseVariances()
				fmt.Fprintf(out, "noise range %.6f %.6f\n", floats.Min(v), floats.Max(v))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVarP(&n, "points", "n", 50, "number of training points")
	f.Float64Var(&noise, "noise", 0.01, "variance of the noise of the samples")
	f.IntVar(&iters, "iterations", 100, "maximum number of L-BFGS iterations")
	f.Int64Var(&seed, "seed", 1, "seed of the training data")
	f.BoolVar(&priors, "priors", false, "add a log-normal prior on the length and a gamma prior on the noise")
	f.BoolVar(&matern, "matern", false, "use a Matérn 5/2 kernel instead of RBF")
	f.Float64Var(&initial, "length", 1, "initial length scale")
	f.BoolVar(&hetero, "heteroskedastic", false, "learn a noise variance per point with a GP prior on the log offsets")
	return cmd
}
