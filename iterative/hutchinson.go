// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package iterative

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ProbeKind is the distribution of random probe vectors.
type ProbeKind int

const (
	// Rademacher probes have independent ±1 entries.
	Rademacher ProbeKind = iota
	// Gaussian probes have independent standard normal entries.
	Gaussian
)

// Probes returns an n×k matrix whose columns are independent probe vectors
// with zero mean and identity covariance.
func Probes(n, k int, kind ProbeKind, rnd *rand.Rand) *mat.Dense {
	z := mat.NewDense(n, k, nil)
	raw := z.RawMatrix()
	for i := 0; i < n; i++ {
		row := raw.Data[i*raw.Stride : i*raw.Stride+k]
		for j := range row {
			if kind == Gaussian {
				row[j] = rnd.NormFloat64()
			} else if rnd.Intn(2) == 0 {
				row[j] = -1
			} else {
				row[j] = 1
			}
		}
	}
	return z
}

// Estimate is a Monte-Carlo estimate with its standard error.
type Estimate struct {
	Value  float64
	StdErr float64
	// Samples are the per-probe values.
	Samples []float64
}

// NewEstimate summarizes per-probe samples.
func NewEstimate(samples []float64) Estimate {
	if len(samples) == 0 {
		return Estimate{}
	}
	mean, std := stat.MeanStdDev(samples, nil)
	if len(samples) == 1 || math.IsNaN(std) {
		std = 0
	}
	return Estimate{
		Value:   mean,
		StdErr:  std / math.Sqrt(float64(len(samples))),
		Samples: samples,
	}
}

// Hutchinson estimates tr(A) = E[zᵀAz] with numProbes probes of the given
// kind. quad must return zᵀAz for a probe z of length n.
func Hutchinson(n, numProbes int, kind ProbeKind, rnd *rand.Rand, quad func(z []float64) (float64, error)) (Estimate, error) {
	if numProbes <= 0 {
		return Estimate{}, Numerical("iterative.Hutchinson", "number of probes %d not positive", numProbes)
	}
	samples := make([]float64, numProbes)
	z := make([]float64, n)
	for p := range samples {
		for i := range z {
			if kind == Gaussian {
				z[i] = rnd.NormFloat64()
			} else if rnd.Intn(2) == 0 {
				z[i] = -1
			} else {
				z[i] = 1
			}
		}
		v, err := quad(z)
		if err != nil {
			return Estimate{}, err
		}
		samples[p] = v
	}
	return NewEstimate(samples), nil
}

// HutchinsonMatrix estimates tr(A) from a block of probes Z and the matching
// block AZ: the estimate averages the column dot products zⱼᵀ(AZ)ⱼ.
func HutchinsonMatrix(z, az *mat.Dense) Estimate {
	_, k := z.Dims()
	samples := make([]float64, k)
	for j := range samples {
		samples[j] = colDot(z, az, j)
	}
	return NewEstimate(samples)
}
