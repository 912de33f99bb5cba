// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

var lengthBound = Bound{math.Log(1e-3), math.Log(1e3)}

var (
	_ Kernel = RBF{}
	_ Kernel = Matern{}
	_ Kernel = Periodic{}
)

// RBF is the squared exponential kernel
//  k(x, y) = exp(-|x-y|²/(2ℓ²)).
type RBF struct {
	LogLength float64 // log ℓ
}

func (k RBF) NumHyper() int { return 1 }

func (k RBF) Eval(x, y []float64) float64 {
	l := math.Exp(k.LogLength)
	return math.Exp(-sqDist(x, y) / (2 * l * l))
}

func (k RBF) EvalGrad(deriv, x, y []float64) float64 {
	checkDeriv(deriv, 1)
	l := math.Exp(k.LogLength)
	r2 := sqDist(x, y) / (l * l)
	v := math.Exp(-r2 / 2)
	deriv[0] = v * r2
	return v
}

func (k RBF) Hyper(dst []float64) []float64 {
	dst = hyperSlice(dst, 1)
	dst[0] = k.LogLength
	return dst
}

func (k RBF) WithHyper(h []float64) (Kernel, error) {
	if err := checkHyper("RBF", k, h); err != nil {
		return nil, err
	}
	return RBF{LogLength: h[0]}, nil
}

func (k RBF) Bounds() []Bound { return []Bound{lengthBound} }

// Separable reports that the kernel is a product over dimensions.
func (k RBF) Separable() bool { return true }

// Nu is the smoothness of a Matérn kernel.
type Nu int

const (
	Half        Nu = iota // ν = 1/2
	ThreeHalves           // ν = 3/2
	FiveHalves            // ν = 5/2
)

func (nu Nu) String() string {
	switch nu {
	case Half:
		return "1/2"
	case ThreeHalves:
		return "3/2"
	case FiveHalves:
		return "5/2"
	}
	return fmt.Sprintf("Nu(%d)", int(nu))
}

// Matern is the Matérn kernel of smoothness ν ∈ {1/2, 3/2, 5/2}. With
// a = √(2ν)|x-y|/ℓ it is
//  ν = 1/2: exp(-a)
//  ν = 3/2: (1 + a) exp(-a)
//  ν = 5/2: (1 + a + a²/3) exp(-a)
type Matern struct {
	Nu        Nu
	LogLength float64 // log ℓ
}

func (k Matern) NumHyper() int { return 1 }

func (k Matern) scaled(x, y []float64) float64 {
	var c float64
	switch k.Nu {
	case Half:
		c = 1
	case ThreeHalves:
		c = math.Sqrt(3)
	case FiveHalves:
		c = math.Sqrt(5)
	default:
		panic("kernel: unknown Matérn smoothness")
	}
	return c * floats.Distance(x, y, 2) / math.Exp(k.LogLength)
}

func (k Matern) Eval(x, y []float64) float64 {
	a := k.scaled(x, y)
	e := math.Exp(-a)
	switch k.Nu {
	case ThreeHalves:
		return (1 + a) * e
	case FiveHalves:
		return (1 + a + a*a/3) * e
	}
	return e
}

// EvalGrad uses ∂a/∂log ℓ = -a.
func (k Matern) EvalGrad(deriv, x, y []float64) float64 {
	checkDeriv(deriv, 1)
	a := k.scaled(x, y)
	e := math.Exp(-a)
	switch k.Nu {
	case ThreeHalves:
		deriv[0] = a * a * e
		return (1 + a) * e
	case FiveHalves:
		deriv[0] = a * a * (1 + a) / 3 * e
		return (1 + a + a*a/3) * e
	}
	deriv[0] = a * e
	return e
}

func (k Matern) Hyper(dst []float64) []float64 {
	dst = hyperSlice(dst, 1)
	dst[0] = k.LogLength
	return dst
}

func (k Matern) WithHyper(h []float64) (Kernel, error) {
	if err := checkHyper("Matern", k, h); err != nil {
		return nil, err
	}
	return Matern{Nu: k.Nu, LogLength: h[0]}, nil
}

func (k Matern) Bounds() []Bound { return []Bound{lengthBound} }

// Periodic is the periodic kernel
//  k(x, y) = exp(-2 Σᵢ sin²(π|xᵢ-yᵢ|/p) / ℓ²).
type Periodic struct {
	LogLength float64 // log ℓ
	LogPeriod float64 // log p
}

func (k Periodic) NumHyper() int { return 2 }

func (k Periodic) Eval(x, y []float64) float64 {
	if len(x) != len(y) {
		panic("kernel: length mismatch")
	}
	l, p := math.Exp(k.LogLength), math.Exp(k.LogPeriod)
	var s float64
	for i, v := range x {
		t := math.Sin(math.Pi * math.Abs(v-y[i]) / p)
		s += t * t
	}
	return math.Exp(-2 * s / (l * l))
}

func (k Periodic) EvalGrad(deriv, x, y []float64) float64 {
	checkDeriv(deriv, 2)
	if len(x) != len(y) {
		panic("kernel: length mismatch")
	}
	l, p := math.Exp(k.LogLength), math.Exp(k.LogPeriod)
	var s, ds float64 // ds = ∂s/∂log p
	for i, v := range x {
		u := math.Pi * math.Abs(v-y[i]) / p
		t := math.Sin(u)
		s += t * t
		ds -= math.Sin(2*u) * u
	}
	val := math.Exp(-2 * s / (l * l))
	deriv[0] = val * 4 * s / (l * l)
	deriv[1] = -val * 2 / (l * l) * ds
	return val
}

func (k Periodic) Hyper(dst []float64) []float64 {
	dst = hyperSlice(dst, 2)
	dst[0] = k.LogLength
	dst[1] = k.LogPeriod
	return dst
}

func (k Periodic) WithHyper(h []float64) (Kernel, error) {
	if err := checkHyper("Periodic", k, h); err != nil {
		return nil, err
	}
	return Periodic{LogLength: h[0], LogPeriod: h[1]}, nil
}

func (k Periodic) Bounds() []Bound {
	return []Bound{lengthBound, {math.Log(1e-2), math.Log(1e2)}}
}

// Separable reports that the kernel is a product over dimensions.
func (k Periodic) Separable() bool { return true }
