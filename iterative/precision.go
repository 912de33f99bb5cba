// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package iterative

import "strings"

// Precision is the floating-point precision at which iterates are kept.
// Float32 emulates single precision on top of float64 kernels by rounding
// every matrix-vector product, preconditioner solve and iterate.
type Precision int

const (
	Float64 Precision = iota
	Float32
)

// Eps returns the machine epsilon of p.
func (p Precision) Eps() float64 {
	if p == Float32 {
		return 1.0 / (1 << 24)
	}
	return dlamchE
}

// Round rounds the elements of v to p in place.
func (p Precision) Round(v []float64) {
	if p != Float32 {
		return
	}
	for i, x := range v {
		v[i] = float64(float32(x))
	}
}

func (p Precision) String() string {
	switch p {
	case Float64:
		return "float64"
	case Float32:
		return "float32"
	}
	return "invalid"
}

// ParsePrecision parses "float64" or "float32" (also "double" and
// "single").
func ParsePrecision(s string) (Precision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "float64", "double":
		return Float64, nil
	case "float32", "single":
		return Float32, nil
	}
	return Float64, Numerical("iterative.ParsePrecision", "unknown precision %q", s)
}

const dlamchE = 1.0 / (1 << 53)
