// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linop

import "github.com/vladimir-ch/lazygp/iterative"

// Diagonal is a diagonal matrix.
type Diagonal struct {
	base
	d  []float64
	pd bool
}

// NewDiagonal returns a diagonal operator with the entries d. d is copied.
func NewDiagonal(d []float64) *Diagonal {
	return &Diagonal{d: append([]float64(nil), d...)}
}

// NewPositiveDiagonal returns a diagonal operator that declares the
// positive-definite contract. It fails with a *iterative.NumericalError if an
// entry of d is not positive.
func NewPositiveDiagonal(d []float64) (*Diagonal, error) {
	for i, v := range d {
		if !(v > 0) {
			return nil, iterative.Numerical("linop.NewPositiveDiagonal", "entry %d is %v, not positive", i, v)
		}
	}
	diag := NewDiagonal(d)
	diag.pd = true
	return diag, nil
}

// Constant returns the n×n diagonal operator c*I.
func Constant(n int, c float64) *Diagonal {
	d := make([]float64, n)
	for i := range d {
		d[i] = c
	}
	return &Diagonal{d: d, pd: c > 0}
}

// Identity returns the n×n identity.
func Identity(n int) *Diagonal {
	return Constant(n, 1)
}

func (d *Diagonal) Kind() Kind      { return KindDiagonal }
func (d *Diagonal) Size() int       { return len(d.d) }
func (d *Diagonal) Shape() Shape    { return plain(len(d.d)) }
func (d *Diagonal) Symmetric() bool { return true }

// PositiveDefinite reports whether d declares the positive-definite
// contract.
func (d *Diagonal) PositiveDefinite() bool { return d.pd }

// Values returns a copy of the diagonal entries.
func (d *Diagonal) Values() []float64 { return append([]float64(nil), d.d...) }

// IsConstant reports whether all entries are equal, and returns the value.
func (d *Diagonal) IsConstant() (float64, bool) {
	if len(d.d) == 0 {
		return 0, false
	}
	c := d.d[0]
	for _, v := range d.d[1:] {
		if v != c {
			return 0, false
		}
	}
	return c, true
}
