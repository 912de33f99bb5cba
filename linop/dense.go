// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linop

import "gonum.org/v1/gonum/mat"

// Dense is an explicitly stored symmetric matrix.
type Dense struct {
	base
	m *mat.SymDense
}

// NewDense returns a Dense operator holding a copy of a.
func NewDense(a mat.Symmetric) *Dense {
	n := a.SymmetricDim()
	m := mat.NewSymDense(n, nil)
	m.CopySym(a)
	return &Dense{m: m}
}

// NewDenseData returns a Dense operator of order n whose upper triangle is
// taken from the row-major data. data is copied.
func NewDenseData(n int, data []float64) (*Dense, error) {
	if len(data) != n*n {
		return nil, shapeError("NewDenseData", "%d elements for order %d", len(data), n)
	}
	return &Dense{m: mat.NewSymDense(n, append([]float64(nil), data...))}, nil
}

func (d *Dense) Kind() Kind      { return KindDense }
func (d *Dense) Size() int       { return d.m.SymmetricDim() }
func (d *Dense) Shape() Shape    { return plain(d.Size()) }
func (d *Dense) Symmetric() bool { return true }

// At returns the element at row i and column j.
func (d *Dense) At(i, j int) float64 { return d.m.At(i, j) }
