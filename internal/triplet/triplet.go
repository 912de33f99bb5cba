// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package triplet provides coordinate (COO) storage for sparse symmetric
// matrices. Only entries on or above the diagonal are stored.
package triplet

type triplet struct {
	i, j int
	v    float64
}

// Matrix is an n×n symmetric matrix in coordinate format.
type Matrix struct {
	n    int
	data []triplet
}

func New(n int) *Matrix {
	return &Matrix{n: n}
}

func (m *Matrix) Dims() (r, c int) {
	return m.n, m.n
}

// NNZ returns the number of stored entries.
func (m *Matrix) NNZ() int {
	return len(m.data)
}

// Append adds v to the entries (i,j) and (j,i). Duplicate entries are
// summed.
func (m *Matrix) Append(i, j int, v float64) {
	if i < 0 || m.n <= i {
		panic("row index out of range")
	}
	if j < 0 || m.n <= j {
		panic("column index out of range")
	}
	if j < i {
		i, j = j, i
	}
	m.data = append(m.data, triplet{i, j, v})
}

// Do calls fn for every stored entry on or above the diagonal.
func (m *Matrix) Do(fn func(i, j int, v float64)) {
	for _, aij := range m.data {
		fn(aij.i, aij.j, aij.v)
	}
}

// MulVec computes dst = A*x.
func (m *Matrix) MulVec(dst, x []float64) {
	if m.n != len(x) {
		panic("dimension mismatch")
	}
	if m.n != len(dst) {
		panic("dimension mismatch")
	}
	for i := range dst {
		dst[i] = 0
	}
	for _, aij := range m.data {
		dst[aij.i] += aij.v * x[aij.j]
		if aij.i != aij.j {
			dst[aij.j] += aij.v * x[aij.i]
		}
	}
}

// Diag stores the diagonal of A into dst.
func (m *Matrix) Diag(dst []float64) {
	if m.n != len(dst) {
		panic("dimension mismatch")
	}
	for i := range dst {
		dst[i] = 0
	}
	for _, aij := range m.data {
		if aij.i == aij.j {
			dst[aij.i] += aij.v
		}
	}
}
