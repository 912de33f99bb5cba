// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linop

import (
	"github.com/vladimir-ch/lazygp/internal/dok"
	"github.com/vladimir-ch/lazygp/internal/triplet"
)

// Sparse is a symmetric matrix stored in coordinate format.
type Sparse struct {
	base
	m *triplet.Matrix
}

// SparseBuilder assembles a Sparse operator.
type SparseBuilder struct {
	d *dok.DOK
}

// NewSparseBuilder returns a builder for an n×n symmetric sparse matrix.
func NewSparseBuilder(n int) *SparseBuilder {
	return &SparseBuilder{d: dok.New(n)}
}

// Add adds v to the entries (i,j) and (j,i).
func (b *SparseBuilder) Add(i, j int, v float64) {
	b.d.AddAt(i, j, v)
}

// Set sets the entries (i,j) and (j,i) to v.
func (b *SparseBuilder) Set(i, j int, v float64) {
	b.d.SetAt(i, j, v)
}

// Build returns the assembled operator. The builder may be reused.
func (b *SparseBuilder) Build() *Sparse {
	return &Sparse{m: b.d.Triplet()}
}

func (s *Sparse) Kind() Kind { return KindSparse }
func (s *Sparse) Size() int {
	n, _ := s.m.Dims()
	return n
}
func (s *Sparse) Shape() Shape    { return plain(s.Size()) }
func (s *Sparse) Symmetric() bool { return true }

// NNZ returns the number of stored entries on or above the diagonal.
func (s *Sparse) NNZ() int { return s.m.NNZ() }
