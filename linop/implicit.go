// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linop

// Implicit is a symmetric matrix whose entries are computed on demand,
// typically a kernel matrix too large to store. A product with an n×k
// matrix evaluates every entry once in O(n²) time and O(n) extra memory.
type Implicit struct {
	base
	n     int
	entry func(i, j int) float64
	cost  float64
}

// NewImplicit returns the n×n symmetric operator with the given entries.
// entry must be safe for concurrent use and satisfy entry(i,j) == entry(j,i).
// cost is the approximate number of flops of one entry evaluation and is
// used only for choosing solution strategies; zero means 1.
func NewImplicit(n int, entry func(i, j int) float64, cost float64) *Implicit {
	if cost <= 0 {
		cost = 1
	}
	return &Implicit{n: n, entry: entry, cost: cost}
}

func (m *Implicit) Kind() Kind      { return KindImplicit }
func (m *Implicit) Size() int       { return m.n }
func (m *Implicit) Shape() Shape    { return plain(m.n) }
func (m *Implicit) Symmetric() bool { return true }

// At returns the element at row i and column j.
func (m *Implicit) At(i, j int) float64 { return m.entry(i, j) }
