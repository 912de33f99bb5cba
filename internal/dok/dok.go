// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dok provides dictionary-of-keys assembly of sparse symmetric
// matrices.
package dok

import (
	"sort"

	"github.com/vladimir-ch/lazygp/internal/triplet"
)

// DOK is an n×n symmetric matrix under assembly. (i,j) and (j,i) address
// the same entry.
type DOK struct {
	N int

	data map[index]float64
}

type index struct {
	row, col int
}

func New(n int) *DOK {
	return &DOK{
		N:    n,
		data: make(map[index]float64),
	}
}

func (m *DOK) key(i, j int) index {
	if i < 0 || m.N <= i {
		panic("row index out of range")
	}
	if j < 0 || m.N <= j {
		panic("column index out of range")
	}
	if j < i {
		i, j = j, i
	}
	return index{i, j}
}

func (m *DOK) At(i, j int) float64 {
	return m.data[m.key(i, j)]
}

func (m *DOK) SetAt(i, j int, v float64) {
	k := m.key(i, j)
	if v == 0 {
		delete(m.data, k)
		return
	}
	m.data[k] = v
}

// AddAt adds v to the entry (i,j).
func (m *DOK) AddAt(i, j int, v float64) {
	m.SetAt(i, j, m.At(i, j)+v)
}

// Triplet returns the assembled matrix in coordinate format with entries
// sorted by row and column.
func (m *DOK) Triplet() *triplet.Matrix {
	keys := make([]index, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].row != keys[b].row {
			return keys[a].row < keys[b].row
		}
		return keys[a].col < keys[b].col
	})
	t := triplet.New(m.N)
	for _, k := range keys {
		t.Append(k.row, k.col, m.data[k])
	}
	return t
}
