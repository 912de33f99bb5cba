// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package linop provides lazy, structured representations of symmetric
// matrices. An Operator is a node of an immutable expression tree whose
// leaves hold compact factors (diagonals, low-rank factors, small dense
// blocks, sparse entries or an entry function) and whose inner nodes
// describe sums, products, scalings, Kronecker products and block-diagonal
// compositions. All operations dispatch on the kind of node and recurse into
// children, so the full matrix is formed only when explicitly requested.
//
// Operators are immutable and may be used from multiple goroutines.
package linop

import (
	"fmt"

	"github.com/vladimir-ch/lazygp/iterative"
)

// Kind identifies the variant of an Operator.
type Kind int

const (
	KindDense Kind = iota
	KindDiagonal
	KindLowRank
	KindKronecker
	KindBlockDiag
	KindSum
	KindAddedDiag
	KindScaled
	KindProduct
	KindSparse
	KindImplicit
)

var kindNames = [...]string{
	KindDense:     "Dense",
	KindDiagonal:  "Diagonal",
	KindLowRank:   "LowRank",
	KindKronecker: "Kronecker",
	KindBlockDiag: "BlockDiag",
	KindSum:       "Sum",
	KindAddedDiag: "AddedDiag",
	KindScaled:    "Scaled",
	KindProduct:   "Product",
	KindSparse:    "Sparse",
	KindImplicit:  "Implicit",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Shape is the shape of an operator. An operator with Batch == 1 is an
// N×N matrix. A batched operator is a stack of Batch matrices of order N
// acting on right-hand sides with Batch·N rows, the batch index leading.
type Shape struct {
	Batch int
	N     int
}

// Rows returns the number of rows of right-hand sides accepted by an
// operator of shape s.
func (s Shape) Rows() int {
	return s.Batch * s.N
}

func (s Shape) String() string {
	if s.Batch == 1 {
		return fmt.Sprintf("%d×%d", s.N, s.N)
	}
	return fmt.Sprintf("%d×%d×%d", s.Batch, s.N, s.N)
}

// Operator is a lazily represented square matrix. The set of
// implementations is closed; see Kind.
type Operator interface {
	// Kind returns the variant of the operator.
	Kind() Kind
	// Size returns the number of rows (and columns).
	Size() int
	// Shape returns the batch shape.
	Shape() Shape
	// Symmetric reports whether the operator is symmetric.
	Symmetric() bool

	sealed()
}

type base struct{}

func (base) sealed() {}

func plain(n int) Shape {
	return Shape{Batch: 1, N: n}
}

func shapeError(op string, format string, args ...interface{}) error {
	return fmt.Errorf("linop: %s: %s: %w", op, fmt.Sprintf(format, args...), iterative.ErrShape)
}

// Children returns the direct operands of op. Leaves have no children.
func Children(op Operator) []Operator {
	switch o := op.(type) {
	case *Kronecker:
		return []Operator{o.a, o.b}
	case *BlockDiag:
		return append([]Operator(nil), o.blocks...)
	case *Sum:
		return append([]Operator(nil), o.terms...)
	case *AddedDiag:
		return []Operator{o.k, o.diag}
	case *Scaled:
		return []Operator{o.op}
	case *Product:
		return []Operator{o.a, o.b}
	}
	return nil
}

// Describe returns a compact textual form of the operator tree, for
// example "AddedDiag(Kronecker(Dense[3], Dense[4]), Diagonal[12])".
func Describe(op Operator) string {
	ch := Children(op)
	if len(ch) == 0 {
		return fmt.Sprintf("%v[%d]", op.Kind(), op.Size())
	}
	s := op.Kind().String() + "("
	for i, c := range ch {
		if i > 0 {
			s += ", "
		}
		s += Describe(c)
	}
	return s + ")"
}
