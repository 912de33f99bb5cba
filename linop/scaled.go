// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linop

// Scaled is the operator c*A.
type Scaled struct {
	base
	c  float64
	op Operator
}

// Scale returns c*op. Nested scalings are folded and a scaled diagonal
// is again a diagonal.
func Scale(c float64, op Operator) Operator {
	switch o := op.(type) {
	case *Scaled:
		return Scale(c*o.c, o.op)
	case *Diagonal:
		d := make([]float64, len(o.d))
		for i, v := range o.d {
			d[i] = c * v
		}
		return &Diagonal{d: d, pd: o.pd && c > 0}
	}
	if c == 1 {
		return op
	}
	return &Scaled{c: c, op: op}
}

func (s *Scaled) Kind() Kind      { return KindScaled }
func (s *Scaled) Size() int       { return s.op.Size() }
func (s *Scaled) Shape() Shape    { return s.op.Shape() }
func (s *Scaled) Symmetric() bool { return s.op.Symmetric() }

// Scalar returns c.
func (s *Scaled) Scalar() float64 { return s.c }

// Operand returns the scaled operator.
func (s *Scaled) Operand() Operator { return s.op }

// Product is the matrix product A*B. It is not symmetric unless A and B
// commute, so it reports itself as non-symmetric and the SPD solvers reject
// it.
type Product struct {
	base
	a, b Operator
}

// NewProduct returns the operator a*b.
func NewProduct(a, b Operator) (*Product, error) {
	if a.Size() != b.Size() {
		return nil, shapeError("NewProduct", "%d×%d times %d×%d", a.Size(), a.Size(), b.Size(), b.Size())
	}
	if a.Shape() != b.Shape() {
		return nil, shapeError("NewProduct", "batch shapes %v and %v", a.Shape(), b.Shape())
	}
	return &Product{a: a, b: b}, nil
}

func (p *Product) Kind() Kind      { return KindProduct }
func (p *Product) Size() int       { return p.a.Size() }
func (p *Product) Shape() Shape    { return p.a.Shape() }
func (p *Product) Symmetric() bool { return false }
