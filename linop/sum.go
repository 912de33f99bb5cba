// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linop

import "gonum.org/v1/gonum/mat"

// Sum is a sum of operators with no closed-form inverse in general.
type Sum struct {
	base
	terms []Operator
}

func (s *Sum) Kind() Kind      { return KindSum }
func (s *Sum) Size() int       { return s.terms[0].Size() }
func (s *Sum) Shape() Shape    { return s.terms[0].Shape() }
func (s *Sum) Symmetric() bool { return allSymmetric(s.terms) }

// Terms returns the summands.
func (s *Sum) Terms() []Operator { return append([]Operator(nil), s.terms...) }

// AddedDiag is K + D for an operator K and a diagonal D, the shape of every
// GP training covariance (kernel matrix plus observation noise).
type AddedDiag struct {
	base
	k    Operator
	diag *Diagonal
}

func (a *AddedDiag) Kind() Kind      { return KindAddedDiag }
func (a *AddedDiag) Size() int       { return a.diag.Size() }
func (a *AddedDiag) Shape() Shape    { return a.k.Shape() }
func (a *AddedDiag) Symmetric() bool { return a.k.Symmetric() }

// Base returns K.
func (a *AddedDiag) Base() Operator { return a.k }

// Diagonal returns D.
func (a *AddedDiag) Diagonal() *Diagonal { return a.diag }

// AddDiag returns op + d.
func AddDiag(op Operator, d *Diagonal) (Operator, error) {
	return Add(op, d)
}

// Add returns the sum of ops. Nested sums are flattened, diagonal terms are
// merged into a single diagonal that is split off as an AddedDiag, and
// low-rank terms are merged into a single low-rank term by concatenating
// their factors.
func Add(ops ...Operator) (Operator, error) {
	if len(ops) == 0 {
		return nil, shapeError("Add", "no operands")
	}
	n := ops[0].Size()
	var (
		terms []Operator
		diag  []float64
		pd    = true
		us    []*mat.Dense
	)
	var collect func(op Operator)
	collect = func(op Operator) {
		switch o := op.(type) {
		case *Sum:
			for _, t := range o.terms {
				collect(t)
			}
		case *AddedDiag:
			collect(o.k)
			collect(o.diag)
		case *Diagonal:
			if diag == nil {
				diag = make([]float64, n)
			}
			for i, v := range o.d {
				diag[i] += v
			}
			pd = pd && o.pd
		case *LowRank:
			us = append(us, o.u)
		default:
			terms = append(terms, op)
		}
	}
	// Diagonals carry no batch structure; every other operand must share
	// the shape of the first one.
	shape := Shape{}
	for i, op := range ops {
		if op.Size() != n {
			return nil, shapeError("Add", "operand %d has order %d, want %d", i, op.Size(), n)
		}
		if _, ok := op.(*Diagonal); !ok {
			if shape == (Shape{}) {
				shape = op.Shape()
			} else if op.Shape() != shape {
				return nil, shapeError("Add", "operand %d has shape %v, want %v", i, op.Shape(), shape)
			}
		}
		collect(op)
	}

	switch len(us) {
	case 0:
	case 1:
		terms = append(terms, &LowRank{u: us[0]})
	default:
		k := 0
		for _, u := range us {
			_, c := u.Dims()
			k += c
		}
		merged := mat.NewDense(n, k, nil)
		col := 0
		for _, u := range us {
			_, c := u.Dims()
			merged.Slice(0, n, col, col+c).(*mat.Dense).Copy(u)
			col += c
		}
		terms = append(terms, &LowRank{u: merged})
	}

	var body Operator
	switch len(terms) {
	case 0:
	case 1:
		body = terms[0]
	default:
		body = &Sum{terms: terms}
	}
	if diag == nil {
		return body, nil
	}
	d := &Diagonal{d: diag, pd: pd}
	if body == nil {
		return d, nil
	}
	return &AddedDiag{k: body, diag: d}, nil
}

func allSymmetric(ops []Operator) bool {
	for _, op := range ops {
		if !op.Symmetric() {
			return false
		}
	}
	return true
}
