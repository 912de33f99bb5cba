// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linop

import "gonum.org/v1/gonum/mat"

// CheckBatch returns an error wrapping iterative.ErrShape unless x is a valid
// right-hand side for op: it must have op.Shape().Rows() rows and at least
// one column.
func CheckBatch(op Operator, x mat.Matrix) error {
	r, c := x.Dims()
	s := op.Shape()
	if r != s.Rows() || c == 0 {
		return shapeError("CheckBatch", "operator %v does not accept a %d×%d right-hand side", s, r, c)
	}
	return nil
}

// SplitBatch splits a stacked (Batch·N)×k right-hand side of a batched
// operator of shape s into Batch views of size N×k. The views share storage
// with x.
func SplitBatch(s Shape, x *mat.Dense) ([]*mat.Dense, error) {
	r, c := x.Dims()
	if r != s.Rows() {
		return nil, shapeError("SplitBatch", "%d rows for shape %v", r, s)
	}
	parts := make([]*mat.Dense, s.Batch)
	for b := range parts {
		parts[b] = x.Slice(b*s.N, (b+1)*s.N, 0, c).(*mat.Dense)
	}
	return parts, nil
}

// JoinBatch stacks per-entry N×k matrices into a (Batch·N)×k matrix, the
// batch index leading.
func JoinBatch(parts []mat.Matrix) (*mat.Dense, error) {
	if len(parts) == 0 {
		return nil, shapeError("JoinBatch", "no parts")
	}
	n, c := parts[0].Dims()
	for i, p := range parts {
		if r, cc := p.Dims(); r != n || cc != c {
			return nil, shapeError("JoinBatch", "part %d is %d×%d, want %d×%d", i, r, cc, n, c)
		}
	}
	dst := mat.NewDense(len(parts)*n, c, nil)
	for b, p := range parts {
		dst.Slice(b*n, (b+1)*n, 0, c).(*mat.Dense).Copy(p)
	}
	return dst, nil
}
