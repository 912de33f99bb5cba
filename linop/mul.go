// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linop

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/vladimir-ch/lazygp/iterative"
)

// Mul returns op*x for an n×k matrix x.
func Mul(op Operator, x mat.Matrix) (*mat.Dense, error) {
	r, c := x.Dims()
	if r != op.Size() || r == 0 || c == 0 {
		return nil, shapeError("Mul", "operator %v times %d×%d", op.Shape(), r, c)
	}
	dst := mat.NewDense(r, c, nil)
	mulTo(dst, op, asDense(x))
	return dst, nil
}

// MulTo computes dst = op*x. dst must have the dimensions of x.
func MulTo(dst *mat.Dense, op Operator, x mat.Matrix) error {
	r, c := x.Dims()
	if r != op.Size() || r == 0 || c == 0 {
		return shapeError("MulTo", "operator %v times %d×%d", op.Shape(), r, c)
	}
	if dr, dc := dst.Dims(); dr != r || dc != c {
		return shapeError("MulTo", "destination is %d×%d, want %d×%d", dr, dc, r, c)
	}
	xd := asDense(x)
	if xd == dst {
		xd = mat.DenseCopyOf(x)
	}
	mulTo(dst, op, xd)
	return nil
}

// MulVec computes dst = op*x for vectors.
func MulVec(dst []float64, op Operator, x []float64) error {
	n := op.Size()
	if len(x) != n || len(dst) != n || n == 0 {
		return shapeError("MulVec", "operator %v times vector of length %d into %d", op.Shape(), len(x), len(dst))
	}
	if &dst[0] == &x[0] {
		x = append([]float64(nil), x...)
	}
	mulTo(mat.NewDense(n, 1, dst), op, mat.NewDense(n, 1, x))
	return nil
}

// MatrixOps returns op as the matrix-vector callback of the iterative
// package.
func MatrixOps(op Operator) iterative.MatrixOps {
	return iterative.MatrixOps{
		MatVec: func(dst, x []float64) {
			if err := MulVec(dst, op, x); err != nil {
				panic(err)
			}
		},
	}
}

// BlockOps returns op as the matrix-matrix callback of the iterative
// package.
func BlockOps(op Operator) iterative.BlockOps {
	return iterative.BlockOps{
		MatMul: func(dst, x *mat.Dense) {
			if err := MulTo(dst, op, x); err != nil {
				panic(err)
			}
		},
	}
}

func asDense(x mat.Matrix) *mat.Dense {
	if d, ok := x.(*mat.Dense); ok {
		return d
	}
	return mat.DenseCopyOf(x)
}

// mulTo computes dst = op*x. The dimensions are checked by the callers and
// dst does not alias x.
func mulTo(dst *mat.Dense, op Operator, x *mat.Dense) {
	r, c := x.Dims()
	switch o := op.(type) {
	case *Dense:
		dst.Mul(o.m, x)

	case *Diagonal:
		for i, d := range o.d {
			for j := 0; j < c; j++ {
				dst.Set(i, j, d*x.At(i, j))
			}
		}

	case *LowRank:
		var t mat.Dense
		t.Mul(o.u.T(), x)
		dst.Mul(o.u, &t)

	case *Kronecker:
		mulKron(dst, o, x)

	case *BlockDiag:
		for i, blk := range o.blocks {
			lo, hi := o.offs[i], o.offs[i+1]
			mulTo(dst.Slice(lo, hi, 0, c).(*mat.Dense), blk, x.Slice(lo, hi, 0, c).(*mat.Dense))
		}

	case *Sum:
		mulTo(dst, o.terms[0], x)
		tmp := mat.NewDense(r, c, nil)
		for _, t := range o.terms[1:] {
			mulTo(tmp, t, x)
			dst.Add(dst, tmp)
		}

	case *AddedDiag:
		mulTo(dst, o.k, x)
		for i, d := range o.diag.d {
			for j := 0; j < c; j++ {
				dst.Set(i, j, dst.At(i, j)+d*x.At(i, j))
			}
		}

	case *Scaled:
		mulTo(dst, o.op, x)
		dst.Scale(o.c, dst)

	case *Product:
		tmp := mat.NewDense(r, c, nil)
		mulTo(tmp, o.b, x)
		mulTo(dst, o.a, tmp)

	case *Sparse:
		col := make([]float64, r)
		out := make([]float64, r)
		for j := 0; j < c; j++ {
			mat.Col(col, j, x)
			o.m.MulVec(out, col)
			dst.SetCol(j, out)
		}

	case *Implicit:
		row := make([]float64, r)
		acc := make([]float64, c)
		xr := x.RawMatrix()
		for i := 0; i < r; i++ {
			for k := range row {
				row[k] = o.entry(i, k)
			}
			for j := range acc {
				acc[j] = 0
			}
			for k, v := range row {
				if v == 0 {
					continue
				}
				floats.AddScaled(acc, v, xr.Data[k*xr.Stride:k*xr.Stride+c])
			}
			dst.SetRow(i, acc)
		}

	default:
		panic("linop: unknown operator")
	}
}

// mulKron computes (A⊗B)x.
func mulKron(dst *mat.Dense, o *Kronecker, x *mat.Dense) {
	kronApply(dst, x, o.a.Size(), o.b.Size(),
		func(d, s *mat.Dense) error { mulTo(d, o.a, s); return nil },
		func(d, s *mat.Dense) error { mulTo(d, o.b, s); return nil },
	)
}

// kronApply computes (F⊗G)x for an M×M operator F and an N×N operator G
// given as callbacks, column by column as vec(F X Gᵀ) where X is the M×N
// row-major reshaping of a column. All columns are processed together: F is
// applied once to the M×(N·c) matrix [X_1 ... X_c] and G once to the stacked
// transposes of the results.
func kronApply(dst, x *mat.Dense, m, n int, f, g func(dst, x *mat.Dense) error) error {
	_, c := x.Dims()
	xs := mat.NewDense(m, n*c, nil)
	for j := 0; j < c; j++ {
		for i := 0; i < m; i++ {
			for l := 0; l < n; l++ {
				xs.Set(i, j*n+l, x.At(i*n+l, j))
			}
		}
	}
	t := mat.NewDense(m, n*c, nil)
	if err := f(t, xs); err != nil {
		return err
	}
	ts := mat.NewDense(n, m*c, nil)
	for j := 0; j < c; j++ {
		for i := 0; i < m; i++ {
			for l := 0; l < n; l++ {
				ts.Set(l, j*m+i, t.At(i, j*n+l))
			}
		}
	}
	y := mat.NewDense(n, m*c, nil)
	if err := g(y, ts); err != nil {
		return err
	}
	for j := 0; j < c; j++ {
		for i := 0; i < m; i++ {
			for l := 0; l < n; l++ {
				dst.Set(i*n+l, j, y.At(l, j*m+i))
			}
		}
	}
	return nil
}

// Diag returns the diagonal of op.
func Diag(op Operator) []float64 {
	n := op.Size()
	d := make([]float64, n)
	switch o := op.(type) {
	case *Dense:
		for i := range d {
			d[i] = o.m.At(i, i)
		}
	case *Diagonal:
		copy(d, o.d)
	case *LowRank:
		_, k := o.u.Dims()
		for i := range d {
			row := o.u.RawRowView(i)
			d[i] = floats.Dot(row[:k], row[:k])
		}
	case *Kronecker:
		da, db := Diag(o.a), Diag(o.b)
		for i, va := range da {
			for l, vb := range db {
				d[i*len(db)+l] = va * vb
			}
		}
	case *BlockDiag:
		for i, blk := range o.blocks {
			copy(d[o.offs[i]:], Diag(blk))
		}
	case *Sum:
		for _, t := range o.terms {
			floats.Add(d, Diag(t))
		}
	case *AddedDiag:
		copy(d, Diag(o.k))
		floats.Add(d, o.diag.d)
	case *Scaled:
		floats.ScaleTo(d, o.c, Diag(o.op))
	case *Sparse:
		o.m.Diag(d)
	case *Implicit:
		for i := range d {
			d[i] = o.entry(i, i)
		}
	default:
		col := make([]float64, n)
		for i := range d {
			column(col, op, i)
			d[i] = col[i]
		}
	}
	return d
}

// Column stores column j of op into dst.
func Column(dst []float64, op Operator, j int) error {
	n := op.Size()
	if len(dst) != n {
		return shapeError("Column", "destination length %d for operator %v", len(dst), op.Shape())
	}
	if j < 0 || n <= j {
		return shapeError("Column", "column %d out of range for operator %v", j, op.Shape())
	}
	column(dst, op, j)
	return nil
}

func column(dst []float64, op Operator, j int) {
	switch o := op.(type) {
	case *Dense:
		mat.Col(dst, j, o.m)
	case *Diagonal:
		zero(dst)
		dst[j] = o.d[j]
	case *LowRank:
		_, k := o.u.Dims()
		uj := o.u.RawRowView(j)[:k]
		for i := range dst {
			dst[i] = floats.Dot(o.u.RawRowView(i)[:k], uj)
		}
	case *Kronecker:
		m, n := o.a.Size(), o.b.Size()
		ca, cb := make([]float64, m), make([]float64, n)
		column(ca, o.a, j/n)
		column(cb, o.b, j%n)
		for i, va := range ca {
			for l, vb := range cb {
				dst[i*n+l] = va * vb
			}
		}
	case *BlockDiag:
		zero(dst)
		for i, blk := range o.blocks {
			lo, hi := o.offs[i], o.offs[i+1]
			if lo <= j && j < hi {
				column(dst[lo:hi], blk, j-lo)
				break
			}
		}
	case *Sum:
		tmp := make([]float64, len(dst))
		column(dst, o.terms[0], j)
		for _, t := range o.terms[1:] {
			column(tmp, t, j)
			floats.Add(dst, tmp)
		}
	case *AddedDiag:
		column(dst, o.k, j)
		dst[j] += o.diag.d[j]
	case *Scaled:
		column(dst, o.op, j)
		floats.Scale(o.c, dst)
	case *Implicit:
		for i := range dst {
			dst[i] = o.entry(i, j)
		}
	case *Sparse:
		zero(dst)
		o.m.Do(func(r, c int, v float64) {
			switch {
			case c == j:
				dst[r] += v
			case r == j:
				dst[c] += v
			}
		})
	default:
		e := make([]float64, len(dst))
		e[j] = 1
		mulTo(mat.NewDense(len(dst), 1, dst), op, mat.NewDense(len(e), 1, e))
	}
}

// ToDense returns op as a dense matrix. It is intended for small operators
// and debugging; the library itself never materializes operators above the
// configured dense threshold. The result is computed column by column and
// is identical across calls.
func ToDense(op Operator) *mat.Dense {
	n := op.Size()
	d := mat.NewDense(n, n, nil)
	if sp, ok := op.(*Sparse); ok {
		sp.m.Do(func(i, j int, v float64) {
			d.Set(i, j, d.At(i, j)+v)
			if i != j {
				d.Set(j, i, d.At(j, i)+v)
			}
		})
		return d
	}
	col := make([]float64, n)
	for j := 0; j < n; j++ {
		column(col, op, j)
		d.SetCol(j, col)
	}
	return d
}

// ToSymDense returns op as a symmetric dense matrix. It fails with a
// *iterative.NumericalError if op is not symmetric.
func ToSymDense(op Operator) (*mat.SymDense, error) {
	if !op.Symmetric() {
		return nil, iterative.Numerical("linop.ToSymDense", "%v operator is not symmetric", op.Kind())
	}
	if d, ok := op.(*Dense); ok {
		return mat.NewSymDense(d.Size(), append([]float64(nil), d.m.RawSymmetric().Data...)), nil
	}
	d := ToDense(op)
	n := op.Size()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, 0.5*(d.At(i, j)+d.At(j, i)))
		}
	}
	return s, nil
}

// MulCost returns the approximate number of flops of a product of op with
// a single vector.
func MulCost(op Operator) float64 {
	n := float64(op.Size())
	switch o := op.(type) {
	case *Dense:
		return 2 * n * n
	case *Diagonal:
		return n
	case *LowRank:
		return 4 * n * float64(o.Rank())
	case *Kronecker:
		m, nb := float64(o.a.Size()), float64(o.b.Size())
		return nb*MulCost(o.a) + m*MulCost(o.b)
	case *BlockDiag:
		var c float64
		for _, blk := range o.blocks {
			c += MulCost(blk)
		}
		return c
	case *Sum:
		c := n * float64(len(o.terms)-1)
		for _, t := range o.terms {
			c += MulCost(t)
		}
		return c
	case *AddedDiag:
		return MulCost(o.k) + 2*n
	case *Scaled:
		return MulCost(o.op) + n
	case *Product:
		return MulCost(o.a) + MulCost(o.b)
	case *Sparse:
		return 4 * float64(o.NNZ())
	case *Implicit:
		return n * n * (o.cost + 2)
	}
	panic("linop: unknown operator")
}

func zero(v []float64) {
	for i := range v {
		v[i] = 0
	}
}
