// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linop

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/vladimir-ch/lazygp/iterative"
)

// ErrNoClosedForm is returned by Factorize when no closed-form solve exists
// for an operator. Callers fall back to an iterative method.
var ErrNoClosedForm = errors.New("linop: no closed form")

// Factor is a closed-form factorization of a symmetric positive definite
// operator.
type Factor interface {
	// SolveTo stores A⁻¹b in dst. dst must have the dimensions of b and
	// must not share storage with it.
	SolveTo(dst *mat.Dense, b mat.Matrix) error
	// LogDet returns log det A.
	LogDet() float64
	// Size returns the order of A.
	Size() int
}

// plan is a candidate closed form of an operator.
type plan struct {
	setup float64 // flops to factorize
	solve float64 // flops per right-hand side
	build func() (Factor, error)
}

func (p plan) total() float64 { return p.setup + p.solve }

// Factorize returns the cheapest closed-form factorization of op. Dense
// Cholesky is a candidate for any symmetric operator of order at most
// denseLimit; denseLimit <= 0 disables it. If op has no closed form,
// Factorize returns ErrNoClosedForm. Structurally applicable closed forms
// that fail numerically (for example a non-positive diagonal entry) result
// in a *iterative.NumericalError.
func Factorize(op Operator, denseLimit int) (Factor, error) {
	ps := plans(op, denseLimit)
	if len(ps) == 0 {
		return nil, ErrNoClosedForm
	}
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].total() < ps[j].total() })
	var first error
	for _, p := range ps {
		f, err := p.build()
		if err == nil {
			return f, nil
		}
		if first == nil {
			first = err
		}
	}
	return nil, first
}

// SolveCost returns the estimated flops of the cheapest closed-form solve of
// op with a single right-hand side, including the factorization. ok is false
// if op has no closed form.
func SolveCost(op Operator, denseLimit int) (cost float64, ok bool) {
	p, ok := best(op, denseLimit)
	return p.total(), ok
}

// LogDetCost returns the estimated flops of the cheapest closed-form
// log-determinant of op.
func LogDetCost(op Operator, denseLimit int) (cost float64, ok bool) {
	ps := plans(op, denseLimit)
	if len(ps) == 0 {
		return 0, false
	}
	cost = math.Inf(1)
	for _, p := range ps {
		cost = math.Min(cost, p.setup)
	}
	return cost, true
}

// Solve returns A⁻¹b computed in closed form.
func Solve(op Operator, b mat.Matrix, denseLimit int) (*mat.Dense, error) {
	if err := CheckBatch(op, b); err != nil {
		return nil, err
	}
	f, err := Factorize(op, denseLimit)
	if err != nil {
		return nil, err
	}
	r, c := b.Dims()
	dst := mat.NewDense(r, c, nil)
	if err := f.SolveTo(dst, b); err != nil {
		return nil, err
	}
	return dst, nil
}

// LogDet returns log det A computed in closed form.
func LogDet(op Operator, denseLimit int) (float64, error) {
	f, err := Factorize(op, denseLimit)
	if err != nil {
		return 0, err
	}
	return f.LogDet(), nil
}

func best(op Operator, denseLimit int) (plan, bool) {
	ps := plans(op, denseLimit)
	if len(ps) == 0 {
		return plan{}, false
	}
	b := ps[0]
	for _, p := range ps[1:] {
		if p.total() < b.total() {
			b = p
		}
	}
	return b, true
}

// plans returns the closed forms that apply to op.
func plans(op Operator, limit int) []plan {
	n := float64(op.Size())
	var ps []plan
	switch o := op.(type) {
	case *Diagonal:
		ps = append(ps, plan{
			setup: n,
			solve: n,
			build: func() (Factor, error) { return newDiagFactor(o.d) },
		})

	case *Scaled:
		if p, ok := best(o.op, limit); ok {
			ps = append(ps, plan{
				setup: p.setup,
				solve: p.solve + n,
				build: func() (Factor, error) {
					if !(o.c > 0) {
						return nil, iterative.Numerical("linop.Factorize", "scaling by %v is not positive", o.c)
					}
					f, err := p.build()
					if err != nil {
						return nil, err
					}
					return &scaledFactor{c: o.c, f: f}, nil
				},
			})
		}

	case *Kronecker:
		pa, okA := best(o.a, limit)
		pb, okB := best(o.b, limit)
		if okA && okB {
			m, nb := float64(o.a.Size()), float64(o.b.Size())
			ps = append(ps, plan{
				setup: pa.setup + pb.setup,
				solve: nb*pa.solve + m*pb.solve,
				build: func() (Factor, error) {
					fa, err := pa.build()
					if err != nil {
						return nil, err
					}
					fb, err := pb.build()
					if err != nil {
						return nil, err
					}
					return &kronFactor{a: fa, b: fb}, nil
				},
			})
		}

	case *BlockDiag:
		bp := make([]plan, len(o.blocks))
		var setup, solve float64
		ok := true
		for i, blk := range o.blocks {
			p, okb := best(blk, limit)
			if !okb {
				ok = false
				break
			}
			bp[i] = p
			setup += p.setup
			solve += p.solve
		}
		if ok {
			ps = append(ps, plan{
				setup: setup,
				solve: solve,
				build: func() (Factor, error) {
					fs := make([]Factor, len(bp))
					for i, p := range bp {
						f, err := p.build()
						if err != nil {
							return nil, err
						}
						fs[i] = f
					}
					return &blockFactor{fs: fs, offs: o.offs}, nil
				},
			})
		}

	case *AddedDiag:
		if u, ok := lowRankOf(o.k); ok {
			_, k := u.Dims()
			kf := float64(k)
			ps = append(ps, plan{
				setup: 2*n*kf*kf + kf*kf*kf/3,
				solve: 4*n*kf + 2*kf*kf + 2*n,
				build: func() (Factor, error) { return newWoodbury(u, o.diag.d) },
			})
		}
		if c, ok := o.diag.IsConstant(); ok {
			if leaves, s, ok := kronOf(o.k, limit); ok {
				var setup, sum float64
				for _, l := range leaves {
					m := float64(l.Size())
					setup += 9 * m * m * m
					sum += m
				}
				ps = append(ps, plan{
					setup: setup,
					solve: 4*n*sum + n,
					build: func() (Factor, error) { return newKronEigen(leaves, s, c) },
				})
			}
		}
	}

	if limit > 0 && op.Size() <= limit && op.Symmetric() {
		var materialize float64
		if _, ok := op.(*Dense); !ok {
			materialize = MulCost(op)
		}
		ps = append(ps, plan{
			setup: materialize + n*n*n/3,
			solve: 2 * n * n,
			build: func() (Factor, error) { return newCholFactor(op) },
		})
	}
	return ps
}

// lowRankOf returns U with op = UUᵀ if op is low-rank or a positively
// scaled low-rank operator.
func lowRankOf(op Operator) (*mat.Dense, bool) {
	switch o := op.(type) {
	case *LowRank:
		return o.u, true
	case *Scaled:
		if u, ok := lowRankOf(o.op); ok && o.c > 0 {
			var su mat.Dense
			su.Scale(math.Sqrt(o.c), u)
			return &su, true
		}
	}
	return nil, false
}

// kronOf returns the leaves of a (possibly scaled) Kronecker product whose
// factors are all small enough to be decomposed densely, with op =
// s·(leaves[0]⊗leaves[1]⊗...).
func kronOf(op Operator, limit int) (leaves []Operator, s float64, ok bool) {
	s = 1
	if sc, isScaled := op.(*Scaled); isScaled {
		s, op = sc.c, sc.op
	}
	k, isKron := op.(*Kronecker)
	if !isKron {
		return nil, 0, false
	}
	var walk func(op Operator) bool
	walk = func(op Operator) bool {
		if k, ok := op.(*Kronecker); ok {
			return walk(k.a) && walk(k.b)
		}
		if op.Size() > limit || !op.Symmetric() {
			return false
		}
		leaves = append(leaves, op)
		return true
	}
	if !walk(k) {
		return nil, 0, false
	}
	return leaves, s, true
}

type diagFactor struct {
	d []float64
}

func newDiagFactor(d []float64) (*diagFactor, error) {
	for i, v := range d {
		if !(v > 0) {
			return nil, iterative.Numerical("linop.Factorize", "diagonal entry %d is %v, not positive", i, v)
		}
	}
	return &diagFactor{d: d}, nil
}

func (f *diagFactor) Size() int { return len(f.d) }

func (f *diagFactor) SolveTo(dst *mat.Dense, b mat.Matrix) error {
	if err := checkSolve(f, dst, b); err != nil {
		return err
	}
	_, c := b.Dims()
	for i, v := range f.d {
		for j := 0; j < c; j++ {
			dst.Set(i, j, b.At(i, j)/v)
		}
	}
	return nil
}

func (f *diagFactor) LogDet() float64 {
	var s float64
	for _, v := range f.d {
		s += math.Log(v)
	}
	return s
}

type scaledFactor struct {
	c float64
	f Factor
}

func (f *scaledFactor) Size() int { return f.f.Size() }

func (f *scaledFactor) SolveTo(dst *mat.Dense, b mat.Matrix) error {
	if err := f.f.SolveTo(dst, b); err != nil {
		return err
	}
	dst.Scale(1/f.c, dst)
	return nil
}

func (f *scaledFactor) LogDet() float64 {
	return float64(f.Size())*math.Log(f.c) + f.f.LogDet()
}

// kronFactor solves with A⊗B as A⁻¹⊗B⁻¹.
type kronFactor struct {
	a, b Factor
}

func (f *kronFactor) Size() int { return f.a.Size() * f.b.Size() }

func (f *kronFactor) SolveTo(dst *mat.Dense, b mat.Matrix) error {
	if err := checkSolve(f, dst, b); err != nil {
		return err
	}
	return kronApply(dst, asDense(b), f.a.Size(), f.b.Size(),
		func(d, s *mat.Dense) error { return f.a.SolveTo(d, s) },
		func(d, s *mat.Dense) error { return f.b.SolveTo(d, s) },
	)
}

func (f *kronFactor) LogDet() float64 {
	m, n := float64(f.a.Size()), float64(f.b.Size())
	return n*f.a.LogDet() + m*f.b.LogDet()
}

type blockFactor struct {
	fs   []Factor
	offs []int
}

func (f *blockFactor) Size() int { return f.offs[len(f.fs)] }

func (f *blockFactor) SolveTo(dst *mat.Dense, b mat.Matrix) error {
	if err := checkSolve(f, dst, b); err != nil {
		return err
	}
	bd := asDense(b)
	_, c := bd.Dims()
	for i, fi := range f.fs {
		lo, hi := f.offs[i], f.offs[i+1]
		err := fi.SolveTo(dst.Slice(lo, hi, 0, c).(*mat.Dense), bd.Slice(lo, hi, 0, c))
		if err != nil {
			return err
		}
	}
	return nil
}

func (f *blockFactor) LogDet() float64 {
	var s float64
	for _, fi := range f.fs {
		s += fi.LogDet()
	}
	return s
}

// woodbury factorizes D + UUᵀ through the capacitance matrix
// C = I + UᵀD⁻¹U:
//  (D + UUᵀ)⁻¹ = D⁻¹ - D⁻¹U C⁻¹ UᵀD⁻¹,
//  log det(D + UUᵀ) = log det D + log det C.
type woodbury struct {
	d     *diagFactor
	dinvU *mat.Dense
	cap   mat.Cholesky
}

func newWoodbury(u *mat.Dense, d []float64) (*woodbury, error) {
	df, err := newDiagFactor(d)
	if err != nil {
		return nil, err
	}
	n, k := u.Dims()
	dinvU := mat.NewDense(n, k, nil)
	if err := df.SolveTo(dinvU, u); err != nil {
		return nil, err
	}
	var utdu mat.Dense
	utdu.Mul(u.T(), dinvU)
	c := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			v := 0.5 * (utdu.At(i, j) + utdu.At(j, i))
			if i == j {
				v++
			}
			c.SetSym(i, j, v)
		}
	}
	w := &woodbury{d: df, dinvU: dinvU}
	if ok := w.cap.Factorize(c); !ok {
		return nil, iterative.Numerical("linop.Factorize", "capacitance matrix is not positive definite")
	}
	return w, nil
}

func (w *woodbury) Size() int { return w.d.Size() }

func (w *woodbury) SolveTo(dst *mat.Dense, b mat.Matrix) error {
	if err := w.d.SolveTo(dst, b); err != nil {
		return err
	}
	var s, y, corr mat.Dense
	s.Mul(w.dinvU.T(), b)
	if err := w.cap.SolveTo(&y, &s); err != nil {
		return iterative.Numerical("linop.Woodbury", "%v", err)
	}
	corr.Mul(w.dinvU, &y)
	dst.Sub(dst, &corr)
	return nil
}

func (w *woodbury) LogDet() float64 {
	return w.d.LogDet() + w.cap.LogDet()
}

// kronEigen factorizes s·(A_1⊗...⊗A_p) + cI through the symmetric
// eigendecompositions A_i = Q_i Λ_i Q_iᵀ, so that the operator equals
// Q (s·Λ + cI) Qᵀ with Q = Q_1⊗...⊗Q_p and Λ = Λ_1⊗...⊗Λ_p.
type kronEigen struct {
	qs   []*mat.Dense
	vals []float64
}

func newKronEigen(leaves []Operator, s, c float64) (*kronEigen, error) {
	ke := &kronEigen{vals: []float64{1}}
	for _, l := range leaves {
		sym, err := ToSymDense(l)
		if err != nil {
			return nil, err
		}
		var es mat.EigenSym
		if ok := es.Factorize(sym, true); !ok {
			return nil, iterative.Numerical("linop.Factorize", "eigendecomposition of Kronecker factor failed")
		}
		var q mat.Dense
		es.VectorsTo(&q)
		ke.qs = append(ke.qs, &q)
		lam := es.Values(nil)
		next := make([]float64, 0, len(ke.vals)*len(lam))
		for _, v := range ke.vals {
			for _, w := range lam {
				next = append(next, v*w)
			}
		}
		ke.vals = next
	}
	for i, v := range ke.vals {
		v = s*v + c
		if !(v > 0) {
			return nil, iterative.Numerical("linop.Factorize", "eigenvalue %d of Kronecker operator is %v, not positive", i, v)
		}
		ke.vals[i] = v
	}
	return ke, nil
}

func (f *kronEigen) Size() int { return len(f.vals) }

func (f *kronEigen) SolveTo(dst *mat.Dense, b mat.Matrix) error {
	if err := checkSolve(f, dst, b); err != nil {
		return err
	}
	n := f.Size()
	_, c := b.Dims()
	col := make([]float64, n)
	for j := 0; j < c; j++ {
		mat.Col(col, j, b)
		y := kronVec(f.qs, true, col)
		for i, v := range f.vals {
			y[i] /= v
		}
		dst.SetCol(j, kronVec(f.qs, false, y))
	}
	return nil
}

func (f *kronEigen) LogDet() float64 {
	var s float64
	for _, v := range f.vals {
		s += math.Log(v)
	}
	return s
}

// kronVec returns (F_1⊗...⊗F_p)x, or (F_1⊗...⊗F_p)ᵀx if trans is true,
// for square factors F_i. The first factor varies slowest.
func kronVec(fs []*mat.Dense, trans bool, x []float64) []float64 {
	cur := append([]float64(nil), x...)
	next := make([]float64, len(x))
	left, right := 1, len(x)
	for _, f := range fs {
		m, _ := f.Dims()
		right /= m
		for l := 0; l < left; l++ {
			for i := 0; i < m; i++ {
				for r := 0; r < right; r++ {
					var s float64
					for k := 0; k < m; k++ {
						a := f.At(i, k)
						if trans {
							a = f.At(k, i)
						}
						s += a * cur[(l*m+k)*right+r]
					}
					next[(l*m+i)*right+r] = s
				}
			}
		}
		cur, next = next, cur
		left *= m
	}
	return cur
}

type cholFactor struct {
	chol mat.Cholesky
}

func newCholFactor(op Operator) (*cholFactor, error) {
	sym, err := ToSymDense(op)
	if err != nil {
		return nil, err
	}
	f := &cholFactor{}
	if ok := f.chol.Factorize(sym); !ok {
		return nil, iterative.Numerical("linop.Factorize", "%v operator is not positive definite", op.Kind())
	}
	return f, nil
}

func (f *cholFactor) Size() int { return f.chol.SymmetricDim() }

func (f *cholFactor) SolveTo(dst *mat.Dense, b mat.Matrix) error {
	if err := checkSolve(f, dst, b); err != nil {
		return err
	}
	var x mat.Dense
	if err := f.chol.SolveTo(&x, b); err != nil {
		return iterative.Numerical("linop.Cholesky", "%v", err)
	}
	dst.Copy(&x)
	return nil
}

func (f *cholFactor) LogDet() float64 { return f.chol.LogDet() }

func checkSolve(f Factor, dst *mat.Dense, b mat.Matrix) error {
	r, c := b.Dims()
	if r != f.Size() {
		return shapeError("Solve", "order %d operator, right-hand side has %d rows", f.Size(), r)
	}
	if dr, dc := dst.Dims(); dr != r || dc != c {
		return shapeError("Solve", "destination is %d×%d, want %d×%d", dr, dc, r, c)
	}
	return nil
}
