// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kernel

import (
	"math"
)

var (
	_ Kernel = Scale{}
	_ Kernel = (*Sum)(nil)
	_ Kernel = (*Product)(nil)
)

var scaleBound = Bound{math.Log(1e-4), math.Log(1e4)}

// Scale multiplies a kernel by an output scale,
//  k(x, y) = s·base(x, y).
// Its hyperparameters are those of Base followed by log s.
type Scale struct {
	Base     Kernel
	LogScale float64 // log s
}

func (k Scale) NumHyper() int { return k.Base.NumHyper() + 1 }

func (k Scale) Eval(x, y []float64) float64 {
	return math.Exp(k.LogScale) * k.Base.Eval(x, y)
}

func (k Scale) EvalGrad(deriv, x, y []float64) float64 {
	n := k.Base.NumHyper()
	checkDeriv(deriv, n+1)
	s := math.Exp(k.LogScale)
	v := k.Base.EvalGrad(deriv[:n], x, y)
	for i := range deriv[:n] {
		deriv[i] *= s
	}
	deriv[n] = s * v
	return s * v
}

func (k Scale) Hyper(dst []float64) []float64 {
	n := k.Base.NumHyper()
	dst = hyperSlice(dst, n+1)
	k.Base.Hyper(dst[:n])
	dst[n] = k.LogScale
	return dst
}

func (k Scale) WithHyper(h []float64) (Kernel, error) {
	if err := checkHyper("Scale", k, h); err != nil {
		return nil, err
	}
	n := k.Base.NumHyper()
	base, err := k.Base.WithHyper(h[:n])
	if err != nil {
		return nil, err
	}
	return Scale{Base: base, LogScale: h[n]}, nil
}

func (k Scale) Bounds() []Bound {
	return append(k.Base.Bounds(), scaleBound)
}

// parts is the list of kernels of a sum or product.
type parts []Kernel

func flatten(ks []Kernel, sum bool) parts {
	var p parts
	for _, k := range ks {
		switch k := k.(type) {
		case *Sum:
			if sum {
				p = append(p, k.parts...)
				continue
			}
		case *Product:
			if !sum {
				p = append(p, k.parts...)
				continue
			}
		}
		p = append(p, k)
	}
	return p
}

func (p parts) numHyper() int {
	var n int
	for _, k := range p {
		n += k.NumHyper()
	}
	return n
}

func (p parts) hyper(dst []float64) []float64 {
	dst = hyperSlice(dst, p.numHyper())
	var off int
	for _, k := range p {
		n := k.NumHyper()
		k.Hyper(dst[off : off+n])
		off += n
	}
	return dst
}

func (p parts) withHyper(h []float64) (parts, error) {
	q := make(parts, len(p))
	var off int
	for i, k := range p {
		n := k.NumHyper()
		c, err := k.WithHyper(h[off : off+n])
		if err != nil {
			return nil, err
		}
		q[i] = c
		off += n
	}
	return q, nil
}

func (p parts) bounds() []Bound {
	var b []Bound
	for _, k := range p {
		b = append(b, k.Bounds()...)
	}
	return b
}

// Sum is the sum of kernels. Its hyperparameters are those of the terms in
// order.
type Sum struct {
	parts parts
}

// NewSum returns the sum of the kernels. Nested sums are flattened.
func NewSum(ks ...Kernel) *Sum {
	if len(ks) == 0 {
		panic("kernel: empty sum")
	}
	return &Sum{parts: flatten(ks, true)}
}

// Terms returns the terms of the sum.
func (k *Sum) Terms() []Kernel { return append([]Kernel(nil), k.parts...) }

func (k *Sum) NumHyper() int { return k.parts.numHyper() }

func (k *Sum) Eval(x, y []float64) float64 {
	var v float64
	for _, p := range k.parts {
		v += p.Eval(x, y)
	}
	return v
}

func (k *Sum) EvalGrad(deriv, x, y []float64) float64 {
	checkDeriv(deriv, k.NumHyper())
	var v float64
	var off int
	for _, p := range k.parts {
		n := p.NumHyper()
		v += p.EvalGrad(deriv[off:off+n], x, y)
		off += n
	}
	return v
}

func (k *Sum) Hyper(dst []float64) []float64 { return k.parts.hyper(dst) }

func (k *Sum) WithHyper(h []float64) (Kernel, error) {
	if err := checkHyper("Sum", k, h); err != nil {
		return nil, err
	}
	p, err := k.parts.withHyper(h)
	if err != nil {
		return nil, err
	}
	return &Sum{parts: p}, nil
}

func (k *Sum) Bounds() []Bound { return k.parts.bounds() }

// Product is the product of kernels. Its hyperparameters are those of the
// factors in order.
type Product struct {
	parts parts
}

// NewProduct returns the product of the kernels. Nested products are
// flattened.
func NewProduct(ks ...Kernel) *Product {
	if len(ks) == 0 {
		panic("kernel: empty product")
	}
	return &Product{parts: flatten(ks, false)}
}

// Factors returns the factors of the product.
func (k *Product) Factors() []Kernel { return append([]Kernel(nil), k.parts...) }

func (k *Product) NumHyper() int { return k.parts.numHyper() }

func (k *Product) Eval(x, y []float64) float64 {
	v := 1.0
	for _, p := range k.parts {
		v *= p.Eval(x, y)
	}
	return v
}

// EvalGrad applies the product rule without dividing by factor values.
func (k *Product) EvalGrad(deriv, x, y []float64) float64 {
	checkDeriv(deriv, k.NumHyper())
	vals := make([]float64, len(k.parts))
	var off int
	for i, p := range k.parts {
		n := p.NumHyper()
		vals[i] = p.EvalGrad(deriv[off:off+n], x, y)
		off += n
	}
	off = 0
	for i, p := range k.parts {
		others := 1.0
		for j, v := range vals {
			if j != i {
				others *= v
			}
		}
		n := p.NumHyper()
		for d := off; d < off+n; d++ {
			deriv[d] *= others
		}
		off += n
	}
	v := 1.0
	for _, f := range vals {
		v *= f
	}
	return v
}

func (k *Product) Hyper(dst []float64) []float64 { return k.parts.hyper(dst) }

func (k *Product) WithHyper(h []float64) (Kernel, error) {
	if err := checkHyper("Product", k, h); err != nil {
		return nil, err
	}
	p, err := k.parts.withHyper(h)
	if err != nil {
		return nil, err
	}
	return &Product{parts: p}, nil
}

func (k *Product) Bounds() []Bound { return k.parts.bounds() }
