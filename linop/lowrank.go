// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linop

import "gonum.org/v1/gonum/mat"

// LowRank is the symmetric positive semi-definite matrix U Uᵀ given by an
// n×k factor U with k typically much smaller than n. On its own it is
// singular; added to a positive diagonal it is solved with the Woodbury
// identity.
type LowRank struct {
	base
	u *mat.Dense
}

// NewLowRank returns the operator U Uᵀ. u is copied.
func NewLowRank(u mat.Matrix) *LowRank {
	return &LowRank{u: mat.DenseCopyOf(u)}
}

func (l *LowRank) Kind() Kind { return KindLowRank }
func (l *LowRank) Size() int {
	n, _ := l.u.Dims()
	return n
}
func (l *LowRank) Shape() Shape    { return plain(l.Size()) }
func (l *LowRank) Symmetric() bool { return true }

// Rank returns the number of columns of the factor.
func (l *LowRank) Rank() int {
	_, k := l.u.Dims()
	return k
}

// Factor returns a copy of U.
func (l *LowRank) Factor() *mat.Dense {
	return mat.DenseCopyOf(l.u)
}
