// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linop

// Kronecker is the Kronecker product A⊗B of an M×M operator A and an N×N
// operator B. Element ((i,k),(j,l)) at row i*N+k and column j*N+l is
// A[i,j]*B[k,l].
//
// Products, solves and log-determinants are computed from the factors
// alone. Representing a covariance matrix this way is exact only when the
// covariance genuinely factorizes, for example a product kernel evaluated
// on a Cartesian grid or a separable multitask covariance; it is the
// caller's responsibility to establish that precondition.
type Kronecker struct {
	base
	a, b Operator
}

// Kron returns the Kronecker product of ops from left to right. At least one
// operand is required.
func Kron(ops ...Operator) (Operator, error) {
	if len(ops) == 0 {
		return nil, shapeError("Kron", "no operands")
	}
	acc := ops[0]
	for _, op := range ops {
		if op.Shape().Batch != 1 {
			return nil, shapeError("Kron", "batched operand %v", op.Shape())
		}
	}
	for _, op := range ops[1:] {
		acc = &Kronecker{a: acc, b: op}
	}
	return acc, nil
}

func (k *Kronecker) Kind() Kind      { return KindKronecker }
func (k *Kronecker) Size() int       { return k.a.Size() * k.b.Size() }
func (k *Kronecker) Shape() Shape    { return plain(k.Size()) }
func (k *Kronecker) Symmetric() bool { return k.a.Symmetric() && k.b.Symmetric() }

// Factors returns A and B.
func (k *Kronecker) Factors() (a, b Operator) { return k.a, k.b }
