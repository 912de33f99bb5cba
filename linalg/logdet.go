// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linalg

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/vladimir-ch/lazygp/iterative"
	"github.com/vladimir-ch/lazygp/linop"
	"github.com/vladimir-ch/lazygp/precond"
)

// LogDet returns an estimate of log det A for a symmetric positive definite
// operator A. Closed forms give an exact value with zero standard error;
// otherwise the value is a stochastic Lanczos quadrature estimate
//  log det A ≈ log det M + mean_j |L⁻¹zⱼ|² e₁ᵀ log(Tⱼ) e₁
// over s.NumProbes probes zⱼ ~ N(0, M) for the preconditioner M = LLᵀ and
// the Lanczos tridiagonal matrices Tⱼ of L⁻¹AL⁻ᵀ of order at most
// s.LanczosSteps.
func LogDet(op linop.Operator, s Settings) (iterative.Estimate, Info, error) {
	start := time.Now()
	if err := s.checkStochastic("linalg.LogDet"); err != nil {
		return iterative.Estimate{}, Info{}, err
	}
	est, info, err := logDet(op, s, s.rand())
	if err == nil && (math.IsNaN(est.Value) || math.IsInf(est.Value, 0)) {
		err = iterative.Numerical("linalg.LogDet", "non-finite estimate %v", est.Value)
	}
	finish(s, "logdet", op, start, &info, err)
	return est, info, err
}

func logDet(op linop.Operator, s Settings, rnd *rand.Rand) (iterative.Estimate, Info, error) {
	switch o := op.(type) {
	case *linop.BlockDiag:
		var (
			est  iterative.Estimate
			info Info
		)
		for i, blk := range o.Blocks() {
			e, bi, err := logDet(blk, s, rnd)
			if err != nil {
				return iterative.Estimate{}, info, err
			}
			est.Value += e.Value
			est.StdErr = math.Hypot(est.StdErr, e.StdErr)
			if i == 0 {
				info = bi
			} else {
				info.merge(bi)
			}
		}
		return est, info, nil

	case *linop.Scaled:
		c := o.Scalar()
		if !(c > 0) {
			return iterative.Estimate{}, Info{}, iterative.Numerical("linalg.LogDet", "scaling by %v is not positive", c)
		}
		est, info, err := logDet(o.Operand(), s, rnd)
		est.Value += float64(o.Size()) * math.Log(c)
		return est, info, err

	case *linop.Kronecker:
		if _, ok := linop.LogDetCost(o, s.DenseThreshold); !ok {
			a, b := o.Factors()
			ea, ia, err := logDet(a, s, rnd)
			if err != nil {
				return iterative.Estimate{}, ia, err
			}
			eb, ib, err := logDet(b, s, rnd)
			if err != nil {
				return iterative.Estimate{}, ib, err
			}
			m, n := float64(a.Size()), float64(b.Size())
			ia.merge(ib)
			return iterative.Estimate{
				Value:  n*ea.Value + m*eb.Value,
				StdErr: math.Hypot(n*ea.StdErr, m*eb.StdErr),
			}, ia, nil
		}
	}

	closed, ok := linop.LogDetCost(op, s.DenseThreshold)
	strat, err := choose(s, closed, ok, slqCost(op, s))
	if err != nil {
		return iterative.Estimate{}, Info{}, fmt.Errorf("linalg: %v operator: %w", op.Kind(), err)
	}
	if strat == ClosedForm {
		v, err := linop.LogDet(op, s.DenseThreshold)
		return iterative.Estimate{Value: v}, Info{Strategy: ClosedForm}, err
	}
	return slq(op, s, rnd)
}

func slqCost(op linop.Operator, s Settings) float64 {
	n := float64(op.Size())
	steps := math.Min(n, float64(s.LanczosSteps))
	per := linop.MulCost(op) + 4*n*(steps+float64(s.PreconditionerRank))
	return float64(s.NumProbes) * steps * per
}

// slq estimates log det A by stochastic Lanczos quadrature.
func slq(op linop.Operator, s Settings, rnd *rand.Rand) (iterative.Estimate, Info, error) {
	info := Info{Strategy: Iterative}
	if !op.Symmetric() {
		return iterative.Estimate{}, info, iterative.Numerical("linalg.LogDet", "%v operator is not symmetric", op.Kind())
	}
	p, err := samplingPreconditioner(op, s)
	if err != nil {
		return iterative.Estimate{}, info, err
	}
	n := op.Size()
	z := probes(p, n, s.NumProbes, rnd)
	ls := iterative.LanczosSettings{
		Steps:     s.LanczosSteps,
		PSolve:    vecPSolve(p, n),
		Precision: s.Precision,
	}
	ops := linop.MatrixOps(op)
	samples := make([]float64, s.NumProbes)
	for j := range samples {
		res, err := iterative.Lanczos(ops, mat.Col(nil, j, z), ls)
		if err != nil {
			return iterative.Estimate{}, info, err
		}
		info.MatVecs += res.Stats.MatVec
		if res.Stats.Iterations > info.Iterations {
			info.Iterations = res.Stats.Iterations
		}
		q, err := res.T.QuadLog()
		if err != nil {
			return iterative.Estimate{}, info, err
		}
		samples[j] = res.StartNorm2 * q
	}
	est := iterative.NewEstimate(samples)
	if p != nil {
		est.Value += p.LogDet()
	}
	return est, info, nil
}

// samplingPreconditioner returns the preconditioner of op if it can draw
// probes from N(0, M), and nil otherwise.
func samplingPreconditioner(op linop.Operator, s Settings) (precond.Preconditioner, error) {
	p, err := precond.ForOperator(op, s.PreconditionerRank)
	if err != nil {
		return nil, err
	}
	if _, ok := p.(precond.Sampler); !ok {
		return nil, nil
	}
	return p, nil
}

// probes returns k probe vectors with covariance M, or Rademacher probes if
// there is no preconditioner.
func probes(p precond.Preconditioner, n, k int, rnd *rand.Rand) *mat.Dense {
	if sp, ok := p.(precond.Sampler); ok {
		z := mat.NewDense(n, k, nil)
		sp.Sample(z, rnd)
		return z
	}
	return iterative.Probes(n, k, iterative.Rademacher, rnd)
}

// InvQuadLogDetResult holds the result of InvQuadLogDet.
type InvQuadLogDetResult struct {
	// Solve is A⁻¹Y.
	Solve *mat.Dense
	// InvQuad holds yⱼᵀA⁻¹yⱼ for the
	// columns of Y.
	InvQuad []float64
	// LogDet is the estimate of log det A.
	LogDet iterative.Estimate
	// Info describes the computation.
	Info Info

	op linop.Operator
	s  Settings
	f  linop.Factor
	z  *mat.Dense // probes
	az *mat.Dense // A⁻¹z
	mz *mat.Dense // M⁻¹z
}

// InvQuadLogDet computes A⁻¹Y, the inverse quadratic forms of the columns of
// Y and log det A together. Y may be nil.
//
// On the iterative path a single batched CG run over [Y | Z] with probes Z
// produces the solves, the log-determinant (Lanczos tridiagonal matrices
// are recovered from the CG coefficients of the probe columns) and the
// probe solves later reused by Trace.
func InvQuadLogDet(op linop.Operator, y mat.Matrix, s Settings) (*InvQuadLogDetResult, error) {
	start := time.Now()
	if y != nil {
		if err := linop.CheckBatch(op, y); err != nil {
			return nil, err
		}
	}
	if err := s.checkStochastic("linalg.InvQuadLogDet"); err != nil {
		return nil, err
	}
	var yd *mat.Dense
	k := 0
	if y != nil {
		yd = mat.DenseCopyOf(y)
		_, k = yd.Dims()
	}

	closed, ok := linop.SolveCost(op, s.DenseThreshold)
	closed *= math.Max(1, float64(k))
	iter := cgCost(op, s, k+s.NumProbes)
	strat, err := choose(s, closed, ok, iter)
	if err != nil {
		err = fmt.Errorf("linalg: %v operator: %w", op.Kind(), err)
		finish(s, "inv_quad_logdet", op, start, &Info{}, err)
		return nil, err
	}

	var res *InvQuadLogDetResult
	if strat == ClosedForm {
		res, err = invQuadLogDetClosed(op, yd, s)
	} else {
		res, err = invQuadLogDetCG(op, yd, s)
	}
	if res != nil && iterative.IsWarning(err) {
		if ferr := res.checkFinite(); ferr != nil {
			res, err = nil, ferr
		}
	}
	info := Info{}
	if res != nil {
		info = res.Info
	}
	finish(s, "inv_quad_logdet", op, start, &info, err)
	if res != nil {
		res.Info = info
	}
	return res, err
}

func (r *InvQuadLogDetResult) checkFinite() error {
	v := r.LogDet.Value
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return iterative.Numerical("linalg.InvQuadLogDet", "non-finite log-determinant %v", v)
	}
	if r.Solve != nil {
		if err := iterative.CheckFinite("linalg.InvQuadLogDet", r.Solve.RawMatrix().Data); err != nil {
			return err
		}
	}
	return iterative.CheckFinite("linalg.InvQuadLogDet", r.InvQuad)
}

func invQuadLogDetClosed(op linop.Operator, y *mat.Dense, s Settings) (*InvQuadLogDetResult, error) {
	f, err := linop.Factorize(op, s.DenseThreshold)
	if err != nil {
		return nil, err
	}
	res := &InvQuadLogDetResult{
		LogDet: iterative.Estimate{Value: f.LogDet()},
		Info:   Info{Strategy: ClosedForm},
		op:     op,
		s:      s,
		f:      f,
	}
	if y != nil {
		n, k := y.Dims()
		res.Solve = mat.NewDense(n, k, nil)
		if err := f.SolveTo(res.Solve, y); err != nil {
			return nil, err
		}
		res.InvQuad = make([]float64, k)
		for j := range res.InvQuad {
			res.InvQuad[j] = colDot(y, res.Solve, j)
		}
	}
	return res, nil
}

func invQuadLogDetCG(op linop.Operator, y *mat.Dense, s Settings) (*InvQuadLogDetResult, error) {
	info := Info{Strategy: Iterative}
	if !op.Symmetric() {
		return nil, iterative.Numerical("linalg.InvQuadLogDet", "%v operator is not symmetric", op.Kind())
	}
	p, err := samplingPreconditioner(op, s)
	if err != nil {
		return nil, err
	}
	n := op.Size()
	k := 0
	if y != nil {
		_, k = y.Dims()
	}
	np := s.NumProbes
	z := probes(p, n, np, s.rand())

	rhs := mat.NewDense(n, k+np, nil)
	if k > 0 {
		rhs.Slice(0, n, 0, k).(*mat.Dense).Copy(y)
	}
	rhs.Slice(0, n, k, k+np).(*mat.Dense).Copy(z)

	cg, err := iterative.BatchCG(linop.BlockOps(op), rhs, iterative.BatchSettings{
		Tolerance:     s.Tolerance,
		MaxIterations: s.maxIterations(),
		PSolve:        blockPSolve(p),
		Precision:     s.Precision,
		RecordSteps:   s.LanczosSteps,
	})
	info.Iterations = cg.Stats.Iterations
	info.MatVecs = cg.Stats.MatVec
	info.ResidualNorm = cg.Stats.ResidualNorm
	if !iterative.IsWarning(err) {
		return nil, err
	}
	werr := err

	samples := make([]float64, np)
	for j := range samples {
		t := cg.Tridiagonal(k + j)
		if t.Order() == 0 {
			continue
		}
		q, err := t.QuadLog()
		if err != nil {
			return nil, err
		}
		samples[j] = cg.Rho0[k+j] * q
	}
	est := iterative.NewEstimate(samples)

	res := &InvQuadLogDetResult{
		LogDet: est,
		Info:   info,
		op:     op,
		s:      s,
		z:      z,
		az:     mat.DenseCopyOf(cg.X.Slice(0, n, k, k+np)),
	}
	if p != nil {
		res.LogDet.Value += p.LogDet()
		res.mz = mat.NewDense(n, np, nil)
		if err := p.Apply(res.mz, z); err != nil {
			return nil, err
		}
	} else {
		res.mz = z
	}
	if k > 0 {
		res.Solve = mat.DenseCopyOf(cg.X.Slice(0, n, 0, k))
		res.InvQuad = make([]float64, k)
		for j := range res.InvQuad {
			res.InvQuad[j] = colDot(y, res.Solve, j)
		}
	}
	return res, werr
}

// Trace returns an estimate of tr(A⁻¹ dA) for a symmetric operator dA of the
// same order as A, typically the derivative of A with respect to a
// hyperparameter.
//
// On the iterative path the estimate reuses the probe solves of
// InvQuadLogDet: for probes z ~ N(0, M), E[(A⁻¹z)ᵀ dA (M⁻¹z)] = tr(A⁻¹dA).
// On the closed-form path the trace is exact for operators no larger than
// the dense threshold and a Hutchinson estimate with closed-form solves
// otherwise.
func (r *InvQuadLogDetResult) Trace(dA linop.Operator) (iterative.Estimate, error) {
	if dA.Size() != r.op.Size() {
		return iterative.Estimate{}, fmt.Errorf("linalg: trace of order %d derivative with order %d operator: %w",
			dA.Size(), r.op.Size(), iterative.ErrShape)
	}
	if r.f == nil {
		adz, err := linop.Mul(dA, r.mz)
		if err != nil {
			return iterative.Estimate{}, err
		}
		return iterative.HutchinsonMatrix(r.az, adz), nil
	}

	n := r.op.Size()
	if n <= r.s.DenseThreshold {
		x := mat.NewDense(n, n, nil)
		if err := r.f.SolveTo(x, linop.ToDense(dA)); err != nil {
			return iterative.Estimate{}, err
		}
		return iterative.Estimate{Value: mat.Trace(x)}, nil
	}
	if r.z == nil {
		r.z = iterative.Probes(n, r.s.NumProbes, iterative.Rademacher, r.s.rand())
		r.az = mat.NewDense(n, r.s.NumProbes, nil)
		if err := r.f.SolveTo(r.az, r.z); err != nil {
			return iterative.Estimate{}, err
		}
	}
	adz, err := linop.Mul(dA, r.z)
	if err != nil {
		return iterative.Estimate{}, err
	}
	return iterative.HutchinsonMatrix(r.az, adz), nil
}

// InverseDiag returns an estimate of the diagonal of A⁻¹. With it the
// traces tr(A⁻¹ dA) for all diagonal derivatives dA = eᵢeᵢᵀ come from one
// call.
//
// The estimate is exact on the closed-form path for operators no larger
// than the dense threshold. Otherwise it is the Hutchinson diagonal
// estimator mean over probes of (A⁻¹z) ⊙ (M⁻¹z), reusing the probe solves.
func (r *InvQuadLogDetResult) InverseDiag() ([]float64, error) {
	n := r.op.Size()
	var az, z *mat.Dense
	switch {
	case r.f == nil:
		az, z = r.az, r.mz
	case n <= r.s.DenseThreshold:
		eye := mat.NewDense(n, n, nil)
		for i := 0; i < n; i++ {
			eye.Set(i, i, 1)
		}
		x := mat.NewDense(n, n, nil)
		if err := r.f.SolveTo(x, eye); err != nil {
			return nil, err
		}
		d := make([]float64, n)
		for i := range d {
			d[i] = x.At(i, i)
		}
		return d, nil
	default:
		if r.z == nil {
			r.z = iterative.Probes(n, r.s.NumProbes, iterative.Rademacher, r.s.rand())
			r.az = mat.NewDense(n, r.s.NumProbes, nil)
			if err := r.f.SolveTo(r.az, r.z); err != nil {
				return nil, err
			}
		}
		az, z = r.az, r.z
	}
	_, k := az.Dims()
	d := make([]float64, n)
	for i := range d {
		ai, zi := az.RawRowView(i), z.RawRowView(i)
		var sum float64
		for j := 0; j < k; j++ {
			sum += ai[j] * zi[j]
		}
		d[i] = sum / float64(k)
	}
	return d, nil
}

// InvQuadGrad returns the derivatives −αⱼᵀ dA αⱼ of the inverse quadratic
// forms yⱼᵀA⁻¹yⱼ, where αⱼ = A⁻¹yⱼ, for a derivative dA of A.
func (r *InvQuadLogDetResult) InvQuadGrad(dA linop.Operator) ([]float64, error) {
	if r.Solve == nil {
		return nil, nil
	}
	da, err := linop.Mul(dA, r.Solve)
	if err != nil {
		return nil, err
	}
	g := make([]float64, len(r.InvQuad))
	for j := range g {
		g[j] = -colDot(r.Solve, da, j)
	}
	return g, nil
}
