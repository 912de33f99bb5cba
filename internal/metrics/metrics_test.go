// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/vladimir-ch/lazygp/linalg"
	"github.com/vladimir-ch/lazygp/linop"
)

func TestObserve(t *testing.T) {
	r := NewRecorder()
	r.Observe(linalg.Event{
		Op:   "solve",
		Kind: linop.KindAddedDiag,
		Size: 10,
		Info: linalg.Info{Strategy: linalg.Iterative, Iterations: 7, MatVecs: 8, Runtime: time.Millisecond},
	})
	r.Observe(linalg.Event{
		Op:      "solve",
		Kind:    linop.KindAddedDiag,
		Info:    linalg.Info{Strategy: linalg.Iterative, Iterations: 3, MatVecs: 3},
		Warning: true,
	})
	r.Observe(linalg.Event{Op: "logdet", Kind: linop.KindDense, Err: true})

	c := r.computations.WithLabelValues("solve", linop.KindAddedDiag.String(), "iterative")
	assert.Equal(t, 2.0, testutil.ToFloat64(c))
	assert.Equal(t, 11.0, testutil.ToFloat64(r.matvecs.WithLabelValues("solve")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.warnings.WithLabelValues("solve")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.failures.WithLabelValues("logdet")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.iterations))
}

func TestRecorderAsObserver(t *testing.T) {
	r := NewRecorder()
	s := linalg.DefaultSettings()
	s.Observer = r
	s.Strategy = linalg.ClosedForm

	a := mat.NewSymDense(3, []float64{
		4, 1, 0,
		1, 3, 1,
		0, 1, 2,
	})
	_, _, err := linalg.Solve(linop.NewDense(a), mat.NewDense(3, 1, []float64{1, 2, 3}), s)
	require.NoError(t, err)

	c := r.computations.WithLabelValues("solve", linop.KindDense.String(), "closed-form")
	assert.Equal(t, 1.0, testutil.ToFloat64(c))
}

func TestWriteToTextfile(t *testing.T) {
	r := NewRecorder()
	r.Observe(linalg.Event{Op: "trace", Kind: linop.KindDiagonal})

	path := filepath.Join(t.TempDir(), "lazygp.prom")
	require.NoError(t, r.WriteToTextfile(path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "lazygp_computations_total")
	assert.Contains(t, string(b), `op="trace"`)
}
