// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics records linalg computations as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladimir-ch/lazygp/linalg"
)

const namespace = "lazygp"

var _ linalg.Observer = (*Recorder)(nil)

// Recorder is a linalg.Observer that counts computations on its own
// registry.
type Recorder struct {
	reg *prometheus.Registry

	computations *prometheus.CounterVec
	warnings     *prometheus.CounterVec
	failures     *prometheus.CounterVec
	matvecs      *prometheus.CounterVec
	iterations   *prometheus.HistogramVec
	duration     *prometheus.HistogramVec
}

// NewRecorder returns a Recorder with its metrics registered on a new
// registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		computations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "computations_total",
			Help:      "Completed computations by operation, operator kind and strategy.",
		}, []string{"op", "kind", "strategy"}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "convergence_warnings_total",
			Help:      "Computations whose iterative methods stopped at the iteration cap.",
		}, []string{"op"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Computations that returned an error.",
		}, []string{"op"}),
		matvecs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matvecs_total",
			Help:      "Operator-vector products.",
		}, []string{"op"}),
		iterations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "iterations",
			Help:      "Largest number of CG or Lanczos iterations of a computation.",
			Buckets:   []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
		}, []string{"op"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "duration_seconds",
			Help:      "Runtime of a computation in seconds.",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 10),
		}, []string{"op"}),
	}
	r.reg.MustRegister(r.computations, r.warnings, r.failures, r.matvecs, r.iterations, r.duration)
	return r
}

// Registry returns the registry of r.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Observe records e.
func (r *Recorder) Observe(e linalg.Event) {
	if e.Err {
		r.failures.WithLabelValues(e.Op).Inc()
		return
	}
	r.computations.WithLabelValues(e.Op, e.Kind.String(), e.Info.Strategy.String()).Inc()
	if e.Warning {
		r.warnings.WithLabelValues(e.Op).Inc()
	}
	r.matvecs.WithLabelValues(e.Op).Add(float64(e.Info.MatVecs))
	if e.Info.Iterations > 0 {
		r.iterations.WithLabelValues(e.Op).Observe(float64(e.Info.Iterations))
	}
	r.duration.WithLabelValues(e.Op).Observe(e.Info.Runtime.Seconds())
}

// WriteToTextfile writes the metrics of r to path in the text exposition
// format.
func (r *Recorder) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
