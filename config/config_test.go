// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladimir-ch/lazygp/iterative"
	"github.com/vladimir-ch/lazygp/linalg"
)

func TestDefaultMatchesSettings(t *testing.T) {
	s, err := Default().Settings()
	require.NoError(t, err)
	assert.Equal(t, linalg.DefaultSettings(), s)
}

func TestParse(t *testing.T) {
	c, err := Parse([]byte(`
max_cg_iterations: 50
cg_tolerance: 1e-4
preconditioner_rank: 0
float_precision: float32
strategy: iterative
seed: 7
log_level: debug
`))
	require.NoError(t, err)
	assert.Equal(t, 50, c.MaxCGIterations)
	assert.Equal(t, 1e-4, c.CGTolerance)
	assert.Equal(t, linalg.DefaultNumProbes, c.NumProbeVectors, "absent keys keep defaults")

	s, err := c.Settings()
	require.NoError(t, err)
	assert.Equal(t, iterative.Float32, s.Precision)
	assert.Equal(t, linalg.Iterative, s.Strategy)
	assert.Equal(t, int64(7), s.Seed)
	assert.Equal(t, 0, s.PreconditionerRank)

	l, err := c.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)
}

func TestParseEmpty(t *testing.T) {
	c, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestParseUnknownKey(t *testing.T) {
	_, err := Parse([]byte("max_iterations: 10\n"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	for _, test := range []struct {
		name  string
		yaml  string
		field string
	}{
		{"iterations", "max_cg_iterations: 0", "max_cg_iterations"},
		{"negative tolerance", "cg_tolerance: -1", "cg_tolerance"},
		{"tolerance one", "cg_tolerance: 1", "cg_tolerance"},
		{"rank", "preconditioner_rank: -3", "preconditioner_rank"},
		{"probes", "num_probe_vectors: 0", "num_probe_vectors"},
		{"lanczos", "lanczos_steps: 0", "lanczos_steps"},
		{"precision", "float_precision: half", "float_precision"},
		{"threshold", "dense_threshold: -1", "dense_threshold"},
		{"strategy", "strategy: fastest", "strategy"},
		{"level", "log_level: loud", "log_level"},
		{"float32 tolerance", "float_precision: float32\ncg_tolerance: 1e-10", "cg_tolerance"},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse([]byte(test.yaml))
			require.Error(t, err)
			var ne *iterative.NumericalError
			require.True(t, errors.As(err, &ne), "got %T: %v", err, err)
			assert.Contains(t, ne.Reason, "invalid configuration value")
			assert.Contains(t, ne.Reason, test.field)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lazygp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lanczos_steps: 12\n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, c.LanczosSteps)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	require.NoError(t, os.WriteFile(path, []byte("lanczos_steps: [1, 2]\n"), 0o600))
	_, err = Load(path)
	require.Error(t, err)
}
