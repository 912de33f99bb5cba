// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (stdout, logs string, err error) {
	t.Helper()
	var out, log bytes.Buffer
	cmd := newRootCmd(&log)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), log.String(), err
}

func TestSolveCommand(t *testing.T) {
	out, _, err := run(t, "solve")
	require.NoError(t, err)
	assert.Contains(t, out, "max difference")
	assert.Contains(t, out, "cholesky")
}

func TestLogDetCommand(t *testing.T) {
	out, _, err := run(t, "logdet", "-n", "60")
	require.NoError(t, err)
	assert.Contains(t, out, "exact")
	assert.Contains(t, out, "relative error")
}

func TestTrainCommand(t *testing.T) {
	out, _, err := run(t, "train", "-n", "15", "--iterations", "5", "--priors")
	require.NoError(t, err)
	assert.Contains(t, out, "length")
	assert.Contains(t, out, "noise")
}

func TestTrainHeteroskedasticCommand(t *testing.T) {
	out, _, err := run(t, "train", "-n", "12", "--iterations", "5", "--heteroskedastic")
	require.NoError(t, err)
	assert.Contains(t, out, "noise range")
}

func TestConfigAndMetrics(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "lazygp.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("max_cg_iterations: 50\nlog_level: debug\n"), 0o600))
	prom := filepath.Join(dir, "lazygp.prom")

	_, logs, err := run(t, "solve", "--config", cfg, "--metrics-file", prom)
	require.NoError(t, err)
	assert.Contains(t, logs, "configuration loaded")

	b, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(b), "lazygp_computations_total")
}

func TestInvalidConfig(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "lazygp.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("cg_tolerance: 2\n"), 0o600))
	_, _, err := run(t, "solve", "--config", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration value")

	_, _, err = run(t, "solve", "--log-level", "verbose")
	require.Error(t, err)
}
