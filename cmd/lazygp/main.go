// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command lazygp runs Gaussian process computations on lazy covariance
// operators.
//
// Usage:
//
//	lazygp solve                 # six-point regression, CG against Cholesky
//	lazygp logdet -n 500         # stochastic against exact log-determinant
//	lazygp train -n 50           # fit hyperparameters on synthetic data
//
// Every command accepts --config with a YAML file of linear algebra
// settings, --log-level and --metrics-file.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vladimir-ch/lazygp/config"
	"github.com/vladimir-ch/lazygp/internal/metrics"
	"github.com/vladimir-ch/lazygp/linalg"
)

func main() {
	if err := newRootCmd(os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

// env is shared by the subcommands after the flags are parsed.
type env struct {
	configPath  string
	logLevel    string
	metricsFile string

	logOut   io.Writer
	log      *slog.Logger
	settings linalg.Settings
	recorder *metrics.Recorder
}

func newRootCmd(logOut io.Writer) *cobra.Command {
	e := &env{logOut: logOut}
	root := &cobra.Command{
		Use:          "lazygp",
		Short:        "Gaussian processes on lazy covariance operators",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if e.metricsFile == "" {
				return nil
			}
			if err := e.recorder.WriteToTextfile(e.metricsFile); err != nil {
				return fmt.Errorf("failed to write metrics: %w", err)
			}
			e.log.Debug("metrics written", "path", e.metricsFile)
			return nil
		},
	}
	f := root.PersistentFlags()
	f.StringVar(&e.configPath, "config", "", "YAML file with linear algebra settings")
	f.StringVar(&e.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config file")
	f.StringVar(&e.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")

	root.AddCommand(newSolveCmd(e), newLogDetCmd(e), newTrainCmd(e))
	return root
}

func (e *env) setup() error {
	c := config.Default()
	if e.configPath != "" {
		var err error
		c, err = config.Load(e.configPath)
		if err != nil {
			return err
		}
	}
	if e.logLevel != "" {
		c.LogLevel = e.logLevel
	}
	level, err := c.Level()
	if err != nil {
		return err
	}
	s, err := c.Settings()
	if err != nil {
		return err
	}
	e.log = slog.New(slog.NewTextHandler(e.logOut, &slog.HandlerOptions{Level: level}))
	e.recorder = metrics.NewRecorder()
	s.Logger = e.log
	s.Observer = e.recorder
	e.settings = s
	e.log.Debug("configuration loaded",
		"path", e.configPath,
		"strategy", s.Strategy.String(),
		"precision", s.Precision.String(),
		"tolerance", s.Tolerance)
	return nil
}
