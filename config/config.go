// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config reads the settings of the linear algebra from YAML.
//
// A configuration file looks like
//
//	max_cg_iterations: 1000
//	cg_tolerance: 1e-6
//	preconditioner_rank: 15
//	num_probe_vectors: 10
//	lanczos_steps: 30
//	float_precision: float64
//	dense_threshold: 256
//	strategy: auto
//	seed: 1
//	log_level: info
//
// Keys that are absent keep their default values.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/vladimir-ch/lazygp/iterative"
	"github.com/vladimir-ch/lazygp/linalg"
)

// Config is the YAML form of linalg.Settings.
type Config struct {
	MaxCGIterations    int     `yaml:"max_cg_iterations" validate:"gte=1"`
	CGTolerance        float64 `yaml:"cg_tolerance" validate:"gt=0,lt=1"`
	PreconditionerRank int     `yaml:"preconditioner_rank" validate:"gte=0"`
	NumProbeVectors    int     `yaml:"num_probe_vectors" validate:"gte=1"`
	LanczosSteps       int     `yaml:"lanczos_steps" validate:"gte=1"`
	FloatPrecision     string  `yaml:"float_precision" validate:"oneof=float64 float32 double single"`
	DenseThreshold     int     `yaml:"dense_threshold" validate:"gte=0"`
	Strategy           string  `yaml:"strategy" validate:"oneof=auto closed-form iterative"`
	Seed               int64   `yaml:"seed"`
	LogLevel           string  `yaml:"log_level" validate:"oneof=debug info warn error"`
}

// Default returns the configuration matching linalg.DefaultSettings.
func Default() Config {
	return Config{
		MaxCGIterations:    linalg.DefaultMaxIterations,
		CGTolerance:        linalg.DefaultTolerance,
		PreconditionerRank: linalg.DefaultPreconditionerRank,
		NumProbeVectors:    linalg.DefaultNumProbes,
		LanczosSteps:       linalg.DefaultLanczosSteps,
		FloatPrecision:     iterative.Float64.String(),
		DenseThreshold:     linalg.DefaultDenseThreshold,
		Strategy:           linalg.Auto.String(),
		LogLevel:           "info",
	}
}

// Load reads and validates the configuration file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config file %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a YAML configuration. Unknown keys are
// rejected.
func Parse(data []byte) (Config, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		return name
	})
	return v
}

// Validate reports the first value out of range as a
// *iterative.NumericalError.
func (c Config) Validate() error {
	err := validate.Struct(c)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return iterative.Numerical("config.Validate",
			"invalid configuration value %s=%v (%s %s)", fe.Field(), fe.Value(), fe.Tag(), fe.Param())
	}
	if err != nil {
		return err
	}
	p, err := iterative.ParsePrecision(c.FloatPrecision)
	if err != nil {
		return err
	}
	if c.CGTolerance < p.Eps() {
		return iterative.Numerical("config.Validate",
			"invalid configuration value cg_tolerance=%v (below %s epsilon %v)", c.CGTolerance, p, p.Eps())
	}
	return nil
}

// Level returns the log level.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, iterative.Numerical("config.Level", "invalid configuration value log_level=%q", c.LogLevel)
	}
	return l, nil
}

func parseStrategy(s string) (linalg.Strategy, error) {
	for _, st := range []linalg.Strategy{linalg.Auto, linalg.ClosedForm, linalg.Iterative} {
		if st.String() == s {
			return st, nil
		}
	}
	return linalg.Auto, iterative.Numerical("config.Settings", "invalid configuration value strategy=%q", s)
}

// Settings validates c and converts it. The Logger and Observer of the
// result are nil.
func (c Config) Settings() (linalg.Settings, error) {
	if err := c.Validate(); err != nil {
		return linalg.Settings{}, err
	}
	p, err := iterative.ParsePrecision(c.FloatPrecision)
	if err != nil {
		return linalg.Settings{}, err
	}
	st, err := parseStrategy(c.Strategy)
	if err != nil {
		return linalg.Settings{}, err
	}
	return linalg.Settings{
		MaxIterations:      c.MaxCGIterations,
		Tolerance:          c.CGTolerance,
		PreconditionerRank: c.PreconditionerRank,
		NumProbes:          c.NumProbeVectors,
		LanczosSteps:       c.LanczosSteps,
		Precision:          p,
		DenseThreshold:     c.DenseThreshold,
		Strategy:           st,
		Seed:               c.Seed,
	}, nil
}
