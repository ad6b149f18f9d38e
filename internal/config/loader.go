package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Vocabulary.ReloadIntervalSeconds < 0 {
		errs = append(errs, fmt.Errorf("vocabulary.reload_interval_seconds %d is negative", cfg.Vocabulary.ReloadIntervalSeconds))
	}
	if cfg.Vocabulary.Path == "" && cfg.Vocabulary.ReloadIntervalSeconds > 0 {
		errs = append(errs, errors.New("vocabulary.reload_interval_seconds requires vocabulary.path"))
	}

	if t := cfg.Matcher.DefaultThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("matcher.default_threshold %.2f is out of range [0, 1]", t))
	}
	if m := cfg.Matcher.Margin; m < 0 || m > 0.5 {
		errs = append(errs, fmt.Errorf("matcher.margin %.2f is out of range [0, 0.5]", m))
	}

	if cfg.Accent.Backend != "" && !cfg.Accent.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("accent.backend %q is invalid; valid values: memory, postgres", cfg.Accent.Backend))
	}
	if cfg.Accent.Backend == AccentPostgres && cfg.Accent.PostgresDSN == "" {
		errs = append(errs, errors.New("accent.postgres_dsn is required for the postgres backend"))
	}
	for _, p := range []struct {
		name  string
		value float64
	}{
		{"accent.reinforce_step", cfg.Accent.ReinforceStep},
		{"accent.conflict_penalty", cfg.Accent.ConflictPenalty},
		{"accent.activation_floor", cfg.Accent.ActivationFloor},
		{"accent.removal_floor", cfg.Accent.RemovalFloor},
		{"accent.decay_factor", cfg.Accent.DecayFactor},
	} {
		if p.value < 0 || p.value > 1 {
			errs = append(errs, fmt.Errorf("%s %.2f is out of range [0, 1]", p.name, p.value))
		}
	}
	if af, rf := cfg.Accent.ActivationFloor, cfg.Accent.RemovalFloor; af > 0 && rf > 0 && rf >= af {
		errs = append(errs, fmt.Errorf("accent.removal_floor %.2f must be below accent.activation_floor %.2f", rf, af))
	}

	if cfg.Adaptive.Enabled {
		if f := cfg.Adaptive.Floor; f < 0 || f > 1 {
			errs = append(errs, fmt.Errorf("adaptive.floor %.2f is out of range [0, 1]", f))
		}
		if c := cfg.Adaptive.Ceil; c < 0 || c > 1 {
			errs = append(errs, fmt.Errorf("adaptive.ceil %.2f is out of range [0, 1]", c))
		}
		if f, c := cfg.Adaptive.Floor, cfg.Adaptive.Ceil; f > 0 && c > 0 && f >= c {
			errs = append(errs, fmt.Errorf("adaptive.floor %.2f must be below adaptive.ceil %.2f", f, c))
		}
	}

	if cfg.Accent.Backend == AccentMemory || cfg.Accent.Backend == "" {
		slog.Warn("accent backend is in-memory; accent profiles will not survive a restart")
	}
	if cfg.Analytics.Path == "" {
		slog.Warn("analytics.path is empty; match attempts will not be recorded")
	}

	return errors.Join(errs...)
}
