// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads server configuration from a YAML file with
// command-line flag overrides.
package config

import (
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// SubjectType configures one subject type the engine serves.
type SubjectType struct {
	Name string `koanf:"name"`

	// Default names the type's fallback subject; empty disables it.
	Default string `koanf:"default"`

	// DefaultPermissions are seeded onto the default subject's global
	// segment at startup.
	DefaultPermissions map[string]int `koanf:"default-permissions"`
}

// Config is the server configuration.
type Config struct {
	DatabaseURL  string        `koanf:"database-url"`
	MetricsAddr  string        `koanf:"metrics-addr"`
	LogFormat    string        `koanf:"log-format"`
	LogLevel     string        `koanf:"log-level"`
	SubjectTypes []SubjectType `koanf:"subject-types"`
}

// defaults returns the baseline configuration before file and flag
// layers apply.
func defaults() Config {
	return Config{
		MetricsAddr: "127.0.0.1:9100",
		LogFormat:   "json",
		LogLevel:    "info",
	}
}

// Load reads configuration in layers: defaults, then the YAML file at
// path (optional), then flag overrides (optional). Flag names match
// koanf keys, e.g. --database-url.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.
				Code("CONFIG_LOAD_FAILED").
				With("path", path).
				Wrapf(err, "load config file")
		}
	}
	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").Wrapf(err, "apply flag overrides")
		}
	}

	cfg := defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrapf(err, "unmarshal config")
	}
	if len(cfg.SubjectTypes) == 0 {
		cfg.SubjectTypes = []SubjectType{
			{Name: "user", Default: "default"},
			{Name: "group"},
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks structural constraints. The database URL is checked
// by commands that need it, not here, so offline commands work without
// one.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.SubjectTypes))
	for _, st := range c.SubjectTypes {
		if st.Name == "" {
			return oops.Code("CONFIG_INVALID").Errorf("subject type name must not be empty")
		}
		if _, dup := seen[st.Name]; dup {
			return oops.
				Code("CONFIG_INVALID").
				With("subject_type", st.Name).
				Errorf("duplicate subject type %q", st.Name)
		}
		seen[st.Name] = struct{}{}
		if len(st.DefaultPermissions) > 0 && st.Default == "" {
			return oops.
				Code("CONFIG_INVALID").
				With("subject_type", st.Name).
				Errorf("default-permissions require a default subject for type %q", st.Name)
		}
	}
	switch c.LogFormat {
	case "", "json", "text":
	default:
		return oops.
			Code("CONFIG_INVALID").
			With("log_format", c.LogFormat).
			Errorf("log-format must be json or text")
	}
	return nil
}

// RequireDatabaseURL fails when no database URL is configured.
func (c *Config) RequireDatabaseURL() error {
	if c.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database-url is required")
	}
	return nil
}
