// plexodb - PLEXOS solution bundle to DuckDB assembler
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads plexodb's run configuration from layered sources:
// built-in defaults, an optional plexodb.toml file, environment variables,
// and CLI flags, in that precedence order (flags win).
package config

import (
	"fmt"
	"strings"
)

// Config holds every setting that affects the on-disk output of a run,
// populated from CLI flags by cmd/plexodb and merged over file/env layers.
type Config struct {
	Input        string `koanf:"input"`
	Output       string `koanf:"output"`
	PrintSummary bool   `koanf:"print_summary"`
	InMemory     bool   `koanf:"in_memory"`
	NThreads     int    `koanf:"n_threads"`
	Resume       bool   `koanf:"resume"`
	MetricsAddr  string `koanf:"metrics_addr"`
	IoRateLimit  int    `koanf:"io_rate_limit"`
	LogFile      string `koanf:"log_file"`
	LogLevel     string `koanf:"log_level"`
}

// defaultConfig returns the built-in defaults, applied before the optional
// config file and environment variable layers.
func defaultConfig() *Config {
	return &Config{
		NThreads: 0, // 0 = heuristic: min(available_parallelism, 8)
		LogLevel: "info",
	}
}

// Validate checks the fields that cannot be caught by flag parsing alone.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Input) == "" {
		return fmt.Errorf("input path is required")
	}
	if c.NThreads < 0 {
		return fmt.Errorf("n_threads must be non-negative, got %d", c.NThreads)
	}
	if c.IoRateLimit < 0 {
		return fmt.Errorf("io_rate_limit must be non-negative, got %d", c.IoRateLimit)
	}
	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled", "":
	default:
		return fmt.Errorf("unrecognized log_level %q", c.LogLevel)
	}
	return nil
}

// OutputPath returns the configured output path, defaulting to the input
// path's stem with a .duckdb extension.
func (c *Config) OutputPath() string {
	if c.Output != "" {
		return c.Output
	}
	return stemWithExt(c.Input, ".duckdb")
}

func stemWithExt(path, ext string) string {
	stem := path
	if idx := strings.LastIndexByte(stem, '.'); idx > strings.LastIndexByte(stem, '/') {
		stem = stem[:idx]
	}
	return stem + ext
}
