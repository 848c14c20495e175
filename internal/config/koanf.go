// plexodb - PLEXOS solution bundle to DuckDB assembler
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// DefaultConfigPaths lists the paths searched for an optional config file,
// in priority order. The first one found is used.
var DefaultConfigPaths = []string{
	"plexodb.toml",
	"/etc/plexodb/plexodb.toml",
}

// ConfigPathEnvVar overrides the config file search with an explicit path.
const ConfigPathEnvVar = "PLEXODB_CONFIG"

// tomlParser adapts BurntSushi/toml to koanf's Parser interface, so the
// file layer below reads TOML instead of koanf's own bundled parsers.
type tomlParser struct{}

func (tomlParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if err := toml.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("parse toml: %w", err)
	}
	return out, nil
}

func (tomlParser) Marshal(m map[string]interface{}) ([]byte, error) {
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(m); err != nil {
		return nil, fmt.Errorf("encode toml: %w", err)
	}
	return []byte(sb.String()), nil
}

// envTransformFunc maps PLEXODB_-prefixed environment variables onto koanf
// config paths, e.g. PLEXODB_N_THREADS -> n_threads. Unprefixed or
// unrecognized variables are skipped.
func envTransformFunc(key string) string {
	const prefix = "PLEXODB_"
	if !strings.HasPrefix(key, prefix) {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(key, prefix))
}

// Load builds a Config from defaults, an optional config file, environment
// variables, and finally CLI flags (highest precedence). flags may be nil;
// when present, posflag applies an unchanged flag only for a key no earlier
// layer has set. The defaults layer sets every Config field, so in practice
// only flags the user actually passed (Changed == true) are applied and an
// unset --n-threads=0 flag can't clobber a file or env value.
func Load(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), tomlParser{}); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, fmt.Errorf("load CLI flags: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
