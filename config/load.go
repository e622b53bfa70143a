package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by FromEnv.
const EnvPrefix = "STATEGRAPH_"

// LoadFile reads an EngineConfig from a YAML file. JSON files parse as well
// since JSON is a subset of YAML. Durations are written as Go duration strings
// ("30s", "2m"). Fields absent from the file stay zero so the result can be
// merged over defaults.
func LoadFile(path string) (EngineConfig, error) {
	var cfg EngineConfig

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// FromEnv reads STATEGRAPH_* environment variables (STATEGRAPH_STEP_LIMIT,
// STATEGRAPH_TIMEOUT, STATEGRAPH_CHECKPOINT_INTERVAL, ...). Unset variables
// leave their fields zero.
func FromEnv() (EngineConfig, error) {
	var cfg EngineConfig
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

// Load layers defaults, the optional file at path, and the environment, then
// validates the result.
func Load(path string) (EngineConfig, error) {
	cfg := DefaultEngineConfig("stategraph")

	if path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			return cfg, err
		}
		cfg.Merge(&fileCfg)
	}

	envCfg, err := FromEnv()
	if err != nil {
		return cfg, err
	}
	cfg.Merge(&envCfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
