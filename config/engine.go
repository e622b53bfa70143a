package config

import (
	"fmt"
	"time"
)

// CheckpointConfig controls round-boundary checkpoints.
//
// Configuration fields:
//   - Store: Name of the CheckpointStore implementation (resolved via registry)
//   - Interval: Save a checkpoint every N rounds (0 = disabled)
//   - Preserve: Keep checkpoints after successful completion (false = auto-cleanup)
type CheckpointConfig struct {
	Store    string `json:"store" yaml:"store" env:"STORE"`
	Interval int    `json:"interval" yaml:"interval" env:"INTERVAL"`
	Preserve bool   `json:"preserve" yaml:"preserve" env:"PRESERVE"`
}

// DefaultCheckpointConfig returns checkpoint configuration with checkpointing disabled.
func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{
		Store:    "memory",
		Interval: 0,
		Preserve: false,
	}
}

func (c *CheckpointConfig) Merge(source *CheckpointConfig) {
	if source.Store != "" {
		c.Store = source.Store
	}

	if source.Interval > 0 {
		c.Interval = source.Interval
	}

	if source.Preserve {
		c.Preserve = source.Preserve
	}
}

// EngineConfig defines configuration for graph runs.
//
// Observer and Checkpoint.Store are names so the config stays plain data;
// the engine resolves them through the observability and checkpoint registries.
//
// Example YAML:
//
//	name: report
//	observer: slog
//	step_limit: 25
//	timeout: 2m
//	max_concurrency: 4
//	checkpoint:
//	  store: memory
//	  interval: 1
type EngineConfig struct {
	// Name identifies the engine in events
	Name string `json:"name" yaml:"name" env:"NAME"`

	// Observer names the registered observer receiving run events
	Observer string `json:"observer" yaml:"observer" env:"OBSERVER"`

	// StepLimit bounds the number of rounds in a run
	StepLimit int `json:"step_limit" yaml:"step_limit" env:"STEP_LIMIT"`

	// Timeout bounds the wall-clock duration of a run (0 = none)
	Timeout time.Duration `json:"timeout" yaml:"timeout" env:"TIMEOUT"`

	// MaxConcurrency caps the nodes executing at once within a round (0 = unbounded)
	MaxConcurrency int `json:"max_concurrency" yaml:"max_concurrency" env:"MAX_CONCURRENCY"`

	Checkpoint CheckpointConfig `json:"checkpoint" yaml:"checkpoint" envPrefix:"CHECKPOINT_"`
}

// DefaultEngineConfig returns defaults for graph runs.
//
// Default values:
//   - Observer: "slog"
//   - StepLimit: 25
//   - Timeout: none
//   - MaxConcurrency: unbounded
//   - Checkpoint: disabled
func DefaultEngineConfig(name string) EngineConfig {
	return EngineConfig{
		Name:       name,
		Observer:   "slog",
		StepLimit:  25,
		Checkpoint: DefaultCheckpointConfig(),
	}
}

func (c *EngineConfig) Merge(source *EngineConfig) {
	if source.Name != "" {
		c.Name = source.Name
	}

	if source.Observer != "" {
		c.Observer = source.Observer
	}

	if source.StepLimit > 0 {
		c.StepLimit = source.StepLimit
	}

	if source.Timeout > 0 {
		c.Timeout = source.Timeout
	}

	if source.MaxConcurrency > 0 {
		c.MaxConcurrency = source.MaxConcurrency
	}

	c.Checkpoint.Merge(&source.Checkpoint)
}

// Validate checks that a merged configuration can drive a run.
func (c *EngineConfig) Validate() error {
	if c.StepLimit < 1 {
		return fmt.Errorf("step limit must be at least 1, got %d", c.StepLimit)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative: %s", c.Timeout)
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max concurrency cannot be negative: %d", c.MaxConcurrency)
	}
	if c.Checkpoint.Interval < 0 {
		return fmt.Errorf("checkpoint interval cannot be negative: %d", c.Checkpoint.Interval)
	}
	if c.Checkpoint.Interval > 0 && c.Checkpoint.Store == "" {
		return fmt.Errorf("checkpoint store is required when interval is set")
	}
	return nil
}
