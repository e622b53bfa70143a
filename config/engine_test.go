package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/stategraph/config"
)

func TestEngineConfig_DefaultEngineConfig(t *testing.T) {
	cfg := config.DefaultEngineConfig("report")

	assert.Equal(t, "report", cfg.Name)
	assert.Equal(t, "slog", cfg.Observer)
	assert.Equal(t, 25, cfg.StepLimit)
	assert.Zero(t, cfg.Timeout)
	assert.Zero(t, cfg.MaxConcurrency)
	assert.Equal(t, "memory", cfg.Checkpoint.Store)
	assert.Zero(t, cfg.Checkpoint.Interval)
	assert.False(t, cfg.Checkpoint.Preserve)
}

func TestEngineConfig_Merge(t *testing.T) {
	tests := []struct {
		name   string
		source config.EngineConfig
		check  func(t *testing.T, cfg config.EngineConfig)
	}{
		{
			name:   "empty source keeps defaults",
			source: config.EngineConfig{},
			check: func(t *testing.T, cfg config.EngineConfig) {
				assert.Equal(t, config.DefaultEngineConfig("base"), cfg)
			},
		},
		{
			name:   "positive values win",
			source: config.EngineConfig{StepLimit: 10, Timeout: time.Minute, MaxConcurrency: 3},
			check: func(t *testing.T, cfg config.EngineConfig) {
				assert.Equal(t, 10, cfg.StepLimit)
				assert.Equal(t, time.Minute, cfg.Timeout)
				assert.Equal(t, 3, cfg.MaxConcurrency)
				assert.Equal(t, "slog", cfg.Observer)
			},
		},
		{
			name:   "zero step limit does not override",
			source: config.EngineConfig{StepLimit: 0, Observer: "noop"},
			check: func(t *testing.T, cfg config.EngineConfig) {
				assert.Equal(t, 25, cfg.StepLimit)
				assert.Equal(t, "noop", cfg.Observer)
			},
		},
		{
			name: "nested checkpoint merges",
			source: config.EngineConfig{
				Checkpoint: config.CheckpointConfig{Interval: 2, Preserve: true},
			},
			check: func(t *testing.T, cfg config.EngineConfig) {
				assert.Equal(t, "memory", cfg.Checkpoint.Store)
				assert.Equal(t, 2, cfg.Checkpoint.Interval)
				assert.True(t, cfg.Checkpoint.Preserve)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultEngineConfig("base")
			cfg.Merge(&tt.source)
			tt.check(t, cfg)
		})
	}
}

func TestEngineConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.EngineConfig)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*config.EngineConfig) {}},
		{name: "zero step limit", mutate: func(c *config.EngineConfig) { c.StepLimit = 0 }, wantErr: true},
		{name: "negative timeout", mutate: func(c *config.EngineConfig) { c.Timeout = -time.Second }, wantErr: true},
		{name: "negative concurrency", mutate: func(c *config.EngineConfig) { c.MaxConcurrency = -1 }, wantErr: true},
		{
			name: "interval without store",
			mutate: func(c *config.EngineConfig) {
				c.Checkpoint.Interval = 1
				c.Checkpoint.Store = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultEngineConfig("v")
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEngineConfig_JSONUnmarshalFromString(t *testing.T) {
	var cfg config.EngineConfig
	err := json.Unmarshal([]byte(`{"name":"srag","observer":"noop","step_limit":40,"max_concurrency":2,"checkpoint":{"store":"memory","interval":1}}`), &cfg)
	require.NoError(t, err)

	assert.Equal(t, "srag", cfg.Name)
	assert.Equal(t, "noop", cfg.Observer)
	assert.Equal(t, 40, cfg.StepLimit)
	assert.Equal(t, 2, cfg.MaxConcurrency)
	assert.Equal(t, 1, cfg.Checkpoint.Interval)
}

func TestLoadFile(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		wantErr  bool
		wantStep int
		wantTime time.Duration
	}{
		{
			name:     "yaml with duration",
			file:     "engine.yaml",
			content:  "name: report\nstep_limit: 12\ntimeout: 30s\ncheckpoint:\n  interval: 2\n",
			wantStep: 12,
			wantTime: 30 * time.Second,
		},
		{
			name:     "json document",
			file:     "engine.json",
			content:  `{"name": "report", "step_limit": 8, "timeout": "1m"}`,
			wantStep: 8,
			wantTime: time.Minute,
		},
		{
			name:    "malformed",
			file:    "bad.yaml",
			content: "step_limit: [unclosed",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			cfg, err := config.LoadFile(path)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "report", cfg.Name)
			assert.Equal(t, tt.wantStep, cfg.StepLimit)
			assert.Equal(t, tt.wantTime, cfg.Timeout)
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := config.LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("STATEGRAPH_STEP_LIMIT", "7")
	t.Setenv("STATEGRAPH_TIMEOUT", "45s")
	t.Setenv("STATEGRAPH_OBSERVER", "noop")
	t.Setenv("STATEGRAPH_CHECKPOINT_INTERVAL", "3")
	t.Setenv("STATEGRAPH_CHECKPOINT_PRESERVE", "true")

	cfg, err := config.FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.StepLimit)
	assert.Equal(t, 45*time.Second, cfg.Timeout)
	assert.Equal(t, "noop", cfg.Observer)
	assert.Equal(t, 3, cfg.Checkpoint.Interval)
	assert.True(t, cfg.Checkpoint.Preserve)
	assert.Empty(t, cfg.Name)
}

func TestFromEnv_Invalid(t *testing.T) {
	t.Setenv("STATEGRAPH_STEP_LIMIT", "many")

	_, err := config.FromEnv()
	assert.Error(t, err)
}

func TestLoad_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("observer: noop\nstep_limit: 12\n"), 0o600))
	t.Setenv("STATEGRAPH_STEP_LIMIT", "30")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "stategraph", cfg.Name)
	assert.Equal(t, "noop", cfg.Observer)
	assert.Equal(t, 30, cfg.StepLimit)
}
