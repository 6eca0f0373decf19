package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.IterationCap)
	assert.Equal(t, 10, cfg.HistoryWindow)
	assert.Equal(t, 0.6, cfg.ConfidenceThreshold)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().IterationCap, cfg.IterationCap)
	assert.Equal(t, Default().RequestDeadline, cfg.RequestDeadline)
	assert.Equal(t, 24*time.Hour, cfg.Redis.TTL)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slotflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
iteration_cap: 8
confidence_threshold: 0.7
redis:
  addr: localhost:6379
logging:
  level: debug
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.IterationCap)
	assert.Equal(t, 0.7, cfg.ConfidenceThreshold)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Unset keys keep their defaults.
	assert.Equal(t, 10, cfg.HistoryWindow)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SLOTFLOW_ITERATION_CAP", "3")
	t.Setenv("SLOTFLOW_REDIS_ADDR", "redis:6379")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.IterationCap)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero iteration cap", func(c *Config) { c.IterationCap = 0 }},
		{"zero history window", func(c *Config) { c.HistoryWindow = 0 }},
		{"confidence out of range", func(c *Config) { c.ConfidenceThreshold = 1.5 }},
		{"negative deviation threshold", func(c *Config) { c.DeviationThreshold = -0.1 }},
		{"zero tool timeout", func(c *Config) { c.ToolTimeout = 0 }},
		{"zero request deadline", func(c *Config) { c.RequestDeadline = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
