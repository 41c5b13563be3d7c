package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 100, cfg.Server.MaxRecords)
	assert.Equal(t, int64(100*1024), cfg.Server.MaxBodyBytes)
	assert.Equal(t, "intfloat/e5-base", cfg.Embeddings.Model)
	assert.Equal(t, 3, cfg.Grouping.MaxNeighbors)
	assert.Equal(t, 200, cfg.Grouping.CompareBatchSize)
	assert.Equal(t, 5, cfg.Oracle.MaxRetries)
	assert.Equal(t, time.Second, cfg.Oracle.InitialDelay())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, NewConfig().Grouping, cfg.Grouping)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dedupit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
grouping:
  max_neighbors: 5
oracle:
  initial_delay: 0.25
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Grouping.MaxNeighbors)
	assert.Equal(t, 250*time.Millisecond, cfg.Oracle.InitialDelay())
	// Untouched values keep defaults
	assert.Equal(t, 200, cfg.Grouping.CompareBatchSize)
}

func TestLoad_PortEnvWins(t *testing.T) {
	t.Setenv("PORT", "3000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestValidate_RejectsNonsense(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"negative max records", func(c *Config) { c.Server.MaxRecords = -1 }},
		{"zero max neighbors", func(c *Config) { c.Grouping.MaxNeighbors = 0 }},
		{"zero compare batch", func(c *Config) { c.Grouping.CompareBatchSize = 0 }},
		{"empty oracle model", func(c *Config) { c.Oracle.Model = "" }},
		{"negative initial delay", func(c *Config) { c.Merger.InitialDelaySeconds = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
