package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("empty path returns the defaults", func(t *testing.T) {
		cfg, err := Load("")

		require.NoError(t, err)
		assert.Equal(t, 500, cfg.Engine.PartitionSize)
		assert.Equal(t, 1024, cfg.Cache.Capacity)
		assert.Equal(t, 15*time.Minute, cfg.Cache.DefaultTTL)
		assert.Equal(t, "info", cfg.Log.Level)
	})

	t.Run("yaml file overrides defaults, untouched keys survive", func(t *testing.T) {
		// Arrange
		path := filepath.Join(t.TempDir(), "spatialkit.yaml")
		content := []byte("engine:\n  workers: 3\n  partition_size: 50\ncache:\n  default_ttl: 1m\n")
		require.NoError(t, os.WriteFile(path, content, 0o600))

		// Act
		cfg, err := Load(path)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.Engine.Workers)
		assert.Equal(t, 50, cfg.Engine.PartitionSize)
		assert.Equal(t, time.Minute, cfg.Cache.DefaultTTL)
		assert.Equal(t, 1000, cfg.Engine.ChunkThreshold, "defaults fill the gaps")
	})

	t.Run("missing file fails", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("engine: [not a map"), 0o600))
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestLoadFromEnv(t *testing.T) {
	t.Run("environment overrides file values", func(t *testing.T) {
		// Arrange
		t.Setenv("SPATIALKIT_WORKERS", "7")
		t.Setenv("SPATIALKIT_CACHE_TTL", "90s")
		t.Setenv("SPATIALKIT_LOG_LEVEL", "debug")
		cfg := Default()

		// Act
		LoadFromEnv(cfg)

		// Assert
		assert.Equal(t, 7, cfg.Engine.Workers)
		assert.Equal(t, 90*time.Second, cfg.Cache.DefaultTTL)
		assert.Equal(t, "debug", cfg.Log.Level)
	})

	t.Run("unparseable values are ignored", func(t *testing.T) {
		t.Setenv("SPATIALKIT_WORKERS", "many")
		cfg := Default()
		before := cfg.Engine.Workers

		LoadFromEnv(cfg)

		assert.Equal(t, before, cfg.Engine.Workers)
	})
}
