package config

import (
	"os"
	"strconv"
	"time"
)

// LoadFromEnv applies SPATIALKIT_* environment overrides on top of cfg.
func LoadFromEnv(cfg *Config) {
	if workers := os.Getenv("SPATIALKIT_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil {
			cfg.Engine.Workers = n
		}
	}

	if size := os.Getenv("SPATIALKIT_PARTITION_SIZE"); size != "" {
		if n, err := strconv.Atoi(size); err == nil {
			cfg.Engine.PartitionSize = n
		}
	}

	if logLevel := os.Getenv("SPATIALKIT_LOG_LEVEL"); logLevel != "" {
		cfg.Log.Level = logLevel
	}

	// Cache settings
	if capacity := os.Getenv("SPATIALKIT_CACHE_CAPACITY"); capacity != "" {
		if n, err := strconv.Atoi(capacity); err == nil {
			cfg.Cache.Capacity = n
		}
	}

	if ttl := os.Getenv("SPATIALKIT_CACHE_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil {
			cfg.Cache.DefaultTTL = d
		}
	}
}
