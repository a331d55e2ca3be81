package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries the engine knobs. Values come from an optional yaml
// file, then environment overrides, then defaults.
type Config struct {
	Engine EngineConfig `yaml:"engine"`
	Cache  CacheConfig  `yaml:"cache"`
	Log    LogConfig    `yaml:"log"`
}

type EngineConfig struct {
	Workers          int           `yaml:"workers"`           // worker pool size, 0 = NumCPU
	PartitionSize    int           `yaml:"partition_size"`    // default features per partition
	ChunkThreshold   int           `yaml:"chunk_threshold"`   // min features before chunking kicks in
	ProgressInterval time.Duration `yaml:"progress_interval"` // min delay between progress updates
	JobRetention     time.Duration `yaml:"job_retention"`     // how long finished async jobs stay pollable
}

type CacheConfig struct {
	Capacity          int           `yaml:"capacity"`           // max entries before LRU eviction
	DefaultTTL        time.Duration `yaml:"default_ttl"`        // applied when a request sets none
	FailureTTL        time.Duration `yaml:"failure_ttl"`        // retention for failed entries
	CompressThreshold int           `yaml:"compress_threshold"` // payload bytes before zstd kicks in
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Workers:          runtime.NumCPU(),
			PartitionSize:    500,
			ChunkThreshold:   1000,
			ProgressInterval: 200 * time.Millisecond,
			JobRetention:     time.Hour,
		},
		Cache: CacheConfig{
			Capacity:          1024,
			DefaultTTL:        15 * time.Minute,
			FailureTTL:        30 * time.Second,
			CompressThreshold: 32 * 1024,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads a yaml config file over the defaults. An empty path
// returns the defaults untouched.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path) // #nosec G304 - operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
