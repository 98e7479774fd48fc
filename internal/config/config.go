// Package config provides configuration loading and structs for Awase.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Data    DataConfig    `yaml:"data"`
	Cache   CacheConfig   `yaml:"cache"`
	Align   AlignConfig   `yaml:"align"`
	Model   ModelConfig   `yaml:"model"`
	Train   TrainConfig   `yaml:"train"`
	Combine CombineConfig `yaml:"combine"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DataConfig describes the input directory layout: one file per base system,
// a designated source file, and (training only) a designated target file.
// Systems is the explicit manifest of base-system identifiers (file names in
// the data directory); when empty it is resolved once from the directory
// listing in lexical order, never in scan order.
type DataConfig struct {
	Dir        string   `yaml:"dir"`
	SourceName string   `yaml:"source_name"`
	TargetName string   `yaml:"target_name"`
	Systems    []string `yaml:"systems"`
}

// CacheConfig selects the edit-cache backend. Backend is "sidecar" (a
// directory of per-system .m2 files), "sqlite" (one content-addressed
// database), or "memory".
type CacheConfig struct {
	Backend      string `yaml:"backend"`
	Dir          string `yaml:"dir"`
	DatabasePath string `yaml:"database_path"`
}

// AlignConfig configures the aligner behind the port. Tool is "errant"
// (external errant_parallel) or "diff" (built-in token diff).
// FallbackSystem, when set, names the base system whose output is passed
// through for sentences whose alignment failed; empty means the source
// passes through unchanged.
type AlignConfig struct {
	Tool           string  `yaml:"tool"`
	Command        string  `yaml:"command"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RatePerSecond  float64 `yaml:"rate_per_second"`
	FallbackSystem string  `yaml:"fallback_system"`
}

// ModelConfig holds the persisted artifacts coupling training to inference.
type ModelConfig struct {
	VocabPath      string  `yaml:"vocab_path"`
	TypesPath      string  `yaml:"types_path"`
	CheckpointPath string  `yaml:"checkpoint_path"`
	Threshold      float64 `yaml:"threshold"`
}

// TrainConfig holds optimization hyperparameters. Upsample is a
// "<class0>:<class1>" ratio, e.g. "1:2"; empty disables upsampling.
type TrainConfig struct {
	LearningRate float64 `yaml:"learning_rate"`
	WeightDecay  float64 `yaml:"weight_decay"`
	Epochs       int     `yaml:"epochs"`
	BatchSize    int     `yaml:"batch_size"`
	Folds        int     `yaml:"folds"`
	Seed         int64   `yaml:"seed"`
	Upsample     string  `yaml:"upsample"`
}

// CombineConfig holds inference-run settings.
type CombineConfig struct {
	Workers    int    `yaml:"workers"`
	OutputPath string `yaml:"output_path"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Data.Dir = expandPath(cfg.Data.Dir, configDir)
	cfg.Cache.Dir = expandPath(cfg.Cache.Dir, configDir)
	cfg.Cache.DatabasePath = expandPath(cfg.Cache.DatabasePath, configDir)
	cfg.Model.VocabPath = expandPath(cfg.Model.VocabPath, configDir)
	cfg.Model.TypesPath = expandPath(cfg.Model.TypesPath, configDir)
	cfg.Model.CheckpointPath = expandPath(cfg.Model.CheckpointPath, configDir)
	cfg.Combine.OutputPath = expandPath(cfg.Combine.OutputPath, configDir)

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative
// to configDir; other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
