package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
data:
  dir: "./data"
  systems: ["sysB", "sysA"]
cache:
  backend: "sqlite"
model:
  threshold: 0.6
train:
  seed: 42
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true")
	}
	if cfg.Data.Dir != filepath.Join(dir, "data") {
		t.Errorf("./ paths should expand relative to the config dir, got %q", cfg.Data.Dir)
	}
	if len(cfg.Data.Systems) != 2 || cfg.Data.Systems[0] != "sysB" {
		t.Errorf("manifest not preserved: %v", cfg.Data.Systems)
	}
	if cfg.Cache.Backend != "sqlite" {
		t.Errorf("backend = %q", cfg.Cache.Backend)
	}
	if cfg.Model.Threshold != 0.6 {
		t.Errorf("threshold = %v", cfg.Model.Threshold)
	}
	if cfg.Train.Seed != 42 {
		t.Errorf("seed = %v", cfg.Train.Seed)
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)
	if cfg.Data.SourceName != "source.txt" || cfg.Data.TargetName != "target.txt" {
		t.Errorf("file name defaults missing: %+v", cfg.Data)
	}
	if cfg.Cache.Backend != "sidecar" {
		t.Errorf("cache backend default = %q", cfg.Cache.Backend)
	}
	if cfg.Model.Threshold != 0.5 {
		t.Errorf("threshold default = %v", cfg.Model.Threshold)
	}
	if cfg.Train.LearningRate != 0.1 || cfg.Train.Epochs != 100 || cfg.Train.BatchSize != 16 || cfg.Train.Folds != 5 {
		t.Errorf("train defaults missing: %+v", cfg.Train)
	}
	if cfg.Align.Tool != "errant" || cfg.Align.TimeoutSeconds != 300 {
		t.Errorf("align defaults missing: %+v", cfg.Align)
	}
	if cfg.Combine.Workers != 4 {
		t.Errorf("workers default = %d", cfg.Combine.Workers)
	}
}

func TestLoad_missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "none.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
