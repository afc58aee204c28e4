package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "provtrace.toml")
	content := `
[capture]
output_dir = "captures"
snapshot_kb = 10
max_loops = 5
annotate_functions = true

[cache]
redis = "localhost:6379"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if cfg.Capture.OutputDir == nil || *cfg.Capture.OutputDir != "captures" {
		t.Errorf("output_dir = %v, want captures", cfg.Capture.OutputDir)
	}
	if cfg.Capture.SnapshotKB == nil || *cfg.Capture.SnapshotKB != 10 {
		t.Errorf("snapshot_kb = %v, want 10", cfg.Capture.SnapshotKB)
	}
	if cfg.Capture.MaxLoops == nil || *cfg.Capture.MaxLoops != 5 {
		t.Errorf("max_loops = %v, want 5", cfg.Capture.MaxLoops)
	}
	if cfg.Capture.AnnotateFunctions == nil || !*cfg.Capture.AnnotateFunctions {
		t.Errorf("annotate_functions = %v, want true", cfg.Capture.AnnotateFunctions)
	}
	if cfg.Cache.Redis == nil || *cfg.Cache.Redis != "localhost:6379" {
		t.Errorf("cache.redis = %v, want localhost:6379", cfg.Cache.Redis)
	}

	// Absent fields stay nil so flags keep their defaults.
	if cfg.Capture.FirstLoop != nil {
		t.Errorf("first_loop should be nil, got %v", *cfg.Capture.FirstLoop)
	}
	if cfg.Cache.Disabled != nil {
		t.Errorf("cache.disabled should be nil, got %v", *cfg.Cache.Disabled)
	}
}

func TestLoadConfigMissingDefault(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("missing default config should not error, got %v", err)
	}
	if cfg.Capture.OutputDir != nil {
		t.Error("missing config should produce empty defaults")
	}
}

func TestLoadConfigMissingExplicit(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("missing explicit config should error")
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[capture\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(path); err == nil {
		t.Error("invalid TOML should error")
	}
}
