package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"sprout/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if cfg.Pipeline.MaxAttempts != 3 {
		t.Fatalf("expected default max attempts 3, got %d", cfg.Pipeline.MaxAttempts)
	}
	if len(cfg.Pipeline.RetryDelaySeconds) != 3 {
		t.Fatalf("expected 3 retry delays, got %v", cfg.Pipeline.RetryDelaySeconds)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[transcription]
text_model = "whisper-large"
speaker_model = ""

[pipeline]
max_attempts = 2
retry_delay_seconds = [0, 1]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved == "" {
		t.Fatalf("expected config to resolve, got exists=%v path=%q", exists, resolved)
	}
	if cfg.Transcription.TextModel != "whisper-large" {
		t.Fatalf("override not applied: %q", cfg.Transcription.TextModel)
	}
	if !cfg.SinglePass() {
		t.Fatal("empty speaker_model should enable single-pass mode")
	}
	if cfg.Pipeline.MaxAttempts != 2 {
		t.Fatalf("expected max attempts 2, got %d", cfg.Pipeline.MaxAttempts)
	}
}

func TestValidateRejectsShortBackoffTable(t *testing.T) {
	cfg := config.Default()
	cfg.Pipeline.MaxAttempts = 5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when backoff table is shorter than max attempts")
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("sample config is empty")
	}
}
