package testsupport

import (
	"path/filepath"
	"testing"

	"sprout/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.AudioDir = filepath.Join(base, "audio")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.API.Bind = "127.0.0.1:0"
	cfg.Transcription.APIKey = "test"
	cfg.Transcription.TextModel = "test-text"
	cfg.Transcription.SpeakerModel = "test-speaker"
	cfg.LLM.APIKey = "test"
	cfg.LLM.Model = "test-model"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithSinglePass clears the speaker model so transcription runs one pass.
func WithSinglePass() ConfigOption {
	return func(cfg *config.Config) {
		cfg.Transcription.SpeakerModel = ""
	}
}

// WithRetryDelays overrides the supervisor backoff table.
func WithRetryDelays(seconds ...int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Pipeline.RetryDelaySeconds = seconds
		cfg.Pipeline.MaxAttempts = len(seconds)
	}
}
