package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteAudio writes a placeholder audio file for upload and pipeline tests.
func WriteAudio(t testing.TB, path string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte("RIFF fake audio"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
