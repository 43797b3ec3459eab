package services_test

import (
	"errors"
	"strings"
	"testing"

	"sprout/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	cause := errors.New("boom")
	err := services.Wrap(services.ErrValidation, "coding", "decode tags", "tag outside taxonomy", cause)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation marker, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to survive")
	}
	for _, want := range []string{"coding", "decode tags", "tag outside taxonomy"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("detail %q missing from %q", want, err.Error())
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "roles", "classify", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("nil marker should default to transient, got %v", err)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not found", services.Wrap(services.ErrNotFound, "pipeline", "update", "session deleted", nil), false},
		{"external", services.Wrap(services.ErrExternalService, "transcription", "transcribe", "", errors.New("timeout")), true},
		{"validation", services.Wrap(services.ErrValidation, "coding", "decode", "", nil), true},
	}
	for _, tc := range cases {
		if got := services.Retryable(tc.err); got != tc.want {
			t.Fatalf("%s: Retryable=%v, want %v", tc.name, got, tc.want)
		}
	}
}
