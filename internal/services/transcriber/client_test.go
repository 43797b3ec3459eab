package transcriber

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"sprout/internal/config"
)

func writeAudioFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.wav")
	if err := os.WriteFile(path, []byte("RIFF fake audio"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestTranscribeParsesSegments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Fatalf("model = %q, want whisper-1", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"duration": 12.5, "segments": [
			{"speaker": "SPEAKER_00", "start": 0.0, "end": 4.2, "text": " good job "},
			{"speaker": "SPEAKER_01", "start": 4.5, "end": 12.5, "text": "thanks"}
		]}`))
	}))
	defer server.Close()

	client := NewClient(config.Transcription{
		BaseURL: server.URL,
		APIKey:  "test-key",
	})
	result, err := client.Transcribe(context.Background(), writeAudioFixture(t), Options{Model: "whisper-1", Diarize: true})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(result.Spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(result.Spans))
	}
	if result.Spans[0].Text != "good job" {
		t.Fatalf("text = %q, want trimmed", result.Spans[0].Text)
	}
	if result.Spans[1].Speaker != "SPEAKER_01" {
		t.Fatalf("speaker = %q", result.Spans[1].Speaker)
	}
	if result.Duration != 12.5 {
		t.Fatalf("duration = %v", result.Duration)
	}
}

func TestTranscribeRejectsEmptySegments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"duration": 0, "segments": []}`))
	}))
	defer server.Close()

	client := NewClient(config.Transcription{BaseURL: server.URL, APIKey: "k"})
	if _, err := client.Transcribe(context.Background(), writeAudioFixture(t), Options{Model: "whisper-1"}); err == nil {
		t.Fatal("expected error for empty segments")
	}
}

func TestTranscribeRejectsInvertedTimestamps(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"segments": [{"speaker": "A", "start": 5.0, "end": 1.0, "text": "x"}]}`))
	}))
	defer server.Close()

	client := NewClient(config.Transcription{BaseURL: server.URL, APIKey: "k"})
	if _, err := client.Transcribe(context.Background(), writeAudioFixture(t), Options{Model: "whisper-1"}); err == nil {
		t.Fatal("expected error for inverted timestamps")
	}
}

func TestTranscribeRejectsMissingSpeakerWhenDiarized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"segments": [{"start": 0.0, "end": 1.0, "text": "hi"}]}`))
	}))
	defer server.Close()

	client := NewClient(config.Transcription{BaseURL: server.URL, APIKey: "k"})
	if _, err := client.Transcribe(context.Background(), writeAudioFixture(t), Options{Model: "whisper-diarize", Diarize: true}); err == nil {
		t.Fatal("expected error for missing speaker label")
	}
}

func TestTranscribeHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(config.Transcription{BaseURL: server.URL, APIKey: "k"})
	if _, err := client.Transcribe(context.Background(), writeAudioFixture(t), Options{Model: "whisper-1"}); err == nil {
		t.Fatal("expected error for 503")
	}
}

func TestTranscribeDurationFallsBackToLastSegment(t *testing.T) {
	result, err := parseWire(wireResponse{
		Segments: []wireSegment{{Start: 0, End: 7.25, Text: "hello"}},
	}, Options{})
	if err != nil {
		t.Fatalf("parseWire: %v", err)
	}
	if result.Duration != 7.25 {
		t.Fatalf("duration = %v, want 7.25", result.Duration)
	}
}
