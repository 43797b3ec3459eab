package notifications

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sprout/internal/config"
	"sprout/internal/testsupport"
)

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newCaptureServer(t *testing.T, sink *[]captured) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read notification body: %v", err)
		}
		*sink = append(*sink, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server
}

func newNtfyConfig(t *testing.T, endpoint string) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = endpoint
	cfg.Notifications.Completion = true
	cfg.Notifications.Failures = true
	return cfg
}

func TestNewServiceWithoutTopicReturnsNoop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = "   "

	service := NewService(cfg)
	if _, ok := service.(noopService); !ok {
		t.Fatalf("expected noop service, got %T", service)
	}
	if err := service.NotifySessionFailed(context.Background(), FailureEvent{SessionID: "abc"}); err != nil {
		t.Fatalf("noop failure notify: %v", err)
	}
}

func TestNotifySessionFailedCarriesEventFields(t *testing.T) {
	var sink []captured
	server := newCaptureServer(t, &sink)

	service := NewService(newNtfyConfig(t, server.URL))
	event := FailureEvent{
		SessionID:  "sess-1",
		UserRef:    "family-9",
		Error:      "transcription: upstream timeout",
		RetryCount: 2,
		AudioRef:   "/audio/sess-1.wav",
	}
	if err := service.NotifySessionFailed(context.Background(), event); err != nil {
		t.Fatalf("notify failed: %v", err)
	}

	if len(sink) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(sink))
	}
	got := sink[0]
	if got.priority != "high" {
		t.Errorf("expected high priority, got %q", got.priority)
	}
	for _, want := range []string{"sess-1", "family-9", "Retries: 2", "/audio/sess-1.wav", "upstream timeout"} {
		if !strings.Contains(got.body, want) {
			t.Errorf("notification body missing %q: %s", want, got.body)
		}
	}
}

func TestNotifySessionCompletedIncludesScore(t *testing.T) {
	var sink []captured
	server := newCaptureServer(t, &sink)

	service := NewService(newNtfyConfig(t, server.URL))
	score := 74
	if err := service.NotifySessionCompleted(context.Background(), "sess-2", &score); err != nil {
		t.Fatalf("notify completed: %v", err)
	}

	if len(sink) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(sink))
	}
	if !strings.Contains(sink[0].body, "74/100") {
		t.Errorf("expected score in body: %s", sink[0].body)
	}
}

func TestCompletionToggleSuppressesNotice(t *testing.T) {
	var sink []captured
	server := newCaptureServer(t, &sink)

	cfg := newNtfyConfig(t, server.URL)
	cfg.Notifications.Completion = false
	service := NewService(cfg)

	if err := service.NotifySessionCompleted(context.Background(), "sess-3", nil); err != nil {
		t.Fatalf("notify completed: %v", err)
	}
	if len(sink) != 0 {
		t.Fatalf("expected no notifications, got %d", len(sink))
	}
}

func TestSendReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "topic rejected", http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	service := NewService(newNtfyConfig(t, server.URL))
	err := service.TestNotification(context.Background())
	if err == nil {
		t.Fatal("expected error from rejected notification")
	}
	if !strings.Contains(err.Error(), "403") {
		t.Errorf("expected status code in error, got %v", err)
	}
}
