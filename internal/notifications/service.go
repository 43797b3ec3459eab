package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sprout/internal/config"
)

const userAgent = "Sprout-Go/0.1.0"

// FailureEvent is the structured payload emitted exactly once when a session
// exhausts its retry budget.
type FailureEvent struct {
	SessionID  string
	UserRef    string
	Error      string
	RetryCount int
	AudioRef   string
}

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifySessionCompleted(ctx context.Context, sessionID string, score *int) error
	NotifySessionFailed(ctx context.Context, event FailureEvent) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint:   topic,
		client:     client,
		completion: cfg.Notifications.Completion,
		failures:   cfg.Notifications.Failures,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	completion bool
	failures   bool
}

func (n *ntfyService) NotifySessionCompleted(ctx context.Context, sessionID string, score *int) error {
	if !n.completion {
		return nil
	}
	message := fmt.Sprintf("Session analyzed: %s", strings.TrimSpace(sessionID))
	if score != nil {
		message = fmt.Sprintf("%s\nInteraction score: %d/100", message, *score)
	}
	data := payload{
		title:   "Sprout - Session Complete",
		message: message,
		tags:    []string{"sprout", "session", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySessionFailed(ctx context.Context, event FailureEvent) error {
	if !n.failures {
		return nil
	}
	var builder strings.Builder
	fmt.Fprintf(&builder, "Session failed permanently: %s\n", strings.TrimSpace(event.SessionID))
	fmt.Fprintf(&builder, "User: %s\n", strings.TrimSpace(event.UserRef))
	fmt.Fprintf(&builder, "Retries: %d\n", event.RetryCount)
	if event.AudioRef != "" {
		fmt.Fprintf(&builder, "Audio: %s\n", event.AudioRef)
	}
	fmt.Fprintf(&builder, "Error: %s", strings.TrimSpace(event.Error))

	data := payload{
		title:    "Sprout - Session Failed",
		message:  builder.String(),
		tags:     []string{"sprout", "session", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Sprout - Test",
		message:  "Notification system test",
		tags:     []string{"sprout", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifySessionCompleted(context.Context, string, *int) error { return nil }
func (noopService) NotifySessionFailed(context.Context, FailureEvent) error    { return nil }
func (noopService) TestNotification(context.Context) error                     { return nil }
