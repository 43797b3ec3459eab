package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sprout/internal/config"
	"sprout/internal/merge"
)

const defaultTimeout = 5 * time.Minute

// Options selects the transcription pass behavior.
type Options struct {
	Model   string
	Diarize bool
}

// Result carries the spans of one transcription pass plus the audio duration
// reported by the provider.
type Result struct {
	Spans    []merge.Span
	Duration float64
}

// Client uploads audio to a whisper-style transcription endpoint and parses
// the segmented response into merge spans.
type Client struct {
	cfg        config.Transcription
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a transcription client from configuration.
func NewClient(cfg config.Transcription, opts ...Option) *Client {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type wireResponse struct {
	Duration float64       `json:"duration"`
	Segments []wireSegment `json:"segments"`
}

type wireSegment struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
}

// Transcribe uploads the referenced audio and returns the pass result. A
// contract-violating response (no segments, inverted timestamps) is an error;
// the caller classifies it as a retryable stage failure.
func (c *Client) Transcribe(ctx context.Context, audioRef string, opts Options) (Result, error) {
	if strings.TrimSpace(audioRef) == "" {
		return Result{}, errors.New("transcribe: audio reference required")
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		return Result{}, errors.New("transcribe: model required")
	}

	file, err := os.Open(audioRef)
	if err != nil {
		return Result{}, fmt.Errorf("transcribe: open audio: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", model); err != nil {
		return Result{}, fmt.Errorf("transcribe: encode request: %w", err)
	}
	if err := mw.WriteField("response_format", "verbose_json"); err != nil {
		return Result{}, fmt.Errorf("transcribe: encode request: %w", err)
	}
	if opts.Diarize {
		if err := mw.WriteField("timestamp_granularities[]", "word"); err != nil {
			return Result{}, fmt.Errorf("transcribe: encode request: %w", err)
		}
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(audioRef))
	if err != nil {
		return Result{}, fmt.Errorf("transcribe: encode request: %w", err)
	}
	if _, err := io.Copy(fw, file); err != nil {
		return Result{}, fmt.Errorf("transcribe: read audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Result{}, fmt.Errorf("transcribe: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, &body)
	if err != nil {
		return Result{}, fmt.Errorf("transcribe: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("transcribe: http error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Result{}, fmt.Errorf("transcribe: http %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return Result{}, fmt.Errorf("transcribe: decode response: %w", err)
	}
	return parseWire(wire, opts)
}

func parseWire(wire wireResponse, opts Options) (Result, error) {
	if len(wire.Segments) == 0 {
		return Result{}, errors.New("transcribe: response contains no segments")
	}
	spans := make([]merge.Span, 0, len(wire.Segments))
	for i, seg := range wire.Segments {
		if seg.End < seg.Start {
			return Result{}, fmt.Errorf("transcribe: segment %d has inverted timestamps (%v > %v)", i, seg.Start, seg.End)
		}
		if opts.Diarize && strings.TrimSpace(seg.Speaker) == "" {
			return Result{}, fmt.Errorf("transcribe: segment %d missing speaker label in diarized pass", i)
		}
		spans = append(spans, merge.Span{
			Speaker: strings.TrimSpace(seg.Speaker),
			Start:   seg.Start,
			End:     seg.End,
			Text:    strings.TrimSpace(seg.Text),
		})
	}
	duration := wire.Duration
	if duration <= 0 {
		duration = spans[len(spans)-1].End
	}
	return Result{Spans: spans, Duration: duration}, nil
}
