package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"sprout/internal/config"
	"sprout/internal/logging"
	"sprout/internal/merge"
	"sprout/internal/services"
	"sprout/internal/services/transcriber"
	"sprout/internal/stage"
	"sprout/internal/store"
	"sprout/internal/timeline"
)

// Client is the slice of the transcriber surface this stage needs.
type Client interface {
	Transcribe(ctx context.Context, audioRef string, opts transcriber.Options) (transcriber.Result, error)
}

// Transcriber runs the transcription passes for a session, reconciles them,
// and persists the reconciled timeline.
type Transcriber struct {
	store  *store.Store
	cfg    *config.Config
	logger *slog.Logger
	client Client
}

// New constructs the transcription stage handler using default dependencies.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger) *Transcriber {
	return NewWithClient(cfg, st, logger, transcriber.NewClient(cfg.Transcription))
}

// NewWithClient allows injecting the transcription client (used in tests).
func NewWithClient(cfg *config.Config, st *store.Store, logger *slog.Logger, client Client) *Transcriber {
	return &Transcriber{
		store:  st,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "transcription"),
		client: client,
	}
}

func (t *Transcriber) Prepare(ctx context.Context, session *store.Session) error {
	logger := logging.WithContext(ctx, t.logger)
	if strings.TrimSpace(session.AudioRef) == "" {
		return services.Wrap(
			services.ErrValidation,
			"transcription",
			"validate inputs",
			"Session has no audio reference; the upload was never completed",
			nil,
		)
	}
	if _, err := os.Stat(session.AudioRef); err != nil {
		return services.Wrap(
			services.ErrValidation,
			"transcription",
			"validate inputs",
			fmt.Sprintf("Audio file %s is not readable", session.AudioRef),
			err,
		)
	}
	logger.Info("starting transcription", logging.String("audio_ref", session.AudioRef))
	return nil
}

func (t *Transcriber) Execute(ctx context.Context, session *store.Session) error {
	logger := logging.WithContext(ctx, t.logger)

	var (
		textPass    transcriber.Result
		speakerPass transcriber.Result
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		result, err := t.client.Transcribe(groupCtx, session.AudioRef, transcriber.Options{
			Model: t.cfg.Transcription.TextModel,
		})
		if err != nil {
			return services.Wrap(services.ErrExternalService, "transcription", "text pass",
				"Text transcription pass failed", err)
		}
		textPass = result
		return nil
	})
	if !t.cfg.SinglePass() {
		group.Go(func() error {
			result, err := t.client.Transcribe(groupCtx, session.AudioRef, transcriber.Options{
				Model:   t.cfg.Transcription.SpeakerModel,
				Diarize: true,
			})
			if err != nil {
				return services.Wrap(services.ErrExternalService, "transcription", "speaker pass",
					"Speaker transcription pass failed", err)
			}
			speakerPass = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	var merged merge.Result
	if t.cfg.SinglePass() {
		merged = merge.Single(textPass.Spans)
	} else {
		merged = merge.Merge(textPass.Spans, speakerPass.Spans)
		if merged.Divergence.Flagged {
			logger.Warn("transcription passes diverge",
				logging.Int("pass_a_speakers", merged.Divergence.PassASpeakers),
				logging.Int("pass_b_speakers", merged.Divergence.PassBSpeakers),
				logging.Float64("reassign_rate", merged.Divergence.ReassignRate),
			)
		}
	}

	entries := timeline.Build(merged.Utterances)
	rows := make([]store.Utterance, 0, len(entries))
	for _, entry := range entries {
		row := store.Utterance{
			SessionID:    session.ID,
			Seq:          entry.Seq,
			Speaker:      entry.Speaker,
			StartSeconds: entry.Start,
			EndSeconds:   entry.End,
			Text:         entry.Text,
			IsSilence:    entry.Silence,
			Feedback:     entry.Feedback,
		}
		if entry.Silence {
			row.Role = store.RoleSilence
		}
		rows = append(rows, row)
	}
	if err := t.store.ReplaceUtterances(ctx, session.ID, rows); err != nil {
		return services.Wrap(services.ErrTransient, "transcription", "persist timeline",
			"Failed to persist reconciled timeline", err)
	}

	session.Transcript = renderTranscript(entries)
	session.DurationSeconds = textPass.Duration
	if !t.cfg.SinglePass() {
		divergenceJSON, err := json.Marshal(merged.Divergence)
		if err != nil {
			return services.Wrap(services.ErrTransient, "transcription", "encode divergence",
				"Failed to encode divergence report", err)
		}
		session.DivergenceJSON = string(divergenceJSON)
	}

	logger.Info("transcription complete",
		logging.Int("utterances", len(rows)),
		logging.Float64("duration_seconds", session.DurationSeconds),
	)
	return nil
}

func (t *Transcriber) HealthCheck(ctx context.Context) stage.Health {
	if strings.TrimSpace(t.cfg.Transcription.BaseURL) == "" {
		return stage.Unhealthy("transcription", "transcription base URL not configured")
	}
	if strings.TrimSpace(t.cfg.Transcription.APIKey) == "" {
		return stage.Unhealthy("transcription", "transcription API key not configured")
	}
	return stage.Healthy("transcription")
}

func renderTranscript(entries []timeline.Entry) string {
	var b strings.Builder
	for _, entry := range entries {
		if entry.Silence {
			fmt.Fprintf(&b, "[silence %.1fs]\n", entry.End-entry.Start)
			continue
		}
		label := entry.Speaker
		if label == "" {
			label = "UNKNOWN"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, entry.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}
