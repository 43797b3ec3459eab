package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sprout/internal/coding"
	"sprout/internal/config"
	"sprout/internal/logging"
	"sprout/internal/milestones"
	"sprout/internal/notifications"
	"sprout/internal/profiling"
	"sprout/internal/roles"
	"sprout/internal/services"
	"sprout/internal/stage"
	"sprout/internal/store"
	"sprout/internal/transcription"
)

// Stage pairs a handler with the name used in logs and error messages.
type Stage struct {
	Name    string
	Handler stage.Handler
}

// Dependencies allows tests to substitute stage handlers and timing.
type Dependencies struct {
	Core      []Stage
	Enrichers []Stage
	Sleep     func(ctx context.Context, d time.Duration) error
}

// Supervisor owns session status transitions. It claims pending sessions,
// drives the analysis stages with bounded retries, and emits the
// permanent-failure notification when the retry budget is exhausted.
type Supervisor struct {
	store    *store.Store
	cfg      *config.Config
	logger   *slog.Logger
	notifier notifications.Service

	core      []Stage
	enrichers []Stage
	sleep     func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a supervisor with the default stage handlers.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, notifier notifications.Service) *Supervisor {
	return NewWithDependencies(cfg, st, logger, notifier, Dependencies{
		Core: []Stage{
			{Name: "transcription", Handler: transcription.New(cfg, st, logger)},
			{Name: "roles", Handler: roles.New(cfg, st, logger)},
			{Name: "coding", Handler: coding.New(cfg, st, logger)},
		},
		Enrichers: []Stage{
			{Name: "profiling", Handler: profiling.New(cfg, st, logger)},
			{Name: "milestones", Handler: milestones.New(cfg, st, logger)},
		},
	})
}

// NewWithDependencies allows injecting stage handlers and the retry sleeper
// (used in tests).
func NewWithDependencies(cfg *config.Config, st *store.Store, logger *slog.Logger, notifier notifications.Service, deps Dependencies) *Supervisor {
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	sleep := deps.Sleep
	if sleep == nil {
		sleep = sleepFor
	}
	return &Supervisor{
		store:     st,
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "pipeline"),
		notifier:  notifier,
		core:      deps.Core,
		enrichers: deps.Enrichers,
		sleep:     sleep,
	}
}

// errAbandoned signals that the session row vanished mid-flight; processing
// stops without marking anything.
var errAbandoned = errors.New("session abandoned")

// Process claims a pending session and runs the full analysis for it. Only
// the supervisor moves sessions between statuses; a session another worker
// already claimed, or one that was deleted, is left alone.
func (s *Supervisor) Process(ctx context.Context, sessionID string) error {
	session, claimed, err := s.store.ClaimPending(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("claim session: %w", err)
	}
	if !claimed {
		return nil
	}
	return s.process(ctx, session)
}

func (s *Supervisor) process(ctx context.Context, session *store.Session) error {
	ctx = services.WithSessionID(ctx, session.ID)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, s.logger)
	maxAttempts := s.cfg.Pipeline.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	delays := s.cfg.RetryDelays()

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if delay := delayForAttempt(delays, attempt); delay > 0 {
			if err := s.sleep(ctx, delay); err != nil {
				return err
			}
		}
		if attempt > 0 {
			now := time.Now().UTC()
			session.RetryCount = attempt
			session.LastRetryAt = &now
			if err := s.persist(ctx, session); err != nil {
				if errors.Is(err, errAbandoned) {
					return nil
				}
				return err
			}
			logger.Info("retrying session analysis",
				logging.Int("attempt", attempt+1),
				logging.Int("max_attempts", maxAttempts),
			)
		}

		err := s.runCore(ctx, session)
		if err == nil {
			s.enrich(ctx, session)
			session.Status = store.StatusCompleted
			session.ErrorMessage = ""
			if perr := s.persist(ctx, session); perr != nil {
				if errors.Is(perr, errAbandoned) {
					return nil
				}
				return perr
			}
			logger.Info("session analysis completed",
				logging.Int("retries", session.RetryCount),
				logging.Float64("duration_seconds", session.DurationSeconds),
			)
			if nerr := s.notifier.NotifySessionCompleted(ctx, session.ID, session.OverallScore); nerr != nil {
				logger.Warn("completion notification failed", logging.Error(nerr))
			}
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if errors.Is(err, errAbandoned) || !services.Retryable(err) {
			logger.Debug("session vanished mid-analysis, abandoning")
			return nil
		}

		lastErr = err
		session.ErrorMessage = err.Error()
		if perr := s.persist(ctx, session); perr != nil {
			if errors.Is(perr, errAbandoned) {
				return nil
			}
			return perr
		}
		logger.Warn("analysis attempt failed",
			logging.Int("attempt", attempt+1),
			logging.Int("max_attempts", maxAttempts),
			logging.Error(err),
		)
	}

	session.Status = store.StatusFailed
	session.PermanentFailure = true
	if err := s.persist(ctx, session); err != nil {
		if errors.Is(err, errAbandoned) {
			return nil
		}
		return err
	}
	logger.Error("session analysis failed permanently",
		logging.Int("attempts", maxAttempts),
		logging.Error(lastErr),
	)
	event := notifications.FailureEvent{
		SessionID:  session.ID,
		UserRef:    session.UserRef,
		Error:      session.ErrorMessage,
		RetryCount: session.RetryCount,
		AudioRef:   session.AudioRef,
	}
	if err := s.notifier.NotifySessionFailed(ctx, event); err != nil {
		logger.Warn("failure notification failed", logging.Error(err))
	}
	return lastErr
}

func (s *Supervisor) runCore(ctx context.Context, session *store.Session) error {
	for _, step := range s.core {
		if step.Handler == nil {
			return fmt.Errorf("stage %s has no handler", step.Name)
		}
		stageCtx := services.WithStage(ctx, step.Name)
		stageLogger := logging.WithContext(stageCtx, s.logger)
		start := time.Now()
		if err := step.Handler.Prepare(stageCtx, session); err != nil {
			return fmt.Errorf("%s: %w", step.Name, err)
		}
		if err := step.Handler.Execute(stageCtx, session); err != nil {
			return fmt.Errorf("%s: %w", step.Name, err)
		}
		if err := s.persist(stageCtx, session); err != nil {
			return err
		}
		stageLogger.Info("stage completed", logging.Duration("stage_duration", time.Since(start)))
	}
	return nil
}

// enrich runs the non-fatal stages concurrently. Each stage works on its own
// copy of the session row so the goroutines never share mutable state; errors
// are logged and swallowed because enrichment must not fail the session.
func (s *Supervisor) enrich(ctx context.Context, session *store.Session) {
	group, groupCtx := errgroup.WithContext(ctx)
	copies := make([]*store.Session, len(s.enrichers))
	for i, enricher := range s.enrichers {
		if enricher.Handler == nil {
			continue
		}
		dup := *session
		copies[i] = &dup
		logger := s.logger.With(
			logging.String("session_id", session.ID),
			logging.String("stage", enricher.Name),
		)
		group.Go(func() error {
			if err := enricher.Handler.Prepare(groupCtx, &dup); err != nil {
				logger.Warn("enrichment skipped", logging.Error(err))
				return nil
			}
			if err := enricher.Handler.Execute(groupCtx, &dup); err != nil {
				logger.Warn("enrichment failed", logging.Error(err))
			}
			return nil
		})
	}
	_ = group.Wait()
	for _, dup := range copies {
		if dup != nil && dup.ChildID != 0 {
			session.ChildID = dup.ChildID
		}
	}
}

func (s *Supervisor) persist(ctx context.Context, session *store.Session) error {
	if err := s.store.UpdateSession(ctx, session); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errAbandoned
		}
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

func delayForAttempt(delays []int, attempt int) time.Duration {
	if len(delays) == 0 {
		return 0
	}
	if attempt >= len(delays) {
		attempt = len(delays) - 1
	}
	return time.Duration(delays[attempt]) * time.Second
}

func sleepFor(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
