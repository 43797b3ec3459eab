package pipeline

import (
	"context"
	"errors"
	"time"

	"sprout/internal/logging"
	"sprout/internal/stage"
)

// Start launches the background workers that claim pending sessions.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("pipeline already running")
	}
	if len(s.core) == 0 {
		s.mu.Unlock()
		return errors.New("pipeline stages not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	workers := s.cfg.Pipeline.MaxConcurrent
	if workers <= 0 {
		workers = 1
	}
	s.wg.Add(workers)
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		go s.runWorker(runCtx)
	}
	s.logger.Info("pipeline started", logging.Int("workers", workers))
	return nil
}

// Stop terminates background processing and waits for in-flight sessions.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("pipeline stopped")
}

func (s *Supervisor) runWorker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		session, err := s.store.ClaimNextPending(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error("failed to claim pending session", logging.Error(err))
			s.waitOrShutdown(ctx, s.errorRetryInterval())
			continue
		}
		if session == nil {
			s.waitOrShutdown(ctx, s.pollInterval())
			continue
		}

		if err := s.process(ctx, session); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
		}
	}
}

func (s *Supervisor) waitOrShutdown(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (s *Supervisor) pollInterval() time.Duration {
	if s.cfg.Pipeline.PollInterval > 0 {
		return time.Duration(s.cfg.Pipeline.PollInterval) * time.Second
	}
	return 2 * time.Second
}

func (s *Supervisor) errorRetryInterval() time.Duration {
	if s.cfg.Pipeline.ErrorRetryInterval > 0 {
		return time.Duration(s.cfg.Pipeline.ErrorRetryInterval) * time.Second
	}
	return 5 * time.Second
}

// HealthChecks runs every configured stage health probe and returns the
// results keyed by stage name.
func (s *Supervisor) HealthChecks(ctx context.Context) map[string]stage.Health {
	results := make(map[string]stage.Health, len(s.core)+len(s.enrichers))
	for _, step := range append(append([]Stage(nil), s.core...), s.enrichers...) {
		if step.Handler == nil {
			continue
		}
		results[step.Name] = step.Handler.HealthCheck(ctx)
	}
	return results
}
