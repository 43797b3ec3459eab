package milestones

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"sprout/internal/config"
	"sprout/internal/logging"
	"sprout/internal/services"
	"sprout/internal/services/llm"
	"sprout/internal/stage"
	"sprout/internal/store"
)

// Completer is the slice of the reasoning client this stage needs.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Engine progresses a child's milestone records from the evidence observed in
// one session. It runs best effort alongside profiling: errors are logged by
// the supervisor and never fail the session.
type Engine struct {
	store  *store.Store
	cfg    *config.Config
	logger *slog.Logger
	llm    Completer
}

// New constructs the milestone stage handler.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger) *Engine {
	return NewWithCompleter(cfg, st, logger, llm.NewClient(cfg.LLM))
}

// NewWithCompleter allows injecting the reasoning client (used in tests).
func NewWithCompleter(cfg *config.Config, st *store.Store, logger *slog.Logger, completer Completer) *Engine {
	return &Engine{
		store:  st,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "milestones"),
		llm:    completer,
	}
}

func (e *Engine) Prepare(ctx context.Context, session *store.Session) error {
	if strings.TrimSpace(session.Transcript) == "" {
		return services.Wrap(services.ErrValidation, "milestones", "validate inputs",
			"Session lacks a transcript; coding must run first", nil)
	}
	if session.ChildAgeMonths <= 0 {
		return services.Wrap(services.ErrValidation, "milestones", "validate inputs",
			"Session carries no child age", nil)
	}
	return nil
}

func (e *Engine) Execute(ctx context.Context, session *store.Session) error {
	logger := logging.WithContext(ctx, e.logger)

	library, err := e.store.LibraryMilestones(ctx)
	if err != nil {
		return services.Wrap(services.ErrTransient, "milestones", "load library",
			"Failed to load milestone library", err)
	}
	if len(library) == 0 {
		return services.Wrap(services.ErrConfiguration, "milestones", "load library",
			"Milestone library is not seeded", nil)
	}
	byKey := make(map[string]store.Milestone, len(library))
	for _, m := range library {
		byKey[m.Key] = m
	}

	child, err := e.store.EnsureChild(ctx, session.UserRef, session.ChildAgeMonths, session.ChildGender)
	if err != nil {
		return services.Wrap(services.ErrTransient, "milestones", "ensure child",
			"Failed to resolve child record", err)
	}
	session.ChildID = child.ID

	candidates := candidateMilestones(library, session.ChildAgeMonths)
	evidenced, err := e.classify(ctx, session, candidates)
	if err != nil {
		return err
	}

	// Baseline credit: the first milestone pass for a child grants outright
	// credit for milestones whose whole expected band lies below the child's
	// age. Exactly one session wins the claim even when two run concurrently.
	won, err := e.store.ClaimBaseline(ctx, child.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "milestones", "claim baseline",
			"Failed to claim baseline credit", err)
	}
	if won {
		granted := 0
		for _, m := range library {
			if m.MaxAgeMonths < session.ChildAgeMonths {
				if _, err := e.store.GrantAchieved(ctx, child.ID, m.Key); err != nil {
					return services.Wrap(services.ErrTransient, "milestones", "grant baseline",
						fmt.Sprintf("Failed to grant baseline credit for %s", m.Key), err)
				}
				granted++
			}
		}
		logger.Info("baseline credit granted", logging.Int("milestones", granted))
	}

	promotions := 0
	for _, key := range evidenced {
		m, ok := byKey[key]
		if !ok {
			logger.Warn("dropping unknown milestone key", logging.String("key", key))
			continue
		}
		_, promoted, err := e.store.RecordEvidence(ctx, child.ID, m.Key, m.Threshold)
		if err != nil {
			return services.Wrap(services.ErrTransient, "milestones", "record evidence",
				fmt.Sprintf("Failed to record evidence for %s", m.Key), err)
		}
		if promoted {
			promotions++
		}
	}

	logger.Info("milestone pass complete",
		logging.Int("evidenced", len(evidenced)),
		logging.Int("promotions", promotions),
	)
	return nil
}

func (e *Engine) HealthCheck(ctx context.Context) stage.Health {
	if strings.TrimSpace(e.cfg.LLM.APIKey) == "" {
		return stage.Unhealthy("milestones", "reasoning API key not configured")
	}
	return stage.Healthy("milestones")
}

func (e *Engine) classify(ctx context.Context, session *store.Session, candidates []store.Milestone) ([]string, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	content, err := e.llm.CompleteJSON(ctx, systemPrompt, userPrompt(session, candidates))
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "milestones", "classify evidence",
			"Milestone evidence call failed", err)
	}
	var reply struct {
		Evidenced []string `json:"evidenced"`
	}
	if err := llm.DecodeJSON(content, &reply); err != nil {
		return nil, services.Wrap(services.ErrExternalService, "milestones", "decode response",
			"Milestone evidence response is malformed", err)
	}
	out := make([]string, 0, len(reply.Evidenced))
	seen := make(map[string]struct{}, len(reply.Evidenced))
	for _, key := range reply.Evidenced {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out, nil
}

// candidateMilestones selects library entries worth asking about: everything
// whose expected band starts at or below the child's age. Milestones far
// ahead of the child are excluded to keep the call focused.
func candidateMilestones(library []store.Milestone, ageMonths int) []store.Milestone {
	var out []store.Milestone
	for _, m := range library {
		if m.MinAgeMonths <= ageMonths {
			out = append(out, m)
		}
	}
	return out
}

const systemPrompt = `You look for developmental milestone evidence in one parent-child session transcript.
For each candidate milestone, decide whether the child's speech or behavior in the transcript
demonstrates it. Only count direct evidence from the child.
Respond with JSON only: {"evidenced": ["<milestone key>", ...]}.
Use only the provided keys. An empty list is a valid answer.`

func userPrompt(session *store.Session, candidates []store.Milestone) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Child age: %d months.\n\nCandidate milestones:\n", session.ChildAgeMonths)
	for _, m := range candidates {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", m.Key, m.Title, m.Description)
	}
	fmt.Fprintf(&b, "\nTranscript:\n%s\n", session.Transcript)
	return b.String()
}
