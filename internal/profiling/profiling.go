package profiling

import (
	"context"
	"encoding/json"
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

// Payload is the validated shape of one generated profile.
type Payload struct {
	Domains  map[string]Domain `json:"domains"`
	Coaching []CoachingItem    `json:"coaching"`
}

// Domain is one developmental domain assessment.
type Domain struct {
	CurrentLevel string   `json:"current_level"`
	AgeBenchmark string   `json:"age_benchmark"`
	Observations []string `json:"observations"`
}

// CoachingItem is one observed pattern with a suggested alternative.
type CoachingItem struct {
	Pattern     string `json:"pattern"`
	Alternative string `json:"alternative"`
	Example     string `json:"example"`
}

// Generator produces the developmental profile and coaching suggestions for
// a coded session. It runs best effort: the supervisor logs and swallows its
// errors.
type Generator struct {
	store  *store.Store
	cfg    *config.Config
	logger *slog.Logger
	llm    Completer
}

// New constructs the profiling stage handler.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger) *Generator {
	return NewWithCompleter(cfg, st, logger, llm.NewClient(cfg.LLM))
}

// NewWithCompleter allows injecting the reasoning client (used in tests).
func NewWithCompleter(cfg *config.Config, st *store.Store, logger *slog.Logger, completer Completer) *Generator {
	return &Generator{
		store:  st,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "profiling"),
		llm:    completer,
	}
}

func (g *Generator) Prepare(ctx context.Context, session *store.Session) error {
	if strings.TrimSpace(session.Transcript) == "" || session.TagCountsJSON == "" {
		return services.Wrap(services.ErrValidation, "profiling", "validate inputs",
			"Session lacks a coded transcript; coding must run first", nil)
	}
	return nil
}

func (g *Generator) Execute(ctx context.Context, session *store.Session) error {
	logger := logging.WithContext(ctx, g.logger)

	content, err := g.llm.CompleteJSON(ctx, systemPrompt, g.userPrompt(session))
	if err != nil {
		return services.Wrap(services.ErrExternalService, "profiling", "generate profile",
			"Profile generation call failed", err)
	}

	var instance any
	if err := llm.DecodeJSON(content, &instance); err != nil {
		return services.Wrap(services.ErrExternalService, "profiling", "decode response",
			"Profile generation returned malformed JSON", err)
	}
	if violations := validateProfile(instance); len(violations) > 0 {
		return services.Wrap(services.ErrValidation, "profiling", "validate response",
			fmt.Sprintf("Generated profile violates the contract: %s", strings.Join(violations, "; ")), nil)
	}

	var payload Payload
	if err := llm.DecodeJSON(content, &payload); err != nil {
		return services.Wrap(services.ErrExternalService, "profiling", "decode response",
			"Profile generation returned malformed JSON", err)
	}

	child, err := g.store.EnsureChild(ctx, session.UserRef, session.ChildAgeMonths, session.ChildGender)
	if err != nil {
		return services.Wrap(services.ErrTransient, "profiling", "ensure child",
			"Failed to resolve child record", err)
	}
	session.ChildID = child.ID

	domainsJSON, err := json.Marshal(payload.Domains)
	if err != nil {
		return services.Wrap(services.ErrTransient, "profiling", "encode domains",
			"Failed to encode domain assessments", err)
	}
	coachingJSON, err := json.Marshal(payload.Coaching)
	if err != nil {
		return services.Wrap(services.ErrTransient, "profiling", "encode coaching",
			"Failed to encode coaching items", err)
	}

	record := &store.Profiling{
		ChildID:      child.ID,
		SessionID:    session.ID,
		AgeMonths:    session.ChildAgeMonths,
		DomainsJSON:  string(domainsJSON),
		CoachingJSON: string(coachingJSON),
	}
	if session.OverallScore != nil {
		record.OverallScore = *session.OverallScore
	}
	if err := g.store.SaveProfiling(ctx, record); err != nil {
		return services.Wrap(services.ErrTransient, "profiling", "persist profile",
			"Failed to persist developmental profile", err)
	}

	logger.Info("profile generated",
		logging.Int("coaching_items", len(payload.Coaching)),
		logging.Int64("child_id", child.ID),
	)
	return nil
}

func (g *Generator) HealthCheck(ctx context.Context) stage.Health {
	if strings.TrimSpace(g.cfg.LLM.APIKey) == "" {
		return stage.Unhealthy("profiling", "reasoning API key not configured")
	}
	return stage.Healthy("profiling")
}

const systemPrompt = `You assess a child's development from one coded parent-child play session.
Produce JSON only, matching exactly:
{"domains": {"language": D, "cognitive": D, "social": D, "emotional": D, "connection": D}, "coaching": [C, ...]}
where D = {"current_level": "<string>", "age_benchmark": "<string>", "observations": ["<string>", ...]}
and C = {"pattern": "<observed pattern>", "alternative": "<better approach>", "example": "<concrete phrasing>"}.
Ground every observation in the transcript. All five domains are mandatory.`

func (g *Generator) userPrompt(session *store.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Child age: %d months.\n", session.ChildAgeMonths)
	if session.ChildGender != "" {
		fmt.Fprintf(&b, "Child gender: %s.\n", session.ChildGender)
	}
	if session.Concern != "" {
		fmt.Fprintf(&b, "Caregiver concern: %s.\n", session.Concern)
	}
	fmt.Fprintf(&b, "Interaction counts: %s\n\nCoded transcript:\n%s\n", session.TagCountsJSON, session.Transcript)
	return b.String()
}
