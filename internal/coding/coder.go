package coding

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

// Coder tags every adult utterance of a session with one taxonomy code and
// stores the derived aggregate and score.
type Coder struct {
	store  *store.Store
	cfg    *config.Config
	logger *slog.Logger
	llm    Completer
}

// New constructs the behavior coding stage handler.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger) *Coder {
	return NewWithCompleter(cfg, st, logger, llm.NewClient(cfg.LLM))
}

// NewWithCompleter allows injecting the reasoning client (used in tests).
func NewWithCompleter(cfg *config.Config, st *store.Store, logger *slog.Logger, completer Completer) *Coder {
	return &Coder{
		store:  st,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "coding"),
		llm:    completer,
	}
}

func (c *Coder) Prepare(ctx context.Context, session *store.Session) error {
	utterances, err := c.store.Utterances(ctx, session.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "coding", "load timeline",
			"Failed to load session timeline", err)
	}
	for _, u := range utterances {
		if !u.IsSilence && u.Role == "" {
			return services.Wrap(services.ErrValidation, "coding", "validate inputs",
				"Timeline still carries unassigned speakers; role classification must run first", nil)
		}
	}
	return nil
}

func (c *Coder) Execute(ctx context.Context, session *store.Session) error {
	logger := logging.WithContext(ctx, c.logger)

	utterances, err := c.store.Utterances(ctx, session.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "coding", "load timeline",
			"Failed to load session timeline", err)
	}

	adult := adultUtterances(utterances)
	if len(adult) == 0 {
		// Nothing to code: persist a zero aggregate so the report contract
		// still holds.
		return c.persist(ctx, session, nil, logger)
	}

	content, err := c.llm.CompleteJSON(ctx, systemPrompt, userPrompt(adult))
	if err != nil {
		return services.Wrap(services.ErrExternalService, "coding", "classify utterances",
			"Behavior coding call failed", err)
	}

	var reply struct {
		Tags []struct {
			Seq int    `json:"seq"`
			Tag string `json:"tag"`
		} `json:"tags"`
	}
	if err := llm.DecodeJSON(content, &reply); err != nil {
		return services.Wrap(services.ErrExternalService, "coding", "decode response",
			"Behavior coding returned malformed JSON", err)
	}

	tags := make(map[int]string, len(reply.Tags))
	for _, t := range reply.Tags {
		tag := strings.ToLower(strings.TrimSpace(t.Tag))
		if !ValidCode(tag) {
			return services.Wrap(services.ErrValidation, "coding", "validate response",
				fmt.Sprintf("Behavior coding returned out-of-taxonomy tag %q for utterance %d", t.Tag, t.Seq), nil)
		}
		tags[t.Seq] = tag
	}
	for _, u := range adult {
		if _, ok := tags[u.Seq]; !ok {
			return services.Wrap(services.ErrValidation, "coding", "validate response",
				fmt.Sprintf("Behavior coding left utterance %d untagged", u.Seq), nil)
		}
	}
	// Drop tags for sequences we never asked about.
	requested := make(map[int]struct{}, len(adult))
	for _, u := range adult {
		requested[u.Seq] = struct{}{}
	}
	for seq := range tags {
		if _, ok := requested[seq]; !ok {
			delete(tags, seq)
		}
	}

	if err := c.store.TagUtterances(ctx, session.ID, tags); err != nil {
		return services.Wrap(services.ErrTransient, "coding", "persist tags",
			"Failed to persist behavior tags", err)
	}
	ordered := make([]string, 0, len(adult))
	for _, u := range adult {
		ordered = append(ordered, tags[u.Seq])
	}
	return c.persist(ctx, session, ordered, logger)
}

func (c *Coder) persist(ctx context.Context, session *store.Session, tags []string, logger *slog.Logger) error {
	agg := Recompute(tags)
	payload, err := json.Marshal(agg)
	if err != nil {
		return services.Wrap(services.ErrTransient, "coding", "encode aggregate",
			"Failed to encode aggregate counts", err)
	}
	session.TagCountsJSON = string(payload)
	score := Score(agg)
	session.OverallScore = &score

	logger.Info("behavior coding complete",
		logging.Int("adult_utterances", agg.AdultUtterances),
		logging.Int("overall_score", score),
	)
	return nil
}

func (c *Coder) HealthCheck(ctx context.Context) stage.Health {
	if strings.TrimSpace(c.cfg.LLM.APIKey) == "" {
		return stage.Unhealthy("coding", "reasoning API key not configured")
	}
	return stage.Healthy("coding")
}

const systemPrompt = `You code adult utterances from a parent-child play session using a fixed taxonomy:
labeled_praise, unlabeled_praise, behavioral_description, reflection, negative_talk,
direct_command, indirect_command, question, acknowledgment, idle.
Respond with JSON only: {"tags": [{"seq": <number>, "tag": "<taxonomy code>"}, ...]}.
Tag every utterance exactly once using only taxonomy codes.`

func userPrompt(adult []store.Utterance) string {
	var b strings.Builder
	b.WriteString("Adult utterances:\n")
	for _, u := range adult {
		fmt.Fprintf(&b, "%d: %s\n", u.Seq, u.Text)
	}
	return b.String()
}

func adultUtterances(utterances []store.Utterance) []store.Utterance {
	var adult []store.Utterance
	for _, u := range utterances {
		if u.Role == store.RoleAdult && strings.TrimSpace(u.Text) != "" {
			adult = append(adult, u)
		}
	}
	return adult
}
