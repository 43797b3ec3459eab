package roles

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
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

// Classifier assigns ADULT or CHILD roles to the diarized speaker labels of a
// session in a single reasoning call.
type Classifier struct {
	store  *store.Store
	cfg    *config.Config
	logger *slog.Logger
	llm    Completer
}

// New constructs the role classification stage handler.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger) *Classifier {
	return NewWithCompleter(cfg, st, logger, llm.NewClient(cfg.LLM))
}

// NewWithCompleter allows injecting the reasoning client (used in tests).
func NewWithCompleter(cfg *config.Config, st *store.Store, logger *slog.Logger, completer Completer) *Classifier {
	return &Classifier{
		store:  st,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "roles"),
		llm:    completer,
	}
}

func (c *Classifier) Prepare(ctx context.Context, session *store.Session) error {
	utterances, err := c.store.Utterances(ctx, session.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "roles", "load timeline",
			"Failed to load session timeline", err)
	}
	if len(speakerLabels(utterances)) == 0 {
		return services.Wrap(services.ErrValidation, "roles", "validate inputs",
			"Session timeline has no diarized speakers; transcription must run first", nil)
	}
	return nil
}

func (c *Classifier) Execute(ctx context.Context, session *store.Session) error {
	logger := logging.WithContext(ctx, c.logger)

	utterances, err := c.store.Utterances(ctx, session.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "roles", "load timeline",
			"Failed to load session timeline", err)
	}
	labels := speakerLabels(utterances)
	if len(labels) == 0 {
		return services.Wrap(services.ErrValidation, "roles", "validate inputs",
			"Session timeline has no diarized speakers", nil)
	}

	content, err := c.llm.CompleteJSON(ctx, systemPrompt, userPrompt(session, labels, utterances))
	if err != nil {
		return services.Wrap(services.ErrExternalService, "roles", "classify speakers",
			"Role classification call failed", err)
	}

	var reply classifyReply
	if err := llm.DecodeJSON(content, &reply); err != nil {
		return services.Wrap(services.ErrExternalService, "roles", "decode response",
			"Role classification returned malformed JSON", err)
	}

	assignments, err := validateAssignments(labels, reply)
	if err != nil {
		return services.Wrap(services.ErrValidation, "roles", "validate response", err.Error(), nil)
	}

	if err := c.store.AssignRoles(ctx, session.ID, assignments); err != nil {
		return services.Wrap(services.ErrTransient, "roles", "persist roles",
			"Failed to persist role assignments", err)
	}

	session.Transcript = renderRoleTranscript(utterances, assignments)
	logger.Info("roles assigned", logging.Int("speakers", len(assignments)))
	return nil
}

func (c *Classifier) HealthCheck(ctx context.Context) stage.Health {
	if strings.TrimSpace(c.cfg.LLM.APIKey) == "" {
		return stage.Unhealthy("roles", "reasoning API key not configured")
	}
	return stage.Healthy("roles")
}

const systemPrompt = `You label the speakers of a parent-child play session transcript.
Each speaker label must be classified as either "ADULT" or "CHILD".
Respond with JSON only:
{"assignments": [{"speaker": "<label>", "role": "ADULT"|"CHILD", "confidence": 0.0-1.0, "rationale": "<short>"}, ...]}
Every label listed in the request must appear exactly once.`

// samplesPerSpeaker caps how many utterances per label are quoted in the
// classification prompt.
const samplesPerSpeaker = 25

type classifyReply struct {
	Assignments []struct {
		Speaker    string  `json:"speaker"`
		Role       string  `json:"role"`
		Confidence float64 `json:"confidence"`
		Rationale  string  `json:"rationale"`
	} `json:"assignments"`
}

func userPrompt(session *store.Session, labels []string, utterances []store.Utterance) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Child age: %d months.\n", session.ChildAgeMonths)
	fmt.Fprintf(&b, "Speaker labels to classify: %s.\n", strings.Join(labels, ", "))
	counts := make(map[string]int, len(labels))
	b.WriteString("\nTranscript sample:\n")
	for _, u := range utterances {
		if u.IsSilence || strings.TrimSpace(u.Text) == "" {
			continue
		}
		if counts[u.Speaker] >= samplesPerSpeaker {
			continue
		}
		counts[u.Speaker]++
		fmt.Fprintf(&b, "%s: %s\n", u.Speaker, u.Text)
	}
	return b.String()
}

func speakerLabels(utterances []store.Utterance) []string {
	seen := make(map[string]struct{})
	var labels []string
	for _, u := range utterances {
		if u.IsSilence || u.Speaker == "" {
			continue
		}
		if _, ok := seen[u.Speaker]; ok {
			continue
		}
		seen[u.Speaker] = struct{}{}
		labels = append(labels, u.Speaker)
	}
	sort.Strings(labels)
	return labels
}

func validateAssignments(labels []string, reply classifyReply) (map[string]string, error) {
	if len(reply.Assignments) == 0 {
		return nil, fmt.Errorf("classification response carries no assignments")
	}
	byLabel := make(map[string]string, len(reply.Assignments))
	for _, a := range reply.Assignments {
		byLabel[strings.TrimSpace(a.Speaker)] = strings.ToUpper(strings.TrimSpace(a.Role))
	}
	out := make(map[string]string, len(labels))
	for _, label := range labels {
		role, ok := byLabel[label]
		if !ok {
			return nil, fmt.Errorf("classification response leaves speaker %q unassigned", label)
		}
		if role != store.RoleAdult && role != store.RoleChild {
			return nil, fmt.Errorf("classification response assigns unknown role %q to %q", role, label)
		}
		out[label] = role
	}
	return out, nil
}

func renderRoleTranscript(utterances []store.Utterance, assignments map[string]string) string {
	var b strings.Builder
	for _, u := range utterances {
		if u.IsSilence {
			fmt.Fprintf(&b, "[silence %.1fs]\n", u.EndSeconds-u.StartSeconds)
			continue
		}
		label := assignments[u.Speaker]
		if label == "" {
			label = u.Speaker
		}
		fmt.Fprintf(&b, "%s: %s\n", label, u.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}
