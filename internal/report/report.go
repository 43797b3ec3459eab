package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"sprout/internal/coding"
	"sprout/internal/merge"
	"sprout/internal/profiling"
	"sprout/internal/store"
)

// Line is one entry of the coded transcript.
type Line struct {
	Seq          int     `json:"seq"`
	Role         string  `json:"role"`
	Speaker      string  `json:"speaker,omitempty"`
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	Text         string  `json:"text"`
	BehaviorCode string  `json:"behavior_code,omitempty"`
	IsSilence    bool    `json:"is_silence,omitempty"`
}

// MilestoneState is the child's progress against one library milestone.
type MilestoneState struct {
	Key           string     `json:"key"`
	Title         string     `json:"title"`
	Domain        string     `json:"domain"`
	State         string     `json:"state"`
	EvidenceCount int        `json:"evidence_count"`
	AchievedAt    *time.Time `json:"achieved_at,omitempty"`
}

// Report is the downstream contract assembled from a completed session.
type Report struct {
	SessionID       string             `json:"session_id"`
	UserRef         string             `json:"user_ref"`
	Mode            string             `json:"mode"`
	ChildAgeMonths  int                `json:"child_age_months"`
	DurationSeconds float64            `json:"duration_seconds"`
	OverallScore    *int               `json:"overall_score,omitempty"`
	RetryCount      int                `json:"retry_count"`
	CreatedAt       time.Time          `json:"created_at"`
	Divergence      *merge.Divergence  `json:"divergence,omitempty"`
	Transcript      []Line             `json:"transcript"`
	Aggregate       coding.Aggregate   `json:"aggregate"`
	Profile         *profiling.Payload `json:"profile,omitempty"`
	Milestones      []MilestoneState   `json:"milestones,omitempty"`
}

// Build assembles the report for a completed session. The caller is
// responsible for checking the session status first; Build does not gate on
// it so partially processed sessions can still be inspected from the CLI.
func Build(ctx context.Context, st *store.Store, session *store.Session) (*Report, error) {
	rep := &Report{
		SessionID:       session.ID,
		UserRef:         session.UserRef,
		Mode:            session.Mode,
		ChildAgeMonths:  session.ChildAgeMonths,
		DurationSeconds: session.DurationSeconds,
		OverallScore:    session.OverallScore,
		RetryCount:      session.RetryCount,
		CreatedAt:       session.CreatedAt,
	}

	if session.DivergenceJSON != "" {
		var divergence merge.Divergence
		if err := json.Unmarshal([]byte(session.DivergenceJSON), &divergence); err != nil {
			return nil, fmt.Errorf("decode divergence: %w", err)
		}
		rep.Divergence = &divergence
	}
	if session.TagCountsJSON != "" {
		if err := json.Unmarshal([]byte(session.TagCountsJSON), &rep.Aggregate); err != nil {
			return nil, fmt.Errorf("decode tag counts: %w", err)
		}
	}

	utterances, err := st.Utterances(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("load timeline: %w", err)
	}
	rep.Transcript = make([]Line, 0, len(utterances))
	for _, u := range utterances {
		rep.Transcript = append(rep.Transcript, Line{
			Seq:          u.Seq,
			Role:         u.Role,
			Speaker:      u.Speaker,
			StartSeconds: u.StartSeconds,
			EndSeconds:   u.EndSeconds,
			Text:         u.Text,
			BehaviorCode: u.BehaviorCode,
			IsSilence:    u.IsSilence,
		})
	}

	if err := attachProfile(ctx, st, session, rep); err != nil {
		return nil, err
	}
	if err := attachMilestones(ctx, st, session, rep); err != nil {
		return nil, err
	}
	return rep, nil
}

func attachProfile(ctx context.Context, st *store.Store, session *store.Session, rep *Report) error {
	row, err := st.ProfilingBySession(ctx, session.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load profiling: %w", err)
	}

	payload := &profiling.Payload{}
	if row.DomainsJSON != "" {
		if err := json.Unmarshal([]byte(row.DomainsJSON), &payload.Domains); err != nil {
			return fmt.Errorf("decode profile domains: %w", err)
		}
	}
	if row.CoachingJSON != "" {
		if err := json.Unmarshal([]byte(row.CoachingJSON), &payload.Coaching); err != nil {
			return fmt.Errorf("decode coaching items: %w", err)
		}
	}
	rep.Profile = payload
	return nil
}

func attachMilestones(ctx context.Context, st *store.Store, session *store.Session, rep *Report) error {
	if session.ChildID == 0 {
		return nil
	}
	library, err := st.LibraryMilestones(ctx)
	if err != nil {
		return fmt.Errorf("load milestone library: %w", err)
	}
	states, err := st.ChildMilestones(ctx, session.ChildID)
	if err != nil {
		return fmt.Errorf("load child milestones: %w", err)
	}

	byKey := make(map[string]store.Milestone, len(library))
	for _, m := range library {
		byKey[m.Key] = m
	}
	rep.Milestones = make([]MilestoneState, 0, len(states))
	for key, state := range states {
		entry := MilestoneState{
			Key:           key,
			State:         state.State,
			EvidenceCount: state.EvidenceCount,
			AchievedAt:    state.AchievedAt,
		}
		if lib, ok := byKey[key]; ok {
			entry.Title = lib.Title
			entry.Domain = lib.Domain
		}
		rep.Milestones = append(rep.Milestones, entry)
	}
	sort.Slice(rep.Milestones, func(i, j int) bool {
		if rep.Milestones[i].Domain != rep.Milestones[j].Domain {
			return rep.Milestones[i].Domain < rep.Milestones[j].Domain
		}
		return rep.Milestones[i].Key < rep.Milestones[j].Key
	})
	return nil
}
