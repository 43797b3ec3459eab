package report

import (
	"context"
	"encoding/json"
	"testing"

	"sprout/internal/coding"
	"sprout/internal/store"
	"sprout/internal/testsupport"
)

func seedCompletedSession(t *testing.T, st *store.Store) *store.Session {
	t.Helper()
	ctx := context.Background()

	session := testsupport.NewSession(t, st, "family-report", 30)
	rows := []store.Utterance{
		{Seq: 0, Speaker: "S1", Role: store.RoleAdult, StartSeconds: 0, EndSeconds: 2.5, Text: "Great stacking!", BehaviorCode: coding.CodeLabeledPraise},
		{Seq: 1, Speaker: "", Role: store.RoleSilence, StartSeconds: 2.5, EndSeconds: 6.5, Text: "", IsSilence: true},
		{Seq: 2, Speaker: "S2", Role: store.RoleChild, StartSeconds: 6.5, EndSeconds: 8, Text: "Tower!"},
	}
	if err := st.ReplaceUtterances(ctx, session.ID, rows); err != nil {
		t.Fatalf("ReplaceUtterances: %v", err)
	}

	aggregate := coding.Aggregate{LabeledPraise: 1, Praise: 1, AdultUtterances: 1}
	counts, err := json.Marshal(aggregate)
	if err != nil {
		t.Fatalf("marshal aggregate: %v", err)
	}
	score := 88
	session.Status = store.StatusCompleted
	session.TagCountsJSON = string(counts)
	session.OverallScore = &score
	session.DurationSeconds = 8

	child, err := st.EnsureChild(ctx, session.UserRef, session.ChildAgeMonths, session.ChildGender)
	if err != nil {
		t.Fatalf("EnsureChild: %v", err)
	}
	session.ChildID = child.ID
	if err := st.UpdateSession(ctx, session); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	return session
}

func TestBuildAssemblesCodedTranscript(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	session := seedCompletedSession(t, st)

	rep, err := Build(context.Background(), st, session)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(rep.Transcript) != 3 {
		t.Fatalf("expected 3 transcript lines, got %d", len(rep.Transcript))
	}
	if rep.Transcript[0].BehaviorCode != coding.CodeLabeledPraise {
		t.Errorf("expected labeled praise on first line, got %q", rep.Transcript[0].BehaviorCode)
	}
	if !rep.Transcript[1].IsSilence {
		t.Error("expected second line to be silence")
	}
	if rep.Aggregate.AdultUtterances != 1 || rep.Aggregate.LabeledPraise != 1 {
		t.Errorf("unexpected aggregate: %+v", rep.Aggregate)
	}
	if rep.OverallScore == nil || *rep.OverallScore != 88 {
		t.Errorf("expected overall score 88, got %v", rep.OverallScore)
	}
	if rep.Profile != nil {
		t.Error("expected no profile before profiling ran")
	}
}

func TestBuildAttachesProfileAndMilestones(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	session := seedCompletedSession(t, st)

	domains := `{"language":{"current_level":"combining words","age_benchmark":"typical for 30 months","observations":["two-word phrases"]}}`
	coaching := `[{"pattern":"rapid questions","alternative":"narrate play","example":"You picked the red block."}]`
	if err := st.SaveProfiling(ctx, &store.Profiling{
		ChildID:      session.ChildID,
		SessionID:    session.ID,
		AgeMonths:    session.ChildAgeMonths,
		DomainsJSON:  domains,
		CoachingJSON: coaching,
		OverallScore: 88,
	}); err != nil {
		t.Fatalf("SaveProfiling: %v", err)
	}

	if err := st.SeedMilestoneLibrary(ctx, []store.Milestone{
		{Key: "two-word-phrases", Domain: "language", Title: "Two-word phrases", MinAgeMonths: 18, MaxAgeMonths: 30, Threshold: 2},
	}); err != nil {
		t.Fatalf("SeedMilestoneLibrary: %v", err)
	}
	if _, _, err := st.RecordEvidence(ctx, session.ChildID, "two-word-phrases", 2); err != nil {
		t.Fatalf("RecordEvidence: %v", err)
	}

	rep, err := Build(ctx, st, session)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if rep.Profile == nil {
		t.Fatal("expected profile payload")
	}
	if got := rep.Profile.Domains["language"].CurrentLevel; got != "combining words" {
		t.Errorf("unexpected language level %q", got)
	}
	if len(rep.Profile.Coaching) != 1 {
		t.Errorf("expected 1 coaching item, got %d", len(rep.Profile.Coaching))
	}
	if len(rep.Milestones) != 1 {
		t.Fatalf("expected 1 milestone state, got %d", len(rep.Milestones))
	}
	milestone := rep.Milestones[0]
	if milestone.Key != "two-word-phrases" || milestone.State != store.MilestoneEmerging || milestone.EvidenceCount != 1 {
		t.Errorf("unexpected milestone state: %+v", milestone)
	}
	if milestone.Title != "Two-word phrases" || milestone.Domain != "language" {
		t.Errorf("expected library metadata on milestone state: %+v", milestone)
	}
}
