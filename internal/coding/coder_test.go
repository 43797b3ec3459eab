package coding_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"sprout/internal/coding"
	"sprout/internal/logging"
	"sprout/internal/services"
	"sprout/internal/store"
	"sprout/internal/testsupport"
)

type fakeCompleter struct {
	reply string
	err   error
	calls int
}

func (f *fakeCompleter) CompleteJSON(_ context.Context, _, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func seedCodedTimeline(t *testing.T, st *store.Store, sessionID string) {
	t.Helper()
	rows := []store.Utterance{
		{Seq: 0, Speaker: "SPEAKER_00", Role: store.RoleAdult, StartSeconds: 0, EndSeconds: 2, Text: "you stacked the blue block so carefully"},
		{Seq: 1, Speaker: "SPEAKER_01", Role: store.RoleChild, StartSeconds: 2, EndSeconds: 3, Text: "tower"},
		{Seq: 2, StartSeconds: 3, EndSeconds: 8, IsSilence: true, Role: store.RoleSilence},
		{Seq: 3, Speaker: "SPEAKER_00", Role: store.RoleAdult, StartSeconds: 8, EndSeconds: 9, Text: "put it down now"},
	}
	if err := st.ReplaceUtterances(context.Background(), sessionID, rows); err != nil {
		t.Fatalf("ReplaceUtterances: %v", err)
	}
}

func TestExecuteTagsAdultUtterances(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	session := testsupport.NewSession(t, st, "user-1", 30)
	seedCodedTimeline(t, st, session.ID)

	completer := &fakeCompleter{reply: `{"tags": [{"seq": 0, "tag": "labeled_praise"}, {"seq": 3, "tag": "direct_command"}]}`}
	handler := coding.NewWithCompleter(cfg, st, logging.NewNop(), completer)

	if err := handler.Execute(ctx, session); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if completer.calls != 1 {
		t.Fatalf("coder calls = %d, want exactly 1", completer.calls)
	}

	utterances, err := st.Utterances(ctx, session.ID)
	if err != nil {
		t.Fatalf("Utterances: %v", err)
	}
	if utterances[0].BehaviorCode != coding.CodeLabeledPraise {
		t.Fatalf("seq 0 tag = %q", utterances[0].BehaviorCode)
	}
	if utterances[3].BehaviorCode != coding.CodeDirectCommand {
		t.Fatalf("seq 3 tag = %q", utterances[3].BehaviorCode)
	}
	if utterances[1].BehaviorCode != "" || utterances[2].BehaviorCode != "" {
		t.Fatal("child and silence rows must stay untagged")
	}

	var agg coding.Aggregate
	if err := json.Unmarshal([]byte(session.TagCountsJSON), &agg); err != nil {
		t.Fatalf("decode aggregate: %v", err)
	}
	if agg.LabeledPraise != 1 || agg.Command != 1 || agg.AdultUtterances != 2 {
		t.Fatalf("aggregate = %+v", agg)
	}
	if session.OverallScore == nil {
		t.Fatal("overall score not set")
	}

	// The stored aggregate must round-trip from the stored per-utterance tags.
	var tags []string
	for _, u := range utterances {
		if u.Role == store.RoleAdult {
			tags = append(tags, u.BehaviorCode)
		}
	}
	if recomputed := coding.Recompute(tags); recomputed != agg {
		t.Fatalf("recompute mismatch: %+v vs %+v", recomputed, agg)
	}
}

func TestExecuteIsDeterministic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	session := testsupport.NewSession(t, st, "user-1", 30)

	completer := &fakeCompleter{reply: `{"tags": [{"seq": 0, "tag": "labeled_praise"}, {"seq": 3, "tag": "direct_command"}]}`}
	handler := coding.NewWithCompleter(cfg, st, logging.NewNop(), completer)

	codes := func() []string {
		utterances, err := st.Utterances(ctx, session.ID)
		if err != nil {
			t.Fatalf("Utterances: %v", err)
		}
		tags := make([]string, len(utterances))
		for i, u := range utterances {
			tags[i] = u.BehaviorCode
		}
		return tags
	}

	seedCodedTimeline(t, st, session.ID)
	if err := handler.Execute(ctx, session); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	firstTags := codes()
	firstCounts := session.TagCountsJSON
	firstScore := *session.OverallScore

	// Re-coding the identical timeline must reproduce the same tag
	// sequence, aggregate, and score.
	seedCodedTimeline(t, st, session.ID)
	if err := handler.Execute(ctx, session); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	secondTags := codes()

	if len(firstTags) != len(secondTags) {
		t.Fatalf("tag count changed: %d vs %d", len(firstTags), len(secondTags))
	}
	for i := range firstTags {
		if firstTags[i] != secondTags[i] {
			t.Fatalf("seq %d tag = %q, want %q", i, secondTags[i], firstTags[i])
		}
	}
	if session.TagCountsJSON != firstCounts {
		t.Fatalf("aggregate changed: %s vs %s", session.TagCountsJSON, firstCounts)
	}
	if *session.OverallScore != firstScore {
		t.Fatalf("score changed: %d vs %d", *session.OverallScore, firstScore)
	}
}

func TestExecuteZeroAdultUtterances(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	session := testsupport.NewSession(t, st, "user-1", 30)

	rows := []store.Utterance{
		{Seq: 0, Speaker: "SPEAKER_01", Role: store.RoleChild, StartSeconds: 0, EndSeconds: 1, Text: "hello"},
	}
	if err := st.ReplaceUtterances(ctx, session.ID, rows); err != nil {
		t.Fatalf("ReplaceUtterances: %v", err)
	}

	completer := &fakeCompleter{}
	handler := coding.NewWithCompleter(cfg, st, logging.NewNop(), completer)
	if err := handler.Execute(ctx, session); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if completer.calls != 0 {
		t.Fatalf("coder calls = %d, want 0 for sessions without adult speech", completer.calls)
	}

	var agg coding.Aggregate
	if err := json.Unmarshal([]byte(session.TagCountsJSON), &agg); err != nil {
		t.Fatalf("decode aggregate: %v", err)
	}
	if agg != (coding.Aggregate{}) {
		t.Fatalf("aggregate = %+v, want zero value", agg)
	}
	if session.OverallScore == nil || *session.OverallScore != 50 {
		t.Fatalf("overall score = %v, want neutral 50", session.OverallScore)
	}
}

func TestExecuteRejectsOutOfTaxonomyTag(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	session := testsupport.NewSession(t, st, "user-1", 30)
	seedCodedTimeline(t, st, session.ID)

	completer := &fakeCompleter{reply: `{"tags": [{"seq": 0, "tag": "sarcasm"}, {"seq": 3, "tag": "direct_command"}]}`}
	handler := coding.NewWithCompleter(cfg, st, logging.NewNop(), completer)

	err := handler.Execute(context.Background(), session)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestExecuteRejectsUncoveredUtterance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	session := testsupport.NewSession(t, st, "user-1", 30)
	seedCodedTimeline(t, st, session.ID)

	completer := &fakeCompleter{reply: `{"tags": [{"seq": 0, "tag": "labeled_praise"}]}`}
	handler := coding.NewWithCompleter(cfg, st, logging.NewNop(), completer)

	err := handler.Execute(context.Background(), session)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestPrepareRequiresRoles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	session := testsupport.NewSession(t, st, "user-1", 30)

	rows := []store.Utterance{
		{Seq: 0, Speaker: "SPEAKER_00", StartSeconds: 0, EndSeconds: 1, Text: "hi"},
	}
	if err := st.ReplaceUtterances(ctx, session.ID, rows); err != nil {
		t.Fatalf("ReplaceUtterances: %v", err)
	}

	handler := coding.NewWithCompleter(cfg, st, logging.NewNop(), &fakeCompleter{})
	err := handler.Prepare(ctx, session)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}
