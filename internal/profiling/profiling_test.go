package profiling_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"sprout/internal/logging"
	"sprout/internal/profiling"
	"sprout/internal/services"
	"sprout/internal/store"
	"sprout/internal/testsupport"
)

type fakeCompleter struct {
	reply string
	err   error
}

func (f *fakeCompleter) CompleteJSON(_ context.Context, _, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

const validProfile = `{
  "domains": {
    "language": {"current_level": "two-word phrases", "age_benchmark": "typical for 30 months", "observations": ["said: red block"]},
    "cognitive": {"current_level": "matches colors", "age_benchmark": "typical", "observations": ["found the red block on request"]},
    "social": {"current_level": "parallel play", "age_benchmark": "typical", "observations": ["played alongside the adult"]},
    "emotional": {"current_level": "settled", "age_benchmark": "typical", "observations": ["no distress during transitions"]},
    "connection": {"current_level": "warm", "age_benchmark": "typical", "observations": ["responded to praise with a smile"]}
  },
  "coaching": [
    {"pattern": "frequent direct commands", "alternative": "narrate the play instead", "example": "You are stacking the blue block!"}
  ]
}`

func codedSession(t *testing.T, st *store.Store) *store.Session {
	t.Helper()
	session := testsupport.NewSession(t, st, "user-1", 30)
	session.Transcript = "ADULT: you stacked it so carefully\nCHILD: tower"
	session.TagCountsJSON = `{"labeled_praise":1,"adult_utterances":1}`
	score := 80
	session.OverallScore = &score
	if err := st.UpdateSession(context.Background(), session); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	return session
}

func TestExecutePersistsProfile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	session := codedSession(t, st)

	handler := profiling.NewWithCompleter(cfg, st, logging.NewNop(), &fakeCompleter{reply: validProfile})
	if err := handler.Execute(ctx, session); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if session.ChildID == 0 {
		t.Fatal("child not linked to session")
	}

	child, err := st.ChildByUserRef(ctx, "user-1")
	if err != nil {
		t.Fatalf("ChildByUserRef: %v", err)
	}
	record, err := st.ProfilingBySession(ctx, session.ID)
	if err != nil {
		t.Fatalf("ProfilingBySession: %v", err)
	}
	if record.ChildID != child.ID || record.AgeMonths != 30 || record.OverallScore != 80 {
		t.Fatalf("profiling = %+v", record)
	}

	var domains map[string]profiling.Domain
	if err := json.Unmarshal([]byte(record.DomainsJSON), &domains); err != nil {
		t.Fatalf("decode domains: %v", err)
	}
	if len(domains) != 5 {
		t.Fatalf("domains = %d, want 5", len(domains))
	}
	var coaching []profiling.CoachingItem
	if err := json.Unmarshal([]byte(record.CoachingJSON), &coaching); err != nil {
		t.Fatalf("decode coaching: %v", err)
	}
	if len(coaching) != 1 || coaching[0].Example == "" {
		t.Fatalf("coaching = %+v", coaching)
	}
}

func TestExecuteRerunReplacesRow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	session := codedSession(t, st)

	handler := profiling.NewWithCompleter(cfg, st, logging.NewNop(), &fakeCompleter{reply: validProfile})
	if err := handler.Execute(ctx, session); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	first, err := st.ProfilingBySession(ctx, session.ID)
	if err != nil {
		t.Fatalf("ProfilingBySession: %v", err)
	}
	if err := handler.Execute(ctx, session); err != nil {
		t.Fatalf("Execute rerun: %v", err)
	}
	second, err := st.ProfilingBySession(ctx, session.ID)
	if err != nil {
		t.Fatalf("ProfilingBySession rerun: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("rerun duplicated profiling row: %d vs %d", first.ID, second.ID)
	}
}

func TestExecuteRejectsMissingDomain(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	session := codedSession(t, st)

	// "connection" domain omitted.
	reply := `{
      "domains": {
        "language": {"current_level": "x", "age_benchmark": "y", "observations": []},
        "cognitive": {"current_level": "x", "age_benchmark": "y", "observations": []},
        "social": {"current_level": "x", "age_benchmark": "y", "observations": []},
        "emotional": {"current_level": "x", "age_benchmark": "y", "observations": []}
      },
      "coaching": []
    }`
	handler := profiling.NewWithCompleter(cfg, st, logging.NewNop(), &fakeCompleter{reply: reply})
	err := handler.Execute(context.Background(), session)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}

	if _, err := st.ProfilingBySession(context.Background(), session.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("profiling row err = %v, want ErrNotFound after rejected payload", err)
	}
}

func TestExecuteRejectsIncompleteCoachingItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	session := codedSession(t, st)

	reply := `{
      "domains": {
        "language": {"current_level": "x", "age_benchmark": "y", "observations": []},
        "cognitive": {"current_level": "x", "age_benchmark": "y", "observations": []},
        "social": {"current_level": "x", "age_benchmark": "y", "observations": []},
        "emotional": {"current_level": "x", "age_benchmark": "y", "observations": []},
        "connection": {"current_level": "x", "age_benchmark": "y", "observations": []}
      },
      "coaching": [{"pattern": "commands"}]
    }`
	handler := profiling.NewWithCompleter(cfg, st, logging.NewNop(), &fakeCompleter{reply: reply})
	err := handler.Execute(context.Background(), session)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestExecuteWrapsCompleterFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	session := codedSession(t, st)

	handler := profiling.NewWithCompleter(cfg, st, logging.NewNop(), &fakeCompleter{err: errors.New("down")})
	err := handler.Execute(context.Background(), session)
	if !errors.Is(err, services.ErrExternalService) {
		t.Fatalf("err = %v, want ErrExternalService", err)
	}
}

func TestPrepareRequiresCoding(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	session := testsupport.NewSession(t, st, "user-1", 30)

	handler := profiling.NewWithCompleter(cfg, st, logging.NewNop(), &fakeCompleter{})
	err := handler.Prepare(context.Background(), session)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}
