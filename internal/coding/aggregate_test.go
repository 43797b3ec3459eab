package coding

import "testing"

func TestRecomputeDerivedSums(t *testing.T) {
	tags := []string{
		CodeLabeledPraise,
		CodeUnlabeledPraise,
		CodeUnlabeledPraise,
		CodeReflection,
		CodeBehavioralDescription,
		CodeDirectCommand,
		CodeIndirectCommand,
		CodeIndirectCommand,
		CodeQuestion,
		CodeNegativeTalk,
		CodeAcknowledgment,
		CodeIdle,
	}
	agg := Recompute(tags)

	if agg.AdultUtterances != len(tags) {
		t.Fatalf("adult utterances = %d, want %d", agg.AdultUtterances, len(tags))
	}
	if agg.Praise != 3 || agg.LabeledPraise != 1 || agg.UnlabeledPraise != 2 {
		t.Fatalf("praise = %d (%d+%d)", agg.Praise, agg.LabeledPraise, agg.UnlabeledPraise)
	}
	if agg.Command != 3 || agg.DirectCommand != 1 || agg.IndirectCommand != 2 {
		t.Fatalf("command = %d (%d+%d)", agg.Command, agg.DirectCommand, agg.IndirectCommand)
	}
	if agg.Echo != 1 || agg.Narration != 1 || agg.Question != 1 || agg.Criticism != 1 {
		t.Fatalf("aggregate = %+v", agg)
	}
	if agg.Neutral != 2 {
		t.Fatalf("neutral = %d, want acknowledgment+idle", agg.Neutral)
	}
}

func TestRecomputeEmpty(t *testing.T) {
	agg := Recompute(nil)
	if agg != (Aggregate{}) {
		t.Fatalf("aggregate = %+v, want zero value", agg)
	}
}

func TestRecomputeRoundTrips(t *testing.T) {
	tags := []string{CodeReflection, CodeQuestion, CodeLabeledPraise, CodeIdle}
	first := Recompute(tags)
	second := Recompute(tags)
	if first != second {
		t.Fatalf("recompute not deterministic: %+v vs %+v", first, second)
	}
}

func TestScoreBounds(t *testing.T) {
	if got := Score(Aggregate{}); got != 50 {
		t.Fatalf("empty score = %d, want 50", got)
	}

	warm := Recompute([]string{CodeLabeledPraise, CodeLabeledPraise, CodeReflection})
	if got := Score(warm); got != 100 {
		t.Fatalf("warm score = %d, want clamped to 100", got)
	}

	harsh := Recompute([]string{CodeNegativeTalk, CodeNegativeTalk, CodeDirectCommand})
	if got := Score(harsh); got != 0 {
		t.Fatalf("harsh score = %d, want clamped to 0", got)
	}

	mixed := Recompute([]string{CodeLabeledPraise, CodeDirectCommand, CodeQuestion, CodeIdle})
	got := Score(mixed)
	if got <= 0 || got >= 100 {
		t.Fatalf("mixed score = %d, want interior value", got)
	}
}

func TestValidCode(t *testing.T) {
	for _, code := range AllCodes() {
		if !ValidCode(code) {
			t.Fatalf("code %q rejected", code)
		}
	}
	if ValidCode("sarcasm") {
		t.Fatal("out-of-taxonomy code accepted")
	}
}
