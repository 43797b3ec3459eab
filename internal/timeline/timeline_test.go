package timeline

import (
	"strings"
	"testing"

	"sprout/internal/merge"
)

func TestBuildSynthesizesSilenceEntries(t *testing.T) {
	utterances := []merge.Utterance{
		{Speaker: "PARENT", Start: 0, End: 2, Text: "look at that"},
		{Speaker: "CHILD", Start: 7, End: 8, Text: "car"},
		{Speaker: "PARENT", Start: 9, End: 10, Text: "a red car"},
	}
	entries := Build(utterances)

	// 5s gap produces one silence entry; the 1s gap does not.
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	if !entries[1].Silence {
		t.Fatalf("expected entry 1 to be silence, got %+v", entries[1])
	}
	if entries[1].Start != 2 || entries[1].End != 7 {
		t.Fatalf("silence window %v-%v, want 2-7", entries[1].Start, entries[1].End)
	}
	if entries[1].Text != "" {
		t.Fatal("silence entries carry no transcribed text")
	}
	if entries[1].Feedback == "" {
		t.Fatal("silence entries must carry a coaching hint")
	}
}

func TestBuildSequenceGapless(t *testing.T) {
	utterances := []merge.Utterance{
		{Speaker: "A", Start: 0, End: 1, Text: "a"},
		{Speaker: "B", Start: 5, End: 6, Text: "b"},
		{Speaker: "A", Start: 12, End: 13, Text: "c"},
	}
	entries := Build(utterances)
	for i, e := range entries {
		if e.Seq != i {
			t.Fatalf("entry %d has seq %d", i, e.Seq)
		}
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Start < entries[i-1].Start {
			t.Fatalf("entries out of order at %d", i)
		}
	}
}

func TestBuildGapJustBelowThreshold(t *testing.T) {
	utterances := []merge.Utterance{
		{Speaker: "A", Start: 0, End: 1, Text: "a"},
		{Speaker: "B", Start: 3.9, End: 5, Text: "b"},
	}
	entries := Build(utterances)
	if len(entries) != 2 {
		t.Fatalf("gap below 3s must not synthesize silence, got %d entries", len(entries))
	}
}

func TestSilenceHintScalesWithDuration(t *testing.T) {
	short := silenceHint(4)
	medium := silenceHint(15)
	long := silenceHint(45)
	if !strings.Contains(short, "Brief pause") {
		t.Fatalf("unexpected short hint %q", short)
	}
	if !strings.Contains(medium, "Pause") || strings.Contains(medium, "Brief") {
		t.Fatalf("unexpected medium hint %q", medium)
	}
	if !strings.Contains(long, "Long pause") {
		t.Fatalf("unexpected long hint %q", long)
	}
}

func TestBuildEmptyInput(t *testing.T) {
	if entries := Build(nil); len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}
