package timeline

import (
	"fmt"
	"sort"
	"time"

	"sprout/internal/merge"
)

// Entry is one row of a session's ordered utterance sequence, either real
// speech or a synthesized silence placeholder.
type Entry struct {
	Seq      int
	Speaker  string
	Start    float64
	End      float64
	Text     string
	Silence  bool
	Feedback string
}

// silenceGapSeconds is the minimum gap between consecutive utterances that
// produces a silence placeholder.
const silenceGapSeconds = 3.0

// Build materializes merged utterances into the ordered entry sequence,
// inserting a silence entry for every gap of at least three seconds between
// consecutive real utterances. Sequence numbers are assigned by start time
// across real and synthesized entries and are gapless from zero.
func Build(utterances []merge.Utterance) []Entry {
	entries := make([]Entry, 0, len(utterances)*2)
	for i, u := range utterances {
		entries = append(entries, Entry{
			Speaker: u.Speaker,
			Start:   u.Start,
			End:     u.End,
			Text:    u.Text,
		})
		if i+1 < len(utterances) {
			gap := utterances[i+1].Start - u.End
			if gap >= silenceGapSeconds {
				entries = append(entries, Entry{
					Start:    u.End,
					End:      utterances[i+1].Start,
					Silence:  true,
					Feedback: silenceHint(gap),
				})
			}
		}
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Start < entries[j].Start })
	for i := range entries {
		entries[i].Seq = i
	}
	return entries
}

// silenceHint scales the coaching hint with the length of the pause.
func silenceHint(gapSeconds float64) string {
	gap := time.Duration(gapSeconds * float64(time.Second)).Round(time.Second)
	switch {
	case gapSeconds >= 30:
		return fmt.Sprintf("Long pause (%s). Extended quiet stretches are a chance to narrate what your child is doing.", gap)
	case gapSeconds >= 10:
		return fmt.Sprintf("Pause (%s). Consider describing your child's play to keep the interaction going.", gap)
	default:
		return fmt.Sprintf("Brief pause (%s). Short silences are fine; they give your child room to lead.", gap)
	}
}
