package merge

import (
	"math"
	"sort"
	"strings"
)

// Span is one timed fragment from a transcription pass: a word for the
// speaker-separation pass, a sentence or utterance for the text pass. Times
// are seconds from the start of the recording.
type Span struct {
	Speaker string
	Start   float64
	End     float64
	Text    string
}

// Utterance is a contiguous same-speaker run of pass-A spans carrying the
// speaker label resolved by the merge.
type Utterance struct {
	Speaker string
	Start   float64
	End     float64
	Text    string
}

// Divergence reports how far the two passes disagreed. It is diagnostic
// metadata and never blocks processing.
type Divergence struct {
	PassASpeakers int     `json:"pass_a_speakers"`
	PassBSpeakers int     `json:"pass_b_speakers"`
	Reassigned    int     `json:"reassigned"`
	Total         int     `json:"total"`
	Flagged       bool    `json:"flagged"`
	ReassignRate  float64 `json:"reassign_rate"`
}

// Result bundles the merged utterance sequence with its divergence report.
type Result struct {
	Utterances []Utterance
	Divergence Divergence
}

// reassignFlagThreshold is the reassignment fraction above which the two
// passes are considered divergent.
const reassignFlagThreshold = 0.20

// ParseUtterances folds pass-A spans into candidate utterances: contiguous
// runs sharing a speaker label, in input order.
func ParseUtterances(spans []Span) []Utterance {
	var out []Utterance
	for _, span := range spans {
		text := strings.TrimSpace(span.Text)
		if text == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Speaker == span.Speaker {
			out[n-1].End = span.End
			out[n-1].Text += " " + text
			continue
		}
		out = append(out, Utterance{
			Speaker: span.Speaker,
			Start:   span.Start,
			End:     span.End,
			Text:    text,
		})
	}
	return out
}

// Merge reconciles the text-quality pass (A) with the speaker-separation
// pass (B): pass-A utterances keep their text and timing but take the pass-B
// speaker with the greatest temporal overlap. Utterances with no overlapping
// pass-B span fall back to the nearest span by timestamp distance.
func Merge(passA, passB []Span) Result {
	utterances := ParseUtterances(passA)

	reassigned := 0
	for i := range utterances {
		label, ok := dominantSpeaker(utterances[i], passB)
		if !ok {
			label = nearestSpeaker(utterances[i], passB)
		}
		if label != "" && label != utterances[i].Speaker {
			reassigned++
		}
		if label != "" {
			utterances[i].Speaker = label
		}
	}

	div := Divergence{
		PassASpeakers: distinctSpeakers(passA),
		PassBSpeakers: distinctSpeakers(passB),
		Reassigned:    reassigned,
		Total:         len(utterances),
	}
	if div.Total > 0 {
		div.ReassignRate = float64(div.Reassigned) / float64(div.Total)
	}
	div.Flagged = div.PassASpeakers != div.PassBSpeakers || div.ReassignRate > reassignFlagThreshold

	return Result{Utterances: utterances, Divergence: div}
}

// Single handles single-pass mode: the pass is parsed directly and keeps its
// native speaker labels. The divergence report stays zero-valued.
func Single(pass []Span) Result {
	return Result{Utterances: ParseUtterances(pass)}
}

// dominantSpeaker sums overlap seconds per pass-B speaker against the
// utterance window and returns the argmax. Ties break toward the speaker
// encountered first in pass-B order so results are stable across runs.
func dominantSpeaker(u Utterance, passB []Span) (string, bool) {
	totals := make(map[string]float64)
	var order []string
	for _, span := range passB {
		overlap := math.Min(u.End, span.End) - math.Max(u.Start, span.Start)
		if overlap <= 0 {
			continue
		}
		if _, seen := totals[span.Speaker]; !seen {
			order = append(order, span.Speaker)
		}
		totals[span.Speaker] += overlap
	}
	if len(order) == 0 {
		return "", false
	}
	best := order[0]
	for _, speaker := range order[1:] {
		if totals[speaker] > totals[best] {
			best = speaker
		}
	}
	return best, true
}

// nearestSpeaker finds the pass-B span whose midpoint lies closest to the
// utterance midpoint, ties broken by the earlier span.
func nearestSpeaker(u Utterance, passB []Span) string {
	if len(passB) == 0 {
		return ""
	}
	mid := (u.Start + u.End) / 2

	spans := make([]Span, len(passB))
	copy(spans, passB)
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })

	best := spans[0]
	bestDist := math.Abs(mid - (best.Start+best.End)/2)
	for _, span := range spans[1:] {
		dist := math.Abs(mid - (span.Start+span.End)/2)
		if dist < bestDist {
			best = span
			bestDist = dist
		}
	}
	return best.Speaker
}

func distinctSpeakers(spans []Span) int {
	seen := make(map[string]struct{})
	for _, span := range spans {
		if span.Speaker == "" {
			continue
		}
		seen[span.Speaker] = struct{}{}
	}
	return len(seen)
}
