package coding

// Aggregate is the derived per-session count summary stored alongside the
// session and served in reports.
type Aggregate struct {
	Echo            int `json:"echo"`
	LabeledPraise   int `json:"labeled_praise"`
	UnlabeledPraise int `json:"unlabeled_praise"`
	Praise          int `json:"praise"`
	Narration       int `json:"narration"`
	DirectCommand   int `json:"direct_command"`
	IndirectCommand int `json:"indirect_command"`
	Command         int `json:"command"`
	Question        int `json:"question"`
	Criticism       int `json:"criticism"`
	Neutral         int `json:"neutral"`
	AdultUtterances int `json:"adult_utterances"`
}

// Recompute derives the aggregate from a set of behavior tags. It is pure:
// recomputing from the stored per-utterance tags must reproduce the stored
// aggregate exactly.
func Recompute(tags []string) Aggregate {
	var agg Aggregate
	for _, tag := range tags {
		agg.AdultUtterances++
		switch tag {
		case CodeReflection:
			agg.Echo++
		case CodeLabeledPraise:
			agg.LabeledPraise++
		case CodeUnlabeledPraise:
			agg.UnlabeledPraise++
		case CodeBehavioralDescription:
			agg.Narration++
		case CodeDirectCommand:
			agg.DirectCommand++
		case CodeIndirectCommand:
			agg.IndirectCommand++
		case CodeQuestion:
			agg.Question++
		case CodeNegativeTalk:
			agg.Criticism++
		case CodeAcknowledgment, CodeIdle:
			agg.Neutral++
		}
	}
	agg.Praise = agg.LabeledPraise + agg.UnlabeledPraise
	agg.Command = agg.DirectCommand + agg.IndirectCommand
	return agg
}

// Score converts an aggregate into the 0-100 session score: positive codes
// add weight, criticism and commands subtract, normalized over the adult
// utterance count. An empty session scores 50.
func Score(agg Aggregate) int {
	if agg.AdultUtterances == 0 {
		return 50
	}
	positive := 2*agg.LabeledPraise + agg.UnlabeledPraise + 2*agg.Echo + agg.Narration
	negative := 2*agg.Criticism + agg.Command
	raw := 50 + 50*(positive-negative)/agg.AdultUtterances
	if raw < 0 {
		return 0
	}
	if raw > 100 {
		return 100
	}
	return raw
}
