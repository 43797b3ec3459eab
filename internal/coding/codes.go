package coding

// Behavior codes applied to adult utterances. The taxonomy is fixed; any tag
// outside it invalidates the coding response.
const (
	CodeLabeledPraise         = "labeled_praise"
	CodeUnlabeledPraise       = "unlabeled_praise"
	CodeBehavioralDescription = "behavioral_description"
	CodeReflection            = "reflection"
	CodeNegativeTalk          = "negative_talk"
	CodeDirectCommand         = "direct_command"
	CodeIndirectCommand       = "indirect_command"
	CodeQuestion              = "question"
	CodeAcknowledgment        = "acknowledgment"
	CodeIdle                  = "idle"
)

var allCodes = []string{
	CodeLabeledPraise,
	CodeUnlabeledPraise,
	CodeBehavioralDescription,
	CodeReflection,
	CodeNegativeTalk,
	CodeDirectCommand,
	CodeIndirectCommand,
	CodeQuestion,
	CodeAcknowledgment,
	CodeIdle,
}

var codeSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(allCodes))
	for _, code := range allCodes {
		set[code] = struct{}{}
	}
	return set
}()

// AllCodes returns the ordered taxonomy.
func AllCodes() []string {
	cp := make([]string, len(allCodes))
	copy(cp, allCodes)
	return cp
}

// ValidCode reports whether a tag belongs to the taxonomy.
func ValidCode(tag string) bool {
	_, ok := codeSet[tag]
	return ok
}
