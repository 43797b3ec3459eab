// Package pipeline supervises session analysis. Workers claim pending
// sessions and drive them through transcription, role classification, and
// behavior coding with a bounded retry budget, then run profile and milestone
// enrichment as non-fatal follow-ups. Only this package moves sessions
// between statuses.
package pipeline
