// Package roles implements the pipeline stage that maps diarized speaker
// labels to ADULT and CHILD roles with one reasoning call per session.
package roles
