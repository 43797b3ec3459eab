// Package milestones tracks per-child developmental milestone progression
// against an embedded reference library. Evidence accumulates across
// sessions; promotion to achieved is one-way.
package milestones
