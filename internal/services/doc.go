// Package services holds cross-cutting helpers shared by pipeline stages:
// the error taxonomy (sentinel markers consumed by the supervisor's retry
// classification) and context annotations for session, stage, and request
// correlation. Subpackages wrap the external reasoning and transcription
// providers behind narrow capability clients.
package services
