// Package transcription implements the pipeline stage that transcribes
// session audio, reconciles the text and speaker passes, and stores the
// resulting timeline with synthesized silence markers.
package transcription
