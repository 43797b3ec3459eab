// Package transcriber uploads session audio to a speech-to-text endpoint
// and converts the segmented response into timed speaker spans.
package transcriber
