// Package merge reconciles two independent transcription passes of the same
// recording into a single speaker-labeled utterance sequence. Pass A favors
// text fidelity and supplies the utterance text and timing; pass B favors
// speaker separation and supplies the labels via temporal overlap voting.
package merge
