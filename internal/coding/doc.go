// Package coding implements the behavior coding stage: every adult utterance
// receives one tag from a fixed ten-code taxonomy, and the session stores the
// derived aggregate counts and overall score.
package coding
