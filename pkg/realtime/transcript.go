package realtime

import (
	"log/slog"
	"strings"

	"github.com/antzucaro/matchr"
)

// transcriptDivergenceRatio is the edit-distance fraction above which the
// accumulated assistant deltas and the authoritative final transcript are
// considered to disagree. Small disagreements are normal (whitespace,
// punctuation reflow); large ones indicate dropped delta events and are
// worth a log line.
const transcriptDivergenceRatio = 0.2

// transcriptBuffer accumulates partial user and assistant text for exactly
// one turn. It is owned by the session event loop and needs no locking.
type transcriptBuffer struct {
	userText      string
	assistantText string

	// assistantFinal marks that an authoritative final transcript replaced
	// the delta accumulation; later deltas for the same turn are stale and
	// ignored.
	assistantFinal bool
}

// setUserFinal overwrites the user text with the final transcription.
// Finals never concatenate: a repeated final event replaces, not doubles.
func (b *transcriptBuffer) setUserFinal(text string) {
	b.userText = text
}

// addAssistantDelta appends one streamed transcript chunk.
func (b *transcriptBuffer) addAssistantDelta(text string) {
	if b.assistantFinal {
		return
	}
	b.assistantText += text
}

// setAssistantFinal replaces any accumulated deltas with the authoritative
// full transcript, so a final that repeats already-streamed content cannot
// duplicate it.
func (b *transcriptBuffer) setAssistantFinal(text string) {
	if accumulated := b.assistantText; accumulated != "" && text != "" {
		if d := divergence(accumulated, text); d > transcriptDivergenceRatio {
			slog.Debug("assistant transcript diverged from accumulated deltas",
				"divergence", d,
				"accumulated_len", len(accumulated),
				"final_len", len(text),
			)
		}
	}
	b.assistantText = text
	b.assistantFinal = true
}

// snapshot returns the current buffer contents without consuming them.
func (b *transcriptBuffer) snapshot() (userText, assistantText string) {
	return b.userText, b.assistantText
}

// finalize returns the buffered text and atomically resets the buffer for
// the next turn.
func (b *transcriptBuffer) finalize() (userText, assistantText string) {
	userText, assistantText = b.userText, b.assistantText
	b.reset()
	return userText, assistantText
}

// reset discards the buffer, used directly when a response fails or is
// cancelled mid-turn.
func (b *transcriptBuffer) reset() {
	*b = transcriptBuffer{}
}

// divergence returns the normalised Damerau-Levenshtein distance between the
// two strings in [0, 1].
func divergence(a, b string) float64 {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 0
	}
	dist := matchr.DamerauLevenshtein(a, b)
	return float64(dist) / float64(longest)
}
