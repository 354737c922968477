package convo

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// repeatThreshold is the Jaro-Winkler similarity above which a new user
// utterance counts as a repeat of the previous one. Speech recognisers often
// re-finalise the same sentence with small differences in punctuation or
// casing; those must not be logged twice.
const repeatThreshold = 0.93

// SessionState holds the per-call mutable fields owned by one session's
// drafting engine. It is created when the session is established and discarded
// when the session ends.
//
// SessionState is owned exclusively by its session and must not be shared
// across sessions; the engine accesses it from a single goroutine.
type SessionState struct {
	lastLoggedUserUtterance string
	seen                    bool
}

// ObserveUser records the latest user utterance and reports whether it differs
// from the previously observed one. The comparison is deliberately looser than
// plain inequality: an utterance whose Jaro-Winkler similarity to the previous
// one reaches [repeatThreshold] counts as unchanged and returns false, so
// genuinely different but very similar utterances are also suppressed. A true
// result means the utterance has not been logged yet and diagnostic emission
// should proceed; the utterance is remembered either way.
func (s *SessionState) ObserveUser(text string) bool {
	fresh := !s.seen || !isRepeat(s.lastLoggedUserUtterance, text)
	s.lastLoggedUserUtterance = text
	s.seen = true
	return fresh
}

// isRepeat reports whether next is the same utterance as prev, allowing for
// recogniser jitter.
func isRepeat(prev, next string) bool {
	a := strings.ToLower(strings.TrimSpace(prev))
	b := strings.ToLower(strings.TrimSpace(next))
	if a == b {
		return true
	}
	if a == "" || b == "" {
		return false
	}
	return matchr.JaroWinkler(a, b, true) >= repeatThreshold
}

// LastUser returns the most recent user turn in turns, or "" when the
// transcript contains no user turn.
func LastUser(turns []Turn) (string, bool) {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Speaker == SpeakerUser {
			return turns[i].Text, true
		}
	}
	return "", false
}
