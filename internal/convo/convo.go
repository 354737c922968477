// Package convo models the conversation transcript exchanged with the remote
// peer and formats it into the message sequence a completion provider expects.
package convo

// Speaker identifies who produced a transcript turn.
type Speaker string

const (
	// SpeakerAgent marks an utterance spoken by the voice agent.
	SpeakerAgent Speaker = "agent"

	// SpeakerUser marks an utterance spoken by the human caller.
	SpeakerUser Speaker = "user"
)

// IsValid reports whether s is a recognised speaker.
func (s Speaker) IsValid() bool {
	return s == SpeakerAgent || s == SpeakerUser
}

// Turn is one utterance in a conversation transcript. Turns are immutable once
// appended; the caller owns the transcript and this package only reads it.
type Turn struct {
	// Speaker is who said it.
	Speaker Speaker `json:"role"`

	// Text is the utterance content.
	Text string `json:"content"`
}

// InteractionKind tells the drafting engine why an inbound request was sent.
type InteractionKind string

const (
	// InteractionNormal requests a regular response to the transcript.
	InteractionNormal InteractionKind = "normal"

	// InteractionReminder requests a reminder-style utterance because the
	// caller has gone quiet.
	InteractionReminder InteractionKind = "reminder_required"

	// InteractionUpdateOnly delivers a transcript update that must not
	// trigger a response.
	InteractionUpdateOnly InteractionKind = "update_only"
)

// IsValid reports whether k is a recognised interaction kind.
func (k InteractionKind) IsValid() bool {
	switch k {
	case InteractionNormal, InteractionReminder, InteractionUpdateOnly:
		return true
	}
	return false
}
