package convo

import "github.com/voxgate/voxgate/pkg/provider/llm"

// stylePolicy is the fixed behavioural instruction prepended to every
// completion request, ahead of the caller-supplied persona. It tunes the model
// for spoken, telephony-grade conversation.
const stylePolicy = `## Style guardrails
- Be concise: address one question or action at a time, without packing
  everything into a single reply.
- Do not repeat yourself: if a point needs restating, rephrase it. Vary
  sentence structure so responses never sound templated.
- Be conversational: speak like a human on the phone, with everyday words and
  the occasional natural filler. Keep it short and sincere.
- Be proactive: lead the conversation. End most turns with a question or a
  suggested next step.

## Transcription awareness
The user text is produced by a real-time speech recogniser and may contain
errors. If you can guess what the user meant, answer the intended question;
only ask for clarification when genuinely necessary. Never mention
"transcription error" explicitly.

## Role
`

// reminderPrompt is the synthetic user message appended when the transport
// signals that the caller has gone quiet and a nudge is required.
const reminderPrompt = "(The user has not responded in a while; produce a short reminder utterance.)"

// BuildMessages converts an ordered transcript into the role-tagged message
// sequence submitted to the completion provider.
//
// One system message (style policy + persona) is always prepended, then each
// turn maps 1:1 and order-preserving: agent turns become "assistant" messages,
// user turns become "user" messages. When kind is [InteractionReminder] one
// synthetic user message is appended after the transcript.
//
// BuildMessages is a pure function of its inputs and has no error conditions.
func BuildMessages(persona string, turns []Turn, kind InteractionKind) []llm.Message {
	messages := make([]llm.Message, 0, len(turns)+2)
	messages = append(messages, llm.Message{
		Role:    "system",
		Content: stylePolicy + persona,
	})

	for _, t := range turns {
		role := "user"
		if t.Speaker == SpeakerAgent {
			role = "assistant"
		}
		messages = append(messages, llm.Message{Role: role, Content: t.Text})
	}

	if kind == InteractionReminder {
		messages = append(messages, llm.Message{Role: "user", Content: reminderPrompt})
	}

	return messages
}
