// Package llm defines the Provider interface for Large Language Model backends
// and the field-delta accumulation model used by streaming consumers.
//
// An LLM provider wraps a remote or local model API (e.g., OpenAI GPT-4o, a
// local Ollama instance) and exposes a uniform streaming interface so the
// voxgate drafting engine can consume completions without coupling to any
// specific SDK.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends or
// when the supplied context is cancelled.
package llm

import "context"

// FinishReason values reported on the final chunk of a stream.
const (
	// FinishStop signals a natural end of generation.
	FinishStop = "stop"

	// FinishToolCalls signals that the model selected one or more tool
	// invocations instead of (or in addition to) free text.
	FinishToolCalls = "tool_calls"

	// FinishError is a provider-internal convention: errors that occur after
	// the stream channel has been opened are surfaced as a chunk with this
	// finish reason and the error text in the "content" delta field.
	FinishError = "error"
)

// CompletionRequest carries everything the LLM needs to produce a response.
// Callers should treat a zero-value request as invalid; at minimum Messages
// must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the "user" role and drives the response.
	Messages []Message

	// Tools is the set of function/tool definitions offered to the model. The
	// model may choose to call one of them in its response.
	Tools []ToolDefinition

	// Temperature controls output randomness in the range [0.0, 2.0]. Lower
	// values produce more deterministic outputs.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int

	// FrequencyPenalty discourages verbatim repetition in the range
	// [-2.0, 2.0]. Zero means no penalty.
	FrequencyPenalty float64
}

// Chunk is a single incremental event emitted by a streaming completion.
//
// Delta carries the raw field-shaped fragment for this event, in the shape the
// wire protocol uses ("content" text fragments, an indexed "tool_calls"
// object, and so on). Consumers accumulate chunks with [Merge]; a single chunk
// may carry a delta, a finish signal, or both.
type Chunk struct {
	// Delta is the partial field set carried by this event. May be empty when
	// the chunk only carries a FinishReason.
	Delta Fields

	// FinishReason is set on the final chunk and indicates why generation
	// stopped. Empty on non-final chunks. See the Finish* constants.
	FinishReason string
}

// Provider is the abstraction over any streaming LLM backend.
//
// Implementations must be safe for concurrent use from multiple goroutines and
// must propagate context cancellation promptly: when ctx is cancelled the
// stream channel must be closed as quickly as possible.
type Provider interface {
	// StreamCompletion sends req to the model and returns a read-only channel
	// that emits Chunk values as they arrive. The channel is closed by the
	// implementation when generation finishes or when ctx is cancelled.
	//
	// Callers must drain the channel to avoid goroutine leaks. Errors that
	// occur after the channel is opened are surfaced as a Chunk with
	// FinishReason [FinishError]; the initial error return is non-nil only for
	// failures that prevent the stream from starting (e.g., invalid
	// credentials, malformed request).
	//
	// The returned channel must never be nil when error is nil.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)
}
