// Package draft implements the streaming response-drafting engine.
//
// One Engine serves one call session. For each inbound [Request] the engine
// runs a drafting cycle: it formats the transcript into provider messages,
// opens a streaming completion, merges each delta event into a running
// accumulated message, and emits outbound [Frame] values in event-arrival
// order. When the model selects a tool invocation mid-stream the engine
// suspends content emission, executes the tool after the stream ends, and
// emits the rendered result as a single non-terminal frame.
//
// A cycle always reaches its finalize step, even when the provider stream
// fails to open or breaks mid-iteration: stream failures are logged and
// treated as "stream ended", never surfaced to the remote peer as an error
// frame.
//
// Engine is not safe for concurrent Draft calls. A session must process at
// most one cycle at a time; the transport layer serialises inbound requests
// by calling Draft from a single read loop.
package draft

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/voxgate/voxgate/internal/convo"
	"github.com/voxgate/voxgate/internal/observe"
	"github.com/voxgate/voxgate/internal/tool"
	"github.com/voxgate/voxgate/pkg/provider/llm"
)

// Generation policy for drafting cycles. These are product constants, not
// caller-configurable: voice responses must stay short, predictable, and
// non-repetitive.
const (
	maxTokens        = 200
	temperature      = 0.3
	frequencyPenalty = 1.0
)

// defaultGreeting is spoken when a session is established, before any inbound
// request is processed.
const defaultGreeting = "Hey there, how can I help you today?"

// Engine drives drafting cycles for a single call session.
type Engine struct {
	provider llm.Provider
	registry *tool.Registry
	persona  string
	greeting string
	metrics  *observe.Metrics
	session  *convo.SessionState
}

// Option is a functional option for configuring an Engine during construction.
type Option func(*Engine)

// WithPersona sets the role/persona description appended to the behavioural
// style policy in the system message.
func WithPersona(p string) Option {
	return func(e *Engine) { e.persona = p }
}

// WithGreeting overrides the greeting spoken on session establishment.
// An empty string is ignored so callers can pass an unset configuration value
// without wiping out the built-in default.
func WithGreeting(g string) Option {
	return func(e *Engine) {
		if g != "" {
			e.greeting = g
		}
	}
}

// WithMetrics overrides the metrics instance. Defaults to
// [observe.DefaultMetrics]. Primarily useful in tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New constructs an Engine for one call session backed by the given provider
// and tool registry. Options are applied after defaults.
func New(provider llm.Provider, registry *tool.Registry, opts ...Option) (*Engine, error) {
	if provider == nil {
		return nil, errors.New("draft: provider must not be nil")
	}
	if registry == nil {
		return nil, errors.New("draft: registry must not be nil")
	}
	e := &Engine{
		provider: provider,
		registry: registry,
		greeting: defaultGreeting,
		session:  &convo.SessionState{},
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e, nil
}

// Greet emits the session-begin greeting frame: response_id 0, the configured
// greeting text, content_complete true. Call exactly once per session, before
// processing any inbound request.
func (e *Engine) Greet(ctx context.Context, w FrameWriter) error {
	return e.emit(ctx, w, Frame{
		Content:         e.greeting,
		ContentComplete: true,
	}, "greeting")
}

// Draft runs one drafting cycle for req, writing outbound frames to w in
// generation order.
//
// An update_only request emits nothing: the transcript is observed for
// diagnostic deduplication and the cycle ends immediately. Otherwise the
// cycle always finishes with exactly one finalize-phase frame: a terminal
// empty frame when no tool call was detected, or at most one non-terminal
// tool-result frame when one was (none if the tool failed).
//
// The returned error is non-nil only for frame-write failures; provider and
// tool failures are logged and absorbed.
func (e *Engine) Draft(ctx context.Context, req Request, w FrameWriter) (err error) {
	ctx, span := observe.StartSpan(ctx, "draft.cycle",
		trace.WithAttributes(attribute.Int("response_id", req.ResponseID)))
	defer span.End()

	log := observe.Logger(ctx).With(slog.Int("response_id", req.ResponseID))

	if text, ok := convo.LastUser(req.Transcript); ok {
		if e.session.ObserveUser(text) {
			log.Info("user utterance", slog.String("text", text))
		}
	}
	if req.Interaction == convo.InteractionUpdateOnly {
		return nil
	}

	start := time.Now()
	defer func() {
		e.metrics.DraftDuration.Record(ctx, time.Since(start).Seconds())
	}()

	var (
		acc      = llm.Fields{}
		toolMode bool
	)

	// Finalizing is unconditional: it must run even when the stream fails to
	// open or breaks mid-iteration, so the cycle can never end without its
	// finalize-phase frame.
	defer func() {
		ferr := e.finalize(ctx, req, w, acc, toolMode, log)
		if err == nil {
			err = ferr
		}
	}()

	creq := llm.CompletionRequest{
		Messages:         convo.BuildMessages(e.persona, req.Transcript, req.Interaction),
		Tools:            e.registry.Definitions(),
		Temperature:      temperature,
		MaxTokens:        maxTokens,
		FrequencyPenalty: frequencyPenalty,
	}

	ch, serr := e.provider.StreamCompletion(ctx, creq)
	if serr != nil {
		e.metrics.RecordProviderError(ctx, "llm")
		log.Error("completion stream failed to open", slog.String("error", serr.Error()))
		return nil
	}

stream:
	for {
		select {
		case <-ctx.Done():
			go drainChunks(ch)
			break stream
		case chunk, ok := <-ch:
			if !ok {
				break stream
			}
			if chunk.FinishReason == llm.FinishError {
				e.metrics.RecordProviderError(ctx, "llm")
				log.Error("completion stream broke",
					slog.String("error", chunk.Delta.Text()))
				break stream
			}

			fragment := chunk.Delta.Text()
			acc = llm.Merge(acc, chunk.Delta)

			// The finish indicator is inspected before emission: once a tool
			// invocation is selected, no further content frames leave this
			// cycle.
			if chunk.FinishReason == llm.FinishToolCalls {
				toolMode = true
			}
			if !toolMode && fragment != "" {
				if werr := e.emit(ctx, w, Frame{
					ResponseID: req.ResponseID,
					Content:    fragment,
				}, "partial"); werr != nil {
					return werr
				}
			}
			if chunk.FinishReason != "" {
				break stream
			}
		}
	}
	return nil
}

// finalize closes the cycle. Tool branch: execute the accumulated invocation
// and emit its rendered result as one non-terminal frame (none on failure).
// No-tool branch: emit the single terminal empty frame.
func (e *Engine) finalize(ctx context.Context, req Request, w FrameWriter, acc llm.Fields, toolMode bool, log *slog.Logger) error {
	if !toolMode {
		return e.emit(ctx, w, Frame{
			ResponseID:      req.ResponseID,
			ContentComplete: true,
		}, "terminal")
	}

	calls := acc.ToolCalls()
	if len(calls) == 0 {
		log.Error("tool call signalled but no invocation accumulated")
		return nil
	}
	call := calls[0]

	start := time.Now()
	result, err := e.registry.Execute(ctx, call.Name, call.Arguments)
	e.metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		e.metrics.RecordToolCall(ctx, call.Name, "error")
		log.Error("tool execution failed",
			slog.String("tool", call.Name),
			slog.String("error", err.Error()))
		return nil
	}
	e.metrics.RecordToolCall(ctx, call.Name, "ok")

	return e.emit(ctx, w, Frame{
		ResponseID: req.ResponseID,
		Content:    result,
	}, "tool_result")
}

// emit writes f to w and records the frame metric on success.
func (e *Engine) emit(ctx context.Context, w FrameWriter, f Frame, kind string) error {
	if err := w.WriteFrame(ctx, f); err != nil {
		return fmt.Errorf("draft: write %s frame: %w", kind, err)
	}
	e.metrics.RecordFrame(ctx, kind)
	return nil
}

// drainChunks discards remaining chunks so the provider's stream goroutine
// does not block after the cycle abandons the channel.
func drainChunks(ch <-chan llm.Chunk) {
	for range ch {
	}
}
