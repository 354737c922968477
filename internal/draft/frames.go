package draft

import (
	"context"
	"fmt"

	"github.com/voxgate/voxgate/internal/convo"
)

// Request is one unit of work delivered to the drafting engine by the
// transport layer. It is consumed once and not retained beyond the cycle.
type Request struct {
	// ResponseID is an opaque correlation token assigned by the remote peer.
	// It is echoed back unchanged on every frame of the cycle.
	ResponseID int `json:"response_id"`

	// Transcript is the chronological conversation history. The engine reads
	// it, never mutates it.
	Transcript []convo.Turn `json:"transcript"`

	// Interaction selects the drafting behaviour for this request.
	Interaction convo.InteractionKind `json:"interaction_type"`
}

// Validate checks the wire-shape contract on a decoded request. The transport
// layer must reject anything that fails this check before handing the request
// to the engine.
func (r Request) Validate() error {
	if !r.Interaction.IsValid() {
		return fmt.Errorf("draft: unknown interaction_type %q", r.Interaction)
	}
	for i, t := range r.Transcript {
		if !t.Speaker.IsValid() {
			return fmt.Errorf("draft: transcript[%d]: unknown role %q", i, t.Speaker)
		}
	}
	return nil
}

// Frame is one discrete outbound unit sent to the remote peer.
//
// Within a drafting cycle every frame but the last has ContentComplete false;
// a no-tool cycle closes with exactly one frame where ContentComplete is true.
type Frame struct {
	// ResponseID is copied from the triggering request (0 for the greeting).
	ResponseID int `json:"response_id"`

	// Content is the speakable text fragment. May be empty on the terminal
	// frame.
	Content string `json:"content"`

	// ContentComplete is true only on the final frame of a cycle.
	ContentComplete bool `json:"content_complete"`

	// EndCall signals session termination to the remote peer. Reserved; the
	// engine never sets it.
	EndCall bool `json:"end_call"`
}

// FrameWriter delivers frames to the remote peer. Implementations must
// preserve emission order and must not batch or reorder frames.
type FrameWriter interface {
	WriteFrame(ctx context.Context, f Frame) error
}

// FrameWriterFunc adapts a function to the [FrameWriter] interface.
type FrameWriterFunc func(ctx context.Context, f Frame) error

// WriteFrame calls fn(ctx, f).
func (fn FrameWriterFunc) WriteFrame(ctx context.Context, f Frame) error {
	return fn(ctx, f)
}
