package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/voxgate/voxgate/internal/callstore"
	"github.com/voxgate/voxgate/internal/draft"
)

// maxRequestBytes caps inbound transcript messages. Long calls stay well under
// this; anything larger is a misbehaving peer.
const maxRequestBytes = 1 << 20

// wsFrameWriter serializes response frames onto the session WebSocket.
type wsFrameWriter struct {
	conn *websocket.Conn
}

func (w *wsFrameWriter) WriteFrame(ctx context.Context, f draft.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return w.conn.Write(ctx, websocket.MessageText, data)
}

// handleTranscriptWS owns one call session. It greets the caller, then reads
// drafting requests and runs them synchronously so response cycles for a
// session never interleave.
func (s *Server) handleTranscriptWS(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("call_id")
	log := slog.With(slog.String("call_id", callID))

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Error("websocket accept failed", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxRequestBytes)

	ctx := r.Context()
	s.metrics.ActiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveSessions.Add(ctx, -1)
	log.Info("session started")
	s.markCall(ctx, callID, callstore.StatusOngoing, log)
	defer func() {
		s.markCall(context.WithoutCancel(ctx), callID, callstore.StatusEnded, log)
		log.Info("session ended")
	}()

	eng, err := draft.New(s.provider, s.tools,
		draft.WithPersona(s.persona),
		draft.WithGreeting(s.greeting),
		draft.WithMetrics(s.metrics),
	)
	if err != nil {
		log.Error("engine setup failed", slog.String("error", err.Error()))
		conn.Close(websocket.StatusInternalError, "engine setup failed")
		return
	}

	writer := &wsFrameWriter{conn: conn}
	if err := eng.Greet(ctx, writer); err != nil {
		log.Error("greeting failed", slog.String("error", err.Error()))
		return
	}

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			// Peer hang-up or context cancellation ends the session.
			log.Debug("session read ended", slog.String("reason", err.Error()))
			return
		}
		if typ != websocket.MessageText {
			conn.Close(websocket.StatusUnsupportedData, "binary messages are not supported")
			return
		}

		var req draft.Request
		if err := json.Unmarshal(data, &req); err != nil {
			conn.Close(websocket.StatusPolicyViolation, "malformed request")
			return
		}
		if err := req.Validate(); err != nil {
			conn.Close(websocket.StatusPolicyViolation, err.Error())
			return
		}

		if err := eng.Draft(ctx, req, writer); err != nil {
			log.Error("drafting cycle failed", slog.String("error", err.Error()))
			return
		}
	}
}

// markCall records a call lifecycle transition when persistence is enabled.
// Store failures are logged and never interrupt the session.
func (s *Server) markCall(ctx context.Context, callID, status string, log *slog.Logger) {
	if s.calls == nil || callID == "" {
		return
	}
	if err := s.calls.UpdateStatus(ctx, callID, status); err != nil {
		log.Warn("call status update failed",
			slog.String("status", status),
			slog.String("error", err.Error()))
	}
}
