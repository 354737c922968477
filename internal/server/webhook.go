package server

import (
	"log/slog"
	"net/http"

	"github.com/voxgate/voxgate/internal/callstore"
	"github.com/voxgate/voxgate/internal/orchestrator"
	"github.com/voxgate/voxgate/internal/telephony"
)

// handleVoiceWebhook answers a telephony provider's inbound-call webhook. It
// registers a session with the orchestrator, records the call, and replies
// with TwiML that streams the call audio to the orchestrator.
func (s *Server) handleVoiceWebhook(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent_id")
	log := slog.With(slog.String("agent_id", agentID))

	if s.registrar == nil {
		http.Error(w, "call registration is not configured", http.StatusServiceUnavailable)
		return
	}
	if agentID != s.agentID {
		http.Error(w, "unknown agent", http.StatusNotFound)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed webhook payload", http.StatusBadRequest)
		return
	}

	call, err := s.registrar.RegisterCall(r.Context(), agentID, orchestrator.ProtocolTwilio)
	if err != nil {
		log.Error("call registration failed", slog.String("error", err.Error()))
		http.Error(w, "call registration failed", http.StatusBadGateway)
		return
	}
	log = log.With(slog.String("call_id", call.CallID))
	log.Info("inbound call registered",
		slog.String("from", r.PostFormValue("From")),
		slog.String("to", r.PostFormValue("To")))

	if s.calls != nil {
		rec := &callstore.CallRecord{
			CallID:      call.CallID,
			AgentID:     agentID,
			Direction:   callstore.DirectionInbound,
			FromNumber:  r.PostFormValue("From"),
			ToNumber:    r.PostFormValue("To"),
			ProviderSID: r.PostFormValue("CallSid"),
			Status:      callstore.StatusRegistered,
		}
		if err := s.calls.Create(r.Context(), rec); err != nil {
			log.Warn("call record creation failed", slog.String("error", err.Error()))
		}
	}

	w.Header().Set("Content-Type", "text/xml")
	if _, err := w.Write([]byte(telephony.StreamTwiML(s.audioHost, call.CallID))); err != nil {
		log.Error("webhook response write failed", slog.String("error", err.Error()))
	}
}
