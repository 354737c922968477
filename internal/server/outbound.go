package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/voxgate/voxgate/internal/callstore"
	"github.com/voxgate/voxgate/internal/orchestrator"
	"github.com/voxgate/voxgate/internal/telephony"
)

// OutboundDialer places phone calls through a telephony provider.
// *telephony.Client satisfies this interface.
type OutboundDialer interface {
	CreateCall(ctx context.Context, toNumber, twimlURL string) (*telephony.CallInfo, error)
}

// WithDialer enables the outbound calling endpoint.
func WithDialer(d OutboundDialer) Option {
	return func(srv *Server) { srv.dialer = d }
}

type outboundRequest struct {
	ToNumber string `json:"to_number"`
}

type outboundResponse struct {
	CallID      string `json:"call_id"`
	ProviderSID string `json:"provider_sid"`
}

// handleOutboundCall registers a session with the orchestrator and dials the
// requested number. When the callee answers, the telephony provider fetches
// TwiML from /twiml/{call_id} and starts streaming audio.
func (s *Server) handleOutboundCall(w http.ResponseWriter, r *http.Request) {
	if s.dialer == nil || s.registrar == nil {
		http.Error(w, "outbound calling is not configured", http.StatusServiceUnavailable)
		return
	}

	var req outboundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ToNumber == "" {
		http.Error(w, "to_number is required", http.StatusBadRequest)
		return
	}

	call, err := s.registrar.RegisterCall(r.Context(), s.agentID, orchestrator.ProtocolTwilio)
	if err != nil {
		slog.Error("call registration failed", slog.String("error", err.Error()))
		http.Error(w, "call registration failed", http.StatusBadGateway)
		return
	}
	log := slog.With(slog.String("call_id", call.CallID), slog.String("to", req.ToNumber))

	twimlURL := "https://" + r.Host + "/twiml/" + call.CallID
	info, err := s.dialer.CreateCall(r.Context(), req.ToNumber, twimlURL)
	if err != nil {
		log.Error("outbound dial failed", slog.String("error", err.Error()))
		http.Error(w, "outbound dial failed", http.StatusBadGateway)
		return
	}
	log.Info("outbound call placed", slog.String("provider_sid", info.SID))

	if s.calls != nil {
		rec := &callstore.CallRecord{
			CallID:      call.CallID,
			AgentID:     s.agentID,
			Direction:   callstore.DirectionOutbound,
			ToNumber:    req.ToNumber,
			ProviderSID: info.SID,
			Status:      callstore.StatusRegistered,
		}
		if err := s.calls.Create(r.Context(), rec); err != nil {
			log.Warn("call record creation failed", slog.String("error", err.Error()))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(outboundResponse{CallID: call.CallID, ProviderSID: info.SID}); err != nil {
		log.Error("response encode failed", slog.String("error", err.Error()))
	}
}

// handleTwiML serves the stream instructions the telephony provider fetches
// when an outbound call is answered.
func (s *Server) handleTwiML(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("call_id")
	if callID == "" {
		http.Error(w, "missing call id", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	if _, err := w.Write([]byte(telephony.StreamTwiML(s.audioHost, callID))); err != nil {
		slog.Error("twiml write failed", slog.String("call_id", callID), slog.String("error", err.Error()))
	}
}
