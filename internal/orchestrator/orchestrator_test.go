package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("New with empty apiKey did not fail")
	}
}

func TestRegisterCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/register-call" {
			t.Errorf("path = %q, want /register-call", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.AgentID != "agent_42" {
			t.Errorf("agent_id = %q", req.AgentID)
		}
		if req.AudioWebsocketProtocol != ProtocolTwilio {
			t.Errorf("protocol = %q", req.AudioWebsocketProtocol)
		}
		if req.AudioEncoding != "mulaw" || req.SampleRate != 8000 {
			t.Errorf("encoding = %q rate = %d", req.AudioEncoding, req.SampleRate)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Call{
			CallID:     "call_abc",
			AgentID:    req.AgentID,
			CallStatus: "registered",
		})
	}))
	defer srv.Close()

	c, err := New("test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	call, err := c.RegisterCall(context.Background(), "agent_42", ProtocolTwilio)
	if err != nil {
		t.Fatalf("RegisterCall: %v", err)
	}
	if call.CallID != "call_abc" {
		t.Errorf("CallID = %q", call.CallID)
	}
	if call.CallStatus != "registered" {
		t.Errorf("CallStatus = %q", call.CallStatus)
	}
}

func TestRegisterCall_EmptyAgentID(t *testing.T) {
	c, _ := New("test-key")
	if _, err := c.RegisterCall(context.Background(), "", ProtocolWeb); err == nil {
		t.Fatal("RegisterCall with empty agentID did not fail")
	}
}

func TestRegisterCall_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _ := New("bad-key", WithBaseURL(srv.URL))
	if _, err := c.RegisterCall(context.Background(), "agent_42", ProtocolTwilio); err == nil {
		t.Fatal("RegisterCall did not surface the error status")
	}
}

func TestRegisterCall_MissingCallID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"agent_id": "agent_42"}`))
	}))
	defer srv.Close()

	c, _ := New("test-key", WithBaseURL(srv.URL))
	if _, err := c.RegisterCall(context.Background(), "agent_42", ProtocolTwilio); err == nil {
		t.Fatal("RegisterCall accepted a response without call_id")
	}
}
