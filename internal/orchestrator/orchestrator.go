// Package orchestrator provides a client for the voice-AI orchestration
// service that turns an agent identifier into a live audio session.
//
// The bridge registers every inbound phone call with the orchestrator before
// answering it; the returned call descriptor carries the identifier used to
// match the subsequent transcript WebSocket to the call.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.retellai.com"

// AudioWebsocketProtocol identifies how audio reaches the orchestrator.
const (
	ProtocolTwilio = "twilio"
	ProtocolWeb    = "web"
)

// audioEncoding is the sample format used for telephony audio.
const audioEncoding = "mulaw"

// sampleRate is the telephony sample rate in Hz.
const sampleRate = 8000

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithBaseURL overrides the orchestration service API root. Useful for tests
// and self-hosted deployments.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Client calls the orchestration service REST API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// New creates an orchestrator Client. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("orchestrator: apiKey must not be empty")
	}
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// registerRequest is the JSON payload for the register-call endpoint.
type registerRequest struct {
	AgentID                string `json:"agent_id"`
	AudioWebsocketProtocol string `json:"audio_websocket_protocol"`
	AudioEncoding          string `json:"audio_encoding"`
	SampleRate             int    `json:"sample_rate"`
}

// Call is the session descriptor returned when a call is registered.
type Call struct {
	// CallID identifies the audio session. The transcript WebSocket connects
	// under this identifier.
	CallID string `json:"call_id"`

	// AgentID echoes the agent the call was registered for.
	AgentID string `json:"agent_id"`

	// CallStatus is the orchestrator's view of the call lifecycle
	// (e.g., "registered", "ongoing", "ended").
	CallStatus string `json:"call_status"`
}

// RegisterCall registers a new audio session for agentID using the given
// audio protocol (one of [ProtocolTwilio], [ProtocolWeb]) and returns the
// session descriptor.
func (c *Client) RegisterCall(ctx context.Context, agentID, protocol string) (*Call, error) {
	if agentID == "" {
		return nil, errors.New("orchestrator: agentID must not be empty")
	}

	body, err := json.Marshal(registerRequest{
		AgentID:                agentID,
		AudioWebsocketProtocol: protocol,
		AudioEncoding:          audioEncoding,
		SampleRate:             sampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: marshal register request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/register-call", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("orchestrator: register call: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: register call HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("orchestrator: register call: unexpected status %d", resp.StatusCode)
	}

	var call Call
	if err := json.NewDecoder(resp.Body).Decode(&call); err != nil {
		return nil, fmt.Errorf("orchestrator: register call decode: %w", err)
	}
	if call.CallID == "" {
		return nil, errors.New("orchestrator: register call: response missing call_id")
	}
	return &call, nil
}
