// Package telephony provides a client for the telephony provider that bridges
// phone calls into audio sessions.
//
// The API follows the Twilio REST conventions: form-encoded POST requests
// authenticated with HTTP basic auth (account SID / auth token). The bridge
// uses it to place outbound calls, hand an in-progress call to a human agent,
// and hang up.
package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.twilio.com"

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithBaseURL overrides the telephony API root. Useful for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Client calls the telephony provider REST API.
type Client struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	httpClient *http.Client
}

// New creates a telephony Client. accountSID and authToken must be non-empty;
// fromNumber is the E.164 caller ID used for outbound calls.
func New(accountSID, authToken, fromNumber string, opts ...Option) (*Client, error) {
	if accountSID == "" || authToken == "" {
		return nil, errors.New("telephony: accountSID and authToken must not be empty")
	}
	c := &Client{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// CallInfo is the provider's record of one phone call.
type CallInfo struct {
	// SID is the provider-assigned call identifier.
	SID string `json:"sid"`

	// Status is the call lifecycle state (e.g., "queued", "in-progress",
	// "completed").
	Status string `json:"status"`
}

// CreateCall places an outbound call to toNumber. The provider fetches call
// instructions from twimlURL once the callee answers.
func (c *Client) CreateCall(ctx context.Context, toNumber, twimlURL string) (*CallInfo, error) {
	if toNumber == "" {
		return nil, errors.New("telephony: toNumber must not be empty")
	}
	form := url.Values{}
	form.Set("To", toNumber)
	form.Set("From", c.fromNumber)
	form.Set("Url", twimlURL)
	return c.postCall(ctx, c.callsPath(), form, "create call")
}

// TransferCall redirects an in-progress call to a human agent at destNumber.
// The provider replaces the live audio session with a plain dial leg.
func (c *Client) TransferCall(ctx context.Context, callSID, destNumber string) error {
	if callSID == "" {
		return errors.New("telephony: callSID must not be empty")
	}
	form := url.Values{}
	form.Set("Twiml", fmt.Sprintf("<Response><Dial>%s</Dial></Response>", destNumber))
	_, err := c.postCall(ctx, c.callPath(callSID), form, "transfer call")
	return err
}

// EndCall hangs up an in-progress call.
func (c *Client) EndCall(ctx context.Context, callSID string) error {
	if callSID == "" {
		return errors.New("telephony: callSID must not be empty")
	}
	form := url.Values{}
	form.Set("Status", "completed")
	_, err := c.postCall(ctx, c.callPath(callSID), form, "end call")
	return err
}

// postCall issues one form-encoded POST against path and decodes the returned
// call record.
func (c *Client) postCall(ctx context.Context, path string, form url.Values, op string) (*CallInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("telephony: %s: %w", op, err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telephony: %s HTTP: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("telephony: %s: unexpected status %d", op, resp.StatusCode)
	}

	var info CallInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("telephony: %s decode: %w", op, err)
	}
	return &info, nil
}

func (c *Client) callsPath() string {
	return fmt.Sprintf("/2010-04-01/Accounts/%s/Calls.json", c.accountSID)
}

func (c *Client) callPath(callSID string) string {
	return fmt.Sprintf("/2010-04-01/Accounts/%s/Calls/%s.json", c.accountSID, callSID)
}

// StreamTwiML renders the call-instruction document that connects an answered
// call's audio to the orchestrator session identified by callID.
func StreamTwiML(wsHost, callID string) string {
	return fmt.Sprintf(
		`<?xml version="1.0" encoding="UTF-8"?><Response><Connect><Stream url="wss://%s/audio-websocket/%s" /></Connect></Response>`,
		wsHost, callID,
	)
}
