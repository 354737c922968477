// Package callstore persists call lifecycle records: which calls were
// registered, for which agent, and how they ended. Conversation content is
// never stored here; transcripts live only in the active session.
package callstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Call direction values.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Call status values, in lifecycle order.
const (
	StatusRegistered = "registered"
	StatusOngoing    = "ongoing"
	StatusEnded      = "ended"
)

// CallRecord is one persisted call.
type CallRecord struct {
	// CallID is the orchestrator session identifier.
	CallID string

	// AgentID is the agent the call was registered for.
	AgentID string

	// Direction is [DirectionInbound] or [DirectionOutbound].
	Direction string

	// FromNumber and ToNumber are the E.164 endpoints of the call. Either may
	// be empty for web sessions.
	FromNumber string
	ToNumber   string

	// ProviderSID is the telephony provider's call identifier, when the call
	// came through the phone network.
	ProviderSID string

	// Status is the current lifecycle state.
	Status string

	// EndedAt is set when the call reaches [StatusEnded].
	EndedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks that the record is storable.
func (r *CallRecord) Validate() error {
	var errs []error
	if r.CallID == "" {
		errs = append(errs, errors.New("callstore: call_id must not be empty"))
	}
	switch r.Direction {
	case DirectionInbound, DirectionOutbound:
	default:
		errs = append(errs, fmt.Errorf("callstore: direction must be %q or %q", DirectionInbound, DirectionOutbound))
	}
	switch r.Status {
	case "", StatusRegistered, StatusOngoing, StatusEnded:
	default:
		errs = append(errs, fmt.Errorf("callstore: unknown status %q", r.Status))
	}
	return errors.Join(errs...)
}

// Store provides persistence for call lifecycle records.
// Implementations must be safe for concurrent use.
type Store interface {
	// Create inserts a new call record. The record is validated before
	// insertion. Returns an error if the call ID already exists.
	Create(ctx context.Context, rec *CallRecord) error

	// Get retrieves a call record by ID. Returns (nil, nil) if not found.
	Get(ctx context.Context, callID string) (*CallRecord, error)

	// UpdateStatus transitions the call to status. Moving to [StatusEnded]
	// also stamps EndedAt. Returns an error if the call is not found.
	UpdateStatus(ctx context.Context, callID, status string) error

	// List returns call records for agentID, most recent first. An empty
	// agentID returns all records.
	List(ctx context.Context, agentID string) ([]CallRecord, error)
}
