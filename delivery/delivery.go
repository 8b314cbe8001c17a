package delivery

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/lunarispay/hookline/id"
	"github.com/lunarispay/hookline/internal/entity"
)

var (
	// ErrNotFound is returned when a delivery does not exist.
	ErrNotFound = errors.New("delivery not found")

	// ErrStale is returned when a conditional mutation loses a race: the
	// delivery is no longer pending, or the caller's claim has lapsed.
	ErrStale = errors.New("delivery state is stale")

	// ErrNotRetryable is returned when Retry is called on a delivery that
	// is not in a terminal failed state.
	ErrNotRetryable = errors.New("delivery is not in a retryable state")
)

// Status represents the lifecycle state of a delivery.
type Status string

const (
	// StatusPending indicates the delivery is queued awaiting an attempt.
	StatusPending Status = "pending"

	// StatusCompleted indicates the endpoint acknowledged the delivery.
	StatusCompleted Status = "completed"

	// StatusFailed indicates the delivery exhausted its retry budget.
	StatusFailed Status = "failed"

	// StatusCancelled indicates the delivery was withdrawn before
	// completion, typically because its endpoint was disabled or deleted.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether a status admits no further attempts.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Delivery represents one webhook payload bound for one endpoint.
type Delivery struct {
	entity.Entity

	// ID is the unique TypeID for this delivery.
	ID id.ID `json:"id"`

	// EndpointID references the target endpoint.
	EndpointID id.ID `json:"endpoint_id"`

	// OrgID scopes the delivery to the publishing organization.
	OrgID string `json:"org_id"`

	// EventType is the dotted event type name this delivery carries.
	EventType string `json:"event_type"`

	// Payload is the JSON body captured at publish time. It is sent
	// verbatim; later event mutations never affect queued deliveries.
	Payload json.RawMessage `json:"payload"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// AttemptCount is the number of attempts made so far.
	AttemptCount int `json:"attempt_count"`

	// NextAttemptAt is when the delivery becomes due.
	NextAttemptAt time.Time `json:"next_attempt_at"`

	// ClaimedUntil is the lease deadline of the worker currently
	// processing the delivery; nil when unclaimed.
	ClaimedUntil *time.Time `json:"claimed_until,omitempty"`

	// LastStatusCode is the HTTP status from the most recent attempt.
	LastStatusCode int `json:"last_status_code,omitempty"`

	// LastResponse is the response body from the most recent attempt,
	// capped at 1KB.
	LastResponse string `json:"last_response,omitempty"`

	// LastError holds the transport error from the most recent attempt.
	LastError string `json:"last_error,omitempty"`

	// LastLatencyMs is the round-trip time of the most recent attempt.
	LastLatencyMs int `json:"last_latency_ms,omitempty"`

	// CompletedAt is when the delivery reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ListOpts configures filtering and pagination for delivery listing.
type ListOpts struct {
	Offset int
	Limit  int
	Status *Status
}
