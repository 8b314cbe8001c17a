package endpoint

import (
	"errors"
	"time"

	"github.com/lunarispay/hookline/id"
	"github.com/lunarispay/hookline/internal/entity"
)

// ErrNotFound is returned when an endpoint cannot be found.
var ErrNotFound = errors.New("endpoint: not found")

// Status is the lifecycle state of an endpoint.
type Status string

const (
	// StatusActive means the endpoint receives new deliveries.
	StatusActive Status = "active"

	// StatusDisabled means the endpoint receives no new deliveries and its
	// queued pending deliveries have been cancelled.
	StatusDisabled Status = "disabled"
)

// Endpoint is a registered webhook delivery target owned by an organization.
type Endpoint struct {
	entity.Entity

	// ID is the unique TypeID for this endpoint.
	ID id.ID `json:"id"`

	// OrgID identifies the organization that owns this endpoint.
	OrgID string `json:"org_id"`

	// URL is the webhook delivery URL.
	URL string `json:"url"`

	// Description is a human-readable description of this endpoint.
	Description string `json:"description"`

	// Secret is the HMAC signing secret. Never serialized.
	Secret string `json:"-"`

	// EventTypes are subscription patterns for event types
	// ("invoice.paid", "invoice.*", "*"). Always non-empty.
	EventTypes []string `json:"event_types"`

	// Headers are custom HTTP headers sent with each delivery.
	Headers map[string]string `json:"headers,omitempty"`

	// Status is active or disabled.
	Status Status `json:"status"`

	// DisabledReason explains why the endpoint is disabled. Set iff disabled.
	DisabledReason string `json:"disabled_reason,omitempty"`

	// ConsecutiveFailures counts failed delivery attempts since the last
	// success. Crossing the configured threshold auto-disables the endpoint.
	ConsecutiveFailures int `json:"consecutive_failures"`

	// LastSuccessAt is when a delivery to this endpoint last succeeded.
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`

	// LastFailureAt is when a delivery attempt to this endpoint last failed.
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`

	// RetryPolicy overrides the engine-wide retry policy when set.
	RetryPolicy *RetryPolicy `json:"retry_policy,omitempty"`

	// RateLimit is the maximum delivery attempts per second. 0 means unlimited.
	RateLimit int `json:"rate_limit"`
}

// Active reports whether the endpoint may receive new deliveries.
func (ep *Endpoint) Active() bool {
	return ep.Status == StatusActive
}

// ListOpts configures filtering and pagination for endpoint listing.
type ListOpts struct {
	Offset int
	Limit  int
	Status *Status
}
