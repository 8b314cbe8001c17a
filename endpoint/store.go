package endpoint

import (
	"context"
	"time"

	"github.com/lunarispay/hookline/id"
)

// Store defines the persistence contract for webhook endpoints.
type Store interface {
	// CreateEndpoint persists a new endpoint.
	CreateEndpoint(ctx context.Context, ep *Endpoint) error

	// GetEndpoint returns an endpoint by ID.
	GetEndpoint(ctx context.Context, epID id.ID) (*Endpoint, error)

	// UpdateEndpoint modifies an existing endpoint.
	UpdateEndpoint(ctx context.Context, ep *Endpoint) error

	// DeleteEndpoint removes an endpoint.
	DeleteEndpoint(ctx context.Context, epID id.ID) error

	// ListEndpoints returns endpoints for an organization.
	ListEndpoints(ctx context.Context, orgID string, opts ListOpts) ([]*Endpoint, error)

	// ResolveSubscribed finds all ACTIVE endpoints of an organization whose
	// subscription patterns match the event type. This is the fan-out hot path.
	ResolveSubscribed(ctx context.Context, orgID string, eventType string) ([]*Endpoint, error)

	// SetStatus transitions an endpoint between active and disabled.
	// Reason is stored iff the new status is disabled.
	SetStatus(ctx context.Context, epID id.ID, status Status, reason string) error

	// RecordSuccess resets the consecutive failure counter and stamps
	// LastSuccessAt.
	RecordSuccess(ctx context.Context, epID id.ID, at time.Time) error

	// RecordFailure increments the consecutive failure counter, stamps
	// LastFailureAt, and returns the new counter value.
	RecordFailure(ctx context.Context, epID id.ID, at time.Time) (int, error)
}

// DeliveryCanceller cancels queued pending deliveries for an endpoint.
// Satisfied by the composite store; used when an endpoint is disabled or
// deleted so stale work never reaches a dead subscriber.
type DeliveryCanceller interface {
	CancelPending(ctx context.Context, epID id.ID) (int64, error)
}
