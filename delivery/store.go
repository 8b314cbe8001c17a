package delivery

import (
	"context"
	"time"

	"github.com/lunarispay/hookline/id"
)

// Store defines the persistence contract for webhook deliveries.
type Store interface {
	// Enqueue creates a pending delivery.
	Enqueue(ctx context.Context, d *Delivery) error

	// EnqueueBatch creates multiple deliveries atomically (fan-out).
	EnqueueBatch(ctx context.Context, ds []*Delivery) error

	// ClaimDue leases up to limit due pending deliveries for exclusive
	// processing until now+ttl. A delivery whose previous claim expired is
	// due again; implementations must ensure no two claimants hold the
	// same delivery at once (e.g. SKIP LOCKED).
	ClaimDue(ctx context.Context, limit int, ttl time.Duration) ([]*Delivery, error)

	// Finalize persists the outcome recorded on d: status, attempt count,
	// next attempt time, and last-attempt fields. The write applies only
	// while the row is still pending; ErrStale is returned when another
	// actor already moved it.
	Finalize(ctx context.Context, d *Delivery) error

	// Rearm transitions a failed delivery back to pending with an
	// immediate next attempt, or pulls forward an unclaimed pending
	// delivery waiting out its backoff. The attempt counter is preserved.
	// Returns ErrNotRetryable for terminal completed/cancelled rows and
	// for pending rows with a live claim.
	Rearm(ctx context.Context, delID id.ID, at time.Time) error

	// CancelPending cancels all pending deliveries for an endpoint and
	// returns how many were cancelled. Claimed rows are cancelled too; the
	// holder's Finalize then reports ErrStale.
	CancelPending(ctx context.Context, epID id.ID) (int64, error)

	// GetDelivery returns a delivery by ID.
	GetDelivery(ctx context.Context, delID id.ID) (*Delivery, error)

	// ListByEndpoint returns delivery history for an endpoint.
	ListByEndpoint(ctx context.Context, epID id.ID, opts ListOpts) ([]*Delivery, error)

	// ListByOrg returns deliveries across an organization.
	ListByOrg(ctx context.Context, orgID string, opts ListOpts) ([]*Delivery, error)

	// CountPending returns the number of deliveries awaiting attempt.
	CountPending(ctx context.Context) (int64, error)
}
