package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/lunarispay/hookline/id"
)

// Service exposes the delivery read surface and manual retry.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a delivery service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Get returns a delivery by ID.
func (s *Service) Get(ctx context.Context, delID id.ID) (*Delivery, error) {
	return s.store.GetDelivery(ctx, delID)
}

// ListByEndpoint returns delivery history for an endpoint.
func (s *Service) ListByEndpoint(ctx context.Context, epID id.ID, opts ListOpts) ([]*Delivery, error) {
	return s.store.ListByEndpoint(ctx, epID, opts)
}

// ListByOrg returns deliveries across an organization.
func (s *Service) ListByOrg(ctx context.Context, orgID string, opts ListOpts) ([]*Delivery, error) {
	return s.store.ListByOrg(ctx, orgID, opts)
}

// CountPending returns the number of deliveries awaiting attempt.
func (s *Service) CountPending(ctx context.Context) (int64, error) {
	return s.store.CountPending(ctx)
}

// Retry re-arms a failed delivery for an immediate attempt, or pulls a
// pending one out of its backoff wait. The attempt counter and last-attempt
// fields are preserved, so a re-armed failed delivery's next failure is
// terminal again.
func (s *Service) Retry(ctx context.Context, delID id.ID) error {
	if err := s.store.Rearm(ctx, delID, time.Now().UTC()); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "delivery re-armed", "delivery_id", delID)
	return nil
}
