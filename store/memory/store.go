// Package memory provides an in-memory Store implementation for unit testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lunarispay/hookline/catalog"
	"github.com/lunarispay/hookline/delivery"
	"github.com/lunarispay/hookline/endpoint"
	"github.com/lunarispay/hookline/id"
	hookstore "github.com/lunarispay/hookline/store"
)

// compile-time interface check.
var _ hookstore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store for testing.
type Store struct {
	mu sync.RWMutex

	eventTypes     map[string]*catalog.EventType // keyed by name
	eventTypesByID map[string]*catalog.EventType // keyed by ID string
	endpoints      map[string]*endpoint.Endpoint // keyed by ID string
	deliveries     map[string]*delivery.Delivery // keyed by ID string

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		eventTypes:     make(map[string]*catalog.EventType),
		eventTypesByID: make(map[string]*catalog.EventType),
		endpoints:      make(map[string]*endpoint.Endpoint),
		deliveries:     make(map[string]*delivery.Delivery),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return hookstore.ErrClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// catalog.Store
// ──────────────────────────────────────────────────

// RegisterType creates or updates an event type definition (upsert by name).
func (s *Store) RegisterType(_ context.Context, et *catalog.EventType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.eventTypes[et.Definition.Name]; ok {
		existing.Definition = et.Definition
		existing.Deprecated = false
		existing.DeprecatedAt = nil
		existing.UpdatedAt = time.Now().UTC()
		et.ID = existing.ID
		return nil
	}

	cp := *et
	s.eventTypes[et.Definition.Name] = &cp
	s.eventTypesByID[et.ID.String()] = &cp
	return nil
}

// GetType returns an event type by name.
func (s *Store) GetType(_ context.Context, name string) (*catalog.EventType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	et, ok := s.eventTypes[name]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	cp := *et
	return &cp, nil
}

// ListTypes returns registered event types, optionally filtered.
func (s *Store) ListTypes(_ context.Context, opts catalog.ListOpts) ([]*catalog.EventType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*catalog.EventType, 0, len(s.eventTypes))
	for _, et := range s.eventTypes {
		if !opts.IncludeDeprecated && et.Deprecated {
			continue
		}
		if opts.Group != "" && et.Definition.Group != opts.Group {
			continue
		}
		cp := *et
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Definition.Name < result[j].Definition.Name
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// DeprecateType soft-deletes an event type.
func (s *Store) DeprecateType(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	et, ok := s.eventTypes[name]
	if !ok {
		return catalog.ErrNotFound
	}

	now := time.Now().UTC()
	et.Deprecated = true
	et.DeprecatedAt = &now
	et.UpdatedAt = now
	return nil
}

// ──────────────────────────────────────────────────
// endpoint.Store
// ──────────────────────────────────────────────────

// CreateEndpoint persists a new endpoint.
func (s *Store) CreateEndpoint(_ context.Context, ep *endpoint.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *ep
	s.endpoints[ep.ID.String()] = &cp
	return nil
}

// GetEndpoint returns an endpoint by ID.
func (s *Store) GetEndpoint(_ context.Context, epID id.ID) (*endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ep, ok := s.endpoints[epID.String()]
	if !ok {
		return nil, endpoint.ErrNotFound
	}
	cp := *ep
	return &cp, nil
}

// UpdateEndpoint modifies an existing endpoint.
func (s *Store) UpdateEndpoint(_ context.Context, ep *endpoint.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.endpoints[ep.ID.String()]; !ok {
		return endpoint.ErrNotFound
	}
	cp := *ep
	cp.UpdatedAt = time.Now().UTC()
	s.endpoints[ep.ID.String()] = &cp
	return nil
}

// DeleteEndpoint removes an endpoint.
func (s *Store) DeleteEndpoint(_ context.Context, epID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.endpoints[epID.String()]; !ok {
		return endpoint.ErrNotFound
	}
	delete(s.endpoints, epID.String())
	return nil
}

// ListEndpoints returns endpoints for an organization, optionally filtered.
func (s *Store) ListEndpoints(_ context.Context, orgID string, opts endpoint.ListOpts) ([]*endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*endpoint.Endpoint, 0, len(s.endpoints))
	for _, ep := range s.endpoints {
		if ep.OrgID != orgID {
			continue
		}
		if opts.Status != nil && ep.Status != *opts.Status {
			continue
		}
		cp := *ep
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// ResolveSubscribed finds all active endpoints of an organization whose
// subscription patterns match the event type.
func (s *Store) ResolveSubscribed(_ context.Context, orgID string, eventType string) ([]*endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*endpoint.Endpoint
	for _, ep := range s.endpoints {
		if ep.OrgID != orgID || ep.Status != endpoint.StatusActive {
			continue
		}
		for _, pattern := range ep.EventTypes {
			if catalog.Match(pattern, eventType) {
				cp := *ep
				result = append(result, &cp)
				break
			}
		}
	}
	return result, nil
}

// SetStatus transitions an endpoint between active and disabled.
func (s *Store) SetStatus(_ context.Context, epID id.ID, status endpoint.Status, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ep, ok := s.endpoints[epID.String()]
	if !ok {
		return endpoint.ErrNotFound
	}
	ep.Status = status
	if status == endpoint.StatusActive {
		ep.DisabledReason = ""
		ep.ConsecutiveFailures = 0
	} else {
		ep.DisabledReason = reason
	}
	ep.UpdatedAt = time.Now().UTC()
	return nil
}

// RecordSuccess resets the consecutive failure counter.
func (s *Store) RecordSuccess(_ context.Context, epID id.ID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ep, ok := s.endpoints[epID.String()]
	if !ok {
		return endpoint.ErrNotFound
	}
	ep.ConsecutiveFailures = 0
	ep.LastSuccessAt = &at
	ep.UpdatedAt = time.Now().UTC()
	return nil
}

// RecordFailure increments the consecutive failure counter and returns the
// new value.
func (s *Store) RecordFailure(_ context.Context, epID id.ID, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ep, ok := s.endpoints[epID.String()]
	if !ok {
		return 0, endpoint.ErrNotFound
	}
	ep.ConsecutiveFailures++
	ep.LastFailureAt = &at
	ep.UpdatedAt = time.Now().UTC()
	return ep.ConsecutiveFailures, nil
}

// ──────────────────────────────────────────────────
// delivery.Store
// ──────────────────────────────────────────────────

// Enqueue creates a pending delivery.
func (s *Store) Enqueue(_ context.Context, d *delivery.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *d
	s.deliveries[d.ID.String()] = &cp
	return nil
}

// EnqueueBatch creates multiple deliveries atomically.
func (s *Store) EnqueueBatch(_ context.Context, ds []*delivery.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range ds {
		cp := *d
		s.deliveries[d.ID.String()] = &cp
	}
	return nil
}

// ClaimDue leases due pending deliveries until now+ttl. A row whose
// previous claim expired is eligible again. Returns copies so callers can
// mutate without holding the lock.
func (s *Store) ClaimDue(_ context.Context, limit int, ttl time.Duration) ([]*delivery.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	candidates := make([]*delivery.Delivery, 0, len(s.deliveries))

	for _, d := range s.deliveries {
		if d.Status != delivery.StatusPending {
			continue
		}
		if d.NextAttemptAt.After(now) {
			continue
		}
		if d.ClaimedUntil != nil && d.ClaimedUntil.After(now) {
			continue
		}
		candidates = append(candidates, d)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].NextAttemptAt.Before(candidates[j].NextAttemptAt)
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	deadline := now.Add(ttl)
	claimed := make([]*delivery.Delivery, 0, len(candidates))
	for _, d := range candidates {
		d.ClaimedUntil = &deadline
		cp := *d
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

// Finalize applies the outcome recorded on d iff the stored row is still
// pending.
func (s *Store) Finalize(_ context.Context, d *delivery.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.deliveries[d.ID.String()]
	if !ok {
		return delivery.ErrNotFound
	}
	if stored.Status != delivery.StatusPending {
		return delivery.ErrStale
	}

	cp := *d
	cp.UpdatedAt = time.Now().UTC()
	s.deliveries[d.ID.String()] = &cp
	return nil
}

// Rearm transitions a failed delivery back to pending, or pulls forward a
// pending delivery waiting out its backoff. The attempt counter and
// last-attempt fields are preserved.
func (s *Store) Rearm(_ context.Context, delID id.ID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deliveries[delID.String()]
	if !ok {
		return delivery.ErrNotFound
	}

	now := time.Now().UTC()
	switch d.Status {
	case delivery.StatusFailed:
	case delivery.StatusPending:
		// A live claim means an attempt is in flight.
		if d.ClaimedUntil != nil && d.ClaimedUntil.After(now) {
			return delivery.ErrNotRetryable
		}
	default:
		return delivery.ErrNotRetryable
	}

	d.Status = delivery.StatusPending
	d.NextAttemptAt = at
	d.ClaimedUntil = nil
	d.CompletedAt = nil
	d.UpdatedAt = now
	return nil
}

// CancelPending cancels all pending deliveries for an endpoint, claimed
// rows included.
func (s *Store) CancelPending(_ context.Context, epID id.ID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var n int64
	for _, d := range s.deliveries {
		if d.EndpointID.String() != epID.String() || d.Status != delivery.StatusPending {
			continue
		}
		d.Status = delivery.StatusCancelled
		d.CompletedAt = &now
		d.ClaimedUntil = nil
		d.UpdatedAt = now
		n++
	}
	return n, nil
}

// GetDelivery returns a delivery by ID.
func (s *Store) GetDelivery(_ context.Context, delID id.ID) (*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.deliveries[delID.String()]
	if !ok {
		return nil, delivery.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

// ListByEndpoint returns delivery history for an endpoint, newest first.
func (s *Store) ListByEndpoint(_ context.Context, epID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*delivery.Delivery, 0, len(s.deliveries))
	for _, d := range s.deliveries {
		if d.EndpointID.String() != epID.String() {
			continue
		}
		if opts.Status != nil && d.Status != *opts.Status {
			continue
		}
		cp := *d
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// ListByOrg returns deliveries across an organization, newest first.
func (s *Store) ListByOrg(_ context.Context, orgID string, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*delivery.Delivery, 0, len(s.deliveries))
	for _, d := range s.deliveries {
		if d.OrgID != orgID {
			continue
		}
		if opts.Status != nil && d.Status != *opts.Status {
			continue
		}
		cp := *d
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// CountPending returns the number of deliveries awaiting attempt.
func (s *Store) CountPending(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, d := range s.deliveries {
		if d.Status == delivery.StatusPending {
			n++
		}
	}
	return n, nil
}

func applyPagination[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
