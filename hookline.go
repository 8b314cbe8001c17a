package hookline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lunarispay/hookline/catalog"
	"github.com/lunarispay/hookline/delivery"
	"github.com/lunarispay/hookline/endpoint"
	"github.com/lunarispay/hookline/id"
	"github.com/lunarispay/hookline/internal/entity"
	"github.com/lunarispay/hookline/ratelimit"
	"github.com/lunarispay/hookline/store"
)

// wireServices initializes the internal services after options have been applied.
func (h *Hookline) wireServices() {
	h.catalog = catalog.New(h.store, catalog.Config{
		CacheTTL: h.config.CacheTTL,
	}, h.logger)

	h.validator = catalog.NewValidator()

	h.endpointSvc = endpoint.NewService(h.store, h.store, endpoint.Config{
		DisableThreshold: h.config.DisableThreshold,
		Metrics:          h.metrics,
	}, h.logger)

	h.deliverySvc = delivery.NewService(h.store, h.logger)

	h.engine = delivery.NewEngine(h.store, h.endpointSvc, ratelimit.New(), delivery.EngineConfig{
		Concurrency:    h.config.Concurrency,
		PollInterval:   h.config.PollInterval,
		BatchSize:      h.config.BatchSize,
		RequestTimeout: h.config.RequestTimeout,
		ClaimTTL:       h.config.ClaimTTL,
		RetryPolicy:    h.config.RetryPolicy,
		Metrics:        h.metrics,
		Tracer:         h.tracer,
	}, h.logger)
}

// Start begins the delivery engine.
func (h *Hookline) Start(ctx context.Context) {
	h.engine.Start(ctx)
}

// Stop gracefully shuts down the delivery engine, waiting for in-flight
// deliveries up to the configured shutdown timeout.
func (h *Hookline) Stop(ctx context.Context) {
	if h.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.ShutdownTimeout)
		defer cancel()
	}
	h.engine.Stop(ctx)
}

// RegisterEventType registers a webhook event type definition in the catalog.
func (h *Hookline) RegisterEventType(ctx context.Context, def catalog.Definition) (*catalog.EventType, error) {
	return h.catalog.Register(ctx, def)
}

// Publish fans an event out to every active endpoint of the organization
// subscribed to its type, and returns the created delivery IDs.
//
// The critical path:
//  1. Look up the event type in the catalog. Unknown types are allowed
//     unless strict mode is on; deprecated types are always rejected.
//  2. Validate the payload against the type's JSON Schema, if one is set.
//  3. Resolve the organization's active endpoints matching the type.
//  4. Enqueue one delivery per endpoint, payload captured as-is.
//  5. Wake the engine so first attempts do not wait out a poll tick.
//
// No matching endpoints is not an error; it returns an empty list.
func (h *Hookline) Publish(ctx context.Context, orgID, eventType string, payload json.RawMessage) ([]id.ID, error) {
	et, err := h.catalog.Get(ctx, eventType)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		if h.config.StrictCatalog {
			return nil, fmt.Errorf("%w: %s", ErrEventTypeNotFound, eventType)
		}
		et = nil
	case err != nil:
		return nil, fmt.Errorf("hookline: look up event type: %w", err)
	case et.Deprecated:
		return nil, fmt.Errorf("%w: %s", ErrEventTypeDeprecated, eventType)
	}

	if et != nil && len(et.Definition.Schema) > 0 {
		if validateErr := h.validator.Validate(et.Definition.Schema, payload); validateErr != nil {
			return nil, fmt.Errorf("%w: %s", ErrPayloadValidationFailed, validateErr.Error())
		}
	}

	endpoints, err := h.endpointSvc.ResolveSubscribed(ctx, orgID, eventType)
	if err != nil {
		return nil, fmt.Errorf("hookline: resolve endpoints: %w", err)
	}
	if len(endpoints) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	deliveries := make([]*delivery.Delivery, 0, len(endpoints))
	ids := make([]id.ID, 0, len(endpoints))
	for _, ep := range endpoints {
		d := &delivery.Delivery{
			Entity:        entity.New(),
			ID:            id.NewDeliveryID(),
			EndpointID:    ep.ID,
			OrgID:         orgID,
			EventType:     eventType,
			Payload:       payload,
			Status:        delivery.StatusPending,
			NextAttemptAt: now,
		}
		deliveries = append(deliveries, d)
		ids = append(ids, d.ID)
	}

	if err := h.store.EnqueueBatch(ctx, deliveries); err != nil {
		return nil, fmt.Errorf("hookline: enqueue deliveries: %w", err)
	}

	if h.metrics != nil {
		h.metrics.EventsPublished.Inc()
		h.metrics.PendingDeliveries.Add(float64(len(deliveries)))
	}

	h.logger.DebugContext(ctx, "event published",
		"org_id", orgID,
		"type", eventType,
		"endpoints", len(endpoints),
	)

	h.engine.Wake()
	return ids, nil
}

// RetryDelivery re-arms a failed delivery for an immediate attempt and
// wakes the engine.
func (h *Hookline) RetryDelivery(ctx context.Context, delID id.ID) error {
	if err := h.deliverySvc.Retry(ctx, delID); err != nil {
		return err
	}
	h.engine.Wake()
	return nil
}

// Endpoints returns the endpoint management service.
func (h *Hookline) Endpoints() *endpoint.Service {
	return h.endpointSvc
}

// Deliveries returns the delivery history and retry service.
func (h *Hookline) Deliveries() *delivery.Service {
	return h.deliverySvc
}

// Catalog returns the event type catalog.
func (h *Hookline) Catalog() *catalog.Catalog {
	return h.catalog
}

// Store returns the underlying store.
func (h *Hookline) Store() store.Store {
	return h.store
}
