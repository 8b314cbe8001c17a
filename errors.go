package hookline

import (
	"errors"

	"github.com/lunarispay/hookline/catalog"
	"github.com/lunarispay/hookline/delivery"
	"github.com/lunarispay/hookline/endpoint"
	"github.com/lunarispay/hookline/store"
)

// Sentinel errors returned by Hookline operations. Subsystem sentinels are
// re-exported here so callers can match without importing every package.
var (
	// ErrNoStore is returned when a Hookline is created without a store.
	ErrNoStore = errors.New("hookline: store is required")

	// ErrInvalidRetryPolicy is returned when the configured default retry
	// policy is malformed.
	ErrInvalidRetryPolicy = errors.New("hookline: invalid retry policy")

	// ErrEventTypeNotFound is returned by strict-mode publishes of
	// unregistered event types.
	ErrEventTypeNotFound = catalog.ErrNotFound

	// ErrEventTypeDeprecated is returned when publishing a deprecated type.
	ErrEventTypeDeprecated = catalog.ErrDeprecated

	// ErrPayloadValidationFailed is returned when a payload fails JSON
	// Schema validation.
	ErrPayloadValidationFailed = errors.New("hookline: payload validation failed")

	// ErrEndpointNotFound is returned when an endpoint cannot be found.
	ErrEndpointNotFound = endpoint.ErrNotFound

	// ErrDeliveryNotFound is returned when a delivery cannot be found.
	ErrDeliveryNotFound = delivery.ErrNotFound

	// ErrDeliveryStale is returned when a conditional delivery mutation
	// loses a race against another actor.
	ErrDeliveryStale = delivery.ErrStale

	// ErrDeliveryNotRetryable is returned when retrying a delivery that is
	// not in the failed state.
	ErrDeliveryNotRetryable = delivery.ErrNotRetryable

	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = store.ErrClosed
)
