package catalog

import (
	"errors"
	"time"

	"github.com/lunarispay/hookline/id"
	"github.com/lunarispay/hookline/internal/entity"
)

// ErrNotFound is returned when an event type is not registered in the catalog.
var ErrNotFound = errors.New("catalog: event type not found")

// ErrDeprecated is returned when publishing an event of a deprecated type.
var ErrDeprecated = errors.New("catalog: event type is deprecated")

// EventType is a registered event type: a Definition plus identity and state.
type EventType struct {
	entity.Entity

	// ID is the unique TypeID for this event type.
	ID id.ID `json:"id"`

	// Definition is the event type descriptor.
	Definition Definition `json:"definition"`

	// Deprecated marks a soft-deleted event type. Deprecated types reject
	// new publishes but keep their history intact.
	Deprecated bool `json:"deprecated"`

	// DeprecatedAt is when the event type was deprecated.
	DeprecatedAt *time.Time `json:"deprecated_at,omitempty"`
}

// ListOpts configures filtering and pagination for event type listing.
type ListOpts struct {
	Offset            int
	Limit             int
	Group             string
	IncludeDeprecated bool
}
