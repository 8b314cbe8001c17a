package catalog

import "encoding/json"

// Definition is the canonical description of a publishable event type.
// Definitions are registered at boot or through an admin surface and give
// operators a catalog of what the system can emit, optionally with a payload
// schema enforced at publish time.
type Definition struct {
	// Name is the dot-separated event type name.
	// Convention: "<resource>.<action>" — e.g. "invoice.paid", "subscription.canceled".
	Name string `json:"name"`

	// Description explains when this event fires.
	Description string `json:"description"`

	// Group is an optional category for organizing event types.
	Group string `json:"group,omitempty"`

	// Schema is an optional JSON Schema describing the payload shape.
	// When set, Publish validates the event payload against it.
	Schema json.RawMessage `json:"schema,omitempty"`

	// Version is the API version of this event type, e.g. "2026-01-01".
	Version string `json:"version"`

	// Example is an optional example payload for documentation.
	Example json.RawMessage `json:"example,omitempty"`
}
