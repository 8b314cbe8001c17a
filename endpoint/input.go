package endpoint

// Input is the creation/update payload for endpoints.
type Input struct {
	// OrgID identifies the owning organization.
	OrgID string `json:"org_id"`

	// URL is the webhook delivery URL.
	URL string `json:"url"`

	// Description is a human-readable description.
	Description string `json:"description"`

	// Secret is the HMAC signing secret. Auto-generated if empty on create.
	Secret string `json:"secret"`

	// EventTypes are subscription patterns. At least one required on create.
	EventTypes []string `json:"event_types"`

	// Headers are custom HTTP headers sent with each delivery.
	Headers map[string]string `json:"headers,omitempty"`

	// RetryPolicy overrides the engine-wide retry policy when set.
	RetryPolicy *RetryPolicy `json:"retry_policy,omitempty"`

	// RateLimit is the maximum delivery attempts per second. 0 means unlimited.
	RateLimit int `json:"rate_limit"`
}

// ValidationError indicates invalid endpoint input.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return "endpoint validation: " + e.Field + ": " + e.Message
}
