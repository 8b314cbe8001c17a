package hookline

import (
	"time"

	"github.com/lunarispay/hookline/endpoint"
)

// Config holds the configuration for a Hookline instance.
type Config struct {
	// Concurrency is the number of delivery worker goroutines.
	Concurrency int

	// PollInterval is how often the engine sweeps for due deliveries.
	PollInterval time.Duration

	// BatchSize is the maximum number of deliveries claimed per sweep.
	BatchSize int

	// RequestTimeout is the HTTP timeout per delivery attempt.
	RequestTimeout time.Duration

	// ClaimTTL is the lease length placed on a claimed delivery. A worker
	// that dies mid-attempt releases its deliveries when the lease lapses.
	ClaimTTL time.Duration

	// RetryPolicy is the engine-wide default backoff policy. Endpoints may
	// carry their own override.
	RetryPolicy endpoint.RetryPolicy

	// DisableThreshold is the number of consecutive failed deliveries
	// after which an endpoint is automatically disabled. 0 disables the
	// health policy.
	DisableThreshold int

	// StrictCatalog rejects publishes whose event type is not registered.
	// Off by default: unknown types fan out without schema validation.
	StrictCatalog bool

	// ShutdownTimeout is the maximum time to wait for in-flight deliveries
	// on shutdown.
	ShutdownTimeout time.Duration

	// CacheTTL is the TTL for the catalog's in-memory event type cache.
	// Set to 0 to disable caching.
	CacheTTL time.Duration
}

// DefaultRetryPolicy is the default exponential backoff policy:
// 5s, 30s, 3m, 18m, capped at 2h.
var DefaultRetryPolicy = endpoint.RetryPolicy{
	MaxAttempts:  5,
	InitialDelay: 5 * time.Second,
	MaxDelay:     2 * time.Hour,
	Multiplier:   6,
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:      10,
		PollInterval:     1 * time.Second,
		BatchSize:        50,
		RequestTimeout:   30 * time.Second,
		ClaimTTL:         5 * time.Minute,
		RetryPolicy:      DefaultRetryPolicy,
		DisableThreshold: 20,
		ShutdownTimeout:  30 * time.Second,
		CacheTTL:         30 * time.Second,
	}
}
