package hookline

import (
	"log/slog"
	"time"

	"github.com/lunarispay/hookline/catalog"
	"github.com/lunarispay/hookline/delivery"
	"github.com/lunarispay/hookline/endpoint"
	"github.com/lunarispay/hookline/observability"
	"github.com/lunarispay/hookline/store"
)

// Hookline is the root webhook delivery engine.
type Hookline struct {
	config      Config
	store       store.Store
	catalog     *catalog.Catalog
	validator   *catalog.Validator
	endpointSvc *endpoint.Service
	deliverySvc *delivery.Service
	engine      *delivery.Engine
	metrics     *observability.Metrics
	tracer      *observability.Tracer
	logger      *slog.Logger
}

// Option configures a Hookline instance.
type Option func(*Hookline) error

// New creates a new Hookline with the given options.
func New(opts ...Option) (*Hookline, error) {
	h := &Hookline{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}
	if h.store == nil {
		return nil, ErrNoStore
	}
	if !h.config.RetryPolicy.Valid() {
		return nil, ErrInvalidRetryPolicy
	}
	h.wireServices()
	return h, nil
}

// WithStore sets the persistence backend.
func WithStore(s store.Store) Option {
	return func(h *Hookline) error {
		h.store = s
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hookline) error {
		h.logger = logger
		return nil
	}
}

// WithConcurrency sets the number of delivery worker goroutines.
func WithConcurrency(n int) Option {
	return func(h *Hookline) error {
		h.config.Concurrency = n
		return nil
	}
}

// WithPollInterval sets how often the engine sweeps for due deliveries.
func WithPollInterval(d time.Duration) Option {
	return func(h *Hookline) error {
		h.config.PollInterval = d
		return nil
	}
}

// WithBatchSize sets the maximum number of deliveries claimed per sweep.
func WithBatchSize(n int) Option {
	return func(h *Hookline) error {
		h.config.BatchSize = n
		return nil
	}
}

// WithRequestTimeout sets the HTTP timeout per delivery attempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(h *Hookline) error {
		h.config.RequestTimeout = d
		return nil
	}
}

// WithClaimTTL sets the lease length placed on claimed deliveries.
func WithClaimTTL(d time.Duration) Option {
	return func(h *Hookline) error {
		h.config.ClaimTTL = d
		return nil
	}
}

// WithRetryPolicy sets the engine-wide default backoff policy.
func WithRetryPolicy(p endpoint.RetryPolicy) Option {
	return func(h *Hookline) error {
		h.config.RetryPolicy = p
		return nil
	}
}

// WithDisableThreshold sets how many consecutive failures disable an endpoint.
func WithDisableThreshold(n int) Option {
	return func(h *Hookline) error {
		h.config.DisableThreshold = n
		return nil
	}
}

// WithStrictCatalog rejects publishes of unregistered event types.
func WithStrictCatalog() Option {
	return func(h *Hookline) error {
		h.config.StrictCatalog = true
		return nil
	}
}

// WithShutdownTimeout sets the maximum wait for in-flight deliveries on shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(h *Hookline) error {
		h.config.ShutdownTimeout = d
		return nil
	}
}

// WithCacheTTL sets the TTL for the catalog's in-memory event type cache.
func WithCacheTTL(d time.Duration) Option {
	return func(h *Hookline) error {
		h.config.CacheTTL = d
		return nil
	}
}

// WithMetrics sets the Prometheus instruments recorded by the engine.
func WithMetrics(m *observability.Metrics) Option {
	return func(h *Hookline) error {
		h.metrics = m
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer for delivery spans.
func WithTracer(t *observability.Tracer) Option {
	return func(h *Hookline) error {
		h.tracer = t
		return nil
	}
}
