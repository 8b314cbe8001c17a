// Package catalog manages the registry of publishable event types,
// subscription pattern matching, and optional payload schema validation.
package catalog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lunarispay/hookline/id"
	"github.com/lunarispay/hookline/internal/entity"
)

// Catalog is the cached service for managing event types. Reads on the
// publish hot path hit an in-memory cache with a configurable TTL.
type Catalog struct {
	store    Store
	cache    map[string]*EventType
	cacheTTL time.Duration
	lastLoad time.Time
	mu       sync.RWMutex
	logger   *slog.Logger
}

// Config configures the catalog service.
type Config struct {
	// CacheTTL bounds staleness of the in-memory cache. 0 disables caching.
	CacheTTL time.Duration
}

// New creates a Catalog backed by the given store.
func New(store Store, cfg Config, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		store:    store,
		cache:    make(map[string]*EventType),
		cacheTTL: cfg.CacheTTL,
		logger:   logger,
	}
}

// Register registers or updates an event type definition.
func (c *Catalog) Register(ctx context.Context, def Definition) (*EventType, error) {
	et := &EventType{
		Entity:     entity.New(),
		ID:         id.NewEventTypeID(),
		Definition: def,
	}

	if err := c.store.RegisterType(ctx, et); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[def.Name] = et
	c.mu.Unlock()

	return et, nil
}

// Get returns an event type by name, using the cache when fresh.
func (c *Catalog) Get(ctx context.Context, name string) (*EventType, error) {
	c.mu.RLock()
	if et, ok := c.cache[name]; ok && !c.cacheExpired() {
		c.mu.RUnlock()
		return et, nil
	}
	c.mu.RUnlock()

	et, err := c.store.GetType(ctx, name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[name] = et
	c.lastLoad = time.Now()
	c.mu.Unlock()

	return et, nil
}

// List returns registered event types.
func (c *Catalog) List(ctx context.Context, opts ListOpts) ([]*EventType, error) {
	return c.store.ListTypes(ctx, opts)
}

// Deprecate soft-deletes an event type and evicts it from cache.
func (c *Catalog) Deprecate(ctx context.Context, name string) error {
	if err := c.store.DeprecateType(ctx, name); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.cache, name)
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "event type deprecated", "name", name)
	return nil
}

func (c *Catalog) cacheExpired() bool {
	if c.cacheTTL <= 0 {
		return true
	}
	return time.Since(c.lastLoad) > c.cacheTTL
}
