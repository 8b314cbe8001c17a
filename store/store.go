// Package store defines the composite Store interface for all persistence.
//
// Each subsystem defines its own store interface and the aggregate Store
// composes them; drivers implement the whole surface.
package store

import (
	"context"
	"errors"

	"github.com/lunarispay/hookline/catalog"
	"github.com/lunarispay/hookline/delivery"
	"github.com/lunarispay/hookline/endpoint"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Store is the aggregate persistence interface.
type Store interface {
	catalog.Store
	endpoint.Store
	delivery.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}
