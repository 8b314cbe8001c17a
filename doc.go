// Package hookline provides a composable outbound webhook delivery engine
// for Go.
//
// Hookline is a library — not a service. Import it into your application to
// get signed HTTP callbacks with durable retry: organization-scoped webhook
// endpoints, dynamic event type definitions, exponential backoff with
// per-endpoint overrides, and automatic disabling of chronically failing
// subscribers.
//
// Key features:
//   - HMAC-SHA256 signature on every delivery, verifiable by the receiver
//   - Composable store pattern with multiple backends (Postgres, SQLite, Redis, Memory)
//   - Claim-leased dispatch: concurrent workers never double-send a delivery
//   - Exponential backoff retries with a pure, capped delay function
//   - Endpoint health tracking with auto-disable and queue cancellation
//   - Per-endpoint rate limiting and custom headers
//
// Quick start:
//
//	h, err := hookline.New(
//	    hookline.WithStore(memoryStore),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	h.RegisterEventType(ctx, catalog.Definition{
//	    Name:    "invoice.paid",
//	    Version: "2026-01-01",
//	})
//
//	h.Endpoints().Create(ctx, endpoint.Input{
//	    OrgID:      "org_123",
//	    URL:        "https://example.com/hooks",
//	    EventTypes: []string{"invoice.*"},
//	})
//
//	h.Start(ctx)
//	h.Publish(ctx, "org_123", "invoice.paid", payload)
package hookline
