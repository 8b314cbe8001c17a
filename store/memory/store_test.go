package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lunarispay/hookline/delivery"
	"github.com/lunarispay/hookline/endpoint"
	"github.com/lunarispay/hookline/id"
	"github.com/lunarispay/hookline/internal/entity"
	"github.com/lunarispay/hookline/store/memory"
)

func newPendingDelivery(epID id.ID) *delivery.Delivery {
	return &delivery.Delivery{
		Entity:        entity.New(),
		ID:            id.NewDeliveryID(),
		EndpointID:    epID,
		OrgID:         "org_1",
		EventType:     "invoice.paid",
		Payload:       []byte(`{"amount":100}`),
		Status:        delivery.StatusPending,
		NextAttemptAt: time.Now().UTC().Add(-time.Second),
	}
}

func TestClaimDueLeasesExclusively(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	epID := id.NewEndpointID()
	d := newPendingDelivery(epID)
	if err := store.Enqueue(ctx, d); err != nil {
		t.Fatal(err)
	}

	first, err := store.ClaimDue(ctx, 10, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 {
		t.Fatalf("first claim: got %d deliveries, want 1", len(first))
	}
	if first[0].ClaimedUntil == nil {
		t.Fatal("claimed delivery has no lease deadline")
	}

	// A second sweep must not see the leased row.
	second, err := store.ClaimDue(ctx, 10, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 0 {
		t.Fatalf("second claim: got %d deliveries, want 0", len(second))
	}
}

func TestClaimDueReclaimsExpiredLease(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	d := newPendingDelivery(id.NewEndpointID())
	if err := store.Enqueue(ctx, d); err != nil {
		t.Fatal(err)
	}

	if _, err := store.ClaimDue(ctx, 10, 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	reclaimed, err := store.ClaimDue(ctx, 10, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(reclaimed) != 1 {
		t.Fatalf("got %d deliveries after lease expiry, want 1", len(reclaimed))
	}
}

func TestClaimDueSkipsNotYetDue(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	d := newPendingDelivery(id.NewEndpointID())
	d.NextAttemptAt = time.Now().UTC().Add(time.Hour)
	if err := store.Enqueue(ctx, d); err != nil {
		t.Fatal(err)
	}

	claimed, err := store.ClaimDue(ctx, 10, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 0 {
		t.Fatalf("got %d deliveries, want 0", len(claimed))
	}
}

func TestClaimDueOrdersByDueTime(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	epID := id.NewEndpointID()
	older := newPendingDelivery(epID)
	older.NextAttemptAt = time.Now().UTC().Add(-time.Hour)
	newer := newPendingDelivery(epID)

	if err := store.EnqueueBatch(ctx, []*delivery.Delivery{newer, older}); err != nil {
		t.Fatal(err)
	}

	claimed, err := store.ClaimDue(ctx, 1, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 1 {
		t.Fatalf("got %d deliveries, want 1", len(claimed))
	}
	if claimed[0].ID.String() != older.ID.String() {
		t.Fatal("expected the longest-due delivery first")
	}
}

func TestFinalizeRejectsStaleWrite(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	epID := id.NewEndpointID()
	d := newPendingDelivery(epID)
	if err := store.Enqueue(ctx, d); err != nil {
		t.Fatal(err)
	}

	claimed, err := store.ClaimDue(ctx, 1, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	held := claimed[0]

	// The endpoint gets disabled mid-flight and its queue is cancelled.
	if n, err := store.CancelPending(ctx, epID); err != nil || n != 1 {
		t.Fatalf("CancelPending = %d, %v", n, err)
	}

	now := time.Now().UTC()
	held.Status = delivery.StatusCompleted
	held.CompletedAt = &now
	if err := store.Finalize(ctx, held); !errors.Is(err, delivery.ErrStale) {
		t.Fatalf("Finalize after cancel = %v, want ErrStale", err)
	}

	got, err := store.GetDelivery(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != delivery.StatusCancelled {
		t.Fatalf("status = %q, want cancelled", got.Status)
	}
}

func TestFinalizePersistsOutcome(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	d := newPendingDelivery(id.NewEndpointID())
	if err := store.Enqueue(ctx, d); err != nil {
		t.Fatal(err)
	}

	claimed, err := store.ClaimDue(ctx, 1, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	held := claimed[0]

	now := time.Now().UTC()
	held.Status = delivery.StatusCompleted
	held.AttemptCount = 1
	held.LastStatusCode = 200
	held.CompletedAt = &now
	held.ClaimedUntil = nil
	if err := store.Finalize(ctx, held); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetDelivery(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != delivery.StatusCompleted {
		t.Fatalf("status = %q, want completed", got.Status)
	}
	if got.AttemptCount != 1 || got.LastStatusCode != 200 {
		t.Fatalf("attempt fields not persisted: %+v", got)
	}
	if got.CompletedAt == nil {
		t.Fatal("CompletedAt not persisted")
	}
}

func TestRearmFailedDelivery(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	d := newPendingDelivery(id.NewEndpointID())
	d.Status = delivery.StatusFailed
	d.AttemptCount = 4
	now := time.Now().UTC()
	d.CompletedAt = &now
	if err := store.Enqueue(ctx, d); err != nil {
		t.Fatal(err)
	}

	if err := store.Rearm(ctx, d.ID, now); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetDelivery(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != delivery.StatusPending {
		t.Fatalf("status = %q, want pending", got.Status)
	}
	if got.AttemptCount != 4 {
		t.Fatalf("attempt count = %d, want 4 (preserved)", got.AttemptCount)
	}
	if got.CompletedAt != nil {
		t.Fatal("CompletedAt not cleared")
	}
}

func TestRearmPullsPendingForward(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	d := newPendingDelivery(id.NewEndpointID())
	d.NextAttemptAt = time.Now().UTC().Add(time.Hour)
	if err := store.Enqueue(ctx, d); err != nil {
		t.Fatal(err)
	}

	at := time.Now().UTC()
	if err := store.Rearm(ctx, d.ID, at); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetDelivery(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.NextAttemptAt.After(at) {
		t.Fatalf("next attempt = %v, want pulled forward to %v", got.NextAttemptAt, at)
	}
}

func TestRearmRejectsNonRetryable(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	// A claimed pending delivery is in flight.
	claimed := newPendingDelivery(id.NewEndpointID())
	if err := store.Enqueue(ctx, claimed); err != nil {
		t.Fatal(err)
	}
	if _, err := store.ClaimDue(ctx, 10, time.Minute); err != nil {
		t.Fatal(err)
	}
	err := store.Rearm(ctx, claimed.ID, time.Now().UTC())
	if !errors.Is(err, delivery.ErrNotRetryable) {
		t.Fatalf("Rearm on claimed pending = %v, want ErrNotRetryable", err)
	}

	done := newPendingDelivery(id.NewEndpointID())
	done.Status = delivery.StatusCompleted
	if err := store.Enqueue(ctx, done); err != nil {
		t.Fatal(err)
	}
	err = store.Rearm(ctx, done.ID, time.Now().UTC())
	if !errors.Is(err, delivery.ErrNotRetryable) {
		t.Fatalf("Rearm on completed = %v, want ErrNotRetryable", err)
	}

	if err := store.Rearm(ctx, id.NewDeliveryID(), time.Now().UTC()); !errors.Is(err, delivery.ErrNotFound) {
		t.Fatalf("Rearm on missing = %v, want ErrNotFound", err)
	}
}

func TestCancelPendingScopesToEndpoint(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	target := id.NewEndpointID()
	other := id.NewEndpointID()
	ds := []*delivery.Delivery{
		newPendingDelivery(target),
		newPendingDelivery(target),
		newPendingDelivery(other),
	}
	if err := store.EnqueueBatch(ctx, ds); err != nil {
		t.Fatal(err)
	}

	n, err := store.CancelPending(ctx, target)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("cancelled %d, want 2", n)
	}

	untouched, err := store.GetDelivery(ctx, ds[2].ID)
	if err != nil {
		t.Fatal(err)
	}
	if untouched.Status != delivery.StatusPending {
		t.Fatalf("other endpoint's delivery = %q, want pending", untouched.Status)
	}

	pending, err := store.CountPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if pending != 1 {
		t.Fatalf("pending = %d, want 1", pending)
	}
}

func TestResolveSubscribedMatchesPatterns(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	mk := func(orgID string, status endpoint.Status, patterns ...string) *endpoint.Endpoint {
		ep := &endpoint.Endpoint{
			Entity:     entity.New(),
			ID:         id.NewEndpointID(),
			OrgID:      orgID,
			URL:        "https://example.com/hooks",
			Secret:     "whsec_test",
			EventTypes: patterns,
			Status:     status,
		}
		if err := store.CreateEndpoint(ctx, ep); err != nil {
			t.Fatal(err)
		}
		return ep
	}

	exact := mk("org_1", endpoint.StatusActive, "invoice.paid")
	glob := mk("org_1", endpoint.StatusActive, "invoice.*")
	mk("org_1", endpoint.StatusActive, "customer.created")
	mk("org_1", endpoint.StatusDisabled, "invoice.paid")
	mk("org_2", endpoint.StatusActive, "invoice.paid")

	got, err := store.ResolveSubscribed(ctx, "org_1", "invoice.paid")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("resolved %d endpoints, want 2", len(got))
	}
	found := map[string]bool{}
	for _, ep := range got {
		found[ep.ID.String()] = true
	}
	if !found[exact.ID.String()] || !found[glob.ID.String()] {
		t.Fatal("expected both the exact and glob subscribers")
	}
}

func TestClosedStorePing(t *testing.T) {
	store := memory.New()
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping on open store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	if err := store.Ping(context.Background()); err == nil {
		t.Fatal("Ping on closed store should fail")
	}
}
