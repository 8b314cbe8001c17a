package endpoint_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lunarispay/hookline/endpoint"
	"github.com/lunarispay/hookline/id"
	"github.com/lunarispay/hookline/observability"
)

type fakeStore struct {
	mu        sync.Mutex
	endpoints map[string]*endpoint.Endpoint
}

func newFakeStore() *fakeStore {
	return &fakeStore{endpoints: make(map[string]*endpoint.Endpoint)}
}

func (f *fakeStore) CreateEndpoint(_ context.Context, ep *endpoint.Endpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *ep
	f.endpoints[ep.ID.String()] = &cp
	return nil
}

func (f *fakeStore) GetEndpoint(_ context.Context, epID id.ID) (*endpoint.Endpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ep, ok := f.endpoints[epID.String()]
	if !ok {
		return nil, endpoint.ErrNotFound
	}
	cp := *ep
	return &cp, nil
}

func (f *fakeStore) UpdateEndpoint(_ context.Context, ep *endpoint.Endpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.endpoints[ep.ID.String()]; !ok {
		return endpoint.ErrNotFound
	}
	cp := *ep
	f.endpoints[ep.ID.String()] = &cp
	return nil
}

func (f *fakeStore) DeleteEndpoint(_ context.Context, epID id.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.endpoints[epID.String()]; !ok {
		return endpoint.ErrNotFound
	}
	delete(f.endpoints, epID.String())
	return nil
}

func (f *fakeStore) ListEndpoints(_ context.Context, orgID string, _ endpoint.ListOpts) ([]*endpoint.Endpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*endpoint.Endpoint
	for _, ep := range f.endpoints {
		if ep.OrgID == orgID {
			cp := *ep
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) ResolveSubscribed(_ context.Context, orgID string, _ string) ([]*endpoint.Endpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*endpoint.Endpoint
	for _, ep := range f.endpoints {
		if ep.OrgID == orgID && ep.Status == endpoint.StatusActive {
			cp := *ep
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) SetStatus(_ context.Context, epID id.ID, status endpoint.Status, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ep, ok := f.endpoints[epID.String()]
	if !ok {
		return endpoint.ErrNotFound
	}
	ep.Status = status
	ep.DisabledReason = reason
	if status == endpoint.StatusActive {
		ep.ConsecutiveFailures = 0
		ep.DisabledReason = ""
	}
	return nil
}

func (f *fakeStore) RecordSuccess(_ context.Context, epID id.ID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ep, ok := f.endpoints[epID.String()]
	if !ok {
		return endpoint.ErrNotFound
	}
	ep.ConsecutiveFailures = 0
	ep.LastSuccessAt = &at
	return nil
}

func (f *fakeStore) RecordFailure(_ context.Context, epID id.ID, at time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ep, ok := f.endpoints[epID.String()]
	if !ok {
		return 0, endpoint.ErrNotFound
	}
	ep.ConsecutiveFailures++
	ep.LastFailureAt = &at
	return ep.ConsecutiveFailures, nil
}

type fakeCanceller struct {
	mu     sync.Mutex
	calls  []id.ID
	cancel int64
}

func (f *fakeCanceller) CancelPending(_ context.Context, epID id.ID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, epID)
	return f.cancel, nil
}

func (f *fakeCanceller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestService(t *testing.T, threshold int) (*endpoint.Service, *fakeStore, *fakeCanceller) {
	t.Helper()
	store := newFakeStore()
	canceller := &fakeCanceller{cancel: 2}
	svc := endpoint.NewService(store, canceller, endpoint.Config{DisableThreshold: threshold}, nil)
	return svc, store, canceller
}

func validInput() endpoint.Input {
	return endpoint.Input{
		OrgID:      "org_1",
		URL:        "https://example.com/hooks",
		EventTypes: []string{"invoice.*"},
	}
}

func TestServiceCreate(t *testing.T) {
	svc, _, _ := newTestService(t, 20)

	ep, err := svc.Create(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ep.Status != endpoint.StatusActive {
		t.Errorf("status = %q, want active", ep.Status)
	}
	if !strings.HasPrefix(ep.Secret, "whsec_") {
		t.Errorf("secret %q missing whsec_ prefix", ep.Secret)
	}
	if ep.ID.Prefix() != id.PrefixEndpoint {
		t.Errorf("id prefix = %q, want %q", ep.ID.Prefix(), id.PrefixEndpoint)
	}
}

func TestServiceCreateValidation(t *testing.T) {
	svc, _, _ := newTestService(t, 20)
	ctx := context.Background()

	cases := map[string]endpoint.Input{
		"missing org": {URL: "https://example.com", EventTypes: []string{"a.b"}},
		"missing url": {OrgID: "org_1", EventTypes: []string{"a.b"}},
		"bad scheme":  {OrgID: "org_1", URL: "ftp://example.com", EventTypes: []string{"a.b"}},
		"relative":    {OrgID: "org_1", URL: "/hooks", EventTypes: []string{"a.b"}},
		"no types":    {OrgID: "org_1", URL: "https://example.com"},
		"blank type":  {OrgID: "org_1", URL: "https://example.com", EventTypes: []string{"  "}},
	}
	for name, input := range cases {
		if _, err := svc.Create(ctx, input); err == nil {
			t.Errorf("%s: expected validation error", name)
		} else {
			var verr endpoint.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("%s: error %v is not a ValidationError", name, err)
			}
		}
	}
}

func TestServiceUpdatePreservesSecret(t *testing.T) {
	svc, _, _ := newTestService(t, 20)
	ctx := context.Background()

	ep, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := svc.Update(ctx, ep.ID, endpoint.Input{URL: "https://example.com/v2", Secret: "whsec_attempted"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.URL != "https://example.com/v2" {
		t.Errorf("url = %q", updated.URL)
	}
	if updated.Secret != ep.Secret {
		t.Error("update must not change the secret")
	}
}

func TestServiceDeleteCancelsPending(t *testing.T) {
	svc, store, canceller := newTestService(t, 20)
	ctx := context.Background()

	ep, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Delete(ctx, ep.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if canceller.callCount() != 1 {
		t.Errorf("cancel calls = %d, want 1", canceller.callCount())
	}
	if _, err := store.GetEndpoint(ctx, ep.ID); !errors.Is(err, endpoint.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestServiceDisableCancelsPending(t *testing.T) {
	svc, _, canceller := newTestService(t, 20)
	ctx := context.Background()

	ep, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Disable(ctx, ep.ID, "operator request"); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	got, err := svc.Get(ctx, ep.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != endpoint.StatusDisabled {
		t.Errorf("status = %q, want disabled", got.Status)
	}
	if got.DisabledReason != "operator request" {
		t.Errorf("reason = %q", got.DisabledReason)
	}
	if canceller.callCount() != 1 {
		t.Errorf("cancel calls = %d, want 1", canceller.callCount())
	}

	// Disabling twice is a no-op and must not cancel again.
	if err := svc.Disable(ctx, ep.ID, "again"); err != nil {
		t.Fatalf("Disable twice: %v", err)
	}
	if canceller.callCount() != 1 {
		t.Errorf("cancel calls after second disable = %d, want 1", canceller.callCount())
	}
}

func TestServiceCascadeCancelDecrementsPendingGauge(t *testing.T) {
	store := newFakeStore()
	canceller := &fakeCanceller{cancel: 2}
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	svc := endpoint.NewService(store, canceller, endpoint.Config{DisableThreshold: 20, Metrics: metrics}, nil)
	ctx := context.Background()

	ep, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	metrics.PendingDeliveries.Set(5)
	if err := svc.Disable(ctx, ep.ID, "operator request"); err != nil {
		t.Fatalf("Disable: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == "hookline_pending_deliveries" {
			val := f.GetMetric()[0].GetGauge().GetValue()
			if val != 3 {
				t.Fatalf("gauge = %f, want 3 after cancelling 2 deliveries", val)
			}
			return
		}
	}
	t.Fatal("hookline_pending_deliveries metric not found")
}

func TestServiceAutoDisableAtThreshold(t *testing.T) {
	svc, _, canceller := newTestService(t, 3)
	ctx := context.Background()

	ep, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	now := time.Now()
	for range 2 {
		if err := svc.RecordFailure(ctx, ep.ID, now); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}
	got, _ := svc.Get(ctx, ep.ID)
	if got.Status != endpoint.StatusActive {
		t.Fatal("endpoint disabled before threshold")
	}

	if err := svc.RecordFailure(ctx, ep.ID, now); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	got, _ = svc.Get(ctx, ep.ID)
	if got.Status != endpoint.StatusDisabled {
		t.Fatal("endpoint not disabled at threshold")
	}
	if canceller.callCount() != 1 {
		t.Errorf("cancel calls = %d, want 1", canceller.callCount())
	}
}

func TestServiceSuccessResetsStreak(t *testing.T) {
	svc, _, _ := newTestService(t, 3)
	ctx := context.Background()

	ep, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	now := time.Now()
	for range 2 {
		if err := svc.RecordFailure(ctx, ep.ID, now); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}
	if err := svc.RecordSuccess(ctx, ep.ID, now); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}
	for range 2 {
		if err := svc.RecordFailure(ctx, ep.ID, now); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}
	// Two failures after a reset sit below the threshold of three.
	got, _ := svc.Get(ctx, ep.ID)
	if got.ConsecutiveFailures != 2 {
		t.Errorf("consecutive failures = %d, want 2", got.ConsecutiveFailures)
	}
	if got.Status != endpoint.StatusActive {
		t.Errorf("status = %q, want active", got.Status)
	}
}

func TestServiceRotateSecret(t *testing.T) {
	svc, _, _ := newTestService(t, 20)
	ctx := context.Background()

	ep, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	secret, err := svc.RotateSecret(ctx, ep.ID)
	if err != nil {
		t.Fatalf("RotateSecret: %v", err)
	}
	if secret == ep.Secret {
		t.Error("rotated secret equals old secret")
	}
	got, _ := svc.Get(ctx, ep.ID)
	if got.Secret != secret {
		t.Error("stored secret does not match rotated value")
	}
}

func TestServiceEnableResetsCounter(t *testing.T) {
	svc, _, _ := newTestService(t, 2)
	ctx := context.Background()

	ep, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	now := time.Now()
	for range 2 {
		if err := svc.RecordFailure(ctx, ep.ID, now); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}
	if err := svc.Enable(ctx, ep.ID); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	got, _ := svc.Get(ctx, ep.ID)
	if got.Status != endpoint.StatusActive {
		t.Errorf("status = %q, want active", got.Status)
	}
	if got.ConsecutiveFailures != 0 {
		t.Errorf("consecutive failures = %d, want 0", got.ConsecutiveFailures)
	}
	if got.DisabledReason != "" {
		t.Errorf("disabled reason = %q, want empty", got.DisabledReason)
	}
}
