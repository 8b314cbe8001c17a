package delivery

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/lunarispay/hookline/endpoint"
	"github.com/lunarispay/hookline/id"
	"github.com/lunarispay/hookline/observability"
)

// EngineStore is the interface the engine needs for delivery operations.
type EngineStore interface {
	ClaimDue(ctx context.Context, limit int, ttl time.Duration) ([]*Delivery, error)
	Finalize(ctx context.Context, d *Delivery) error
}

// EndpointRegistry resolves endpoints and records their delivery health.
type EndpointRegistry interface {
	Get(ctx context.Context, epID id.ID) (*endpoint.Endpoint, error)
	RecordSuccess(ctx context.Context, epID id.ID, at time.Time) error
	RecordFailure(ctx context.Context, epID id.ID, at time.Time) error
}

// Limiter throttles outbound requests per endpoint.
type Limiter interface {
	Wait(ctx context.Context, key string, rate int) error
}

// EngineConfig holds engine configuration.
type EngineConfig struct {
	Concurrency    int
	PollInterval   time.Duration
	BatchSize      int
	RequestTimeout time.Duration
	ClaimTTL       time.Duration
	RetryPolicy    endpoint.RetryPolicy
	Metrics        *observability.Metrics
	Tracer         *observability.Tracer
}

// Engine is the delivery worker pool that claims due deliveries and
// processes them.
type Engine struct {
	store    EngineStore
	registry EndpointRegistry
	limiter  Limiter
	sender   *Sender
	config   EngineConfig
	logger   *slog.Logger

	wake       chan struct{}
	pollCancel context.CancelFunc
	workCancel context.CancelFunc
	wg         sync.WaitGroup
}

// NewEngine creates a delivery engine. limiter may be nil to disable
// per-endpoint throttling.
func NewEngine(store EngineStore, registry EndpointRegistry, limiter Limiter, cfg EngineConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		registry: registry,
		limiter:  limiter,
		sender:   NewSender(cfg.RequestTimeout),
		config:   cfg,
		logger:   logger,
		wake:     make(chan struct{}, 1),
	}
}

// Start begins the delivery workers and poll loop.
func (e *Engine) Start(ctx context.Context) {
	pollCtx, pollCancel := context.WithCancel(ctx)
	// Workers outlive the poll loop during a graceful stop, so their
	// context is only cancelled once the drain deadline passes.
	workCtx, workCancel := context.WithCancel(context.WithoutCancel(ctx))
	e.pollCancel = pollCancel
	e.workCancel = workCancel

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.pollLoop(pollCtx, workCtx)
	}()
}

// Stop halts the poll loop and waits for in-flight deliveries to finish.
// Workers still running when ctx expires have their requests cancelled;
// those claims lapse and the deliveries become due again.
func (e *Engine) Stop(ctx context.Context) {
	if e.pollCancel != nil {
		e.pollCancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if e.workCancel != nil {
			e.workCancel()
		}
		<-done
	}
	if e.workCancel != nil {
		e.workCancel()
	}
}

// Wake nudges the poll loop to sweep immediately instead of waiting for the
// next tick. Safe to call from any goroutine; extra wakes coalesce.
func (e *Engine) Wake() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// pollLoop periodically claims due deliveries and dispatches them to workers.
// Claiming rides ctx so it stops with the loop; workers ride workCtx so a
// graceful stop can drain them.
func (e *Engine) pollLoop(ctx, workCtx context.Context) {
	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, e.config.Concurrency)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-e.wake:
		}

		batch, err := e.store.ClaimDue(ctx, e.config.BatchSize, e.config.ClaimTTL)
		if err != nil {
			e.logger.ErrorContext(ctx, "claim failed", "error", err)
			continue
		}

		for _, d := range batch {
			select {
			case <-ctx.Done():
				return
			case sem <- struct{}{}:
			}

			e.wg.Add(1)
			go func(del *Delivery) {
				defer e.wg.Done()
				defer func() { <-sem }()
				e.process(workCtx, del)
			}(d)
		}
	}
}

// process handles a single claimed delivery: resolve the endpoint, send,
// decide the next state, finalize, record endpoint health.
func (e *Engine) process(ctx context.Context, d *Delivery) {
	var span trace.Span
	if e.config.Tracer != nil {
		ctx, span = e.config.Tracer.StartDeliverySpan(ctx, d.ID.String(), d.EndpointID.String(), d.EventType)
	}

	ep, err := e.registry.Get(ctx, d.EndpointID)
	switch {
	case errors.Is(err, endpoint.ErrNotFound):
		e.cancelDelivery(ctx, d, span)
		return
	case err != nil:
		// Transient lookup failure: leave the claim to lapse and retry
		// on a later sweep.
		e.logger.ErrorContext(ctx, "get endpoint failed",
			"delivery_id", d.ID, "endpoint_id", d.EndpointID, "error", err)
		if span != nil {
			e.config.Tracer.EndDeliverySpan(span, 0, 0, err.Error())
		}
		return
	case !ep.Active():
		e.cancelDelivery(ctx, d, span)
		return
	}

	if e.limiter != nil && ep.RateLimit > 0 {
		if waitErr := e.limiter.Wait(ctx, ep.ID.String(), ep.RateLimit); waitErr != nil {
			if span != nil {
				e.config.Tracer.EndDeliverySpan(span, 0, 0, waitErr.Error())
			}
			return
		}
	}

	// Perform the HTTP delivery.
	d.AttemptCount++
	result := e.sender.Send(ctx, ep, d)

	if !result.Success() && ctx.Err() != nil {
		// The request was torn down by shutdown, not refused by the
		// endpoint. The attempt does not count; the claim lapses and the
		// delivery becomes due again.
		d.AttemptCount--
		e.logger.DebugContext(ctx, "attempt aborted by shutdown", "delivery_id", d.ID)
		if span != nil {
			e.config.Tracer.EndDeliverySpan(span, 0, 0, "aborted")
		}
		return
	}

	// Record result on delivery.
	d.LastError = result.Error
	d.LastStatusCode = result.StatusCode
	d.LastResponse = result.Response
	d.LastLatencyMs = result.LatencyMs

	latencySeconds := float64(result.LatencyMs) / 1000.0
	now := time.Now().UTC()
	policy := e.policyFor(ep)

	switch {
	case result.Success():
		d.Status = StatusCompleted
		d.CompletedAt = &now
		d.ClaimedUntil = nil
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery("completed", latencySeconds)
			e.config.Metrics.PendingDeliveries.Dec()
		}
		e.logger.DebugContext(ctx, "delivered",
			"delivery_id", d.ID, "status", result.StatusCode, "latency_ms", result.LatencyMs)

	case d.AttemptCount >= policy.MaxAttempts:
		d.Status = StatusFailed
		d.CompletedAt = &now
		d.ClaimedUntil = nil
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery("failed", latencySeconds)
			e.config.Metrics.PendingDeliveries.Dec()
		}
		e.logger.WarnContext(ctx, "delivery failed permanently",
			"delivery_id", d.ID, "attempts", d.AttemptCount,
			"status", result.StatusCode, "error", result.Error)

	default:
		d.NextAttemptAt = now.Add(policy.Delay(d.AttemptCount))
		d.ClaimedUntil = nil
		if e.config.Metrics != nil {
			e.config.Metrics.RecordDelivery("retried", latencySeconds)
		}
		e.logger.DebugContext(ctx, "retry scheduled",
			"delivery_id", d.ID, "attempt", d.AttemptCount, "next_at", d.NextAttemptAt)
	}

	if span != nil {
		e.config.Tracer.EndDeliverySpan(span, d.LastStatusCode, d.LastLatencyMs, d.LastError)
	}

	e.finalize(ctx, d)

	// Health runs after finalize so an auto-disable cascade sees the
	// rescheduled row and can cancel it.
	if result.Success() {
		if hErr := e.registry.RecordSuccess(ctx, d.EndpointID, now); hErr != nil {
			e.logger.ErrorContext(ctx, "record success failed",
				"endpoint_id", d.EndpointID, "error", hErr)
		}
	} else {
		if hErr := e.registry.RecordFailure(ctx, d.EndpointID, now); hErr != nil {
			e.logger.ErrorContext(ctx, "record failure failed",
				"endpoint_id", d.EndpointID, "error", hErr)
		}
	}
}

// cancelDelivery withdraws a delivery whose endpoint is gone or disabled.
// No request is made and the attempt counter does not move.
func (e *Engine) cancelDelivery(ctx context.Context, d *Delivery, span trace.Span) {
	now := time.Now().UTC()
	d.Status = StatusCancelled
	d.CompletedAt = &now
	d.ClaimedUntil = nil

	if e.config.Metrics != nil {
		e.config.Metrics.DeliveriesTotal.WithLabelValues("cancelled").Inc()
		e.config.Metrics.PendingDeliveries.Dec()
	}
	e.logger.InfoContext(ctx, "delivery cancelled",
		"delivery_id", d.ID, "endpoint_id", d.EndpointID)

	if span != nil {
		e.config.Tracer.EndDeliverySpan(span, 0, 0, "endpoint unavailable")
	}
	e.finalize(ctx, d)
}

func (e *Engine) finalize(ctx context.Context, d *Delivery) {
	err := e.store.Finalize(ctx, d)
	switch {
	case errors.Is(err, ErrStale):
		// Another actor moved the delivery first; their outcome stands.
		e.logger.DebugContext(ctx, "finalize lost race", "delivery_id", d.ID)
	case err != nil:
		e.logger.ErrorContext(ctx, "finalize failed",
			"delivery_id", d.ID, "error", err)
	}
}

func (e *Engine) policyFor(ep *endpoint.Endpoint) endpoint.RetryPolicy {
	if ep.RetryPolicy != nil && ep.RetryPolicy.Valid() {
		return *ep.RetryPolicy
	}
	return e.config.RetryPolicy
}
