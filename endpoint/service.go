package endpoint

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/lunarispay/hookline/id"
	"github.com/lunarispay/hookline/internal/entity"
	"github.com/lunarispay/hookline/observability"
	"github.com/lunarispay/hookline/signature"
)

// Config holds endpoint service settings.
type Config struct {
	// DisableThreshold is the number of consecutive failed deliveries after
	// which an endpoint is automatically disabled. Zero means never.
	DisableThreshold int

	// Metrics receives endpoint health events. May be nil.
	Metrics *observability.Metrics
}

// Service manages the endpoint registry and endpoint health.
type Service struct {
	store     Store
	canceller DeliveryCanceller
	config    Config
	logger    *slog.Logger
}

// NewService creates an endpoint service. canceller may be nil, in which case
// disabling or deleting an endpoint leaves its pending deliveries queued.
func NewService(store Store, canceller DeliveryCanceller, config Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		canceller: canceller,
		config:    config,
		logger:    logger,
	}
}

// Create registers a new endpoint. A signing secret is generated when the
// input does not carry one.
func (s *Service) Create(ctx context.Context, input Input) (*Endpoint, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	secret := input.Secret
	if secret == "" {
		secret = signature.GenerateSecret()
	}

	if input.RetryPolicy != nil && !input.RetryPolicy.Valid() {
		return nil, ValidationError{Field: "retry_policy", Message: "invalid retry policy"}
	}

	ep := &Endpoint{
		Entity:      entity.New(),
		ID:          id.NewEndpointID(),
		OrgID:       input.OrgID,
		URL:         input.URL,
		Description: input.Description,
		Secret:      secret,
		EventTypes:  input.EventTypes,
		Headers:     input.Headers,
		Status:      StatusActive,
		RetryPolicy: input.RetryPolicy,
		RateLimit:   input.RateLimit,
	}

	if err := s.store.CreateEndpoint(ctx, ep); err != nil {
		return nil, fmt.Errorf("creating endpoint: %w", err)
	}

	s.logger.InfoContext(ctx, "endpoint created",
		"endpoint_id", ep.ID,
		"org_id", ep.OrgID,
		"url", ep.URL,
	)
	return ep, nil
}

// Get returns an endpoint by ID.
func (s *Service) Get(ctx context.Context, epID id.ID) (*Endpoint, error) {
	return s.store.GetEndpoint(ctx, epID)
}

// Update modifies an endpoint's mutable fields. Zero-valued input fields
// leave the existing values untouched; the secret is never updated here,
// use RotateSecret.
func (s *Service) Update(ctx context.Context, epID id.ID, input Input) (*Endpoint, error) {
	ep, err := s.store.GetEndpoint(ctx, epID)
	if err != nil {
		return nil, err
	}

	if input.URL != "" {
		if err := validateURL(input.URL); err != nil {
			return nil, err
		}
		ep.URL = input.URL
	}
	if input.Description != "" {
		ep.Description = input.Description
	}
	if input.EventTypes != nil {
		ep.EventTypes = input.EventTypes
	}
	if input.Headers != nil {
		ep.Headers = input.Headers
	}
	if input.RetryPolicy != nil {
		if !input.RetryPolicy.Valid() {
			return nil, ValidationError{Field: "retry_policy", Message: "invalid retry policy"}
		}
		ep.RetryPolicy = input.RetryPolicy
	}
	if input.RateLimit > 0 {
		ep.RateLimit = input.RateLimit
	}
	ep.Touch()

	if err := s.store.UpdateEndpoint(ctx, ep); err != nil {
		return nil, fmt.Errorf("updating endpoint: %w", err)
	}
	return ep, nil
}

// Delete removes an endpoint and cancels any deliveries still queued for it.
func (s *Service) Delete(ctx context.Context, epID id.ID) error {
	if _, err := s.store.GetEndpoint(ctx, epID); err != nil {
		return err
	}
	s.cancelPending(ctx, epID)
	if err := s.store.DeleteEndpoint(ctx, epID); err != nil {
		return fmt.Errorf("deleting endpoint: %w", err)
	}
	s.logger.InfoContext(ctx, "endpoint deleted", "endpoint_id", epID)
	return nil
}

// List returns an organization's endpoints.
func (s *Service) List(ctx context.Context, orgID string, opts ListOpts) ([]*Endpoint, error) {
	return s.store.ListEndpoints(ctx, orgID, opts)
}

// ResolveSubscribed returns the active endpoints of an organization whose
// subscriptions match the given event type.
func (s *Service) ResolveSubscribed(ctx context.Context, orgID string, eventType string) ([]*Endpoint, error) {
	return s.store.ResolveSubscribed(ctx, orgID, eventType)
}

// Enable re-activates a disabled endpoint and resets its failure counter.
func (s *Service) Enable(ctx context.Context, epID id.ID) error {
	ep, err := s.store.GetEndpoint(ctx, epID)
	if err != nil {
		return err
	}
	if ep.Status == StatusActive {
		return nil
	}
	if err := s.store.SetStatus(ctx, epID, StatusActive, ""); err != nil {
		return fmt.Errorf("enabling endpoint: %w", err)
	}
	s.logger.InfoContext(ctx, "endpoint enabled", "endpoint_id", epID)
	return nil
}

// Disable deactivates an endpoint and cancels its queued deliveries.
func (s *Service) Disable(ctx context.Context, epID id.ID, reason string) error {
	ep, err := s.store.GetEndpoint(ctx, epID)
	if err != nil {
		return err
	}
	if ep.Status == StatusDisabled {
		return nil
	}
	if err := s.store.SetStatus(ctx, epID, StatusDisabled, reason); err != nil {
		return fmt.Errorf("disabling endpoint: %w", err)
	}
	s.cancelPending(ctx, epID)
	if s.config.Metrics != nil {
		s.config.Metrics.EndpointsDisabled.Inc()
	}
	s.logger.WarnContext(ctx, "endpoint disabled",
		"endpoint_id", epID,
		"reason", reason,
	)
	return nil
}

// RotateSecret replaces the endpoint's signing secret and returns the new
// value. Deliveries already claimed keep signing with the secret they read.
func (s *Service) RotateSecret(ctx context.Context, epID id.ID) (string, error) {
	ep, err := s.store.GetEndpoint(ctx, epID)
	if err != nil {
		return "", err
	}
	secret := signature.GenerateSecret()
	ep.Secret = secret
	ep.Touch()
	if err := s.store.UpdateEndpoint(ctx, ep); err != nil {
		return "", fmt.Errorf("rotating secret: %w", err)
	}
	s.logger.InfoContext(ctx, "endpoint secret rotated", "endpoint_id", epID)
	return secret, nil
}

// RecordSuccess clears the endpoint's consecutive failure streak.
func (s *Service) RecordSuccess(ctx context.Context, epID id.ID, at time.Time) error {
	return s.store.RecordSuccess(ctx, epID, at)
}

// RecordFailure bumps the endpoint's failure streak. When the streak reaches
// the configured threshold the endpoint is disabled and its queued
// deliveries are cancelled.
func (s *Service) RecordFailure(ctx context.Context, epID id.ID, at time.Time) error {
	failures, err := s.store.RecordFailure(ctx, epID, at)
	if err != nil {
		return err
	}
	if s.config.DisableThreshold <= 0 || failures < s.config.DisableThreshold {
		return nil
	}
	reason := fmt.Sprintf("%d consecutive delivery failures", failures)
	if err := s.store.SetStatus(ctx, epID, StatusDisabled, reason); err != nil {
		return fmt.Errorf("auto-disabling endpoint: %w", err)
	}
	s.cancelPending(ctx, epID)
	if s.config.Metrics != nil {
		s.config.Metrics.EndpointsDisabled.Inc()
	}
	s.logger.WarnContext(ctx, "endpoint auto-disabled",
		"endpoint_id", epID,
		"consecutive_failures", failures,
	)
	return nil
}

func (s *Service) cancelPending(ctx context.Context, epID id.ID) {
	if s.canceller == nil {
		return
	}
	n, err := s.canceller.CancelPending(ctx, epID)
	if err != nil {
		s.logger.ErrorContext(ctx, "cancelling pending deliveries",
			"endpoint_id", epID,
			"error", err,
		)
		return
	}
	if n > 0 {
		if s.config.Metrics != nil {
			s.config.Metrics.PendingDeliveries.Sub(float64(n))
		}
		s.logger.InfoContext(ctx, "pending deliveries cancelled",
			"endpoint_id", epID,
			"count", n,
		)
	}
}

func validateInput(input Input) error {
	if input.OrgID == "" {
		return ValidationError{Field: "org_id", Message: "org_id is required"}
	}
	if input.URL == "" {
		return ValidationError{Field: "url", Message: "url is required"}
	}
	if err := validateURL(input.URL); err != nil {
		return err
	}
	if len(input.EventTypes) == 0 {
		return ValidationError{Field: "event_types", Message: "at least one event type pattern is required"}
	}
	for _, et := range input.EventTypes {
		if strings.TrimSpace(et) == "" {
			return ValidationError{Field: "event_types", Message: "event type patterns must not be blank"}
		}
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ValidationError{Field: "url", Message: "url must be absolute"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ValidationError{Field: "url", Message: "url scheme must be http or https"}
	}
	return nil
}
