package redisstore

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lunarispay/hookline/catalog"
	"github.com/lunarispay/hookline/endpoint"
	"github.com/lunarispay/hookline/id"
	"github.com/lunarispay/hookline/internal/entity"
)

// endpointModel is the JSON representation stored in Redis.
type endpointModel struct {
	ID                  string                `json:"id"`
	OrgID               string                `json:"org_id"`
	URL                 string                `json:"url"`
	Description         string                `json:"description"`
	Secret              string                `json:"secret"`
	EventTypes          []string              `json:"event_types"`
	Headers             map[string]string     `json:"headers,omitempty"`
	Status              string                `json:"status"`
	DisabledReason      string                `json:"disabled_reason"`
	ConsecutiveFailures int                   `json:"consecutive_failures"`
	LastSuccessAt       *time.Time            `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time            `json:"last_failure_at,omitempty"`
	RetryPolicy         *endpoint.RetryPolicy `json:"retry_policy,omitempty"`
	RateLimit           int                   `json:"rate_limit"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
}

func toEndpointModel(ep *endpoint.Endpoint) *endpointModel {
	return &endpointModel{
		ID:                  ep.ID.String(),
		OrgID:               ep.OrgID,
		URL:                 ep.URL,
		Description:         ep.Description,
		Secret:              ep.Secret,
		EventTypes:          ep.EventTypes,
		Headers:             ep.Headers,
		Status:              string(ep.Status),
		DisabledReason:      ep.DisabledReason,
		ConsecutiveFailures: ep.ConsecutiveFailures,
		LastSuccessAt:       ep.LastSuccessAt,
		LastFailureAt:       ep.LastFailureAt,
		RetryPolicy:         ep.RetryPolicy,
		RateLimit:           ep.RateLimit,
		CreatedAt:           ep.CreatedAt,
		UpdatedAt:           ep.UpdatedAt,
	}
}

func fromEndpointModel(m *endpointModel) (*endpoint.Endpoint, error) {
	epID, err := id.ParseEndpointID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint ID %q: %w", m.ID, err)
	}
	return &endpoint.Endpoint{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                  epID,
		OrgID:               m.OrgID,
		URL:                 m.URL,
		Description:         m.Description,
		Secret:              m.Secret,
		EventTypes:          m.EventTypes,
		Headers:             m.Headers,
		Status:              endpoint.Status(m.Status),
		DisabledReason:      m.DisabledReason,
		ConsecutiveFailures: m.ConsecutiveFailures,
		LastSuccessAt:       m.LastSuccessAt,
		LastFailureAt:       m.LastFailureAt,
		RetryPolicy:         m.RetryPolicy,
		RateLimit:           m.RateLimit,
	}, nil
}

func (s *Store) CreateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	m := toEndpointModel(ep)

	if err := s.setEntity(ctx, entityKey(prefixEndpoint, m.ID), m); err != nil {
		return fmt.Errorf("redisstore: create endpoint: %w", err)
	}
	if err := s.rdb.ZAdd(ctx, zEndpointOrg+m.OrgID, goredis.Z{
		Score:  scoreFromTime(m.CreatedAt),
		Member: m.ID,
	}).Err(); err != nil {
		return fmt.Errorf("redisstore: create endpoint index: %w", err)
	}
	return nil
}

func (s *Store) GetEndpoint(ctx context.Context, epID id.ID) (*endpoint.Endpoint, error) {
	var m endpointModel
	if err := s.getEntity(ctx, entityKey(prefixEndpoint, epID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, endpoint.ErrNotFound
		}
		return nil, fmt.Errorf("redisstore: get endpoint: %w", err)
	}
	return fromEndpointModel(&m)
}

func (s *Store) UpdateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	key := entityKey(prefixEndpoint, ep.ID.String())
	exists, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redisstore: update endpoint exists: %w", err)
	}
	if exists == 0 {
		return endpoint.ErrNotFound
	}

	m := toEndpointModel(ep)
	m.UpdatedAt = now()
	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("redisstore: update endpoint: %w", err)
	}
	return nil
}

func (s *Store) DeleteEndpoint(ctx context.Context, epID id.ID) error {
	key := entityKey(prefixEndpoint, epID.String())

	var m endpointModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isRedisNil(err) {
			return endpoint.ErrNotFound
		}
		return fmt.Errorf("redisstore: delete endpoint get: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, key)
	pipe.ZRem(ctx, zEndpointOrg+m.OrgID, m.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisstore: delete endpoint: %w", err)
	}
	return nil
}

func (s *Store) ListEndpoints(ctx context.Context, orgID string, opts endpoint.ListOpts) ([]*endpoint.Endpoint, error) {
	eps, err := s.loadOrgEndpoints(ctx, orgID)
	if err != nil {
		return nil, err
	}

	result := make([]*endpoint.Endpoint, 0, len(eps))
	for _, ep := range eps {
		if opts.Status != nil && ep.Status != *opts.Status {
			continue
		}
		result = append(result, ep)
	}
	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ResolveSubscribed(ctx context.Context, orgID string, eventType string) ([]*endpoint.Endpoint, error) {
	eps, err := s.loadOrgEndpoints(ctx, orgID)
	if err != nil {
		return nil, err
	}

	var result []*endpoint.Endpoint
	for _, ep := range eps {
		if ep.Status != endpoint.StatusActive {
			continue
		}
		for _, pattern := range ep.EventTypes {
			if catalog.Match(pattern, eventType) {
				result = append(result, ep)
				break
			}
		}
	}
	return result, nil
}

func (s *Store) SetStatus(ctx context.Context, epID id.ID, status endpoint.Status, reason string) error {
	return s.mutateEndpoint(ctx, epID, func(m *endpointModel) {
		m.Status = string(status)
		if status == endpoint.StatusActive {
			m.DisabledReason = ""
			m.ConsecutiveFailures = 0
		} else {
			m.DisabledReason = reason
		}
	})
}

func (s *Store) RecordSuccess(ctx context.Context, epID id.ID, at time.Time) error {
	return s.mutateEndpoint(ctx, epID, func(m *endpointModel) {
		m.ConsecutiveFailures = 0
		m.LastSuccessAt = &at
	})
}

func (s *Store) RecordFailure(ctx context.Context, epID id.ID, at time.Time) (int, error) {
	var failures int
	err := s.mutateEndpoint(ctx, epID, func(m *endpointModel) {
		m.ConsecutiveFailures++
		m.LastFailureAt = &at
		failures = m.ConsecutiveFailures
	})
	if err != nil {
		return 0, err
	}
	return failures, nil
}

// mutateEndpoint loads an endpoint model, applies fn, bumps updated_at and
// writes it back.
func (s *Store) mutateEndpoint(ctx context.Context, epID id.ID, fn func(*endpointModel)) error {
	key := entityKey(prefixEndpoint, epID.String())

	var m endpointModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isRedisNil(err) {
			return endpoint.ErrNotFound
		}
		return fmt.Errorf("redisstore: mutate endpoint get: %w", err)
	}

	fn(&m)
	m.UpdatedAt = now()
	if err := s.setEntity(ctx, key, &m); err != nil {
		return fmt.Errorf("redisstore: mutate endpoint set: %w", err)
	}
	return nil
}

// loadOrgEndpoints loads every endpoint in an org's index, ordered by
// creation time.
func (s *Store) loadOrgEndpoints(ctx context.Context, orgID string) ([]*endpoint.Endpoint, error) {
	ids, err := s.rdb.ZRange(ctx, zEndpointOrg+orgID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: list endpoints: %w", err)
	}

	result := make([]*endpoint.Endpoint, 0, len(ids))
	for _, entryID := range ids {
		var m endpointModel
		if err := s.getEntity(ctx, entityKey(prefixEndpoint, entryID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		ep, err := fromEndpointModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, ep)
	}
	return result, nil
}
