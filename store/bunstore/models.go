package bunstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/lunarispay/hookline/catalog"
	"github.com/lunarispay/hookline/delivery"
	"github.com/lunarispay/hookline/endpoint"
	"github.com/lunarispay/hookline/id"
	"github.com/lunarispay/hookline/internal/entity"
)

// Collection columns (event type patterns, headers, retry policy) are stored
// as JSON to stay portable between Postgres and SQLite.

type eventTypeModel struct {
	bun.BaseModel `bun:"table:hookline_event_types"`

	ID           string          `bun:"id,pk"`
	Name         string          `bun:"name,notnull,unique"`
	Description  string          `bun:"description,notnull,default:''"`
	GroupName    string          `bun:"group_name,notnull,default:''"`
	Schema       json.RawMessage `bun:"schema,nullzero"`
	Version      string          `bun:"version,notnull,default:''"`
	Example      json.RawMessage `bun:"example,nullzero"`
	Deprecated   bool            `bun:"deprecated,notnull,default:false"`
	DeprecatedAt *time.Time      `bun:"deprecated_at,nullzero"`
	CreatedAt    time.Time       `bun:"created_at,notnull"`
	UpdatedAt    time.Time       `bun:"updated_at,notnull"`
}

func toEventTypeModel(et *catalog.EventType) *eventTypeModel {
	return &eventTypeModel{
		ID:           et.ID.String(),
		Name:         et.Definition.Name,
		Description:  et.Definition.Description,
		GroupName:    et.Definition.Group,
		Schema:       et.Definition.Schema,
		Version:      et.Definition.Version,
		Example:      et.Definition.Example,
		Deprecated:   et.Deprecated,
		DeprecatedAt: et.DeprecatedAt,
		CreatedAt:    et.CreatedAt,
		UpdatedAt:    et.UpdatedAt,
	}
}

func fromEventTypeModel(m *eventTypeModel) (*catalog.EventType, error) {
	etID, err := id.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse event type ID %q: %w", m.ID, err)
	}
	return &catalog.EventType{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID: etID,
		Definition: catalog.Definition{
			Name:        m.Name,
			Description: m.Description,
			Group:       m.GroupName,
			Schema:      m.Schema,
			Version:     m.Version,
			Example:     m.Example,
		},
		Deprecated:   m.Deprecated,
		DeprecatedAt: m.DeprecatedAt,
	}, nil
}

type endpointModel struct {
	bun.BaseModel `bun:"table:hookline_endpoints"`

	ID                  string          `bun:"id,pk"`
	OrgID               string          `bun:"org_id,notnull,default:''"`
	URL                 string          `bun:"url,notnull,default:''"`
	Description         string          `bun:"description,notnull,default:''"`
	Secret              string          `bun:"secret,notnull,default:''"`
	EventTypes          json.RawMessage `bun:"event_types,nullzero"`
	Headers             json.RawMessage `bun:"headers,nullzero"`
	Status              string          `bun:"status,notnull,default:'active'"`
	DisabledReason      string          `bun:"disabled_reason,notnull,default:''"`
	ConsecutiveFailures int             `bun:"consecutive_failures,notnull,default:0"`
	LastSuccessAt       *time.Time      `bun:"last_success_at,nullzero"`
	LastFailureAt       *time.Time      `bun:"last_failure_at,nullzero"`
	RetryPolicy         json.RawMessage `bun:"retry_policy,nullzero"`
	RateLimit           int             `bun:"rate_limit,notnull,default:0"`
	CreatedAt           time.Time       `bun:"created_at,notnull"`
	UpdatedAt           time.Time       `bun:"updated_at,notnull"`
}

func toEndpointModel(ep *endpoint.Endpoint) (*endpointModel, error) {
	eventTypes, err := json.Marshal(ep.EventTypes)
	if err != nil {
		return nil, fmt.Errorf("marshal event types: %w", err)
	}
	var headers json.RawMessage
	if len(ep.Headers) > 0 {
		headers, err = json.Marshal(ep.Headers)
		if err != nil {
			return nil, fmt.Errorf("marshal headers: %w", err)
		}
	}
	var policy json.RawMessage
	if ep.RetryPolicy != nil {
		policy, err = json.Marshal(ep.RetryPolicy)
		if err != nil {
			return nil, fmt.Errorf("marshal retry policy: %w", err)
		}
	}
	return &endpointModel{
		ID:                  ep.ID.String(),
		OrgID:               ep.OrgID,
		URL:                 ep.URL,
		Description:         ep.Description,
		Secret:              ep.Secret,
		EventTypes:          eventTypes,
		Headers:             headers,
		Status:              string(ep.Status),
		DisabledReason:      ep.DisabledReason,
		ConsecutiveFailures: ep.ConsecutiveFailures,
		LastSuccessAt:       ep.LastSuccessAt,
		LastFailureAt:       ep.LastFailureAt,
		RetryPolicy:         policy,
		RateLimit:           ep.RateLimit,
		CreatedAt:           ep.CreatedAt,
		UpdatedAt:           ep.UpdatedAt,
	}, nil
}

func fromEndpointModel(m *endpointModel) (*endpoint.Endpoint, error) {
	epID, err := id.ParseEndpointID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint ID %q: %w", m.ID, err)
	}
	var eventTypes []string
	if len(m.EventTypes) > 0 {
		if err := json.Unmarshal(m.EventTypes, &eventTypes); err != nil {
			return nil, fmt.Errorf("unmarshal event types: %w", err)
		}
	}
	var headers map[string]string
	if len(m.Headers) > 0 {
		if err := json.Unmarshal(m.Headers, &headers); err != nil {
			return nil, fmt.Errorf("unmarshal headers: %w", err)
		}
	}
	var policy *endpoint.RetryPolicy
	if len(m.RetryPolicy) > 0 {
		policy = new(endpoint.RetryPolicy)
		if err := json.Unmarshal(m.RetryPolicy, policy); err != nil {
			return nil, fmt.Errorf("unmarshal retry policy: %w", err)
		}
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
		EventTypes:          eventTypes,
		Headers:             headers,
		Status:              endpoint.Status(m.Status),
		DisabledReason:      m.DisabledReason,
		ConsecutiveFailures: m.ConsecutiveFailures,
		LastSuccessAt:       m.LastSuccessAt,
		LastFailureAt:       m.LastFailureAt,
		RetryPolicy:         policy,
		RateLimit:           m.RateLimit,
	}, nil
}

type deliveryModel struct {
	bun.BaseModel `bun:"table:hookline_deliveries"`

	ID             string          `bun:"id,pk"`
	EndpointID     string          `bun:"endpoint_id,notnull,default:''"`
	OrgID          string          `bun:"org_id,notnull,default:''"`
	EventType      string          `bun:"event_type,notnull,default:''"`
	Payload        json.RawMessage `bun:"payload,nullzero"`
	Status         string          `bun:"status,notnull,default:'pending'"`
	AttemptCount   int             `bun:"attempt_count,notnull,default:0"`
	NextAttemptAt  time.Time       `bun:"next_attempt_at,notnull"`
	ClaimedUntil   *time.Time      `bun:"claimed_until,nullzero"`
	LastStatusCode int             `bun:"last_status_code,notnull,default:0"`
	LastResponse   string          `bun:"last_response,notnull,default:''"`
	LastError      string          `bun:"last_error,notnull,default:''"`
	LastLatencyMs  int             `bun:"last_latency_ms,notnull,default:0"`
	CompletedAt    *time.Time      `bun:"completed_at,nullzero"`
	CreatedAt      time.Time       `bun:"created_at,notnull"`
	UpdatedAt      time.Time       `bun:"updated_at,notnull"`
}

func toDeliveryModel(d *delivery.Delivery) *deliveryModel {
	return &deliveryModel{
		ID:             d.ID.String(),
		EndpointID:     d.EndpointID.String(),
		OrgID:          d.OrgID,
		EventType:      d.EventType,
		Payload:        d.Payload,
		Status:         string(d.Status),
		AttemptCount:   d.AttemptCount,
		NextAttemptAt:  d.NextAttemptAt,
		ClaimedUntil:   d.ClaimedUntil,
		LastStatusCode: d.LastStatusCode,
		LastResponse:   d.LastResponse,
		LastError:      d.LastError,
		LastLatencyMs:  d.LastLatencyMs,
		CompletedAt:    d.CompletedAt,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func fromDeliveryModel(m *deliveryModel) (*delivery.Delivery, error) {
	delID, err := id.ParseDeliveryID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse delivery ID %q: %w", m.ID, err)
	}
	epID, err := id.ParseEndpointID(m.EndpointID)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint ID %q: %w", m.EndpointID, err)
	}
	return &delivery.Delivery{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             delID,
		EndpointID:     epID,
		OrgID:          m.OrgID,
		EventType:      m.EventType,
		Payload:        m.Payload,
		Status:         delivery.Status(m.Status),
		AttemptCount:   m.AttemptCount,
		NextAttemptAt:  m.NextAttemptAt,
		ClaimedUntil:   m.ClaimedUntil,
		LastStatusCode: m.LastStatusCode,
		LastResponse:   m.LastResponse,
		LastError:      m.LastError,
		LastLatencyMs:  m.LastLatencyMs,
		CompletedAt:    m.CompletedAt,
	}, nil
}
