package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lunarispay/hookline/catalog"
	"github.com/lunarispay/hookline/id"
	"github.com/lunarispay/hookline/internal/entity"
)

// eventTypeModel is the JSON representation stored in Redis.
type eventTypeModel struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	GroupName    string          `json:"group_name"`
	Schema       json.RawMessage `json:"schema,omitempty"`
	Version      string          `json:"version"`
	Example      json.RawMessage `json:"example,omitempty"`
	Deprecated   bool            `json:"deprecated"`
	DeprecatedAt *time.Time      `json:"deprecated_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
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

func (s *Store) RegisterType(ctx context.Context, et *catalog.EventType) error {
	m := toEventTypeModel(et)

	// Upsert by name: a re-registered type keeps its original ID and
	// revives from deprecation.
	existingID, lookupErr := s.rdb.Get(ctx, uniqueEventTypeName+m.Name).Result()
	if lookupErr == nil && existingID != "" {
		var existing eventTypeModel
		if getErr := s.getEntity(ctx, entityKey(prefixEventType, existingID), &existing); getErr == nil {
			existing.Description = m.Description
			existing.GroupName = m.GroupName
			existing.Schema = m.Schema
			existing.Version = m.Version
			existing.Example = m.Example
			existing.Deprecated = false
			existing.DeprecatedAt = nil
			existing.UpdatedAt = now()
			if err := s.setEntity(ctx, entityKey(prefixEventType, existingID), &existing); err != nil {
				return fmt.Errorf("redisstore: register type update: %w", err)
			}
			parsed, err := id.Parse(existingID)
			if err == nil {
				et.ID = parsed
			}
			return nil
		}
	}

	if err := s.setEntity(ctx, entityKey(prefixEventType, m.ID), m); err != nil {
		return fmt.Errorf("redisstore: register type: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, uniqueEventTypeName+m.Name, m.ID, 0)
	pipe.ZAdd(ctx, zEventTypeAll, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisstore: register type indexes: %w", err)
	}
	return nil
}

func (s *Store) GetType(ctx context.Context, name string) (*catalog.EventType, error) {
	entryID, err := s.rdb.Get(ctx, uniqueEventTypeName+name).Result()
	if err != nil {
		if isRedisNil(err) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("redisstore: get type lookup: %w", err)
	}

	var m eventTypeModel
	if err := s.getEntity(ctx, entityKey(prefixEventType, entryID), &m); err != nil {
		if isRedisNil(err) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("redisstore: get type: %w", err)
	}
	return fromEventTypeModel(&m)
}

func (s *Store) ListTypes(ctx context.Context, opts catalog.ListOpts) ([]*catalog.EventType, error) {
	ids, err := s.rdb.ZRange(ctx, zEventTypeAll, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: list types: %w", err)
	}

	result := make([]*catalog.EventType, 0, len(ids))
	for _, entryID := range ids {
		var m eventTypeModel
		if err := s.getEntity(ctx, entityKey(prefixEventType, entryID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if !opts.IncludeDeprecated && m.Deprecated {
			continue
		}
		if opts.Group != "" && m.GroupName != opts.Group {
			continue
		}
		et, err := fromEventTypeModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, et)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) DeprecateType(ctx context.Context, name string) error {
	entryID, err := s.rdb.Get(ctx, uniqueEventTypeName+name).Result()
	if err != nil {
		if isRedisNil(err) {
			return catalog.ErrNotFound
		}
		return fmt.Errorf("redisstore: deprecate type lookup: %w", err)
	}

	key := entityKey(prefixEventType, entryID)
	var m eventTypeModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isRedisNil(err) {
			return catalog.ErrNotFound
		}
		return fmt.Errorf("redisstore: deprecate type get: %w", err)
	}

	ts := now()
	m.Deprecated = true
	m.DeprecatedAt = &ts
	m.UpdatedAt = ts
	if err := s.setEntity(ctx, key, &m); err != nil {
		return fmt.Errorf("redisstore: deprecate type: %w", err)
	}
	return nil
}
