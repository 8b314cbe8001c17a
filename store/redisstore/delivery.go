package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lunarispay/hookline/delivery"
	"github.com/lunarispay/hookline/id"
	"github.com/lunarispay/hookline/internal/entity"
)

// deliveryModel is the JSON representation stored in Redis.
type deliveryModel struct {
	ID             string          `json:"id"`
	EndpointID     string          `json:"endpoint_id"`
	OrgID          string          `json:"org_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Status         string          `json:"status"`
	AttemptCount   int             `json:"attempt_count"`
	NextAttemptAt  time.Time       `json:"next_attempt_at"`
	ClaimedUntil   *time.Time      `json:"claimed_until,omitempty"`
	LastStatusCode int             `json:"last_status_code"`
	LastResponse   string          `json:"last_response"`
	LastError      string          `json:"last_error"`
	LastLatencyMs  int             `json:"last_latency_ms"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
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

// claimScript atomically claims due deliveries. Claimed members stay in the
// due set with their score pushed to the lease deadline, so a crashed worker's
// claim simply becomes due again when the lease expires.
// KEYS[1] = due sorted set
// ARGV[1] = current unix timestamp (score threshold)
// ARGV[2] = limit
// ARGV[3] = lease deadline score
var claimScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
if #ids == 0 then return {} end
for i, id in ipairs(ids) do
    redis.call('ZADD', KEYS[1], ARGV[3], id)
end
return ids
`)

// guardedWriteScript overwrites a delivery record only while its stored
// status still matches the one the caller read. The status check and the
// write run in one script, so a record finalized by another actor can never
// be clobbered afterwards. The due set is adjusted in the same step.
// KEYS[1] = entity key
// KEYS[2] = due sorted set
// ARGV[1] = new record JSON
// ARGV[2] = due set member
// ARGV[3] = due set op: '' none, 'rem', or a score to ZADD
// ARGV[4] = expected current status
var guardedWriteScript = goredis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then return 'missing' end
local cur = cjson.decode(raw)
if cur['status'] ~= ARGV[4] then return 'stale' end
redis.call('SET', KEYS[1], ARGV[1])
if ARGV[3] == 'rem' then
    redis.call('ZREM', KEYS[2], ARGV[2])
elseif ARGV[3] ~= '' then
    redis.call('ZADD', KEYS[2], ARGV[3], ARGV[2])
end
return 'ok'
`)

// guardedWrite marshals m and runs guardedWriteScript against its record.
// Returns "ok", "stale", or "missing".
func (s *Store) guardedWrite(ctx context.Context, m *deliveryModel, dueOp, expected string) (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("redisstore: marshal delivery: %w", err)
	}
	keys := []string{entityKey(prefixDelivery, m.ID), zDeliveryDue}
	res, err := guardedWriteScript.Run(ctx, s.rdb, keys, raw, m.ID, dueOp, expected).Text()
	if err != nil {
		return "", fmt.Errorf("redisstore: guarded write: %w", err)
	}
	return res, nil
}

func (s *Store) Enqueue(ctx context.Context, d *delivery.Delivery) error {
	return s.EnqueueBatch(ctx, []*delivery.Delivery{d})
}

func (s *Store) EnqueueBatch(ctx context.Context, ds []*delivery.Delivery) error {
	if len(ds) == 0 {
		return nil
	}

	pipe := s.rdb.Pipeline()
	for _, d := range ds {
		m := toDeliveryModel(d)

		raw, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("redisstore: enqueue marshal: %w", err)
		}
		pipe.Set(ctx, entityKey(prefixDelivery, m.ID), raw, 0)
		pipe.ZAdd(ctx, zDeliveryDue, goredis.Z{Score: scoreFromTime(m.NextAttemptAt), Member: m.ID})
		pipe.ZAdd(ctx, zDeliveryEP+m.EndpointID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
		pipe.ZAdd(ctx, zDeliveryOrg+m.OrgID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisstore: enqueue: %w", err)
	}
	return nil
}

func (s *Store) ClaimDue(ctx context.Context, limit int, ttl time.Duration) ([]*delivery.Delivery, error) {
	ts := now()
	deadline := ts.Add(ttl)

	nowScore := fmt.Sprintf("%f", scoreFromTime(ts))
	leaseScore := fmt.Sprintf("%f", scoreFromTime(deadline))
	ids, err := claimScript.Run(ctx, s.rdb, []string{zDeliveryDue}, nowScore, limit, leaseScore).StringSlice()
	if err != nil {
		if isRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("redisstore: claim script: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	claimed := make([]*delivery.Delivery, 0, len(ids))
	for _, entryID := range ids {
		key := entityKey(prefixDelivery, entryID)
		var m deliveryModel
		if err := s.getEntity(ctx, key, &m); err != nil {
			if isRedisNil(err) {
				s.rdb.ZRem(ctx, zDeliveryDue, entryID)
				continue
			}
			return nil, fmt.Errorf("redisstore: claim get: %w", err)
		}

		m.ClaimedUntil = &deadline
		m.UpdatedAt = ts
		res, err := s.guardedWrite(ctx, &m, "", string(delivery.StatusPending))
		if err != nil {
			return nil, err
		}
		if res != "ok" {
			// Finalized by a stale worker between the claim and here;
			// its terminal outcome stands.
			if res == "missing" {
				s.rdb.ZRem(ctx, zDeliveryDue, entryID)
			}
			continue
		}

		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, d)
	}

	return claimed, nil
}

func (s *Store) Finalize(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)
	m.UpdatedAt = now()

	dueOp := "rem"
	if d.Status == delivery.StatusPending {
		// Rescheduled for another attempt: re-arm the due score.
		dueOp = fmt.Sprintf("%f", scoreFromTime(d.NextAttemptAt))
	}

	res, err := s.guardedWrite(ctx, m, dueOp, string(delivery.StatusPending))
	if err != nil {
		return err
	}
	switch res {
	case "missing":
		return delivery.ErrNotFound
	case "stale":
		return delivery.ErrStale
	}
	return nil
}

func (s *Store) Rearm(ctx context.Context, delID id.ID, at time.Time) error {
	key := entityKey(prefixDelivery, delID.String())

	var m deliveryModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isRedisNil(err) {
			return delivery.ErrNotFound
		}
		return fmt.Errorf("redisstore: rearm get: %w", err)
	}
	ts := now()
	prior := m.Status
	switch delivery.Status(m.Status) {
	case delivery.StatusFailed:
	case delivery.StatusPending:
		// A live claim means an attempt is in flight.
		if m.ClaimedUntil != nil && m.ClaimedUntil.After(ts) {
			return delivery.ErrNotRetryable
		}
	default:
		return delivery.ErrNotRetryable
	}

	m.Status = string(delivery.StatusPending)
	m.NextAttemptAt = at
	m.ClaimedUntil = nil
	m.CompletedAt = nil
	m.UpdatedAt = ts
	res, err := s.guardedWrite(ctx, &m, fmt.Sprintf("%f", scoreFromTime(at)), prior)
	if err != nil {
		return err
	}
	switch res {
	case "missing":
		return delivery.ErrNotFound
	case "stale":
		// The delivery moved between the read and the write.
		return delivery.ErrNotRetryable
	}
	return nil
}

func (s *Store) CancelPending(ctx context.Context, epID id.ID) (int64, error) {
	ids, err := s.rdb.ZRange(ctx, zDeliveryEP+epID.String(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("redisstore: cancel pending list: %w", err)
	}

	ts := now()
	var cancelled int64
	for _, entryID := range ids {
		key := entityKey(prefixDelivery, entryID)
		var m deliveryModel
		if err := s.getEntity(ctx, key, &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return cancelled, fmt.Errorf("redisstore: cancel pending get: %w", err)
		}
		if delivery.Status(m.Status) != delivery.StatusPending {
			continue
		}

		m.Status = string(delivery.StatusCancelled)
		m.CompletedAt = &ts
		m.ClaimedUntil = nil
		m.UpdatedAt = ts
		res, err := s.guardedWrite(ctx, &m, "rem", string(delivery.StatusPending))
		if err != nil {
			return cancelled, err
		}
		if res != "ok" {
			// A worker finalized this one first; its outcome stands.
			continue
		}
		cancelled++
	}

	return cancelled, nil
}

func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	var m deliveryModel
	if err := s.getEntity(ctx, entityKey(prefixDelivery, delID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, delivery.ErrNotFound
		}
		return nil, fmt.Errorf("redisstore: get delivery: %w", err)
	}
	return fromDeliveryModel(&m)
}

func (s *Store) ListByEndpoint(ctx context.Context, epID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	return s.listByIndex(ctx, zDeliveryEP+epID.String(), opts)
}

func (s *Store) ListByOrg(ctx context.Context, orgID string, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	return s.listByIndex(ctx, zDeliveryOrg+orgID, opts)
}

func (s *Store) CountPending(ctx context.Context) (int64, error) {
	return s.rdb.ZCard(ctx, zDeliveryDue).Result()
}

// listByIndex loads deliveries from a creation-time sorted set, newest first.
func (s *Store) listByIndex(ctx context.Context, zKey string, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	ids, err := s.rdb.ZRevRange(ctx, zKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: list deliveries: %w", err)
	}

	result := make([]*delivery.Delivery, 0, len(ids))
	for _, entryID := range ids {
		var m deliveryModel
		if err := s.getEntity(ctx, entityKey(prefixDelivery, entryID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if opts.Status != nil && delivery.Status(m.Status) != *opts.Status {
			continue
		}
		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}
