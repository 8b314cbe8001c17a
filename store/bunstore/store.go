// Package bunstore implements store.Store on top of the Bun ORM, for
// Postgres and SQLite backends.
package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/lunarispay/hookline/catalog"
	"github.com/lunarispay/hookline/delivery"
	"github.com/lunarispay/hookline/endpoint"
	"github.com/lunarispay/hookline/id"
	hookstore "github.com/lunarispay/hookline/store"
)

// compile-time interface check
var _ hookstore.Store = (*Store)(nil)

// Store implements store.Store using the Bun ORM.
type Store struct {
	db *bun.DB
}

// New creates a new Bun-backed store.
func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying Bun database for direct access.
func (s *Store) DB() *bun.DB { return s.db }

// Migrate creates the required tables using Bun's CreateTable.
func (s *Store) Migrate(ctx context.Context) error {
	models := []any{
		(*eventTypeModel)(nil),
		(*endpointModel)(nil),
		(*deliveryModel)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return err
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_hookline_deliveries_due ON hookline_deliveries (next_attempt_at) WHERE status = 'pending'",
		"CREATE INDEX IF NOT EXISTS idx_hookline_deliveries_endpoint ON hookline_deliveries (endpoint_id)",
		"CREATE INDEX IF NOT EXISTS idx_hookline_deliveries_org ON hookline_deliveries (org_id)",
		"CREATE INDEX IF NOT EXISTS idx_hookline_endpoints_org ON hookline_endpoints (org_id)",
	}
	for _, ddl := range indexes {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}

	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Catalog Store ====================

func (s *Store) RegisterType(ctx context.Context, et *catalog.EventType) error {
	m := toEventTypeModel(et)
	_, err := s.db.NewInsert().
		Model(m).
		On("CONFLICT (name) DO UPDATE").
		Set("description = EXCLUDED.description").
		Set("group_name = EXCLUDED.group_name").
		Set("schema = EXCLUDED.schema").
		Set("version = EXCLUDED.version").
		Set("example = EXCLUDED.example").
		Set("deprecated = false").
		Set("deprecated_at = NULL").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetType(ctx context.Context, name string) (*catalog.EventType, error) {
	m := new(eventTypeModel)
	err := s.db.NewSelect().
		Model(m).
		Where("name = ?", name).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, err
	}
	return fromEventTypeModel(m)
}

func (s *Store) ListTypes(ctx context.Context, opts catalog.ListOpts) ([]*catalog.EventType, error) {
	var models []eventTypeModel
	q := s.db.NewSelect().Model(&models)

	if opts.Group != "" {
		q = q.Where("group_name = ?", opts.Group)
	}
	if !opts.IncludeDeprecated {
		q = q.Where("deprecated = false")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.Order("name ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*catalog.EventType, len(models))
	for i := range models {
		et, err := fromEventTypeModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = et
	}
	return result, nil
}

func (s *Store) DeprecateType(ctx context.Context, name string) error {
	now := time.Now().UTC()
	res, err := s.db.NewUpdate().
		Model((*eventTypeModel)(nil)).
		Set("deprecated = true").
		Set("deprecated_at = ?", now).
		Set("updated_at = ?", now).
		Where("name = ?", name).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// ==================== Endpoint Store ====================

func (s *Store) CreateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	m, err := toEndpointModel(ep)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().Model(m).Exec(ctx)
	return err
}

func (s *Store) GetEndpoint(ctx context.Context, epID id.ID) (*endpoint.Endpoint, error) {
	m := new(endpointModel)
	err := s.db.NewSelect().
		Model(m).
		Where("id = ?", epID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, endpoint.ErrNotFound
		}
		return nil, err
	}
	return fromEndpointModel(m)
}

func (s *Store) UpdateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	m, err := toEndpointModel(ep)
	if err != nil {
		return err
	}
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().
		Model(m).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return endpoint.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteEndpoint(ctx context.Context, epID id.ID) error {
	res, err := s.db.NewDelete().
		Model((*endpointModel)(nil)).
		Where("id = ?", epID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return endpoint.ErrNotFound
	}
	return nil
}

func (s *Store) ListEndpoints(ctx context.Context, orgID string, opts endpoint.ListOpts) ([]*endpoint.Endpoint, error) {
	var models []endpointModel
	q := s.db.NewSelect().Model(&models).Where("org_id = ?", orgID)
	if opts.Status != nil {
		q = q.Where("status = ?", string(*opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.Order("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*endpoint.Endpoint, len(models))
	for i := range models {
		ep, err := fromEndpointModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = ep
	}
	return result, nil
}

// ResolveSubscribed filters active endpoints in SQL and matches subscription
// patterns in memory; pattern matching is glob-based and does not map to an
// index anyway.
func (s *Store) ResolveSubscribed(ctx context.Context, orgID string, eventType string) ([]*endpoint.Endpoint, error) {
	var models []endpointModel
	if err := s.db.NewSelect().
		Model(&models).
		Where("org_id = ?", orgID).
		Where("status = ?", string(endpoint.StatusActive)).
		Scan(ctx); err != nil {
		return nil, err
	}

	var result []*endpoint.Endpoint
	for i := range models {
		ep, err := fromEndpointModel(&models[i])
		if err != nil {
			return nil, err
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
	now := time.Now().UTC()
	q := s.db.NewUpdate().
		Model((*endpointModel)(nil)).
		Set("status = ?", string(status)).
		Set("updated_at = ?", now).
		Where("id = ?", epID.String())
	if status == endpoint.StatusActive {
		q = q.Set("disabled_reason = ''").
			Set("consecutive_failures = 0")
	} else {
		q = q.Set("disabled_reason = ?", reason)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return endpoint.ErrNotFound
	}
	return nil
}

func (s *Store) RecordSuccess(ctx context.Context, epID id.ID, at time.Time) error {
	res, err := s.db.NewUpdate().
		Model((*endpointModel)(nil)).
		Set("consecutive_failures = 0").
		Set("last_success_at = ?", at).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", epID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return endpoint.ErrNotFound
	}
	return nil
}

func (s *Store) RecordFailure(ctx context.Context, epID id.ID, at time.Time) (int, error) {
	var failures int
	err := s.db.NewUpdate().
		Model((*endpointModel)(nil)).
		Set("consecutive_failures = consecutive_failures + 1").
		Set("last_failure_at = ?", at).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", epID.String()).
		Returning("consecutive_failures").
		Scan(ctx, &failures)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, endpoint.ErrNotFound
		}
		return 0, err
	}
	return failures, nil
}

// ==================== Delivery Store ====================

func (s *Store) Enqueue(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)
	_, err := s.db.NewInsert().Model(m).Exec(ctx)
	return err
}

func (s *Store) EnqueueBatch(ctx context.Context, ds []*delivery.Delivery) error {
	if len(ds) == 0 {
		return nil
	}
	models := make([]deliveryModel, len(ds))
	for i, d := range ds {
		models[i] = *toDeliveryModel(d)
	}
	_, err := s.db.NewInsert().Model(&models).Exec(ctx)
	return err
}

// ClaimDue leases due pending rows by moving claimed_until into the future.
// On Postgres the inner select takes row locks with SKIP LOCKED so parallel
// workers never race on the same batch; SQLite serializes writers anyway.
func (s *Store) ClaimDue(ctx context.Context, limit int, ttl time.Duration) ([]*delivery.Delivery, error) {
	now := time.Now().UTC()
	deadline := now.Add(ttl)

	lock := ""
	if s.db.Dialect().Name() == dialect.PG {
		lock = "FOR UPDATE SKIP LOCKED"
	}

	var models []deliveryModel
	err := s.db.NewRaw(`
		UPDATE hookline_deliveries
		SET claimed_until = ?, updated_at = ?
		WHERE id IN (
			SELECT id FROM hookline_deliveries
			WHERE status = 'pending'
			  AND next_attempt_at <= ?
			  AND (claimed_until IS NULL OR claimed_until <= ?)
			ORDER BY next_attempt_at ASC
			LIMIT ?
			`+lock+`
		)
		RETURNING *
	`, deadline, now, now, now, limit).Scan(ctx, &models)
	if err != nil {
		return nil, err
	}

	result := make([]*delivery.Delivery, len(models))
	for i := range models {
		d, err := fromDeliveryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = d
	}
	return result, nil
}

func (s *Store) Finalize(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().
		Model(m).
		WherePK().
		Where("status = 'pending'").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		exists, err := s.db.NewSelect().
			Model((*deliveryModel)(nil)).
			Where("id = ?", m.ID).
			Exists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return delivery.ErrNotFound
		}
		return delivery.ErrStale
	}
	return nil
}

// Rearm re-activates a failed delivery or pulls forward an unclaimed pending
// one; a live claim means the row is in flight and must not be touched.
func (s *Store) Rearm(ctx context.Context, delID id.ID, at time.Time) error {
	now := time.Now().UTC()
	res, err := s.db.NewUpdate().
		Model((*deliveryModel)(nil)).
		Set("status = 'pending'").
		Set("next_attempt_at = ?", at).
		Set("claimed_until = NULL").
		Set("completed_at = NULL").
		Set("updated_at = ?", now).
		Where("id = ?", delID.String()).
		Where("status = 'failed' OR (status = 'pending' AND (claimed_until IS NULL OR claimed_until <= ?))", now).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		exists, err := s.db.NewSelect().
			Model((*deliveryModel)(nil)).
			Where("id = ?", delID.String()).
			Exists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return delivery.ErrNotFound
		}
		return delivery.ErrNotRetryable
	}
	return nil
}

func (s *Store) CancelPending(ctx context.Context, epID id.ID) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.NewUpdate().
		Model((*deliveryModel)(nil)).
		Set("status = 'cancelled'").
		Set("completed_at = ?", now).
		Set("claimed_until = NULL").
		Set("updated_at = ?", now).
		Where("endpoint_id = ?", epID.String()).
		Where("status = 'pending'").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	m := new(deliveryModel)
	err := s.db.NewSelect().
		Model(m).
		Where("id = ?", delID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, delivery.ErrNotFound
		}
		return nil, err
	}
	return fromDeliveryModel(m)
}

func (s *Store) ListByEndpoint(ctx context.Context, epID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	var models []deliveryModel
	q := s.db.NewSelect().Model(&models).Where("endpoint_id = ?", epID.String())
	q = applyDeliveryOpts(q, opts)

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return fromDeliveryModels(models)
}

func (s *Store) ListByOrg(ctx context.Context, orgID string, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	var models []deliveryModel
	q := s.db.NewSelect().Model(&models).Where("org_id = ?", orgID)
	q = applyDeliveryOpts(q, opts)

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return fromDeliveryModels(models)
}

func (s *Store) CountPending(ctx context.Context) (int64, error) {
	n, err := s.db.NewSelect().
		Model((*deliveryModel)(nil)).
		Where("status = 'pending'").
		Count(ctx)
	return int64(n), err
}

func applyDeliveryOpts(q *bun.SelectQuery, opts delivery.ListOpts) *bun.SelectQuery {
	if opts.Status != nil {
		q = q.Where("status = ?", string(*opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	return q.Order("created_at DESC")
}

func fromDeliveryModels(models []deliveryModel) ([]*delivery.Delivery, error) {
	result := make([]*delivery.Delivery, len(models))
	for i := range models {
		d, err := fromDeliveryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = d
	}
	return result, nil
}
