// Copyright 2025 ModelGate
// SPDX-License-Identifier: Apache-2.0

// Package sqlstore implements the admission quota store on a SQL
// database. It is the durable alternative to the Redis store for
// deployments that already run Postgres or MySQL and do not want an
// extra moving part.
//
// Schema:
//
//	CREATE TABLE tenant_plans (
//	    tenant_id TEXT PRIMARY KEY,
//	    tier      TEXT NOT NULL
//	);
//
//	CREATE TABLE quota_usage (
//	    tenant_id TEXT NOT NULL,
//	    category  TEXT NOT NULL,
//	    month     TEXT NOT NULL,
//	    used      INTEGER NOT NULL DEFAULT 0,
//	    PRIMARY KEY (tenant_id, category, month)
//	);
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modelgate/core/admission"
	"modelgate/core/quota"
)

// Dialect selects the SQL flavor for placeholders and upserts.
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
)

// Store is a SQL-backed admission.QuotaStore.
type Store struct {
	db      *sql.DB
	dialect Dialect
	limits  quota.Limits
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLimits replaces the default quota table.
func WithLimits(limits quota.Limits) Option {
	return func(s *Store) { s.limits = limits }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a Store over the given database handle.
func New(db *sql.DB, dialect Dialect, opts ...Option) (*Store, error) {
	switch dialect {
	case Postgres, MySQL:
	default:
		return nil, fmt.Errorf("unsupported SQL dialect %q", dialect)
	}
	s := &Store{
		db:      db,
		dialect: dialect,
		limits:  quota.DefaultLimits,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) month() string {
	return s.now().UTC().Format("2006-01")
}

const (
	tierQueryPostgres = `SELECT tier FROM tenant_plans WHERE tenant_id = $1`
	tierQueryMySQL    = `SELECT tier FROM tenant_plans WHERE tenant_id = ?`

	usageQueryPostgres = `SELECT used FROM quota_usage WHERE tenant_id = $1 AND category = $2 AND month = $3`
	usageQueryMySQL    = `SELECT used FROM quota_usage WHERE tenant_id = ? AND category = ? AND month = ?`

	incrementPostgres = `INSERT INTO quota_usage (tenant_id, category, month, used)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (tenant_id, category, month) DO UPDATE SET used = quota_usage.used + 1`
	incrementMySQL = `INSERT INTO quota_usage (tenant_id, category, month, used)
		VALUES (?, ?, ?, 1)
		ON DUPLICATE KEY UPDATE used = used + 1`

	setTierPostgres = `INSERT INTO tenant_plans (tenant_id, tier) VALUES ($1, $2)
		ON CONFLICT (tenant_id) DO UPDATE SET tier = EXCLUDED.tier`
	setTierMySQL = `INSERT INTO tenant_plans (tenant_id, tier) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE tier = VALUES(tier)`
)

func (s *Store) tierFor(ctx context.Context, tenantID string) (string, error) {
	query := tierQueryPostgres
	if s.dialect == MySQL {
		query = tierQueryMySQL
	}

	var tier string
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(&tier)
	if errors.Is(err, sql.ErrNoRows) {
		return quota.PlanFree, nil
	}
	if err != nil {
		return "", err
	}
	if !s.limits.Knows(tier) {
		return quota.PlanFree, nil
	}
	return tier, nil
}

// SetTier records the plan tier for a tenant.
func (s *Store) SetTier(ctx context.Context, tenantID, tier string) error {
	if !s.limits.Knows(tier) {
		return fmt.Errorf("unknown plan tier %q", tier)
	}
	query := setTierPostgres
	if s.dialect == MySQL {
		query = setTierMySQL
	}
	if _, err := s.db.ExecContext(ctx, query, tenantID, tier); err != nil {
		return fmt.Errorf("storing tenant tier: %w", err)
	}
	return nil
}

// CheckRateLimit implements admission.QuotaStore.
func (s *Store) CheckRateLimit(ctx context.Context, tenantID, category string) (admission.Decision, error) {
	tier, err := s.tierFor(ctx, tenantID)
	if err != nil {
		return admission.Decision{}, fmt.Errorf("loading tenant tier: %w", err)
	}

	query := usageQueryPostgres
	if s.dialect == MySQL {
		query = usageQueryMySQL
	}

	var current int
	err = s.db.QueryRowContext(ctx, query, tenantID, category, s.month()).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		current = 0
	} else if err != nil {
		return admission.Decision{}, fmt.Errorf("loading usage counter: %w", err)
	}

	limit := s.limits.LimitFor(tier, category)
	decision := admission.Decision{
		Allowed: current < limit,
		Current: current,
		Limit:   limit,
		Tier:    tier,
	}
	if !decision.Allowed {
		decision.UpgradeMessage = quota.UpgradeMessage(tier)
	}
	return decision, nil
}

// IncrementUsage implements admission.QuotaStore.
func (s *Store) IncrementUsage(ctx context.Context, tenantID, category string) error {
	query := incrementPostgres
	if s.dialect == MySQL {
		query = incrementMySQL
	}
	if _, err := s.db.ExecContext(ctx, query, tenantID, category, s.month()); err != nil {
		return fmt.Errorf("incrementing usage counter: %w", err)
	}
	return nil
}
