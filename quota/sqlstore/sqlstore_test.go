// Copyright 2025 ModelGate
// SPDX-License-Identifier: Apache-2.0

package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"modelgate/core/quota"
)

var testClock = func() time.Time {
	return time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC)
}

const testMonth = "2025-06"

func newMockStore(t *testing.T, dialect Dialect) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := New(db, dialect, WithClock(testClock))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store, mock
}

func TestCheckRateLimitAllowed(t *testing.T) {
	store, mock := newMockStore(t, Postgres)

	mock.ExpectQuery(`SELECT tier FROM tenant_plans`).
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"tier"}).AddRow("pro"))
	mock.ExpectQuery(`SELECT used FROM quota_usage`).
		WithArgs("acme", "chat", testMonth).
		WillReturnRows(sqlmock.NewRows([]string{"used"}).AddRow(42))

	decision, err := store.CheckRateLimit(context.Background(), "acme", "chat")
	if err != nil {
		t.Fatalf("CheckRateLimit: %v", err)
	}
	if !decision.Allowed {
		t.Error("usage under the limit should be allowed")
	}
	if decision.Current != 42 {
		t.Errorf("Current = %d, want 42", decision.Current)
	}
	if decision.Tier != quota.PlanPro {
		t.Errorf("Tier = %q, want pro", decision.Tier)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCheckRateLimitUnknownTenantDefaultsToFree(t *testing.T) {
	store, mock := newMockStore(t, Postgres)

	mock.ExpectQuery(`SELECT tier FROM tenant_plans`).
		WithArgs("newcomer").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT used FROM quota_usage`).
		WithArgs("newcomer", "chat", testMonth).
		WillReturnError(sql.ErrNoRows)

	decision, err := store.CheckRateLimit(context.Background(), "newcomer", "chat")
	if err != nil {
		t.Fatalf("CheckRateLimit: %v", err)
	}
	if decision.Tier != quota.PlanFree {
		t.Errorf("Tier = %q, want free", decision.Tier)
	}
	if decision.Current != 0 {
		t.Errorf("Current = %d, want 0", decision.Current)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCheckRateLimitDenialCarriesUpgradeMessage(t *testing.T) {
	store, mock := newMockStore(t, Postgres)

	limit := quota.DefaultLimits.LimitFor(quota.PlanFree, "chat")
	mock.ExpectQuery(`SELECT tier FROM tenant_plans`).
		WithArgs("acme").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT used FROM quota_usage`).
		WithArgs("acme", "chat", testMonth).
		WillReturnRows(sqlmock.NewRows([]string{"used"}).AddRow(limit))

	decision, err := store.CheckRateLimit(context.Background(), "acme", "chat")
	if err != nil {
		t.Fatalf("CheckRateLimit: %v", err)
	}
	if decision.Allowed {
		t.Error("usage at the limit must be denied")
	}
	if decision.UpgradeMessage == "" {
		t.Error("free tier denials should carry an upgrade message")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCheckRateLimitPropagatesStoreError(t *testing.T) {
	store, mock := newMockStore(t, Postgres)

	mock.ExpectQuery(`SELECT tier FROM tenant_plans`).
		WithArgs("acme").
		WillReturnError(errors.New("connection reset"))

	if _, err := store.CheckRateLimit(context.Background(), "acme", "chat"); err == nil {
		t.Error("expected database errors to surface")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestIncrementUsageUpsert(t *testing.T) {
	for _, dialect := range []Dialect{Postgres, MySQL} {
		t.Run(string(dialect), func(t *testing.T) {
			store, mock := newMockStore(t, dialect)

			pattern := `ON CONFLICT`
			if dialect == MySQL {
				pattern = `ON DUPLICATE KEY`
			}
			mock.ExpectExec(`INSERT INTO quota_usage .*` + pattern).
				WithArgs("acme", "chat", testMonth).
				WillReturnResult(sqlmock.NewResult(0, 1))

			if err := store.IncrementUsage(context.Background(), "acme", "chat"); err != nil {
				t.Fatalf("IncrementUsage: %v", err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestSetTier(t *testing.T) {
	store, mock := newMockStore(t, Postgres)

	mock.ExpectExec(`INSERT INTO tenant_plans`).
		WithArgs("acme", quota.PlanEnterprise).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SetTier(context.Background(), "acme", quota.PlanEnterprise); err != nil {
		t.Fatalf("SetTier: %v", err)
	}
	if err := store.SetTier(context.Background(), "acme", "platinum"); err == nil {
		t.Error("unknown tier should be rejected")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUnsupportedDialect(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	if _, err := New(db, Dialect("oracle")); err == nil {
		t.Error("expected unsupported dialect to be rejected")
	}
}
