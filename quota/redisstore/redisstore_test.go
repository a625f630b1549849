// Copyright 2025 ModelGate
// SPDX-License-Identifier: Apache-2.0

package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"modelgate/core/quota"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, opts...), mr
}

func TestUnknownTenantDefaultsToFree(t *testing.T) {
	store, _ := newTestStore(t)

	decision, err := store.CheckRateLimit(context.Background(), "newcomer", "chat")
	if err != nil {
		t.Fatalf("CheckRateLimit: %v", err)
	}
	if !decision.Allowed {
		t.Error("fresh tenant should be allowed")
	}
	if decision.Tier != quota.PlanFree {
		t.Errorf("Tier = %q, want free", decision.Tier)
	}
	if decision.Current != 0 {
		t.Errorf("Current = %d, want 0", decision.Current)
	}
	if decision.Limit != quota.DefaultLimits[quota.PlanFree]["chat"] {
		t.Errorf("Limit = %d, want %d", decision.Limit, quota.DefaultLimits[quota.PlanFree]["chat"])
	}
}

func TestIncrementThenCheck(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := store.IncrementUsage(ctx, "acme", "chat"); err != nil {
			t.Fatalf("IncrementUsage: %v", err)
		}
	}

	decision, err := store.CheckRateLimit(ctx, "acme", "chat")
	if err != nil {
		t.Fatalf("CheckRateLimit: %v", err)
	}
	if decision.Current != 3 {
		t.Errorf("Current = %d, want 3", decision.Current)
	}
	if !decision.Allowed {
		t.Error("usage under the limit should be allowed")
	}
}

func TestDenialAtLimit(t *testing.T) {
	limits := quota.Limits{
		quota.PlanFree: {"*": 2},
		quota.PlanPro:  {"*": 100},
	}
	store, _ := newTestStore(t, WithLimits(limits))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := store.IncrementUsage(ctx, "acme", "chat"); err != nil {
			t.Fatalf("IncrementUsage: %v", err)
		}
	}

	decision, err := store.CheckRateLimit(ctx, "acme", "chat")
	if err != nil {
		t.Fatalf("CheckRateLimit: %v", err)
	}
	if decision.Allowed {
		t.Error("usage at the limit must be denied")
	}
	if decision.Current != 2 || decision.Limit != 2 {
		t.Errorf("Current/Limit = %d/%d, want 2/2", decision.Current, decision.Limit)
	}
	if decision.UpgradeMessage == "" {
		t.Error("free tier denials should carry an upgrade message")
	}
}

func TestTierSelection(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.SetTier(ctx, "acme", quota.PlanPro); err != nil {
		t.Fatalf("SetTier: %v", err)
	}

	decision, err := store.CheckRateLimit(ctx, "acme", "chat")
	if err != nil {
		t.Fatalf("CheckRateLimit: %v", err)
	}
	if decision.Tier != quota.PlanPro {
		t.Errorf("Tier = %q, want pro", decision.Tier)
	}
	if decision.Limit != quota.DefaultLimits[quota.PlanPro]["chat"] {
		t.Errorf("Limit = %d, want %d", decision.Limit, quota.DefaultLimits[quota.PlanPro]["chat"])
	}

	if err := store.SetTier(ctx, "acme", "platinum"); err == nil {
		t.Error("unknown tier should be rejected")
	}
}

func TestCategoriesAreIndependent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.IncrementUsage(ctx, "acme", "chat"); err != nil {
		t.Fatalf("IncrementUsage: %v", err)
	}

	decision, err := store.CheckRateLimit(ctx, "acme", "embeddings")
	if err != nil {
		t.Fatalf("CheckRateLimit: %v", err)
	}
	if decision.Current != 0 {
		t.Errorf("Current for untouched category = %d, want 0", decision.Current)
	}
}

func TestMonthlyWindowRollover(t *testing.T) {
	current := time.Date(2025, time.March, 28, 12, 0, 0, 0, time.UTC)
	store, _ := newTestStore(t, WithClock(func() time.Time { return current }))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := store.IncrementUsage(ctx, "acme", "chat"); err != nil {
			t.Fatalf("IncrementUsage: %v", err)
		}
	}

	decision, err := store.CheckRateLimit(ctx, "acme", "chat")
	if err != nil {
		t.Fatalf("CheckRateLimit: %v", err)
	}
	if decision.Current != 5 {
		t.Errorf("Current = %d, want 5", decision.Current)
	}

	// New calendar month starts with a fresh counter.
	current = time.Date(2025, time.April, 1, 0, 0, 1, 0, time.UTC)
	decision, err = store.CheckRateLimit(ctx, "acme", "chat")
	if err != nil {
		t.Fatalf("CheckRateLimit: %v", err)
	}
	if decision.Current != 0 {
		t.Errorf("Current after rollover = %d, want 0", decision.Current)
	}
}

func TestStoreErrorSurfaces(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	if _, err := store.CheckRateLimit(context.Background(), "acme", "chat"); err == nil {
		t.Error("expected an error when redis is unreachable")
	}
	if err := store.IncrementUsage(context.Background(), "acme", "chat"); err == nil {
		t.Error("expected an error when redis is unreachable")
	}
}
