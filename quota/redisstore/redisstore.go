// Copyright 2025 ModelGate
// SPDX-License-Identifier: Apache-2.0

// Package redisstore implements the admission quota store on Redis.
// Usage is tracked as one counter per tenant, category, and calendar
// month, so limits reset naturally at month boundaries without a
// background sweeper.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"modelgate/core/admission"
	"modelgate/core/quota"
)

// Counter keys expire well past the month they cover so a late read
// on the 1st still sees last month's final count.
const keyTTL = 45 * 24 * time.Hour

// Store is a Redis-backed admission.QuotaStore.
type Store struct {
	client *redis.Client
	limits quota.Limits
	now    func() time.Time
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

// New returns a Store using the given client.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		limits: quota.DefaultLimits,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect parses a redis:// URL, dials it, and verifies the
// connection with a ping.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

func usageKey(tenantID, category string, month time.Time) string {
	return fmt.Sprintf("quota:%s:%s:%s", tenantID, category, month.UTC().Format("2006-01"))
}

func tierKey(tenantID string) string {
	return fmt.Sprintf("tenant:%s:tier", tenantID)
}

// SetTier records the plan tier for a tenant. Tenants without a
// recorded tier are treated as free.
func (s *Store) SetTier(ctx context.Context, tenantID, tier string) error {
	if !s.limits.Knows(tier) {
		return fmt.Errorf("unknown plan tier %q", tier)
	}
	return s.client.Set(ctx, tierKey(tenantID), tier, 0).Err()
}

func (s *Store) tierFor(ctx context.Context, tenantID string) (string, error) {
	tier, err := s.client.Get(ctx, tierKey(tenantID)).Result()
	if err == redis.Nil {
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

// CheckRateLimit implements admission.QuotaStore.
func (s *Store) CheckRateLimit(ctx context.Context, tenantID, category string) (admission.Decision, error) {
	tier, err := s.tierFor(ctx, tenantID)
	if err != nil {
		return admission.Decision{}, fmt.Errorf("loading tenant tier: %w", err)
	}

	current, err := s.client.Get(ctx, usageKey(tenantID, category, s.now())).Int()
	if err == redis.Nil {
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
	key := usageKey(tenantID, category, s.now())

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, keyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("incrementing usage counter: %w", err)
	}
	return nil
}
