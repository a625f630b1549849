// Copyright 2025 ModelGate
// SPDX-License-Identifier: Apache-2.0

package admission

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// fakeStore is a scriptable QuotaStore.
type fakeStore struct {
	mu         sync.Mutex
	decision   Decision
	checkErr   error
	incErr     error
	checks     int
	increments []string // "tenant/category"
}

func (s *fakeStore) CheckRateLimit(ctx context.Context, tenantID, category string) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks++
	if s.checkErr != nil {
		return Decision{}, s.checkErr
	}
	return s.decision, nil
}

func (s *fakeStore) IncrementUsage(ctx context.Context, tenantID, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.increments = append(s.increments, tenantID+"/"+category)
	return s.incErr
}

func (s *fakeStore) incrementCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.increments)
}

// staticResolver resolves every request to a fixed tenant.
type staticResolver struct {
	identity Identity
	failure  *ResolutionFailure
}

func (r *staticResolver) Resolve(*http.Request) (Identity, *ResolutionFailure) {
	if r.failure != nil {
		return Identity{}, r.failure
	}
	return r.identity, nil
}

func newTestGuard(store QuotaStore, resolver IdentityResolver) (*Guard, chan struct{}) {
	done := make(chan struct{}, 8)
	g := NewGuard(store, resolver, WithIncrementSignal(done))
	return g, done
}

func okHandler(status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
}

func waitIncrement(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for usage increment")
	}
}

func TestAllowedRequestReachesHandlerAndMeters(t *testing.T) {
	store := &fakeStore{decision: Decision{Allowed: true, Current: 3, Limit: 100, Tier: "pro"}}
	g, done := newTestGuard(store, &staticResolver{identity: Identity{TenantID: "t-1"}})

	handlerCalled := false
	wrapped := g.WithRateLimit("chat", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/route", nil))

	if !handlerCalled {
		t.Fatal("handler was not invoked")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	waitIncrement(t, done)
	if store.incrementCount() != 1 {
		t.Errorf("increments = %d, want 1", store.incrementCount())
	}
	if store.increments[0] != "t-1/chat" {
		t.Errorf("increment recorded %q, want t-1/chat", store.increments[0])
	}
}

func TestDeniedRequestShortCircuits(t *testing.T) {
	store := &fakeStore{decision: Decision{
		Allowed:        false,
		Current:        100,
		Limit:          100,
		Tier:           "free",
		UpgradeMessage: "Upgrade to Pro for higher limits",
	}}
	g, _ := newTestGuard(store, &staticResolver{identity: Identity{TenantID: "t-1"}})

	handlerCalled := false
	wrapped := g.WithRateLimit("chat", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	}))

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/route", nil))

	if handlerCalled {
		t.Fatal("handler must never run for a denied request")
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}

	var denial DenialResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &denial); err != nil {
		t.Fatalf("denial body is not JSON: %v", err)
	}
	if denial.Current != 100 || denial.Limit != 100 || denial.Tier != "free" {
		t.Errorf("denial fields = %+v", denial)
	}
	if denial.UpgradeMessage == "" {
		t.Error("expected upgrade message carried through")
	}
	if store.incrementCount() != 0 {
		t.Error("denied requests must not be metered")
	}
}

func TestQuotaStoreFailureFailsOpen(t *testing.T) {
	store := &fakeStore{checkErr: errors.New("redis: connection refused")}
	g, done := newTestGuard(store, &staticResolver{identity: Identity{TenantID: "t-1"}})

	handlerCalled := false
	wrapped := g.WithRateLimit("chat", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/route", nil))

	if !handlerCalled {
		t.Fatal("store failure must fail open and invoke the handler")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	// Metering still runs on success even when the check failed open.
	waitIncrement(t, done)
}

func TestIdentityFailureFailsClosed(t *testing.T) {
	store := &fakeStore{decision: Decision{Allowed: true}}
	g, _ := newTestGuard(store, &staticResolver{failure: &ResolutionFailure{
		StatusCode: http.StatusUnauthorized,
		Code:       "invalid_token",
		Message:    "bearer token is expired",
	}})

	handlerCalled := false
	wrapped := g.WithRateLimit("chat", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
	}))

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/route", nil))

	if handlerCalled {
		t.Fatal("handler must never run for an unresolved identity")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if store.checks != 0 {
		t.Error("quota store must not be consulted without an identity")
	}
}

func TestNoIncrementOnErrorStatus(t *testing.T) {
	store := &fakeStore{decision: Decision{Allowed: true, Limit: 100, Tier: "pro"}}
	g, _ := newTestGuard(store, &staticResolver{identity: Identity{TenantID: "t-1"}})

	for _, status := range []int{http.StatusBadRequest, http.StatusInternalServerError, http.StatusBadGateway} {
		wrapped := g.WithRateLimit("chat", okHandler(status))
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/route", nil))
	}

	// Give any stray goroutine a moment to fire, then assert nothing did.
	time.Sleep(50 * time.Millisecond)
	if n := store.incrementCount(); n != 0 {
		t.Errorf("increments after error responses = %d, want 0", n)
	}
}

func TestSkipIncrementOption(t *testing.T) {
	store := &fakeStore{decision: Decision{Allowed: true, Limit: 100, Tier: "pro"}}
	g, _ := newTestGuard(store, &staticResolver{identity: Identity{TenantID: "t-1"}})

	wrapped := g.WithRateLimit("chat", okHandler(http.StatusOK), Options{SkipIncrement: true})
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/route", nil))

	time.Sleep(50 * time.Millisecond)
	if n := store.incrementCount(); n != 0 {
		t.Errorf("increments with SkipIncrement = %d, want 0", n)
	}
}

func TestNoIncrementForAbortedRequest(t *testing.T) {
	store := &fakeStore{decision: Decision{Allowed: true, Limit: 100, Tier: "pro"}}
	g, _ := newTestGuard(store, &staticResolver{identity: Identity{TenantID: "t-1"}})

	wrapped := g.WithRateLimit("chat", okHandler(http.StatusOK))

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/v1/route", nil).WithContext(ctx)
	cancel() // abort before the handler resolves

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	time.Sleep(50 * time.Millisecond)
	if n := store.incrementCount(); n != 0 {
		t.Errorf("increments for aborted request = %d, want 0", n)
	}
}

func TestIncrementErrorDoesNotAffectResponse(t *testing.T) {
	store := &fakeStore{
		decision: Decision{Allowed: true, Limit: 100, Tier: "pro"},
		incErr:   errors.New("insert failed"),
	}
	g, done := newTestGuard(store, &staticResolver{identity: Identity{TenantID: "t-1"}})

	wrapped := g.WithRateLimit("chat", okHandler(http.StatusCreated))
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/route", nil))

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201 regardless of metering failure", rec.Code)
	}
	waitIncrement(t, done)
}

func TestExtractTenantIDOverride(t *testing.T) {
	store := &fakeStore{decision: Decision{Allowed: true, Limit: 10, Tier: "free"}}
	g, done := newTestGuard(store, &staticResolver{failure: &ResolutionFailure{
		StatusCode: http.StatusUnauthorized,
		Code:       "unreachable",
		Message:    "default resolver must not run",
	}})

	wrapped := g.WithRateLimit("chat", okHandler(http.StatusOK), Options{
		ExtractTenantID: func(r *http.Request) (Identity, *ResolutionFailure) {
			return Identity{TenantID: r.Header.Get("X-Test-Tenant")}, nil
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/route", nil)
	req.Header.Set("X-Test-Tenant", "custom-9")
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	waitIncrement(t, done)
	if store.increments[0] != "custom-9/chat" {
		t.Errorf("increment recorded %q, want custom-9/chat", store.increments[0])
	}
}
