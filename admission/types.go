// Copyright 2025 ModelGate
// SPDX-License-Identifier: Apache-2.0

package admission

import (
	"context"
	"net/http"
)

// Decision is the ephemeral result of a quota check. The quota store owns
// persisted usage; the core never stores this.
type Decision struct {
	Allowed        bool   `json:"allowed"`
	Current        int    `json:"current"`
	Limit          int    `json:"limit"`
	Tier           string `json:"tier"`
	UpgradeMessage string `json:"upgrade_message,omitempty"`
}

// QuotaStore persists per-tenant usage counts. Implementations may fail;
// the guard fails open on every store error.
type QuotaStore interface {
	// CheckRateLimit reports whether tenantID may spend one more request
	// in category.
	CheckRateLimit(ctx context.Context, tenantID, category string) (Decision, error)

	// IncrementUsage records one successful request. Called fire-and-forget
	// after the handler responds; errors are logged, never propagated.
	IncrementUsage(ctx context.Context, tenantID, category string) error
}

// Identity is a resolved caller.
type Identity struct {
	TenantID  string
	RequestID string
}

// IdentityResolver maps an inbound request to a tenant. Resolution
// failure is fail-closed: the guard returns the resolver's failure
// response and never calls the handler.
type IdentityResolver interface {
	Resolve(r *http.Request) (Identity, *ResolutionFailure)
}

// ResolutionFailure describes why identity resolution failed and the
// response to surface.
type ResolutionFailure struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error"`
	Message    string `json:"message"`
}

// DenialResponse is the body returned for an admission-denied request,
// structured so the surrounding product can render an upgrade prompt.
type DenialResponse struct {
	Error          string `json:"error"`
	Current        int    `json:"current"`
	Limit          int    `json:"limit"`
	Tier           string `json:"tier"`
	UpgradeMessage string `json:"upgrade_message,omitempty"`
}
