// Copyright 2025 ModelGate
// SPDX-License-Identifier: Apache-2.0

// Package identity resolves the calling tenant from an incoming HTTP
// request. Two resolvers are provided: a JWT bearer resolver for edge
// traffic and a trusted-header resolver for requests arriving from an
// internal proxy that has already authenticated the caller.
package identity

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"modelgate/core/admission"
)

const (
	// HeaderTenantID carries the tenant identifier set by a trusted proxy.
	HeaderTenantID = "X-Tenant-ID"
	// HeaderRequestID carries a caller-supplied correlation id. When
	// absent a fresh UUID is assigned.
	HeaderRequestID = "X-Request-ID"
)

// Claims is the token payload ModelGate issues to tenants.
type Claims struct {
	TenantID string `json:"tenant_id"`
	Tier     string `json:"tier,omitempty"`
	jwt.RegisteredClaims
}

// JWTResolver authenticates requests with an HMAC-signed bearer token.
type JWTResolver struct {
	secret []byte
}

// NewJWTResolver returns a resolver that validates tokens signed with
// the given shared secret.
func NewJWTResolver(secret []byte) *JWTResolver {
	return &JWTResolver{secret: secret}
}

// Resolve implements admission.IdentityResolver.
func (j *JWTResolver) Resolve(r *http.Request) (admission.Identity, *admission.ResolutionFailure) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return admission.Identity{}, &admission.ResolutionFailure{
			StatusCode: http.StatusUnauthorized,
			Code:       "missing_token",
			Message:    "Authorization header is required",
		}
	}

	raw, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return admission.Identity{}, &admission.ResolutionFailure{
			StatusCode: http.StatusUnauthorized,
			Code:       "invalid_token",
			Message:    "Authorization header must use the Bearer scheme",
		}
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return j.secret, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil || !token.Valid {
		return admission.Identity{}, &admission.ResolutionFailure{
			StatusCode: http.StatusUnauthorized,
			Code:       "invalid_token",
			Message:    "bearer token is invalid or expired",
		}
	}
	if claims.TenantID == "" {
		return admission.Identity{}, &admission.ResolutionFailure{
			StatusCode: http.StatusUnauthorized,
			Code:       "invalid_token",
			Message:    "token is missing the tenant_id claim",
		}
	}

	return admission.Identity{
		TenantID:  claims.TenantID,
		RequestID: requestID(r),
	}, nil
}

// HeaderResolver trusts an upstream proxy to have authenticated the
// caller and to stamp the tenant id into a header. It must only be
// used behind a boundary that strips the header from external traffic.
type HeaderResolver struct{}

// NewHeaderResolver returns a resolver that reads X-Tenant-ID.
func NewHeaderResolver() *HeaderResolver {
	return &HeaderResolver{}
}

// Resolve implements admission.IdentityResolver.
func (h *HeaderResolver) Resolve(r *http.Request) (admission.Identity, *admission.ResolutionFailure) {
	tenantID := strings.TrimSpace(r.Header.Get(HeaderTenantID))
	if tenantID == "" {
		return admission.Identity{}, &admission.ResolutionFailure{
			StatusCode: http.StatusUnauthorized,
			Code:       "missing_tenant",
			Message:    "X-Tenant-ID header is required",
		}
	}
	return admission.Identity{
		TenantID:  tenantID,
		RequestID: requestID(r),
	}, nil
}

func requestID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(HeaderRequestID)); id != "" {
		return id
	}
	return uuid.NewString()
}
