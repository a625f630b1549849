// Copyright 2025 ModelGate
// SPDX-License-Identifier: Apache-2.0

package admission

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"modelgate/core/shared/logger"
)

// Guard gates and meters requests against per-tenant quotas before they
// reach a handler. Quota-store trouble never takes the product down: the
// guard is strictly fail-open for its own infrastructure and fail-closed
// for identity. The two policies must not be conflated.
type Guard struct {
	store    QuotaStore
	resolver IdentityResolver
	log      *logger.Logger

	// checkTimeout bounds the quota check; a timeout is treated like any
	// other store failure (fail open).
	checkTimeout time.Duration

	// incrementDone, when non-nil, is signalled after each fire-and-forget
	// increment attempt finishes. Tests use it to wait without sleeping.
	incrementDone chan struct{}
}

// GuardOption configures a Guard during creation.
type GuardOption func(*Guard)

// WithCheckTimeout bounds each quota check.
func WithCheckTimeout(d time.Duration) GuardOption {
	return func(g *Guard) {
		g.checkTimeout = d
	}
}

// WithLogger sets a custom logger.
func WithLogger(log *logger.Logger) GuardOption {
	return func(g *Guard) {
		g.log = log
	}
}

// WithIncrementSignal registers a channel signalled after every usage
// increment attempt completes. For tests.
func WithIncrementSignal(ch chan struct{}) GuardOption {
	return func(g *Guard) {
		g.incrementDone = ch
	}
}

// NewGuard creates an admission guard over a quota store and an identity
// resolver.
func NewGuard(store QuotaStore, resolver IdentityResolver, opts ...GuardOption) *Guard {
	g := &Guard{
		store:        store,
		resolver:     resolver,
		log:          logger.New("admission"),
		checkTimeout: 2 * time.Second,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Options tunes a single wrapped handler.
type Options struct {
	// ExtractTenantID overrides the default identity resolver.
	ExtractTenantID func(r *http.Request) (Identity, *ResolutionFailure)

	// SkipIncrement disables usage metering for this handler (health
	// probes, dry runs).
	SkipIncrement bool
}

// WithRateLimit wraps handler with admission control for category:
//
//  1. resolve the tenant (fail-closed on resolution failure)
//  2. check the quota (fail-open on store failure or timeout)
//  3. short-circuit denied requests with a structured denial body
//  4. invoke the handler
//  5. on a 2xx response, meter usage fire-and-forget
//
// Usage is never incremented for non-2xx responses or aborted requests:
// there is no charge for abandoned work.
func (g *Guard) WithRateLimit(category string, handler http.Handler, opts ...Options) http.Handler {
	var options Options
	if len(opts) > 0 {
		options = opts[0]
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, failure := g.resolveIdentity(r, options)
		if failure != nil {
			writeJSON(w, failure.StatusCode, failure)
			return
		}

		decision, checked := g.checkQuota(r.Context(), identity, category)
		if checked && !decision.Allowed {
			denialsTotal.WithLabelValues(category).Inc()
			g.log.Info(identity.TenantID, identity.RequestID, "Request denied by quota", map[string]interface{}{
				"category": category,
				"current":  decision.Current,
				"limit":    decision.Limit,
				"tier":     decision.Tier,
			})
			writeJSON(w, http.StatusTooManyRequests, DenialResponse{
				Error:          "rate_limit_exceeded",
				Current:        decision.Current,
				Limit:          decision.Limit,
				Tier:           decision.Tier,
				UpgradeMessage: decision.UpgradeMessage,
			})
			return
		}

		admittedTotal.WithLabelValues(category).Inc()

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler.ServeHTTP(recorder, r)

		// The increment is contingent on handler completion with a
		// success status; an aborted request is never charged.
		if options.SkipIncrement || !isSuccess(recorder.status) || r.Context().Err() != nil {
			return
		}
		g.incrementUsage(identity, category)
	})
}

func (g *Guard) resolveIdentity(r *http.Request, options Options) (Identity, *ResolutionFailure) {
	if options.ExtractTenantID != nil {
		return options.ExtractTenantID(r)
	}
	return g.resolver.Resolve(r)
}

// checkQuota returns the store's decision and whether a decision was
// obtained at all. Store errors and timeouts log and fail open.
func (g *Guard) checkQuota(ctx context.Context, identity Identity, category string) (Decision, bool) {
	checkCtx, cancel := context.WithTimeout(ctx, g.checkTimeout)
	defer cancel()

	decision, err := g.store.CheckRateLimit(checkCtx, identity.TenantID, category)
	if err != nil {
		quotaStoreErrors.Inc()
		g.log.Warn(identity.TenantID, identity.RequestID, "Quota check failed, failing open", map[string]interface{}{
			"category": category,
			"error":    err.Error(),
		})
		return Decision{}, false
	}
	return decision, true
}

// incrementUsage meters one successful request in the background. Its
// outcome never affects the response already returned; a detached context
// keeps the write alive past the request.
func (g *Guard) incrementUsage(identity Identity, category string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), g.checkTimeout)
		defer cancel()

		if err := g.store.IncrementUsage(ctx, identity.TenantID, category); err != nil {
			quotaStoreErrors.Inc()
			g.log.Warn(identity.TenantID, identity.RequestID, "Usage increment failed", map[string]interface{}{
				"category": category,
				"error":    err.Error(),
			})
		}

		if g.incrementDone != nil {
			g.incrementDone <- struct{}{}
		}
	}()
}

// statusRecorder captures the status code the handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
