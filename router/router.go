// Copyright 2025 ModelGate
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"fmt"
	"strconv"
	"strings"

	"modelgate/core/routing/circuitbreaker"
	"modelgate/core/routing/classifier"
	"modelgate/core/routing/models"
	"modelgate/core/shared/logger"
)

// Decision is the outcome of routing one request: which model to call
// and why.
type Decision struct {
	ModelID          string  `json:"model_id"`
	Provider         string  `json:"provider"`
	Category         string  `json:"category"`
	Tier             int     `json:"tier"`
	RequestedTier    int     `json:"requested_tier"`
	Confidence       float64 `json:"confidence"`
	Complexity       string  `json:"complexity"`
	EstimatedTokens  int     `json:"estimated_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
	// Skipped lists models passed over before the chosen one, with
	// the reason, e.g. "gpt-4o: circuit open".
	Skipped []string `json:"skipped,omitempty"`
}

// ErrCodeNoModelAvailable is returned when every candidate circuit is
// open across all tiers.
const ErrCodeNoModelAvailable = "NO_MODEL_AVAILABLE"

// RouteError reports a routing failure.
type RouteError struct {
	Code     string
	Message  string
	Category string
	Tier     int
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("routing failed [%s]: %s", e.Code, e.Message)
}

// Router picks a model for each request by classifying it, mapping the
// category to a capability tier, and walking the tier's models while
// consulting the circuit breaker. When an entire tier is unavailable
// the router escalates to higher tiers first, then falls back to lower
// ones.
type Router struct {
	registry *models.Registry
	breaker  *circuitbreaker.CircuitBreaker
	log      *logger.Logger

	// assumed completion size for pre-call cost estimates
	defaultOutputTokens int
}

// Option configures a Router.
type Option func(*Router)

// WithDefaultOutputTokens sets the completion-size assumption used for
// pre-call cost estimates.
func WithDefaultOutputTokens(n int) Option {
	return func(r *Router) { r.defaultOutputTokens = n }
}

// New returns a Router over the given collaborators.
func New(registry *models.Registry, breaker *circuitbreaker.CircuitBreaker, opts ...Option) *Router {
	r := &Router{
		registry:            registry,
		breaker:             breaker,
		log:                 logger.New("router"),
		defaultOutputTokens: 500,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route classifies the request and selects the first available model,
// preferring the suggested tier, then higher tiers, then lower ones.
func (r *Router) Route(reqCtx classifier.RequestContext) (Decision, error) {
	result := classifier.Classify(reqCtx)

	inputTokens := 0
	for _, msg := range reqCtx.Messages {
		inputTokens += classifier.EstimateTokenCount(msg.Content)
	}

	decision := Decision{
		Category:        string(result.Category),
		RequestedTier:   result.SuggestedTier,
		Confidence:      result.Confidence,
		Complexity:      string(result.Complexity),
		EstimatedTokens: inputTokens,
	}

	for _, tier := range tierWalk(result.SuggestedTier) {
		for _, modelID := range r.registry.ModelsForTier(tier) {
			if !r.breaker.IsAllowed(modelID) {
				decision.Skipped = append(decision.Skipped, modelID+": circuit open")
				breakerSkips.WithLabelValues(modelID).Inc()
				continue
			}

			model, err := r.registry.Config(modelID)
			if err != nil {
				// The tier list and the catalog share ids, so this is
				// unreachable unless the catalog was swapped mid-flight.
				decision.Skipped = append(decision.Skipped, modelID+": "+err.Error())
				continue
			}
			cost, err := r.registry.CalculateCost(inputTokens, r.defaultOutputTokens, modelID)
			if err != nil {
				decision.Skipped = append(decision.Skipped, modelID+": "+err.Error())
				continue
			}

			decision.ModelID = model.ID
			decision.Provider = model.Provider
			decision.Tier = tier
			decision.EstimatedCostUSD = cost

			routesTotal.WithLabelValues(decision.Category, strconv.Itoa(tier)).Inc()
			if tier != result.SuggestedTier {
				tierEscalations.WithLabelValues(strconv.Itoa(result.SuggestedTier), strconv.Itoa(tier)).Inc()
			}
			return decision, nil
		}
	}

	routeFailures.WithLabelValues(decision.Category).Inc()
	r.log.Warn("", "", "No model available for request", map[string]interface{}{
		"category": decision.Category,
		"tier":     result.SuggestedTier,
		"skipped":  strings.Join(decision.Skipped, ", "),
	})
	return Decision{}, &RouteError{
		Code:     ErrCodeNoModelAvailable,
		Message:  "all candidate models are unavailable",
		Category: string(result.Category),
		Tier:     result.SuggestedTier,
	}
}

// ReportSuccess records a successful model call, feeding the circuit
// breaker's recovery logic.
func (r *Router) ReportSuccess(modelID string) {
	r.breaker.RecordSuccess(modelID)
}

// ReportFailure records a failed model call against its circuit.
func (r *Router) ReportFailure(modelID, errorMessage string) {
	r.breaker.RecordFailure(modelID, errorMessage)
}

// Breaker exposes the underlying circuit breaker for admin surfaces.
func (r *Router) Breaker() *circuitbreaker.CircuitBreaker {
	return r.breaker
}

// tierWalk yields the tier visit order: the requested tier, then each
// higher tier ascending, then each lower tier descending. Escalating
// up first keeps degraded traffic on models at least as capable as the
// request needs.
func tierWalk(start int) []int {
	if start < models.MinTier {
		start = models.MinTier
	}
	if start > models.MaxTier {
		start = models.MaxTier
	}
	order := []int{start}
	for tier := start + 1; tier <= models.MaxTier; tier++ {
		order = append(order, tier)
	}
	for tier := start - 1; tier >= models.MinTier; tier-- {
		order = append(order, tier)
	}
	return order
}
