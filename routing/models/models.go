// Copyright 2025 ModelGate
// SPDX-License-Identifier: Apache-2.0

package models

import (
	"fmt"
	"sort"

	"modelgate/core/routing/classifier"
)

// Descriptor is the static description of one routable model. Loaded once
// at process start; read-only afterwards.
type Descriptor struct {
	ID             string  `json:"id" yaml:"id"`
	Provider       string  `json:"provider" yaml:"provider"`
	Tier           int     `json:"tier" yaml:"tier"`
	InputCostPer1M float64 `json:"input_cost_per_1m" yaml:"input_cost_per_1m"`
	OutputCostPer1M float64 `json:"output_cost_per_1m" yaml:"output_cost_per_1m"`
	SelfHosted     bool    `json:"self_hosted" yaml:"self_hosted"`
}

// MinTier and MaxTier bound the valid resource tiers.
const (
	MinTier = 0
	MaxTier = 4
)

// Model error codes.
const (
	// ErrCodeUnknownModel indicates a lookup for an unregistered model id.
	ErrCodeUnknownModel = "unknown_model"

	// ErrCodeInvalidCatalog indicates catalog data violating an invariant.
	ErrCodeInvalidCatalog = "invalid_catalog"
)

// ModelError represents an error from registry operations.
type ModelError struct {
	ModelID string
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ModelError) Error() string {
	if e.ModelID != "" {
		return fmt.Sprintf("model error for %q: %s", e.ModelID, e.Message)
	}
	return fmt.Sprintf("model error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ModelError) Unwrap() error {
	return e.Cause
}

// Registry holds the model catalog and the category-to-tier policy table.
// It is read-only after construction and requires no synchronization.
type Registry struct {
	byID   map[string]Descriptor
	byTier map[int][]string
}

// NewRegistry builds a registry from a catalog, validating its invariants:
// every self-hosted model has zero cost, and every tier 0-4 has at least
// one descriptor.
func NewRegistry(catalog []Descriptor) (*Registry, error) {
	if err := Validate(catalog); err != nil {
		return nil, err
	}

	r := &Registry{
		byID:   make(map[string]Descriptor, len(catalog)),
		byTier: make(map[int][]string),
	}

	for _, d := range catalog {
		r.byID[d.ID] = d
		r.byTier[d.Tier] = append(r.byTier[d.Tier], d.ID)
	}

	// Self-hosted models sort first within a tier: zero marginal cost
	// biases fallback chains toward free capacity. Ties break by id so
	// the ordering is stable across processes.
	for tier, ids := range r.byTier {
		sort.SliceStable(ids, func(i, j int) bool {
			a, b := r.byID[ids[i]], r.byID[ids[j]]
			if a.SelfHosted != b.SelfHosted {
				return a.SelfHosted
			}
			return a.ID < b.ID
		})
		r.byTier[tier] = ids
	}

	return r, nil
}

// Validate checks catalog invariants without building a registry.
func Validate(catalog []Descriptor) error {
	if len(catalog) == 0 {
		return &ModelError{Code: ErrCodeInvalidCatalog, Message: "catalog is empty"}
	}

	seen := make(map[string]bool, len(catalog))
	tiers := make(map[int]bool)

	for _, d := range catalog {
		if d.ID == "" {
			return &ModelError{Code: ErrCodeInvalidCatalog, Message: "model id is required"}
		}
		if seen[d.ID] {
			return &ModelError{
				ModelID: d.ID,
				Code:    ErrCodeInvalidCatalog,
				Message: fmt.Sprintf("duplicate model id %q", d.ID),
			}
		}
		seen[d.ID] = true

		if d.Tier < MinTier || d.Tier > MaxTier {
			return &ModelError{
				ModelID: d.ID,
				Code:    ErrCodeInvalidCatalog,
				Message: fmt.Sprintf("tier %d outside %d-%d", d.Tier, MinTier, MaxTier),
			}
		}
		if d.InputCostPer1M < 0 || d.OutputCostPer1M < 0 {
			return &ModelError{
				ModelID: d.ID,
				Code:    ErrCodeInvalidCatalog,
				Message: "costs must be non-negative",
			}
		}
		if d.SelfHosted && (d.InputCostPer1M != 0 || d.OutputCostPer1M != 0) {
			return &ModelError{
				ModelID: d.ID,
				Code:    ErrCodeInvalidCatalog,
				Message: "self-hosted models must have zero cost",
			}
		}
		tiers[d.Tier] = true
	}

	for tier := MinTier; tier <= MaxTier; tier++ {
		if !tiers[tier] {
			return &ModelError{
				Code:    ErrCodeInvalidCatalog,
				Message: fmt.Sprintf("tier %d has no models", tier),
			}
		}
	}

	return nil
}

// Config returns the descriptor for modelID, or an unknown-model error.
// This is a programmer/configuration error to the caller, not retried.
func (r *Registry) Config(modelID string) (Descriptor, error) {
	d, ok := r.byID[modelID]
	if !ok {
		return Descriptor{}, &ModelError{
			ModelID: modelID,
			Code:    ErrCodeUnknownModel,
			Message: fmt.Sprintf("model %q not in catalog", modelID),
		}
	}
	return d, nil
}

// ModelsForTier returns the ordered model ids serving tier, self-hosted
// first. Tiers outside 0-4 return an empty list, never an error: callers
// must treat empty as "no candidates".
func (r *Registry) ModelsForTier(tier int) []string {
	ids := r.byTier[tier]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// TierForCategory resolves a task category to its resource tier via the
// fixed policy table, with a documented default for unmapped categories.
func (r *Registry) TierForCategory(category classifier.Category) int {
	return classifier.TierForCategory(category)
}

// CalculateCost computes the dollar cost of a call:
//
//	cost = inputTokens/1M * inputCostPer1M + outputTokens/1M * outputCostPer1M
//
// Self-hosted models always cost exactly 0 regardless of token counts.
func (r *Registry) CalculateCost(inputTokens, outputTokens int, modelID string) (float64, error) {
	d, err := r.Config(modelID)
	if err != nil {
		return 0, err
	}
	if d.SelfHosted {
		return 0, nil
	}

	inputCost := float64(inputTokens) / 1_000_000 * d.InputCostPer1M
	outputCost := float64(outputTokens) / 1_000_000 * d.OutputCostPer1M
	return inputCost + outputCost, nil
}

// Count returns the number of models in the catalog.
func (r *Registry) Count() int {
	return len(r.byID)
}

// List returns all model ids sorted by tier then catalog order.
func (r *Registry) List() []string {
	var ids []string
	for tier := MinTier; tier <= MaxTier; tier++ {
		ids = append(ids, r.byTier[tier]...)
	}
	return ids
}
