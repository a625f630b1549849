// Copyright 2025 ModelGate
// SPDX-License-Identifier: Apache-2.0

package models

import (
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultCatalog is the built-in model catalog. Prices are per 1M tokens
// in USD (as of mid 2025). Deployments override or extend it via a YAML
// catalog file; see LoadCatalogFile.
var DefaultCatalog = []Descriptor{
	// Tier 0: self-hosted utility models for trivial lookups
	{ID: "llama-3.1-8b-local", Provider: "ollama", Tier: 0, SelfHosted: true},
	{ID: "phi-3-mini-local", Provider: "ollama", Tier: 0, SelfHosted: true},

	// Tier 1: cheap hosted models for classification and extraction
	{ID: "mistral-7b-local", Provider: "ollama", Tier: 1, SelfHosted: true},
	{ID: "gpt-4o-mini", Provider: "openai", Tier: 1, InputCostPer1M: 0.15, OutputCostPer1M: 0.60},
	{ID: "claude-3-5-haiku", Provider: "anthropic", Tier: 1, InputCostPer1M: 0.80, OutputCostPer1M: 4.00},

	// Tier 2: general conversation and summarization
	{ID: "gemini-1.5-flash", Provider: "google", Tier: 2, InputCostPer1M: 0.075, OutputCostPer1M: 0.30},
	{ID: "gpt-4o", Provider: "openai", Tier: 2, InputCostPer1M: 2.50, OutputCostPer1M: 10.00},

	// Tier 3: complex reasoning and code generation
	{ID: "claude-sonnet-4", Provider: "anthropic", Tier: 3, InputCostPer1M: 3.00, OutputCostPer1M: 15.00},
	{ID: "gpt-4-turbo", Provider: "openai", Tier: 3, InputCostPer1M: 10.00, OutputCostPer1M: 30.00},

	// Tier 4: highest-stakes requests (crisis, coordination)
	{ID: "claude-opus-4", Provider: "anthropic", Tier: 4, InputCostPer1M: 15.00, OutputCostPer1M: 75.00},
	{ID: "o1-preview", Provider: "openai", Tier: 4, InputCostPer1M: 15.00, OutputCostPer1M: 60.00},
}

// catalogFile is the YAML shape of a catalog override file.
type catalogFile struct {
	Models []Descriptor `yaml:"models"`
}

// LoadCatalogFile reads a YAML catalog and merges it over DefaultCatalog:
// entries with a known id replace the default descriptor, new ids are
// appended. The merged catalog is validated before use.
func LoadCatalogFile(path string) ([]Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, &ModelError{
			Code:    ErrCodeInvalidCatalog,
			Message: "failed to parse catalog file",
			Cause:   err,
		}
	}

	merged := MergeCatalog(DefaultCatalog, file.Models)
	if err := Validate(merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// MergeCatalog overlays custom descriptors onto a base catalog by model id.
func MergeCatalog(base, custom []Descriptor) []Descriptor {
	merged := make([]Descriptor, len(base))
	copy(merged, base)

	index := make(map[string]int, len(merged))
	for i, d := range merged {
		index[d.ID] = i
	}

	for _, d := range custom {
		if i, ok := index[d.ID]; ok {
			merged[i] = d
			continue
		}
		index[d.ID] = len(merged)
		merged = append(merged, d)
	}

	return merged
}
