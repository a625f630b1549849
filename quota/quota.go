// Copyright 2025 ModelGate
// SPDX-License-Identifier: Apache-2.0

// Package quota defines the plan tiers and monthly limit tables shared
// by the concrete quota store backends.
package quota

// Plan names recognised by the default limit table.
const (
	PlanFree       = "free"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

// Limits maps plan tier -> category -> requests per calendar month.
// A missing category falls back to the "*" entry for the tier.
type Limits map[string]map[string]int

// DefaultLimits is the shipped quota table.
var DefaultLimits = Limits{
	PlanFree: {
		"*":    500,
		"chat": 500,
	},
	PlanPro: {
		"*":    10000,
		"chat": 10000,
	},
	PlanEnterprise: {
		"*": 1000000,
	},
}

var upgradeMessages = map[string]string{
	PlanFree: "Monthly quota reached. Upgrade to Pro for 10,000 requests per month.",
	PlanPro:  "Monthly quota reached. Contact sales about an Enterprise plan.",
}

// UpgradeMessage returns the message shown to a tenant whose quota is
// exhausted, or "" for tiers with nothing to upgrade to.
func UpgradeMessage(tier string) string {
	return upgradeMessages[tier]
}

// LimitFor resolves the monthly limit for a tier and category.
func (l Limits) LimitFor(tier, category string) int {
	table := l[tier]
	if limit, ok := table[category]; ok {
		return limit
	}
	return table["*"]
}

// Knows reports whether the tier exists in the table.
func (l Limits) Knows(tier string) bool {
	_, ok := l[tier]
	return ok
}
