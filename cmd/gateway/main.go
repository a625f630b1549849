// Copyright 2025 ModelGate
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the ModelGate gateway service.
//
// The gateway routes AI requests to the cheapest capable model:
// - Classifies each request into a task category and capability tier
// - Skips models whose circuit breaker is open
// - Enforces per-tenant monthly quotas before routing
// - Records usage events for billing
//
// Usage:
//
//	./gateway
//
// Environment Variables:
//
//	LISTEN_ADDR - HTTP bind address (default: :8080)
//	JWT_SECRET - Secret for tenant token validation
//	QUOTA_BACKEND - "redis" or "sql" (default: redis)
//	REDIS_URL - Quota Redis URL
//	DATABASE_URL - SQL connection string for quotas and usage events
//	MODEL_CATALOG_PATH - Optional YAML model catalog override
package main

import (
	"log"

	"modelgate/core/gateway"
)

func main() {
	if err := gateway.Run(); err != nil {
		log.Fatal(err)
	}
}
