// Copyright 2025 ModelGate
// SPDX-License-Identifier: Apache-2.0

// Package gateway is the HTTP surface of ModelGate. It mounts the
// routing endpoint behind the admission guard, exposes circuit breaker
// administration, and serves health and Prometheus metrics endpoints.
package gateway
