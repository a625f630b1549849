// Copyright 2025 ModelGate
// SPDX-License-Identifier: Apache-2.0

// Package router composes classification, the model registry, and the
// per-model circuit breaker into a single routing decision. Callers
// feed call outcomes back through ReportSuccess and ReportFailure so
// unhealthy models are skipped on subsequent requests.
package router
