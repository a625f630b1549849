// Copyright 2025 ModelGate
// SPDX-License-Identifier: Apache-2.0

/*
Package circuitbreaker implements a keyed circuit breaker for model
providers and external integrations.

Each key (a model id, or a "tenant:service" pair) gets its own state
machine:

	closed --(failures >= threshold)--> open
	open   --(cooldown elapsed)-------> half_open
	half_open --(successes >= threshold)--> closed
	half_open --(any failure)-------------> open

Keys need no upfront registration; entries are created lazily and live
for the process lifetime unless explicitly reset. State is intentionally
process-local and volatile.
*/
package circuitbreaker
