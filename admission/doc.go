// Copyright 2025 ModelGate
// SPDX-License-Identifier: Apache-2.0

/*
Package admission gates and meters AI-assisted requests against
per-tenant quotas before they do any expensive work.

The guard composes two collaborators: an identity resolver (fail-closed;
an unauthenticated caller is always denied) and a quota store (fail-open;
availability beats strict enforcement when the store itself is down).
Denied requests receive a structured decision with current usage, limit,
subscription tier and an optional upgrade message rather than a generic
error.
*/
package admission
