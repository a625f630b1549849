// Copyright 2025 ModelGate
// SPDX-License-Identifier: Apache-2.0

/*
Package classifier decides how much compute a request deserves without
making a model call.

Classification is an explicit ordered list of predicate rules (first
match wins) rather than a weighted scorer, so routing stays deterministic,
auditable and unit-testable rule by rule. Keyword sets cover English and
Spanish, the deployment's working languages.
*/
package classifier
