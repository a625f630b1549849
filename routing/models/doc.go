// Copyright 2025 ModelGate
// SPDX-License-Identifier: Apache-2.0

/*
Package models holds static knowledge of the routable model fleet: which
models serve which tier, what they cost per token, and which are
self-hosted. It decouples "what category of work is this" from "which
concrete model serves it" and makes routing costs computable without
calling a provider.

The registry is read-only after process start.
*/
package models
