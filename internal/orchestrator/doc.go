// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator coordinates conversation state, the session, and
// the providers.
//
// The central guarantee is that memory and disk never diverge: every
// change to the conversation runs against a working copy, is persisted
// with an atomic write, and only then replaces the live state. A failed
// persist leaves the live conversation bit-identical and surfaces a
// storage.PersistenceError, which callers treat as fatal.
//
// Provider failures are ordinary conversation content, not session
// failures: a failed exchange commits the user prompt together with an
// error message, which blocks further plain sends until the user
// retries or purges. The staged retry flow never touches committed
// state until /apply, and secret exchanges never touch it at all.
package orchestrator
