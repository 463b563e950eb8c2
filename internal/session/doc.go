// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session tracks the live interaction state of a chat session.
//
// The session holds the active backend and model, the per-exchange
// timeout, and the interaction mode. Modes form a small state machine:
//
//	Normal <-> Retry   (staged retry accepted or canceled)
//	Normal <-> Secret  (sticky toggle, or one-shot per exchange)
//
// Retry and Secret never overlap. The error-blocked flag is orthogonal
// to mode: it mirrors whether the committed conversation ends in an
// error message, and is recomputed from the conversation rather than
// tracked independently.
package session
