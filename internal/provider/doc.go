// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider defines the normalized contract all chat backends satisfy.
//
// Vendors disagree on nearly everything: streaming granularity, where
// citations and token usage live, whether reasoning text is separable from
// answer text, and which request parameters they silently ignore. The
// Provider interface hides all of it behind one call shape:
//
//	result, err := p.Send(ctx, Request{Turns: turns, Model: m}, onDelta)
//
// Every expected failure condition — connection refused, timeout, rate
// limiting, server overload, malformed request — comes back as a typed
// *Error with a kind and a retryable flag. Vendor-specific error types
// never escape a backend package.
//
// Backend implementations live in the subpackages ollama and openrouter.
package provider
