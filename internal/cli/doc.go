// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the interactive terminal surface: flag parsing,
// the line-oriented REPL with persisted input history, and output
// rendering (streamed deltas, markdown re-rendering on a TTY).
package cli
