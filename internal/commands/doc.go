// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands provides the slash command registry and parser.
//
// Input that starts with / is resolved against the registry by exact
// name or alias; there is no prefix matching, and an unresolved /
// command is a user error rather than a chat message. Everything else
// is a chat message and parses to a nil invocation.
//
// Commands are classified by Kind: queries read state, mutations go
// through the persist-then-swap commit path, and control commands touch
// session state only. Dispatch lives in the orchestrator; this package
// only names and parses.
package commands
