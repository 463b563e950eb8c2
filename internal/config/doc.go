// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and validates the profile that configures a
// session.
//
// A profile is a TOML file (default ~/.parley/profile.toml, overridable
// via PARLEY_PROFILE) declaring backends, the default and helper
// backend, the per-exchange timeout, directories, and the system prompt
// table. Conversation files never embed profile content; they carry
// references that this package resolves.
//
// Credentials are referenced, not stored: literal:, env:, and file:
// schemes resolve locally, keychain: requires an external resolver.
package config
