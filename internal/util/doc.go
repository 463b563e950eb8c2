// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small shared helpers for the parley application.
//
// The package intentionally stays tiny: atomic file replacement for the
// conversation store and width-aware string helpers for table output.
package util
