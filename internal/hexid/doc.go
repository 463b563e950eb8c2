// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package hexid assigns ephemeral hex identifiers to conversation messages.
//
// IDs use the minimal common width for the current message count (16^width
// >= count), are ordered by message position, and exist only for a single
// process run. They are recomputed after every load and after structural
// mutations such as rewind or purge.
package hexid
