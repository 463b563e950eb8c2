// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists the single conversation file parley owns.
//
// The on-disk document has two sections: metadata (title, summary,
// system-prompt reference, helper backend — all optional) and the ordered
// message array. Message content is a JSON array of strings, one element
// per line, pretty-printed with a stable two-space indent so conversation
// files diff cleanly. Encoding is UTF-8 without a byte-order mark and
// non-ASCII text is stored as literal characters.
//
// Saves go through util.AtomicWriteFile: the new document is written to a
// temp file, synced, and renamed over the target, so a failed save never
// leaves a torn file behind. Write failures surface as *PersistenceError;
// unreadable or malformed files surface as *LoadError.
package storage
