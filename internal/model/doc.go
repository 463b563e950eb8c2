// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the core domain types used throughout the application
// for representing the single chat conversation a process owns.
//
// # Key Types
//
//   - Conversation: the ordered message log plus its metadata section
//   - Message: single message with role, line-array content, and timestamp
//   - Role: message role enumeration (user, assistant, error)
//   - Visibility: reserved per-message context-visibility flag
//
// Content is a line array rather than a flat string so that interior blank
// lines and indentation survive persistence byte-for-byte. TrimLines
// implements the strict outer-run trim used when composing user input.
package model
