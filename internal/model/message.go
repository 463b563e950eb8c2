// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"strings"
	"time"

	"github.com/jeranaias/parley/internal/util"
)

// TimestampLayout is the fixed on-disk encoding for message timestamps.
// Always UTC, microsecond precision, constant width.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleError     Role = "error"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleError:
		return "Error"
	default:
		return string(r)
	}
}

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleError:
		return true
	}
	return false
}

// =============================================================================
// VISIBILITY TYPE
// =============================================================================

// Visibility controls how much of a message is sent as provider context.
// It is reserved for context-window management: absent by default, and
// round-tripped untouched when present in a conversation file.
type Visibility string

const (
	VisibilityFull    Visibility = "full"
	VisibilitySummary Visibility = "summary"
	VisibilityNone    Visibility = "none"
)

// Valid reports whether the visibility is a known value or unset.
func (v Visibility) Valid() bool {
	switch v {
	case "", VisibilityFull, VisibilitySummary, VisibilityNone:
		return true
	}
	return false
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
//
// Content is modeled as an ordered sequence of text lines. Blank interior
// lines are preserved exactly; only a strict outer run of blank lines is
// trimmed when composing user input (see TrimLines).
type Message struct {
	Role      Role
	Lines     []string
	Timestamp time.Time

	// Model is the vendor-reported model identifier (assistant only).
	// It is more authoritative than the requested model.
	Model string

	// Visibility and Summary are reserved optional fields, absent by
	// default. They must round-trip if present and must not be emitted
	// when absent.
	Visibility Visibility
	Summary    string

	// HexID is the ephemeral process-local identifier used to address
	// this message in commands. Assigned at load/run time, never
	// persisted.
	HexID string
}

// NewUserMessage creates a user message from already-trimmed lines.
func NewUserMessage(lines []string) *Message {
	return &Message{
		Role:      RoleUser,
		Lines:     lines,
		Timestamp: now(),
	}
}

// NewAssistantMessage creates an assistant message from provider output.
// The model is the vendor-reported identifier.
func NewAssistantMessage(text, model string) *Message {
	return &Message{
		Role:      RoleAssistant,
		Lines:     SplitLines(text),
		Timestamp: now(),
		Model:     model,
	}
}

// NewErrorMessage creates an error-role message recording a failure.
func NewErrorMessage(text string) *Message {
	return &Message{
		Role:      RoleError,
		Lines:     SplitLines(text),
		Timestamp: now(),
	}
}

// Text returns the message content as a single newline-joined string.
func (m *Message) Text() string {
	return strings.Join(m.Lines, "\n")
}

// FirstLine returns the first non-blank line of the message.
func (m *Message) FirstLine() string {
	for _, line := range m.Lines {
		if !IsBlankLine(line) {
			return line
		}
	}
	return ""
}

// Preview returns a truncated single-line preview of the message content,
// bounded by display width so double-width characters keep table columns
// aligned.
func (m *Message) Preview(maxWidth int) string {
	return util.TruncateWidth(m.FirstLine(), maxWidth)
}

// IsEmpty returns true if the message has no visible content.
func (m *Message) IsEmpty() bool {
	for _, line := range m.Lines {
		if !IsBlankLine(line) {
			return false
		}
	}
	return true
}

// ContextText returns the text that should be sent as provider context,
// honoring the reserved visibility field.
func (m *Message) ContextText() (string, bool) {
	switch m.Visibility {
	case VisibilityNone:
		return "", false
	case VisibilitySummary:
		if m.Summary != "" {
			return m.Summary, true
		}
		return m.Text(), true
	default:
		return m.Text(), true
	}
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	cp := *m
	cp.Lines = make([]string, len(m.Lines))
	copy(cp.Lines, m.Lines)
	return &cp
}

// =============================================================================
// LINE HELPERS
// =============================================================================

// SplitLines splits text into its line array, normalizing CRLF endings.
// A trailing newline does not produce a trailing empty element beyond the
// ones actually present in the text.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}

// IsBlankLine reports whether a line is empty or whitespace-only.
func IsBlankLine(line string) bool {
	return strings.TrimSpace(line) == ""
}

// now returns the current UTC instant at the precision the on-disk
// timestamp encoding can represent.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// TrimLines removes the maximal leading run and maximal trailing run of
// blank lines. Lines strictly between the first and last visible line are
// preserved exactly, including their own blank lines and leading/trailing
// whitespace. This is deliberately stricter than stripping the joined
// string, which would corrupt interior indentation.
func TrimLines(lines []string) []string {
	start := 0
	for start < len(lines) && IsBlankLine(lines[start]) {
		start++
	}
	if start == len(lines) {
		return []string{}
	}
	end := len(lines)
	for end > start && IsBlankLine(lines[end-1]) {
		end--
	}
	out := make([]string, end-start)
	copy(out, lines[start:end])
	return out
}
