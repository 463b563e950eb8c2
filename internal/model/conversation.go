// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"sort"
)

// =============================================================================
// METADATA TYPE
// =============================================================================

// Metadata is the conversation-level metadata section.
//
// SystemPromptRef is a label resolved against the profile, never the literal
// prompt text, so a conversation file stays reproducible across prompt edits.
// All fields are optional; metadata mutation is independent of message
// mutation and the two are never implicitly linked.
type Metadata struct {
	Title           string
	Summary         string
	SystemPromptRef string
	HelperBackend   string
}

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds the ordered message log plus its metadata section.
// The common path is append-only; rewind and purge are the only structural
// mutations.
type Conversation struct {
	Meta     Metadata
	Messages []*Message
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{
		Messages: make([]*Message, 0),
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// Append adds a message to the end of the conversation.
func (c *Conversation) Append(msg *Message) {
	c.Messages = append(c.Messages, msg)
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// LastMessage returns the most recent message, or nil if empty.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// LastUserMessage returns the most recent user message, or nil.
func (c *Conversation) LastUserMessage() *Message {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return c.Messages[i]
		}
	}
	return nil
}

// IsErrorBlocked reports whether the trailing message has the error role.
// A conversation in this state rejects new normal-mode turns until the
// trailing turns are deleted or a retry is entered.
func (c *Conversation) IsErrorBlocked() bool {
	last := c.LastMessage()
	return last != nil && last.Role == RoleError
}

// IndexByHexID returns the index of the message with the given ephemeral
// hex ID, or -1 if no message carries it.
func (c *Conversation) IndexByHexID(hexID string) int {
	for i, msg := range c.Messages {
		if msg.HexID == hexID {
			return i
		}
	}
	return -1
}

// MessageByHexID returns the message with the given hex ID, or nil.
func (c *Conversation) MessageByHexID(hexID string) *Message {
	if i := c.IndexByHexID(hexID); i >= 0 {
		return c.Messages[i]
	}
	return nil
}

// TruncateFrom removes the message at idx and everything after it.
func (c *Conversation) TruncateFrom(idx int) {
	if idx < 0 || idx >= len(c.Messages) {
		return
	}
	c.Messages = c.Messages[:idx]
}

// RemoveAt removes the messages at the given indices. Indices outside the
// message range are ignored; duplicates are collapsed.
func (c *Conversation) RemoveAt(indices ...int) {
	if len(indices) == 0 {
		return
	}
	drop := make(map[int]bool, len(indices))
	for _, i := range indices {
		if i >= 0 && i < len(c.Messages) {
			drop[i] = true
		}
	}
	if len(drop) == 0 {
		return
	}
	kept := make([]*Message, 0, len(c.Messages)-len(drop))
	for i, msg := range c.Messages {
		if !drop[i] {
			kept = append(kept, msg)
		}
	}
	c.Messages = kept
}

// SortedIndices returns the existing indices for the supplied hex IDs in
// ascending message order. The second return lists IDs with no match.
func (c *Conversation) SortedIndices(hexIDs []string) ([]int, []string) {
	var idxs []int
	var missing []string
	for _, id := range hexIDs {
		i := c.IndexByHexID(id)
		if i < 0 {
			missing = append(missing, id)
			continue
		}
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)
	return idxs, missing
}

// =============================================================================
// CONTEXT ASSEMBLY
// =============================================================================

// ContextMessages returns the messages that participate in provider context,
// honoring per-message visibility. Error-role messages never participate.
func (c *Conversation) ContextMessages() []*Message {
	out := make([]*Message, 0, len(c.Messages))
	for _, msg := range c.Messages {
		if msg.Role == RoleError {
			continue
		}
		if _, ok := msg.ContextText(); !ok {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// =============================================================================
// COPY SEMANTICS
// =============================================================================

// Clone creates a deep copy of the conversation. The orchestrator mutates
// clones, persists them, and only then swaps the live value.
func (c *Conversation) Clone() *Conversation {
	clone := &Conversation{
		Meta:     c.Meta,
		Messages: make([]*Message, len(c.Messages)),
	}
	for i, msg := range c.Messages {
		clone.Messages[i] = msg.Clone()
	}
	return clone
}

// Equal reports whether two conversations have identical metadata and
// message content. Hex IDs are ephemeral and excluded.
func (c *Conversation) Equal(other *Conversation) bool {
	if c.Meta != other.Meta || len(c.Messages) != len(other.Messages) {
		return false
	}
	for i, msg := range c.Messages {
		o := other.Messages[i]
		if msg.Role != o.Role || msg.Model != o.Model ||
			msg.Visibility != o.Visibility || msg.Summary != o.Summary ||
			!msg.Timestamp.Equal(o.Timestamp) || len(msg.Lines) != len(o.Lines) {
			return false
		}
		for j, line := range msg.Lines {
			if line != o.Lines[j] {
				return false
			}
		}
	}
	return true
}
