// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"reflect"
	"testing"
	"time"
)

// =============================================================================
// LINE HELPER TESTS
// =============================================================================

func TestTrimLines(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{
			name:  "outer runs removed, interior preserved",
			input: []string{"", "  ", "  foo", "", "bar  ", "", ""},
			want:  []string{"  foo", "", "bar  "},
		},
		{
			name:  "all blank",
			input: []string{"", "   ", "\t"},
			want:  []string{},
		},
		{
			name:  "no blanks",
			input: []string{"a", "b"},
			want:  []string{"a", "b"},
		},
		{
			name:  "single visible line with indentation",
			input: []string{"", "    indented", ""},
			want:  []string{"    indented"},
		},
		{
			name:  "empty input",
			input: []string{},
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TrimLines(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("TrimLines(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTrimLinesDoesNotAliasInput(t *testing.T) {
	input := []string{"", "keep", ""}
	got := TrimLines(input)
	got[0] = "mutated"
	if input[1] != "keep" {
		t.Error("TrimLines must copy, not alias, the input slice")
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"a\nb", []string{"a", "b"}},
		{"a\r\nb\rc", []string{"a", "b", "c"}},
		{"", []string{""}},
		{"a\n\nb", []string{"a", "", "b"}},
	}

	for _, tt := range tests {
		got := SplitLines(tt.input)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitLines(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestMessageText(t *testing.T) {
	msg := &Message{Role: RoleUser, Lines: []string{"  foo", "", "bar  "}}
	if got := msg.Text(); got != "  foo\n\nbar  " {
		t.Errorf("Text() = %q", got)
	}
}

func TestMessagePreview(t *testing.T) {
	msg := &Message{Role: RoleUser, Lines: []string{"", "hello wide world"}}
	if got := msg.Preview(8); got != "hello..." {
		t.Errorf("Preview(8) = %q, want %q", got, "hello...")
	}
	if got := msg.Preview(50); got != "hello wide world" {
		t.Errorf("Preview(50) = %q", got)
	}

	// Double-width runes count by display width, not rune count.
	wide := &Message{Role: RoleUser, Lines: []string{"日本語のテキスト"}}
	if got := wide.Preview(9); got != "日本語..." {
		t.Errorf("Preview(9) = %q, want %q", got, "日本語...")
	}
}

func TestMessageContextText(t *testing.T) {
	msg := &Message{Role: RoleUser, Lines: []string{"full body"}}

	if text, ok := msg.ContextText(); !ok || text != "full body" {
		t.Errorf("default visibility: got (%q, %v)", text, ok)
	}

	msg.Visibility = VisibilityNone
	if _, ok := msg.ContextText(); ok {
		t.Error("visibility none must exclude the message from context")
	}

	msg.Visibility = VisibilitySummary
	msg.Summary = "short"
	if text, ok := msg.ContextText(); !ok || text != "short" {
		t.Errorf("summary visibility: got (%q, %v)", text, ok)
	}
}

func TestMessageCloneIndependence(t *testing.T) {
	orig := NewAssistantMessage("line1\nline2", "test-model")
	cp := orig.Clone()
	cp.Lines[0] = "changed"
	cp.Model = "other"

	if orig.Lines[0] != "line1" || orig.Model != "test-model" {
		t.Error("Clone must not share state with the original")
	}
}

func TestNewMessagesUseUTC(t *testing.T) {
	msg := NewUserMessage([]string{"hi"})
	if msg.Timestamp.Location() != time.UTC {
		t.Errorf("timestamp location = %v, want UTC", msg.Timestamp.Location())
	}
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestConversationErrorBlocked(t *testing.T) {
	conv := NewConversation()
	if conv.IsErrorBlocked() {
		t.Error("empty conversation must not be error-blocked")
	}

	conv.Append(NewUserMessage([]string{"hi"}))
	conv.Append(NewErrorMessage("connection refused"))
	if !conv.IsErrorBlocked() {
		t.Error("trailing error message must block the conversation")
	}

	conv.Append(NewAssistantMessage("recovered", "m"))
	if conv.IsErrorBlocked() {
		t.Error("non-error trailing message must clear the blocked state")
	}
}

func TestConversationTruncateFrom(t *testing.T) {
	conv := NewConversation()
	conv.Append(NewUserMessage([]string{"one"}))
	conv.Append(NewAssistantMessage("two", "m"))
	conv.Append(NewUserMessage([]string{"three"}))

	conv.TruncateFrom(1)
	if conv.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", conv.Len())
	}
	if conv.Messages[0].Text() != "one" {
		t.Errorf("remaining message = %q", conv.Messages[0].Text())
	}
}

func TestConversationRemoveAt(t *testing.T) {
	conv := NewConversation()
	for _, text := range []string{"a", "b", "c", "d"} {
		conv.Append(NewUserMessage([]string{text}))
	}

	conv.RemoveAt(3, 1, 1, 99)
	if conv.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", conv.Len())
	}
	if conv.Messages[0].Text() != "a" || conv.Messages[1].Text() != "c" {
		t.Errorf("remaining = %q, %q", conv.Messages[0].Text(), conv.Messages[1].Text())
	}
}

func TestConversationContextMessagesSkipsErrors(t *testing.T) {
	conv := NewConversation()
	conv.Append(NewUserMessage([]string{"q"}))
	conv.Append(NewErrorMessage("timeout"))
	conv.Append(NewAssistantMessage("a", "m"))
	hidden := NewUserMessage([]string{"secret-ish"})
	hidden.Visibility = VisibilityNone
	conv.Append(hidden)

	ctx := conv.ContextMessages()
	if len(ctx) != 2 {
		t.Fatalf("ContextMessages() returned %d messages, want 2", len(ctx))
	}
	if ctx[0].Role != RoleUser || ctx[1].Role != RoleAssistant {
		t.Errorf("unexpected roles %v, %v", ctx[0].Role, ctx[1].Role)
	}
}

func TestConversationCloneAndEqual(t *testing.T) {
	conv := NewConversation()
	conv.Meta.Title = "t"
	conv.Meta.SystemPromptRef = "default"
	conv.Append(NewUserMessage([]string{"hello", "", "world"}))

	clone := conv.Clone()
	if !conv.Equal(clone) {
		t.Fatal("clone must compare equal to the original")
	}

	clone.Messages[0].Lines[0] = "changed"
	if conv.Equal(clone) {
		t.Error("deep copy expected: mutating the clone must not affect equality")
	}
	if conv.Messages[0].Lines[0] != "hello" {
		t.Error("clone mutation leaked into the original")
	}
}

func TestConversationHexIDLookup(t *testing.T) {
	conv := NewConversation()
	a := NewUserMessage([]string{"a"})
	a.HexID = "0"
	b := NewAssistantMessage("b", "m")
	b.HexID = "1"
	conv.Append(a)
	conv.Append(b)

	if got := conv.IndexByHexID("1"); got != 1 {
		t.Errorf("IndexByHexID(1) = %d, want 1", got)
	}
	if got := conv.IndexByHexID("ff"); got != -1 {
		t.Errorf("IndexByHexID(ff) = %d, want -1", got)
	}

	idxs, missing := conv.SortedIndices([]string{"1", "0", "9"})
	if !reflect.DeepEqual(idxs, []int{0, 1}) {
		t.Errorf("SortedIndices idxs = %v", idxs)
	}
	if !reflect.DeepEqual(missing, []string{"9"}) {
		t.Errorf("SortedIndices missing = %v", missing)
	}
}
