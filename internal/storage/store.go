// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists the single conversation file parley owns.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jeranaias/parley/internal/model"
	"github.com/jeranaias/parley/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

// PersistenceError reports a failed write of the conversation file. The
// orchestrator aborts the in-flight mutation and keeps the prior in-memory
// state when it sees one.
type PersistenceError struct {
	Path  string
	Cause error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return "persistence failure for " + e.Path + ": " + e.Cause.Error()
}

// Unwrap returns the underlying error.
func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

// LoadError reports an unreadable or malformed conversation file. At
// startup the caller treats it as fatal.
type LoadError struct {
	Path  string
	Cause error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return "cannot load conversation " + e.Path + ": " + e.Cause.Error()
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

// document is the on-disk shape of a conversation: a metadata section and
// the ordered message array. Content is rendered as a JSON array of
// strings, one element per line, pretty-printed for diff-friendliness.
type document struct {
	Metadata documentMeta `json:"metadata"`
	Messages []storedMsg  `json:"messages"`
}

type documentMeta struct {
	Title           string `json:"title,omitempty"`
	Summary         string `json:"summary,omitempty"`
	SystemPromptRef string `json:"system_prompt_ref,omitempty"`
	HelperBackend   string `json:"helper_backend,omitempty"`
}

type storedMsg struct {
	Role      string   `json:"role"`
	Content   []string `json:"content"`
	Timestamp string   `json:"timestamp"`
	Model     string   `json:"model,omitempty"`

	// Reserved optional fields: absent by default, round-tripped when
	// present, never emitted when absent.
	Visibility string `json:"visibility,omitempty"`
	Summary    string `json:"summary,omitempty"`
}

// =============================================================================
// SAVE
// =============================================================================

// Marshal renders a conversation into its canonical file bytes: two-space
// indent, UTF-8 with no BOM, non-ASCII stored literally, trailing newline.
func Marshal(conv *model.Conversation) ([]byte, error) {
	doc := document{
		Metadata: documentMeta{
			Title:           conv.Meta.Title,
			Summary:         conv.Meta.Summary,
			SystemPromptRef: conv.Meta.SystemPromptRef,
			HelperBackend:   conv.Meta.HelperBackend,
		},
		Messages: make([]storedMsg, len(conv.Messages)),
	}

	for i, msg := range conv.Messages {
		content := msg.Lines
		if content == nil {
			content = []string{}
		}
		doc.Messages[i] = storedMsg{
			Role:       string(msg.Role),
			Content:    content,
			Timestamp:  msg.Timestamp.UTC().Format(model.TimestampLayout),
			Model:      msg.Model,
			Visibility: string(msg.Visibility),
			Summary:    msg.Summary,
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the conversation to path atomically. On failure the target
// file is untouched and a *PersistenceError is returned.
func Save(conv *model.Conversation, path string) error {
	data, err := Marshal(conv)
	if err != nil {
		return &PersistenceError{Path: path, Cause: err}
	}
	if err := util.AtomicWriteFile(path, data, 0644); err != nil {
		return &PersistenceError{Path: path, Cause: err}
	}
	return nil
}

// =============================================================================
// LOAD
// =============================================================================

// Load reads and validates the conversation at path. Hex IDs are not part
// of the persisted form; the caller reassigns them after every load.
func Load(path string) (*model.Conversation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Cause: err}
	}
	conv, err := Unmarshal(data)
	if err != nil {
		return nil, &LoadError{Path: path, Cause: err}
	}
	return conv, nil
}

// Unmarshal parses canonical file bytes back into a conversation.
func Unmarshal(data []byte) (*model.Conversation, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}

	conv := model.NewConversation()
	conv.Meta = model.Metadata{
		Title:           doc.Metadata.Title,
		Summary:         doc.Metadata.Summary,
		SystemPromptRef: doc.Metadata.SystemPromptRef,
		HelperBackend:   doc.Metadata.HelperBackend,
	}

	for i, sm := range doc.Messages {
		role := model.Role(sm.Role)
		if !role.Valid() {
			return nil, fmt.Errorf("message %d: unknown role %q", i, sm.Role)
		}
		vis := model.Visibility(sm.Visibility)
		if !vis.Valid() {
			return nil, fmt.Errorf("message %d: unknown visibility %q", i, sm.Visibility)
		}
		ts, err := time.Parse(model.TimestampLayout, sm.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("message %d: bad timestamp %q: %w", i, sm.Timestamp, err)
		}
		lines := sm.Content
		if lines == nil {
			lines = []string{}
		}
		conv.Append(&model.Message{
			Role:       role,
			Lines:      lines,
			Timestamp:  ts,
			Model:      sm.Model,
			Visibility: vis,
			Summary:    sm.Summary,
		})
	}

	return conv, nil
}

// =============================================================================
// INITIALIZATION
// =============================================================================

// Exists reports whether a conversation file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Create writes a fresh empty conversation document at path. It refuses to
// overwrite an existing file.
func Create(path string) (*model.Conversation, error) {
	if Exists(path) {
		return nil, &PersistenceError{Path: path, Cause: os.ErrExist}
	}
	conv := model.NewConversation()
	if err := Save(conv, path); err != nil {
		return nil, err
	}
	return conv, nil
}
