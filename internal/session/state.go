// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/jeranaias/parley/internal/model"
)

// =============================================================================
// MODES
// =============================================================================

// Mode is the interaction mode of the session.
type Mode int

const (
	// ModeNormal is the default conversational mode.
	ModeNormal Mode = iota

	// ModeRetry is active while a retry attempt is staged but not yet
	// accepted or canceled.
	ModeRetry

	// ModeSecret is active while secret exchanges are being held off the
	// record.
	ModeSecret
)

// String returns the mode name for prompts and logs.
func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeRetry:
		return "retry"
	case ModeSecret:
		return "secret"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// =============================================================================
// TRANSITION ERRORS
// =============================================================================

// TransitionError reports a mode change the current state does not allow.
type TransitionError struct {
	From   Mode
	Action string
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s in %s mode", e.Action, e.From)
}

// =============================================================================
// RETRY DRAFT
// =============================================================================

// RetryDraft holds a staged retry: the prompt to resend and the point in
// the conversation it re-anchors to. Nothing in the draft is persisted
// until the attempt is accepted.
type RetryDraft struct {
	// AnchorIndex is the index of the user message being retried. On
	// accept, the conversation is truncated from this index before the
	// attempt pair is committed.
	AnchorIndex int

	// Prompt is the exact prompt lines being resent.
	Prompt []string

	// Attempts are the assistant replies of completed sends, oldest
	// first. Accepting the retry commits the last one.
	Attempts []*model.Message
}

// LatestAttempt returns the most recent attempt, or nil before any send
// has completed.
func (d *RetryDraft) LatestAttempt() *model.Message {
	if len(d.Attempts) == 0 {
		return nil
	}
	return d.Attempts[len(d.Attempts)-1]
}

// AddAttempt records a completed attempt.
func (d *RetryDraft) AddAttempt(msg *model.Message) {
	d.Attempts = append(d.Attempts, msg)
}

// =============================================================================
// SESSION STATE
// =============================================================================

// State tracks the live session: active backend and model, timeout, mode,
// and the error-blocked flag. All methods are safe for concurrent use.
type State struct {
	mu sync.Mutex

	backend string
	model   string

	// timeout bounds a single provider exchange. Zero means wait forever.
	timeout time.Duration

	mode Mode

	// secretOneShot marks a secret mode that ends after one exchange.
	secretOneShot bool

	// errorBlocked is orthogonal to mode: it reflects whether the
	// conversation tail is a committed error message.
	errorBlocked bool

	draft *RetryDraft
}

// New creates session state in Normal mode.
func New(backend, modelName string, timeout time.Duration) *State {
	return &State{
		backend: backend,
		model:   modelName,
		timeout: timeout,
	}
}

// Backend returns the active backend name.
func (s *State) Backend() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend
}

// SetBackend switches the active backend.
func (s *State) SetBackend(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend = name
}

// Model returns the active model identifier.
func (s *State) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// SetModel switches the active model.
func (s *State) SetModel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = name
}

// Timeout returns the per-exchange timeout. Zero means no limit.
func (s *State) Timeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeout
}

// SetTimeout sets the per-exchange timeout. Zero disables the limit.
func (s *State) SetTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = d
}

// Mode returns the current interaction mode.
func (s *State) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// EffectiveMode names the state shown in the prompt: the error-blocked
// condition masks Normal mode but not Retry or Secret.
func (s *State) EffectiveMode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errorBlocked && s.mode == ModeNormal {
		return "error-blocked"
	}
	return s.mode.String()
}

// ErrorBlocked reports whether the conversation tail is an error message.
func (s *State) ErrorBlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorBlocked
}

// SyncErrorBlocked reconciles the flag with the committed conversation.
func (s *State) SyncErrorBlocked(conv *model.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorBlocked = conv.IsErrorBlocked()
}

// =============================================================================
// RETRY TRANSITIONS
// =============================================================================

// EnterRetry stages a retry draft and switches to Retry mode. Only valid
// from Normal mode.
func (s *State) EnterRetry(draft *RetryDraft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeNormal {
		return &TransitionError{From: s.mode, Action: "start a retry"}
	}
	s.mode = ModeRetry
	s.draft = draft
	return nil
}

// Draft returns the staged retry, or nil outside Retry mode.
func (s *State) Draft() *RetryDraft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// ReplaceDraft swaps in a new staged attempt while already in Retry mode.
func (s *State) ReplaceDraft(draft *RetryDraft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeRetry {
		return &TransitionError{From: s.mode, Action: "replace a retry attempt"}
	}
	s.draft = draft
	return nil
}

// AcceptRetry leaves Retry mode, returning the draft for the caller to
// commit.
func (s *State) AcceptRetry() (*RetryDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeRetry {
		return nil, &TransitionError{From: s.mode, Action: "accept a retry"}
	}
	draft := s.draft
	s.mode = ModeNormal
	s.draft = nil
	return draft, nil
}

// CancelRetry discards the staged retry and returns to Normal mode.
func (s *State) CancelRetry() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeRetry {
		return &TransitionError{From: s.mode, Action: "cancel a retry"}
	}
	s.mode = ModeNormal
	s.draft = nil
	return nil
}

// =============================================================================
// SECRET TRANSITIONS
// =============================================================================

// SecretOn enters sticky Secret mode. Only valid from Normal mode.
func (s *State) SecretOn() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeNormal {
		return &TransitionError{From: s.mode, Action: "enter secret mode"}
	}
	s.mode = ModeSecret
	s.secretOneShot = false
	return nil
}

// SecretOneShot enters Secret mode for a single exchange. Only valid from
// Normal mode.
func (s *State) SecretOneShot() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeNormal {
		return &TransitionError{From: s.mode, Action: "enter secret mode"}
	}
	s.mode = ModeSecret
	s.secretOneShot = true
	return nil
}

// SecretOff leaves Secret mode.
func (s *State) SecretOff() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeSecret {
		return &TransitionError{From: s.mode, Action: "leave secret mode"}
	}
	s.mode = ModeNormal
	s.secretOneShot = false
	return nil
}

// SecretExchangeDone signals a completed secret exchange. One-shot secret
// mode drops back to Normal; sticky secret mode stays.
func (s *State) SecretExchangeDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeSecret && s.secretOneShot {
		s.mode = ModeNormal
		s.secretOneShot = false
	}
}

// IsSecretOneShot reports whether the current secret mode ends after one
// exchange.
func (s *State) IsSecretOneShot() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode == ModeSecret && s.secretOneShot
}
