// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and validates the profile that configures a session.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// PROFILE STRUCTURES
// =============================================================================

// BackendKind names a provider implementation.
type BackendKind string

const (
	KindOllama     BackendKind = "ollama"
	KindOpenRouter BackendKind = "openrouter"
)

// Backend configures one provider instance.
type Backend struct {
	// Kind selects the provider implementation: "ollama" or "openrouter".
	Kind BackendKind `toml:"kind"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `toml:"base_url"`

	// Model is the default model for this backend.
	Model string `toml:"model"`

	// Credential is a credential reference (literal:, env:, file:,
	// keychain:), not the secret itself.
	Credential string `toml:"credential"`
}

// Profile is the complete session configuration.
type Profile struct {
	// DefaultBackend names the backend active at startup.
	DefaultBackend string `toml:"default_backend"`

	// HelperBackend names the backend used for title and summary
	// generation. Empty means use the active backend.
	HelperBackend string `toml:"helper_backend"`

	// TimeoutSecs bounds a single provider exchange. Zero waits forever.
	TimeoutSecs int `toml:"timeout_secs"`

	// ChatDir is where conversation files are created.
	ChatDir string `toml:"chat_dir"`

	// LogDir is where session logs are written.
	LogDir string `toml:"log_dir"`

	// SystemPromptRef names the system prompt active at startup.
	SystemPromptRef string `toml:"system_prompt_ref"`

	// SystemPrompts maps prompt references to their text. Conversation
	// files store only the reference.
	SystemPrompts map[string]string `toml:"system_prompts"`

	// Backends maps backend names to their configuration.
	Backends map[string]Backend `toml:"backends"`

	// dir is the directory the profile was loaded from, the anchor for
	// @/ paths.
	dir string
}

// ProfileError reports a profile that cannot be used. It is fatal at
// startup.
type ProfileError struct {
	Path   string
	Reason string
	Cause  error
}

// Error implements the error interface.
func (e *ProfileError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("profile %s: %s: %v", e.Path, e.Reason, e.Cause)
	}
	return fmt.Sprintf("profile %s: %s", e.Path, e.Reason)
}

// Unwrap returns the underlying error.
func (e *ProfileError) Unwrap() error {
	return e.Cause
}

// =============================================================================
// LOADING
// =============================================================================

// EnvProfile overrides the default profile location.
const EnvProfile = "PARLEY_PROFILE"

// DefaultDir returns the default configuration directory.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".parley"), nil
}

// DefaultPath returns the profile path, honoring the PARLEY_PROFILE
// environment override.
func DefaultPath() (string, error) {
	if p := os.Getenv(EnvProfile); p != "" {
		return p, nil
	}
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "profile.toml"), nil
}

// Load reads and validates a profile from path.
func Load(path string) (*Profile, error) {
	p := &Profile{}
	if _, err := toml.DecodeFile(path, p); err != nil {
		if os.IsNotExist(err) {
			return nil, &ProfileError{Path: path, Reason: "not found", Cause: err}
		}
		return nil, &ProfileError{Path: path, Reason: "decode failed", Cause: err}
	}
	p.dir = filepath.Dir(path)
	p.setDefaults()
	if err := p.validate(path); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Profile) setDefaults() {
	if p.TimeoutSecs < 0 {
		p.TimeoutSecs = 0
	}
	if p.ChatDir == "" {
		p.ChatDir = "@/chats"
	}
	if p.LogDir == "" {
		p.LogDir = "@/logs"
	}
	if p.SystemPrompts == nil {
		p.SystemPrompts = map[string]string{}
	}
}

func (p *Profile) validate(path string) error {
	if len(p.Backends) == 0 {
		return &ProfileError{Path: path, Reason: "no backends configured"}
	}
	for name, b := range p.Backends {
		switch b.Kind {
		case KindOllama, KindOpenRouter:
		default:
			return &ProfileError{Path: path, Reason: fmt.Sprintf("backend %q: unknown kind %q", name, b.Kind)}
		}
	}
	if p.DefaultBackend == "" {
		return &ProfileError{Path: path, Reason: "default_backend not set"}
	}
	if _, ok := p.Backends[p.DefaultBackend]; !ok {
		return &ProfileError{Path: path, Reason: fmt.Sprintf("default_backend %q not configured", p.DefaultBackend)}
	}
	if p.HelperBackend != "" {
		if _, ok := p.Backends[p.HelperBackend]; !ok {
			return &ProfileError{Path: path, Reason: fmt.Sprintf("helper_backend %q not configured", p.HelperBackend)}
		}
	}
	if p.SystemPromptRef != "" {
		if _, ok := p.SystemPrompts[p.SystemPromptRef]; !ok {
			return &ProfileError{Path: path, Reason: fmt.Sprintf("system_prompt_ref %q not in system_prompts", p.SystemPromptRef)}
		}
	}
	return nil
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Dir returns the directory the profile was loaded from.
func (p *Profile) Dir() string {
	return p.dir
}

// Timeout returns the per-exchange timeout as a duration.
func (p *Profile) Timeout() time.Duration {
	return time.Duration(p.TimeoutSecs) * time.Second
}

// SystemPrompt resolves a prompt reference to its text. An empty ref
// resolves to empty text.
func (p *Profile) SystemPrompt(ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	text, ok := p.SystemPrompts[ref]
	if !ok {
		return "", fmt.Errorf("system prompt %q not defined in profile", ref)
	}
	return text, nil
}

// FirstBackendOfKind returns the name of the first configured backend of
// the given kind, preferring the default backend. Empty if none.
func (p *Profile) FirstBackendOfKind(kind BackendKind) string {
	if b, ok := p.Backends[p.DefaultBackend]; ok && b.Kind == kind {
		return p.DefaultBackend
	}
	var best string
	for name, b := range p.Backends {
		if b.Kind == kind && (best == "" || name < best) {
			best = name
		}
	}
	return best
}
