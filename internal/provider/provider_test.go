// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// =============================================================================
// ERROR TESTS
// =============================================================================

func TestNewErrorRetryability(t *testing.T) {
	tests := []struct {
		kind      ErrorKind
		retryable bool
	}{
		{KindConnection, true},
		{KindTimeout, true},
		{KindRateLimit, true},
		{KindOverloaded, true},
		{KindBadRequest, false},
		{KindAuth, false},
		{KindCanceled, false},
		{KindInternal, false},
	}

	for _, tt := range tests {
		err := NewError(tt.kind, "detail", nil)
		if err.Retryable != tt.retryable {
			t.Errorf("NewError(%v).Retryable = %v, want %v", tt.kind, err.Retryable, tt.retryable)
		}
	}
}

func TestErrorIsMatchesByKind(t *testing.T) {
	wrapped := fmt.Errorf("send failed: %w", NewError(KindTimeout, "deadline", nil))
	if !errors.Is(wrapped, &Error{Kind: KindTimeout}) {
		t.Error("errors.Is must match provider errors by kind")
	}
	if errors.Is(wrapped, &Error{Kind: KindAuth}) {
		t.Error("errors.Is must not match a different kind")
	}
}

func TestFromContext(t *testing.T) {
	if err := FromContext(context.DeadlineExceeded); err.Kind != KindTimeout || !err.Retryable {
		t.Errorf("deadline mapped to %v retryable=%v", err.Kind, err.Retryable)
	}
	if err := FromContext(context.Canceled); err.Kind != KindCanceled || err.Retryable {
		t.Errorf("cancel mapped to %v retryable=%v", err.Kind, err.Retryable)
	}
}

func TestAsError(t *testing.T) {
	inner := NewError(KindOverloaded, "503", nil)
	wrapped := fmt.Errorf("outer: %w", inner)

	perr := AsError(wrapped)
	if perr == nil || perr.Kind != KindOverloaded {
		t.Errorf("AsError = %v", perr)
	}
	if AsError(errors.New("plain")) != nil {
		t.Error("AsError must not match plain errors")
	}
}

// =============================================================================
// REGISTRY TESTS
// =============================================================================

type staticProvider struct{ name string }

func (p *staticProvider) Name() string { return p.name }
func (p *staticProvider) Send(ctx context.Context, req Request, onDelta DeltaFunc) (*Result, error) {
	return &Result{Text: "ok", Model: "static"}, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(&staticProvider{name: "ollama"})
	r.Register(&staticProvider{name: "openrouter"})

	if r.Get("ollama") == nil {
		t.Error("registered provider not found")
	}
	if r.Get("missing") != nil {
		t.Error("unknown name must return nil")
	}

	names := r.Names()
	if len(names) != 2 || names[0] != "ollama" || names[1] != "openrouter" {
		t.Errorf("Names() = %v", names)
	}
}
