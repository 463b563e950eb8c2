// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider defines the normalized contract all chat backends satisfy.
package provider

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// Turn is one flattened conversation turn on the wire. Vendors only ever
// see joined text; the line-array content model stays inside the core.
type Turn struct {
	Role    string // "user" or "assistant"
	Content string
}

// Request describes one send: the frozen context, the requested model, and
// an optional system prompt. The per-session timeout is applied by the
// caller through the context.
type Request struct {
	Turns  []Turn
	Model  string
	System string
}

// =============================================================================
// STREAM TYPES
// =============================================================================

// Delta is one streamed content unit. Thinking deltas carry reasoning-trace
// text that vendors distinguish from final answer text.
type Delta struct {
	Text     string
	Thinking bool
}

// DeltaFunc receives deltas strictly in arrival order on the calling
// goroutine. A nil DeltaFunc is allowed for non-streamed helper sends.
type DeltaFunc func(Delta)

// Usage holds vendor-reported token counts when available.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Result is the final outcome of one completed send.
type Result struct {
	// Text is the accumulated answer text.
	Text string

	// Model is the vendor-reported model identifier, more authoritative
	// than the requested one.
	Model string

	// Structured extras, populated when the vendor supplies them.
	Usage     Usage
	Citations []string
	Thinking  string
}

// =============================================================================
// ERROR TYPE
// =============================================================================

// ErrorKind categorizes normalized provider failures.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindConnection
	KindTimeout
	KindRateLimit
	KindOverloaded
	KindBadRequest
	KindAuth
	KindCanceled
)

// String returns the kind's display name.
func (k ErrorKind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindTimeout:
		return "timeout"
	case KindRateLimit:
		return "rate-limit"
	case KindOverloaded:
		return "overloaded"
	case KindBadRequest:
		return "bad-request"
	case KindAuth:
		return "auth"
	case KindCanceled:
		return "canceled"
	default:
		return "internal"
	}
}

// retryableKind reports whether failures of this kind are worth retrying.
func retryableKind(k ErrorKind) bool {
	switch k {
	case KindConnection, KindTimeout, KindRateLimit, KindOverloaded:
		return true
	}
	return false
}

// Error is the single error type a backend may return. Vendor-specific
// error shapes never cross the package boundary; backends convert them
// here and expected network conditions are returned, not raised.
type Error struct {
	Kind      ErrorKind
	Retryable bool
	Detail    string
	Cause     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := "provider error (" + e.Kind.String() + ")"
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches provider errors by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewError builds an Error with retryability derived from the kind.
func NewError(kind ErrorKind, detail string, cause error) *Error {
	return &Error{
		Kind:      kind,
		Retryable: retryableKind(kind),
		Detail:    detail,
		Cause:     cause,
	}
}

// FromContext converts a context error into the matching provider error.
func FromContext(err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(KindTimeout, "request timed out", err)
	case errors.Is(err, context.Canceled):
		return NewError(KindCanceled, "request canceled", err)
	default:
		return NewError(KindInternal, err.Error(), err)
	}
}

// AsError extracts a provider error from an error chain, or nil when the
// chain carries none.
func AsError(err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	return nil
}

// =============================================================================
// PROVIDER CONTRACT
// =============================================================================

// Provider is the narrow capability contract each vendor backend satisfies.
//
// Send streams the answer for one request. Deltas are delivered in arrival
// order; the call returns the final result, or a *Error for every expected
// failure condition. At most one send is in flight per conversation; the
// caller enforces that.
type Provider interface {
	Name() string
	Send(ctx context.Context, req Request, onDelta DeltaFunc) (*Result, error)
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry maps backend names to providers. Backend-switch commands
// resolve here; nothing outside a backend package ever branches on vendor
// identity.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Provider)}
}

// Register adds a provider under its name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[p.Name()] = p
}

// Get returns the provider registered under name, or nil.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.backends[name]
}

// Names returns the registered backend names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
