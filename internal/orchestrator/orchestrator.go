// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator coordinates conversation state, the session, and
// the providers.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/jeranaias/parley/internal/commands"
	"github.com/jeranaias/parley/internal/config"
	"github.com/jeranaias/parley/internal/hexid"
	"github.com/jeranaias/parley/internal/model"
	"github.com/jeranaias/parley/internal/provider"
	"github.com/jeranaias/parley/internal/session"
	"github.com/jeranaias/parley/internal/storage"
)

// =============================================================================
// OUTPUT
// =============================================================================

// Output receives everything the orchestrator wants shown to the user.
type Output interface {
	// Delta delivers one streaming unit as it arrives.
	Delta(d provider.Delta)

	// Print shows an informational line (command results, notices).
	Print(text string)

	// Assistant delivers a completed assistant reply for final rendering.
	Assistant(text string)
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator owns the live conversation and guarantees that what the
// session shows and what the conversation file holds never diverge: every
// mutation runs against a working copy, persists it, and only then
// replaces the live state.
type Orchestrator struct {
	mu sync.Mutex

	profile   *config.Profile
	providers *provider.Registry
	state     *session.State
	parser    *commands.Parser
	registry  *commands.Registry

	conv  *model.Conversation
	path  string
	alloc *hexid.Allocator
}

// New creates an orchestrator over an existing conversation file. The
// file must exist; callers create fresh conversations before this point.
func New(profile *config.Profile, providers *provider.Registry, state *session.State, path string) (*Orchestrator, error) {
	conv, err := storage.Load(path)
	if err != nil {
		return nil, err
	}

	registry := commands.NewRegistry()
	o := &Orchestrator{
		profile:   profile,
		providers: providers,
		state:     state,
		parser:    commands.NewParser(registry),
		registry:  registry,
		conv:      conv,
		path:      path,
		alloc:     hexid.NewAllocator(),
	}
	o.assignIDs(nil)
	state.SyncErrorBlocked(conv)
	return o, nil
}

// Conversation returns the live conversation. Callers must not mutate it.
func (o *Orchestrator) Conversation() *model.Conversation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conv
}

// Path returns the conversation file path.
func (o *Orchestrator) Path() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.path
}

// State returns the session state.
func (o *Orchestrator) State() *session.State {
	return o.state
}

// =============================================================================
// INPUT DISPATCH
// =============================================================================

// HandleInput processes one line of user input. Slash commands dispatch to
// their handlers; anything else is a chat message. The quit result is true
// when the user asked to exit.
func (o *Orchestrator) HandleInput(ctx context.Context, line string, out Output) (quit bool, err error) {
	inv, err := o.parser.Parse(line)
	if err != nil {
		return false, err
	}
	if inv == nil {
		return false, o.SendMessage(ctx, line, out)
	}
	return o.execute(ctx, inv, out)
}

// =============================================================================
// COMMIT
// =============================================================================

// commit persists a working copy and, only on success, makes it the live
// conversation. On failure the live state is untouched and the error is a
// *storage.PersistenceError.
func (o *Orchestrator) commit(working *model.Conversation, structural bool) error {
	if err := storage.Save(working, o.path); err != nil {
		return err
	}

	var prev map[string]*model.Message
	if structural {
		prev = o.idSnapshot()
	}
	o.conv = working
	o.assignIDs(prev)
	o.state.SyncErrorBlocked(o.conv)
	return nil
}

// idSnapshot captures the current ID assignment so a reallocation after a
// structural change can avoid reusing an ID for a different message.
func (o *Orchestrator) idSnapshot() map[string]*model.Message {
	snap := make(map[string]*model.Message, o.conv.Len())
	for _, msg := range o.conv.Messages {
		if msg.HexID != "" {
			snap[msg.HexID] = msg
		}
	}
	return snap
}

// assignIDs recomputes hex IDs for the live conversation. When prev is
// non-nil, any ID that would now address a different message than before
// forces the allocator to widen instead.
func (o *Orchestrator) assignIDs(prev map[string]*model.Message) {
	count := o.conv.Len()
	ids := o.alloc.Allocate(count)

	if prev != nil {
		reserved := map[string]bool{}
		for i, id := range ids {
			if old, ok := prev[id]; ok && !sameMessage(old, o.conv.Messages[i]) {
				reserved[id] = true
			}
		}
		if len(reserved) > 0 {
			ids = o.alloc.AllocateAvoiding(count, reserved)
		}
	}

	for i, msg := range o.conv.Messages {
		msg.HexID = ids[i]
	}
}

// sameMessage reports whether two message values denote the same logical
// message. Commits swap in cloned copies, so identity is by role and
// timestamp rather than pointer.
func sameMessage(a, b *model.Message) bool {
	return a.Role == b.Role && a.Timestamp.Equal(b.Timestamp)
}

// =============================================================================
// CONTEXT ASSEMBLY
// =============================================================================

// buildRequest assembles the provider request from context messages plus
// any extra ephemeral turns.
func (o *Orchestrator) buildRequest(msgs []*model.Message, extra ...provider.Turn) (provider.Request, error) {
	system, err := o.profile.SystemPrompt(o.conv.Meta.SystemPromptRef)
	if err != nil {
		return provider.Request{}, err
	}

	turns := make([]provider.Turn, 0, len(msgs)+len(extra))
	for _, msg := range msgs {
		text, ok := msg.ContextText()
		if !ok {
			continue
		}
		turns = append(turns, provider.Turn{Role: string(msg.Role), Content: text})
	}
	turns = append(turns, extra...)

	return provider.Request{
		Turns:  turns,
		Model:  o.state.Model(),
		System: system,
	}, nil
}

// activeProvider resolves the session's backend to a provider instance.
func (o *Orchestrator) activeProvider() (provider.Provider, error) {
	name := o.state.Backend()
	p := o.providers.Get(name)
	if p == nil {
		return nil, fmt.Errorf("backend %q not available", name)
	}
	return p, nil
}

// sendContext derives the per-exchange context, honoring the session
// timeout. A zero timeout waits forever.
func (o *Orchestrator) sendContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if t := o.state.Timeout(); t > 0 {
		return context.WithTimeout(ctx, t)
	}
	return context.WithCancel(ctx)
}

// stream runs one provider send, logging the outcome.
func (o *Orchestrator) stream(ctx context.Context, req provider.Request, out Output) (*provider.Result, error) {
	prov, err := o.activeProvider()
	if err != nil {
		return nil, err
	}

	sendCtx, cancel := o.sendContext(ctx)
	defer cancel()

	var onDelta provider.DeltaFunc
	if out != nil {
		onDelta = out.Delta
	}

	res, err := prov.Send(sendCtx, req, onDelta)
	if err != nil {
		if perr := provider.AsError(err); perr != nil {
			log.Printf("send failed: backend=%s kind=%s", prov.Name(), perr.Kind)
		}
		return nil, err
	}
	log.Printf("send ok: backend=%s model=%s tokens=%d+%d",
		prov.Name(), res.Model, res.Usage.PromptTokens, res.Usage.CompletionTokens)
	return res, nil
}
