// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"

	"github.com/jeranaias/parley/internal/commands"
	"github.com/jeranaias/parley/internal/model"
	"github.com/jeranaias/parley/internal/provider"
	"github.com/jeranaias/parley/internal/session"
)

// =============================================================================
// RETRY FLOW
// =============================================================================

// StartRetry stages a retry anchored at a user message and immediately
// runs the first attempt. With no ID the anchor defaults to the last user
// message, which covers the error-blocked case: the prompt whose exchange
// failed is resent exactly.
func (o *Orchestrator) StartRetry(ctx context.Context, hexID string, out Output) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	anchor, err := o.retryAnchor(hexID)
	if err != nil {
		return err
	}

	draft := &session.RetryDraft{
		AnchorIndex: anchor,
		Prompt:      o.conv.Messages[anchor].Clone().Lines,
	}
	if err := o.state.EnterRetry(draft); err != nil {
		return commands.NewUserInputError("%v", err)
	}

	return o.retrySend(ctx, draft, out)
}

// retryAnchor resolves the retry target to a user message index.
func (o *Orchestrator) retryAnchor(hexID string) (int, error) {
	if hexID == "" {
		for i := o.conv.Len() - 1; i >= 0; i-- {
			if o.conv.Messages[i].Role == model.RoleUser {
				return i, nil
			}
		}
		return 0, commands.NewUserInputError("nothing to retry: no user message in the conversation")
	}

	idx := o.conv.IndexByHexID(hexID)
	if idx < 0 {
		return 0, commands.NewUserInputError("no message with id %s", hexID)
	}
	if o.conv.Messages[idx].Role != model.RoleUser {
		return 0, commands.NewUserInputError("message %s is not a user message", hexID)
	}
	return idx, nil
}

// retrySend runs one attempt against the truncated context and stages the
// reply in the draft. The committed conversation is untouched; a failed
// attempt is reported and leaves the draft ready for another try.
func (o *Orchestrator) retrySend(ctx context.Context, draft *session.RetryDraft, out Output) error {
	truncated := o.conv.Messages[:draft.AnchorIndex]
	req, err := o.buildRequest(contextOf(truncated),
		provider.Turn{Role: string(model.RoleUser), Content: joinLines(draft.Prompt)})
	if err != nil {
		return err
	}

	res, err := o.stream(ctx, req, out)
	if err != nil {
		return err
	}

	draft.AddAttempt(model.NewAssistantMessage(res.Text, res.Model))
	if out != nil {
		out.Assistant(res.Text)
		out.Print("attempt staged; /apply to keep it, /retry for another, /cancel to discard")
	}
	return nil
}

// ApplyRetry commits the staged truncation and the latest attempt as one
// atomic change, then leaves Retry mode. If persistence fails, the live
// conversation and the staged draft both survive untouched.
func (o *Orchestrator) ApplyRetry(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	draft := o.state.Draft()
	if draft == nil {
		return commands.NewUserInputError("no retry in progress")
	}
	attempt := draft.LatestAttempt()
	if attempt == nil {
		return commands.NewUserInputError("no completed attempt to apply; send again or /cancel")
	}

	working := o.conv.Clone()
	working.TruncateFrom(draft.AnchorIndex)
	working.Append(model.NewUserMessage(draft.Prompt))
	working.Append(attempt)

	if err := o.commit(working, true); err != nil {
		return err
	}

	_, err := o.state.AcceptRetry()
	return err
}

// CancelRetry discards the staged retry and all its attempts.
func (o *Orchestrator) CancelRetry() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.state.CancelRetry(); err != nil {
		return commands.NewUserInputError("%v", err)
	}
	return nil
}

// contextOf filters a message slice the same way the live conversation
// filters its own context.
func contextOf(msgs []*model.Message) []*model.Message {
	out := make([]*model.Message, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role == model.RoleError {
			continue
		}
		if _, ok := msg.ContextText(); !ok {
			continue
		}
		out = append(out, msg)
	}
	return out
}
