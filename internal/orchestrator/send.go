// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"strings"

	"github.com/jeranaias/parley/internal/commands"
	"github.com/jeranaias/parley/internal/model"
	"github.com/jeranaias/parley/internal/provider"
	"github.com/jeranaias/parley/internal/session"
)

// =============================================================================
// MESSAGE SENDING
// =============================================================================

// SendMessage handles plain chat input according to the session mode.
func (o *Orchestrator) SendMessage(ctx context.Context, text string, out Output) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	lines := model.TrimLines(model.SplitLines(text))
	if len(lines) == 0 {
		return commands.NewUserInputError("empty message")
	}

	switch o.state.Mode() {
	case session.ModeRetry:
		// Plain input while a retry is staged edits the prompt and runs
		// a fresh attempt.
		draft := o.state.Draft()
		draft.Prompt = lines
		return o.retrySend(ctx, draft, out)

	case session.ModeSecret:
		return o.sendSecret(ctx, lines, out)

	default:
		return o.sendNormal(ctx, lines, out)
	}
}

// sendNormal runs one committed exchange. Whatever the provider does,
// exactly one user-anchored pair lands in the conversation: user+assistant
// on success, user+error on failure. Partial streams are never committed.
func (o *Orchestrator) sendNormal(ctx context.Context, lines []string, out Output) error {
	if o.state.ErrorBlocked() {
		return commands.NewUserInputError(
			"conversation is blocked by an error; /retry to resend the prompt or /purge to drop it")
	}

	// Context is frozen before the send: concurrent mutations cannot leak
	// into the prompt.
	req, err := o.buildRequest(o.conv.ContextMessages(),
		provider.Turn{Role: string(model.RoleUser), Content: joinLines(lines)})
	if err != nil {
		return err
	}

	userMsg := model.NewUserMessage(lines)
	res, sendErr := o.stream(ctx, req, out)

	working := o.conv.Clone()
	working.Append(userMsg)
	if sendErr != nil {
		working.Append(errorMessage(sendErr))
	} else {
		working.Append(model.NewAssistantMessage(res.Text, res.Model))
	}

	if err := o.commit(working, false); err != nil {
		return err
	}

	if sendErr != nil {
		return sendErr
	}
	if out != nil {
		out.Assistant(res.Text)
	}
	return nil
}

// sendSecret runs an off-the-record exchange against the frozen committed
// context. Nothing is persisted and the conversation length is unchanged.
func (o *Orchestrator) sendSecret(ctx context.Context, lines []string, out Output) error {
	req, err := o.buildRequest(o.conv.ContextMessages(),
		provider.Turn{Role: string(model.RoleUser), Content: joinLines(lines)})
	if err != nil {
		return err
	}

	res, err := o.stream(ctx, req, out)
	o.state.SecretExchangeDone()
	if err != nil {
		return err
	}
	if out != nil {
		out.Assistant(res.Text)
	}
	return nil
}

// errorMessage renders a provider failure as a committed error message.
func errorMessage(err error) *model.Message {
	if perr := provider.AsError(err); perr != nil {
		return model.NewErrorMessage(perr.Kind.String() + ": " + perr.Detail)
	}
	return model.NewErrorMessage(err.Error())
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}

// =============================================================================
// HELPER SENDS
// =============================================================================

// helperSend runs a short non-streamed exchange through the helper
// backend, used for title and summary generation.
func (o *Orchestrator) helperSend(ctx context.Context, instruction string) (string, error) {
	name := o.conv.Meta.HelperBackend
	if name == "" {
		name = o.profile.HelperBackend
	}
	if name == "" {
		name = o.state.Backend()
	}
	prov := o.providers.Get(name)
	if prov == nil {
		return "", commands.NewUserInputError("helper backend %q not available", name)
	}

	modelName := o.state.Model()
	if b, ok := o.profile.Backends[name]; ok && b.Model != "" {
		modelName = b.Model
	}

	req, err := o.buildRequest(o.conv.ContextMessages(),
		provider.Turn{Role: string(model.RoleUser), Content: instruction})
	if err != nil {
		return "", err
	}
	req.Model = modelName

	sendCtx, cancel := o.sendContext(ctx)
	defer cancel()

	res, err := prov.Send(sendCtx, req, nil)
	if err != nil {
		return "", err
	}
	return firstNonEmptyLine(res.Text), nil
}

// firstNonEmptyLine reduces helper output to a single line.
func firstNonEmptyLine(text string) string {
	for _, line := range model.SplitLines(text) {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
