// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/parley/internal/commands"
	"github.com/jeranaias/parley/internal/config"
	"github.com/jeranaias/parley/internal/session"
	"github.com/jeranaias/parley/internal/storage"
	"github.com/jeranaias/parley/internal/util"
)

// =============================================================================
// COMMAND DISPATCH
// =============================================================================

func (o *Orchestrator) execute(ctx context.Context, inv *commands.Invocation, out Output) (quit bool, err error) {
	switch inv.Command.Name {
	case "/quit":
		return true, nil
	case "/help":
		o.cmdHelp(out)
		return false, nil
	case "/backend":
		return false, o.cmdBackend(inv.Args, out)
	case "/ollama":
		return false, o.cmdBackendOfKind(config.KindOllama, out)
	case "/openrouter":
		return false, o.cmdBackendOfKind(config.KindOpenRouter, out)
	case "/model":
		return false, o.cmdModel(inv.Args, out)
	case "/timeout":
		return false, o.cmdTimeout(inv.Args, out)
	case "/system":
		return false, o.cmdSystem(inv.Args, out)
	case "/retry":
		return false, o.cmdRetry(ctx, inv.Args, out)
	case "/apply":
		return false, o.ApplyRetry(ctx)
	case "/cancel":
		return false, o.CancelRetry()
	case "/secret":
		return false, o.cmdSecret(ctx, inv, out)
	case "/rewind":
		return false, o.cmdRewind(inv.Args, out)
	case "/purge":
		return false, o.cmdPurge(inv.Args, out)
	case "/history":
		o.cmdHistory(out)
		return false, nil
	case "/show":
		return false, o.cmdShow(inv.Args, out)
	case "/title":
		return false, o.cmdTitle(ctx, inv.Rest, out)
	case "/summary":
		return false, o.cmdSummary(ctx, inv.Rest, out)
	case "/switch":
		return false, o.cmdSwitch(inv.Args, out)
	default:
		return false, commands.NewUserInputError("command %s not implemented", inv.Command.Name)
	}
}

// =============================================================================
// SESSION CONTROL
// =============================================================================

func (o *Orchestrator) cmdBackend(args []string, out Output) error {
	if len(args) != 1 {
		return commands.NewUserInputError("usage: /backend <name>")
	}
	return o.switchBackend(args[0], out)
}

func (o *Orchestrator) cmdBackendOfKind(kind config.BackendKind, out Output) error {
	name := o.profile.FirstBackendOfKind(kind)
	if name == "" {
		return commands.NewUserInputError("no %s backend configured", kind)
	}
	return o.switchBackend(name, out)
}

func (o *Orchestrator) switchBackend(name string, out Output) error {
	b, ok := o.profile.Backends[name]
	if !ok {
		return commands.NewUserInputError("backend %q not configured (have: %s)",
			name, strings.Join(o.providers.Names(), ", "))
	}
	if o.providers.Get(name) == nil {
		return commands.NewUserInputError("backend %q not available", name)
	}
	o.state.SetBackend(name)
	o.state.SetModel(b.Model)
	out.Print(fmt.Sprintf("backend %s, model %s", name, b.Model))
	return nil
}

func (o *Orchestrator) cmdModel(args []string, out Output) error {
	if len(args) == 0 {
		// Reset to the backend default.
		b, ok := o.profile.Backends[o.state.Backend()]
		if !ok {
			return commands.NewUserInputError("active backend not in profile")
		}
		o.state.SetModel(b.Model)
		out.Print("model reset to " + b.Model)
		return nil
	}
	o.state.SetModel(args[0])
	out.Print("model " + args[0])
	return nil
}

func (o *Orchestrator) cmdTimeout(args []string, out Output) error {
	if len(args) == 0 {
		if t := o.state.Timeout(); t > 0 {
			out.Print("timeout " + t.String())
		} else {
			out.Print("timeout off")
		}
		return nil
	}

	d, err := parseTimeout(args[0])
	if err != nil {
		return err
	}
	o.state.SetTimeout(d)
	if d == 0 {
		out.Print("timeout off")
	} else {
		out.Print("timeout " + d.String())
	}
	return nil
}

// parseTimeout accepts a Go duration or a bare number of seconds. Zero
// disables the limit.
func parseTimeout(arg string) (time.Duration, error) {
	if secs, err := strconv.Atoi(arg); err == nil {
		if secs < 0 {
			return 0, commands.NewUserInputError("timeout cannot be negative")
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(arg)
	if err != nil {
		return 0, commands.NewUserInputError("cannot parse timeout %q", arg)
	}
	if d < 0 {
		return 0, commands.NewUserInputError("timeout cannot be negative")
	}
	return d, nil
}

func (o *Orchestrator) cmdSecret(ctx context.Context, inv *commands.Invocation, out Output) error {
	switch {
	case len(inv.Args) == 1 && inv.Args[0] == "on":
		if err := o.state.SecretOn(); err != nil {
			return commands.NewUserInputError("%v", err)
		}
		out.Print("secret mode on: exchanges are not recorded")
		return nil

	case len(inv.Args) == 1 && inv.Args[0] == "off":
		if err := o.state.SecretOff(); err != nil {
			return commands.NewUserInputError("%v", err)
		}
		out.Print("secret mode off")
		return nil

	case inv.Rest == "":
		// Bare /secret toggles.
		if o.state.Mode() == session.ModeSecret {
			if err := o.state.SecretOff(); err != nil {
				return commands.NewUserInputError("%v", err)
			}
			out.Print("secret mode off")
		} else {
			if err := o.state.SecretOn(); err != nil {
				return commands.NewUserInputError("%v", err)
			}
			out.Print("secret mode on: exchanges are not recorded")
		}
		return nil

	default:
		// One-shot: send the rest of the line off the record.
		if err := o.state.SecretOneShot(); err != nil {
			return commands.NewUserInputError("%v", err)
		}
		return o.SendMessage(ctx, inv.Rest, out)
	}
}

func (o *Orchestrator) cmdRetry(ctx context.Context, args []string, out Output) error {
	hexID := ""
	if len(args) > 0 {
		hexID = args[0]
	}
	return o.StartRetry(ctx, hexID, out)
}

// =============================================================================
// CONVERSATION MUTATIONS
// =============================================================================

// requireNoDraft rejects structural mutations while a retry draft is
// staged: the draft anchors into the message slice by index, and a
// truncation or removal would leave it addressing the wrong messages.
func (o *Orchestrator) requireNoDraft() error {
	if o.state.Mode() == session.ModeRetry {
		return commands.NewUserInputError("a retry is staged; /apply or /cancel it before editing the conversation")
	}
	return nil
}

func (o *Orchestrator) cmdSystem(args []string, out Output) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	ref := ""
	if len(args) > 0 {
		ref = args[0]
		if _, err := o.profile.SystemPrompt(ref); err != nil {
			return commands.NewUserInputError("%v", err)
		}
	}

	working := o.conv.Clone()
	working.Meta.SystemPromptRef = ref
	if err := o.commit(working, false); err != nil {
		return err
	}
	if ref == "" {
		out.Print("system prompt cleared")
	} else {
		out.Print("system prompt " + ref)
	}
	return nil
}

func (o *Orchestrator) cmdRewind(args []string, out Output) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(args) != 1 {
		return commands.NewUserInputError("usage: /rewind <id>")
	}
	if err := o.requireNoDraft(); err != nil {
		return err
	}
	idx := o.conv.IndexByHexID(args[0])
	if idx < 0 {
		return commands.NewUserInputError("no message with id %s", args[0])
	}

	removed := o.conv.Len() - idx
	working := o.conv.Clone()
	working.TruncateFrom(idx)
	if err := o.commit(working, true); err != nil {
		return err
	}
	out.Print(fmt.Sprintf("rewound: removed %d message(s)", removed))
	return nil
}

func (o *Orchestrator) cmdPurge(args []string, out Output) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(args) == 0 {
		return commands.NewUserInputError("usage: /purge <id> [id...]")
	}
	if err := o.requireNoDraft(); err != nil {
		return err
	}

	// All IDs must resolve before anything is removed.
	indices, missing := o.conv.SortedIndices(args)
	if len(missing) > 0 {
		return commands.NewUserInputError("no message with id %s", strings.Join(missing, ", "))
	}

	working := o.conv.Clone()
	working.RemoveAt(indices...)
	if err := o.commit(working, true); err != nil {
		return err
	}
	out.Print(fmt.Sprintf("purged %d message(s)", len(indices)))
	return nil
}

func (o *Orchestrator) cmdTitle(ctx context.Context, text string, out Output) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if text == "" {
		generated, err := o.helperSend(ctx,
			"Provide a short title (at most eight words) for this conversation. Reply with the title only.")
		if err != nil {
			return err
		}
		if generated == "" {
			return commands.NewUserInputError("helper produced no title; set one with /title <text>")
		}
		text = util.TruncateRunes(generated, 80)
	}

	working := o.conv.Clone()
	working.Meta.Title = text
	if err := o.commit(working, false); err != nil {
		return err
	}
	out.Print("title: " + text)
	return nil
}

func (o *Orchestrator) cmdSummary(ctx context.Context, text string, out Output) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if text == "" {
		generated, err := o.helperSend(ctx,
			"Summarize this conversation in one or two sentences. Reply with the summary only.")
		if err != nil {
			return err
		}
		if generated == "" {
			return commands.NewUserInputError("helper produced no summary; set one with /summary <text>")
		}
		text = generated
	}

	working := o.conv.Clone()
	working.Meta.Summary = text
	if err := o.commit(working, false); err != nil {
		return err
	}
	out.Print("summary: " + text)
	return nil
}

func (o *Orchestrator) cmdSwitch(args []string, out Output) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(args) != 1 {
		return commands.NewUserInputError("usage: /switch <path>")
	}
	if mode := o.state.Mode(); mode != session.ModeNormal {
		return commands.NewUserInputError("cannot switch conversations in %s mode; finish or cancel it first", mode)
	}
	if err := commands.ValidatePath(args[0]); err != nil {
		return err
	}
	path, err := o.profile.ResolvePath(args[0])
	if err != nil {
		return err
	}

	conv, err := storage.Load(path)
	if err != nil {
		return err
	}

	prev := o.idSnapshot()
	o.conv = conv
	o.path = path
	o.assignIDs(prev)
	o.state.SyncErrorBlocked(o.conv)
	out.Print(fmt.Sprintf("switched to %s (%d messages)", path, conv.Len()))
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (o *Orchestrator) cmdHistory(out Output) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.conv.IsEmpty() {
		out.Print("conversation is empty")
		return
	}

	idWidth := o.alloc.Width()
	if idWidth < 2 {
		idWidth = 2
	}
	for _, msg := range o.conv.Messages {
		line := fmt.Sprintf("%s  %s  %s  %s",
			util.PadRight(msg.HexID, idWidth),
			util.PadRight(string(msg.Role), 9),
			msg.Timestamp.Format("2006-01-02 15:04:05"),
			msg.Preview(60),
		)
		out.Print(line)
	}
}

func (o *Orchestrator) cmdShow(args []string, out Output) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(args) != 1 {
		return commands.NewUserInputError("usage: /show <id>")
	}
	msg := o.conv.MessageByHexID(args[0])
	if msg == nil {
		return commands.NewUserInputError("no message with id %s", args[0])
	}

	out.Print(fmt.Sprintf("[%s] %s  %s", msg.HexID, msg.Role,
		msg.Timestamp.Format("2006-01-02 15:04:05")))
	if msg.Model != "" {
		out.Print("model: " + msg.Model)
	}
	out.Print("")
	out.Print(msg.Text())
	return nil
}

func (o *Orchestrator) cmdHelp(out Output) {
	width := 0
	for _, cmd := range o.registry.All() {
		label := helpLabel(cmd)
		if w := util.StringWidth(label); w > width {
			width = w
		}
	}
	for _, cmd := range o.registry.All() {
		out.Print(fmt.Sprintf("  %s  %s", util.PadRight(helpLabel(cmd), width), cmd.Description))
	}
}

func helpLabel(cmd *commands.Command) string {
	if cmd.Usage != "" {
		return cmd.Usage
	}
	return cmd.Name
}
