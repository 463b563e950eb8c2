// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands provides the slash command registry and parser.
package commands

import (
	"sort"
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// Kind classifies what a command does to session and conversation state.
type Kind int

const (
	// KindQuery reads state without changing it (/history, /show, /help).
	KindQuery Kind = iota

	// KindMutation changes the conversation or its metadata and therefore
	// goes through the persist-then-swap commit path.
	KindMutation

	// KindControl changes session state only (mode, backend, model,
	// timeout) and never touches the conversation file.
	KindControl
)

// Command describes a slash command.
type Command struct {
	// Name is the primary command name (e.g., "/retry").
	Name string

	// Aliases are alternative names (e.g., "/q" for "/quit").
	Aliases []string

	// Description is shown in help output.
	Description string

	// Usage shows argument syntax (e.g., "/rewind <id>").
	Usage string

	// Kind classifies the command's effect.
	Kind Kind
}

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

// Registry holds all registered commands, addressable by name or alias.
type Registry struct {
	commands map[string]*Command
	aliases  map[string]*Command
	order    []string
}

// NewRegistry creates a registry populated with the built-in command set.
func NewRegistry() *Registry {
	r := &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]*Command),
	}
	r.registerBuiltins()
	return r
}

// Register adds a command to the registry.
func (r *Registry) Register(cmd *Command) {
	if _, exists := r.commands[cmd.Name]; !exists {
		r.order = append(r.order, cmd.Name)
	}
	r.commands[cmd.Name] = cmd
	for _, alias := range cmd.Aliases {
		r.aliases[alias] = cmd
	}
}

// Get retrieves a command by exact name or alias. No prefix matching:
// /ret does not resolve to /retry.
func (r *Registry) Get(name string) *Command {
	if cmd, ok := r.commands[name]; ok {
		return cmd
	}
	if cmd, ok := r.aliases[name]; ok {
		return cmd
	}
	return nil
}

// All returns the registered commands in registration order.
func (r *Registry) All() []*Command {
	cmds := make([]*Command, 0, len(r.order))
	for _, name := range r.order {
		cmds = append(cmds, r.commands[name])
	}
	return cmds
}

// Names returns all primary command names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// =============================================================================
// BUILT-IN COMMANDS
// =============================================================================

func (r *Registry) registerBuiltins() {
	r.Register(&Command{
		Name:        "/backend",
		Description: "Switch the active backend",
		Usage:       "/backend <name>",
		Kind:        KindControl,
	})
	r.Register(&Command{
		Name:        "/ollama",
		Description: "Switch to the default Ollama backend",
		Kind:        KindControl,
	})
	r.Register(&Command{
		Name:        "/openrouter",
		Aliases:     []string{"/or"},
		Description: "Switch to the default OpenRouter backend",
		Kind:        KindControl,
	})
	r.Register(&Command{
		Name:        "/model",
		Aliases:     []string{"/m"},
		Description: "Set the model, or reset to the backend default",
		Usage:       "/model [name]",
		Kind:        KindControl,
	})
	r.Register(&Command{
		Name:        "/timeout",
		Description: "Set the per-exchange timeout (0 waits forever)",
		Usage:       "/timeout [duration]",
		Kind:        KindControl,
	})
	r.Register(&Command{
		Name:        "/system",
		Description: "Set the system prompt reference, or reset it",
		Usage:       "/system [ref]",
		Kind:        KindMutation,
	})
	r.Register(&Command{
		Name:        "/retry",
		Aliases:     []string{"/r"},
		Description: "Resend a prompt and stage the new reply",
		Usage:       "/retry [id]",
		Kind:        KindMutation,
	})
	r.Register(&Command{
		Name:        "/apply",
		Description: "Accept the staged retry attempt",
		Kind:        KindMutation,
	})
	r.Register(&Command{
		Name:        "/cancel",
		Description: "Discard the staged retry attempt",
		Kind:        KindControl,
	})
	r.Register(&Command{
		Name:        "/secret",
		Description: "Toggle off-the-record mode, or send one secret message",
		Usage:       "/secret [on|off|<message>]",
		Kind:        KindControl,
	})
	r.Register(&Command{
		Name:        "/rewind",
		Description: "Truncate the conversation from a message onward",
		Usage:       "/rewind <id>",
		Kind:        KindMutation,
	})
	r.Register(&Command{
		Name:        "/purge",
		Description: "Remove individual messages",
		Usage:       "/purge <id> [id...]",
		Kind:        KindMutation,
	})
	r.Register(&Command{
		Name:        "/history",
		Aliases:     []string{"/hist"},
		Description: "List messages with their ids",
		Kind:        KindQuery,
	})
	r.Register(&Command{
		Name:        "/show",
		Description: "Show a message in full",
		Usage:       "/show <id>",
		Kind:        KindQuery,
	})
	r.Register(&Command{
		Name:        "/title",
		Description: "Set the conversation title, or generate one",
		Usage:       "/title [text]",
		Kind:        KindMutation,
	})
	r.Register(&Command{
		Name:        "/summary",
		Description: "Set the conversation summary, or generate one",
		Usage:       "/summary [text]",
		Kind:        KindMutation,
	})
	r.Register(&Command{
		Name:        "/switch",
		Description: "Switch to another conversation file",
		Usage:       "/switch <path>",
		Kind:        KindControl,
	})
	r.Register(&Command{
		Name:        "/help",
		Aliases:     []string{"/h", "/?"},
		Description: "Show available commands",
		Kind:        KindQuery,
	})
	r.Register(&Command{
		Name:        "/quit",
		Aliases:     []string{"/q", "/exit"},
		Description: "Exit",
		Kind:        KindControl,
	})
}
