// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"fmt"
	"strings"
	"unicode"
)

// =============================================================================
// USER INPUT ERRORS
// =============================================================================

// UserInputError reports input the user can correct and resubmit. It never
// indicates an internal failure.
type UserInputError struct {
	Message string
}

// Error implements the error interface.
func (e *UserInputError) Error() string {
	return e.Message
}

// NewUserInputError creates a UserInputError with a formatted message.
func NewUserInputError(format string, args ...any) *UserInputError {
	return &UserInputError{Message: fmt.Sprintf(format, args...)}
}

// =============================================================================
// INVOCATION
// =============================================================================

// Invocation is a parsed slash command ready for dispatch.
type Invocation struct {
	// Command is the matched registry entry.
	Command *Command

	// Name is the name or alias as typed (e.g., "/q").
	Name string

	// Args are the tokenized arguments, quotes respected.
	Args []string

	// Rest is the raw argument text after the command name, untokenized.
	// Free-text commands like /title and /secret use this.
	Rest string
}

// =============================================================================
// PARSER
// =============================================================================

// Parser resolves user input against a command registry.
type Parser struct {
	registry *Registry
}

// NewParser creates a parser over the given registry.
func NewParser(registry *Registry) *Parser {
	return &Parser{registry: registry}
}

// Parse resolves a line of input. Non-command input returns (nil, nil):
// the line is a chat message. A leading / that matches no command is a
// UserInputError so a typo never gets sent to a model.
func (p *Parser) Parse(input string) (*Invocation, error) {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "/") {
		return nil, nil
	}

	name := commandName(trimmed)
	cmd := p.registry.Get(name)
	if cmd == nil {
		return nil, NewUserInputError("unknown command %s (see /help)", name)
	}

	rest := strings.TrimSpace(trimmed[len(name):])
	return &Invocation{
		Command: cmd,
		Name:    name,
		Args:    splitCommandLine(rest),
		Rest:    rest,
	}, nil
}

// commandName extracts the command token from input that starts with /.
func commandName(input string) string {
	end := strings.IndexFunc(input, unicode.IsSpace)
	if end == -1 {
		return input
	}
	return input[:end]
}

// splitCommandLine splits an argument string into tokens, respecting
// single and double quotes.
func splitCommandLine(input string) []string {
	var tokens []string
	var current strings.Builder
	var inSingleQuote, inDoubleQuote bool

	for i := 0; i < len(input); i++ {
		char := rune(input[i])

		switch {
		case char == '\'' && !inDoubleQuote:
			inSingleQuote = !inSingleQuote

		case char == '"' && !inSingleQuote:
			inDoubleQuote = !inDoubleQuote

		case char == '\\' && i+1 < len(input) && (inDoubleQuote || inSingleQuote):
			next := rune(input[i+1])
			if next == '"' || next == '\'' || next == '\\' {
				current.WriteRune(next)
				i++
			} else {
				current.WriteRune(char)
			}

		case unicode.IsSpace(char) && !inSingleQuote && !inDoubleQuote:
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}

		default:
			current.WriteRune(char)
		}
	}

	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}

	return tokens
}
