// args.go - Argument parsing for the parley binary.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// ARG PARSER
// =============================================================================

// ArgParser provides unified argument parsing. It handles multiple flag
// formats consistently:
//   - Long flags: --flag value or --flag=value
//   - Short flags: -f value
//   - Boolean flags: --flag (no value needed)
//   - Positional arguments: arguments without flags
type ArgParser struct {
	flags      map[string]string // String flags (--key=value)
	boolFlags  map[string]bool   // Boolean flags (--quiet)
	positional []string          // All positional arguments
	raw        []string          // Original raw arguments
}

// NewArgParser creates a new argument parser from raw arguments.
//
// Supported flag formats:
//
//	--flag value     Long flag with space-separated value
//	--flag=value     Long flag with equals sign
//	-f value         Short flag with space-separated value
//	--flag           Boolean flag (no value)
func NewArgParser(raw []string) *ArgParser {
	parser := &ArgParser{
		flags:      make(map[string]string),
		boolFlags:  make(map[string]bool),
		positional: make([]string, 0),
		raw:        raw,
	}

	i := 0
	for i < len(raw) {
		arg := raw[i]

		if strings.HasPrefix(arg, "-") {
			// Handle --flag=value format
			if strings.Contains(arg, "=") {
				parts := strings.SplitN(arg, "=", 2)
				flagName := strings.TrimLeft(parts[0], "-")
				flagValue := parts[1]

				// Boolean flags can be explicit: --quiet=true, --quiet=false
				if flagValue == "true" || flagValue == "false" {
					parser.boolFlags[flagName] = flagValue == "true"
				} else {
					parser.flags[flagName] = flagValue
				}
				i++
				continue
			}

			flagName := strings.TrimLeft(arg, "-")

			// Check if next arg is a value (not a flag and not end of args)
			if i+1 < len(raw) && !strings.HasPrefix(raw[i+1], "-") {
				parser.flags[flagName] = raw[i+1]
				i += 2
			} else {
				parser.boolFlags[flagName] = true
				i++
			}
		} else {
			parser.positional = append(parser.positional, arg)
			i++
		}
	}

	return parser
}

// Flag returns the value of a string flag, or empty if not found.
func (p *ArgParser) Flag(name string) string {
	name = strings.TrimLeft(name, "-")
	if val, ok := p.flags[name]; ok {
		return val
	}
	return ""
}

// BoolFlag returns the value of a boolean flag, or false if not found.
func (p *ArgParser) BoolFlag(name string) bool {
	name = strings.TrimLeft(name, "-")
	if val, ok := p.boolFlags[name]; ok {
		return val
	}
	return false
}

// HasFlag returns true if the flag exists (either as string or bool flag).
func (p *ArgParser) HasFlag(name string) bool {
	name = strings.TrimLeft(name, "-")
	_, hasString := p.flags[name]
	_, hasBool := p.boolFlags[name]
	return hasString || hasBool
}

// Positional returns the positional argument at the given index, or empty
// if out of bounds.
func (p *ArgParser) Positional(index int) string {
	if index < 0 || index >= len(p.positional) {
		return ""
	}
	return p.positional[index]
}

// PositionalCount returns the number of positional arguments.
func (p *ArgParser) PositionalCount() int {
	return len(p.positional)
}

// Raw returns the original raw arguments.
func (p *ArgParser) Raw() []string {
	return p.raw
}

// =============================================================================
// PARLEY FLAG SURFACE
// =============================================================================

// Args holds the parsed command-line options.
type Args struct {
	// ProfilePath overrides the default profile location.
	ProfilePath string

	// ChatPath names the conversation file to open or create. Empty means
	// generate a fresh file under the profile's chat directory.
	ChatPath string

	// LogDir overrides the profile's log directory.
	LogDir string

	// Timeout overrides the profile's per-exchange timeout when TimeoutSet
	// is true. Zero with TimeoutSet means wait forever.
	Timeout    time.Duration
	TimeoutSet bool

	// Quiet suppresses the startup banner.
	Quiet bool

	ShowVersion bool
	ShowHelp    bool
}

// ParseArgs parses the process argument list (without the program name).
func ParseArgs(raw []string) (Args, error) {
	parser := NewArgParser(raw)

	args := Args{
		ProfilePath: parser.Flag("profile"),
		ChatPath:    parser.Flag("chat"),
		LogDir:      parser.Flag("log"),
		Quiet:       parser.BoolFlag("quiet") || parser.BoolFlag("q"),
		ShowVersion: parser.BoolFlag("version"),
		ShowHelp:    parser.BoolFlag("help") || parser.BoolFlag("h"),
	}

	if parser.HasFlag("timeout") {
		d, err := ParseTimeout(parser.Flag("timeout"))
		if err != nil {
			return Args{}, err
		}
		args.Timeout = d
		args.TimeoutSet = true
	}

	if parser.PositionalCount() > 0 {
		return Args{}, fmt.Errorf("unexpected argument: %s", parser.Positional(0))
	}

	return args, nil
}

// ParseTimeout parses a timeout value: a bare integer is seconds, anything
// else must be a Go duration. Zero means wait forever.
func ParseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("timeout value is required")
	}
	if secs, err := strconv.Atoi(s); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("timeout must not be negative: %d", secs)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("timeout must not be negative: %s", s)
	}
	return d, nil
}

// Usage returns the help text for the flag surface.
func Usage() string {
	var b strings.Builder
	b.WriteString("Usage: parley [flags]\n\n")
	b.WriteString("Flags:\n")
	b.WriteString("  --profile PATH   Profile file (default: ~/.parley/profile.toml)\n")
	b.WriteString("  --chat PATH      Conversation file to open or create\n")
	b.WriteString("  --log PATH       Log directory (default: profile log_dir)\n")
	b.WriteString("  --timeout DUR    Per-exchange timeout: seconds or Go duration, 0 waits forever\n")
	b.WriteString("  --quiet, -q      Suppress the startup banner\n")
	b.WriteString("  --version        Print version and exit\n")
	b.WriteString("  --help, -h       Show this help\n")
	return b.String()
}
