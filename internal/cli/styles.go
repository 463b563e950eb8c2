// styles.go - Lip Gloss styles for the parley terminal surface.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import "github.com/charmbracelet/lipgloss"

// =============================================================================
// PALETTE
// =============================================================================

// All colors use AdaptiveColor for automatic light/dark detection.
var (
	// Cyan - prompt, info, user highlights
	Cyan = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}

	// Purple - banner, assistant accents
	Purple = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}

	// Emerald - success states, command results
	Emerald = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}

	// Amber - warnings, retry and secret mode indicators
	Amber = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}

	// Rose - errors, error-blocked indicator
	Rose = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}

	// TextSecondary - labels, less prominent text
	TextSecondary = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#A6ADC8"}

	// TextMuted - hints, thinking traces, very subtle text
	TextMuted = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6C7086"}
)

// =============================================================================
// STYLES
// =============================================================================

var (
	// Prompt style
	promptStyle = lipgloss.NewStyle().
			Foreground(Cyan).
			Bold(true)

	// Mode tag inside the prompt (retry, secret, error-blocked)
	modeStyle = lipgloss.NewStyle().
			Foreground(Amber).
			Bold(true)

	// Welcome banner style
	welcomeStyle = lipgloss.NewStyle().
			Foreground(Purple).
			Bold(true)

	// Info style
	infoStyle = lipgloss.NewStyle().
			Foreground(TextSecondary)

	// Command result style
	commandStyle = lipgloss.NewStyle().
			Foreground(Emerald)

	// Warning style
	warningStyle = lipgloss.NewStyle().
			Foreground(Amber)

	// Error style
	errorStyle = lipgloss.NewStyle().
			Foreground(Rose)

	// Thinking-trace style
	thinkingStyle = lipgloss.NewStyle().
			Foreground(TextMuted)
)
