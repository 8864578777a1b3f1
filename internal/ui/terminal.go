// Package ui handles terminal presentation: capability detection, color
// styles, and plain-text table rendering for the CLI.
package ui

import (
	"os"

	"golang.org/x/term"
)

// IsTerminal reports whether stdout is a TTY.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor reports whether output should carry ANSI color. It
// honors NO_COLOR (https://no-color.org/), CLICOLOR, and CLICOLOR_FORCE.
func ShouldUseColor() bool {
	// NO_COLOR wins regardless of value.
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	// CLICOLOR_FORCE turns color on even when piped.
	if _, set := os.LookupEnv("CLICOLOR_FORCE"); set {
		return true
	}
	return IsTerminal()
}

// ShouldUseEmoji reports whether status icons may use emoji. Piped output
// stays machine-readable.
func ShouldUseEmoji() bool {
	if _, set := os.LookupEnv("MU_NO_EMOJI"); set {
		return false
	}
	return IsTerminal()
}

// IsAgentMode reports whether the CLI is serving an automated caller.
// MU_AGENT_MODE=1 sets it explicitly; a CLAUDE_CODE environment means an
// agent is driving the terminal. Agent mode keeps output compact and
// stable for parsing.
func IsAgentMode() bool {
	if os.Getenv("MU_AGENT_MODE") == "1" {
		return true
	}
	return os.Getenv("CLAUDE_CODE") != ""
}
