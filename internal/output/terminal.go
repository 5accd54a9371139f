package output

import (
	"os"
	"strconv"

	"golang.org/x/term"
)

const defaultWidth = 80

// TerminalWidth returns the current terminal width or a fallback when unavailable.
func TerminalWidth(fallback int) int {
	if fallback <= 0 {
		fallback = defaultWidth
	}

	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}

	if cols := os.Getenv("COLUMNS"); cols != "" {
		if parsed, err := strconv.Atoi(cols); err == nil && parsed > 0 {
			return parsed
		}
	}

	return fallback
}

// IsTerminal reports whether stdin is interactive, so prompts can be shown.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
