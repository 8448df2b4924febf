package utils

import (
	"os"

	"github.com/atotto/clipboard"
	osc52 "github.com/aymanbagabas/go-osc52/v2"
	"github.com/mattn/go-isatty"
)

func isTTY(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// IsTerminal reports whether stdout is a terminal.
func IsTerminal() bool {
	return isTTY(os.Stdout)
}

// IsStderrTerminal reports whether stderr is a terminal.
func IsStderrTerminal() bool {
	return isTTY(os.Stderr)
}

// CopyToClipboard copies text to the system clipboard.
// It tries OSC52 first (for remote terminals), then falls back to OS clipboard.
func CopyToClipboard(text string) error {
	if IsTerminal() {
		_, err := osc52.New(text).WriteTo(os.Stdout)
		return err
	}
	return clipboard.WriteAll(text)
}
