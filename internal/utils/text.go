package utils

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"
	"github.com/pmezard/go-difflib/difflib"
)

// NoWrapMarker prefixes lines that must keep their layout, such as diffs.
const NoWrapMarker = "\x00NOWRAP\x00"

// MarkNonWrappable adds an invisible marker to indicate text should not be wrapped
func MarkNonWrappable(text string) string {
	return NoWrapMarker + text
}

// StripNoWrapMarker removes the non-wrappable marker from text before display
func StripNoWrapMarker(text string) string {
	return strings.ReplaceAll(text, NoWrapMarker, "")
}

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// StripANSI removes ANSI colour sequences from a string
func StripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

// WrapLine wraps one line at word boundaries, hard-splitting words longer
// than maxWidth. ANSI sequences do not count towards the width. Lines
// marked non-wrappable are returned unchanged.
func WrapLine(text string, maxWidth int) []string {
	if maxWidth <= 0 {
		maxWidth = 80
	}
	if strings.Contains(text, NoWrapMarker) {
		return []string{StripNoWrapMarker(text)}
	}
	wrapped := wrap.String(wordwrap.String(text, maxWidth), maxWidth)
	return strings.Split(wrapped, "\n")
}

// WrapText wraps multiple lines of content to fit within the specified width
func WrapText(content string, maxWidth int) string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		out = append(out, WrapLine(line, maxWidth)...)
	}
	return strings.Join(out, "\n")
}

// TruncateWithEllipsis cuts text to maxWidth visible cells, ending in "...".
func TruncateWithEllipsis(text string, maxWidth int) string {
	if runewidth.StringWidth(StripANSI(text)) <= maxWidth {
		return text
	}
	if maxWidth <= 3 {
		return "..."
	}
	return truncate.StringWithTail(text, uint(maxWidth), "...")
}

func formatJSONForDiff(v any) string {
	if v == nil {
		return "<nil>"
	}
	if str, ok := v.(string); ok {
		var parsed any
		if err := json.Unmarshal([]byte(str), &parsed); err != nil {
			return str
		}
		v = parsed
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// FormatJSONDiff renders a coloured unified diff between two JSON values.
// Lines are marked non-wrappable.
func FormatJSONDiff(expected, actual any) string {
	expectedJSON := formatJSONForDiff(expected)
	actualJSON := formatJSONForDiff(actual)
	if expectedJSON == actualJSON {
		return "No differences found"
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(expectedJSON),
		B:        difflib.SplitLines(actualJSON),
		FromFile: "Expected",
		ToFile:   "Actual",
		Context:  5,
	})
	if err != nil {
		return fmt.Sprintf("Expected:\n%s\n\nActual:\n%s", expectedJSON, actualJSON)
	}

	const (
		red   = "\033[31m"
		green = "\033[32m"
		cyan  = "\033[36m"
		gray  = "\033[38;5;250m"
		reset = "\033[0m"
	)

	out := []string{MarkNonWrappable("  " + gray + "╭─" + strings.Repeat("─", 22) + " Diff " + strings.Repeat("─", 22) + reset)}
	for _, line := range strings.Split(diff, "\n") {
		if line == "" {
			continue
		}
		color := gray
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "@@"):
			color = cyan
		case strings.HasPrefix(line, "-"):
			color = red
		case strings.HasPrefix(line, "+"):
			color = green
		}
		out = append(out, MarkNonWrappable("    "+color+line+reset))
	}
	out = append(out, MarkNonWrappable("  "+gray+"╰─"+strings.Repeat("─", 50)+reset))
	return strings.Join(out, "\n")
}
