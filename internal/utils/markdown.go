package utils

import (
	"encoding/json"
	"sync"

	"github.com/charmbracelet/glamour"

	"github.com/Use-Tusk/checkout-conformance/internal/tui/styles"
)

var (
	renderersMu sync.Mutex
	renderers   = map[int]*glamour.TermRenderer{}
)

// markdownStyleOverrides tints headings with the CLI palette and drops the
// document margin glamour adds by default.
// Reference: https://github.com/charmbracelet/glamour/tree/master/styles
func markdownStyleOverrides() []byte {
	heading := styles.Palette.Deep
	document := map[string]any{"margin": 0}
	if styles.Dark {
		heading = styles.Palette.Brand
		document["color"] = "255"
	}
	overrides := map[string]any{
		"document":   document,
		"code_block": map[string]any{"margin": 0},
		"heading":    map[string]any{"color": heading},
		"h1":         map[string]any{"color": "255", "background_color": styles.Palette.Deep},
	}
	b, _ := json.Marshal(overrides)
	return b
}

func markdownRenderer(width int) (*glamour.TermRenderer, error) {
	renderersMu.Lock()
	defer renderersMu.Unlock()

	if r, ok := renderers[width]; ok {
		return r, nil
	}

	base := "light"
	if styles.Dark {
		base = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(base),
		glamour.WithWordWrap(width),
		glamour.WithStylesFromJSONBytes(markdownStyleOverrides()),
	)
	if err != nil {
		return nil, err
	}
	renderers[width] = r
	return r, nil
}

// RenderMarkdown renders markdown for the terminal at a width of 90.
// Plain markdown is returned when stdout is not a terminal or colour is off.
func RenderMarkdown(markdown string) string {
	return RenderMarkdownWithWidth(markdown, 90)
}

// RenderMarkdownWithWidth renders markdown with a specific word wrap width.
// Uses width of 80 as a fallback if width <= 0.
func RenderMarkdownWithWidth(markdown string, width int) string {
	if styles.NoColor() || !IsTerminal() {
		return markdown
	}
	if width <= 0 {
		width = 80
	}

	r, err := markdownRenderer(width)
	if err != nil {
		return markdown
	}
	rendered, err := r.Render(markdown)
	if err != nil {
		return markdown
	}
	return rendered
}
