package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Use-Tusk/checkout-conformance/internal/results"
	"github.com/Use-Tusk/checkout-conformance/internal/tui/styles"
	"github.com/Use-Tusk/checkout-conformance/internal/utils"
)

// TextOptions control the text report.
type TextOptions struct {
	// Verbose also lists passing tests.
	Verbose bool
	// Color keeps ANSI sequences in diffs and renders the summary
	// markdown for the terminal. Styles follow the terminal profile.
	Color bool
}

// WriteText writes failures, skips and a per-category summary for s.
func WriteText(w io.Writer, s results.Snapshot, opts TextOptions) error {
	var b strings.Builder

	for _, o := range s.Results {
		switch o.Status {
		case results.StatusFail:
			writeFailure(&b, o, opts)
		case results.StatusSkip:
			fmt.Fprintf(&b, "%s %s: %s\n\n", styles.DimStyle.Render("- SKIP"), o.Name, o.Error)
		case results.StatusPass:
			if opts.Verbose {
				fmt.Fprintf(&b, "%s %s (%dms)\n\n", styles.SuccessStyle.Render("✓ PASS"), o.Name, o.Duration.Milliseconds())
			}
		}
	}

	summary := summaryMarkdown(s)
	if opts.Color {
		summary = utils.RenderMarkdown(summary)
	}
	b.WriteString(summary)
	b.WriteString("\n")
	b.WriteString(verdict(s))
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func writeFailure(b *strings.Builder, o results.Outcome, opts TextOptions) {
	fmt.Fprintf(b, "%s %s (%s)\n", styles.ErrorStyle.Render("✗ FAIL"), o.Name, o.Category)
	if o.Error != "" {
		fmt.Fprintf(b, "  %s\n", o.Error)
	}
	for i, d := range o.Deviations {
		fmt.Fprintf(b, "  %d. [%s] %s\n", i+1, d.Rule, d.Description)
		if d.Path != "" {
			fmt.Fprintf(b, "     at %s\n", d.Path)
		}
		switch {
		case structured(d.Expected) || structured(d.Actual):
			diff := utils.StripNoWrapMarker(utils.FormatJSONDiff(d.Expected, d.Actual))
			if !opts.Color {
				diff = utils.StripANSI(diff)
			}
			b.WriteString(indent(diff, "   "))
			b.WriteString("\n")
		case d.Expected != nil || d.Actual != nil:
			fmt.Fprintf(b, "     expected: %s\n", scalar(d.Expected))
			fmt.Fprintf(b, "     actual:   %s\n", scalar(d.Actual))
		}
		if d.Detail != "" {
			b.WriteString(indent(styles.DimStyle.Render(d.Detail), "     "))
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
}

func structured(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

func scalar(v any) string {
	if v == nil {
		return "<none>"
	}
	if s, ok := v.(string); ok {
		return s
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

func summaryMarkdown(s results.Snapshot) string {
	var b strings.Builder
	b.WriteString("## Results by category\n\n")
	b.WriteString("| Category | Passed | Failed | Skipped | Total |\n")
	b.WriteString("|---|---:|---:|---:|---:|\n")
	for _, c := range s.CategoryOrder() {
		st := s.Categories[c]
		fmt.Fprintf(&b, "| %s | %d | %d | %d | %d |\n", c, st.Passed, st.Failed, st.Skipped, st.Total)
	}
	fmt.Fprintf(&b, "| **Total** | %d | %d | %d | %d |\n", s.Passed, s.Failed, s.Skipped, s.Total)
	return b.String()
}

func verdict(s results.Snapshot) string {
	switch {
	case s.Failed > 0:
		return styles.ErrorStyle.Bold(true).Render(fmt.Sprintf("FAILED: %d of %d tests failed", s.Failed, s.Total))
	case !s.Success():
		return styles.ErrorStyle.Bold(true).Render(fmt.Sprintf("INCOMPLETE: %d of %d tests did not finish", s.Pending, s.Total))
	case s.Skipped > 0:
		return styles.SuccessStyle.Bold(true).Render(fmt.Sprintf("PASSED: %d of %d tests passed, %d skipped", s.Passed, s.Total, s.Skipped))
	default:
		return styles.SuccessStyle.Bold(true).Render(fmt.Sprintf("PASSED: all %d tests passed", s.Total))
	}
}
