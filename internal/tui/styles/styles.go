package styles

import (
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Dark is true when the terminal background is dark. CONFORM_DARK_MODE
// overrides detection.
var Dark = detectDark()

type palette struct {
	Brand   string
	Deep    string
	Accent  string
	Border  string
	Muted   string
	Ok      string
	Fail    string
	Warning string
}

// Palette holds ANSI 256 color codes for the current background.
var Palette = newPalette(Dark)

func newPalette(dark bool) palette {
	p := palette{
		Brand:   "53",
		Deep:    "55",
		Accent:  "205",
		Border:  "240",
		Muted:   "245",
		Ok:      "34",
		Fail:    "196",
		Warning: "214",
	}
	if dark {
		p.Brand = "213"
		p.Ok = "42"
	}
	return p
}

func fg(c string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(c))
}

var (
	TitleStyle   = fg(Palette.Brand).Bold(true).MarginBottom(1)
	HeadingStyle = fg(Palette.Brand).Bold(true)

	SuccessStyle = fg(Palette.Ok)
	ErrorStyle   = fg(Palette.Fail)
	WarningStyle = fg(Palette.Warning)
	DimStyle     = fg(Palette.Muted)

	// BorderDimStyle is for panel titles drawn on a border.
	BorderDimStyle = fg(Palette.Border)

	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Padding(0, 1).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(lipgloss.Color(Palette.Border))
	TableCellStyle        = lipgloss.NewStyle().Padding(0, 1)
	TableRowSelectedStyle = TableCellStyle.
				Foreground(lipgloss.Color(selectedRowText())).
				Background(lipgloss.Color(Palette.Deep))

	ScrollbarThumbStyle = fg(Palette.Brand)
	ScrollbarTrackStyle = DimStyle
)

func selectedRowText() string {
	if Dark {
		return "229"
	}
	return "231"
}

// NoColor reports whether NO_COLOR is set.
func NoColor() bool {
	return termenv.EnvNoColor()
}

// HuhTheme adapts huh's base theme to the palette: no left gutter and a
// brand-colored cursor.
func HuhTheme() *huh.Theme {
	t := huh.ThemeBase()
	t.Focused.Base = lipgloss.NewStyle()
	t.Blurred.Base = lipgloss.NewStyle()
	t.Focused.Title = lipgloss.NewStyle().Bold(true).Underline(true)
	t.Focused.SelectSelector = fg(Palette.Brand).SetString("> ")
	t.Focused.SelectedOption = fg(Palette.Brand)
	return t
}

func detectDark() bool {
	if v, err := strconv.ParseBool(os.Getenv("CONFORM_DARK_MODE")); err == nil {
		return v
	}
	return lipgloss.HasDarkBackground()
}
