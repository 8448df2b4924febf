package components

import (
	"github.com/charmbracelet/huh"

	"github.com/Use-Tusk/checkout-conformance/internal/tui/styles"
)

// Choice is one answer to a Choose prompt.
type Choice struct {
	Key   string
	Label string
}

// choiceOptions builds the huh options and resolves the preselected key,
// falling back to the first choice when def is not among them.
func choiceOptions(choices []Choice, def string) ([]huh.Option[string], string) {
	opts := make([]huh.Option[string], 0, len(choices))
	selected := ""
	for _, c := range choices {
		opts = append(opts, huh.NewOption(c.Label, c.Key))
		if c.Key == def {
			selected = def
		}
	}
	if selected == "" && len(choices) > 0 {
		selected = choices[0].Key
	}
	return opts, selected
}

// Choose asks a single-select question and returns the chosen key.
func Choose(question string, choices []Choice, def string) (string, error) {
	opts, selected := choiceOptions(choices, def)
	if len(opts) == 0 {
		return "", nil
	}
	err := huh.NewSelect[string]().
		Title(question).
		Options(opts...).
		Value(&selected).
		WithTheme(styles.HuhTheme()).
		Run()
	return selected, err
}
