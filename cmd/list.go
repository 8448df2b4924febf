package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/Use-Tusk/checkout-conformance/internal/category"
	"github.com/Use-Tusk/checkout-conformance/internal/config"
	"github.com/Use-Tusk/checkout-conformance/internal/conferr"
	"github.com/Use-Tusk/checkout-conformance/internal/runner"
	"github.com/Use-Tusk/checkout-conformance/internal/tui/styles"
	"github.com/Use-Tusk/checkout-conformance/internal/utils"
)

var listCmd = &cobra.Command{
	Use:          "list",
	Short:        "List the conformance scenarios",
	Long:         utils.RenderMarkdown("# List\n\nLists the built-in scenarios with their suite and category.\n\n" + filterContent),
	Args:         usageArgs(cobra.NoArgs),
	RunE:         listScenarios,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&filter, "filter", "f", "", "Filter scenarios (see above help)")
	listCmd.Flags().StringVar(&outputFormat, "output-format", "text", `Output format: "text" or "json"`)
}

// listedScenario is a scenario as printed by list.
type listedScenario struct {
	runner.Scenario
	Category category.Category `json:"category"`
}

func listScenarios(cmd *cobra.Command, args []string) error {
	var fx runner.Fixtures
	if err := config.Load(cfgFile); err == nil {
		if cfg, err := config.Get(); err == nil {
			fx = cfg.Fixtures
		}
	}

	scenarios := runner.Catalogue(fx)
	if filter != "" {
		var err error
		if scenarios, err = runner.FilterScenarios(scenarios, filter); err != nil {
			return conferr.Wrap(conferr.Usage, "invalid filter", err)
		}
	}

	out := cmd.OutOrStdout()
	switch outputFormat {
	case "json":
		listed := make([]listedScenario, 0, len(scenarios))
		for _, sc := range scenarios {
			listed = append(listed, listedScenario{Scenario: sc, Category: sc.Category()})
		}
		enc := json.NewEncoder(out)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(listed)
	case "text":
	default:
		return conferr.New(conferr.Usage, fmt.Sprintf("invalid --output-format %q (choices: text, json)", outputFormat))
	}

	if len(scenarios) == 0 {
		fmt.Fprintln(out, "No scenarios match the filter.")
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styles.DimStyle).
		Headers("SCENARIO", "SUITE", "CATEGORY", "OPERATIONS")
	for _, sc := range scenarios {
		t.Row(sc.Name, sc.File, string(sc.Category()), strings.Join(sc.Operations, ", "))
	}
	fmt.Fprintln(out, t.Render())
	fmt.Fprintf(out, "%d scenarios\n", len(scenarios))
	return nil
}
