package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Use-Tusk/checkout-conformance/internal/conferr"
	"github.com/Use-Tusk/checkout-conformance/internal/config"
	"github.com/Use-Tusk/checkout-conformance/internal/tui/styles"
	"github.com/Use-Tusk/checkout-conformance/internal/utils"
)

var validateJSON bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the conform config file",
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate a config file",
	Long: `Validate a config file for unknown keys, missing required fields and invalid values.

Without a path, the file given by --config is used, then the closest
.conform/config.yaml found from the current directory upwards.`,
	Args: usageArgs(cobra.MaximumNArgs(1)),
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd)

	configValidateCmd.Flags().BoolVar(&validateJSON, "json", false, "Print the result as JSON")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	path := cfgFile
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		_ = config.Load("")
		path = config.File()
	}
	if path == "" {
		return conferr.New(conferr.ConfigInvalid, fmt.Sprintf("no config file found; create one with `conform init` or pass a path (looked for %s)", filepath.Join(utils.ConformDirName, utils.ConfigFileName)))
	}

	result := config.ValidateConfigFile(path)
	out := cmd.OutOrStdout()

	if validateJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		for _, e := range result.Errors {
			fmt.Fprintf(out, "%s %s\n", styles.ErrorStyle.Render("✗"), e)
		}
		for _, w := range result.Warnings {
			fmt.Fprintf(out, "%s %s\n", styles.WarningStyle.Render("!"), w)
		}
		if result.SchemaHint != "" {
			fmt.Fprintf(out, "\nExpected shape:\n%s\n", result.SchemaHint)
		}
		if result.Valid {
			fmt.Fprintf(out, "%s %s is valid\n", styles.SuccessStyle.Render("✓"), path)
		}
	}

	if !result.Valid {
		return conferr.New(conferr.ConfigInvalid, fmt.Sprintf("%s is invalid", path))
	}
	return nil
}
