package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Use-Tusk/checkout-conformance/internal/conferr"
	"github.com/Use-Tusk/checkout-conformance/internal/log"
	"github.com/Use-Tusk/checkout-conformance/internal/tui/components"
	"github.com/Use-Tusk/checkout-conformance/internal/tui/styles"
	"github.com/Use-Tusk/checkout-conformance/internal/utils"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a conform config for your merchant",
	Long: `Interactive wizard to configure the merchant under test.
This will create a .conform/config.yaml file in the current directory.`,
	Args: usageArgs(cobra.NoArgs),
	RunE: initConfig,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

// initAnswers are the wizard's results.
type initAnswers struct {
	BaseURL        string
	APIKey         string
	StartCommand   string
	ReadinessCheck string
	SpecPath       string
	Concurrency    int
}

// The written file only carries keys the user answered.
type initFile struct {
	Target  initTarget  `yaml:"target"`
	Spec    *initSpec   `yaml:"spec,omitempty"`
	Run     initRun     `yaml:"run"`
	Results initResults `yaml:"results"`
}

type initTarget struct {
	BaseURL   string       `yaml:"base_url"`
	APIKey    string       `yaml:"api_key,omitempty"`
	Start     *initCommand `yaml:"start,omitempty"`
	Readiness *initCommand `yaml:"readiness_check,omitempty"`
}

type initCommand struct {
	Command string `yaml:"command"`
}

type initSpec struct {
	Path string `yaml:"path"`
}

type initRun struct {
	Concurrency int `yaml:"concurrency"`
}

type initResults struct {
	Dir string `yaml:"dir"`
}

func renderInitConfig(a initAnswers) ([]byte, error) {
	f := initFile{
		Target:  initTarget{BaseURL: a.BaseURL, APIKey: a.APIKey},
		Run:     initRun{Concurrency: a.Concurrency},
		Results: initResults{Dir: filepath.ToSlash(filepath.Join(utils.ConformDirName, utils.ResultsSubDir))},
	}
	if f.Run.Concurrency < 1 {
		f.Run.Concurrency = 4
	}
	if a.StartCommand != "" {
		f.Target.Start = &initCommand{Command: a.StartCommand}
	}
	if a.ReadinessCheck != "" {
		f.Target.Readiness = &initCommand{Command: a.ReadinessCheck}
	}
	if a.SpecPath != "" {
		f.Spec = &initSpec{Path: a.SpecPath}
	}
	return yaml.Marshal(f)
}

// writeInitConfig writes data to <dir>/.conform/config.yaml. An existing
// file is only replaced when overwrite is set.
func writeInitConfig(dir string, data []byte, overwrite bool) (string, error) {
	confDir := filepath.Join(dir, utils.ConformDirName)
	path := filepath.Join(confDir, utils.ConfigFileName)
	if _, err := os.Stat(path); err == nil && !overwrite {
		return path, fmt.Errorf("%s already exists", path)
	}
	if err := utils.EnsureDir(confDir); err != nil {
		return path, err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return path, fmt.Errorf("failed to write config: %w", err)
	}
	return path, nil
}

func validateBaseURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("enter an absolute http(s) URL, e.g. http://localhost:8080")
	}
	return nil
}

func initConfig(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	if !utils.IsTerminal() {
		return conferr.New(conferr.Usage, "conform init is interactive; run it in a terminal or write .conform/config.yaml by hand")
	}

	wd, err := os.Getwd()
	if err != nil {
		return err
	}

	overwrite := false
	if _, err := os.Stat(filepath.Join(wd, utils.ConformDirName, utils.ConfigFileName)); err == nil {
		if err := huh.NewConfirm().
			Title("A config already exists here. Overwrite it?").
			Value(&overwrite).
			WithTheme(styles.HuhTheme()).
			Run(); err != nil {
			return err
		}
		if !overwrite {
			log.UserInfo("Keeping the existing config.")
			return nil
		}
	}

	a := initAnswers{BaseURL: "http://localhost:8080", Concurrency: 4}
	concurrencyStr := strconv.Itoa(a.Concurrency)

	if err := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Merchant base URL").
			Description("Where the checkout API is served").
			Value(&a.BaseURL).
			Validate(validateBaseURL),
		huh.NewInput().
			Title("API key").
			Description("Bearer token for the merchant. Leave empty to set CONFORM_API_KEY instead.").
			EchoMode(huh.EchoModePassword).
			Value(&a.APIKey),
		huh.NewInput().
			Title("Interface description").
			Description("Path to an OpenAPI file. Leave empty to use the bundled checkout description.").
			Value(&a.SpecPath),
		huh.NewInput().
			Title("Concurrency").
			Value(&concurrencyStr).
			Validate(func(s string) error {
				n, err := strconv.Atoi(s)
				if err != nil || n < 1 {
					return errors.New("enter a positive number")
				}
				return nil
			}),
	)).WithTheme(styles.HuhTheme()).Run(); err != nil {
		return err
	}
	a.Concurrency, _ = strconv.Atoi(concurrencyStr)

	mode, err := components.Choose("How is the merchant started?", []components.Choice{
		{Key: "running", Label: "It is already running"},
		{Key: "managed", Label: "conform starts it with a command"},
	}, "running")
	if err != nil {
		return err
	}
	if mode == "managed" {
		if err := huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title("Start command").
				Description("Runs in a shell from the project root").
				Value(&a.StartCommand).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("a start command is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Readiness check").
				Description("Command that exits 0 once the merchant accepts requests. Leave empty to poll the base URL.").
				Value(&a.ReadinessCheck),
		)).WithTheme(styles.HuhTheme()).Run(); err != nil {
			return err
		}
	}

	data, err := renderInitConfig(a)
	if err != nil {
		return err
	}
	path, err := writeInitConfig(wd, data, overwrite)
	if err != nil {
		return conferr.Wrap(conferr.InternalIO, "failed to create config", err)
	}

	log.UserSuccess(fmt.Sprintf("Created %s", path))
	log.UserInfo("Next: run `conform run` to check your merchant.")
	return nil
}
