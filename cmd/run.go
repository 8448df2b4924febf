package cmd

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Use-Tusk/checkout-conformance/internal/client"
	"github.com/Use-Tusk/checkout-conformance/internal/conferr"
	"github.com/Use-Tusk/checkout-conformance/internal/config"
	"github.com/Use-Tusk/checkout-conformance/internal/log"
	"github.com/Use-Tusk/checkout-conformance/internal/report"
	"github.com/Use-Tusk/checkout-conformance/internal/results"
	"github.com/Use-Tusk/checkout-conformance/internal/runner"
	"github.com/Use-Tusk/checkout-conformance/internal/schema"
	"github.com/Use-Tusk/checkout-conformance/internal/target"
	"github.com/Use-Tusk/checkout-conformance/internal/tui"
	"github.com/Use-Tusk/checkout-conformance/internal/utils"
)

var (
	baseURL      string
	apiKey       string
	specPath     string
	filter       string
	categoryFlag string
	concurrency  int
	print        bool
	outputFormat string
	quiet        bool
	verbose      bool
	failFast     bool
	saveResults  bool
	resultsDir   string
)

//go:embed short_docs/run.md
var runContent string

//go:embed short_docs/filter.md
var filterContent string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the conformance suite against a merchant",
	Long:  utils.RenderMarkdown(runContent + "\n\n" + filterContent),
	Args:  usageArgs(cobra.NoArgs),
	RunE:  runConformance,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&baseURL, "base-url", "", "Base URL of the merchant under test (overrides target.base_url)")
	runCmd.Flags().StringVar(&apiKey, "api-key", "", "Bearer token sent to the merchant (overrides target.api_key)")
	runCmd.Flags().StringVar(&specPath, "spec", "", "Path to an OpenAPI description (default is the bundled checkout description)")
	runCmd.Flags().StringVarP(&filter, "filter", "f", "", "Filter scenarios (see above help)")
	runCmd.Flags().StringVar(&categoryFlag, "category", "", "Only run scenarios whose category matches this regex")
	runCmd.Flags().IntVar(&concurrency, "concurrency", 4, "Maximum number of concurrent scenarios. If set, overrides run.concurrency in the config file.")
	runCmd.Flags().BoolVarP(&print, "print", "p", false, "Run without the live view and print the report (useful for CI and pipes)")
	runCmd.Flags().StringVar(&outputFormat, "output-format", "text", `Report format: "text" or "json"`)
	runCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide progress output, only print the report")
	runCmd.Flags().BoolVar(&verbose, "verbose", false, "Also list passing scenarios in the text report")
	runCmd.Flags().BoolVar(&failFast, "fail-fast", false, "Skip remaining scenarios after the first failure")
	runCmd.Flags().BoolVar(&saveResults, "save-results", false, "Save a results artifact to the results directory")
	runCmd.Flags().StringVar(&resultsDir, "results-dir", "", "Directory for saved results (only works with --save-results). Default is '.conform/results'")

	runCmd.Flags().SortFlags = false
}

func runConformance(cmd *cobra.Command, args []string) error {
	setupSignalHandling()
	cmd.SilenceUsage = true

	slog.Debug("Starting conformance run",
		"base-url", baseURL,
		"spec", specPath,
		"filter", filter,
		"category", categoryFlag,
		"concurrency", concurrency,
		"print", print,
		"output-format", outputFormat,
		"fail-fast", failFast,
		"save-results", saveResults,
		"results-dir", resultsDir,
	)

	if outputFormat != "text" && outputFormat != "json" {
		return conferr.New(conferr.Usage, fmt.Sprintf("invalid --output-format %q (choices: text, json)", outputFormat))
	}

	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}

	desc, err := loadDescription(cfg.Spec.Path)
	if err != nil {
		return err
	}

	scenarios, err := selectScenarios(cfg)
	if err != nil {
		return err
	}
	if len(scenarios) == 0 {
		if outputFormat == "json" {
			fmt.Fprintln(cmd.OutOrStdout(), "[]")
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "No scenarios match the filter")
		return nil
	}

	c := newClient(cfg)
	agg := results.NewAggregator()
	executor := runner.NewExecutor(c, schema.NewChecker(desc), agg)
	executor.SetConcurrency(cfg.Run.Concurrency)
	executor.SetTestTimeout(config.Duration(cfg.Run.Timeout, 0))
	executor.SetFailFast(cfg.Run.FailFast)

	svc := newManagedService(cfg, c)
	if svc != nil {
		RegisterCleanup(func() {
			slog.Info("Cleanup: Stopping service from signal handler")
			_ = svc.Stop()
		})
	}

	run := func(ctx context.Context) error {
		if svc != nil {
			if err := svc.Start(ctx); err != nil {
				return conferr.Wrap(conferr.TargetUnreachable, "failed to start target service", err)
			}
			defer func() {
				if err := svc.Stop(); err != nil {
					slog.Warn("Failed to stop target service", "error", err)
				}
			}()
		}
		log.RunLog(fmt.Sprintf("Running %d scenarios against %s", len(scenarios), c.BaseURL()))
		_, err := executor.Run(ctx, scenarios)
		return err
	}

	var runErr error
	interactive := !print && utils.IsTerminal()
	if interactive {
		runErr = tui.RunInteractive(cmd.Context(), tui.RunViewOpts{
			Target:         c.BaseURL(),
			Aggregator:     agg,
			Run:            run,
			InitialRunLogs: []string{fmt.Sprintf("Loaded %d scenarios", len(scenarios))},
		})
		log.SetMode(log.ModeHeadless)
	} else {
		runErr = runHeadless(cmd, agg, len(scenarios), run)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) && agg.Snapshot().Finished() == 0 {
		return runErr
	}
	return finishRun(cmd, cfg, agg.Snapshot(), runErr, interactive)
}

// loadRunConfig loads the config file and applies command-line overrides.
func loadRunConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.Load(cfgFile); err != nil {
		return nil, conferr.Wrap(conferr.ConfigInvalid, "failed to load config", err)
	}
	cfg, err := config.Get()
	if err != nil {
		return nil, conferr.Wrap(conferr.ConfigInvalid, "invalid config", err)
	}

	if baseURL != "" {
		cfg.Target.BaseURL = baseURL
	}
	if apiKey != "" {
		cfg.Target.APIKey = apiKey
	}
	if specPath != "" {
		cfg.Spec.Path = specPath
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Run.Concurrency = concurrency
	}
	if failFast {
		cfg.Run.FailFast = true
	}
	if resultsDir != "" {
		cfg.Results.Dir = resultsDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, conferr.Wrap(conferr.ConfigInvalid, "invalid config", err)
	}
	if missing := cfg.CheckRequiredForRun(); len(missing) > 0 {
		return nil, conferr.New(conferr.ConfigInvalid, fmt.Sprintf("missing required config: %v (set it in the config file or pass --base-url)", missing))
	}
	return cfg, nil
}

// loadDescription loads the configured interface description, or the
// bundled one when path is empty.
func loadDescription(path string) (*schema.Description, error) {
	if path == "" {
		desc, err := schema.Default()
		if err != nil {
			return nil, conferr.Wrap(conferr.SpecInvalid, "bundled interface description is invalid", err)
		}
		return desc, nil
	}

	if _, err := os.Stat(path); err != nil {
		return nil, conferr.Wrap(conferr.SpecNotFound, fmt.Sprintf("interface description %s not found", path), err)
	}
	desc, err := schema.LoadFile(path)
	if err != nil {
		return nil, conferr.Wrap(conferr.SpecInvalid, "invalid interface description", err)
	}
	slog.Debug("Loaded interface description", "path", path, "paths", len(desc.Paths()))
	return desc, nil
}

func selectScenarios(cfg *config.Config) ([]runner.Scenario, error) {
	scenarios := runner.Catalogue(cfg.Fixtures)

	for _, pattern := range []string{cfg.Run.Filter, filter, categoryPattern(categoryFlag)} {
		if pattern == "" {
			continue
		}
		var err error
		if scenarios, err = runner.FilterScenarios(scenarios, pattern); err != nil {
			return nil, conferr.Wrap(conferr.Usage, "invalid filter", err)
		}
	}
	return scenarios, nil
}

func categoryPattern(re string) string {
	if re == "" {
		return ""
	}
	quote := `"`
	if strings.Contains(re, quote) {
		quote = "'"
	}
	return "category=" + quote + re + quote
}

func newClient(cfg *config.Config) *client.Client {
	opts := []client.Option{
		client.WithTimeout(config.Duration(cfg.Target.Timeout, 0)),
	}
	if cfg.Target.APIKey != "" {
		opts = append(opts, client.WithAPIKey(cfg.Target.APIKey))
	}
	if cfg.Target.APIVersion != "" {
		opts = append(opts, client.WithAPIVersion(cfg.Target.APIVersion))
	}
	if cfg.Target.AcceptLanguage != "" {
		opts = append(opts, client.WithAcceptLanguage(cfg.Target.AcceptLanguage))
	}
	return client.New(cfg.Target.BaseURL, opts...)
}

// newManagedService returns the service conform starts itself, or nil when
// the merchant is expected to be running already.
func newManagedService(cfg *config.Config, c *client.Client) *target.Service {
	t := cfg.Target
	if t.Start.Command == "" {
		return nil
	}

	port := t.Port
	if port == 0 {
		if u, err := url.Parse(t.BaseURL); err == nil {
			port, _ = strconv.Atoi(u.Port())
		}
	}

	logsDir := ""
	if debug {
		logsDir = utils.GetLogsDir()
	}

	return target.NewService(target.Options{
		StartCommand:      t.Start.Command,
		StopCommand:       t.Stop.Command,
		ReadinessCommand:  t.Readiness.Command,
		ReadinessTimeout:  config.Duration(t.Readiness.Timeout, 0),
		ReadinessInterval: config.Duration(t.Readiness.Interval, 0),
		Probe:             c.Probe,
		Port:              port,
		LogsDir:           logsDir,
	})
}

// runHeadless runs without the live view. A progress bar is drawn on
// stderr when it is a terminal.
func runHeadless(cmd *cobra.Command, agg *results.Aggregator, total int, run func(context.Context) error) error {
	if quiet || !utils.IsStderrTerminal() {
		return run(cmd.Context())
	}

	bar := utils.NewProgressBar(cmd.ErrOrStderr(), "Running scenarios")
	bar.Start()
	id := agg.Subscribe(func(e results.Event) {
		bar.Update(e.Snapshot.Finished(), total, e.Snapshot.Failed)
	})
	defer agg.Unsubscribe(id)

	err := run(cmd.Context())
	bar.Finish("")
	return err
}

// finishRun prints the report, saves the artifact and turns failed tests
// into an error.
func finishRun(cmd *cobra.Command, cfg *config.Config, snap results.Snapshot, runErr error, interactive bool) error {
	out := cmd.OutOrStdout()

	var err error
	if outputFormat == "json" {
		err = report.WriteJSON(out, snap)
	} else {
		err = report.WriteText(out, snap, report.TextOptions{
			Verbose: verbose,
			Color:   interactive || utils.IsTerminal(),
		})
	}
	if err != nil {
		return conferr.Wrap(conferr.InternalIO, "failed to write report", err)
	}

	if saveResults {
		path, err := report.WriteArtifact(cfg.Results.Dir, cfg.Results.Format, snap, time.Now())
		if err != nil {
			return conferr.Wrap(conferr.InternalIO, "failed to save results", err)
		}
		writeNote(cmd.ErrOrStderr(), fmt.Sprintf("Results saved to %s", path))
	}

	switch {
	case errors.Is(runErr, context.Canceled):
		return conferr.Wrap(conferr.InternalError, "run canceled before all scenarios finished", runErr)
	case runErr != nil:
		return runErr
	case snap.Failed > 0:
		return conferr.New(conferr.TestsFailed, fmt.Sprintf("%d of %d tests failed", snap.Failed, snap.Total))
	case !snap.Success():
		return conferr.New(conferr.TestsFailed, fmt.Sprintf("%d of %d tests did not finish", snap.Pending, snap.Total))
	}
	return nil
}

func writeNote(w io.Writer, msg string) {
	if !quiet {
		fmt.Fprintln(w, msg)
	}
}
