package cmd

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Use-Tusk/checkout-conformance/internal/conferr"
	"github.com/Use-Tusk/checkout-conformance/internal/log"
	"github.com/Use-Tusk/checkout-conformance/internal/tui/styles"
	"github.com/Use-Tusk/checkout-conformance/internal/utils"
	"github.com/Use-Tusk/checkout-conformance/internal/version"
)

var (
	cfgFile     string
	debug       bool
	showVersion bool

	// Cleanup infrastructure
	cleanupFuncs []func()
	cleanupMutex sync.Mutex
	signalSetup  sync.Once
)

//go:embed short_docs/overview.md
var overviewContent string

var rootCmd = &cobra.Command{
	Use:   "conform",
	Short: "Checkout protocol conformance harness",
	Long:  utils.RenderMarkdown(overviewContent),
	Run: func(cmd *cobra.Command, args []string) {
		showBanner(cmd)
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			version.PrintVersion(cmd.OutOrStdout())
			os.Exit(0)
		}
		log.Setup(debug, log.ModeHeadless)
		return nil
	},
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute runs the root command. Returned errors carry a conferr class
// where one applies; see conferr.ExitCode.
func Execute() error {
	return rootCmd.Execute()
}

func showBanner(cmd *cobra.Command) {
	title := styles.TitleStyle.Render("conform")
	fmt.Fprintf(cmd.OutOrStdout(), "\n%s  checkout protocol conformance (version %s)\n\n", title, version.Version)
	fmt.Fprintln(cmd.OutOrStdout(), `Use "conform --help" for more information about available commands.`)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .conform/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug output")
	rootCmd.PersistentFlags().BoolVarP(&showVersion, "version", "v", false, "show version and exit")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return conferr.Wrap(conferr.Usage, "invalid flags", err)
	})
}

// usageArgs wraps a positional argument validator so its errors exit with
// the usage code.
func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return conferr.Wrap(conferr.Usage, "invalid arguments", err)
		}
		return nil
	}
}

// RegisterCleanup adds a cleanup function to be called on program termination
func RegisterCleanup(fn func()) {
	cleanupMutex.Lock()
	defer cleanupMutex.Unlock()
	cleanupFuncs = append(cleanupFuncs, fn)
}

// runCleanup executes all registered cleanup functions
func runCleanup() {
	cleanupMutex.Lock()
	defer cleanupMutex.Unlock()

	slog.Debug("Running cleanup functions", "count", len(cleanupFuncs))
	for i, fn := range cleanupFuncs {
		slog.Debug("Running cleanup function", "index", i)
		fn()
	}
	cleanupFuncs = nil
}

// setupSignalHandling stops managed services on SIGINT and SIGTERM before
// exiting.
func setupSignalHandling() {
	signalSetup.Do(func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)

		go func() {
			sig := <-c
			fmt.Fprintf(os.Stderr, "Received %s signal, cleaning up\n", sig)
			runCleanup()
			os.Exit(conferr.InternalError.ExitCode())
		}()

		slog.Debug("Signal handling setup complete")
	})
}
