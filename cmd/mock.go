package cmd

import (
	_ "embed"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/Use-Tusk/checkout-conformance/internal/conferr"
	"github.com/Use-Tusk/checkout-conformance/internal/log"
	"github.com/Use-Tusk/checkout-conformance/internal/mockserver"
	"github.com/Use-Tusk/checkout-conformance/internal/utils"
)

var (
	mockHost   string
	mockPort   int
	mockAPIKey string
	mockFaults []string
)

//go:embed short_docs/mock.md
var mockContent string

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Serve the reference mock merchant",
	Long:  utils.RenderMarkdown(mockContent),
	Args:  usageArgs(cobra.NoArgs),
	RunE:  serveMock,
}

func init() {
	rootCmd.AddCommand(mockCmd)

	mockCmd.Flags().StringVar(&mockHost, "host", "127.0.0.1", "Interface to listen on")
	mockCmd.Flags().IntVar(&mockPort, "port", 8080, "Port to listen on")
	mockCmd.Flags().StringVar(&mockAPIKey, "api-key", "", "Require this bearer token on every request")
	mockCmd.Flags().StringSliceVar(&mockFaults, "fault", nil, "Inject a fault (repeatable): "+strings.Join(faultNames(), ", "))
}

var faultSetters = map[string]func(*mockserver.Faults){
	"wrong-total":               func(f *mockserver.Faults) { f.WrongTotal = true },
	"accept-terminal-mutations": func(f *mockserver.Faults) { f.AcceptTerminalMutations = true },
	"ignore-idempotency-body":   func(f *mockserver.Faults) { f.IgnoreIdempotencyBody = true },
	"drop-key-echo":             func(f *mockserver.Faults) { f.DropKeyEcho = true },
}

func faultNames() []string {
	return []string{"wrong-total", "accept-terminal-mutations", "ignore-idempotency-body", "drop-key-echo"}
}

func parseFaults(names []string) (mockserver.Faults, error) {
	var faults mockserver.Faults
	for _, name := range names {
		set, ok := faultSetters[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return faults, fmt.Errorf("unknown fault %q (choices: %s)", name, strings.Join(faultNames(), ", "))
		}
		set(&faults)
	}
	return faults, nil
}

func serveMock(cmd *cobra.Command, args []string) error {
	faults, err := parseFaults(mockFaults)
	if err != nil {
		return conferr.Wrap(conferr.Usage, "invalid --fault", err)
	}
	if mockPort < 0 || mockPort > 65535 {
		return conferr.New(conferr.Usage, fmt.Sprintf("invalid --port %d", mockPort))
	}
	cmd.SilenceUsage = true

	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	addr := net.JoinHostPort(mockHost, strconv.Itoa(mockPort))
	srv := mockserver.New(mockserver.Options{
		APIKey:  mockAPIKey,
		Faults:  faults,
		BaseURL: "http://" + addr,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.UserSuccess(fmt.Sprintf("Mock merchant listening on http://%s", addr))
	if len(mockFaults) > 0 {
		log.UserDeviation(fmt.Sprintf("Faults enabled: %s", strings.Join(mockFaults, ", ")))
	}
	log.UserProgress("Press Ctrl+C to stop")

	if err := srv.ListenAndServe(ctx, addr); err != nil {
		return conferr.Wrap(conferr.InternalIO, "mock merchant stopped", err)
	}
	return nil
}
