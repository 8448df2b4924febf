package cmd

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Use-Tusk/checkout-conformance/internal/conferr"
	"github.com/Use-Tusk/checkout-conformance/internal/config"
	"github.com/Use-Tusk/checkout-conformance/internal/schema"
	"github.com/Use-Tusk/checkout-conformance/internal/tui/styles"
	"github.com/Use-Tusk/checkout-conformance/internal/utils"
)

//go:embed short_docs/check.md
var checkContent string

var checkCmd = &cobra.Command{
	Use:   "check <exchange-file>...",
	Short: "Validate recorded exchanges against the interface description",
	Long:  utils.RenderMarkdown(checkContent),
	Args:  usageArgs(cobra.MinimumNArgs(1)),
	RunE:  checkExchanges,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&specPath, "spec", "", "Path to an OpenAPI description (default is spec.path, then the bundled description)")
}

// recordedExchange is the on-disk form of an exchange. Body is any JSON
// value; a string is taken as the raw body.
type recordedExchange struct {
	Method  string            `json:"method" yaml:"method"`
	Path    string            `json:"path" yaml:"path"`
	Status  int               `json:"status" yaml:"status"`
	Headers map[string]string `json:"headers" yaml:"headers"`
	Body    any               `json:"body" yaml:"body"`
}

func (r recordedExchange) toExchange() (schema.Exchange, error) {
	ex := schema.Exchange{
		Method:  strings.ToUpper(r.Method),
		Path:    r.Path,
		Status:  r.Status,
		Headers: http.Header{},
	}
	for k, v := range r.Headers {
		ex.Headers.Set(k, v)
	}
	if ex.Headers.Get("Content-Type") == "" {
		ex.Headers.Set("Content-Type", "application/json")
	}

	switch b := r.Body.(type) {
	case nil:
	case string:
		ex.Body = []byte(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return ex, fmt.Errorf("failed to encode body: %w", err)
		}
		ex.Body = data
	}
	return ex, nil
}

func checkExchanges(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	path := specPath
	if path == "" {
		if err := config.Load(cfgFile); err == nil {
			if cfg, err := config.Get(); err == nil {
				path = cfg.Spec.Path
			}
		}
	}
	desc, err := loadDescription(path)
	if err != nil {
		return err
	}
	checker := schema.NewChecker(desc)

	out := cmd.OutOrStdout()
	failed, total := 0, 0
	for _, file := range args {
		exchanges, err := readExchanges(file)
		if err != nil {
			return conferr.Wrap(conferr.Usage, fmt.Sprintf("cannot read %s", file), err)
		}
		for i, r := range exchanges {
			total++
			label := fmt.Sprintf("%s %s %d", strings.ToUpper(r.Method), r.Path, r.Status)
			if len(exchanges) > 1 {
				label = fmt.Sprintf("%s[%d] %s", filepath.Base(file), i, label)
			}

			ex, err := r.toExchange()
			if err != nil {
				return conferr.Wrap(conferr.Usage, fmt.Sprintf("invalid exchange in %s", file), err)
			}
			if diag := checker.Check(ex); diag != nil {
				failed++
				fmt.Fprintf(out, "%s %s\n  %s\n", styles.ErrorStyle.Render("✗"), label, strings.ReplaceAll(diag.Error(), "\n", "\n  "))
				continue
			}
			fmt.Fprintf(out, "%s %s\n", styles.SuccessStyle.Render("✓"), label)
		}
	}

	if failed > 0 {
		return conferr.New(conferr.TestsFailed, fmt.Sprintf("%d of %d exchanges do not conform", failed, total))
	}
	return nil
}

// readExchanges reads one exchange or a list of them from a JSON or YAML
// file.
func readExchanges(path string) ([]recordedExchange, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, err
	}

	unmarshal := json.Unmarshal
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
		unmarshal = yaml.Unmarshal
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "- ") {
		var list []recordedExchange
		if err := unmarshal(data, &list); err != nil {
			return nil, err
		}
		return list, nil
	}

	var one recordedExchange
	if err := unmarshal(data, &one); err != nil {
		return nil, err
	}
	return []recordedExchange{one}, nil
}
