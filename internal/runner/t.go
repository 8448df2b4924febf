package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/Use-Tusk/checkout-conformance/internal/client"
	"github.com/Use-Tusk/checkout-conformance/internal/invariant"
	"github.com/Use-Tusk/checkout-conformance/internal/log"
	"github.com/Use-Tusk/checkout-conformance/internal/results"
	"github.com/Use-Tusk/checkout-conformance/internal/schema"
)

// stop is panicked by FailNow and SkipNow and recovered by the executor.
type stop struct{}

// T is handed to a running scenario. It sends requests, checks every
// exchange against the interface description and collects deviations.
type T struct {
	name    string
	client  *client.Client
	checker *schema.Checker

	mu         sync.Mutex
	deviations []results.Deviation
	failed     bool
	skipped    bool
	skipReason string
	fatalErr   error
}

func newT(name string, c *client.Client, checker *schema.Checker) *T {
	return &T{name: name, client: c, checker: checker}
}

func (t *T) Name() string {
	return t.name
}

func (t *T) Client() *client.Client {
	return t.client
}

// Do sends req and checks the exchange against the interface description.
// Transport errors end the scenario.
func (t *T) Do(ctx context.Context, req client.Request) *client.Response {
	resp, err := t.client.Do(ctx, req)
	if err != nil {
		t.mu.Lock()
		if t.fatalErr == nil {
			t.fatalErr = err
		}
		t.mu.Unlock()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			t.SkipNow(fmt.Sprintf("%s %s: %v", req.Method, req.Template, err))
		}
		t.Fatalf("%s %s: %v", req.Method, req.Template, err)
	}
	log.TestLog(t.name, fmt.Sprintf("%s %s -> %d (%dms)", resp.Exchange.Method, resp.Exchange.Path, resp.Exchange.Status, resp.Duration.Milliseconds()))
	t.Conform(resp)
	return resp
}

// Conform records a deviation if resp does not match the interface
// description.
func (t *T) Conform(resp *client.Response) bool {
	d := t.checker.Check(resp.Exchange)
	if d == nil {
		return true
	}
	t.record(deviationFromDiagnostic(d))
	return false
}

// ExpectStatus records a deviation unless resp has one of the wanted
// status codes.
func (t *T) ExpectStatus(resp *client.Response, want ...int) bool {
	for _, w := range want {
		if resp.Exchange.Status == w {
			return true
		}
	}
	expected := make([]string, len(want))
	for i, w := range want {
		expected[i] = strconv.Itoa(w)
	}
	t.record(results.Deviation{
		Rule:        "status_code",
		Path:        resp.Exchange.Method + " " + resp.Exchange.Path,
		Expected:    strings.Join(expected, " or "),
		Actual:      resp.Exchange.Status,
		Description: fmt.Sprintf("unexpected status %d", resp.Exchange.Status),
		Detail:      truncate(string(resp.Exchange.Body), 2000),
	})
	return false
}

// Session decodes a session response, ending the scenario if it cannot.
func (t *T) Session(resp *client.Response) *invariant.Session {
	if resp.Exchange.Status < 200 || resp.Exchange.Status >= 300 {
		t.Fatalf("%s %s returned %d, cannot continue without a session", resp.Exchange.Method, resp.Exchange.Path, resp.Exchange.Status)
	}
	s, err := invariant.ParseSession(resp.Exchange.Body)
	if err != nil {
		t.Fatalf("%s %s: %v", resp.Exchange.Method, resp.Exchange.Path, err)
	}
	return s
}

// Check records every violation and reports whether there were none.
func (t *T) Check(vs invariant.Violations) bool {
	for _, v := range vs {
		t.Violation(v)
	}
	return len(vs) == 0
}

// Violation records a single invariant violation. nil is ignored.
func (t *T) Violation(v *invariant.Violation) {
	if v == nil {
		return
	}
	t.record(results.Deviation{
		Rule:        string(v.Rule),
		Path:        v.Path,
		Expected:    v.Expected,
		Actual:      v.Actual,
		Description: v.Message,
	})
}

// Expect records a deviation at path unless actual equals expected.
func (t *T) Expect(path string, expected, actual any, format string, args ...any) bool {
	if reflect.DeepEqual(expected, actual) {
		return true
	}
	t.record(results.Deviation{
		Rule:        "assertion",
		Path:        path,
		Expected:    expected,
		Actual:      actual,
		Description: fmt.Sprintf(format, args...),
	})
	return false
}

// Errorf records a plain failure and continues.
func (t *T) Errorf(format string, args ...any) {
	t.record(results.Deviation{Rule: "assertion", Description: fmt.Sprintf(format, args...)})
}

// Fatalf records a plain failure and ends the scenario.
func (t *T) Fatalf(format string, args ...any) {
	t.Errorf(format, args...)
	t.FailNow()
}

func (t *T) FailNow() {
	panic(stop{})
}

// SkipNow marks the scenario skipped and ends it.
func (t *T) SkipNow(reason string) {
	t.mu.Lock()
	t.skipped = true
	t.skipReason = reason
	t.mu.Unlock()
	panic(stop{})
}

func (t *T) Logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	slog.Debug(msg, "test", t.name)
	log.TestLog(t.name, msg)
}

func (t *T) Failed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

func (t *T) record(d results.Deviation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed = true
	t.deviations = append(t.deviations, d)
}

func (t *T) outcome() (results.Status, string, []results.Deviation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.skipped && !t.failed:
		return results.StatusSkip, t.skipReason, nil
	case t.failed:
		msg := t.deviations[0].Description
		if len(t.deviations) > 1 {
			msg = fmt.Sprintf("%s (and %d more)", msg, len(t.deviations)-1)
		}
		return results.StatusFail, msg, append([]results.Deviation(nil), t.deviations...)
	default:
		return results.StatusPass, "", nil
	}
}

func deviationFromDiagnostic(d *schema.Diagnostic) results.Deviation {
	dev := results.Deviation{
		Rule:        string(d.Kind),
		Path:        d.Method + " " + d.Path,
		Description: firstLine(d.Error()),
		Detail:      d.Error(),
	}
	switch d.Kind {
	case schema.PathNotFound:
		dev.Expected = d.Suggestion
		dev.Actual = d.Path
	case schema.MethodNotDefined:
		dev.Expected = strings.ToUpper(strings.Join(d.DefinedMethods, ", "))
		dev.Actual = d.Method
	case schema.StatusNotDefined:
		dev.Expected = d.DefinedStatusList()
		dev.Actual = d.Status
	case schema.BodySchemaViolation:
		dev.Expected = string(d.SchemaJSON())
		dev.Actual = d.Body
	}
	return dev
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// isSuccess reports whether status is 2xx.
func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}
