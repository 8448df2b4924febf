package runner

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Use-Tusk/checkout-conformance/internal/client"
	"github.com/Use-Tusk/checkout-conformance/internal/conferr"
	"github.com/Use-Tusk/checkout-conformance/internal/mockserver"
	"github.com/Use-Tusk/checkout-conformance/internal/results"
	"github.com/Use-Tusk/checkout-conformance/internal/schema"
)

func newTestExecutor(t *testing.T, opts mockserver.Options) *Executor {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := httptest.NewServer(mockserver.New(opts).Handler())
	t.Cleanup(srv.Close)

	desc, err := schema.Default()
	require.NoError(t, err)

	c := client.New(srv.URL, client.WithAPIKey(opts.APIKey), client.WithHTTPClient(srv.Client()))
	return NewExecutor(c, schema.NewChecker(desc), results.NewAggregator())
}

func byName(outcomes []results.Outcome) map[string]results.Outcome {
	out := make(map[string]results.Outcome, len(outcomes))
	for _, o := range outcomes {
		out[o.Name] = o
	}
	return out
}

func rules(o results.Outcome) []string {
	var out []string
	for _, d := range o.Deviations {
		out = append(out, d.Rule)
	}
	return out
}

func TestCatalogueIdentitiesAreUnique(t *testing.T) {
	seen := map[results.Key]bool{}
	for _, sc := range Catalogue(Fixtures{}) {
		key := results.Key{File: sc.File, Name: sc.Name}
		assert.False(t, seen[key], "duplicate scenario %v", key)
		seen[key] = true
		assert.NotNil(t, sc.Run, sc.Name)
		assert.NotEmpty(t, sc.Operations, sc.Name)
	}
}

func TestCatalogueCoversEveryCategory(t *testing.T) {
	got := map[string]bool{}
	for _, sc := range Catalogue(Fixtures{}) {
		got[string(sc.Category())] = true
	}
	for _, want := range []string{
		"Session Creation & Address Handling",
		"Shipping Option Updates",
		"Order Completion",
		"Error Scenarios",
		"Idempotency",
		"Schema Validation",
		"Totals Validation",
		"Cancel Operations",
		"Get Operations",
		"Happy Path Flows",
	} {
		assert.True(t, got[want], "no scenario in %q", want)
	}
	assert.False(t, got["Other"])
}

func TestCatalogueAgainstConformingMockPasses(t *testing.T) {
	e := newTestExecutor(t, mockserver.Options{APIKey: "sk_test_123"})
	scenarios := Catalogue(DefaultFixtures())

	outcomes, err := e.Run(context.Background(), scenarios)
	require.NoError(t, err)
	require.Len(t, outcomes, len(scenarios))

	for _, o := range outcomes {
		assert.Equal(t, results.StatusPass, o.Status, "%s: %s %v", o.Name, o.Error, o.Deviations)
	}

	snap := e.Aggregator().Snapshot()
	assert.True(t, snap.IsComplete)
	assert.Equal(t, len(scenarios), snap.Total)
	assert.Equal(t, len(scenarios), snap.Passed)
	assert.Zero(t, snap.Pending)
	assert.True(t, snap.Success())
}

func TestUnauthorizedScenarioSkipsWithoutAPIKey(t *testing.T) {
	e := newTestExecutor(t, mockserver.Options{})
	scenarios, err := FilterScenarios(Catalogue(DefaultFixtures()), `name=^unauthorized`)
	require.NoError(t, err)
	require.Len(t, scenarios, 1)

	outcomes, err := e.Run(context.Background(), scenarios)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, results.StatusSkip, outcomes[0].Status)
	assert.Equal(t, "no API key configured", outcomes[0].Error)
}

func TestWrongTotalIsReportedWithExpectedAndActual(t *testing.T) {
	e := newTestExecutor(t, mockserver.Options{Faults: mockserver.Faults{WrongTotal: true}})
	scenarios, err := FilterScenarios(Catalogue(DefaultFixtures()), `name=^totals arithmetic`)
	require.NoError(t, err)

	outcomes, err := e.Run(context.Background(), scenarios)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)

	o := outcomes[0]
	assert.Equal(t, results.StatusFail, o.Status)
	require.Contains(t, rules(o), "total_formula")
	for _, d := range o.Deviations {
		if d.Rule == "total_formula" {
			// two of item_123 at 1100 plus 10% tax
			assert.Equal(t, int64(2420), d.Expected)
			assert.Equal(t, int64(2410), d.Actual)
			assert.Equal(t, "$.totals[7].amount", d.Path)
		}
	}
}

func TestAcceptedTerminalMutationsAreIllegalTransitions(t *testing.T) {
	e := newTestExecutor(t, mockserver.Options{Faults: mockserver.Faults{AcceptTerminalMutations: true}})
	scenarios, err := FilterScenarios(Catalogue(DefaultFixtures()), `name=^(terminal session rejects|cancel prevents)`)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)

	outcomes, err := e.Run(context.Background(), scenarios)
	require.NoError(t, err)

	for _, o := range outcomes {
		assert.Equal(t, results.StatusFail, o.Status, o.Name)
		assert.Contains(t, rules(o), "illegal_transition", o.Name)
	}
}

func TestIgnoredIdempotencyBodyIsAConflictViolation(t *testing.T) {
	e := newTestExecutor(t, mockserver.Options{Faults: mockserver.Faults{IgnoreIdempotencyBody: true}})
	scenarios, err := FilterScenarios(Catalogue(DefaultFixtures()), `category=^Idempotency$`)
	require.NoError(t, err)

	outcomes, err := e.Run(context.Background(), scenarios)
	require.NoError(t, err)
	got := byName(outcomes)

	conflict := got["idempotency key reused with different body"]
	assert.Equal(t, results.StatusFail, conflict.Status)
	require.NotEmpty(t, conflict.Deviations)
	assert.Equal(t, "idempotency_conflict", conflict.Deviations[0].Rule)
	assert.Contains(t, conflict.Deviations[0].Description, "silently succeeded")

	assert.Equal(t, results.StatusPass, got["idempotent create replay"].Status)
	assert.Equal(t, results.StatusPass, got["idempotent complete replay"].Status)
}

func TestDroppedKeyEchoFails(t *testing.T) {
	e := newTestExecutor(t, mockserver.Options{Faults: mockserver.Faults{DropKeyEcho: true}})
	scenarios, err := FilterScenarios(Catalogue(DefaultFixtures()), `name=^idempotency key echoed$`)
	require.NoError(t, err)

	outcomes, err := e.Run(context.Background(), scenarios)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, results.StatusFail, outcomes[0].Status)
	assert.Contains(t, rules(outcomes[0]), "idempotency_key_echo")
}

func TestUnreachableTargetIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	desc, err := schema.Default()
	require.NoError(t, err)
	agg := results.NewAggregator()
	e := NewExecutor(client.New(url, client.WithTimeout(time.Second)), schema.NewChecker(desc), agg)

	outcomes, err := e.Run(context.Background(), Catalogue(DefaultFixtures()))
	require.Error(t, err)
	assert.Nil(t, outcomes)
	assert.Equal(t, conferr.TargetUnreachable, conferr.ClassOf(err))
	assert.Equal(t, 4, conferr.ExitCode(err))
	assert.ErrorIs(t, err, client.ErrUnreachable)
	assert.Zero(t, agg.Snapshot().Total)
}

func TestFailFastSkipsRemainingScenarios(t *testing.T) {
	e := newTestExecutor(t, mockserver.Options{Faults: mockserver.Faults{WrongTotal: true}})
	e.SetConcurrency(1)
	e.SetFailFast(true)
	scenarios := Catalogue(DefaultFixtures())

	outcomes, err := e.Run(context.Background(), scenarios)
	require.NoError(t, err)
	require.Len(t, outcomes, len(scenarios))
	assert.Equal(t, results.StatusFail, outcomes[0].Status)

	skipped := 0
	for _, o := range outcomes {
		if o.Status == results.StatusSkip {
			skipped++
			assert.Contains(t, []string{errFailFast.Error(), "no API key configured"}, o.Error)
		}
	}
	assert.Greater(t, skipped, len(scenarios)/2)

	snap := e.Aggregator().Snapshot()
	assert.Equal(t, snap.Total, snap.Finished())
	assert.True(t, snap.IsComplete)
	assert.False(t, snap.Success())
}

func TestRunScenarioRecoversPanicsAndTimeouts(t *testing.T) {
	e := newTestExecutor(t, mockserver.Options{})
	e.SetTestTimeout(50 * time.Millisecond)

	scenarios := []Scenario{
		{Name: "panics", File: "custom", Run: func(ctx context.Context, t *T) {
			panic("boom")
		}},
		{Name: "hangs", File: "custom", Run: func(ctx context.Context, t *T) {
			<-ctx.Done()
			t.Do(ctx, client.Request{Method: http.MethodGet, Template: pathSessions})
		}},
		{Name: "fails then stops", File: "custom", Run: func(ctx context.Context, t *T) {
			t.Fatalf("first")
			t.Errorf("unreachable")
		}},
		{Name: "skips", File: "custom", Run: func(ctx context.Context, t *T) {
			t.SkipNow("not applicable")
		}},
		{Name: "passes", File: "custom", Run: func(ctx context.Context, t *T) {}},
	}

	outcomes, err := e.RunConcurrently(context.Background(), scenarios, 2)
	require.NoError(t, err)
	got := byName(outcomes)

	assert.Equal(t, results.StatusFail, got["panics"].Status)
	assert.Equal(t, "panic: boom", got["panics"].Error)

	assert.Equal(t, results.StatusFail, got["hangs"].Status)
	assert.Contains(t, got["hangs"].Error, "timed out after 50ms")

	assert.Equal(t, results.StatusFail, got["fails then stops"].Status)
	assert.Len(t, got["fails then stops"].Deviations, 1)

	assert.Equal(t, results.StatusSkip, got["skips"].Status)
	assert.Equal(t, "not applicable", got["skips"].Error)

	assert.Equal(t, results.StatusPass, got["passes"].Status)
	assert.Equal(t, "Other", string(got["passes"].Category))
}

func TestCanceledRunLeavesConsistentSnapshot(t *testing.T) {
	e := newTestExecutor(t, mockserver.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scenarios := []Scenario{
		{Name: "cancels the run", File: "custom", Run: func(_ context.Context, t *T) { cancel() }},
	}
	for i := range 5 {
		scenarios = append(scenarios, Scenario{Name: fmt.Sprintf("waits %d", i), File: "custom", Run: func(ctx context.Context, t *T) {
			t.Do(ctx, client.Request{Method: http.MethodGet, Template: pathSession, Params: map[string]string{"checkout_session_id": "x"}})
		}})
	}

	outcomes, err := e.RunConcurrently(ctx, scenarios, 1)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, outcomes, len(scenarios))

	snap := e.Aggregator().Snapshot()
	assert.Equal(t, snap.Total, snap.Finished())
	assert.Equal(t, 1, snap.Passed)
	assert.Equal(t, len(scenarios)-1, snap.Skipped)
}

func TestOutcomesAreRecordedBySingleWriter(t *testing.T) {
	e := newTestExecutor(t, mockserver.Options{})
	events, stop := e.Aggregator().Events(256)
	defer stop()

	var mu sync.Mutex
	var completed []string
	e.SetOnTestCompleted(func(o results.Outcome, sc Scenario) {
		mu.Lock()
		completed = append(completed, sc.Name)
		mu.Unlock()
	})

	scenarios, err := FilterScenarios(Catalogue(DefaultFixtures()), `file=^(sessions|cancel)$`)
	require.NoError(t, err)
	_, err = e.Run(context.Background(), scenarios)
	require.NoError(t, err)

	starts := 0
	for ev := range events {
		if ev.Type == results.EventStart {
			starts++
		}
		if ev.Type == results.EventComplete {
			assert.Equal(t, len(scenarios), ev.Snapshot.Passed)
			break
		}
	}
	assert.Equal(t, len(scenarios), starts)
	assert.Len(t, completed, len(scenarios))
}
