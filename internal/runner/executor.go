package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Use-Tusk/checkout-conformance/internal/client"
	"github.com/Use-Tusk/checkout-conformance/internal/conferr"
	"github.com/Use-Tusk/checkout-conformance/internal/results"
	"github.com/Use-Tusk/checkout-conformance/internal/schema"
)

var (
	errFailFast    = errors.New("skipped after an earlier failure (--fail-fast)")
	errUnreachable = errors.New("skipped because the target became unreachable")
)

type Executor struct {
	client      *client.Client
	checker     *schema.Checker
	agg         *results.Aggregator
	validate    *validator.Validate
	parallel    int
	testTimeout time.Duration
	failFast    bool

	onTestCompleted func(results.Outcome, Scenario)
}

func NewExecutor(c *client.Client, checker *schema.Checker, agg *results.Aggregator) *Executor {
	return &Executor{
		client:      c,
		checker:     checker,
		agg:         agg,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		parallel:    4,
		testTimeout: 30 * time.Second,
	}
}

// Aggregator returns the aggregator outcomes are recorded into.
func (e *Executor) Aggregator() *results.Aggregator {
	return e.agg
}

// GetConcurrency returns the current concurrency setting
func (e *Executor) GetConcurrency() int {
	return e.parallel
}

// SetConcurrency sets the maximum number of concurrent scenarios
func (e *Executor) SetConcurrency(concurrency int) {
	if concurrency > 0 {
		e.parallel = concurrency
	}
}

func (e *Executor) SetTestTimeout(timeout time.Duration) {
	if timeout > 0 {
		e.testTimeout = timeout
	}
}

// SetFailFast makes the first failure skip every scenario not yet finished.
func (e *Executor) SetFailFast(failFast bool) {
	e.failFast = failFast
}

func (e *Executor) SetOnTestCompleted(callback func(results.Outcome, Scenario)) {
	e.onTestCompleted = callback
}

// Run checks that the target is reachable, then runs scenarios and
// records every outcome. The aggregator is reset first and completed last,
// also when the run is canceled.
func (e *Executor) Run(ctx context.Context, scenarios []Scenario) ([]results.Outcome, error) {
	if err := e.client.Probe(ctx); err != nil {
		if errors.Is(err, client.ErrUnreachable) {
			return nil, conferr.Wrap(conferr.TargetUnreachable, fmt.Sprintf("target %s is unreachable", e.client.BaseURL()), err)
		}
		return nil, err
	}

	e.agg.Reset()
	outcomes, err := e.RunConcurrently(ctx, scenarios, e.parallel)
	e.agg.Complete()
	return outcomes, err
}

type message struct {
	outcome  results.Outcome
	scenario Scenario
	started  bool
	fatal    error
}

// RunConcurrently executes scenarios in parallel with the specified
// concurrency limit. Workers only report; the calling goroutine is the
// single writer into the aggregator.
func (e *Executor) RunConcurrently(ctx context.Context, scenarios []Scenario, maxConcurrency int) ([]results.Outcome, error) {
	if len(scenarios) == 0 {
		return []results.Outcome{}, nil
	}
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	scenarioChan := make(chan Scenario, len(scenarios))
	// Room for a start and a finish message per scenario, so workers never
	// block on a writer that has stopped reading.
	msgChan := make(chan message, 2*len(scenarios))

	for workerID := range maxConcurrency {
		go func(workerID int) {
			for sc := range scenarioChan {
				if runCtx.Err() != nil {
					msgChan <- message{outcome: skipped(sc, context.Cause(runCtx)), scenario: sc}
					continue
				}
				slog.Debug("Worker starting scenario", "workerID", workerID, "scenario", sc.Name)
				msgChan <- message{outcome: pending(sc), scenario: sc, started: true}

				o, fatal := e.RunScenario(runCtx, sc)
				slog.Debug("Worker scenario completed", "workerID", workerID, "scenario", sc.Name, "status", o.Status)
				msgChan <- message{outcome: o, scenario: sc, fatal: fatal}
			}
		}(workerID)
	}

	for _, sc := range scenarios {
		scenarioChan <- sc
	}
	close(scenarioChan)

	var unreachable error
	outcomes := make([]results.Outcome, 0, len(scenarios))
	for len(outcomes) < len(scenarios) {
		m := <-msgChan
		if err := e.validate.Struct(m.outcome); err != nil {
			cancel(err)
			return outcomes, fmt.Errorf("invalid outcome for %q: %w", m.scenario.Name, err)
		}
		if m.started {
			e.agg.RecordStart(m.outcome)
			continue
		}

		e.agg.RecordOutcome(m.outcome)
		outcomes = append(outcomes, m.outcome)
		if e.onTestCompleted != nil {
			e.onTestCompleted(m.outcome, m.scenario)
		}

		switch {
		case errors.Is(m.fatal, client.ErrUnreachable) && unreachable == nil:
			unreachable = m.fatal
			slog.Error("Target became unreachable, skipping remaining scenarios", "error", m.fatal)
			cancel(errUnreachable)
		case e.failFast && m.outcome.Status == results.StatusFail:
			cancel(errFailFast)
		}
	}

	slog.Debug("Completed concurrent scenario execution",
		"totalScenarios", len(scenarios),
		"maxConcurrency", maxConcurrency,
		"passed", countStatus(outcomes, results.StatusPass),
		"failed", countStatus(outcomes, results.StatusFail),
		"skipped", countStatus(outcomes, results.StatusSkip))

	if unreachable != nil {
		return outcomes, conferr.Wrap(conferr.TargetUnreachable, fmt.Sprintf("target %s became unreachable", e.client.BaseURL()), unreachable)
	}
	if err := ctx.Err(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

// RunScenario runs one scenario to completion and returns its outcome,
// plus the transport error that ended it, if any.
func (e *Executor) RunScenario(ctx context.Context, sc Scenario) (results.Outcome, error) {
	start := time.Now()
	t := newT(sc.Name, e.client, e.checker)

	sctx, cancel := context.WithTimeout(ctx, e.testTimeout)
	defer cancel()

	func() {
		defer func() {
			if r := recover(); r != nil {
				if _, ok := r.(stop); !ok {
					slog.Error("Scenario panicked", "scenario", sc.Name, "panic", r)
					t.Errorf("panic: %v", r)
				}
			}
		}()
		sc.Run(sctx, t)
	}()

	if errors.Is(sctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		t.Errorf("scenario timed out after %s", e.testTimeout)
	}

	status, msg, devs := t.outcome()
	if status == results.StatusSkip && ctx.Err() != nil {
		msg = context.Cause(ctx).Error()
	}
	o := results.Outcome{
		Name:       sc.Name,
		File:       sc.File,
		Category:   sc.Category(),
		Status:     status,
		Duration:   time.Since(start),
		Error:      msg,
		Deviations: devs,
	}

	t.mu.Lock()
	fatal := t.fatalErr
	t.mu.Unlock()
	return o, fatal
}

func pending(sc Scenario) results.Outcome {
	return results.Outcome{Name: sc.Name, File: sc.File, Category: sc.Category(), Status: results.StatusPending}
}

func skipped(sc Scenario, reason error) results.Outcome {
	o := pending(sc)
	o.Status = results.StatusSkip
	if reason != nil {
		o.Error = reason.Error()
	}
	return o
}

func countStatus(outcomes []results.Outcome, s results.Status) int {
	n := 0
	for _, o := range outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}
