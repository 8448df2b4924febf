package results

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Use-Tusk/checkout-conformance/internal/category"
)

func TestRecordOutcomeCorrection(t *testing.T) {
	a := NewAggregator()
	a.Reset()

	a.RecordOutcome(Outcome{Name: "a", Status: StatusPass})
	a.RecordOutcome(Outcome{Name: "a", Status: StatusFail})

	s := a.Snapshot()
	assert.Equal(t, 1, s.Total)
	assert.Equal(t, 0, s.Passed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 0, s.Skipped)
	require.Len(t, s.Results, 1)
	assert.Equal(t, StatusFail, s.Results[0].Status)

	other := s.Categories[category.Other]
	require.NotNil(t, other)
	assert.Equal(t, 1, other.Total)
	assert.Equal(t, 0, other.Passed)
	assert.Equal(t, 1, other.Failed)
	assert.Len(t, other.Tests, 1)
}

func TestCorrectionChangesCountsByExactDelta(t *testing.T) {
	statuses := []Status{StatusPass, StatusFail, StatusSkip, StatusPending}

	for _, from := range statuses {
		for _, to := range statuses {
			t.Run(fmt.Sprintf("%s to %s", from, to), func(t *testing.T) {
				a := NewAggregator()
				a.RecordOutcome(Outcome{Name: "keep", Status: StatusPass})
				a.RecordOutcome(Outcome{Name: "x", Status: from})
				before := a.Snapshot()

				a.RecordOutcome(Outcome{Name: "x", Status: to})
				after := a.Snapshot()

				delta := func(s Status) int {
					d := 0
					if s == to {
						d++
					}
					if s == from {
						d--
					}
					return d
				}
				assert.Equal(t, before.Total, after.Total)
				assert.Equal(t, before.Passed+delta(StatusPass), after.Passed)
				assert.Equal(t, before.Failed+delta(StatusFail), after.Failed)
				assert.Equal(t, before.Skipped+delta(StatusSkip), after.Skipped)
				assert.Equal(t, before.Pending+delta(StatusPending), after.Pending)
				assert.Equal(t, after.Total-after.Pending, after.Finished())
			})
		}
	}
}

func TestFileScopedIdentity(t *testing.T) {
	a := NewAggregator()
	a.RecordOutcome(Outcome{Name: "create", File: "session.go", Status: StatusPass})
	a.RecordOutcome(Outcome{Name: "create", File: "idempotency.go", Status: StatusFail})
	a.RecordOutcome(Outcome{Name: "create", File: "session.go", Status: StatusSkip})

	s := a.Snapshot()
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 0, s.Passed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Skipped)
}

func TestCategoryChangeMovesTest(t *testing.T) {
	a := NewAggregator()
	a.RecordOutcome(Outcome{Name: "t", Category: category.Idempotency, Status: StatusPass})
	a.RecordOutcome(Outcome{Name: "t", Category: category.TotalsValidation, Status: StatusPass})

	s := a.Snapshot()
	assert.NotContains(t, s.Categories, category.Idempotency)
	require.Contains(t, s.Categories, category.TotalsValidation)
	assert.Equal(t, 1, s.Categories[category.TotalsValidation].Passed)
	assert.Equal(t, 1, s.Total)
}

func TestUnknownCategoryFallsIntoOther(t *testing.T) {
	a := NewAggregator()
	a.RecordOutcome(Outcome{Name: "t", Category: "Made Up", Status: StatusPass})

	s := a.Snapshot()
	require.Contains(t, s.Categories, category.Other)
	assert.Equal(t, category.Other, s.Results[0].Category)
}

func TestRecordStartCountsOnce(t *testing.T) {
	a := NewAggregator()
	a.RecordStart(Outcome{Name: "a", Category: category.HappyPath})
	a.RecordStart(Outcome{Name: "b", Category: category.HappyPath})

	s := a.Snapshot()
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 2, s.Pending)
	assert.Equal(t, 0, s.Finished())
	assert.Equal(t, 2, s.Categories[category.HappyPath].Total)

	a.RecordOutcome(Outcome{Name: "a", Category: category.HappyPath, Status: StatusPass})
	s = a.Snapshot()
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Pending)
	assert.Equal(t, 1, s.Passed)
	assert.Equal(t, 1, s.Categories[category.HappyPath].Passed)
}

func TestResetClearsEverything(t *testing.T) {
	a := NewAggregator()
	a.RecordOutcome(Outcome{Name: "a", Status: StatusPass})
	a.Complete()
	a.Reset()

	s := a.Snapshot()
	assert.Zero(t, s.Total)
	assert.Empty(t, s.Results)
	assert.Empty(t, s.Categories)
	assert.False(t, s.IsComplete)
}

func TestSnapshotIsACopy(t *testing.T) {
	a := NewAggregator()
	a.RecordOutcome(Outcome{Name: "a", Status: StatusFail, Deviations: []Deviation{{Rule: "total_formula"}}})

	s := a.Snapshot()
	s.Results[0].Status = StatusPass
	s.Results[0].Deviations[0].Rule = "changed"
	s.Categories[category.Other].Failed = 99
	s.Categories[category.Other].Tests[0].Name = "changed"

	fresh := a.Snapshot()
	assert.Equal(t, StatusFail, fresh.Results[0].Status)
	assert.Equal(t, "total_formula", fresh.Results[0].Deviations[0].Rule)
	assert.Equal(t, 1, fresh.Categories[category.Other].Failed)
	assert.Equal(t, "a", fresh.Categories[category.Other].Tests[0].Name)
}

func TestSuccessRequiresNothingPending(t *testing.T) {
	a := NewAggregator()
	a.RecordOutcome(Outcome{Name: "a", Status: StatusPass})
	a.RecordStart(Outcome{Name: "b"})
	a.Complete()

	s := a.Snapshot()
	assert.Zero(t, s.Failed)
	assert.Equal(t, 1, s.Pending)
	assert.False(t, s.Success())

	a.RecordOutcome(Outcome{Name: "b", Status: StatusSkip})
	assert.True(t, a.Snapshot().Success())
}

func TestSnapshotCopiesDeviationValues(t *testing.T) {
	a := NewAggregator()
	expected := []any{"item_123", map[string]any{"quantity": 1}}
	a.RecordOutcome(Outcome{Name: "a", Status: StatusFail, Deviations: []Deviation{{
		Rule:     "assertion",
		Expected: expected,
		Actual:   []string{"item_456"},
	}}})
	expected[0] = "mutated"

	s := a.Snapshot()
	s.Results[0].Deviations[0].Actual.([]string)[0] = "changed"
	s.Results[0].Deviations[0].Expected.([]any)[1].(map[string]any)["quantity"] = 9

	fresh := a.Snapshot().Results[0].Deviations[0]
	assert.Equal(t, []any{"item_123", map[string]any{"quantity": 1}}, fresh.Expected)
	assert.Equal(t, []string{"item_456"}, fresh.Actual)
}

func TestRecordOutcomeCopiesInput(t *testing.T) {
	a := NewAggregator()
	devs := []Deviation{{Rule: "r"}}
	a.RecordOutcome(Outcome{Name: "a", Status: StatusFail, Deviations: devs})
	devs[0].Rule = "mutated"

	assert.Equal(t, "r", a.Snapshot().Results[0].Deviations[0].Rule)
}

func TestUnknownStatusPanics(t *testing.T) {
	a := NewAggregator()
	assert.Panics(t, func() {
		a.RecordOutcome(Outcome{Name: "a", Status: "exploded"})
	})
}

func TestObserversReceiveEventsInOrder(t *testing.T) {
	a := NewAggregator()

	var got []EventType
	var lastComplete Snapshot
	id := a.Subscribe(func(ev Event) {
		got = append(got, ev.Type)
		if ev.Type == EventComplete {
			lastComplete = ev.Snapshot
		}
		// observers may read state
		_ = a.Snapshot()
	})

	a.Reset()
	a.RecordStart(Outcome{Name: "a"})
	a.RecordOutcome(Outcome{Name: "a", Status: StatusPass})
	a.Complete()

	assert.Equal(t, []EventType{EventUpdate, EventStart, EventUpdate, EventComplete}, got)
	assert.True(t, lastComplete.IsComplete)
	assert.Equal(t, 1, lastComplete.Passed)

	a.Unsubscribe(id)
	a.RecordOutcome(Outcome{Name: "b", Status: StatusPass})
	assert.Len(t, got, 4)
}

func TestObserversGetIndependentSnapshots(t *testing.T) {
	a := NewAggregator()
	var first, second Snapshot
	a.Subscribe(func(ev Event) {
		first = ev.Snapshot
		first.Results[0].Name = "mutated"
	})
	a.Subscribe(func(ev Event) { second = ev.Snapshot })

	a.RecordOutcome(Outcome{Name: "a", Status: StatusPass})
	assert.Equal(t, "mutated", first.Results[0].Name)
	assert.Equal(t, "a", second.Results[0].Name)
}

func TestConcurrentRecordingStaysConsistent(t *testing.T) {
	a := NewAggregator()
	a.Reset()

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWorker {
				name := fmt.Sprintf("t%d", i)
				file := fmt.Sprintf("w%d", w)
				a.RecordStart(Outcome{Name: name, File: file})
				a.RecordOutcome(Outcome{Name: name, File: file, Status: StatusFail})
				a.RecordOutcome(Outcome{Name: name, File: file, Status: StatusPass})
				s := a.Snapshot()
				assert.Equal(t, s.Total, s.Finished()+s.Pending)
			}
		}()
	}
	wg.Wait()
	a.Complete()

	s := a.Snapshot()
	assert.Equal(t, workers*perWorker, s.Total)
	assert.Equal(t, workers*perWorker, s.Passed)
	assert.Zero(t, s.Failed)
	assert.Zero(t, s.Pending)
	assert.True(t, s.IsComplete)
	assert.True(t, s.Success())
}

func TestEventsChannelDeliversComplete(t *testing.T) {
	a := NewAggregator()
	events, cancel := a.Events(1)
	defer cancel()

	done := make(chan Snapshot)
	go func() {
		for ev := range events {
			if ev.Type == EventComplete {
				done <- ev.Snapshot
				return
			}
		}
	}()

	for i := range 20 {
		a.RecordOutcome(Outcome{Name: fmt.Sprintf("t%d", i), Status: StatusPass})
	}
	a.Complete()

	select {
	case s := <-done:
		assert.Equal(t, 20, s.Passed)
		assert.True(t, s.IsComplete)
	case <-time.After(5 * time.Second):
		t.Fatal("complete event not delivered")
	}
}

func TestEventsCompleteDoesNotWaitOnFullBuffer(t *testing.T) {
	a := NewAggregator()
	events, cancel := a.Events(2)
	defer cancel()

	for i := range 3 {
		a.RecordOutcome(Outcome{Name: fmt.Sprintf("t%d", i), Status: StatusPass})
	}

	finished := make(chan struct{})
	go func() {
		a.Complete()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("Complete blocked on a full, unread buffer")
	}

	var got []EventType
	for range 2 {
		got = append(got, (<-events).Type)
	}
	assert.Equal(t, []EventType{EventUpdate, EventComplete}, got)
}

func TestEventsCancelUnblocksAndCloses(t *testing.T) {
	a := NewAggregator()
	events, cancel := a.Events(0)

	finished := make(chan struct{})
	go func() {
		// nobody reads, so the complete event blocks until cancel
		a.Complete()
		close(finished)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	cancel()

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("Complete did not return after cancel")
	}
	for range events {
	}
}

func TestCategoryOrder(t *testing.T) {
	a := NewAggregator()
	a.RecordOutcome(Outcome{Name: "x", Category: category.Other, Status: StatusPass})
	a.RecordOutcome(Outcome{Name: "y", Category: category.SessionCreation, Status: StatusPass})
	a.RecordOutcome(Outcome{Name: "z", Category: category.Idempotency, Status: StatusPass})

	order := a.Snapshot().CategoryOrder()
	require.Len(t, order, 3)
	assert.Equal(t, category.Other, order[2])
}
