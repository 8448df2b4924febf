// Package results aggregates streamed test outcomes into live counters and
// per-category statistics.
//
// An Aggregator is created per run and handed to whoever needs it. All
// mutations are serialized. A test identity reported twice is a correction:
// the old contribution is subtracted before the new one is added, so the
// counters always satisfy passed+failed+skipped+pending == total.
package results

import (
	"fmt"
	"slices"
	"sync"

	"github.com/Use-Tusk/checkout-conformance/internal/category"
)

type EventType int

const (
	EventStart EventType = iota
	EventUpdate
	EventComplete
)

func (t EventType) String() string {
	switch t {
	case EventStart:
		return "start"
	case EventUpdate:
		return "update"
	case EventComplete:
		return "complete"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is delivered to observers after every state change. Snapshot is a
// private copy owned by the receiver.
type Event struct {
	Type     EventType
	Name     string
	Snapshot Snapshot
}

// Observer receives events. It is called synchronously, in order, and may
// call Snapshot but must not record outcomes.
type Observer func(Event)

type Aggregator struct {
	// writeMu serializes mutations together with their notifications so
	// observers see events in the order state changed.
	writeMu sync.Mutex

	mu         sync.RWMutex
	results    []Outcome
	index      map[Key]int
	categories map[category.Category]*CategoryStats
	passed     int
	failed     int
	skipped    int
	pending    int
	total      int
	complete   bool

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObsID int
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		index:      make(map[Key]int),
		categories: make(map[category.Category]*CategoryStats),
		observers:  make(map[int]Observer),
	}
}

// Subscribe registers fn and returns an id for Unsubscribe.
func (a *Aggregator) Subscribe(fn Observer) int {
	a.obsMu.Lock()
	defer a.obsMu.Unlock()
	a.nextObsID++
	a.observers[a.nextObsID] = fn
	return a.nextObsID
}

func (a *Aggregator) Unsubscribe(id int) {
	a.obsMu.Lock()
	defer a.obsMu.Unlock()
	delete(a.observers, id)
}

// Reset clears all results and counters. Call it at the start of every run.
func (a *Aggregator) Reset() {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.mu.Lock()
	a.results = nil
	a.index = make(map[Key]int)
	a.categories = make(map[category.Category]*CategoryStats)
	a.passed, a.failed, a.skipped, a.pending, a.total = 0, 0, 0, 0, 0
	a.complete = false
	a.mu.Unlock()

	a.notify(Event{Type: EventUpdate, Snapshot: a.Snapshot()})
}

// RecordStart registers o as pending and emits a start event. A new
// identity increments the total; a known one is reset to pending.
func (a *Aggregator) RecordStart(o Outcome) {
	o.Status = StatusPending
	o.Error = ""
	o.Deviations = nil

	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.mu.Lock()
	a.apply(o)
	a.mu.Unlock()

	a.notify(Event{Type: EventStart, Name: o.Name, Snapshot: a.Snapshot()})
}

// RecordOutcome stores o. If an outcome with the same identity exists its
// contribution is replaced.
func (a *Aggregator) RecordOutcome(o Outcome) {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.mu.Lock()
	a.apply(o.clone())
	a.mu.Unlock()

	a.notify(Event{Type: EventUpdate, Name: o.Name, Snapshot: a.Snapshot()})
}

// Complete marks the run finished and emits the final snapshot.
func (a *Aggregator) Complete() {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.mu.Lock()
	a.complete = true
	a.mu.Unlock()

	a.notify(Event{Type: EventComplete, Snapshot: a.Snapshot()})
}

// Snapshot returns a deep copy of the current state.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := Snapshot{
		Results:    make([]Outcome, len(a.results)),
		Categories: make(map[category.Category]*CategoryStats, len(a.categories)),
		Passed:     a.passed,
		Failed:     a.failed,
		Skipped:    a.skipped,
		Pending:    a.pending,
		Total:      a.total,
		IsComplete: a.complete,
	}
	for i, r := range a.results {
		s.Results[i] = r.clone()
	}
	for c, cs := range a.categories {
		cp := *cs
		cp.Tests = make([]Outcome, len(cs.Tests))
		for i, t := range cs.Tests {
			cp.Tests[i] = t.clone()
		}
		s.Categories[c] = &cp
	}
	return s
}

// apply must be called with mu held for writing.
func (a *Aggregator) apply(o Outcome) {
	if o.Status != StatusPending && !o.Status.Terminal() {
		panic(fmt.Sprintf("results: outcome %q has unknown status %q", o.Name, o.Status))
	}
	o.Category = category.Normalize(o.Category)
	key := o.Key()

	if i, ok := a.index[key]; ok {
		old := a.results[i]
		a.contribute(old, -1)
		a.removeFromCategory(old)
		a.results[i] = o
	} else {
		a.index[key] = len(a.results)
		a.results = append(a.results, o)
		a.total++
	}

	a.contribute(o, 1)
	cs := a.bucket(o.Category)
	cs.Tests = append(cs.Tests, o)

	a.assertConsistent()
}

func (a *Aggregator) bucket(c category.Category) *CategoryStats {
	cs, ok := a.categories[c]
	if !ok {
		cs = &CategoryStats{}
		a.categories[c] = cs
	}
	return cs
}

func (a *Aggregator) contribute(o Outcome, delta int) {
	cs := a.bucket(o.Category)
	switch o.Status {
	case StatusPass:
		a.passed += delta
		cs.Passed += delta
	case StatusFail:
		a.failed += delta
		cs.Failed += delta
	case StatusSkip:
		a.skipped += delta
		cs.Skipped += delta
	case StatusPending:
		a.pending += delta
	default:
		panic(fmt.Sprintf("results: outcome %q has unknown status %q", o.Name, o.Status))
	}
	cs.Total += delta
}

func (a *Aggregator) removeFromCategory(o Outcome) {
	cs := a.bucket(o.Category)
	key := o.Key()
	cs.Tests = slices.DeleteFunc(cs.Tests, func(t Outcome) bool { return t.Key() == key })
	if cs.Total == 0 && len(cs.Tests) == 0 {
		delete(a.categories, o.Category)
	}
}

func (a *Aggregator) assertConsistent() {
	if a.passed < 0 || a.failed < 0 || a.skipped < 0 || a.pending < 0 {
		panic(fmt.Sprintf("results: negative count (passed=%d failed=%d skipped=%d pending=%d)",
			a.passed, a.failed, a.skipped, a.pending))
	}
	if a.passed+a.failed+a.skipped+a.pending != a.total || a.total != len(a.results) {
		panic(fmt.Sprintf("results: counts out of balance (passed=%d failed=%d skipped=%d pending=%d total=%d results=%d)",
			a.passed, a.failed, a.skipped, a.pending, a.total, len(a.results)))
	}
	for c, cs := range a.categories {
		if cs.Passed < 0 || cs.Failed < 0 || cs.Skipped < 0 || cs.Total != len(cs.Tests) {
			panic(fmt.Sprintf("results: category %q out of balance (passed=%d failed=%d skipped=%d total=%d tests=%d)",
				c, cs.Passed, cs.Failed, cs.Skipped, cs.Total, len(cs.Tests)))
		}
	}
}

func (a *Aggregator) notify(ev Event) {
	a.obsMu.Lock()
	ids := make([]int, 0, len(a.observers))
	for id := range a.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]Observer, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, a.observers[id])
	}
	a.obsMu.Unlock()

	for i, fn := range fns {
		if i > 0 {
			// each observer owns its snapshot
			ev.Snapshot = a.Snapshot()
		}
		fn(ev)
	}
}

// Events subscribes a channel of the given buffer size. Start and update
// events are dropped when the buffer is full, since every event carries the
// full state. A complete event evicts the oldest buffered event instead, so
// with a non-zero buffer it never waits for the reader; an unbuffered
// channel waits for a reader or cancel. cancel unsubscribes, closes the
// channel and must not be called from an observer.
func (a *Aggregator) Events(buffer int) (events <-chan Event, cancel func()) {
	ch := make(chan Event, buffer)
	done := make(chan struct{})

	id := a.Subscribe(func(ev Event) {
		if ev.Type == EventComplete {
			select {
			case ch <- ev:
				return
			default:
			}
			// sends are serialized by writeMu, so after evicting one event
			// the send below has room unless the channel is unbuffered
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			case <-done:
			}
			return
		}
		select {
		case ch <- ev:
		case <-done:
		default:
		}
	})

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			close(done)
			a.Unsubscribe(id)
			// wait out an in-flight notification before closing
			a.writeMu.Lock()
			close(ch)
			a.writeMu.Unlock()
		})
	}
	return ch, cancel
}
