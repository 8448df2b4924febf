package results

import (
	"time"

	"github.com/mitchellh/copystructure"

	"github.com/Use-Tusk/checkout-conformance/internal/category"
)

// Status is the state of a single test.
type Status string

const (
	StatusPending Status = "pending"
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusSkip    Status = "skip"
)

// Terminal reports whether s is a finished state.
func (s Status) Terminal() bool {
	return s == StatusPass || s == StatusFail || s == StatusSkip
}

// Deviation is one broken expectation inside a failed test.
type Deviation struct {
	Rule        string `json:"rule" yaml:"rule"`
	Path        string `json:"path,omitempty" yaml:"path,omitempty"`
	Expected    any    `json:"expected,omitempty" yaml:"expected,omitempty"`
	Actual      any    `json:"actual,omitempty" yaml:"actual,omitempty"`
	Description string `json:"description" yaml:"description"`
	// Detail holds multi-line context such as a schema diagnostic.
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Outcome is the result of one test as reported by the runner.
type Outcome struct {
	Name       string            `json:"name" yaml:"name" validate:"required"`
	File       string            `json:"file,omitempty" yaml:"file,omitempty"`
	Category   category.Category `json:"category" yaml:"category"`
	Status     Status            `json:"status" yaml:"status" validate:"required,oneof=pending pass fail skip"`
	Duration   time.Duration     `json:"-" yaml:"-" validate:"gte=0"`
	Error      string            `json:"error,omitempty" yaml:"error,omitempty"`
	Deviations []Deviation       `json:"deviations,omitempty" yaml:"deviations,omitempty"`
}

// Key identifies a test across re-emissions.
type Key struct {
	File string
	Name string
}

// Key returns the identity of o.
func (o Outcome) Key() Key {
	return Key{File: o.File, Name: o.Name}
}

func (o Outcome) clone() Outcome {
	if o.Deviations != nil {
		devs := make([]Deviation, len(o.Deviations))
		for i, d := range o.Deviations {
			d.Expected = copyValue(d.Expected)
			d.Actual = copyValue(d.Actual)
			devs[i] = d
		}
		o.Deviations = devs
	}
	return o
}

// copyValue deep-copies the slices, maps and pointers inside v. A value
// copystructure cannot walk is shared as is.
func copyValue(v any) any {
	if v == nil {
		return nil
	}
	c, err := copystructure.Copy(v)
	if err != nil {
		return v
	}
	return c
}

// CategoryStats are the counters and tests of one category.
type CategoryStats struct {
	Passed  int       `json:"passed"`
	Failed  int       `json:"failed"`
	Skipped int       `json:"skipped"`
	Total   int       `json:"total"`
	Tests   []Outcome `json:"tests"`
}

// Snapshot is a point-in-time copy of the aggregate state. It shares no
// memory with the Aggregator.
type Snapshot struct {
	Results    []Outcome                            `json:"results"`
	Categories map[category.Category]*CategoryStats `json:"categories"`
	Passed     int                                  `json:"passed"`
	Failed     int                                  `json:"failed"`
	Skipped    int                                  `json:"skipped"`
	Pending    int                                  `json:"pending"`
	Total      int                                  `json:"total"`
	IsComplete bool                                 `json:"is_complete"`
}

// Success reports whether the run had no failures and left nothing pending.
func (s Snapshot) Success() bool {
	return s.Failed == 0 && s.Pending == 0
}

// Finished is the number of results in a terminal state.
func (s Snapshot) Finished() int {
	return s.Passed + s.Failed + s.Skipped
}

// CategoryOrder returns the categories present in the snapshot in the
// fixed category order.
func (s Snapshot) CategoryOrder() []category.Category {
	var out []category.Category
	for _, c := range category.All() {
		if _, ok := s.Categories[c]; ok {
			out = append(out, c)
		}
	}
	return out
}
