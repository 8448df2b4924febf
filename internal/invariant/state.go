package invariant

import (
	"fmt"
	"slices"
)

// Status is the lifecycle state of a checkout session.
type Status string

const (
	StatusNotReadyForPayment Status = "not_ready_for_payment"
	StatusReadyForPayment    Status = "ready_for_payment"
	StatusCompleted          Status = "completed"
	StatusCanceled           Status = "canceled"
)

// Known reports whether s is one of the four protocol states.
func (s Status) Known() bool {
	switch s {
	case StatusNotReadyForPayment, StatusReadyForPayment, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

// Terminal reports whether no further mutation is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// Operation is a protocol call applied to an existing session.
type Operation string

const (
	OpCreate   Operation = "create"
	OpUpdate   Operation = "update"
	OpComplete Operation = "complete"
	OpCancel   Operation = "cancel"
	OpGet      Operation = "get"
)

// Mutates reports whether op may change the session.
func (op Operation) Mutates() bool {
	return op != OpGet
}

// transitions only moves forward: a session becomes ready for payment and
// stays ready, and only a ready session can be completed.
var transitions = map[Status]map[Operation][]Status{
	StatusNotReadyForPayment: {
		OpUpdate: {StatusNotReadyForPayment, StatusReadyForPayment},
		OpCancel: {StatusCanceled},
		OpGet:    {StatusNotReadyForPayment},
	},
	StatusReadyForPayment: {
		OpUpdate:   {StatusReadyForPayment},
		OpComplete: {StatusCompleted},
		OpCancel:   {StatusCanceled},
		OpGet:      {StatusReadyForPayment},
	},
	StatusCompleted: {
		OpGet: {StatusCompleted},
	},
	StatusCanceled: {
		OpGet: {StatusCanceled},
	},
}

// CreateStates are the states a newly created session may be in.
var CreateStates = []Status{StatusNotReadyForPayment, StatusReadyForPayment}

// Transition returns the states a session in from may move to when op is
// accepted. An empty result means op is not allowed at all.
func Transition(from Status, op Operation) []Status {
	if op == OpCreate {
		return slices.Clone(CreateStates)
	}
	return slices.Clone(transitions[from][op])
}

// Step is one observed operation against a session.
type Step struct {
	Op Operation
	// Accepted is true when the server answered with a success status.
	Accepted bool
	// Status is the session status reported after the call. It is ignored
	// for rejected calls.
	Status Status
}

// CheckTransition verifies that applying step to a session in from is legal.
//
// A rejected call never changes state, so rejecting a mutation is always
// legal. Accepting a mutation of a terminal session is not, and neither is
// completing a session that is not ready or an update that takes a ready
// session back to not ready.
func CheckTransition(from Status, step Step) *Violation {
	if !step.Accepted {
		return nil
	}
	if step.Op != OpCreate && !from.Known() {
		return &Violation{
			Rule:     RuleUnknownStatus,
			Path:     "$.status",
			Expected: "a known session status",
			Actual:   string(from),
			Message:  "session status is not part of the protocol",
		}
	}
	if !step.Status.Known() {
		return &Violation{
			Rule:     RuleUnknownStatus,
			Path:     "$.status",
			Expected: "a known session status",
			Actual:   string(step.Status),
			Message:  fmt.Sprintf("%s returned an unknown status", step.Op),
		}
	}
	if from.Terminal() && step.Op.Mutates() {
		return &Violation{
			Rule:     RuleIllegalTransition,
			Path:     "$.status",
			Expected: "request rejected",
			Actual:   fmt.Sprintf("%s accepted (%s)", step.Op, step.Status),
			Message:  fmt.Sprintf("%s must be rejected once a session is %s", step.Op, from),
		}
	}
	allowed := Transition(from, step.Op)
	if slices.Contains(allowed, step.Status) {
		return nil
	}
	return &Violation{
		Rule:     RuleIllegalTransition,
		Path:     "$.status",
		Expected: allowed,
		Actual:   string(step.Status),
		Message:  fmt.Sprintf("%s from %s", step.Op, describeFrom(from, step.Op)),
	}
}

// CheckHistory replays steps against one session id, starting from the
// state left by the first accepted create. It returns one violation per
// illegal step.
func CheckHistory(steps []Step) Violations {
	var vs Violations
	var current Status
	for i, step := range steps {
		v := CheckTransition(current, step)
		if v != nil {
			v.Message = fmt.Sprintf("step %d: %s", i, v.Message)
			vs.add(v)
			continue
		}
		if step.Accepted {
			current = step.Status
		}
	}
	return vs
}

func describeFrom(from Status, op Operation) string {
	if op == OpCreate {
		return "nothing"
	}
	return string(from)
}
