// Package invariant encodes the checkout protocol's business rules as pure
// checks: monetary totals, line item arithmetic, amount integrality,
// currency format, the session state machine, idempotency and the shape of
// error messages.
//
// Every check returns nil (or an empty Violations) when the rule holds.
// A broken rule is reported as a *Violation carrying the rule name and the
// expected and actual values, never as a bare boolean.
package invariant

import (
	"errors"
	"fmt"
	"strings"
)

// Rule names a business invariant.
type Rule string

const (
	RuleTotalFormula        Rule = "total_formula"
	RuleSubtotalFormula     Rule = "subtotal_formula"
	RuleRequiredTotal       Rule = "required_total"
	RuleLineItemSubtotal    Rule = "line_item_subtotal"
	RuleLineItemTotal       Rule = "line_item_total"
	RuleNonNegativeAmount   Rule = "non_negative_amount"
	RuleIntegerAmount       Rule = "integer_amount"
	RuleCurrencyFormat      Rule = "currency_format"
	RuleUnknownStatus       Rule = "unknown_status"
	RuleIllegalTransition   Rule = "illegal_transition"
	RuleIdempotentReplay    Rule = "idempotent_replay"
	RuleIdempotencyConflict Rule = "idempotency_conflict"
	RuleIdempotencyKeyEcho  Rule = "idempotency_key_echo"
	RuleMessageStructure    Rule = "message_structure"
	RuleErrorResponse       Rule = "error_response"
)

// Violation is a broken business rule with the values involved.
type Violation struct {
	Rule     Rule
	Path     string
	Expected any
	Actual   any
	Message  string
}

// Error implements the error interface.
func (v *Violation) Error() string {
	var b strings.Builder
	b.WriteString(string(v.Rule))
	if v.Path != "" {
		b.WriteString(" at " + v.Path)
	}
	if v.Message != "" {
		b.WriteString(": " + v.Message)
	}
	fmt.Fprintf(&b, " (expected %v, actual %v)", v.Expected, v.Actual)
	return b.String()
}

// Violations is the result of a composite check.
type Violations []*Violation

// Err joins the violations into a single error, or returns nil.
func (vs Violations) Err() error {
	if len(vs) == 0 {
		return nil
	}
	errs := make([]error, len(vs))
	for i, v := range vs {
		errs[i] = v
	}
	return errors.Join(errs...)
}

// Rules returns the distinct rules broken, in first-seen order.
func (vs Violations) Rules() []Rule {
	seen := make(map[Rule]bool)
	var out []Rule
	for _, v := range vs {
		if !seen[v.Rule] {
			seen[v.Rule] = true
			out = append(out, v.Rule)
		}
	}
	return out
}

// Has reports whether any violation breaks rule r.
func (vs Violations) Has(r Rule) bool {
	for _, v := range vs {
		if v.Rule == r {
			return true
		}
	}
	return false
}

func (vs *Violations) add(v *Violation) {
	if v != nil {
		*vs = append(*vs, v)
	}
}
