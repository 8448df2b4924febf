package invariant

// CheckSession runs every session-level check and returns all violations.
func CheckSession(s *Session) Violations {
	var vs Violations
	if !s.Status.Known() {
		vs.add(&Violation{
			Rule:     RuleUnknownStatus,
			Path:     "$.status",
			Expected: "a known session status",
			Actual:   string(s.Status),
			Message:  "session status is not part of the protocol",
		})
	}
	vs.add(CheckCurrency(s.Currency))
	vs = append(vs, CheckAmounts(s.Totals, s.LineItems)...)
	vs = append(vs, CheckRequiredTotals(s.Totals)...)
	vs = append(vs, CheckTotalsFormula(s.Totals)...)
	vs = append(vs, CheckLineItems(s.LineItems)...)
	vs = append(vs, CheckMessages(s.Messages)...)
	return vs
}
