package invariant

import (
	"fmt"
	"regexp"
)

var currencyPattern = regexp.MustCompile(`^[a-z]{3}$`)

// CheckTotalsFormula verifies
//
//	subtotal == items_base_amount - items_discount
//	total    == subtotal - discount + fulfillment + tax + fee
//
// A total type that is absent counts as zero.
func CheckTotalsFormula(totals []Total) Violations {
	amount := func(t TotalType) int64 {
		v, _ := lookupTotal(totals, t)
		return v
	}

	var vs Violations

	wantSubtotal := amount(TotalItemsBaseAmount) - amount(TotalItemsDiscount)
	if got := amount(TotalSubtotal); got != wantSubtotal {
		vs.add(&Violation{
			Rule:     RuleSubtotalFormula,
			Path:     totalPath(totals, TotalSubtotal),
			Expected: wantSubtotal,
			Actual:   got,
			Message:  "subtotal must equal items_base_amount - items_discount",
		})
	}

	wantTotal := amount(TotalSubtotal) - amount(TotalDiscount) + amount(TotalFulfillment) + amount(TotalTax) + amount(TotalFee)
	if got := amount(TotalTotal); got != wantTotal {
		vs.add(&Violation{
			Rule:     RuleTotalFormula,
			Path:     totalPath(totals, TotalTotal),
			Expected: wantTotal,
			Actual:   got,
			Message:  "total must equal subtotal - discount + fulfillment + tax + fee",
		})
	}
	return vs
}

// CheckRequiredTotals reports each required total type that is missing.
func CheckRequiredTotals(totals []Total) Violations {
	var vs Violations
	for _, t := range RequiredTotalTypes {
		if _, ok := lookupTotal(totals, t); !ok {
			vs.add(&Violation{
				Rule:     RuleRequiredTotal,
				Path:     "$.totals",
				Expected: string(t),
				Actual:   nil,
				Message:  fmt.Sprintf("total of type %q is missing", t),
			})
		}
	}
	return vs
}

// CheckLineItems verifies subtotal == base_amount - discount and
// total == subtotal + tax for every line item.
func CheckLineItems(items []LineItem) Violations {
	var vs Violations
	for i, li := range items {
		base := fmt.Sprintf("$.line_items[%d]", i)
		if want := li.BaseAmount.Minor - li.Discount.Minor; li.Subtotal.Minor != want {
			vs.add(&Violation{
				Rule:     RuleLineItemSubtotal,
				Path:     base + ".subtotal",
				Expected: want,
				Actual:   li.Subtotal.Minor,
				Message:  fmt.Sprintf("line item %s: subtotal must equal base_amount - discount", li.ID),
			})
		}
		if want := li.Subtotal.Minor + li.Tax.Minor; li.Total.Minor != want {
			vs.add(&Violation{
				Rule:     RuleLineItemTotal,
				Path:     base + ".total",
				Expected: want,
				Actual:   li.Total.Minor,
				Message:  fmt.Sprintf("line item %s: total must equal subtotal + tax", li.ID),
			})
		}
	}
	return vs
}

// CheckAmounts verifies every total and line item amount is a non-negative
// integer.
func CheckAmounts(totals []Total, items []LineItem) Violations {
	var vs Violations
	for i, t := range totals {
		vs = append(vs, checkAmount(fmt.Sprintf("$.totals[%d].amount", i), t.Amount)...)
	}
	for i, li := range items {
		base := fmt.Sprintf("$.line_items[%d]", i)
		for _, f := range []struct {
			name string
			a    Amount
		}{
			{"base_amount", li.BaseAmount},
			{"discount", li.Discount},
			{"subtotal", li.Subtotal},
			{"tax", li.Tax},
			{"total", li.Total},
		} {
			vs = append(vs, checkAmount(base+"."+f.name, f.a)...)
		}
	}
	return vs
}

func checkAmount(path string, a Amount) Violations {
	var vs Violations
	if !a.Present() {
		vs.add(&Violation{
			Rule:     RuleIntegerAmount,
			Path:     path,
			Expected: "integer minor units",
			Actual:   a.String(),
			Message:  "amount is null or missing",
		})
		return vs
	}
	if !a.IsInteger() {
		vs.add(&Violation{
			Rule:     RuleIntegerAmount,
			Path:     path,
			Expected: "integer minor units",
			Actual:   a.String(),
			Message:  "amount must be an integer",
		})
	}
	if a.Minor < 0 || (a.raw != "" && a.raw[0] == '-') {
		vs.add(&Violation{
			Rule:     RuleNonNegativeAmount,
			Path:     path,
			Expected: ">= 0",
			Actual:   a.String(),
			Message:  "amount must not be negative",
		})
	}
	return vs
}

// CheckCurrency verifies an ISO 4217 code written as three lowercase letters.
func CheckCurrency(currency string) *Violation {
	if currencyPattern.MatchString(currency) {
		return nil
	}
	return &Violation{
		Rule:     RuleCurrencyFormat,
		Path:     "$.currency",
		Expected: "three lowercase letters",
		Actual:   currency,
		Message:  "currency must be a lowercase ISO 4217 code",
	}
}

func totalPath(totals []Total, t TotalType) string {
	for i, tot := range totals {
		if tot.Type == t {
			return fmt.Sprintf("$.totals[%d].amount", i)
		}
	}
	return "$.totals"
}
