// Package category maps free-text test names onto the fixed set of
// certification categories used for aggregate reporting.
package category

import (
	"strings"
	"unicode"
)

// Category is a certification grouping label.
type Category string

const (
	SessionCreation  Category = "Session Creation & Address Handling"
	ShippingUpdates  Category = "Shipping Option Updates"
	OrderCompletion  Category = "Order Completion"
	ErrorScenarios   Category = "Error Scenarios"
	Idempotency      Category = "Idempotency"
	SchemaValidation Category = "Schema Validation"
	TotalsValidation Category = "Totals Validation"
	CancelOperations Category = "Cancel Operations"
	GetOperations    Category = "Get Operations"
	HappyPath        Category = "Happy Path Flows"
	Other            Category = "Other"
)

// All returns every category in display order.
func All() []Category {
	return []Category{
		SessionCreation,
		ShippingUpdates,
		OrderCompletion,
		ErrorScenarios,
		Idempotency,
		SchemaValidation,
		TotalsValidation,
		CancelOperations,
		GetOperations,
		HappyPath,
		Other,
	}
}

// Valid reports whether c is one of the fixed categories.
func Valid(c Category) bool {
	for _, known := range All() {
		if c == known {
			return true
		}
	}
	return false
}

// Normalize returns c if it is a known category and Other otherwise.
func Normalize(c Category) Category {
	if Valid(c) {
		return c
	}
	return Other
}

// Rule assigns Category to any text containing one of Keywords.
// A keyword matches at the start of a word, so "complet" matches
// "complete", "completed" and "completion" but not "incomplete".
type Rule struct {
	Category Category
	Keywords []string
}

// Rules is the classification table, evaluated top to bottom. Order is
// precedence: a name mentioning both "complete" and "error" resolves to
// ErrorScenarios because that rule comes first.
var Rules = []Rule{
	{Category: Idempotency, Keywords: []string{"idempoten", "idempotency key", "replay"}},
	{Category: ErrorScenarios, Keywords: []string{"error", "invalid", "reject", "declin", "not found", "unknown", "missing", "out of stock", "unauthori", "forbidden", "fail"}},
	{Category: SchemaValidation, Keywords: []string{"schema", "contract", "openapi", "conformance"}},
	{Category: HappyPath, Keywords: []string{"happy path", "end to end", "e2e", "full flow", "journey"}},
	{Category: TotalsValidation, Keywords: []string{"total", "amount", "tax", "arithmetic", "subtotal", "discount"}},
	{Category: CancelOperations, Keywords: []string{"cancel"}},
	{Category: OrderCompletion, Keywords: []string{"complet", "payment", "order", "checkout complete"}},
	{Category: ShippingUpdates, Keywords: []string{"shipping", "fulfillment", "fulfilment", "delivery", "update"}},
	{Category: GetOperations, Keywords: []string{"get", "retriev", "fetch"}},
	{Category: SessionCreation, Keywords: []string{"creat", "address", "session", "buyer"}},
}

// Categorize classifies a test by its name and optional suite path using
// Rules. It always returns exactly one category, Other when nothing matches.
func Categorize(testName, suiteName string) Category {
	return Classify(Rules, testName, suiteName)
}

// Classify is Categorize over an arbitrary rule table.
func Classify(rules []Rule, testName, suiteName string) Category {
	text := normalize(testName + " " + suiteName)
	if strings.TrimSpace(text) == "" {
		return Other
	}
	for _, rule := range rules {
		for _, kw := range rule.Keywords {
			k := strings.TrimSpace(normalize(kw))
			if k == "" {
				continue
			}
			if strings.Contains(text, " "+k) {
				return Normalize(rule.Category)
			}
		}
	}
	return Other
}

// normalize lower-cases s, turns every run of non-alphanumerics into a
// single space and pads the result with one leading space so keywords can
// be matched at word starts.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 1)
	b.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return b.String()
}
