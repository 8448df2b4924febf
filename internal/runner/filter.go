package runner

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// A filterField pulls the values a filter regex is matched against. A
// scenario matches when any value does.
type filterField struct {
	name   string
	values func(Scenario) []string
}

var (
	nameField     = filterField{"name", func(sc Scenario) []string { return []string{sc.Name} }}
	fileField     = filterField{"file", func(sc Scenario) []string { return []string{sc.File} }}
	categoryField = filterField{"category", func(sc Scenario) []string { return []string{string(sc.Category())} }}
	opField       = filterField{"op", func(sc Scenario) []string { return sc.Operations }}
)

var filterKeys = map[string]filterField{
	"name": nameField, "n": nameField,
	"file": fileField, "suite": fileField, "f": fileField,
	"category": categoryField, "cat": categoryField, "c": categoryField,
	"op": opField, "operation": opField, "o": opField,
}

type clause struct {
	field filterField
	re    *regexp.Regexp
}

func (c clause) matches(sc Scenario) bool {
	return slices.ContainsFunc(c.field.values(sc), c.re.MatchString)
}

// FilterScenarios keeps the scenarios matching every key=regex clause of
// pattern. Clauses are comma separated and a value may be wrapped in single
// or double quotes to protect commas.
func FilterScenarios(scenarios []Scenario, pattern string) ([]Scenario, error) {
	if !strings.Contains(pattern, "=") {
		return nil, fmt.Errorf("non-fielded filters are no longer supported; use key=regex (e.g., category=^Idempotency$,name=replay)")
	}
	clauses, err := parseFilter(pattern)
	if err != nil {
		return nil, err
	}

	var out []Scenario
	for _, sc := range scenarios {
		if !slices.ContainsFunc(clauses, func(c clause) bool { return !c.matches(sc) }) {
			out = append(out, sc)
		}
	}
	return out, nil
}

func parseFilter(pattern string) ([]clause, error) {
	var clauses []clause
	for _, tok := range splitCommaAware(pattern) {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		key, val, ok := strings.Cut(tok, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter token: %q (expected key=value)", tok)
		}
		field, known := filterKeys[key]
		if !known {
			return nil, fmt.Errorf("unknown filter field: %s", key)
		}
		re, err := regexp.Compile(unquote(strings.TrimSpace(val)))
		if err != nil {
			return nil, fmt.Errorf("invalid regex for %s: %w", key, err)
		}
		clauses = append(clauses, clause{field: field, re: re})
	}
	if len(clauses) == 0 {
		return nil, fmt.Errorf("invalid filter: %q", pattern)
	}
	return clauses, nil
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// splitCommaAware splits on commas outside quotes. Quotes are kept.
func splitCommaAware(s string) []string {
	var (
		toks  []string
		start int
		quote byte
	)
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'':
			quote = ch
		case ch == ',':
			toks = append(toks, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		toks = append(toks, s[start:])
	}
	return toks
}
