// Package schema checks observed HTTP exchanges against a machine-readable
// interface description (an OpenAPI 3 document).
//
// A Description is loaded once and never changes afterwards. Checker.Check
// resolves the exchange's path, method and status against it, exactly and in
// that order, and validates the body against the JSON schema of the matched
// response. Every way this can fail is a distinct DiagnosticKind.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/getkin/kin-openapi/openapi3"
)

// Exchange is one observed request/response pair.
//
// Path must be the path as written in the description, including any
// template segments (e.g. "/checkout_sessions/{checkout_session_id}").
type Exchange struct {
	Method  string
	Path    string
	Status  int
	Headers http.Header
	Body    []byte
}

// Checker validates exchanges against a Description. It holds no mutable
// state and may be used concurrently.
type Checker struct {
	desc *Description
}

// NewChecker returns a Checker bound to desc.
func NewChecker(desc *Description) *Checker {
	return &Checker{desc: desc}
}

// Description returns the interface description the checker uses.
func (c *Checker) Description() *Description {
	return c.desc
}

// Check returns nil when the exchange conforms and a Diagnostic otherwise.
func (c *Checker) Check(ex Exchange) *Diagnostic {
	ps, ok := c.desc.Path(ex.Path)
	if !ok {
		return &Diagnostic{
			Kind:       PathNotFound,
			Method:     strings.ToUpper(ex.Method),
			Path:       ex.Path,
			Status:     ex.Status,
			Suggestion: c.Suggest(ex.Path),
		}
	}

	op, ok := ps.Operation(ex.Method)
	if !ok {
		return &Diagnostic{
			Kind:           MethodNotDefined,
			Method:         strings.ToUpper(ex.Method),
			Path:           ex.Path,
			Status:         ex.Status,
			DefinedMethods: ps.Methods(),
		}
	}

	rs, ok := op.Response(ex.Status)
	if !ok {
		return &Diagnostic{
			Kind:            StatusNotDefined,
			Method:          strings.ToUpper(ex.Method),
			Path:            ex.Path,
			Status:          ex.Status,
			DefinedStatuses: op.Statuses(),
		}
	}

	sch, contentType, ok := rs.JSONSchema()
	if !ok {
		return nil
	}

	body, violations := decodeAndValidate(sch, ex.Body)
	if len(violations) == 0 {
		return nil
	}
	return &Diagnostic{
		Kind:        BodySchemaViolation,
		Method:      strings.ToUpper(ex.Method),
		Path:        ex.Path,
		Status:      ex.Status,
		ContentType: contentType,
		Violations:  violations,
		Body:        body,
		Schema:      sch,
	}
}

// Suggest returns the defined path closest to path by edit distance, or ""
// if the description has no paths.
func (c *Checker) Suggest(path string) string {
	best := ""
	bestDist := -1
	for _, candidate := range c.desc.Paths() {
		d := levenshtein.ComputeDistance(path, candidate)
		if bestDist < 0 || d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best
}

func decodeAndValidate(sch *openapi3.Schema, raw []byte) (any, []Violation) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, []Violation{{Path: "$", Message: "response body is empty"}}
	}

	var body any
	if err := json.Unmarshal(trimmed, &body); err != nil {
		return string(raw), []Violation{{Path: "$", Message: fmt.Sprintf("response body is not valid JSON: %v", err)}}
	}

	err := sch.VisitJSON(body, openapi3.MultiErrors())
	if err == nil {
		return body, nil
	}
	return body, flattenSchemaErrors(err)
}

func flattenSchemaErrors(err error) []Violation {
	var out []Violation
	var walk func(error)
	walk = func(err error) {
		var multi openapi3.MultiError
		if errors.As(err, &multi) {
			for _, e := range multi {
				walk(e)
			}
			return
		}
		var se *openapi3.SchemaError
		if errors.As(err, &se) {
			msg := se.Reason
			if msg == "" {
				msg = se.Error()
			}
			out = append(out, Violation{Path: pointerToPath(se.JSONPointer()), Message: msg})
			return
		}
		out = append(out, Violation{Path: "$", Message: err.Error()})
	}
	walk(err)
	return out
}

// pointerToPath renders JSON pointer segments as a JSONPath expression,
// e.g. ["totals", "2", "amount"] becomes "$.totals[2].amount".
func pointerToPath(segments []string) string {
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range segments {
		if _, err := strconv.Atoi(seg); err == nil {
			b.WriteString("[" + seg + "]")
			continue
		}
		b.WriteString("." + seg)
	}
	return b.String()
}
