package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// DiagnosticKind names one way an exchange can fail to conform.
type DiagnosticKind string

const (
	PathNotFound        DiagnosticKind = "path_not_found"
	MethodNotDefined    DiagnosticKind = "method_not_defined"
	StatusNotDefined    DiagnosticKind = "status_not_defined"
	BodySchemaViolation DiagnosticKind = "body_schema_violation"
)

// Violation is a single schema mismatch inside a response body.
type Violation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Diagnostic describes why an exchange does not conform.
type Diagnostic struct {
	Kind        DiagnosticKind
	Method      string
	Path        string
	Status      int
	ContentType string

	// Suggestion is the closest defined path for PathNotFound.
	Suggestion string
	// DefinedMethods is set for MethodNotDefined.
	DefinedMethods []string
	// DefinedStatuses is set for StatusNotDefined.
	DefinedStatuses []int

	// Violations, Body and Schema are set for BodySchemaViolation.
	Violations []Violation
	Body       any
	Schema     *openapi3.Schema
}

// Error implements the error interface.
func (d *Diagnostic) Error() string {
	switch d.Kind {
	case PathNotFound:
		msg := fmt.Sprintf("path not found: %s is not defined in the interface description", d.Path)
		if d.Suggestion != "" {
			msg += fmt.Sprintf(" (closest defined path: %s)", d.Suggestion)
		}
		return msg
	case MethodNotDefined:
		return fmt.Sprintf("method not defined: %s is not supported for %s (defined: %s)",
			d.Method, d.Path, strings.ToUpper(strings.Join(d.DefinedMethods, ", ")))
	case StatusNotDefined:
		return fmt.Sprintf("status not defined: %d is not a documented response for %s %s (defined: %s)",
			d.Status, d.Method, d.Path, d.DefinedStatusList())
	case BodySchemaViolation:
		var b strings.Builder
		fmt.Fprintf(&b, "body schema violation: %s %s %d has %d violation(s)", d.Method, d.Path, d.Status, len(d.Violations))
		for _, v := range d.Violations {
			fmt.Fprintf(&b, "\n  %s: %s", v.Path, v.Message)
		}
		return b.String()
	default:
		return fmt.Sprintf("%s: %s %s %d", d.Kind, d.Method, d.Path, d.Status)
	}
}

// DefinedStatusList renders DefinedStatuses as "200, 201, 400".
func (d *Diagnostic) DefinedStatusList() string {
	parts := make([]string, len(d.DefinedStatuses))
	for i, s := range d.DefinedStatuses {
		parts[i] = strconv.Itoa(s)
	}
	return strings.Join(parts, ", ")
}

// SchemaJSON renders the expected schema, or nil when there is none.
func (d *Diagnostic) SchemaJSON() []byte {
	if d.Schema == nil {
		return nil
	}
	b, err := json.MarshalIndent(d.Schema, "", "  ")
	if err != nil {
		return nil
	}
	return b
}
