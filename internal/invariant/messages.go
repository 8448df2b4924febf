package invariant

import (
	"fmt"
	"regexp"
	"strings"
)

var jsonPathPattern = regexp.MustCompile(`^\$(\.[A-Za-z_][A-Za-z0-9_]*|\[[0-9]+\]|\['[^']*'\])*$`)

var errorTypes = map[string]bool{
	"invalid_request":        true,
	"request_not_idempotent": true,
	"processing_error":       true,
	"service_unavailable":    true,
}

// ValidJSONPath reports whether p is a simple JSONPath such as
// "$.line_items[0].item.id".
func ValidJSONPath(p string) bool {
	return jsonPathPattern.MatchString(p)
}

var messageCodes = map[MessageCode]bool{
	CodeMissing:         true,
	CodeInvalid:         true,
	CodeOutOfStock:      true,
	CodePaymentDeclined: true,
	CodeRequiresSignIn:  true,
	CodeRequires3DS:     true,
}

// CheckMessages verifies message structure. Error messages need a plain or
// markdown content type, non-empty content and, when coded, a code from the
// protocol's closed set. A code on a non-error message is a violation. Any
// non-empty param must be a JSONPath whatever the message type.
func CheckMessages(msgs []Message) Violations {
	var vs Violations
	for i, m := range msgs {
		base := fmt.Sprintf("$.messages[%d]", i)
		if m.Type == MessageError {
			vs = append(vs, checkErrorMessage(base, m)...)
		} else if m.Code != "" {
			vs.add(&Violation{
				Rule:     RuleMessageStructure,
				Path:     base + ".code",
				Expected: "no code on " + string(m.Type) + " messages",
				Actual:   string(m.Code),
				Message:  "only error messages carry a code",
			})
		}
		if m.Param != "" && !ValidJSONPath(m.Param) {
			vs.add(&Violation{
				Rule:     RuleMessageStructure,
				Path:     base + ".param",
				Expected: "a JSONPath starting with $",
				Actual:   m.Param,
				Message:  "message param is not a JSONPath",
			})
		}
	}
	return vs
}

func checkErrorMessage(base string, m Message) []*Violation {
	var vs []*Violation
	if m.ContentType != "plain" && m.ContentType != "markdown" {
		vs = append(vs, &Violation{
			Rule:     RuleMessageStructure,
			Path:     base + ".content_type",
			Expected: "plain or markdown",
			Actual:   m.ContentType,
			Message:  "error message has an unsupported content type",
		})
	}
	if strings.TrimSpace(m.Content) == "" {
		vs = append(vs, &Violation{
			Rule:     RuleMessageStructure,
			Path:     base + ".content",
			Expected: "non-empty content",
			Actual:   m.Content,
			Message:  "error message has no content",
		})
	}
	if m.Code != "" && !messageCodes[m.Code] {
		vs = append(vs, &Violation{
			Rule:     RuleMessageStructure,
			Path:     base + ".code",
			Expected: "missing, invalid, out_of_stock, payment_declined, requires_sign_in or requires_3ds",
			Actual:   string(m.Code),
			Message:  "error message code is not part of the protocol",
		})
	}
	return vs
}

// CheckErrorResponse verifies the body of a rejected request is a
// structured error with a known type, a code and a message.
func CheckErrorResponse(body []byte) Violations {
	var vs Violations
	e, err := ParseError(body)
	if err != nil {
		vs.add(decodeViolation(RuleErrorResponse, err))
		return vs
	}
	if !errorTypes[e.Type] {
		vs.add(&Violation{
			Rule:     RuleErrorResponse,
			Path:     "$.type",
			Expected: "invalid_request, request_not_idempotent, processing_error or service_unavailable",
			Actual:   e.Type,
			Message:  "error type is not part of the protocol",
		})
	}
	if e.Code == "" {
		vs.add(&Violation{
			Rule:     RuleErrorResponse,
			Path:     "$.code",
			Expected: "a non-empty code",
			Actual:   e.Code,
			Message:  "error response has no code",
		})
	}
	if strings.TrimSpace(e.Message) == "" {
		vs.add(&Violation{
			Rule:     RuleErrorResponse,
			Path:     "$.message",
			Expected: "a non-empty message",
			Actual:   e.Message,
			Message:  "error response has no message",
		})
	}
	if e.Param != "" && !ValidJSONPath(e.Param) {
		vs.add(&Violation{
			Rule:     RuleErrorResponse,
			Path:     "$.param",
			Expected: "a JSONPath starting with $",
			Actual:   e.Param,
			Message:  "error param is not a JSONPath",
		})
	}
	return vs
}
