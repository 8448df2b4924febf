package invariant

import (
	"bytes"
	"fmt"
	"net/http"
	"slices"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
)

// ConflictCode is the error code a server must use when an idempotency key
// is reused with a different request body.
const ConflictCode = "idempotency_conflict"

// Response is the part of an HTTP response the idempotency checks need.
type Response struct {
	Status int
	Body   []byte
}

func (r Response) succeeded() bool {
	return r.Status >= 200 && r.Status < 300
}

// Canonical returns the RFC 8785 canonical form of a JSON document.
func Canonical(body []byte) ([]byte, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	out, err := jsoncanonicalizer.Transform(body)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize request body: %w", err)
	}
	return out, nil
}

// SameRequest reports whether two JSON request bodies are identical after
// canonicalization, so member order and whitespace do not matter.
func SameRequest(a, b []byte) (bool, error) {
	ca, err := Canonical(a)
	if err != nil {
		return false, err
	}
	cb, err := Canonical(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ca, cb), nil
}

// CheckIdempotentReplay verifies that a request replayed with the same
// idempotency key and the same body returned the stored result: the same
// status and the same session id, and for creation the same totals.
func CheckIdempotentReplay(op Operation, first, second Response) Violations {
	var vs Violations
	if first.Status != second.Status {
		vs.add(&Violation{
			Rule:     RuleIdempotentReplay,
			Expected: first.Status,
			Actual:   second.Status,
			Message:  "replayed request returned a different status code",
		})
	}
	if !first.succeeded() || !second.succeeded() {
		return vs
	}

	a, err := ParseSession(first.Body)
	if err != nil {
		vs.add(decodeViolation(RuleIdempotentReplay, err))
		return vs
	}
	b, err := ParseSession(second.Body)
	if err != nil {
		vs.add(decodeViolation(RuleIdempotentReplay, err))
		return vs
	}

	if a.ID != b.ID {
		vs.add(&Violation{
			Rule:     RuleIdempotentReplay,
			Path:     "$.id",
			Expected: a.ID,
			Actual:   b.ID,
			Message:  "replayed request created or addressed a different session",
		})
	}
	if op == OpCreate {
		for _, t := range append(slices.Clone(RequiredTotalTypes), TotalFee) {
			want, _ := a.TotalAmount(t)
			got, _ := b.TotalAmount(t)
			if want != got {
				vs.add(&Violation{
					Rule:     RuleIdempotentReplay,
					Path:     totalPath(b.Totals, t),
					Expected: want,
					Actual:   got,
					Message:  fmt.Sprintf("replayed creation returned a different %s", t),
				})
			}
		}
	}
	return vs
}

// CheckIdempotencyConflict verifies that reusing an idempotency key with a
// different body was rejected with 409 and the idempotency_conflict code
// instead of succeeding a second time.
func CheckIdempotencyConflict(resp Response) Violations {
	var vs Violations
	if resp.Status != http.StatusConflict {
		msg := "reused idempotency key with a different body must be rejected"
		if resp.succeeded() {
			msg = "reused idempotency key with a different body silently succeeded"
		}
		vs.add(&Violation{
			Rule:     RuleIdempotencyConflict,
			Expected: http.StatusConflict,
			Actual:   resp.Status,
			Message:  msg,
		})
		return vs
	}
	e, err := ParseError(resp.Body)
	if err != nil {
		vs.add(decodeViolation(RuleIdempotencyConflict, err))
		return vs
	}
	if e.Code != ConflictCode {
		vs.add(&Violation{
			Rule:     RuleIdempotencyConflict,
			Path:     "$.code",
			Expected: ConflictCode,
			Actual:   e.Code,
			Message:  "conflict response must carry the idempotency_conflict code",
		})
	}
	return vs
}

// CheckIdempotencyKeyEcho verifies the server echoed the idempotency key
// verbatim.
func CheckIdempotencyKeyEcho(sent, echoed string) *Violation {
	if sent == echoed {
		return nil
	}
	return &Violation{
		Rule:     RuleIdempotencyKeyEcho,
		Path:     "Idempotency-Key",
		Expected: sent,
		Actual:   echoed,
		Message:  "idempotency key must be echoed in the response",
	}
}

func decodeViolation(rule Rule, err error) *Violation {
	return &Violation{
		Rule:     rule,
		Path:     "$",
		Expected: "a JSON response body",
		Actual:   err.Error(),
		Message:  "response body could not be decoded",
	}
}
