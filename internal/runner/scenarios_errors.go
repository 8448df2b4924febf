package runner

import (
	"context"
	"net/http"
	"strings"

	"github.com/Use-Tusk/checkout-conformance/internal/client"
	"github.com/Use-Tusk/checkout-conformance/internal/invariant"
)

func asResponse(r *client.Response) invariant.Response {
	return invariant.Response{Status: r.Exchange.Status, Body: r.Exchange.Body}
}

func idempotencyScenarios(fx Fixtures) []Scenario {
	return []Scenario{
		{
			Name:        "idempotent create replay",
			File:        SuiteIdempotency,
			Description: "Repeating a creation with the same key and body returns the same session.",
			Operations:  []string{"create", "create"},
			Run: func(ctx context.Context, t *T) {
				key := t.Client().NewKey()
				req := client.Request{Method: http.MethodPost, Template: pathSessions, Body: fx.items(fx.ItemID, 1), IdempotencyKey: key}
				first := t.Do(ctx, req)
				if !t.ExpectStatus(first, http.StatusCreated, http.StatusOK) {
					t.FailNow()
				}
				t.Check(invariant.CheckSession(t.Session(first)))
				second := t.Do(ctx, req)
				t.Check(invariant.CheckIdempotentReplay(invariant.OpCreate, asResponse(first), asResponse(second)))
			},
		},
		{
			Name:        "idempotency key reused with different body",
			File:        SuiteIdempotency,
			Description: "Reusing a key with a different body is a conflict, not a second success.",
			Operations:  []string{"create", "create"},
			Run: func(ctx context.Context, t *T) {
				key := t.Client().NewKey()
				first := t.Do(ctx, client.Request{Method: http.MethodPost, Template: pathSessions, Body: fx.items(fx.ItemID, 1), IdempotencyKey: key})
				if !t.ExpectStatus(first, http.StatusCreated, http.StatusOK) {
					t.FailNow()
				}
				second := t.Do(ctx, client.Request{Method: http.MethodPost, Template: pathSessions, Body: fx.items(fx.AltItemID, 2), IdempotencyKey: key})
				if t.Check(invariant.CheckIdempotencyConflict(asResponse(second))) {
					t.Check(invariant.CheckErrorResponse(second.Exchange.Body))
				}
			},
		},
		{
			Name:        "idempotency key echoed",
			File:        SuiteIdempotency,
			Description: "Every response echoes the request's idempotency key verbatim.",
			Operations:  []string{"create", "get"},
			Run: func(ctx context.Context, t *T) {
				f := newFlow(ctx, t)
				f.createWithKey(fx.items(fx.ItemID, 1), "conform-"+t.Client().NewKey())
				f.mustSession(f.get())
			},
		},
		{
			Name:        "idempotent complete replay",
			File:        SuiteIdempotency,
			Description: "Repeating a completion with the same key returns the stored result instead of a state error.",
			Operations:  []string{"create", "complete", "complete"},
			Run: func(ctx context.Context, t *T) {
				f := newFlow(ctx, t)
				s := f.readySession(fx)
				req := client.Request{
					Method:         http.MethodPost,
					Template:       pathComplete,
					Params:         map[string]string{"checkout_session_id": s.ID},
					Body:           fx.payment(fx.PaymentToken),
					IdempotencyKey: t.Client().NewKey(),
				}
				first := t.Do(ctx, req)
				if !t.ExpectStatus(first, http.StatusOK) {
					t.FailNow()
				}
				second := t.Do(ctx, req)
				t.Check(invariant.CheckIdempotentReplay(invariant.OpComplete, asResponse(first), asResponse(second)))
			},
		},
	}
}

func errorScenarios(fx Fixtures) []Scenario {
	expectError := func(t *T, resp *client.Response, want ...int) *invariant.ErrorBody {
		if !t.ExpectStatus(resp, want...) {
			return nil
		}
		if !t.Check(invariant.CheckErrorResponse(resp.Exchange.Body)) {
			return nil
		}
		e, err := invariant.ParseError(resp.Exchange.Body)
		if err != nil {
			return nil
		}
		return e
	}

	return []Scenario{
		{
			Name:        "unknown session returns not found",
			File:        SuiteErrors,
			Description: "Retrieving a session that does not exist is a 404 with an error body.",
			Operations:  []string{"get"},
			Run: func(ctx context.Context, t *T) {
				resp := t.Do(ctx, client.Request{
					Method:   http.MethodGet,
					Template: pathSession,
					Params:   map[string]string{"checkout_session_id": "cs_missing_" + t.Client().NewKey()},
				})
				expectError(t, resp, http.StatusNotFound)
			},
		},
		{
			Name:        "invalid request body is rejected",
			File:        SuiteErrors,
			Description: "A creation whose body is not JSON is a 400 with an error body.",
			Operations:  []string{"create"},
			Run: func(ctx context.Context, t *T) {
				resp := t.Do(ctx, client.Request{Method: http.MethodPost, Template: pathSessions, Body: []byte(`{"items": [`)})
				expectError(t, resp, http.StatusBadRequest)
			},
		},
		{
			Name:        "missing items",
			File:        SuiteErrors,
			Description: "A creation without items is a 400 whose param points at items.",
			Operations:  []string{"create"},
			Run: func(ctx context.Context, t *T) {
				resp := t.Do(ctx, client.Request{Method: http.MethodPost, Template: pathSessions, Body: map[string]any{}})
				e := expectError(t, resp, http.StatusBadRequest)
				if e != nil && e.Param != "" && !strings.HasPrefix(e.Param, "$.items") {
					t.Expect("$.param", "$.items", e.Param, "error param must point at the missing field")
				}
			},
		},
		{
			Name:        "out of stock item yields error message",
			File:        SuiteErrors,
			Description: "An out of stock item is either refused or reported with an out_of_stock message.",
			Operations:  []string{"create"},
			Run: func(ctx context.Context, t *T) {
				f := newFlow(ctx, t)
				resp := f.send(invariant.OpCreate, http.MethodPost, pathSessions, fx.items(fx.OutOfStockItemID, 1), "")
				if !isSuccess(resp.Exchange.Status) {
					if e := expectError(t, resp, http.StatusBadRequest); e != nil {
						t.Expect("$.code", string(invariant.CodeOutOfStock), e.Code, "error must name the out of stock condition")
					}
					return
				}
				s := t.Session(resp)
				found := false
				for _, m := range s.Messages {
					if m.Type == invariant.MessageError && m.Code == invariant.CodeOutOfStock {
						found = true
					}
				}
				if !found {
					t.Errorf("session with an out of stock item has no out_of_stock error message")
				}
				t.Expect("$.status", invariant.StatusNotReadyForPayment, s.Status, "session with an out of stock item must not be ready for payment")
				f.verifyHistory()
			},
		},
		{
			Name:        "declined payment",
			File:        SuiteErrors,
			Description: "A declined payment leaves the session open.",
			Operations:  []string{"create", "complete", "get"},
			Run: func(ctx context.Context, t *T) {
				f := newFlow(ctx, t)
				f.readySession(fx)
				resp := f.complete(fx.payment(fx.DeclinedPaymentToken))
				if isSuccess(resp.Exchange.Status) {
					t.Fatalf("completion with declined token %q succeeded", fx.DeclinedPaymentToken)
				}
				if e, err := invariant.ParseError(resp.Exchange.Body); err == nil {
					t.Expect("$.code", string(invariant.CodePaymentDeclined), e.Code, "declined payment must use the payment_declined code")
				}
				s := f.mustSession(f.get())
				if s.Status.Terminal() {
					t.Errorf("session is %s after a declined payment", s.Status)
				}
				f.verifyHistory()
			},
		},
		{
			Name:        "premature completion is rejected",
			File:        SuiteErrors,
			Description: "Completing a session that is not ready for payment is refused.",
			Operations:  []string{"create", "complete"},
			Run: func(ctx context.Context, t *T) {
				f := newFlow(ctx, t)
				s := f.create(fx.items(fx.ItemID, 1))
				if s.Status != invariant.StatusNotReadyForPayment {
					t.SkipNow("target creates sessions ready for payment without an address")
				}
				resp := f.complete(fx.payment(fx.PaymentToken))
				if isSuccess(resp.Exchange.Status) {
					t.Errorf("completion of a session that is %s succeeded", s.Status)
				}
				f.verifyHistory()
			},
		},
		{
			Name:        "unauthorized request rejected",
			File:        SuiteErrors,
			Description: "A request with a wrong credential is a 401.",
			Operations:  []string{"get"},
			Run: func(ctx context.Context, t *T) {
				if !t.Client().Authenticated() {
					t.SkipNow("no API key configured")
				}
				resp := t.Do(ctx, client.Request{
					Method:   http.MethodGet,
					Template: pathSession,
					Params:   map[string]string{"checkout_session_id": "cs_" + t.Client().NewKey()},
					Header:   http.Header{client.HeaderAuthorization: {"Bearer invalid-" + t.Client().NewKey()}},
				})
				expectError(t, resp, http.StatusUnauthorized)
			},
		},
		{
			Name:        "terminal session rejects update, complete and cancel",
			File:        SuiteErrors,
			Description: "No mutation is accepted once a session is completed.",
			Operations:  []string{"create", "complete", "update", "complete", "cancel"},
			Run: func(ctx context.Context, t *T) {
				f := newFlow(ctx, t)
				f.readySession(fx)
				f.mustSession(f.complete(fx.payment(fx.PaymentToken)))
				f.expectRejected(f.update(map[string]any{"buyer": fx.Buyer}))
				f.expectRejected(f.complete(fx.payment(fx.PaymentToken)))
				f.expectRejected(f.cancel())
				f.verifyHistory()
			},
		},
	}
}
