package runner

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Use-Tusk/checkout-conformance/internal/client"
	"github.com/Use-Tusk/checkout-conformance/internal/invariant"
)

// Suites, in the order they are listed.
const (
	SuiteSessions    = "sessions"
	SuiteShipping    = "shipping"
	SuiteCompletion  = "completion"
	SuiteCancel      = "cancel"
	SuiteRetrieval   = "retrieval"
	SuiteTotals      = "totals"
	SuiteSchema      = "schema"
	SuiteIdempotency = "idempotency"
	SuiteErrors      = "errors"
	SuiteFlows       = "flows"
)

// Catalogue returns every built-in scenario, parameterized by fx.
func Catalogue(fx Fixtures) []Scenario {
	fx = fx.WithDefaults()
	var all []Scenario
	all = append(all, sessionScenarios(fx)...)
	all = append(all, shippingScenarios(fx)...)
	all = append(all, completionScenarios(fx)...)
	all = append(all, cancelScenarios(fx)...)
	all = append(all, retrievalScenarios(fx)...)
	all = append(all, totalsScenarios(fx)...)
	all = append(all, schemaScenarios(fx)...)
	all = append(all, idempotencyScenarios(fx)...)
	all = append(all, errorScenarios(fx)...)
	all = append(all, flowScenarios(fx)...)
	return all
}

func (fx Fixtures) withAddress(body map[string]any) map[string]any {
	body["fulfillment_address"] = fx.Address
	return body
}

// readySession creates a session with an address and expects it to be
// ready for payment.
func (f *flow) readySession(fx Fixtures) *invariant.Session {
	s := f.create(fx.withAddress(fx.items(fx.ItemID, 1)))
	if s.Status != invariant.StatusReadyForPayment {
		f.t.Fatalf("session created with an address is %s, need %s to continue", s.Status, invariant.StatusReadyForPayment)
	}
	return s
}

// expectRejected records a failure when resp is a server error. Accepted
// mutations are left to verifyHistory.
func (f *flow) expectRejected(resp *client.Response) {
	if resp.Exchange.Status >= http.StatusInternalServerError {
		f.t.Errorf("%s %s failed with %d instead of rejecting the request", resp.Exchange.Method, resp.Exchange.Path, resp.Exchange.Status)
	}
}

func selectedOption(s *invariant.Session) (invariant.FulfillmentOption, bool) {
	for _, o := range s.FulfillmentOptions {
		if o.ID == s.FulfillmentOptionID {
			return o, true
		}
	}
	return invariant.FulfillmentOption{}, false
}

func sessionScenarios(fx Fixtures) []Scenario {
	return []Scenario{
		{
			Name:        "create session without address",
			File:        SuiteSessions,
			Description: "A session without a fulfillment address is created but not ready for payment.",
			Operations:  []string{"create"},
			Run: func(ctx context.Context, t *T) {
				f := newFlow(ctx, t)
				s := f.create(fx.items(fx.ItemID, 1))
				t.Expect("$.status", invariant.StatusNotReadyForPayment, s.Status, "session without address must not be ready for payment")
				if t.Expect("$.line_items.length", 1, len(s.LineItems), "one line item per requested item") {
					t.Expect("$.line_items[0].item.id", fx.ItemID, s.LineItems[0].Item.ID, "line item must reference the requested item")
					t.Expect("$.line_items[0].item.quantity", 1, s.LineItems[0].Item.Quantity, "line item must carry the requested quantity")
				}
				f.verifyHistory()
			},
		},
		{
			Name:        "create session with address",
			File:        SuiteSessions,
			Description: "A session created with a fulfillment address lists fulfillment options.",
			Operations:  []string{"create"},
			Run: func(ctx context.Context, t *T) {
				f := newFlow(ctx, t)
				s := f.create(fx.withAddress(fx.items(fx.ItemID, 1)))
				if len(s.FulfillmentOptions) == 0 {
					t.Errorf("session with a fulfillment address has no fulfillment options")
				}
				if s.FulfillmentOptionID != "" {
					if _, ok := selectedOption(s); !ok {
						t.Errorf("fulfillment_option_id %q is not one of the listed options", s.FulfillmentOptionID)
					}
				}
				f.verifyHistory()
			},
		},
		{
			Name:        "create session with buyer details",
			File:        SuiteSessions,
			Description: "Buyer details sent on creation are returned on the session.",
			Operations:  []string{"create"},
			Run: func(ctx context.Context, t *T) {
				f := newFlow(ctx, t)
				body := fx.items(fx.ItemID, 1)
				body["buyer"] = fx.Buyer
				resp := f.send(invariant.OpCreate, http.MethodPost, pathSessions, body, "")
				if !t.ExpectStatus(resp, http.StatusCreated, http.StatusOK) {
					t.FailNow()
				}
				var got struct {
					Buyer map[string]any `json:"buyer"`
				}
				if err := json.Unmarshal(resp.Exchange.Body, &got); err != nil {
					t.Fatalf("decode buyer: %v", err)
				}
				t.Expect("$.buyer.email", fx.Buyer["email"], got.Buyer["email"], "buyer email must be returned as sent")
				f.verifyHistory()
			},
		},
	}
}

func shippingScenarios(fx Fixtures) []Scenario {
	return []Scenario{
		{
			Name:        "update shipping address adds fulfillment options",
			File:        SuiteShipping,
			Description: "Adding an address to an existing session makes fulfillment options available.",
			Operations:  []string{"create", "update"},
			Run: func(ctx context.Context, t *T) {
				f := newFlow(ctx, t)
				f.create(fx.items(fx.ItemID, 1))
				s := f.mustSession(f.update(map[string]any{"fulfillment_address": fx.Address}))
				if len(s.FulfillmentOptions) == 0 {
					t.Errorf("update with a fulfillment address returned no fulfillment options")
				}
				f.verifyHistory()
			},
		},
		{
			Name:        "select express shipping option",
			File:        SuiteShipping,
			Description: "Selecting a different fulfillment option is reflected in the session and its totals.",
			Operations:  []string{"create", "update"},
			Run: func(ctx context.Context, t *T) {
				f := newFlow(ctx, t)
				f.readySession(fx)
				s := f.mustSession(f.update(map[string]any{"fulfillment_option_id": fx.AltFulfillmentOption}))
				t.Expect("$.fulfillment_option_id", fx.AltFulfillmentOption, s.FulfillmentOptionID, "selected option must be returned")
				if o, ok := selectedOption(s); ok {
					got, _ := s.TotalAmount(invariant.TotalFulfillment)
					t.Expect("$.totals[fulfillment].amount", o.Subtotal.Minor, got, "fulfillment total must match the selected option")
				}
				f.verifyHistory()
			},
		},
	}
}

func completionScenarios(fx Fixtures) []Scenario {
	return []Scenario{
		{
			Name:        "complete order with payment",
			File:        SuiteCompletion,
			Description: "A ready session completes with valid payment data and returns an order.",
			Operations:  []string{"create", "complete"},
			Run: func(ctx context.Context, t *T) {
				f := newFlow(ctx, t)
				created := f.readySession(fx)
				s := f.mustSession(f.complete(fx.payment(fx.PaymentToken)))
				t.Expect("$.status", invariant.StatusCompleted, s.Status, "completed session must report completed")
				if s.Order == nil {
					t.Errorf("completed session has no order")
				} else {
					t.Expect("$.order.checkout_session_id", created.ID, s.Order.CheckoutSessionID, "order must reference the session")
				}
				f.verifyHistory()
			},
		},
		{
			Name:        "completed session exposes order",
			File:        SuiteCompletion,
			Description: "Retrieving a completed session still returns its order.",
			Operations:  []string{"create", "complete", "get"},
			Run: func(ctx context.Context, t *T) {
				f := newFlow(ctx, t)
				f.readySession(fx)
				done := f.mustSession(f.complete(fx.payment(fx.PaymentToken)))
				s := f.mustSession(f.get())
				t.Expect("$.status", invariant.StatusCompleted, s.Status, "completed session must stay completed")
				if s.Order == nil || done.Order == nil {
					t.Errorf("completed session has no order")
				} else {
					t.Expect("$.order.id", done.Order.ID, s.Order.ID, "order id must be stable")
				}
				f.verifyHistory()
			},
		},
	}
}

func cancelScenarios(fx Fixtures) []Scenario {
	return []Scenario{
		{
			Name:        "cancel session",
			File:        SuiteCancel,
			Description: "An open session can be canceled.",
			Operations:  []string{"create", "cancel"},
			Run: func(ctx context.Context, t *T) {
				f := newFlow(ctx, t)
				f.create(fx.items(fx.ItemID, 1))
				s := f.mustSession(f.cancel())
				t.Expect("$.status", invariant.StatusCanceled, s.Status, "canceled session must report canceled")
				f.verifyHistory()
			},
		},
		{
			Name:        "cancel prevents further changes",
			File:        SuiteCancel,
			Description: "Update, complete and cancel are all rejected once a session is canceled.",
			Operations:  []string{"create", "cancel", "update", "complete", "cancel", "get"},
			Run: func(ctx context.Context, t *T) {
				f := newFlow(ctx, t)
				f.readySession(fx)
				f.mustSession(f.cancel())
				f.expectRejected(f.update(map[string]any{"buyer": fx.Buyer}))
				f.expectRejected(f.complete(fx.payment(fx.PaymentToken)))
				f.expectRejected(f.cancel())
				s := f.mustSession(f.get())
				t.Expect("$.status", invariant.StatusCanceled, s.Status, "canceled session must stay canceled")
				f.verifyHistory()
			},
		},
	}
}

func retrievalScenarios(fx Fixtures) []Scenario {
	return []Scenario{
		{
			Name:        "get session returns current state",
			File:        SuiteRetrieval,
			Description: "Retrieving a new session returns the same id, status and totals.",
			Operations:  []string{"create", "get"},
			Run: func(ctx context.Context, t *T) {
				f := newFlow(ctx, t)
				created := f.create(fx.items(fx.ItemID, 1))
				s := f.mustSession(f.get())
				t.Expect("$.id", created.ID, s.ID, "retrieved session id must match")
				t.Expect("$.status", created.Status, s.Status, "retrieved status must match")
				want, _ := created.TotalAmount(invariant.TotalTotal)
				got, _ := s.TotalAmount(invariant.TotalTotal)
				t.Expect("$.totals[total].amount", want, got, "retrieved total must match")
				f.verifyHistory()
			},
		},
		{
			Name:        "get reflects latest state after changes",
			File:        SuiteRetrieval,
			Description: "Retrieving a session after an update returns the updated state.",
			Operations:  []string{"create", "update", "get"},
			Run: func(ctx context.Context, t *T) {
				f := newFlow(ctx, t)
				f.create(fx.items(fx.ItemID, 1))
				updated := f.mustSession(f.update(map[string]any{"fulfillment_address": fx.Address}))
				s := f.mustSession(f.get())
				t.Expect("$.status", updated.Status, s.Status, "retrieved status must match the last update")
				t.Expect("$.fulfillment_option_id", updated.FulfillmentOptionID, s.FulfillmentOptionID, "retrieved option must match the last update")
				f.verifyHistory()
			},
		},
	}
}

func totalsScenarios(fx Fixtures) []Scenario {
	return []Scenario{
		{
			Name:        "totals arithmetic without shipping",
			File:        SuiteTotals,
			Description: "Totals add up and carry no fulfillment cost before an option is selected.",
			Operations:  []string{"create"},
			Run: func(ctx context.Context, t *T) {
				f := newFlow(ctx, t)
				s := f.create(fx.items(fx.ItemID, 2))
				fulfillment, _ := s.TotalAmount(invariant.TotalFulfillment)
				t.Expect("$.totals[fulfillment].amount", int64(0), fulfillment, "no fulfillment cost without a selected option")
				f.verifyHistory()
			},
		},
		{
			Name:        "line item amounts",
			File:        SuiteTotals,
			Description: "Line items add up individually and sum to the item totals.",
			Operations:  []string{"create"},
			Run: func(ctx context.Context, t *T) {
				f := newFlow(ctx, t)
				s := f.create(map[string]any{"items": []map[string]any{
					{"id": fx.ItemID, "quantity": 1},
					{"id": fx.AltItemID, "quantity": 3},
				}})
				if !t.Expect("$.line_items.length", 2, len(s.LineItems), "one line item per requested item") {
					return
				}
				var base, discount int64
				for _, li := range s.LineItems {
					base += li.BaseAmount.Minor
					discount += li.Discount.Minor
				}
				got, _ := s.TotalAmount(invariant.TotalItemsBaseAmount)
				t.Expect("$.totals[items_base_amount].amount", base, got, "items_base_amount must be the sum of line item base amounts")
				got, _ = s.TotalAmount(invariant.TotalItemsDiscount)
				t.Expect("$.totals[items_discount].amount", discount, got, "items_discount must be the sum of line item discounts")
				t.Expect("$.line_items[1].item.quantity", 3, s.LineItems[1].Item.Quantity, "line item must carry the requested quantity")
				f.verifyHistory()
			},
		},
		{
			Name:        "totals include shipping cost",
			File:        SuiteTotals,
			Description: "The fulfillment total equals the selected option's cost.",
			Operations:  []string{"create"},
			Run: func(ctx context.Context, t *T) {
				f := newFlow(ctx, t)
				s := f.readySession(fx)
				o, ok := selectedOption(s)
				if !ok {
					t.Fatalf("ready session has no selected fulfillment option")
				}
				got, _ := s.TotalAmount(invariant.TotalFulfillment)
				t.Expect("$.totals[fulfillment].amount", o.Subtotal.Minor, got, "fulfillment total must match the selected option")
				f.verifyHistory()
			},
		},
	}
}

func schemaScenarios(fx Fixtures) []Scenario {
	return []Scenario{
		{
			Name:        "schema conformance across all operations",
			File:        SuiteSchema,
			Description: "Every operation's responses match the interface description.",
			Operations:  []string{"create", "update", "get", "complete", "cancel"},
			Run: func(ctx context.Context, t *T) {
				f := newFlow(ctx, t)
				f.create(fx.items(fx.ItemID, 1))
				f.mustSession(f.update(map[string]any{"fulfillment_address": fx.Address}))
				f.mustSession(f.get())
				f.mustSession(f.complete(fx.payment(fx.PaymentToken)))
				f.verifyHistory()

				g := newFlow(ctx, t)
				g.create(fx.items(fx.ItemID, 1))
				g.mustSession(g.cancel())
				g.verifyHistory()
			},
		},
	}
}

func flowScenarios(fx Fixtures) []Scenario {
	return []Scenario{
		{
			Name:        "happy path: create, update, complete",
			File:        SuiteFlows,
			Description: "A buyer creates a session, adds an address, picks shipping and pays.",
			Operations:  []string{"create", "update", "update", "complete", "get"},
			Run: func(ctx context.Context, t *T) {
				f := newFlow(ctx, t)
				body := fx.items(fx.ItemID, 1)
				body["buyer"] = fx.Buyer
				f.create(body)
				f.mustSession(f.update(map[string]any{"fulfillment_address": fx.Address}))
				s := f.mustSession(f.update(map[string]any{"fulfillment_option_id": fx.AltFulfillmentOption}))
				t.Expect("$.status", invariant.StatusReadyForPayment, s.Status, "session with address and option must be ready for payment")
				s = f.mustSession(f.complete(fx.payment(fx.PaymentToken)))
				t.Expect("$.status", invariant.StatusCompleted, s.Status, "payment must complete the session")
				s = f.mustSession(f.get())
				t.Expect("$.status", invariant.StatusCompleted, s.Status, "completed session must stay completed")
				f.verifyHistory()
			},
		},
		{
			Name:        "happy path: create then cancel",
			File:        SuiteFlows,
			Description: "A buyer creates a session and abandons it.",
			Operations:  []string{"create", "cancel", "get"},
			Run: func(ctx context.Context, t *T) {
				f := newFlow(ctx, t)
				f.create(fx.items(fx.ItemID, 1))
				f.mustSession(f.cancel())
				s := f.mustSession(f.get())
				t.Expect("$.status", invariant.StatusCanceled, s.Status, "canceled session must stay canceled")
				f.verifyHistory()
			},
		},
	}
}
