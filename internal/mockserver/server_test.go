package mockserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Use-Tusk/checkout-conformance/internal/client"
	"github.com/Use-Tusk/checkout-conformance/internal/invariant"
	"github.com/Use-Tusk/checkout-conformance/internal/schema"
)

const sessionPath = "/checkout_sessions/{checkout_session_id}"

var address = map[string]any{
	"name":        "Ada Lovelace",
	"line_one":    "1 Analytical Way",
	"city":        "London",
	"state":       "LDN",
	"country":     "GB",
	"postal_code": "N1 9GU",
}

type harness struct {
	t       *testing.T
	client  *client.Client
	checker *schema.Checker
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := httptest.NewServer(New(opts).Handler())
	t.Cleanup(srv.Close)

	desc, err := schema.Default()
	require.NoError(t, err)

	return &harness{
		t:       t,
		client:  client.New(srv.URL, client.WithAPIKey(opts.APIKey), client.WithHTTPClient(srv.Client())),
		checker: schema.NewChecker(desc),
	}
}

// do sends req and asserts the exchange conforms to the interface
// description.
func (h *harness) do(req client.Request) *client.Response {
	h.t.Helper()
	resp, err := h.client.Do(context.Background(), req)
	require.NoError(h.t, err)
	if d := h.checker.Check(resp.Exchange); d != nil {
		h.t.Errorf("non-conforming exchange: %v", d)
	}
	return resp
}

func (h *harness) create(body any, key string) *client.Response {
	return h.do(client.Request{Method: http.MethodPost, Template: "/checkout_sessions", Body: body, IdempotencyKey: key})
}

func (h *harness) on(template, id string, body any) *client.Response {
	return h.do(client.Request{
		Method:   http.MethodPost,
		Template: template,
		Params:   map[string]string{"checkout_session_id": id},
		Body:     body,
	})
}

func decodeSession(t *testing.T, resp *client.Response) *invariant.Session {
	t.Helper()
	s, err := invariant.ParseSession(resp.Exchange.Body)
	require.NoError(t, err)
	return s
}

func oneItem() map[string]any {
	return map[string]any{"items": []map[string]any{{"id": "item_123", "quantity": 1}}}
}

func TestCreateWithoutAddress(t *testing.T) {
	h := newHarness(t, Options{})

	resp := h.create(oneItem(), "")
	require.Equal(t, http.StatusCreated, resp.Exchange.Status)

	s := decodeSession(t, resp)
	assert.Equal(t, invariant.StatusNotReadyForPayment, s.Status)
	assert.Empty(t, invariant.CheckSession(s))

	total, ok := s.TotalAmount(invariant.TotalTotal)
	require.True(t, ok)
	assert.Equal(t, int64(1210), total)
	tax, _ := s.TotalAmount(invariant.TotalTax)
	assert.Equal(t, int64(110), tax)
	assert.Empty(t, s.FulfillmentOptions)
}

func TestCreateWithAddressIsReady(t *testing.T) {
	h := newHarness(t, Options{})

	body := oneItem()
	body["fulfillment_address"] = address
	s := decodeSession(t, h.create(body, ""))

	assert.Equal(t, invariant.StatusReadyForPayment, s.Status)
	assert.Equal(t, "ship_standard", s.FulfillmentOptionID)
	assert.Len(t, s.FulfillmentOptions, 2)
	assert.Empty(t, invariant.CheckSession(s))

	total, _ := s.TotalAmount(invariant.TotalTotal)
	assert.Equal(t, int64(1100+500+110+50), total)
}

func TestFullFlow(t *testing.T) {
	h := newHarness(t, Options{APIKey: "sk_test"})

	created := decodeSession(t, h.create(oneItem(), ""))

	updated := h.on(sessionPath, created.ID, map[string]any{"fulfillment_address": address, "fulfillment_option_id": "ship_express"})
	require.Equal(t, http.StatusOK, updated.Exchange.Status)
	u := decodeSession(t, updated)
	assert.Equal(t, invariant.StatusReadyForPayment, u.Status)
	fulfillment, _ := u.TotalAmount(invariant.TotalFulfillment)
	assert.Equal(t, int64(1500), fulfillment)

	completed := h.on(sessionPath+"/complete", created.ID, map[string]any{
		"payment_data": map[string]any{"token": "tok_visa", "provider": "stripe"},
	})
	require.Equal(t, http.StatusOK, completed.Exchange.Status)
	c := decodeSession(t, completed)
	assert.Equal(t, invariant.StatusCompleted, c.Status)
	require.NotNil(t, c.Order)
	assert.Equal(t, created.ID, c.Order.CheckoutSessionID)

	assert.Empty(t, invariant.CheckHistory([]invariant.Step{
		{Op: invariant.OpCreate, Accepted: true, Status: created.Status},
		{Op: invariant.OpUpdate, Accepted: true, Status: u.Status},
		{Op: invariant.OpComplete, Accepted: true, Status: c.Status},
	}))

	cancel := h.on(sessionPath+"/cancel", created.ID, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, cancel.Exchange.Status)
	assert.Empty(t, invariant.CheckErrorResponse(cancel.Exchange.Body))

	got := h.do(client.Request{Method: http.MethodGet, Template: sessionPath, Params: map[string]string{"checkout_session_id": created.ID}})
	assert.Equal(t, invariant.StatusCompleted, decodeSession(t, got).Status)
}

func TestAuthRequired(t *testing.T) {
	h := newHarness(t, Options{APIKey: "sk_test"})

	resp := h.do(client.Request{
		Method:   http.MethodPost,
		Template: "/checkout_sessions",
		Body:     oneItem(),
		Header:   http.Header{client.HeaderAuthorization: {"Bearer wrong"}},
	})
	assert.Equal(t, http.StatusUnauthorized, resp.Exchange.Status)
	assert.Empty(t, invariant.CheckErrorResponse(resp.Exchange.Body))
}

func TestValidationErrors(t *testing.T) {
	h := newHarness(t, Options{})

	resp := h.create(map[string]any{"items": []any{}}, "")
	assert.Equal(t, http.StatusBadRequest, resp.Exchange.Status)
	e, err := invariant.ParseError(resp.Exchange.Body)
	require.NoError(t, err)
	assert.Equal(t, "$.items", e.Param)

	resp = h.create(map[string]any{"items": []map[string]any{{"id": "item_123", "quantity": 0}}}, "")
	e, err = invariant.ParseError(resp.Exchange.Body)
	require.NoError(t, err)
	assert.Equal(t, "$.items[0].quantity", e.Param)
	assert.Equal(t, "invalid", e.Code)

	resp = h.create(map[string]any{"items": []map[string]any{{"id": "nope", "quantity": 1}}}, "")
	e, err = invariant.ParseError(resp.Exchange.Body)
	require.NoError(t, err)
	assert.Equal(t, "$.items[0].id", e.Param)

	resp = h.create([]byte(`{"items":`), "")
	assert.Equal(t, http.StatusBadRequest, resp.Exchange.Status)
	assert.Empty(t, invariant.CheckErrorResponse(resp.Exchange.Body))
}

func TestOutOfStockMessage(t *testing.T) {
	h := newHarness(t, Options{})

	body := map[string]any{
		"items":               []map[string]any{{"id": "item_123", "quantity": 1}, {"id": "item_oos", "quantity": 1}},
		"fulfillment_address": address,
	}
	s := decodeSession(t, h.create(body, ""))
	assert.Equal(t, invariant.StatusNotReadyForPayment, s.Status)
	require.Len(t, s.Messages, 1)
	assert.Equal(t, invariant.CodeOutOfStock, s.Messages[0].Code)
	assert.Equal(t, "$.line_items[1]", s.Messages[0].Param)
	assert.Empty(t, invariant.CheckMessages(s.Messages))
}

func TestNotFound(t *testing.T) {
	h := newHarness(t, Options{})

	resp := h.do(client.Request{Method: http.MethodGet, Template: sessionPath, Params: map[string]string{"checkout_session_id": "cs_missing"}})
	assert.Equal(t, http.StatusNotFound, resp.Exchange.Status)
	assert.Empty(t, invariant.CheckErrorResponse(resp.Exchange.Body))
}

func TestIdempotentReplayAndConflict(t *testing.T) {
	h := newHarness(t, Options{})

	first := h.create(oneItem(), "key-1")
	replay := h.create([]byte(`{ "items" : [ { "quantity": 1, "id": "item_123" } ] }`), "key-1")

	assert.Empty(t, invariant.CheckIdempotentReplay(invariant.OpCreate,
		invariant.Response{Status: first.Exchange.Status, Body: first.Exchange.Body},
		invariant.Response{Status: replay.Exchange.Status, Body: replay.Exchange.Body}))
	assert.Equal(t, "true", replay.Header(HeaderReplayed))
	assert.Nil(t, invariant.CheckIdempotencyKeyEcho("key-1", replay.Header(client.HeaderIdempotencyKey)))

	conflict := h.create(map[string]any{"items": []map[string]any{{"id": "item_123", "quantity": 2}}}, "key-1")
	assert.Empty(t, invariant.CheckIdempotencyConflict(invariant.Response{Status: conflict.Exchange.Status, Body: conflict.Exchange.Body}))

	other := h.create(oneItem(), "key-2")
	assert.NotEqual(t, decodeSession(t, first).ID, decodeSession(t, other).ID)
}

func TestFaults(t *testing.T) {
	t.Run("wrong total", func(t *testing.T) {
		h := newHarness(t, Options{Faults: Faults{WrongTotal: true}})
		s := decodeSession(t, h.create(oneItem(), ""))
		vs := invariant.CheckTotalsFormula(s.Totals)
		require.Len(t, vs, 1)
		assert.Equal(t, int64(1210), vs[0].Expected)
		assert.Equal(t, int64(1200), vs[0].Actual)
	})

	t.Run("accept terminal mutations", func(t *testing.T) {
		h := newHarness(t, Options{Faults: Faults{AcceptTerminalMutations: true}})
		s := decodeSession(t, h.create(oneItem(), ""))
		assert.Equal(t, http.StatusOK, h.on(sessionPath+"/cancel", s.ID, nil).Exchange.Status)
		again := h.on(sessionPath, s.ID, oneItem())
		assert.Equal(t, http.StatusOK, again.Exchange.Status)
		assert.NotNil(t, invariant.CheckTransition(invariant.StatusCanceled, invariant.Step{
			Op: invariant.OpUpdate, Accepted: true, Status: decodeSession(t, again).Status,
		}))
	})

	t.Run("ignore idempotency body", func(t *testing.T) {
		h := newHarness(t, Options{Faults: Faults{IgnoreIdempotencyBody: true}})
		h.create(oneItem(), "k")
		second := h.create(map[string]any{"items": []map[string]any{{"id": "item_456", "quantity": 1}}}, "k")
		assert.NotEmpty(t, invariant.CheckIdempotencyConflict(invariant.Response{Status: second.Exchange.Status, Body: second.Exchange.Body}))
	})

	t.Run("drop key echo", func(t *testing.T) {
		h := newHarness(t, Options{Faults: Faults{DropKeyEcho: true}})
		resp := h.create(oneItem(), "k")
		assert.NotNil(t, invariant.CheckIdempotencyKeyEcho("k", resp.Header(client.HeaderIdempotencyKey)))
	})
}

func TestPaymentDeclined(t *testing.T) {
	h := newHarness(t, Options{})
	body := oneItem()
	body["fulfillment_address"] = address
	s := decodeSession(t, h.create(body, ""))

	resp := h.on(sessionPath+"/complete", s.ID, map[string]any{
		"payment_data": map[string]any{"token": "tok_decline", "provider": "stripe"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.Exchange.Status)
	e, err := invariant.ParseError(resp.Exchange.Body)
	require.NoError(t, err)
	assert.Equal(t, string(invariant.CodePaymentDeclined), e.Code)
}

func TestStateOnlyMovesForward(t *testing.T) {
	h := newHarness(t, Options{})

	notReady := decodeSession(t, h.create(oneItem(), ""))
	require.Equal(t, invariant.StatusNotReadyForPayment, notReady.Status)
	premature := h.on(sessionPath+"/complete", notReady.ID, map[string]any{
		"payment_data": map[string]any{"token": "tok_ok", "provider": "stripe"},
	})
	assert.Equal(t, http.StatusBadRequest, premature.Exchange.Status)
	assert.Empty(t, invariant.CheckErrorResponse(premature.Exchange.Body))

	body := oneItem()
	body["fulfillment_address"] = address
	ready := decodeSession(t, h.create(body, ""))
	require.Equal(t, invariant.StatusReadyForPayment, ready.Status)

	regress := h.on(sessionPath, ready.ID, map[string]any{
		"items": []map[string]any{{"id": "item_123", "quantity": 1}, {"id": "item_oos", "quantity": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, regress.Exchange.Status)
	e, err := invariant.ParseError(regress.Exchange.Body)
	require.NoError(t, err)
	assert.Equal(t, "$.line_items[1]", e.Param)

	after := decodeSession(t, h.do(client.Request{Method: http.MethodGet, Template: sessionPath, Params: map[string]string{"checkout_session_id": ready.ID}}))
	assert.Equal(t, invariant.StatusReadyForPayment, after.Status)
	assert.Len(t, after.LineItems, 1)
}
