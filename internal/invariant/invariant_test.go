package invariant

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func referenceTotals() []Total {
	return []Total{
		{Type: TotalItemsBaseAmount, DisplayText: "Item(s) total", Amount: Minor(1100)},
		{Type: TotalItemsDiscount, DisplayText: "Item(s) discount", Amount: Minor(0)},
		{Type: TotalSubtotal, DisplayText: "Subtotal", Amount: Minor(1100)},
		{Type: TotalDiscount, DisplayText: "Discount", Amount: Minor(0)},
		{Type: TotalFulfillment, DisplayText: "Shipping", Amount: Minor(0)},
		{Type: TotalTax, DisplayText: "Tax", Amount: Minor(110)},
		{Type: TotalTotal, DisplayText: "Total", Amount: Minor(1210)},
	}
}

const referenceSession = `{
  "id": "cs_1",
  "status": "not_ready_for_payment",
  "currency": "usd",
  "line_items": [
    {"id": "li_1", "item": {"id": "item_123", "quantity": 1}, "base_amount": 1100, "discount": 0, "subtotal": 1100, "tax": 110, "total": 1210}
  ],
  "totals": [
    {"type": "items_base_amount", "display_text": "Item(s) total", "amount": 1100},
    {"type": "items_discount", "display_text": "Item(s) discount", "amount": 0},
    {"type": "subtotal", "display_text": "Subtotal", "amount": 1100},
    {"type": "discount", "display_text": "Discount", "amount": 0},
    {"type": "fulfillment", "display_text": "Shipping", "amount": 0},
    {"type": "tax", "display_text": "Tax", "amount": 110},
    {"type": "total", "display_text": "Total", "amount": 1210}
  ],
  "messages": [],
  "links": []
}`

func TestCheckTotalsFormulaReference(t *testing.T) {
	assert.Empty(t, CheckTotalsFormula(referenceTotals()))
}

func TestCheckTotalsFormulaReportsExpectedAndActual(t *testing.T) {
	totals := referenceTotals()
	totals[6].Amount = Minor(1200)

	vs := CheckTotalsFormula(totals)
	require.Len(t, vs, 1)
	assert.Equal(t, RuleTotalFormula, vs[0].Rule)
	assert.Equal(t, int64(1210), vs[0].Expected)
	assert.Equal(t, int64(1200), vs[0].Actual)
	assert.Equal(t, "$.totals[6].amount", vs[0].Path)
	assert.Contains(t, vs[0].Error(), "expected 1210, actual 1200")
}

func TestCheckTotalsFormulaSubtotal(t *testing.T) {
	totals := referenceTotals()
	totals[1].Amount = Minor(100)

	vs := CheckTotalsFormula(totals)
	require.Len(t, vs, 1)
	assert.Equal(t, RuleSubtotalFormula, vs[0].Rule)
	assert.Equal(t, int64(1000), vs[0].Expected)
	assert.Equal(t, int64(1100), vs[0].Actual)
}

func TestCheckTotalsFormulaCountsFeeAndTreatsMissingAsZero(t *testing.T) {
	totals := append(referenceTotals(), Total{Type: TotalFee, Amount: Minor(50)})
	vs := CheckTotalsFormula(totals)
	require.Len(t, vs, 1)
	assert.Equal(t, int64(1260), vs[0].Expected)

	totals[6].Amount = Minor(1260)
	assert.Empty(t, CheckTotalsFormula(totals))

	// no fulfillment and no fee at all
	partial := []Total{
		{Type: TotalItemsBaseAmount, Amount: Minor(500)},
		{Type: TotalSubtotal, Amount: Minor(500)},
		{Type: TotalTotal, Amount: Minor(500)},
	}
	assert.Empty(t, CheckTotalsFormula(partial))
}

func TestCheckRequiredTotals(t *testing.T) {
	assert.Empty(t, CheckRequiredTotals(referenceTotals()))

	totals := referenceTotals()
	totals = append(totals[:4], totals[5:]...) // drop fulfillment
	vs := CheckRequiredTotals(totals)
	require.Len(t, vs, 1)
	assert.Equal(t, RuleRequiredTotal, vs[0].Rule)
	assert.Equal(t, "fulfillment", vs[0].Expected)

	assert.Len(t, CheckRequiredTotals(nil), len(RequiredTotalTypes))
}

func TestCheckLineItems(t *testing.T) {
	good := LineItem{ID: "li_1", BaseAmount: Minor(1100), Discount: Minor(100), Subtotal: Minor(1000), Tax: Minor(100), Total: Minor(1100)}
	assert.Empty(t, CheckLineItems([]LineItem{good}))

	bad := good
	bad.Subtotal = Minor(1100)
	bad.Total = Minor(1300)
	vs := CheckLineItems([]LineItem{good, bad})
	require.Len(t, vs, 2)
	assert.Equal(t, RuleLineItemSubtotal, vs[0].Rule)
	assert.Equal(t, "$.line_items[1].subtotal", vs[0].Path)
	assert.Equal(t, int64(1000), vs[0].Expected)
	assert.Equal(t, RuleLineItemTotal, vs[1].Rule)
	assert.Equal(t, int64(1200), vs[1].Expected)
	assert.Equal(t, int64(1300), vs[1].Actual)
}

func TestCheckAmountsCatchesFractionalAndNegative(t *testing.T) {
	var s Session
	require.NoError(t, json.Unmarshal([]byte(`{
	  "line_items": [{"id": "li", "base_amount": 10.5, "discount": 0, "subtotal": 10, "tax": -1, "total": 9}],
	  "totals": [{"type": "total", "amount": 9}, {"type": "tax", "amount": -0.5}]
	}`), &s))

	vs := CheckAmounts(s.Totals, s.LineItems)
	rules := map[string]Rule{}
	for _, v := range vs {
		rules[v.Path+"/"+string(v.Rule)] = v.Rule
	}
	assert.Contains(t, rules, "$.line_items[0].base_amount/integer_amount")
	assert.Contains(t, rules, "$.line_items[0].tax/non_negative_amount")
	assert.Contains(t, rules, "$.totals[1].amount/integer_amount")
	assert.Contains(t, rules, "$.totals[1].amount/non_negative_amount")
	assert.Len(t, vs, 4)
}

func TestAmountRoundTrip(t *testing.T) {
	var a Amount
	require.NoError(t, json.Unmarshal([]byte(`1210`), &a))
	assert.Equal(t, int64(1210), a.Minor)
	assert.True(t, a.IsInteger())

	out, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Equal(t, "1210", string(out))

	require.NoError(t, json.Unmarshal([]byte(`12.5`), &a))
	assert.False(t, a.IsInteger())
	assert.Equal(t, "12.5", a.String())

	assert.Error(t, json.Unmarshal([]byte(`"twelve"`), &a))
	assert.Error(t, json.Unmarshal([]byte(`"1210"`), &a))
	assert.Error(t, json.Unmarshal([]byte(`true`), &a))

	require.NoError(t, json.Unmarshal([]byte(`null`), &a))
	assert.False(t, a.Present())
	assert.True(t, Minor(0).Present())
}

func TestCheckAmountsFlagsNullAndMissing(t *testing.T) {
	var s Session
	require.NoError(t, json.Unmarshal([]byte(`{
	  "line_items": [{"id": "li", "base_amount": 100, "discount": null, "subtotal": 100, "tax": 0, "total": 100}],
	  "totals": [{"type": "total"}]
	}`), &s))

	vs := CheckAmounts(s.Totals, s.LineItems)
	require.Len(t, vs, 2)
	assert.Equal(t, RuleIntegerAmount, vs[0].Rule)
	assert.Equal(t, "$.totals[0].amount", vs[0].Path)
	assert.Equal(t, RuleIntegerAmount, vs[1].Rule)
	assert.Equal(t, "$.line_items[0].discount", vs[1].Path)

	var quoted Session
	assert.Error(t, json.Unmarshal([]byte(`{"totals": [{"type": "total", "amount": "1210"}]}`), &quoted))
}

func TestCheckCurrency(t *testing.T) {
	for _, c := range []string{"usd", "eur", "jpy"} {
		assert.Nil(t, CheckCurrency(c), c)
	}
	for _, c := range []string{"USD", "us", "usdd", "", "u$d"} {
		v := CheckCurrency(c)
		require.NotNil(t, v, c)
		assert.Equal(t, RuleCurrencyFormat, v.Rule)
		assert.Equal(t, c, v.Actual)
	}
}

func TestTransitionTable(t *testing.T) {
	assert.ElementsMatch(t, []Status{StatusNotReadyForPayment, StatusReadyForPayment}, Transition(StatusNotReadyForPayment, OpUpdate))
	assert.Equal(t, []Status{StatusReadyForPayment}, Transition(StatusReadyForPayment, OpUpdate))
	assert.Empty(t, Transition(StatusNotReadyForPayment, OpComplete))
	assert.Equal(t, []Status{StatusCompleted}, Transition(StatusReadyForPayment, OpComplete))
	assert.Equal(t, []Status{StatusCanceled}, Transition(StatusNotReadyForPayment, OpCancel))

	for _, terminal := range []Status{StatusCompleted, StatusCanceled} {
		for _, op := range []Operation{OpUpdate, OpComplete, OpCancel} {
			assert.Empty(t, Transition(terminal, op), "%s from %s", op, terminal)
		}
		assert.Equal(t, []Status{terminal}, Transition(terminal, OpGet))
	}
}

func TestCheckTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		step Step
		rule Rule
	}{
		{"update to ready", StatusNotReadyForPayment, Step{OpUpdate, true, StatusReadyForPayment}, ""},
		{"complete from ready", StatusReadyForPayment, Step{OpComplete, true, StatusCompleted}, ""},
		{"cancel from not ready", StatusNotReadyForPayment, Step{OpCancel, true, StatusCanceled}, ""},
		{"get after completion", StatusCompleted, Step{OpGet, true, StatusCompleted}, ""},
		{"rejected update after cancel", StatusCanceled, Step{OpUpdate, false, ""}, ""},
		{"accepted update after cancel", StatusCanceled, Step{OpUpdate, true, StatusCanceled}, RuleIllegalTransition},
		{"accepted complete after completion", StatusCompleted, Step{OpComplete, true, StatusCompleted}, RuleIllegalTransition},
		{"get changes status", StatusCompleted, Step{OpGet, true, StatusReadyForPayment}, RuleIllegalTransition},
		{"complete lands on canceled", StatusReadyForPayment, Step{OpComplete, true, StatusCanceled}, RuleIllegalTransition},
		{"unknown status", StatusReadyForPayment, Step{OpUpdate, true, "pending"}, RuleUnknownStatus},
		{"create", "", Step{OpCreate, true, StatusNotReadyForPayment}, ""},
		{"complete from not ready", StatusNotReadyForPayment, Step{OpComplete, true, StatusCompleted}, RuleIllegalTransition},
		{"rejected complete from not ready", StatusNotReadyForPayment, Step{OpComplete, false, ""}, ""},
		{"update back to not ready", StatusReadyForPayment, Step{OpUpdate, true, StatusNotReadyForPayment}, RuleIllegalTransition},
		{"update stays ready", StatusReadyForPayment, Step{OpUpdate, true, StatusReadyForPayment}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := CheckTransition(tt.from, tt.step)
			if tt.rule == "" {
				assert.Nil(t, v)
				return
			}
			require.NotNil(t, v)
			assert.Equal(t, tt.rule, v.Rule)
		})
	}
}

func TestCheckHistory(t *testing.T) {
	steps := []Step{
		{OpCreate, true, StatusNotReadyForPayment},
		{OpUpdate, true, StatusReadyForPayment},
		{OpComplete, true, StatusCompleted},
		{OpCancel, false, ""},
		{OpGet, true, StatusCompleted},
	}
	assert.Empty(t, CheckHistory(steps))

	steps = append(steps, Step{OpUpdate, true, StatusReadyForPayment})
	vs := CheckHistory(steps)
	require.Len(t, vs, 1)
	assert.Equal(t, RuleIllegalTransition, vs[0].Rule)
	assert.Contains(t, vs[0].Message, "step 5")
}

func sessionResponse(t *testing.T, mutate func(m map[string]any)) Response {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(referenceSession), &m))
	if mutate != nil {
		mutate(m)
	}
	b, err := json.Marshal(m)
	require.NoError(t, err)
	return Response{Status: http.StatusCreated, Body: b}
}

func TestCheckIdempotentReplay(t *testing.T) {
	first := sessionResponse(t, nil)
	assert.Empty(t, CheckIdempotentReplay(OpCreate, first, sessionResponse(t, nil)))

	otherID := sessionResponse(t, func(m map[string]any) { m["id"] = "cs_2" })
	vs := CheckIdempotentReplay(OpCreate, first, otherID)
	require.Len(t, vs, 1)
	assert.Equal(t, "$.id", vs[0].Path)
	assert.Equal(t, "cs_1", vs[0].Expected)
	assert.Equal(t, "cs_2", vs[0].Actual)

	otherTotal := sessionResponse(t, func(m map[string]any) {
		m["totals"].([]any)[6].(map[string]any)["amount"] = 1300
	})
	vs = CheckIdempotentReplay(OpCreate, first, otherTotal)
	require.Len(t, vs, 1)
	assert.Equal(t, RuleIdempotentReplay, vs[0].Rule)
	assert.Equal(t, int64(1210), vs[0].Expected)
	assert.Equal(t, int64(1300), vs[0].Actual)

	// totals are only compared for creation
	assert.Empty(t, CheckIdempotentReplay(OpComplete, first, otherTotal))

	otherStatus := first
	otherStatus.Status = http.StatusOK
	vs = CheckIdempotentReplay(OpCreate, first, otherStatus)
	require.Len(t, vs, 1)
	assert.Equal(t, http.StatusCreated, vs[0].Expected)
}

func TestCheckIdempotencyConflict(t *testing.T) {
	ok := Response{Status: http.StatusConflict, Body: []byte(`{"type":"invalid_request","code":"idempotency_conflict","message":"key reused"}`)}
	assert.Empty(t, CheckIdempotencyConflict(ok))

	silent := Response{Status: http.StatusCreated, Body: []byte(referenceSession)}
	vs := CheckIdempotencyConflict(silent)
	require.Len(t, vs, 1)
	assert.Equal(t, http.StatusConflict, vs[0].Expected)
	assert.Equal(t, http.StatusCreated, vs[0].Actual)
	assert.Contains(t, vs[0].Message, "silently succeeded")

	wrongCode := Response{Status: http.StatusConflict, Body: []byte(`{"type":"invalid_request","code":"conflict","message":"x"}`)}
	vs = CheckIdempotencyConflict(wrongCode)
	require.Len(t, vs, 1)
	assert.Equal(t, "$.code", vs[0].Path)
}

func TestSameRequestIgnoresOrderAndWhitespace(t *testing.T) {
	same, err := SameRequest(
		[]byte(`{"items":[{"id":"item_123","quantity":1}],"buyer":{"first_name":"Ada"}}`),
		[]byte("{ \"buyer\": {\"first_name\": \"Ada\"},\n  \"items\": [ {\"quantity\": 1, \"id\": \"item_123\"} ] }"),
	)
	require.NoError(t, err)
	assert.True(t, same)

	same, err = SameRequest([]byte(`{"items":[{"id":"item_123","quantity":1}]}`), []byte(`{"items":[{"id":"item_123","quantity":2}]}`))
	require.NoError(t, err)
	assert.False(t, same)

	_, err = SameRequest([]byte(`{`), []byte(`{}`))
	assert.Error(t, err)
}

func TestCheckIdempotencyKeyEcho(t *testing.T) {
	assert.Nil(t, CheckIdempotencyKeyEcho("key-1", "key-1"))
	v := CheckIdempotencyKeyEcho("key-1", "")
	require.NotNil(t, v)
	assert.Equal(t, RuleIdempotencyKeyEcho, v.Rule)
}

func TestCheckMessages(t *testing.T) {
	msgs := []Message{
		{Type: MessageInfo, ContentType: "plain", Content: "Free shipping over $50"},
		{Type: MessageError, Code: CodeOutOfStock, Param: "$.line_items[0]", ContentType: "markdown", Content: "**Out of stock**"},
	}
	assert.Empty(t, CheckMessages(msgs))

	bad := []Message{
		{Type: MessageError, Code: CodeInvalid, Param: "line_items.0", ContentType: "html", Content: " "},
		{Type: MessageInfo, Code: CodeMissing, ContentType: "plain", Content: "x"},
	}
	vs := CheckMessages(bad)
	var paths []string
	for _, v := range vs {
		assert.Equal(t, RuleMessageStructure, v.Rule)
		paths = append(paths, v.Path)
	}
	assert.Equal(t, []string{
		"$.messages[0].content_type",
		"$.messages[0].content",
		"$.messages[0].param",
		"$.messages[1].code",
	}, paths)
}

func TestCheckMessagesParamAndCode(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		path string
	}{
		{
			name: "uncoded error with bare param",
			msg:  Message{Type: MessageError, Param: "line_items[0]", ContentType: "plain", Content: "Bad item"},
			path: "$.messages[0].param",
		},
		{
			name: "info with bare param",
			msg:  Message{Type: MessageInfo, Param: "foo", ContentType: "plain", Content: "Note"},
			path: "$.messages[0].param",
		},
		{
			name: "unknown error code",
			msg:  Message{Type: MessageError, Code: "bogus_code", ContentType: "plain", Content: "Bad"},
			path: "$.messages[0].code",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vs := CheckMessages([]Message{tt.msg})
			require.Len(t, vs, 1)
			assert.Equal(t, RuleMessageStructure, vs[0].Rule)
			assert.Equal(t, tt.path, vs[0].Path)
		})
	}

	ok := []Message{
		{Type: MessageInfo, Param: "$.fulfillment", ContentType: "plain", Content: "Ships tomorrow"},
		{Type: MessageError, Code: CodeRequires3DS, ContentType: "plain", Content: "Authenticate"},
	}
	assert.Empty(t, CheckMessages(ok))
}

func TestValidJSONPath(t *testing.T) {
	for _, p := range []string{"$", "$.items", "$.line_items[0].item.id", "$['weird key']"} {
		assert.True(t, ValidJSONPath(p), p)
	}
	for _, p := range []string{"", "items", "$..", "$.items[", "$.1abc"} {
		assert.False(t, ValidJSONPath(p), p)
	}
}

func TestCheckErrorResponse(t *testing.T) {
	assert.Empty(t, CheckErrorResponse([]byte(`{"type":"invalid_request","code":"not_found","message":"no such session"}`)))

	vs := CheckErrorResponse([]byte(`{"type":"oops","code":"","message":"","param":"bad"}`))
	assert.Len(t, vs, 4)
	assert.True(t, vs.Has(RuleErrorResponse))

	vs = CheckErrorResponse([]byte(`not json`))
	require.Len(t, vs, 1)
	assert.Equal(t, "$", vs[0].Path)
}

func TestCheckSession(t *testing.T) {
	s, err := ParseSession([]byte(referenceSession))
	require.NoError(t, err)
	assert.Empty(t, CheckSession(s))

	s.Currency = "USD"
	s.Totals[6].Amount = Minor(1200)
	s.Status = "open"
	vs := CheckSession(s)
	assert.Equal(t, []Rule{RuleUnknownStatus, RuleCurrencyFormat, RuleTotalFormula}, vs.Rules())
	assert.Error(t, vs.Err())
	assert.NoError(t, Violations(nil).Err())
}
