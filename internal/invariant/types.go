package invariant

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Amount is a monetary value in minor currency units. It remembers the
// literal it was decoded from so that a fractional wire value is still
// visible to CheckAmounts after decoding. An Amount that was null or absent
// on the wire is not Present.
type Amount struct {
	Minor int64
	raw   string
	set   bool
}

// Minor builds an Amount from an integer number of minor units.
func Minor(v int64) Amount {
	return Amount{Minor: v, set: true}
}

// Present reports whether the value was a JSON number, as opposed to null
// or a missing field.
func (a Amount) Present() bool {
	return a.set
}

// IsInteger reports whether the value was an integer on the wire.
func (a Amount) IsInteger() bool {
	if !a.set {
		return false
	}
	if a.raw == "" {
		return true
	}
	_, err := strconv.ParseInt(a.raw, 10, 64)
	return err == nil
}

func (a Amount) String() string {
	switch {
	case a.raw != "":
		return a.raw
	case !a.set:
		return "null"
	}
	return strconv.FormatInt(a.Minor, 10)
}

// UnmarshalJSON implements json.Unmarshaler. Only bare JSON numbers are
// accepted; a quoted number is an error.
func (a *Amount) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*a = Amount{}
		return nil
	}
	if len(b) == 0 || (b[0] != '-' && (b[0] < '0' || b[0] > '9')) {
		return fmt.Errorf("amount %s: must be a JSON number", string(b))
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("amount %s: %w", string(b), err)
	}
	*a = Amount{raw: n.String(), set: true}
	if i, err := n.Int64(); err == nil {
		a.Minor = i
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("amount %s: %w", string(b), err)
	}
	a.Minor = int64(f)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// TotalType is the kind of a session-level total.
type TotalType string

const (
	TotalItemsBaseAmount TotalType = "items_base_amount"
	TotalItemsDiscount   TotalType = "items_discount"
	TotalSubtotal        TotalType = "subtotal"
	TotalDiscount        TotalType = "discount"
	TotalFulfillment     TotalType = "fulfillment"
	TotalTax             TotalType = "tax"
	TotalFee             TotalType = "fee"
	TotalTotal           TotalType = "total"
)

// RequiredTotalTypes must each appear at least once in a session's totals.
var RequiredTotalTypes = []TotalType{
	TotalItemsBaseAmount,
	TotalItemsDiscount,
	TotalSubtotal,
	TotalDiscount,
	TotalFulfillment,
	TotalTax,
	TotalTotal,
}

type Total struct {
	Type        TotalType `json:"type"`
	DisplayText string    `json:"display_text"`
	Amount      Amount    `json:"amount"`
}

type Item struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

type LineItem struct {
	ID         string `json:"id"`
	Item       Item   `json:"item"`
	BaseAmount Amount `json:"base_amount"`
	Discount   Amount `json:"discount"`
	Subtotal   Amount `json:"subtotal"`
	Tax        Amount `json:"tax"`
	Total      Amount `json:"total"`
}

type FulfillmentOption struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	Carrier  string `json:"carrier,omitempty"`
	Subtotal Amount `json:"subtotal"`
	Tax      Amount `json:"tax"`
	Total    Amount `json:"total"`
}

type MessageType string

const (
	MessageInfo  MessageType = "info"
	MessageError MessageType = "error"
)

type MessageCode string

const (
	CodeMissing         MessageCode = "missing"
	CodeInvalid         MessageCode = "invalid"
	CodeOutOfStock      MessageCode = "out_of_stock"
	CodePaymentDeclined MessageCode = "payment_declined"
	CodeRequiresSignIn  MessageCode = "requires_sign_in"
	CodeRequires3DS     MessageCode = "requires_3ds"
)

type Message struct {
	Type        MessageType `json:"type"`
	Code        MessageCode `json:"code,omitempty"`
	Param       string      `json:"param,omitempty"`
	ContentType string      `json:"content_type"`
	Content     string      `json:"content"`
}

type Link struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type Order struct {
	ID                string `json:"id"`
	CheckoutSessionID string `json:"checkout_session_id"`
	PermalinkURL      string `json:"permalink_url"`
}

// Session is a checkout session as observed through API responses.
type Session struct {
	ID                  string              `json:"id"`
	Status              Status              `json:"status"`
	Currency            string              `json:"currency"`
	LineItems           []LineItem          `json:"line_items"`
	Totals              []Total             `json:"totals"`
	FulfillmentOptions  []FulfillmentOption `json:"fulfillment_options"`
	FulfillmentOptionID string              `json:"fulfillment_option_id,omitempty"`
	Messages            []Message           `json:"messages"`
	Links               []Link              `json:"links"`
	Order               *Order              `json:"order,omitempty"`
}

// ErrorBody is the structured error returned for rejected requests.
type ErrorBody struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

// ParseSession decodes a session response body.
func ParseSession(body []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session: %w", err)
	}
	return &s, nil
}

// ParseError decodes an error response body.
func ParseError(body []byte) (*ErrorBody, error) {
	var e ErrorBody
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("failed to decode error body: %w", err)
	}
	return &e, nil
}

// TotalAmount returns the amount of the first total of type t, and whether
// one was present.
func (s *Session) TotalAmount(t TotalType) (int64, bool) {
	return lookupTotal(s.Totals, t)
}

func lookupTotal(totals []Total, t TotalType) (int64, bool) {
	for _, tot := range totals {
		if TotalType(strings.ToLower(string(tot.Type))) == t {
			return tot.Amount.Minor, true
		}
	}
	return 0, false
}
