package mockserver

import (
	"github.com/Use-Tusk/checkout-conformance/internal/invariant"
)

type Address struct {
	Name       string `json:"name" validate:"required"`
	LineOne    string `json:"line_one" validate:"required"`
	LineTwo    string `json:"line_two,omitempty"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required"`
	Country    string `json:"country" validate:"required,len=2"`
	PostalCode string `json:"postal_code" validate:"required"`
}

type Buyer struct {
	FirstName   string `json:"first_name" validate:"required"`
	LastName    string `json:"last_name,omitempty"`
	Email       string `json:"email" validate:"required,email"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

type ItemRequest struct {
	ID       string `json:"id" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=1"`
}

type PaymentProvider struct {
	Provider                string   `json:"provider"`
	SupportedPaymentMethods []string `json:"supported_payment_methods"`
}

type PaymentData struct {
	Token          string   `json:"token" validate:"required"`
	Provider       string   `json:"provider" validate:"required"`
	BillingAddress *Address `json:"billing_address,omitempty" validate:"omitempty"`
}

type createRequest struct {
	Buyer              *Buyer        `json:"buyer,omitempty" validate:"omitempty"`
	Items              []ItemRequest `json:"items" validate:"required,min=1,dive"`
	FulfillmentAddress *Address      `json:"fulfillment_address,omitempty" validate:"omitempty"`
}

type updateRequest struct {
	Buyer               *Buyer        `json:"buyer,omitempty" validate:"omitempty"`
	Items               []ItemRequest `json:"items,omitempty" validate:"omitempty,min=1,dive"`
	FulfillmentAddress  *Address      `json:"fulfillment_address,omitempty" validate:"omitempty"`
	FulfillmentOptionID *string       `json:"fulfillment_option_id,omitempty"`
}

type completeRequest struct {
	Buyer       *Buyer       `json:"buyer,omitempty" validate:"omitempty"`
	PaymentData *PaymentData `json:"payment_data" validate:"required"`
}

// session is the wire and storage form of a checkout session.
type session struct {
	ID                  string                        `json:"id"`
	Buyer               *Buyer                        `json:"buyer,omitempty"`
	PaymentProvider     PaymentProvider               `json:"payment_provider"`
	Status              invariant.Status              `json:"status"`
	Currency            string                        `json:"currency"`
	LineItems           []invariant.LineItem          `json:"line_items"`
	FulfillmentAddress  *Address                      `json:"fulfillment_address,omitempty"`
	FulfillmentOptions  []invariant.FulfillmentOption `json:"fulfillment_options"`
	FulfillmentOptionID string                        `json:"fulfillment_option_id,omitempty"`
	Totals              []invariant.Total             `json:"totals"`
	Messages            []invariant.Message           `json:"messages"`
	Links               []invariant.Link              `json:"links"`
	Order               *invariant.Order              `json:"order,omitempty"`

	items []ItemRequest
}

type apiError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}
