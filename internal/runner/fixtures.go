package runner

// Fixtures are the merchant-specific values scenarios need: products that
// exist in the target's catalog and payment tokens its processor accepts.
type Fixtures struct {
	ItemID               string         `json:"item_id" yaml:"item_id" koanf:"item_id"`
	AltItemID            string         `json:"alt_item_id" yaml:"alt_item_id" koanf:"alt_item_id"`
	OutOfStockItemID     string         `json:"out_of_stock_item_id" yaml:"out_of_stock_item_id" koanf:"out_of_stock_item_id"`
	PaymentProvider      string         `json:"payment_provider" yaml:"payment_provider" koanf:"payment_provider"`
	PaymentToken         string         `json:"payment_token" yaml:"payment_token" koanf:"payment_token"`
	DeclinedPaymentToken string         `json:"declined_payment_token" yaml:"declined_payment_token" koanf:"declined_payment_token"`
	AltFulfillmentOption string         `json:"alt_fulfillment_option_id" yaml:"alt_fulfillment_option_id" koanf:"alt_fulfillment_option_id"`
	Address              map[string]any `json:"address" yaml:"address" koanf:"address"`
	Buyer                map[string]any `json:"buyer" yaml:"buyer" koanf:"buyer"`
}

// DefaultFixtures match the bundled mock merchant.
func DefaultFixtures() Fixtures {
	return Fixtures{
		ItemID:               "item_123",
		AltItemID:            "item_456",
		OutOfStockItemID:     "item_oos",
		PaymentProvider:      "stripe",
		PaymentToken:         "tok_visa",
		DeclinedPaymentToken: "tok_decline",
		AltFulfillmentOption: "ship_express",
		Address: map[string]any{
			"name":        "Ada Lovelace",
			"line_one":    "1 Analytical Way",
			"city":        "London",
			"state":       "LDN",
			"country":     "GB",
			"postal_code": "N1 9GU",
		},
		Buyer: map[string]any{
			"first_name": "Ada",
			"last_name":  "Lovelace",
			"email":      "ada@example.com",
		},
	}
}

// WithDefaults fills empty fields from DefaultFixtures.
func (f Fixtures) WithDefaults() Fixtures {
	d := DefaultFixtures()
	if f.ItemID == "" {
		f.ItemID = d.ItemID
	}
	if f.AltItemID == "" {
		f.AltItemID = d.AltItemID
	}
	if f.OutOfStockItemID == "" {
		f.OutOfStockItemID = d.OutOfStockItemID
	}
	if f.PaymentProvider == "" {
		f.PaymentProvider = d.PaymentProvider
	}
	if f.PaymentToken == "" {
		f.PaymentToken = d.PaymentToken
	}
	if f.DeclinedPaymentToken == "" {
		f.DeclinedPaymentToken = d.DeclinedPaymentToken
	}
	if f.AltFulfillmentOption == "" {
		f.AltFulfillmentOption = d.AltFulfillmentOption
	}
	if len(f.Address) == 0 {
		f.Address = d.Address
	}
	if len(f.Buyer) == 0 {
		f.Buyer = d.Buyer
	}
	return f
}

func (f Fixtures) items(id string, qty int) map[string]any {
	return map[string]any{"items": []map[string]any{{"id": id, "quantity": qty}}}
}

func (f Fixtures) payment(token string) map[string]any {
	return map[string]any{"payment_data": map[string]any{"token": token, "provider": f.PaymentProvider}}
}
