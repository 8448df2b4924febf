package mockserver

import (
	"fmt"

	"github.com/Use-Tusk/checkout-conformance/internal/invariant"
)

// Product is a catalog entry. Prices are in minor units.
type Product struct {
	ID      string
	Title   string
	Price   int64
	InStock bool
}

// DefaultCatalog is the product list the mock merchant sells.
var DefaultCatalog = []Product{
	{ID: "item_123", Title: "Lunar Desk Lamp", Price: 1100, InStock: true},
	{ID: "item_456", Title: "Walnut Notebook", Price: 2500, InStock: true},
	{ID: "item_oos", Title: "Sold Out Poster", Price: 900, InStock: false},
}

// taxRate is applied to item subtotals and shipping, in percent.
const taxRate = 10

var shippingOptions = []struct {
	id, title, subtitle, carrier string
	price                        int64
}{
	{"ship_standard", "Standard", "5-7 business days", "USPS", 500},
	{"ship_express", "Express", "1-2 business days", "UPS", 1500},
}

func tax(amount int64) int64 {
	return amount * taxRate / 100
}

func (s *Server) product(id string) (Product, bool) {
	for _, p := range s.catalog {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

// price rebuilds line items, fulfillment options, totals, messages and the
// status of sess from its items, address and selected option.
func (s *Server) price(sess *session) *apiError {
	sess.LineItems = sess.LineItems[:0]
	sess.Messages = []invariant.Message{}

	var itemsBase, itemsDiscount, itemsTax int64
	for i, it := range sess.items {
		p, ok := s.product(it.ID)
		if !ok {
			return &apiError{
				Type:    "invalid_request",
				Code:    string(invariant.CodeInvalid),
				Message: fmt.Sprintf("Unknown item %q", it.ID),
				Param:   fmt.Sprintf("$.items[%d].id", i),
			}
		}
		base := p.Price * int64(it.Quantity)
		var discount int64
		subtotal := base - discount
		lineTax := tax(subtotal)
		sess.LineItems = append(sess.LineItems, invariant.LineItem{
			ID:         fmt.Sprintf("li_%d", i+1),
			Item:       invariant.Item{ID: it.ID, Quantity: it.Quantity},
			BaseAmount: invariant.Minor(base),
			Discount:   invariant.Minor(discount),
			Subtotal:   invariant.Minor(subtotal),
			Tax:        invariant.Minor(lineTax),
			Total:      invariant.Minor(subtotal + lineTax),
		})
		itemsBase += base
		itemsDiscount += discount
		itemsTax += lineTax

		if !p.InStock {
			sess.Messages = append(sess.Messages, invariant.Message{
				Type:        invariant.MessageError,
				Code:        invariant.CodeOutOfStock,
				Param:       fmt.Sprintf("$.line_items[%d]", i),
				ContentType: "plain",
				Content:     fmt.Sprintf("%s is out of stock.", p.Title),
			})
		}
	}

	sess.FulfillmentOptions = []invariant.FulfillmentOption{}
	if sess.FulfillmentAddress != nil {
		for _, o := range shippingOptions {
			sess.FulfillmentOptions = append(sess.FulfillmentOptions, invariant.FulfillmentOption{
				Type:     "shipping",
				ID:       o.id,
				Title:    o.title,
				Subtitle: o.subtitle,
				Carrier:  o.carrier,
				Subtotal: invariant.Minor(o.price),
				Tax:      invariant.Minor(tax(o.price)),
				Total:    invariant.Minor(o.price + tax(o.price)),
			})
		}
		if sess.FulfillmentOptionID == "" {
			sess.FulfillmentOptionID = sess.FulfillmentOptions[0].ID
		}
	} else {
		sess.FulfillmentOptionID = ""
	}

	var fulfillment, fulfillmentTax int64
	for _, o := range sess.FulfillmentOptions {
		if o.ID == sess.FulfillmentOptionID {
			fulfillment = o.Subtotal.Minor
			fulfillmentTax = o.Tax.Minor
		}
	}

	subtotal := itemsBase - itemsDiscount
	var discount, fee int64
	taxTotal := itemsTax + fulfillmentTax
	total := subtotal - discount + fulfillment + taxTotal + fee
	if s.faults.WrongTotal {
		total -= 10
	}

	sess.Totals = []invariant.Total{
		{Type: invariant.TotalItemsBaseAmount, DisplayText: "Item(s) total", Amount: invariant.Minor(itemsBase)},
		{Type: invariant.TotalItemsDiscount, DisplayText: "Item(s) discount", Amount: invariant.Minor(itemsDiscount)},
		{Type: invariant.TotalSubtotal, DisplayText: "Subtotal", Amount: invariant.Minor(subtotal)},
		{Type: invariant.TotalDiscount, DisplayText: "Discount", Amount: invariant.Minor(discount)},
		{Type: invariant.TotalFulfillment, DisplayText: "Shipping", Amount: invariant.Minor(fulfillment)},
		{Type: invariant.TotalTax, DisplayText: "Tax", Amount: invariant.Minor(taxTotal)},
		{Type: invariant.TotalFee, DisplayText: "Fees", Amount: invariant.Minor(fee)},
		{Type: invariant.TotalTotal, DisplayText: "Total", Amount: invariant.Minor(total)},
	}

	if sess.FulfillmentOptionID != "" && len(sess.Messages) == 0 {
		sess.Status = invariant.StatusReadyForPayment
	} else {
		sess.Status = invariant.StatusNotReadyForPayment
	}
	return nil
}
