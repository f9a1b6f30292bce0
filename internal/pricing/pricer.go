package pricing

import (
	"math"

	"github.com/tanamarket/tana/internal/models"
)

type Pricer struct {
	policy Policy
}

func NewPricer(policy Policy) *Pricer {
	return &Pricer{policy: policy}
}

// Quote is an order's money breakdown, computed once at placement and never
// recalculated afterwards.
type Quote struct {
	ItemsCents    int
	ShippingCents int
	TaxCents      int
	TotalCents    int
	Currency      string
}

// QuoteOrder prices a snapshot of cart lines: items is the sum of unit price
// times quantity, shipping is the flat policy fee, tax is the policy rate
// applied to the items subtotal, and total is the sum of the three.
func (p *Pricer) QuoteOrder(items []models.OrderItem) Quote {
	itemsCents := 0
	for _, item := range items {
		itemsCents += item.UnitPriceCents * item.Quantity
	}

	taxCents := int(math.Round(float64(itemsCents) * p.policy.TaxRate))

	return Quote{
		ItemsCents:    itemsCents,
		ShippingCents: p.policy.ShippingCents,
		TaxCents:      taxCents,
		TotalCents:    itemsCents + p.policy.ShippingCents + taxCents,
		Currency:      p.policy.Currency,
	}
}

// Policy returns the policy the pricer was built with.
func (p *Pricer) Policy() Policy {
	return p.policy
}
