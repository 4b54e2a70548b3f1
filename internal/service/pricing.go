package service

import (
	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

// PricingRules holds the checkout constants loaded from config
type PricingRules struct {
	TaxRate               decimal.Decimal
	StandardShippingFee   decimal.Decimal
	ExpressShippingFee    decimal.Decimal
	FreeShippingThreshold decimal.Decimal
}

// DefaultPricingRules returns 12% VAT, 150 standard, 200 express, free standard shipping above 2500
func DefaultPricingRules() PricingRules {
	return PricingRules{
		TaxRate:               decimal.RequireFromString("0.12"),
		StandardShippingFee:   decimal.NewFromInt(150),
		ExpressShippingFee:    decimal.NewFromInt(200),
		FreeShippingThreshold: decimal.NewFromInt(2500),
	}
}

// Quote is the price breakdown of an order
type Quote struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// QuoteLines prices cart lines with their unit prices
func QuoteLines(lines []models.CartLine, shippingMethod string, rules PricingRules) Quote {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.LineTotal())
	}
	return rules.Quote(subtotal, shippingMethod)
}

// Quote prices a subtotal. Express always pays the express fee; standard is free
// only when the subtotal is strictly above the threshold.
func (r PricingRules) Quote(subtotal decimal.Decimal, shippingMethod string) Quote {
	var shipping decimal.Decimal
	switch {
	case shippingMethod == models.ShippingMethodExpress:
		shipping = r.ExpressShippingFee
	case subtotal.GreaterThan(r.FreeShippingThreshold):
		shipping = decimal.Zero
	default:
		shipping = r.StandardShippingFee
	}

	tax := subtotal.Mul(r.TaxRate).Round(2)
	discount := decimal.Zero

	return Quote{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Discount: discount,
		Total:    subtotal.Add(shipping).Add(tax).Sub(discount),
	}
}
