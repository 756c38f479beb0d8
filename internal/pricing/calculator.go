// Package pricing computes checkout totals. Everything here is pure: amounts
// are paise and identical inputs always give identical totals.
package pricing

import (
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// LineItem is the priced part of a cart line.
type LineItem struct {
	UnitPricePaise int64
	Quantity       int
}

// FallbackRules price shipping when no quote is available.
type FallbackRules struct {
	FreeShippingThreshold int64
	FallbackFee           int64
}

// Input is everything one price computation needs. A nil Shipping falls back
// to FallbackRules; a nil Tax counts as zero tax.
type Input struct {
	Items            []LineItem
	Shipping         *types.ShippingQuote
	Tax              *types.TaxBreakdown
	CampaignDiscount int64
	CouponDiscount   int64
}

// Totals satisfy Total = max(0, Subtotal + Shipping + Tax - TotalDiscount).
type Totals struct {
	Subtotal         int64 `json:"subtotal"`
	Shipping         int64 `json:"shipping"`
	Tax              int64 `json:"tax"`
	CampaignDiscount int64 `json:"campaign_discount"`
	CouponDiscount   int64 `json:"coupon_discount"`
	TotalDiscount    int64 `json:"total_discount"`
	Total            int64 `json:"total"`
}

// Subtotal sums unit price times quantity. Non-positive lines contribute nothing.
func Subtotal(items []LineItem) int64 {
	var subtotal int64
	for _, item := range items {
		if item.Quantity <= 0 || item.UnitPricePaise <= 0 {
			continue
		}
		subtotal += item.UnitPricePaise * int64(item.Quantity)
	}
	return subtotal
}

// ItemCount sums quantities.
func ItemCount(items []LineItem) int {
	count := 0
	for _, item := range items {
		if item.Quantity > 0 {
			count += item.Quantity
		}
	}
	return count
}

// Shipping returns the quoted amount, or the fallback rule when quote is nil.
func Shipping(subtotal int64, quote *types.ShippingQuote, rules FallbackRules) int64 {
	if quote != nil {
		return money.NonNegative(quote.Amount)
	}
	if subtotal >= rules.FreeShippingThreshold {
		return 0
	}
	return money.NonNegative(rules.FallbackFee)
}

// Calculate combines the cart, quotes and discounts into displayed totals.
// Negative amounts are clamped to zero and the total never drops below zero.
func Calculate(in Input, rules FallbackRules) Totals {
	subtotal := Subtotal(in.Items)
	shipping := Shipping(subtotal, in.Shipping, rules)

	var tax int64
	if in.Tax != nil {
		tax = money.NonNegative(in.Tax.TotalTax)
	}

	campaign := money.NonNegative(in.CampaignDiscount)
	coupon := money.NonNegative(in.CouponDiscount)
	discount := campaign + coupon

	return Totals{
		Subtotal:         subtotal,
		Shipping:         shipping,
		Tax:              tax,
		CampaignDiscount: campaign,
		CouponDiscount:   coupon,
		TotalDiscount:    discount,
		Total:            money.NonNegative(subtotal + shipping + tax - discount),
	}
}
