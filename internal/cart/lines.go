package cart

import (
	"github.com/angelmondragon/storefront-backend/internal/discounts"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/tax"
)

func Subtotal(lines []Line) int64 {
	var total int64
	for _, line := range lines {
		total += line.LineTotal()
	}
	return total
}

func TotalQuantity(lines []Line) int {
	total := 0
	for _, line := range lines {
		total += line.Quantity
	}
	return total
}

// PricingLines maps the cart to calculator input, preserving order.
func PricingLines(lines []Line) []pricing.LineItem {
	out := make([]pricing.LineItem, 0, len(lines))
	for _, line := range lines {
		out = append(out, pricing.LineItem{UnitPricePaise: line.UnitPricePaise, Quantity: line.Quantity})
	}
	return out
}

func DiscountCart(lines []Line) discounts.Cart {
	out := make([]discounts.Line, 0, len(lines))
	for _, line := range lines {
		out = append(out, discounts.Line{
			UnitPricePaise: line.UnitPricePaise,
			Quantity:       line.Quantity,
			Category:       line.Category,
			Collection:     line.Collection,
		})
	}
	return discounts.NewCart(out)
}

func TaxItems(lines []Line) []tax.Item {
	out := make([]tax.Item, 0, len(lines))
	for _, line := range lines {
		item := tax.Item{
			VariantID:      line.VariantID.String(),
			Quantity:       line.Quantity,
			UnitPricePaise: line.UnitPricePaise,
		}
		if line.Category != nil {
			item.Category = *line.Category
		}
		out = append(out, item)
	}
	return out
}
