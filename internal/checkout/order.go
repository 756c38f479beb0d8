package checkout

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/quotes"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

func newOrder(customerID uuid.UUID, method enums.PaymentMethod, currency string, priced *quotes.Priced, address types.Address) *models.Order {
	state := orders.StatePendingOnline
	if method == enums.PaymentMethodCOD {
		state = orders.StatePendingCOD
	}
	totals := priced.Totals
	order := &models.Order{
		CustomerID:            customerID,
		Status:                state.Status,
		PaymentMethod:         method,
		PaymentStatus:         state.PaymentStatus,
		Currency:              currency,
		SubtotalPaise:         totals.Subtotal,
		ShippingPaise:         totals.Shipping,
		TaxPaise:              totals.Tax,
		CampaignDiscountPaise: totals.CampaignDiscount,
		CouponDiscountPaise:   totals.CouponDiscount,
		DiscountPaise:         totals.TotalDiscount,
		TotalPaise:            totals.Total,
		ShippingAddress:       address,
		ShippingOption:        priced.Shipping,
		TaxBreakdown:          priced.Tax,
	}
	if coupon := priced.Discounts.Coupon; coupon != nil && coupon.Valid && totals.CouponDiscount > 0 {
		code := coupon.Code
		order.CouponCode = &code
	}
	return order
}

// orderItems snapshots the repriced cart lines.
func orderItems(orderID uuid.UUID, lines []cart.Line) []models.OrderItem {
	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, models.OrderItem{
			OrderID:        orderID,
			VariantID:      line.VariantID,
			ProductID:      line.ProductID,
			Title:          line.Title,
			Size:           line.Size,
			Color:          line.Color,
			Quantity:       line.Quantity,
			UnitPricePaise: line.UnitPricePaise,
			LineTotalPaise: line.LineTotal(),
		})
	}
	return items
}
