package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// OrderView is the shopper-facing order representation.
type OrderView struct {
	ID               uuid.UUID            `json:"id"`
	Status           enums.OrderStatus    `json:"status"`
	PaymentMethod    enums.PaymentMethod  `json:"payment_method"`
	PaymentStatus    enums.PaymentStatus  `json:"payment_status"`
	Currency         string               `json:"currency"`
	Subtotal         int64                `json:"subtotal"`
	Shipping         int64                `json:"shipping"`
	Tax              int64                `json:"tax"`
	CampaignDiscount int64                `json:"campaign_discount"`
	CouponDiscount   int64                `json:"coupon_discount"`
	Discount         int64                `json:"discount"`
	Total            int64                `json:"total"`
	CouponCode       *string              `json:"coupon_code,omitempty"`
	ShippingAddress  types.Address        `json:"shipping_address"`
	ShippingOption   *types.ShippingQuote `json:"shipping_option,omitempty"`
	TaxBreakdown     *types.TaxBreakdown  `json:"tax_breakdown,omitempty"`
	CancelReason     *string              `json:"cancel_reason,omitempty"`
	Items            []OrderItemView      `json:"items"`
	CreatedAt        time.Time            `json:"created_at"`
	ConfirmedAt      *time.Time           `json:"confirmed_at,omitempty"`
	CancelledAt      *time.Time           `json:"cancelled_at,omitempty"`
}

type OrderItemView struct {
	VariantID uuid.UUID `json:"variant_id"`
	ProductID uuid.UUID `json:"product_id"`
	Title     string    `json:"title"`
	Size      *string   `json:"size,omitempty"`
	Color     *string   `json:"color,omitempty"`
	Quantity  int       `json:"quantity"`
	UnitPrice int64     `json:"unit_price"`
	LineTotal int64     `json:"line_total"`
}

// OrderList is one page of a customer's orders.
type OrderList struct {
	Orders     []OrderView `json:"orders"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

func NewOrderView(o *models.Order) OrderView {
	view := OrderView{
		ID:               o.ID,
		Status:           o.Status,
		PaymentMethod:    o.PaymentMethod,
		PaymentStatus:    o.PaymentStatus,
		Currency:         o.Currency,
		Subtotal:         o.SubtotalPaise,
		Shipping:         o.ShippingPaise,
		Tax:              o.TaxPaise,
		CampaignDiscount: o.CampaignDiscountPaise,
		CouponDiscount:   o.CouponDiscountPaise,
		Discount:         o.DiscountPaise,
		Total:            o.TotalPaise,
		CouponCode:       o.CouponCode,
		ShippingAddress:  o.ShippingAddress,
		ShippingOption:   o.ShippingOption,
		TaxBreakdown:     o.TaxBreakdown,
		CancelReason:     o.CancelReason,
		Items:            make([]OrderItemView, 0, len(o.Items)),
		CreatedAt:        o.CreatedAt,
		ConfirmedAt:      o.ConfirmedAt,
		CancelledAt:      o.CancelledAt,
	}
	for _, item := range o.Items {
		view.Items = append(view.Items, OrderItemView{
			VariantID: item.VariantID,
			ProductID: item.ProductID,
			Title:     item.Title,
			Size:      item.Size,
			Color:     item.Color,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPricePaise,
			LineTotal: item.LineTotalPaise,
		})
	}
	return view
}
