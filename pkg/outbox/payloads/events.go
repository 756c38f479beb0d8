package payloads

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/google/uuid"
)

// OrderCreatedEvent is emitted when an order row and its items are written.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	CustomerID    uuid.UUID           `json:"customer_id"`
	Status        enums.OrderStatus   `json:"status"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	Currency      string              `json:"currency"`
	SubtotalPaise int64               `json:"subtotal_paise"`
	DiscountPaise int64               `json:"discount_paise"`
	TotalPaise    int64               `json:"total_paise"`
	ItemCount     int                 `json:"item_count"`
	CouponCode    *string             `json:"coupon_code,omitempty"`
}

// OrderConfirmedEvent is emitted when a COD order is accepted for fulfilment.
type OrderConfirmedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	CustomerID    uuid.UUID           `json:"customer_id"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	TotalPaise    int64               `json:"total_paise"`
	ConfirmedAt   time.Time           `json:"confirmed_at"`
}

// OrderPaidEvent is emitted once an online payment is captured.
type OrderPaidEvent struct {
	OrderID           uuid.UUID `json:"order_id"`
	CustomerID        uuid.UUID `json:"customer_id"`
	ProviderOrderID   string    `json:"provider_order_id"`
	ProviderPaymentID string    `json:"provider_payment_id,omitempty"`
	AmountPaise       int64     `json:"amount_paise"`
	Currency          string    `json:"currency"`
	Source            string    `json:"source"`
	PaidAt            time.Time `json:"paid_at"`
}

// OrderCancelledEvent is emitted when a pending order is cancelled.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	CustomerID  uuid.UUID `json:"customer_id"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// PaymentFailedEvent records a failed payment attempt. The order stays pending.
type PaymentFailedEvent struct {
	OrderID           uuid.UUID `json:"order_id"`
	ProviderOrderID   string    `json:"provider_order_id,omitempty"`
	ProviderPaymentID string    `json:"provider_payment_id,omitempty"`
	Reason            string    `json:"reason"`
	Source            string    `json:"source"`
	FailedAt          time.Time `json:"failed_at"`
}

// Sources reported on paid and failed events.
const (
	SourceCheckout = "checkout"
	SourceWebhook  = "webhook"
	SourceSweep    = "sweep"
	SourceWidget   = "widget"
)
