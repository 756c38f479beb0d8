package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Order is one checkout attempt. Amounts are paise.
type Order struct {
	ID                    uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	CustomerID            uuid.UUID            `gorm:"column:customer_id;type:uuid;not null"`
	Status                enums.OrderStatus    `gorm:"column:status;type:text;not null;default:'pending'"`
	PaymentMethod         enums.PaymentMethod  `gorm:"column:payment_method;type:text;not null"`
	PaymentStatus         enums.PaymentStatus  `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	Currency              string               `gorm:"column:currency;type:text;not null;default:'INR'"`
	SubtotalPaise         int64                `gorm:"column:subtotal_paise;not null"`
	ShippingPaise         int64                `gorm:"column:shipping_paise;not null;default:0"`
	TaxPaise              int64                `gorm:"column:tax_paise;not null;default:0"`
	CampaignDiscountPaise int64                `gorm:"column:campaign_discount_paise;not null;default:0"`
	CouponDiscountPaise   int64                `gorm:"column:coupon_discount_paise;not null;default:0"`
	DiscountPaise         int64                `gorm:"column:discount_paise;not null;default:0"`
	TotalPaise            int64                `gorm:"column:total_paise;not null"`
	CouponCode            *string              `gorm:"column:coupon_code"`
	ShippingAddress       types.Address        `gorm:"column:shipping_address;type:jsonb;not null"`
	ShippingOption        *types.ShippingQuote `gorm:"column:shipping_option;type:jsonb;serializer:json"`
	TaxBreakdown          *types.TaxBreakdown  `gorm:"column:tax_breakdown;type:jsonb;serializer:json"`
	CancelReason          *string              `gorm:"column:cancel_reason"`
	ConfirmedAt           *time.Time           `gorm:"column:confirmed_at"`
	CancelledAt           *time.Time           `gorm:"column:cancelled_at"`
	Items                 []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	PaymentIntent         *PaymentIntent       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt             time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// OrderItem snapshots a cart line at placement time. Rows are never updated.
type OrderItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	VariantID      uuid.UUID `gorm:"column:variant_id;type:uuid;not null"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Title          string    `gorm:"column:title;not null"`
	Size           *string   `gorm:"column:size"`
	Color          *string   `gorm:"column:color"`
	Quantity       int       `gorm:"column:quantity;not null"`
	UnitPricePaise int64     `gorm:"column:unit_price_paise;not null"`
	LineTotalPaise int64     `gorm:"column:line_total_paise;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
