package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Coupon is a shopper-entered code. Code is stored upper-cased.
type Coupon struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Code             string             `gorm:"column:code;not null;uniqueIndex:coupons_code_key"`
	DiscountType     enums.DiscountType `gorm:"column:discount_type;type:text;not null"`
	DiscountValue    decimal.Decimal    `gorm:"column:discount_value;type:numeric(12,2);not null"`
	MaxDiscountPaise *int64             `gorm:"column:max_discount_paise"`
	MinPurchasePaise int64              `gorm:"column:min_purchase_paise;not null;default:0"`
	StartsAt         *time.Time         `gorm:"column:starts_at"`
	ExpiresAt        *time.Time         `gorm:"column:expires_at"`
	UsageLimit       *int               `gorm:"column:usage_limit"`
	PerCustomerLimit *int               `gorm:"column:per_customer_limit"`
	UsedCount        int                `gorm:"column:used_count;not null;default:0"`
	Active           bool               `gorm:"column:active;not null;default:true"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// CouponRedemption records one use of a coupon by a customer.
type CouponRedemption struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	CouponID    uuid.UUID `gorm:"column:coupon_id;type:uuid;not null"`
	CustomerID  uuid.UUID `gorm:"column:customer_id;type:uuid;not null"`
	OrderID     uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex:coupon_redemptions_order_id_key"`
	AmountPaise int64     `gorm:"column:amount_paise;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (r *CouponRedemption) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

func (c *Coupon) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
