package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Campaign is an automatic discount. DiscountValue is paise for flat
// campaigns and a percent for percentage campaigns.
type Campaign struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Name              string             `gorm:"column:name;not null"`
	DiscountType      enums.DiscountType `gorm:"column:discount_type;type:text;not null"`
	DiscountValue     decimal.Decimal    `gorm:"column:discount_value;type:numeric(12,2);not null"`
	MaxDiscountPaise  *int64             `gorm:"column:max_discount_paise"`
	MinCartValuePaise int64              `gorm:"column:min_cart_value_paise;not null;default:0"`
	MinItemCount      int                `gorm:"column:min_item_count;not null;default:0"`
	Category          *string            `gorm:"column:category"`
	Collection        *string            `gorm:"column:collection"`
	Priority          int                `gorm:"column:priority;not null;default:0"`
	Stackable         bool               `gorm:"column:stackable;not null;default:false"`
	Active            bool               `gorm:"column:active;not null;default:true"`
	StartsAt          *time.Time         `gorm:"column:starts_at"`
	EndsAt            *time.Time         `gorm:"column:ends_at"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Campaign) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
