package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProductVariant is the purchasable unit carts reference. It is owned by the
// catalog and read-only here.
type ProductVariant struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID  uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Title      string    `gorm:"column:title;not null"`
	PricePaise int64     `gorm:"column:price_paise;not null"`
	Size       *string   `gorm:"column:size"`
	Color      *string   `gorm:"column:color"`
	Category   *string   `gorm:"column:category"`
	Collection *string   `gorm:"column:collection"`
	Active     bool      `gorm:"column:active;not null;default:true"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *ProductVariant) BeforeCreate(*gorm.DB) error {
	ensureID(&v.ID)
	return nil
}
