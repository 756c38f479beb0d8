package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// PaymentIntent links an online order to its gateway order.
type PaymentIntent struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID          `gorm:"column:order_id;type:uuid;not null;uniqueIndex:payment_intents_order_id_key"`
	Provider          string             `gorm:"column:provider;type:text;not null"`
	ProviderOrderID   string             `gorm:"column:provider_order_id;not null;uniqueIndex:payment_intents_provider_order_id_key"`
	ProviderPaymentID *string            `gorm:"column:provider_payment_id"`
	AmountPaise       int64              `gorm:"column:amount_paise;not null"`
	Currency          string             `gorm:"column:currency;type:text;not null"`
	Status            enums.IntentStatus `gorm:"column:status;type:text;not null;default:'created'"`
	Attempts          int                `gorm:"column:attempts;not null;default:0"`
	LastError         *string            `gorm:"column:last_error"`
	CapturedAt        *time.Time         `gorm:"column:captured_at"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *PaymentIntent) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
