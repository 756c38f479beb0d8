package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Customer is the buyer an order is attached to. Exactly one of UserID and
// GuestSessionID is set.
type Customer struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID         *string   `gorm:"column:user_id;uniqueIndex:customers_user_id_key"`
	GuestSessionID *string   `gorm:"column:guest_session_id;uniqueIndex:customers_guest_session_id_key"`
	Email          *string   `gorm:"column:email"`
	Name           string    `gorm:"column:name;not null"`
	Phone          string    `gorm:"column:phone;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Customer) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
