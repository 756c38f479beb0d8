package customers

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Repository persists customers.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByUserID returns nil, nil when the user has no customer yet.
func (r *Repository) FindByUserID(ctx context.Context, userID string) (*models.Customer, error) {
	return r.findOne(ctx, "user_id = ?", userID)
}

// FindByGuestSession returns nil, nil when the session has no customer yet.
func (r *Repository) FindByGuestSession(ctx context.Context, sessionID string) (*models.Customer, error) {
	return r.findOne(ctx, "guest_session_id = ?", sessionID)
}

func (r *Repository) Create(ctx context.Context, customer *models.Customer) error {
	return r.db.WithContext(ctx).Create(customer).Error
}

// UpdateContact overwrites the contact fields used for receipts.
func (r *Repository) UpdateContact(ctx context.Context, customer *models.Customer) error {
	return r.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("id = ?", customer.ID).
		Updates(map[string]any{
			"name":  customer.Name,
			"phone": customer.Phone,
			"email": customer.Email,
		}).Error
}

func (r *Repository) findOne(ctx context.Context, query string, arg any) (*models.Customer, error) {
	var customer models.Customer
	err := r.db.WithContext(ctx).Where(query, arg).First(&customer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &customer, nil
}
