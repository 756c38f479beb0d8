package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// ErrStateConflict is returned by UpdateState when the row is no longer in
// the expected state.
var ErrStateConflict = errors.New("order state changed concurrently")

// Repository defines persistence operations for orders and payment intents.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	CreateItems(ctx context.Context, items []models.OrderItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateState(ctx context.Context, id uuid.UUID, from, to State, fields map[string]any) error
	FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	ListForCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) ([]models.Order, string, error)
	CreateIntent(ctx context.Context, intent *models.PaymentIntent) error
	FindIntentByOrder(ctx context.Context, orderID uuid.UUID) (*models.PaymentIntent, error)
	FindIntentByProviderOrder(ctx context.Context, providerOrderID string) (*models.PaymentIntent, error)
	UpdateIntent(ctx context.Context, id uuid.UUID, updates map[string]any) error
}
