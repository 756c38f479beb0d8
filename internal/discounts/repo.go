package discounts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// ErrCouponExhausted is returned when a redemption would exceed the usage limit.
var ErrCouponExhausted = errors.New("coupon usage limit reached")

// Repository defines persistence for campaigns and coupons.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListActiveCampaigns(ctx context.Context, now time.Time) ([]models.Campaign, error)
	FindCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
	CountRedemptions(ctx context.Context, couponID, customerID uuid.UUID) (int64, error)
	CreateRedemption(ctx context.Context, redemption *models.CouponRedemption) error
	IncrementUsage(ctx context.Context, couponID uuid.UUID) error
	DeleteRedemptionByOrder(ctx context.Context, orderID uuid.UUID) (*models.CouponRedemption, error)
	DecrementUsage(ctx context.Context, couponID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ListActiveCampaigns(ctx context.Context, now time.Time) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Where("starts_at IS NULL OR starts_at <= ?", now).
		Where("ends_at IS NULL OR ends_at > ?", now).
		Order("priority DESC").
		Order("created_at DESC").
		Order("id ASC").
		Find(&campaigns).Error
	return campaigns, err
}

// FindCouponByCode returns nil, nil when no coupon has the code.
func (r *repository) FindCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := r.db.WithContext(ctx).Where("code = ?", NormalizeCode(code)).First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &coupon, nil
}

func (r *repository) CountRedemptions(ctx context.Context, couponID, customerID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CouponRedemption{}).
		Where("coupon_id = ? AND customer_id = ?", couponID, customerID).
		Count(&count).Error
	return count, err
}

func (r *repository) CreateRedemption(ctx context.Context, redemption *models.CouponRedemption) error {
	return r.db.WithContext(ctx).Create(redemption).Error
}

// IncrementUsage bumps used_count unless the usage limit is already reached.
func (r *repository) IncrementUsage(ctx context.Context, couponID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("id = ?", couponID).
		Where("usage_limit IS NULL OR used_count < usage_limit").
		Update("used_count", gorm.Expr("used_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCouponExhausted
	}
	return nil
}

// DeleteRedemptionByOrder removes the redemption recorded for orderID and
// returns it. It returns nil, nil when the order redeemed no coupon.
func (r *repository) DeleteRedemptionByOrder(ctx context.Context, orderID uuid.UUID) (*models.CouponRedemption, error) {
	var redemption models.CouponRedemption
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&redemption).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := r.db.WithContext(ctx).Delete(&models.CouponRedemption{}, "id = ?", redemption.ID).Error; err != nil {
		return nil, err
	}
	return &redemption, nil
}

func (r *repository) DecrementUsage(ctx context.Context, couponID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("id = ? AND used_count > 0", couponID).
		Update("used_count", gorm.Expr("used_count - 1")).Error
}
