package discounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/money"
)

// Evaluation is the discount picture for one cart.
type Evaluation struct {
	Campaigns        []AppliedCampaign `json:"campaigns"`
	CampaignDiscount int64             `json:"campaign_discount"`
	Coupon           *CouponResult     `json:"coupon,omitempty"`
	CouponDiscount   int64             `json:"coupon_discount"`
}

// CouponMessage is the rejection message of an invalid coupon, if any.
func (e *Evaluation) CouponMessage() string {
	if e == nil || e.Coupon == nil || e.Coupon.Valid {
		return ""
	}
	return e.Coupon.Message
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("discounts repository required")
	}
	return &Service{repo: repo, now: time.Now}, nil
}

// Evaluate resolves campaigns and the optional coupon. The coupon discount is
// capped at what the campaigns left of the subtotal. customerID may be nil
// while the shopper has no customer record; the per-customer limit is then
// enforced at placement.
func (s *Service) Evaluate(ctx context.Context, cart Cart, couponCode string, customerID *uuid.UUID) (*Evaluation, error) {
	now := s.now().UTC()
	campaigns, err := s.repo.ListActiveCampaigns(ctx, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeQuoteUnavailable, err, "discounts unavailable")
	}

	applied := ResolveStack(cart, campaigns, now)
	eval := &Evaluation{
		Campaigns:        applied,
		CampaignDiscount: Sum(applied),
	}
	if eval.Campaigns == nil {
		eval.Campaigns = []AppliedCampaign{}
	}

	code := NormalizeCode(couponCode)
	if code == "" {
		return eval, nil
	}

	coupon, err := s.repo.FindCouponByCode(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeQuoteUnavailable, err, "discounts unavailable")
	}
	usage := -1
	if coupon != nil && customerID != nil && *customerID != uuid.Nil {
		count, err := s.repo.CountRedemptions(ctx, coupon.ID, *customerID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeQuoteUnavailable, err, "discounts unavailable")
		}
		usage = int(count)
	}

	result := ValidateCoupon(coupon, cart, usage, now)
	if coupon == nil {
		result.Code = code
	}
	if result.Valid {
		result.Amount = money.Min(result.Amount, money.NonNegative(cart.Subtotal-eval.CampaignDiscount))
		if result.Amount == 0 {
			result.Valid = false
			result.Message = MsgCouponNoDiscount
		}
	}
	eval.Coupon = &result
	if result.Valid {
		eval.CouponDiscount = result.Amount
	}
	return eval, nil
}

// Redeem records the coupon use inside the order transaction.
func (s *Service) Redeem(ctx context.Context, tx *gorm.DB, result *CouponResult, customerID, orderID uuid.UUID) error {
	if result == nil || !result.Valid || result.Amount <= 0 {
		return nil
	}
	if tx == nil {
		return errors.New("transaction required")
	}
	repo := s.repo.WithTx(tx)
	if err := repo.IncrementUsage(ctx, result.CouponID); err != nil {
		if errors.Is(err, ErrCouponExhausted) {
			return pkgerrors.New(pkgerrors.CodeConflict, MsgCouponExhausted+", please remove it and try again")
		}
		return err
	}
	return repo.CreateRedemption(ctx, &models.CouponRedemption{
		CouponID:    result.CouponID,
		CustomerID:  customerID,
		OrderID:     orderID,
		AmountPaise: result.Amount,
	})
}

// Release gives back the coupon use of a cancelled order. An order without a
// redemption is left alone.
func (s *Service) Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	repo := s.repo.WithTx(tx)
	redemption, err := repo.DeleteRedemptionByOrder(ctx, orderID)
	if err != nil || redemption == nil {
		return err
	}
	return repo.DecrementUsage(ctx, redemption.CouponID)
}
