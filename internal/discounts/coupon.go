package discounts

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/money"
)

// Shopper-facing coupon messages.
const (
	MsgCouponNotFound      = "This coupon code is not valid"
	MsgCouponInactive      = "This coupon is no longer active"
	MsgCouponNotStarted    = "This coupon is not active yet"
	MsgCouponExpired       = "This coupon has expired"
	MsgCouponExhausted     = "This coupon has reached its usage limit"
	MsgCouponCustomerLimit = "You have already used this coupon"
	MsgCouponNoDiscount    = "This coupon does not apply to your cart"
)

// CouponResult is the outcome of validating a coupon. An invalid coupon is
// never an error; Message explains why it was rejected.
type CouponResult struct {
	Valid    bool      `json:"valid"`
	Code     string    `json:"code"`
	CouponID uuid.UUID `json:"-"`
	Amount   int64     `json:"amount"`
	Message  string    `json:"message,omitempty"`
}

// NormalizeCode upper-cases and trims a shopper-entered code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateCoupon checks the coupon against the cart. customerUsage is the
// number of prior redemptions by the shopper, or a negative value when the
// shopper is not yet known and the per-customer limit cannot be checked.
func ValidateCoupon(coupon *models.Coupon, cart Cart, customerUsage int, now time.Time) CouponResult {
	if coupon == nil {
		return CouponResult{Message: MsgCouponNotFound}
	}
	result := CouponResult{Code: coupon.Code, CouponID: coupon.ID}
	switch {
	case !coupon.Active:
		result.Message = MsgCouponInactive
	case coupon.StartsAt != nil && now.Before(*coupon.StartsAt):
		result.Message = MsgCouponNotStarted
	case coupon.ExpiresAt != nil && !now.Before(*coupon.ExpiresAt):
		result.Message = MsgCouponExpired
	case coupon.UsageLimit != nil && coupon.UsedCount >= *coupon.UsageLimit:
		result.Message = MsgCouponExhausted
	case coupon.PerCustomerLimit != nil && customerUsage >= 0 && customerUsage >= *coupon.PerCustomerLimit:
		result.Message = MsgCouponCustomerLimit
	case cart.Subtotal < coupon.MinPurchasePaise:
		result.Message = "Add " + money.FormatINR(coupon.MinPurchasePaise-cart.Subtotal) + " more to use this coupon"
	}
	if result.Message != "" {
		return result
	}

	amount := Amount(coupon.DiscountType, coupon.DiscountValue, coupon.MaxDiscountPaise, cart.Subtotal)
	if amount <= 0 {
		result.Message = MsgCouponNoDiscount
		return result
	}
	result.Valid = true
	result.Amount = amount
	return result
}
