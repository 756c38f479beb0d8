package quotes

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/discounts"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// usedCoupon rejects the coupon once the customer is known.
type usedCoupon struct{}

func (usedCoupon) Evaluate(_ context.Context, _ discounts.Cart, code string, customerID *uuid.UUID) (*discounts.Evaluation, error) {
	eval := &discounts.Evaluation{Campaigns: []discounts.AppliedCampaign{}}
	if customerID == nil {
		eval.Coupon = &discounts.CouponResult{Valid: true, Code: code, Amount: 10000}
		eval.CouponDiscount = 10000
		return eval, nil
	}
	eval.Coupon = &discounts.CouponResult{Code: code, Message: discounts.MsgCouponCustomerLimit}
	return eval, nil
}

func TestPricerRediscountKeepsQuotedShippingAndTax(t *testing.T) {
	t.Parallel()

	ship := &stubShipping{amounts: map[string]int64{"411001": 4900}}
	pricer, err := NewPricer(PricerConfig{
		Shipping:  ship,
		Tax:       stubTax{},
		Discounts: usedCoupon{},
		Rules:     pricing.FallbackRules{FreeShippingThreshold: 99900, FallbackFee: 9900},
	})
	if err != nil {
		t.Fatalf("new pricer: %v", err)
	}
	in := PriceInput{Lines: testLines(), Destination: Destination{PostalCode: "411001", State: "Maharashtra"}, CouponCode: "WELCOME"}

	first, err := pricer.Price(context.Background(), in)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if first.Totals.Total != 50000+4900-10000 {
		t.Fatalf("unexpected first total %d", first.Totals.Total)
	}

	customerID := uuid.New()
	in.CustomerID = &customerID
	second, err := pricer.Rediscount(context.Background(), in, first)
	if err != nil {
		t.Fatalf("rediscount: %v", err)
	}
	if ship.calls.Load() != 1 {
		t.Fatalf("shipping must not be re-quoted, got %d calls", ship.calls.Load())
	}
	if second.Totals.CouponDiscount != 0 || second.Totals.Total != 54900 {
		t.Fatalf("expected coupon dropped, got %+v", second.Totals)
	}
	if second.Discounts.CouponMessage() != discounts.MsgCouponCustomerLimit {
		t.Fatalf("unexpected coupon message %q", second.Discounts.CouponMessage())
	}
}

func TestPricerRejectsEmptyCart(t *testing.T) {
	t.Parallel()

	pricer, _ := NewPricer(PricerConfig{Tax: stubTax{}, Discounts: stubDiscounts{}})
	if _, err := pricer.Price(context.Background(), PriceInput{}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
