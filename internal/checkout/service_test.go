package checkout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/customers"
	"github.com/angelmondragon/storefront-backend/internal/discounts"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/internal/quotes"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	pkgcheckout "github.com/angelmondragon/storefront-backend/pkg/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

var guest = auth.Shopper{GuestSessionID: "sess-42"}

type memoryCart struct{ store *cart.MemoryStore }

func (m memoryCart) Snapshot(ctx context.Context, owner string) ([]cart.Line, error) {
	return m.store.Items(ctx, owner)
}

// fixedPricer returns the same totals for every request.
type fixedPricer struct {
	totals pricing.Totals
	coupon *discounts.CouponResult
	err    error
}

func (p *fixedPricer) Price(context.Context, quotes.PriceInput) (*quotes.Priced, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &quotes.Priced{
		Totals:    p.totals,
		Shipping:  nil,
		Discounts: &discounts.Evaluation{Campaigns: []discounts.AppliedCampaign{}, Coupon: p.coupon},
	}, nil
}

func (p *fixedPricer) Rediscount(ctx context.Context, in quotes.PriceInput, _ *quotes.Priced) (*quotes.Priced, error) {
	return p.Price(ctx, in)
}

// couponPricer prices a single 2500 rupee line through real coupon rules.
type couponPricer struct{ coupons *discounts.Service }

func (p *couponPricer) Price(ctx context.Context, in quotes.PriceInput) (*quotes.Priced, error) {
	return p.Rediscount(ctx, in, nil)
}

func (p *couponPricer) Rediscount(ctx context.Context, in quotes.PriceInput, _ *quotes.Priced) (*quotes.Priced, error) {
	const subtotal = 250000
	eval, err := p.coupons.Evaluate(ctx, discounts.NewCart([]discounts.Line{{UnitPricePaise: subtotal, Quantity: 1}}), in.CouponCode, in.CustomerID)
	if err != nil {
		return nil, err
	}
	return &quotes.Priced{
		Totals: pricing.Totals{
			Subtotal:       subtotal,
			CouponDiscount: eval.CouponDiscount,
			TotalDiscount:  eval.CouponDiscount,
			Total:          subtotal - eval.CouponDiscount,
		},
		Discounts: eval,
	}, nil
}

type stubCustomers struct {
	customer *models.Customer
	err      error
	resolved int
}

func (s *stubCustomers) Resolve(context.Context, auth.Shopper, customers.Profile) (*models.Customer, error) {
	s.resolved++
	if s.err != nil {
		return nil, s.err
	}
	return s.customer, nil
}

func (s *stubCustomers) ForShopper(context.Context, auth.Shopper) (*models.Customer, error) {
	if s.resolved == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
	}
	return s.customer, nil
}

type stubRedeemer struct{ redeemed int }

func (s *stubRedeemer) Redeem(_ context.Context, _ *gorm.DB, result *discounts.CouponResult, _, _ uuid.UUID) error {
	if result != nil && result.Valid {
		s.redeemed++
	}
	return nil
}

type recordingPublisher struct{ events []enums.OutboxEventType }

func (r *recordingPublisher) Emit(_ context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if tx == nil {
		return errors.New("emit outside transaction")
	}
	r.events = append(r.events, event.EventType)
	return nil
}

type stubGateway struct {
	createErr error
	verify    payments.VerifyResult
	verified  int
}

func (g *stubGateway) CreateIntent(_ context.Context, req payments.IntentRequest) (payments.Intent, error) {
	if g.createErr != nil {
		return payments.Intent{}, g.createErr
	}
	return payments.Intent{
		Provider:        payments.ProviderRazorpay,
		ProviderKeyID:   "rzp_test_key",
		ProviderOrderID: "order_" + req.OrderID.String()[:8],
		Amount:          req.Amount,
		Currency:        req.Currency,
	}, nil
}

func (g *stubGateway) Verify(context.Context, payments.Verification) (payments.VerifyResult, error) {
	g.verified++
	return g.verify, nil
}

func (g *stubGateway) FetchStatus(context.Context, string) (payments.Status, error) {
	return payments.Status{}, nil
}

type fixture struct {
	svc       *Service
	conn      *gorm.DB
	store     *cart.MemoryStore
	pricer    *fixedPricer
	customers *stubCustomers
	gateway   *stubGateway
	events    *recordingPublisher
	redeemer  *stubRedeemer
}

func newFixture(t *testing.T, codMax int64) *fixture {
	t.Helper()
	return buildFixture(t, codMax, false)
}

// buildFixture wires the service on sqlite. realCoupons replaces the stub
// redeemer with the discounts service and prices the cart through it.
func buildFixture(t *testing.T, codMax int64, realCoupons bool) *fixture {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Order{}, &models.OrderItem{}, &models.PaymentIntent{},
		&models.Campaign{}, &models.Coupon{}, &models.CouponRedemption{}))
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	f := &fixture{
		conn:      conn,
		store:     cart.NewMemoryStore(),
		pricer:    &fixedPricer{totals: totals(250000)},
		customers: &stubCustomers{customer: &models.Customer{ID: uuid.New(), Name: "Asha Rao"}},
		gateway:   &stubGateway{verify: payments.VerifyResult{Success: true}},
		events:    &recordingPublisher{},
		redeemer:  &stubRedeemer{},
	}
	require.NoError(t, f.store.Put(context.Background(), guest.Key(), []cart.Line{{
		VariantID:      uuid.New(),
		ProductID:      uuid.New(),
		Title:          "Linen Kurta",
		UnitPricePaise: 250000,
		Quantity:       1,
	}}))

	var (
		redeemer  couponRedeemer = f.redeemer
		pricedBy  pricer         = f.pricer
		orderOpts []orders.Option
	)
	if realCoupons {
		coupons, err := discounts.NewService(discounts.NewRepository(conn))
		require.NoError(t, err)
		redeemer = coupons
		pricedBy = &couponPricer{coupons: coupons}
		orderOpts = append(orderOpts, orders.WithCouponReleaser(coupons))
	}

	repo := orders.NewRepository(conn)
	orderSvc, err := orders.NewService(repo, f.events, orderOpts...)
	require.NoError(t, err)

	f.svc, err = NewService(Params{
		Tx:           db.Wrap(conn),
		Cart:         memoryCart{store: f.store},
		CartStore:    f.store,
		Pricer:       pricedBy,
		Customers:    f.customers,
		Orders:       repo,
		OrderSvc:     orderSvc,
		Discounts:    redeemer,
		Outbox:       f.events,
		Gateway:      f.gateway,
		Logger:       logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		CODMaxAmount: codMax,
	})
	require.NoError(t, err)
	return f
}

func totals(total int64) pricing.Totals {
	return pricing.Totals{Subtotal: total, Total: total}
}

func shippingInfo() pkgcheckout.ShippingInfo {
	return pkgcheckout.ShippingInfo{
		Name:       "Asha Rao",
		Phone:      "+91 98765 43210",
		Email:      "asha@example.in",
		Line1:      "12 MG Road",
		City:       "Pune",
		State:      "Maharashtra",
		PostalCode: "411001",
	}
}

func (f *fixture) cartLines(t *testing.T) int {
	t.Helper()
	lines, err := f.store.Items(context.Background(), guest.Key())
	require.NoError(t, err)
	return len(lines)
}

func (f *fixture) orderCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&count).Error)
	return count
}

func TestPlaceOrderCODAboveLimitIsBlockedButOnlineProceeds(t *testing.T) {
	f := newFixture(t, 200000)
	ctx := context.Background()

	_, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{Shopper: guest, Shipping: shippingInfo(), PaymentMethod: "cod"})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeCODUnavailable, typed.Code())
	assert.Equal(t, msgCODUnavailable, typed.PublicMessage())
	assert.Zero(t, f.orderCount(t))
	assert.Zero(t, f.customers.resolved)
	assert.Equal(t, 1, f.cartLines(t))

	placement, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{Shopper: guest, Shipping: shippingInfo(), PaymentMethod: "online"})
	require.NoError(t, err)
	require.NotNil(t, placement.Payment)
	assert.Equal(t, int64(250000), placement.Payment.Amount)
	assert.Equal(t, "rzp_test_key", placement.Payment.ProviderKeyID)
	assert.Equal(t, "9876543210", placement.Payment.Prefill.Phone)
	assert.Equal(t, enums.OrderStatusPending, placement.Order.Status)
	assert.Equal(t, enums.PaymentStatusPending, placement.Order.PaymentStatus)
	assert.Equal(t, 1, f.cartLines(t), "online placement must not clear the cart")
	assert.Equal(t, []enums.OutboxEventType{enums.EventOrderCreated}, f.events.events)
}

func TestPlaceOrderCODConfirmsAndClearsCart(t *testing.T) {
	f := newFixture(t, 0)
	f.pricer.coupon = &discounts.CouponResult{Valid: true, Code: "WELCOME", Amount: 10000}
	f.pricer.totals = pricing.Totals{Subtotal: 250000, CouponDiscount: 10000, TotalDiscount: 10000, Total: 240000}

	placement, err := f.svc.PlaceOrder(context.Background(), PlaceOrderInput{Shopper: guest, Shipping: shippingInfo(), PaymentMethod: "COD", CouponCode: "welcome"})
	require.NoError(t, err)
	assert.Nil(t, placement.Payment)
	assert.Equal(t, enums.OrderStatusConfirmed, placement.Order.Status)
	assert.Equal(t, enums.PaymentStatusPendingCOD, placement.Order.PaymentStatus)
	require.NotNil(t, placement.Order.CouponCode)
	assert.Equal(t, "WELCOME", *placement.Order.CouponCode)
	assert.Len(t, placement.Order.Items, 1)
	assert.Equal(t, 1, f.redeemer.redeemed)
	assert.Equal(t, []enums.OutboxEventType{enums.EventOrderCreated, enums.EventOrderConfirmed}, f.events.events)
	assert.Zero(t, f.cartLines(t))
}

func TestVerifyPaymentAfterSweepSettledClearsCart(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	placement, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{Shopper: guest, Shipping: shippingInfo(), PaymentMethod: "online"})
	require.NoError(t, err)

	sweeper, err := orders.NewService(orders.NewRepository(f.conn), f.events)
	require.NoError(t, err)
	require.NoError(t, f.conn.Transaction(func(tx *gorm.DB) error {
		_, err := sweeper.MarkPaid(ctx, tx, placement.Order.ID, orders.Payment{Source: payloads.SourceSweep})
		return err
	}))
	require.Equal(t, 1, f.cartLines(t))

	in := VerifyInput{
		Shopper:           guest,
		OrderID:           placement.Order.ID,
		ProviderOrderID:   placement.Payment.ProviderOrderID,
		ProviderPaymentID: "pay_late",
		ProviderSignature: "sig",
	}
	f.gateway.verify = payments.VerifyResult{Success: false, Reason: "signature mismatch"}
	_, err = f.svc.VerifyPayment(ctx, in)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, 1, f.cartLines(t))

	f.gateway.verify = payments.VerifyResult{Success: true}
	view, err := f.svc.VerifyPayment(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, view.PaymentStatus)
	assert.Zero(t, f.cartLines(t))
	assert.Equal(t, []enums.OutboxEventType{enums.EventOrderCreated, enums.EventOrderPaid}, f.events.events)
}

func TestVerifyPaymentFailureKeepsOrderPendingAndCart(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	placement, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{Shopper: guest, Shipping: shippingInfo(), PaymentMethod: "online"})
	require.NoError(t, err)

	f.gateway.verify = payments.VerifyResult{Success: false, Reason: "signature mismatch"}
	_, err = f.svc.VerifyPayment(ctx, VerifyInput{
		Shopper:           guest,
		OrderID:           placement.Order.ID,
		ProviderOrderID:   placement.Payment.ProviderOrderID,
		ProviderPaymentID: "pay_1",
		ProviderSignature: "bad",
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodePaymentVerification, typed.Code())
	assert.Equal(t, true, typed.Details().(map[string]any)["retryable"])

	order, err := orders.NewRepository(f.conn).FindByID(ctx, placement.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatePendingOnline, orders.StateOf(order))
	require.NotNil(t, order.PaymentIntent)
	assert.Equal(t, 1, order.PaymentIntent.Attempts)
	assert.Equal(t, 1, f.cartLines(t), "failed verification must not clear the cart")

	f.gateway.verify = payments.VerifyResult{Success: true}
	view, err := f.svc.VerifyPayment(ctx, VerifyInput{
		Shopper:           guest,
		OrderID:           placement.Order.ID,
		ProviderOrderID:   placement.Payment.ProviderOrderID,
		ProviderPaymentID: "pay_2",
		ProviderSignature: "good",
	})
	require.NoError(t, err, "a retry after a failed verification must succeed")
	assert.Equal(t, enums.PaymentStatusPaid, view.PaymentStatus)
	assert.Zero(t, f.cartLines(t))
}

func TestVerifyPaymentIsIdempotent(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	placement, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{Shopper: guest, Shipping: shippingInfo(), PaymentMethod: "online"})
	require.NoError(t, err)

	in := VerifyInput{
		Shopper:           guest,
		OrderID:           placement.Order.ID,
		ProviderOrderID:   placement.Payment.ProviderOrderID,
		ProviderPaymentID: "pay_1",
		ProviderSignature: "sig",
	}
	first, err := f.svc.VerifyPayment(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, first.Status)

	again, err := f.svc.VerifyPayment(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, again.PaymentStatus)
	assert.Equal(t, 1, f.gateway.verified, "replay must not hit the gateway")
	assert.Equal(t, []enums.OutboxEventType{enums.EventOrderCreated, enums.EventOrderPaid}, f.events.events)

	in.ProviderOrderID = "order_other"
	_, err = f.svc.VerifyPayment(ctx, in)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestPlaceOrderGatewayFailureCancelsOrder(t *testing.T) {
	f := newFixture(t, 0)
	f.gateway.createErr = fmt.Errorf("%w: 401", payments.ErrGatewayMisconfigured)

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderInput{Shopper: guest, Shipping: shippingInfo(), PaymentMethod: "online"})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodePaymentInitiation, typed.Code())
	assert.Equal(t, "gateway_misconfigured", typed.Details().(map[string]any)["hint"])

	var order models.Order
	require.NoError(t, f.conn.First(&order).Error)
	assert.Equal(t, orders.StateCancelled, orders.StateOf(&order))
	require.NotNil(t, order.CancelReason)
	assert.Equal(t, orders.ReasonPaymentInitiationFailed, *order.CancelReason)
	assert.Equal(t, 1, f.cartLines(t))
	assert.Equal(t, []enums.OutboxEventType{enums.EventOrderCreated, enums.EventOrderCancelled}, f.events.events)
}

func TestPlaceOrderGatewayFailureReleasesCoupon(t *testing.T) {
	f := buildFixture(t, 0, true)
	ctx := context.Background()
	coupon := &models.Coupon{
		Code:             "WELCOME",
		DiscountType:     enums.DiscountTypeFlat,
		DiscountValue:    decimal.NewFromInt(10000),
		UsageLimit:       intPtr(1),
		PerCustomerLimit: intPtr(1),
		Active:           true,
	}
	require.NoError(t, f.conn.Create(coupon).Error)
	in := PlaceOrderInput{Shopper: guest, Shipping: shippingInfo(), PaymentMethod: "online", CouponCode: "welcome"}

	f.gateway.createErr = errors.New("gateway timeout")
	_, err := f.svc.PlaceOrder(ctx, in)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentInitiation))

	var redemptions int64
	require.NoError(t, f.conn.Model(&models.CouponRedemption{}).Count(&redemptions).Error)
	assert.Zero(t, redemptions)
	var reloaded models.Coupon
	require.NoError(t, f.conn.First(&reloaded, "id = ?", coupon.ID).Error)
	assert.Zero(t, reloaded.UsedCount)

	f.gateway.createErr = nil
	placement, err := f.svc.PlaceOrder(ctx, in)
	require.NoError(t, err)
	assert.Empty(t, placement.CouponMessage)
	require.NotNil(t, placement.Order.CouponCode)
	assert.Equal(t, "WELCOME", *placement.Order.CouponCode)
	assert.Equal(t, int64(240000), placement.Payment.Amount)

	require.NoError(t, f.conn.First(&reloaded, "id = ?", coupon.ID).Error)
	assert.Equal(t, 1, reloaded.UsedCount)
}

func TestPlaceOrderRejectsBeforeWriting(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(f *fixture, in *PlaceOrderInput)
		code   pkgerrors.Code
	}{
		{
			name:   "missing phone",
			mutate: func(_ *fixture, in *PlaceOrderInput) { in.Shipping.Phone = "" },
			code:   pkgerrors.CodeValidation,
		},
		{
			name:   "unknown payment method",
			mutate: func(_ *fixture, in *PlaceOrderInput) { in.PaymentMethod = "upi" },
			code:   pkgerrors.CodeValidation,
		},
		{
			name: "empty cart",
			mutate: func(f *fixture, _ *PlaceOrderInput) {
				require.NoError(t, f.store.Clear(context.Background(), guest.Key()))
			},
			code: pkgerrors.CodeValidation,
		},
		{
			name: "quote unavailable",
			mutate: func(f *fixture, _ *PlaceOrderInput) {
				f.pricer.err = pkgerrors.New(pkgerrors.CodeQuoteUnavailable, "shipping quote unavailable")
			},
			code: pkgerrors.CodeQuoteUnavailable,
		},
		{
			name: "customer resolution",
			mutate: func(f *fixture, _ *PlaceOrderInput) {
				f.customers.err = pkgerrors.New(pkgerrors.CodeCustomerResolution, "We could not set up your customer profile. Please try again.")
			},
			code: pkgerrors.CodeCustomerResolution,
		},
		{
			name:   "anonymous shopper",
			mutate: func(_ *fixture, in *PlaceOrderInput) { in.Shopper = auth.Shopper{} },
			code:   pkgerrors.CodeUnauthorized,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, 0)
			in := PlaceOrderInput{Shopper: guest, Shipping: shippingInfo(), PaymentMethod: "cod"}
			tc.mutate(f, &in)

			_, err := f.svc.PlaceOrder(context.Background(), in)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)
			assert.Zero(t, f.orderCount(t))
			assert.Empty(t, f.events.events)
		})
	}
}

func TestReportPaymentFailureKeepsOrderPending(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	placement, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{Shopper: guest, Shipping: shippingInfo(), PaymentMethod: "online"})
	require.NoError(t, err)

	err = f.svc.ReportPaymentFailure(ctx, guest, placement.Order.ID, PaymentFailureReport{ProviderPaymentID: "pay_9", Reason: "card declined"})
	require.NoError(t, err)

	order, err := orders.NewRepository(f.conn).FindByID(ctx, placement.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatePendingOnline, orders.StateOf(order))
	assert.Equal(t, enums.IntentStatusFailed, order.PaymentIntent.Status)
	assert.Equal(t, 1, f.cartLines(t))
	assert.Equal(t, []enums.OutboxEventType{enums.EventOrderCreated, enums.EventPaymentFailed}, f.events.events)

	other := auth.Shopper{GuestSessionID: "someone-else"}
	f.customers.customer = &models.Customer{ID: uuid.New()}
	err = f.svc.ReportPaymentFailure(ctx, other, placement.Order.ID, PaymentFailureReport{Reason: "x"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func intPtr(v int) *int { return &v }
