package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/customers"
	"github.com/angelmondragon/storefront-backend/internal/discounts"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/quotes"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	pkgcheckout "github.com/angelmondragon/storefront-backend/pkg/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

const (
	msgCODUnavailable = "Cash on Delivery is not available for orders of this value. Please pay online."
	msgOrderCreation  = "We could not place your order. Please try again."
	msgGatewayDown    = "We could not start the payment. Please try again."
	msgGatewayConfig  = "Online payments are temporarily unavailable. Please choose Cash on Delivery or try again later."
	msgVerifyFailed   = "We could not confirm your payment. Your order is still pending, please try again. If money was deducted, contact support with your order id."
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type cartSnapshotter interface {
	Snapshot(ctx context.Context, owner string) ([]cart.Line, error)
}

type pricer interface {
	Price(ctx context.Context, in quotes.PriceInput) (*quotes.Priced, error)
	Rediscount(ctx context.Context, in quotes.PriceInput, priced *quotes.Priced) (*quotes.Priced, error)
}

type customerResolver interface {
	Resolve(ctx context.Context, shopper auth.Shopper, profile customers.Profile) (*models.Customer, error)
	ForShopper(ctx context.Context, shopper auth.Shopper) (*models.Customer, error)
}

type couponRedeemer interface {
	Redeem(ctx context.Context, tx *gorm.DB, result *discounts.CouponResult, customerID, orderID uuid.UUID) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type Params struct {
	Tx        txRunner
	Cart      cartSnapshotter
	CartStore cart.Clearer
	Pricer    pricer
	Customers customerResolver
	Orders    orders.Repository
	OrderSvc  *orders.Service
	Discounts couponRedeemer
	Outbox    outboxPublisher
	// Gateway may be nil; online checkout then fails with a payment
	// initiation error and the order is cancelled.
	Gateway      payments.Gateway
	Metrics      *metrics.CheckoutMetrics
	Logger       *logger.Logger
	Currency     string
	CODMaxAmount int64
}

// Service places orders and completes online payments. It is the only
// component that clears a cart, and only after a terminal success.
type Service struct {
	tx        txRunner
	cart      cartSnapshotter
	cartStore cart.Clearer
	pricer    pricer
	customers customerResolver
	orders    orders.Repository
	orderSvc  *orders.Service
	discounts couponRedeemer
	outbox    outboxPublisher
	gateway   payments.Gateway
	metrics   *metrics.CheckoutMetrics
	logg      *logger.Logger
	currency  string
	codMax    int64
}

func NewService(params Params) (*Service, error) {
	switch {
	case params.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.Cart == nil:
		return nil, fmt.Errorf("cart reader required")
	case params.CartStore == nil:
		return nil, fmt.Errorf("cart store required")
	case params.Pricer == nil:
		return nil, fmt.Errorf("pricer required")
	case params.Customers == nil:
		return nil, fmt.Errorf("customer resolver required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.OrderSvc == nil:
		return nil, fmt.Errorf("orders service required")
	case params.Discounts == nil:
		return nil, fmt.Errorf("coupon redeemer required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.CODMaxAmount < 0:
		return nil, fmt.Errorf("cod max amount must not be negative")
	}
	currency := params.Currency
	if currency == "" {
		currency = "INR"
	}
	return &Service{
		tx:        params.Tx,
		cart:      params.Cart,
		cartStore: params.CartStore,
		pricer:    params.Pricer,
		customers: params.Customers,
		orders:    params.Orders,
		orderSvc:  params.OrderSvc,
		discounts: params.Discounts,
		outbox:    params.Outbox,
		gateway:   params.Gateway,
		metrics:   params.Metrics,
		logg:      params.Logger,
		currency:  currency,
		codMax:    params.CODMaxAmount,
	}, nil
}

type PlaceOrderInput struct {
	Shopper       auth.Shopper
	Shipping      pkgcheckout.ShippingInfo
	PaymentMethod string
	CouponCode    string
}

// Placement is the result of a successful PlaceOrder. Payment is set for
// online orders and carries what the client needs to open the widget.
type Placement struct {
	Order         orders.OrderView `json:"order"`
	Payment       *PaymentSession  `json:"payment,omitempty"`
	CouponMessage string           `json:"coupon_message,omitempty"`
}

type PaymentSession struct {
	payments.Intent
	OrderID uuid.UUID `json:"order_id"`
	Prefill Prefill   `json:"prefill"`
}

type Prefill struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"contact"`
}

// PlaceOrder validates the form, reprices the cart and writes the order.
// COD orders are confirmed and the cart cleared. Online orders stay pending
// until the payment is verified.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (placement *Placement, err error) {
	defer func() {
		if err != nil {
			s.metrics.IncFailure(codeOf(err))
		}
	}()

	owner := in.Shopper.Key()
	if owner == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "shopper identity required")
	}
	ctx = s.logg.WithShopper(ctx, in.Shopper.UserID, in.Shopper.GuestSessionID)

	if err := pkgcheckout.ValidateShippingInfo(in.Shipping, in.PaymentMethod); err != nil {
		return nil, err
	}
	method, err := enums.ParsePaymentMethod(in.PaymentMethod)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "please check: payment_method").
			WithDetails(map[string]any{"invalid_fields": []string{"payment_method"}})
	}

	lines, err := s.cart.Snapshot(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "your cart is empty")
	}

	priceIn := quotes.PriceInput{
		Lines:       lines,
		Destination: quotes.Destination{PostalCode: in.Shipping.PostalCode, State: in.Shipping.State},
		CouponCode:  in.CouponCode,
	}
	priced, err := s.pricer.Price(ctx, priceIn)
	if err != nil {
		return nil, err
	}
	if err := s.gateCOD(method, priced.Totals.Total); err != nil {
		return nil, err
	}

	address := in.Shipping.Address()
	customer, err := s.customers.Resolve(ctx, in.Shopper, customers.Profile{
		Name:  address.Name,
		Email: address.Email,
		Phone: address.Phone,
	})
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithCustomerID(ctx, customer.ID.String())

	if coupon := priced.Discounts.Coupon; coupon != nil && coupon.Valid {
		// per-customer coupon limits need the resolved customer
		priceIn.CustomerID = &customer.ID
		if priced, err = s.pricer.Rediscount(ctx, priceIn, priced); err != nil {
			return nil, err
		}
		if err := s.gateCOD(method, priced.Totals.Total); err != nil {
			return nil, err
		}
	}
	if method == enums.PaymentMethodOnline && priced.Totals.Total <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing to pay online, please choose Cash on Delivery")
	}

	order := newOrder(customer.ID, method, s.currency, priced, address)
	actor := actorFor(in.Shopper, customer.ID)

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		if err := repo.Create(ctx, order); err != nil {
			return err
		}
		items := orderItems(order.ID, lines)
		if err := repo.CreateItems(ctx, items); err != nil {
			return err
		}
		order.Items = items
		if err := s.discounts.Redeem(ctx, tx, priced.Discounts.Coupon, customer.ID, order.ID); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			Data: payloads.OrderCreatedEvent{
				OrderID:       order.ID,
				CustomerID:    order.CustomerID,
				Status:        order.Status,
				PaymentMethod: order.PaymentMethod,
				PaymentStatus: order.PaymentStatus,
				Currency:      order.Currency,
				SubtotalPaise: order.SubtotalPaise,
				DiscountPaise: order.DiscountPaise,
				TotalPaise:    order.TotalPaise,
				ItemCount:     cart.TotalQuantity(lines),
				CouponCode:    order.CouponCode,
			},
		}); err != nil {
			return err
		}
		if method == enums.PaymentMethodCOD {
			return s.orderSvc.ConfirmCOD(ctx, tx, order, actor)
		}
		return nil
	})
	if err != nil {
		return nil, orderCreationError(err)
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	s.metrics.IncPlaced(string(method), order.TotalPaise)

	placement = &Placement{CouponMessage: priced.Discounts.CouponMessage()}
	if method == enums.PaymentMethodCOD {
		s.clearCart(ctx, owner)
		s.logg.Info(ctx, "cod order placed")
		placement.Order = orders.NewOrderView(order)
		return placement, nil
	}

	session, err := s.initiatePayment(ctx, order, address.Email, actor)
	if err != nil {
		return nil, err
	}
	s.logg.Info(ctx, "online order awaiting payment")
	placement.Order = orders.NewOrderView(order)
	placement.Payment = session
	return placement, nil
}

// gateCOD blocks COD above the configured maximum. Zero means unlimited.
func (s *Service) gateCOD(method enums.PaymentMethod, total int64) error {
	if method != enums.PaymentMethodCOD || s.codMax == 0 || total <= s.codMax {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeCODUnavailable, msgCODUnavailable).
		WithDetails(map[string]any{"cod_max_amount": s.codMax, "total": total})
}

func (s *Service) initiatePayment(ctx context.Context, order *models.Order, email string, actor *outbox.ActorRef) (*PaymentSession, error) {
	if s.gateway == nil {
		return nil, s.abandonOrder(ctx, order, actor, payments.ErrGatewayMisconfigured)
	}
	intent, err := s.gateway.CreateIntent(ctx, payments.IntentRequest{
		OrderID:  order.ID,
		Amount:   order.TotalPaise,
		Currency: order.Currency,
		Customer: payments.Customer{
			Name:  order.ShippingAddress.Name,
			Email: email,
			Phone: order.ShippingAddress.Phone,
		},
	})
	if err != nil {
		return nil, s.abandonOrder(ctx, order, actor, err)
	}

	record := &models.PaymentIntent{
		OrderID:         order.ID,
		Provider:        intent.Provider,
		ProviderOrderID: intent.ProviderOrderID,
		AmountPaise:     intent.Amount,
		Currency:        intent.Currency,
		Status:          enums.IntentStatusCreated,
	}
	if err := s.orders.CreateIntent(ctx, record); err != nil {
		return nil, s.abandonOrder(ctx, order, actor, err)
	}
	order.PaymentIntent = record

	return &PaymentSession{
		Intent:  intent,
		OrderID: order.ID,
		Prefill: Prefill{
			Name:  order.ShippingAddress.Name,
			Email: email,
			Phone: order.ShippingAddress.Phone,
		},
	}, nil
}

// abandonOrder cancels an online order whose payment could not be started so
// that no order stays active without a way to pay.
func (s *Service) abandonOrder(ctx context.Context, order *models.Order, actor *outbox.ActorRef, cause error) error {
	s.logg.Error(ctx, "payment initiation failed", cause)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := s.orderSvc.Cancel(ctx, tx, order.ID, orders.ReasonPaymentInitiationFailed, actor)
		return err
	})
	if err != nil {
		s.logg.Error(ctx, "cancel order after payment initiation failure", err)
	}

	hint, msg := "gateway_unavailable", msgGatewayDown
	if errors.Is(cause, payments.ErrGatewayMisconfigured) {
		hint, msg = "gateway_misconfigured", msgGatewayConfig
	}
	return pkgerrors.Wrap(pkgerrors.CodePaymentInitiation, cause, msg).
		WithDetails(map[string]any{"order_id": order.ID, "hint": hint})
}

type VerifyInput struct {
	Shopper           auth.Shopper
	OrderID           uuid.UUID
	ProviderOrderID   string
	ProviderPaymentID string
	ProviderSignature string
}

// VerifyPayment confirms a widget-reported payment. Verifying an order that
// is already paid by the same payment succeeds again. A rejected payment
// leaves the order pending and the cart untouched.
func (s *Service) VerifyPayment(ctx context.Context, in VerifyInput) (view *orders.OrderView, err error) {
	defer func() {
		if err != nil {
			s.metrics.IncFailure(codeOf(err))
		}
	}()

	order, customer, err := s.ownedOnlineOrder(ctx, in.Shopper, in.OrderID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	intent := order.PaymentIntent
	if intent == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no payment to verify")
	}
	if strings.TrimSpace(in.ProviderOrderID) != intent.ProviderOrderID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment does not belong to this order").
			WithDetails(map[string]any{"invalid_fields": []string{"provider_order_id"}})
	}

	switch orders.StateOf(order) {
	case orders.StatePaid:
		samePayment := intent.ProviderPaymentID != nil && *intent.ProviderPaymentID == in.ProviderPaymentID
		// the sweep settles from the provider order status and records no payment id
		if samePayment || (intent.ProviderPaymentID == nil && s.signatureValid(ctx, in)) {
			s.metrics.IncVerification("replayed")
			s.clearCart(ctx, in.Shopper.Key())
			v := orders.NewOrderView(order)
			return &v, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
	case orders.StatePendingOnline:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer awaiting payment")
	}

	if s.gateway == nil {
		return nil, s.rejectVerification(ctx, order, intent, "payment gateway not configured", payments.ErrGatewayMisconfigured)
	}
	result, err := s.gateway.Verify(ctx, payments.Verification{
		OrderID:           order.ID,
		ProviderOrderID:   in.ProviderOrderID,
		ProviderPaymentID: in.ProviderPaymentID,
		ProviderSignature: in.ProviderSignature,
	})
	if err != nil {
		return nil, s.rejectVerification(ctx, order, intent, "verification error: "+err.Error(), err)
	}
	if !result.Success {
		return nil, s.rejectVerification(ctx, order, intent, result.Reason, nil)
	}

	actor := actorFor(in.Shopper, customer.ID)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := s.orderSvc.MarkPaid(ctx, tx, order.ID, orders.Payment{
			ProviderPaymentID: in.ProviderPaymentID,
			Source:            payloads.SourceCheckout,
			Actor:             actor,
		})
		return err
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm payment")
	}
	s.metrics.IncVerification("verified")
	s.clearCart(ctx, in.Shopper.Key())
	s.logg.Info(ctx, "online payment verified")

	paid, err := s.orders.FindByID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	v := orders.NewOrderView(paid)
	return &v, nil
}

func (s *Service) signatureValid(ctx context.Context, in VerifyInput) bool {
	if s.gateway == nil {
		return false
	}
	result, err := s.gateway.Verify(ctx, payments.Verification{
		OrderID:           in.OrderID,
		ProviderOrderID:   in.ProviderOrderID,
		ProviderPaymentID: in.ProviderPaymentID,
		ProviderSignature: in.ProviderSignature,
	})
	return err == nil && result.Success
}

func (s *Service) rejectVerification(ctx context.Context, order *models.Order, intent *models.PaymentIntent, reason string, cause error) error {
	s.metrics.IncVerification("rejected")
	if err := s.orderSvc.RecordVerificationAttempt(ctx, intent, reason); err != nil {
		s.logg.Error(ctx, "record verification attempt", err)
	}
	s.logg.Warn(ctx, "payment verification rejected: "+reason)

	details := map[string]any{"order_id": order.ID, "retryable": true}
	if cause == nil {
		return pkgerrors.New(pkgerrors.CodePaymentVerification, msgVerifyFailed).WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodePaymentVerification, cause, msgVerifyFailed).WithDetails(details)
}

type PaymentFailureReport struct {
	ProviderPaymentID string
	Reason            string
}

// ReportPaymentFailure records a failure the widget reported. The order stays
// pending and the cart is untouched; retrying is a fresh shopper action.
func (s *Service) ReportPaymentFailure(ctx context.Context, shopper auth.Shopper, orderID uuid.UUID, report PaymentFailureReport) error {
	order, customer, err := s.ownedOnlineOrder(ctx, shopper, orderID)
	if err != nil {
		return err
	}
	reason := strings.TrimSpace(report.Reason)
	if reason == "" {
		reason = "payment failed"
	}
	actor := actorFor(shopper, customer.ID)
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.orderSvc.RecordPaymentFailure(ctx, tx, order.ID, orders.Failure{
			ProviderPaymentID: strings.TrimSpace(report.ProviderPaymentID),
			Reason:            reason,
			Source:            payloads.SourceWidget,
			Actor:             actor,
		})
	})
}

func (s *Service) ownedOnlineOrder(ctx context.Context, shopper auth.Shopper, orderID uuid.UUID) (*models.Order, *models.Customer, error) {
	if orderID == uuid.Nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	customer, err := s.customers.ForShopper(ctx, shopper)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, nil, err
	}
	order, err := s.orderSvc.Get(ctx, orderID, customer.ID)
	if err != nil {
		return nil, nil, err
	}
	if order.PaymentMethod != enums.PaymentMethodOnline {
		return nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not paid online")
	}
	return order, customer, nil
}

// clearCart runs after a terminal success. The order is already durable, so a
// failure here is logged and not returned.
func (s *Service) clearCart(ctx context.Context, owner string) {
	if owner == "" {
		return
	}
	if err := s.cartStore.Clear(ctx, owner); err != nil {
		s.logg.Error(ctx, "clear cart after checkout", err)
	}
}

func orderCreationError(err error) error {
	if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeOrderCreation, err, msgOrderCreation)
}

func codeOf(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return string(typed.Code())
	}
	return string(pkgerrors.CodeInternal)
}

func actorFor(shopper auth.Shopper, customerID uuid.UUID) *outbox.ActorRef {
	id := customerID
	kind := outbox.ActorUser
	if shopper.IsGuest() {
		kind = outbox.ActorGuest
	}
	return &outbox.ActorRef{CustomerID: &id, Kind: kind}
}
