package orders

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

const maxIntentErrorLen = 500

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type couponReleaser interface {
	Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}

// Service owns order state changes. Every change is written together with
// its outbox event in the caller's transaction.
type Service struct {
	repo    Repository
	outbox  outboxPublisher
	coupons couponReleaser
	now     func() time.Time
}

type Option func(*Service)

// WithCouponReleaser returns the coupon use of an order when it is cancelled.
func WithCouponReleaser(r couponReleaser) Option {
	return func(s *Service) {
		s.coupons = r
	}
}

func NewService(repo Repository, publisher outboxPublisher, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	s := &Service{repo: repo, outbox: publisher, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Payment describes a captured online payment.
type Payment struct {
	ProviderPaymentID string
	Source            string
	Actor             *outbox.ActorRef
}

// Failure describes a failed payment attempt.
type Failure struct {
	ProviderPaymentID string
	Reason            string
	Source            string
	Actor             *outbox.ActorRef
}

// Get returns the order if it belongs to customerID. Someone else's order is
// reported as not found.
func (s *Service) Get(ctx context.Context, id, customerID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != customerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *Service) List(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	rows, next, err := s.repo.ListForCustomer(ctx, customerID, params)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	list := &OrderList{Orders: make([]OrderView, 0, len(rows)), NextCursor: next}
	for i := range rows {
		list.Orders = append(list.Orders, NewOrderView(&rows[i]))
	}
	return list, nil
}

// ConfirmCOD accepts a freshly placed COD order for fulfilment.
func (s *Service) ConfirmCOD(ctx context.Context, tx *gorm.DB, order *models.Order, actor *outbox.ActorRef) error {
	now := s.now().UTC()
	if err := s.transition(ctx, tx, order, StateConfirmedCOD, map[string]any{"confirmed_at": now}); err != nil {
		return err
	}
	order.ConfirmedAt = &now
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderConfirmed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorOrSystem(actor),
		OccurredAt:    now,
		Data: payloads.OrderConfirmedEvent{
			OrderID:       order.ID,
			CustomerID:    order.CustomerID,
			PaymentMethod: order.PaymentMethod,
			TotalPaise:    order.TotalPaise,
			ConfirmedAt:   now,
		},
	})
}

// MarkPaid confirms an online order and captures its intent. Repeating the
// call with the same payment id is a no-op.
func (s *Service) MarkPaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, payment Payment) (*models.Order, error) {
	repo := s.repo.WithTx(tx)
	order, err := repo.FindByIDForUpdate(ctx, orderID)
	if err != nil {
		return nil, err
	}
	intent, err := repo.FindIntentByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if StateOf(order) == StatePaid {
		if intent.ProviderPaymentID == nil || payment.ProviderPaymentID == "" || *intent.ProviderPaymentID == payment.ProviderPaymentID {
			order.PaymentIntent = intent
			return order, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid by another payment")
	}

	now := s.now().UTC()
	if err := s.transition(ctx, tx, order, StatePaid, map[string]any{"confirmed_at": now}); err != nil {
		return nil, err
	}
	order.ConfirmedAt = &now

	updates := map[string]any{
		"status":      enums.IntentStatusCaptured,
		"captured_at": now,
		"last_error":  nil,
	}
	if payment.ProviderPaymentID != "" {
		updates["provider_payment_id"] = payment.ProviderPaymentID
	}
	if err := repo.UpdateIntent(ctx, intent.ID, updates); err != nil {
		return nil, err
	}
	intent.Status = enums.IntentStatusCaptured
	intent.CapturedAt = &now
	if payment.ProviderPaymentID != "" {
		pid := payment.ProviderPaymentID
		intent.ProviderPaymentID = &pid
	}
	order.PaymentIntent = intent

	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorOrSystem(payment.Actor),
		OccurredAt:    now,
		Data: payloads.OrderPaidEvent{
			OrderID:           order.ID,
			CustomerID:        order.CustomerID,
			ProviderOrderID:   intent.ProviderOrderID,
			ProviderPaymentID: payment.ProviderPaymentID,
			AmountPaise:       intent.AmountPaise,
			Currency:          intent.Currency,
			Source:            payment.Source,
			PaidAt:            now,
		},
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Cancel moves a pending order to cancelled/failed. Cancelling a cancelled
// order is a no-op.
func (s *Service) Cancel(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string, actor *outbox.ActorRef) (*models.Order, error) {
	repo := s.repo.WithTx(tx)
	order, err := repo.FindByIDForUpdate(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if StateOf(order) == StateCancelled {
		return order, nil
	}

	now := s.now().UTC()
	if err := s.transition(ctx, tx, order, StateCancelled, map[string]any{
		"cancel_reason": reason,
		"cancelled_at":  now,
	}); err != nil {
		return nil, err
	}
	order.CancelReason = &reason
	order.CancelledAt = &now

	if s.coupons != nil && order.CouponCode != nil {
		if err := s.coupons.Release(ctx, tx, orderID); err != nil {
			return nil, err
		}
	}

	if order.PaymentMethod == enums.PaymentMethodOnline {
		intent, err := repo.FindIntentByOrder(ctx, orderID)
		switch {
		case err == nil && intent.Status == enums.IntentStatusCreated:
			if err := repo.UpdateIntent(ctx, intent.ID, map[string]any{
				"status":     enums.IntentStatusFailed,
				"last_error": truncate(reason),
			}); err != nil {
				return nil, err
			}
		case err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
			return nil, err
		}
	}

	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCancelled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorOrSystem(actor),
		OccurredAt:    now,
		Data: payloads.OrderCancelledEvent{
			OrderID:     order.ID,
			CustomerID:  order.CustomerID,
			Reason:      reason,
			CancelledAt: now,
		},
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// RecordPaymentFailure notes a failed attempt on the intent and emits
// payment_failed. The order stays pending so the shopper can retry. Failures
// reported for an order that is no longer pending are ignored.
func (s *Service) RecordPaymentFailure(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, failure Failure) error {
	repo := s.repo.WithTx(tx)
	order, err := repo.FindByIDForUpdate(ctx, orderID)
	if err != nil {
		return err
	}
	if StateOf(order) != StatePendingOnline {
		return nil
	}
	intent, err := repo.FindIntentByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if err := s.noteAttempt(ctx, repo, intent, failure.Reason, failure.ProviderPaymentID, true); err != nil {
		return err
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentFailed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorOrSystem(failure.Actor),
		Data: payloads.PaymentFailedEvent{
			OrderID:           order.ID,
			ProviderOrderID:   intent.ProviderOrderID,
			ProviderPaymentID: failure.ProviderPaymentID,
			Reason:            failure.Reason,
			Source:            failure.Source,
			FailedAt:          s.now().UTC(),
		},
	})
}

// RecordVerificationAttempt counts a rejected verification on the intent
// without changing the order or emitting an event.
func (s *Service) RecordVerificationAttempt(ctx context.Context, intent *models.PaymentIntent, reason string) error {
	return s.noteAttempt(ctx, s.repo, intent, reason, "", false)
}

func (s *Service) noteAttempt(ctx context.Context, repo Repository, intent *models.PaymentIntent, reason, paymentID string, failed bool) error {
	updates := map[string]any{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": truncate(reason),
	}
	if paymentID != "" {
		updates["provider_payment_id"] = paymentID
	}
	if failed {
		updates["status"] = enums.IntentStatusFailed
	}
	return repo.UpdateIntent(ctx, intent.ID, updates)
}

func (s *Service) transition(ctx context.Context, tx *gorm.DB, order *models.Order, to State, fields map[string]any) error {
	from := StateOf(order)
	if !CanTransition(from, to) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order cannot move from %s to %s", from, to))
	}
	if err := s.repo.WithTx(tx).UpdateState(ctx, order.ID, from, to, fields); err != nil {
		if errors.Is(err, ErrStateConflict) {
			return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "order was updated concurrently")
		}
		return err
	}
	order.Status = to.Status
	order.PaymentStatus = to.PaymentStatus
	return nil
}

func actorOrSystem(actor *outbox.ActorRef) *outbox.ActorRef {
	if actor != nil {
		return actor
	}
	return &outbox.ActorRef{Kind: outbox.ActorSystem}
}

// truncate cuts msg to at most maxIntentErrorLen bytes on a rune boundary.
func truncate(msg string) string {
	if len(msg) <= maxIntentErrorLen {
		return msg
	}
	cut := maxIntentErrorLen
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
