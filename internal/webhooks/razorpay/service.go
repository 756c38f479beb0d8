package razorpaywebhook

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/razorpay"
)

type intentFinder interface {
	FindIntentByProviderOrder(ctx context.Context, providerOrderID string) (*models.PaymentIntent, error)
}

type orderTransitioner interface {
	MarkPaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, payment orders.Payment) (*models.Order, error)
	RecordPaymentFailure(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, failure orders.Failure) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Intents           intentFinder
	Orders            orderTransitioner
	TransactionRunner txRunner
	Logger            *logger.Logger
}

// Service applies Razorpay payment events to orders. It never touches the
// cart; the shopper's own verification call owns that.
type Service struct {
	intents  intentFinder
	orders   orderTransitioner
	txRunner txRunner
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Intents == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "intent repo required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		intents:  params.Intents,
		orders:   params.Orders,
		txRunner: params.TransactionRunner,
		logg:     params.Logger,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *razorpay.WebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "razorpay event required")
	}

	switch event.Event {
	case razorpay.EventPaymentCaptured, razorpay.EventOrderPaid:
		intent, ok, err := s.lookup(ctx, event)
		if err != nil || !ok {
			return err
		}
		return s.markPaid(ctx, intent, event.PaymentID())
	case razorpay.EventPaymentFailed:
		intent, ok, err := s.lookup(ctx, event)
		if err != nil || !ok {
			return err
		}
		return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
			return s.orders.RecordPaymentFailure(ctx, tx, intent.OrderID, orders.Failure{
				ProviderPaymentID: event.PaymentID(),
				Reason:            failureReason(event),
				Source:            payloads.SourceWebhook,
			})
		})
	default:
		return nil
	}
}

// lookup resolves the local intent. Events for orders this service never
// created are acknowledged and dropped.
func (s *Service) lookup(ctx context.Context, event *razorpay.WebhookEvent) (*models.PaymentIntent, bool, error) {
	providerOrderID := strings.TrimSpace(event.ProviderOrderID())
	if providerOrderID == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "razorpay order id missing")
	}
	intent, err := s.intents.FindIntentByProviderOrder(ctx, providerOrderID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"event":             event.Event,
				"provider_order_id": providerOrderID,
			})
			s.logg.Warn(logCtx, "razorpay event for unknown order ignored")
			return nil, false, nil
		}
		return nil, false, err
	}
	return intent, true, nil
}

func (s *Service) markPaid(ctx context.Context, intent *models.PaymentIntent, paymentID string) error {
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := s.orders.MarkPaid(ctx, tx, intent.OrderID, orders.Payment{
			ProviderPaymentID: paymentID,
			Source:            payloads.SourceWebhook,
		})
		return err
	})
	if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		// Captured after the order was cancelled or paid by another
		// payment. Redelivery cannot fix this, so acknowledge it.
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":            intent.OrderID.String(),
			"provider_order_id":   intent.ProviderOrderID,
			"provider_payment_id": paymentID,
		})
		s.logg.Error(logCtx, "captured payment needs manual reconciliation", err)
		return nil
	}
	return err
}

func failureReason(event *razorpay.WebhookEvent) string {
	if reason := event.FailureReason(); reason != "" {
		return reason
	}
	return "payment failed"
}
