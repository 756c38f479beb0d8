package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

const (
	defaultPendingTTL     = 30 * time.Minute
	defaultSweepBatchSize = 100
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type staleOrderReader interface {
	FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	FindIntentByOrder(ctx context.Context, orderID uuid.UUID) (*models.PaymentIntent, error)
}

type orderTransitioner interface {
	MarkPaid(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, payment orders.Payment) (*models.Order, error)
	Cancel(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string, actor *outbox.ActorRef) (*models.Order, error)
}

type statusFetcher interface {
	FetchStatus(ctx context.Context, providerOrderID string) (payments.Status, error)
}

// OrderTTLJobParams configure the pending online order sweep.
type OrderTTLJobParams struct {
	Logger *logger.Logger
	DB     txRunner
	Orders staleOrderReader
	State  orderTransitioner
	// Gateway may be nil; stale orders are then cancelled without a status
	// check.
	Gateway    statusFetcher
	PendingTTL time.Duration
	BatchSize  int
}

// NewOrderTTLJob builds the job that settles online orders left pending past
// the TTL. The gateway decides: a paid provider order confirms the order,
// anything else cancels it as abandoned.
func NewOrderTTLJob(params OrderTTLJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders reader required")
	}
	if params.State == nil {
		return nil, fmt.Errorf("orders service required")
	}
	ttl := params.PendingTTL
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatchSize
	}
	return &orderTTLJob{
		logg:    params.Logger,
		db:      params.DB,
		orders:  params.Orders,
		state:   params.State,
		gateway: params.Gateway,
		ttl:     ttl,
		batch:   batch,
		now:     time.Now,
	}, nil
}

type orderTTLJob struct {
	logg    *logger.Logger
	db      txRunner
	orders  staleOrderReader
	state   orderTransitioner
	gateway statusFetcher
	ttl     time.Duration
	batch   int
	now     func() time.Time
}

func (j *orderTTLJob) Name() string { return "order-ttl" }

// Run settles one batch. A failure on one order does not stop the others;
// the order stays pending and is retried next cycle.
func (j *orderTTLJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	stale, err := j.orders.FindStalePending(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("query stale pending orders: %w", err)
	}

	var errs error
	paid, cancelled := 0, 0
	for _, order := range stale {
		wasPaid, err := j.settle(ctx, order)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
			continue
		}
		if wasPaid {
			paid++
		} else {
			cancelled++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":    cutoff,
		"scanned":   len(stale),
		"paid":      paid,
		"cancelled": cancelled,
	})
	j.logg.Info(logCtx, "pending order sweep complete")
	return errs
}

func (j *orderTTLJob) settle(ctx context.Context, order models.Order) (bool, error) {
	status, err := j.providerStatus(ctx, order.ID)
	if err != nil {
		return false, err
	}

	err = j.db.WithTx(ctx, func(tx *gorm.DB) error {
		if status.Paid {
			_, err := j.state.MarkPaid(ctx, tx, order.ID, orders.Payment{Source: payloads.SourceSweep})
			return err
		}
		_, err := j.state.Cancel(ctx, tx, order.ID, orders.ReasonPaymentAbandoned, nil)
		return err
	})
	if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		// settled concurrently by verification or the webhook
		return status.Paid, nil
	}
	return status.Paid, err
}

func (j *orderTTLJob) providerStatus(ctx context.Context, orderID uuid.UUID) (payments.Status, error) {
	intent, err := j.orders.FindIntentByOrder(ctx, orderID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return payments.Status{}, nil
		}
		return payments.Status{}, err
	}
	if j.gateway == nil {
		return payments.Status{ProviderOrderID: intent.ProviderOrderID}, nil
	}
	status, err := j.gateway.FetchStatus(ctx, intent.ProviderOrderID)
	if err != nil {
		return payments.Status{}, fmt.Errorf("fetch gateway status: %w", err)
	}
	return status, nil
}
