package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxIdleBackoff        = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// topicPublisher publishes ordered messages to one topic. A failed publish
// pauses its ordering key until ResumePublish is called.
type topicPublisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type publisherFactory func(topic string) topicPublisher

// outcome is what happened to one outbox row in a batch.
type outcome string

const (
	outcomePublished   outcome = "published"
	outcomeRetry       outcome = "retry"
	outcomeHeld        outcome = "held"
	outcomeUndecodable outcome = "non_retryable"
	outcomeExhausted   outcome = "max_attempts"
)

type RelayParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         dbClient
	PubSub     pubSubClient
	Repository outboxRepository
	Registry   registryResolver
	Metrics    *metrics.OutboxMetrics
	// Publishers overrides how topic publishers are built.
	Publishers publisherFactory
}

// Relay moves committed order events from outbox_events to Pub/Sub. Events
// of one order are published in commit order under the order id as ordering
// key.
type Relay struct {
	logg         *logger.Logger
	db           dbClient
	pubsub       pubSubClient
	repo         outboxRepository
	registry     registryResolver
	metrics      *metrics.OutboxMetrics
	publishers   map[string]topicPublisher
	newPublisher publisherFactory
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func NewRelay(params RelayParams) (*Relay, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	r := &Relay{
		logg:         params.Logger,
		db:           params.DB,
		pubsub:       params.PubSub,
		repo:         params.Repository,
		registry:     params.Registry,
		metrics:      params.Metrics,
		publishers:   map[string]topicPublisher{},
		newPublisher: params.Publishers,
		batchSize:    positiveOr(params.Config.Outbox.BatchSize, defaultBatchSize),
		maxAttempts:  positiveOr(params.Config.Outbox.MaxAttempts, defaultMaxAttempts),
		pollInterval: defaultPollInterval,
	}
	if ms := params.Config.Outbox.PollIntervalMS; ms > 0 {
		r.pollInterval = time.Duration(ms) * time.Millisecond
	}
	if r.newPublisher == nil {
		r.newPublisher = r.orderedPublisher
	}
	return r, nil
}

func positiveOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func (r *Relay) orderedPublisher(topic string) topicPublisher {
	p := r.pubsub.Publisher(topic)
	if p == nil {
		return nil
	}
	p.EnableMessageOrdering = true
	return &gcpPublisher{Publisher: p}
}

// publisherFor caches one publisher per topic; ordering only holds within a
// single publisher.
func (r *Relay) publisherFor(topic string) topicPublisher {
	if p, ok := r.publishers[topic]; ok {
		return p
	}
	p := r.newPublisher(topic)
	if p != nil {
		r.publishers[topic] = p
	}
	return p
}

// Run polls until ctx is cancelled. An empty or failed poll waits before the
// next one; failures back off exponentially up to maxIdleBackoff.
func (r *Relay) Run(ctx context.Context) error {
	deps := []struct {
		name string
		ping func(context.Context) error
	}{{"database", r.db.Ping}, {"pubsub", r.pubsub.Ping}}
	for _, dep := range deps {
		if err := dep.ping(ctx); err != nil {
			r.logg.Error(ctx, dep.name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}

	wait := r.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "order event relay stopping")
			return err
		}

		drained, err := r.relayBatch(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "order event batch failed", err)
			wait = min(wait*2, maxIdleBackoff)
		case !drained:
			wait = r.pollInterval
			continue
		default:
			wait = r.pollInterval
		}
		if err := sleepCtx(ctx, wait+time.Duration(jitterSource.Int63n(int64(jitterWindow)))); err != nil {
			return err
		}
	}
}

// relayBatch claims one batch and settles every row in it. drained reports
// that no rows were pending.
func (r *Relay) relayBatch(ctx context.Context) (drained bool, err error) {
	drained = true
	err = r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.repo.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return err
		}
		drained = len(rows) == 0

		// orders whose earlier event did not go out in this batch
		held := map[uuid.UUID]struct{}{}
		for _, row := range rows {
			if _, blocked := held[row.AggregateID]; blocked && row.AggregateType == enums.AggregateOrder {
				r.metrics.IncEvent(string(row.EventType), string(outcomeHeld))
				continue
			}
			result, cause := r.deliver(ctx, row)
			if err := r.settle(ctx, tx, row, result, cause); err != nil {
				return err
			}
			if result == outcomeRetry {
				held[row.AggregateID] = struct{}{}
			}
		}
		return nil
	})
	return drained, err
}

func (r *Relay) deliver(ctx context.Context, row models.OutboxEvent) (outcome, error) {
	resolved, err := r.registry.Resolve(row)
	if err != nil {
		return outcomeUndecodable, err
	}
	err = r.publish(ctx, row, resolved)
	var nonRetryable registry.NonRetryableError
	switch {
	case err == nil:
		return outcomePublished, nil
	case errors.As(err, &nonRetryable):
		return outcomeUndecodable, err
	case row.AttemptCount+1 >= r.maxAttempts:
		return outcomeExhausted, fmt.Errorf("max publish attempts reached: %w", err)
	default:
		return outcomeRetry, err
	}
}

func (r *Relay) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, result outcome, cause error) error {
	r.metrics.IncEvent(string(row.EventType), string(result))
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"order_id":      row.AggregateID.String(),
		"attempt_count": row.AttemptCount,
		"outcome":       result,
	})

	switch result {
	case outcomePublished:
		if err := r.repo.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		r.logg.Info(logCtx, "order event published")
	case outcomeRetry:
		r.logg.Warn(r.logg.WithField(logCtx, "error", cause.Error()), "order event publish failed, will retry")
		if err := r.repo.MarkFailedTx(tx, row.ID, cause); err != nil {
			return fmt.Errorf("mark failure %s: %w", row.ID, err)
		}
	default:
		// the row keeps its last error until the retention job prunes it
		r.logg.Warn(r.logg.WithField(logCtx, "error", cause.Error()), "order event will not be retried")
		if err := r.repo.MarkTerminalTx(tx, row.ID, cause, r.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", row.ID, err)
		}
	}
	return nil
}

func (r *Relay) publish(ctx context.Context, row models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := r.publisherFor(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	msg := &gcppubsub.Message{
		Data:        row.Payload,
		OrderingKey: orderingKey(row),
		Attributes:  messageAttributes(row, resolved),
	}
	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	if _, err := result.Get(publishCtx); err != nil {
		if msg.OrderingKey != "" {
			pub.ResumePublish(msg.OrderingKey)
		}
		return err
	}
	return nil
}

// orderingKey keeps every event of one order on one ordered stream.
func orderingKey(row models.OutboxEvent) string {
	if row.AggregateType != enums.AggregateOrder {
		return ""
	}
	return row.AggregateID.String()
}

// messageAttributes lets subscribers filter by order, payment method or
// settlement source without decoding the payload.
func messageAttributes(row models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]string {
	attrs := map[string]string{
		"event_id":    resolved.Envelope.EventID,
		"event_type":  string(row.EventType),
		"order_id":    row.AggregateID.String(),
		"occurred_at": resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if actor := resolved.Envelope.Actor; actor != nil {
		attrs["actor_kind"] = actor.Kind
	}
	switch p := resolved.Payload.(type) {
	case *payloads.OrderCreatedEvent:
		attrs["payment_method"] = string(p.PaymentMethod)
		attrs["currency"] = p.Currency
		if p.CouponCode != nil {
			attrs["coupon_code"] = *p.CouponCode
		}
	case *payloads.OrderConfirmedEvent:
		attrs["payment_method"] = string(p.PaymentMethod)
	case *payloads.OrderPaidEvent:
		attrs["payment_method"] = string(enums.PaymentMethodOnline)
		attrs["currency"] = p.Currency
		attrs["source"] = p.Source
	case *payloads.PaymentFailedEvent:
		attrs["payment_method"] = string(enums.PaymentMethodOnline)
		attrs["source"] = p.Source
	case *payloads.OrderCancelledEvent:
		attrs["cancel_reason"] = p.Reason
	}
	return attrs
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
