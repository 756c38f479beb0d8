package orders

import (
	"context"
	"strings"
	"testing"
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

type recordingPublisher struct {
	events []outbox.DomainEvent
}

func (r *recordingPublisher) Emit(_ context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if tx == nil {
		panic("emit outside transaction")
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recordingPublisher) types() []enums.OutboxEventType {
	out := make([]enums.OutboxEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

func newOrdersService(t *testing.T) (*Service, *gorm.DB, *recordingPublisher) {
	t.Helper()
	db := setupOrdersTestDB(t)
	pub := &recordingPublisher{}
	svc, err := NewService(NewRepository(db), pub)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, db, pub
}

func seedOnlineOrder(t *testing.T, db *gorm.DB) *models.Order {
	t.Helper()
	order := seedOrder(t, db, uuid.New(), enums.PaymentMethodOnline, StatePendingOnline, time.Now().UTC())
	if err := NewRepository(db).CreateIntent(context.Background(), &models.PaymentIntent{
		OrderID:         order.ID,
		Provider:        "razorpay",
		ProviderOrderID: "order_" + order.ID.String()[:8],
		AmountPaise:     order.TotalPaise,
		Currency:        "INR",
		Status:          enums.IntentStatusCreated,
	}); err != nil {
		t.Fatalf("create intent: %v", err)
	}
	return order
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	svc, db, pub := newOrdersService(t)
	ctx := context.Background()
	order := seedOnlineOrder(t, db)

	pay := func(paymentID string) (*models.Order, error) {
		var out *models.Order
		err := db.Transaction(func(tx *gorm.DB) error {
			var err error
			out, err = svc.MarkPaid(ctx, tx, order.ID, Payment{ProviderPaymentID: paymentID, Source: payloads.SourceCheckout})
			return err
		})
		return out, err
	}

	paid, err := pay("pay_1")
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if StateOf(paid) != StatePaid || paid.PaymentIntent.Status != enums.IntentStatusCaptured {
		t.Fatalf("unexpected state %s intent %s", StateOf(paid), paid.PaymentIntent.Status)
	}
	if _, err := pay("pay_1"); err != nil {
		t.Fatalf("repeat mark paid: %v", err)
	}
	if len(pub.events) != 1 || pub.events[0].EventType != enums.EventOrderPaid {
		t.Fatalf("expected exactly one order_paid, got %v", pub.types())
	}
	if actor := pub.events[0].Actor; actor == nil || actor.Kind != outbox.ActorSystem {
		t.Fatalf("expected system actor by default, got %+v", actor)
	}
	if _, err := pay("pay_2"); !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected conflict for a second payment, got %v", err)
	}
}

func TestCancelIsFinal(t *testing.T) {
	svc, db, pub := newOrdersService(t)
	ctx := context.Background()
	order := seedOnlineOrder(t, db)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Cancel(ctx, tx, order.ID, "payment_initiation_failed", nil)
		return err
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got, err := NewRepository(db).FindByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if StateOf(got) != StateCancelled || got.CancelReason == nil || *got.CancelReason != "payment_initiation_failed" {
		t.Fatalf("unexpected cancelled order %+v", got)
	}
	if got.PaymentIntent.Status != enums.IntentStatusFailed {
		t.Fatalf("expected intent failed, got %s", got.PaymentIntent.Status)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.MarkPaid(ctx, tx, order.ID, Payment{ProviderPaymentID: "pay_late"})
		return err
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected cancelled order to refuse payment, got %v", err)
	}
	if types := pub.types(); len(types) != 1 || types[0] != enums.EventOrderCancelled {
		t.Fatalf("unexpected events %v", types)
	}
}

type recordingReleaser struct{ released []uuid.UUID }

func (r *recordingReleaser) Release(_ context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	if tx == nil {
		panic("release outside transaction")
	}
	r.released = append(r.released, orderID)
	return nil
}

func TestCancelReleasesCoupon(t *testing.T) {
	db := setupOrdersTestDB(t)
	releaser := &recordingReleaser{}
	svc, err := NewService(NewRepository(db), &recordingPublisher{}, WithCouponReleaser(releaser))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	withCoupon := seedOnlineOrder(t, db)
	if err := db.Model(&models.Order{}).Where("id = ?", withCoupon.ID).Update("coupon_code", "WELCOME").Error; err != nil {
		t.Fatalf("set coupon: %v", err)
	}
	plain := seedOnlineOrder(t, db)

	for _, id := range []uuid.UUID{withCoupon.ID, plain.ID, withCoupon.ID} {
		err := db.Transaction(func(tx *gorm.DB) error {
			_, err := svc.Cancel(ctx, tx, id, ReasonPaymentAbandoned, nil)
			return err
		})
		if err != nil {
			t.Fatalf("cancel %s: %v", id, err)
		}
	}
	if len(releaser.released) != 1 || releaser.released[0] != withCoupon.ID {
		t.Fatalf("expected one release for the coupon order, got %v", releaser.released)
	}
}

func TestTruncateKeepsRuneBoundary(t *testing.T) {
	msg := strings.Repeat("a", maxIntentErrorLen-1) + "₹ declined"
	got := truncate(msg)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated message is not valid utf-8")
	}
	if got != strings.Repeat("a", maxIntentErrorLen-1) {
		t.Fatalf("expected cut before the rupee sign, got %d bytes", len(got))
	}
	if truncate("short") != "short" {
		t.Fatalf("short message must be unchanged")
	}
}

func TestConfirmCOD(t *testing.T) {
	svc, db, pub := newOrdersService(t)
	ctx := context.Background()
	order := seedOrder(t, db, uuid.New(), enums.PaymentMethodCOD, StatePendingCOD, time.Now().UTC())

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.ConfirmCOD(ctx, tx, order, &outbox.ActorRef{Kind: outbox.ActorGuest})
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if StateOf(order) != StateConfirmedCOD || order.ConfirmedAt == nil {
		t.Fatalf("unexpected state %s", StateOf(order))
	}
	if len(pub.events) != 1 || pub.events[0].EventType != enums.EventOrderConfirmed {
		t.Fatalf("unexpected events %v", pub.types())
	}
}

func TestRecordPaymentFailureKeepsOrderPending(t *testing.T) {
	svc, db, pub := newOrdersService(t)
	ctx := context.Background()
	order := seedOnlineOrder(t, db)

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.RecordPaymentFailure(ctx, tx, order.ID, Failure{ProviderPaymentID: "pay_x", Reason: "card declined", Source: payloads.SourceWidget})
	})
	if err != nil {
		t.Fatalf("record failure: %v", err)
	}
	got, _ := NewRepository(db).FindByID(ctx, order.ID)
	if StateOf(got) != StatePendingOnline {
		t.Fatalf("order must stay pending, got %s", StateOf(got))
	}
	if got.PaymentIntent.Attempts != 1 || got.PaymentIntent.LastError == nil || *got.PaymentIntent.LastError != "card declined" {
		t.Fatalf("unexpected intent %+v", got.PaymentIntent)
	}
	if len(pub.events) != 1 || pub.events[0].EventType != enums.EventPaymentFailed {
		t.Fatalf("unexpected events %v", pub.types())
	}

	if err := svc.RecordVerificationAttempt(ctx, got.PaymentIntent, "signature mismatch"); err != nil {
		t.Fatalf("record attempt: %v", err)
	}
	got, _ = NewRepository(db).FindByID(ctx, order.ID)
	if got.PaymentIntent.Attempts != 2 || len(pub.events) != 1 {
		t.Fatalf("verification attempt should count without an event, attempts=%d", got.PaymentIntent.Attempts)
	}
}

func TestGetChecksOwnership(t *testing.T) {
	svc, db, _ := newOrdersService(t)
	ctx := context.Background()
	order := seedOnlineOrder(t, db)

	if _, err := svc.Get(ctx, order.ID, order.CustomerID); err != nil {
		t.Fatalf("owner get: %v", err)
	}
	if _, err := svc.Get(ctx, order.ID, uuid.New()); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found for another customer, got %v", err)
	}

	list, err := svc.List(ctx, order.CustomerID, pagination.Params{Limit: 10})
	if err != nil || len(list.Orders) != 1 || list.Orders[0].ID != order.ID {
		t.Fatalf("unexpected list %+v %v", list, err)
	}
}
