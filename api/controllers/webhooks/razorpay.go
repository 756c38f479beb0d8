package webhooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/razorpay"
)

const (
	RazorpayConsumer = "razorpay-webhook"

	maxWebhookBody = 1 << 20
)

type RazorpayWebhookService interface {
	HandleEvent(ctx context.Context, event *razorpay.WebhookEvent) error
}

type webhookGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Delete(ctx context.Context, consumer, eventID string) error
}

// RazorpayWebhook handles Razorpay payment and order events. Deliveries are
// deduplicated by event id; a failed delivery releases its id so Razorpay's
// retry is processed.
func RazorpayWebhook(svc RazorpayWebhookService, webhookSecret string, guard webhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if strings.TrimSpace(webhookSecret) == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "razorpay webhook secret not configured"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get(razorpay.HeaderWebhookSignature)
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "razorpay signature missing"))
			return
		}
		if !razorpay.VerifyWebhookSignature(payload, sigHeader, webhookSecret) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid razorpay signature"))
			return
		}

		event, err := razorpay.ParseWebhookEvent(payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event"))
			return
		}

		eventID := strings.TrimSpace(r.Header.Get(razorpay.HeaderWebhookEventID))
		if eventID == "" {
			eventID = strings.TrimSpace(event.ID)
		}
		if eventID == "" {
			sum := sha256.Sum256(payload)
			eventID = hex.EncodeToString(sum[:])
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"razorpay_event":    event.Event,
				"razorpay_event_id": eventID,
			})
		}

		alreadyProcessed, err := guard.CheckAndMarkProcessed(ctx, RazorpayConsumer, eventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, nil)
			return
		}

		if err := svc.HandleEvent(ctx, event); err != nil {
			if delErr := guard.Delete(ctx, RazorpayConsumer, eventID); delErr != nil && logg != nil {
				logg.Error(ctx, "release webhook event id", delErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, "razorpay event processed")
		}
		responses.WriteSuccess(w, nil)
	}
}
