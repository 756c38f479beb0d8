package razorpay

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventOrderPaid       = "order.paid"

	HeaderWebhookSignature = "X-Razorpay-Signature"
	HeaderWebhookEventID   = "X-Razorpay-Event-Id"
)

// WebhookEvent is the subset of a Razorpay webhook body the storefront reads.
type WebhookEvent struct {
	ID        string         `json:"id,omitempty"`
	Event     string         `json:"event"`
	AccountID string         `json:"account_id,omitempty"`
	CreatedAt int64          `json:"created_at,omitempty"`
	Payload   WebhookPayload `json:"payload"`
}

type WebhookPayload struct {
	Payment *PaymentEntityWrapper `json:"payment,omitempty"`
	Order   *OrderEntityWrapper   `json:"order,omitempty"`
}

type PaymentEntityWrapper struct {
	Entity PaymentEntity `json:"entity"`
}

type OrderEntityWrapper struct {
	Entity Order `json:"entity"`
}

type PaymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Status           string `json:"status"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Method           string `json:"method,omitempty"`
	ErrorCode        string `json:"error_code,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorReason      string `json:"error_reason,omitempty"`
}

// ParseWebhookEvent decodes a webhook body. The body must already have passed
// VerifyWebhookSignature.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("decode razorpay webhook: %w", err)
	}
	if strings.TrimSpace(event.Event) == "" {
		return nil, fmt.Errorf("razorpay webhook missing event type")
	}
	return &event, nil
}

// ProviderOrderID returns the Razorpay order id the event refers to.
func (e *WebhookEvent) ProviderOrderID() string {
	if e.Payload.Payment != nil && e.Payload.Payment.Entity.OrderID != "" {
		return e.Payload.Payment.Entity.OrderID
	}
	if e.Payload.Order != nil {
		return e.Payload.Order.Entity.ID
	}
	return ""
}

// PaymentID returns the payment id carried by the event, if any.
func (e *WebhookEvent) PaymentID() string {
	if e.Payload.Payment != nil {
		return e.Payload.Payment.Entity.ID
	}
	return ""
}

// FailureReason prefers the human readable description.
func (e *WebhookEvent) FailureReason() string {
	if e.Payload.Payment == nil {
		return ""
	}
	entity := e.Payload.Payment.Entity
	switch {
	case entity.ErrorDescription != "":
		return entity.ErrorDescription
	case entity.ErrorReason != "":
		return entity.ErrorReason
	default:
		return entity.ErrorCode
	}
}
