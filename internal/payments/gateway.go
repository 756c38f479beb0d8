// Package payments wraps the hosted payment gateway. The widget itself runs
// in the browser; the server creates the intent and verifies the result.
package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrGatewayMisconfigured marks a gateway rejecting our credentials.
var ErrGatewayMisconfigured = errors.New("payment gateway rejected credentials")

type Customer struct {
	Name  string
	Email string
	Phone string
}

type IntentRequest struct {
	OrderID  uuid.UUID
	Amount   int64
	Currency string
	Customer Customer
}

// Intent is what the client needs to open the widget.
type Intent struct {
	Provider        string `json:"provider"`
	ProviderKeyID   string `json:"key_id"`
	ProviderOrderID string `json:"provider_order_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

// Verification is the widget's completion payload.
type Verification struct {
	OrderID           uuid.UUID
	ProviderOrderID   string
	ProviderPaymentID string
	ProviderSignature string
}

type VerifyResult struct {
	Success bool
	Reason  string
}

// Status is the gateway's view of a provider order.
type Status struct {
	ProviderOrderID string
	State           string
	Paid            bool
	AmountPaid      int64
}

// Gateway is the capability checkout and reconciliation depend on.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	Verify(ctx context.Context, v Verification) (VerifyResult, error)
	FetchStatus(ctx context.Context, providerOrderID string) (Status, error)
}
