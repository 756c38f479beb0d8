package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/razorpay"
)

const ProviderRazorpay = "razorpay"

type razorpayAPI interface {
	KeyID() string
	CreateOrder(ctx context.Context, req razorpay.CreateOrderRequest) (*razorpay.Order, error)
	FetchOrder(ctx context.Context, orderID string) (*razorpay.Order, error)
}

// RazorpayGateway adapts the Razorpay Orders API to Gateway.
type RazorpayGateway struct {
	client    razorpayAPI
	keySecret string
}

func NewRazorpayGateway(client razorpayAPI, keySecret string) (*RazorpayGateway, error) {
	if client == nil {
		return nil, fmt.Errorf("razorpay client required")
	}
	if strings.TrimSpace(keySecret) == "" {
		return nil, fmt.Errorf("razorpay key secret required")
	}
	return &RazorpayGateway{client: client, keySecret: keySecret}, nil
}

// CreateIntent registers a gateway order whose receipt is our order id.
func (g *RazorpayGateway) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if req.Amount <= 0 {
		return Intent{}, fmt.Errorf("intent amount must be positive")
	}
	currency := req.Currency
	if currency == "" {
		currency = "INR"
	}
	order, err := g.client.CreateOrder(ctx, razorpay.CreateOrderRequest{
		Amount:   req.Amount,
		Currency: currency,
		Receipt:  req.OrderID.String(),
		Notes: map[string]string{
			"order_id": req.OrderID.String(),
			"email":    req.Customer.Email,
		},
	})
	if err != nil {
		if razorpay.IsAuthError(err) {
			return Intent{}, fmt.Errorf("%w: %w", ErrGatewayMisconfigured, err)
		}
		return Intent{}, err
	}
	return Intent{
		Provider:        ProviderRazorpay,
		ProviderKeyID:   g.client.KeyID(),
		ProviderOrderID: order.ID,
		Amount:          order.Amount,
		Currency:        order.Currency,
	}, nil
}

// Verify checks the widget signature locally; no network call is made.
func (g *RazorpayGateway) Verify(_ context.Context, v Verification) (VerifyResult, error) {
	if v.ProviderOrderID == "" || v.ProviderPaymentID == "" || v.ProviderSignature == "" {
		return VerifyResult{Success: false, Reason: "incomplete payment details"}, nil
	}
	if !razorpay.VerifyPaymentSignature(v.ProviderOrderID, v.ProviderPaymentID, v.ProviderSignature, g.keySecret) {
		return VerifyResult{Success: false, Reason: "signature mismatch"}, nil
	}
	return VerifyResult{Success: true}, nil
}

func (g *RazorpayGateway) FetchStatus(ctx context.Context, providerOrderID string) (Status, error) {
	order, err := g.client.FetchOrder(ctx, providerOrderID)
	if err != nil {
		return Status{}, err
	}
	return Status{
		ProviderOrderID: order.ID,
		State:           order.Status,
		Paid:            order.Status == razorpay.OrderStatusPaid,
		AmountPaid:      order.AmountPaid,
	}, nil
}
