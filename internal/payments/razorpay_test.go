package payments

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/razorpay"
)

type stubRazorpay struct {
	created   razorpay.CreateOrderRequest
	createErr error
	fetched   *razorpay.Order
}

func (s *stubRazorpay) KeyID() string { return "rzp_test_key" }

func (s *stubRazorpay) CreateOrder(_ context.Context, req razorpay.CreateOrderRequest) (*razorpay.Order, error) {
	s.created = req
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &razorpay.Order{ID: "order_RZP1", Amount: req.Amount, Currency: req.Currency, Status: razorpay.OrderStatusCreated}, nil
}

func (s *stubRazorpay) FetchOrder(context.Context, string) (*razorpay.Order, error) {
	return s.fetched, nil
}

func TestRazorpayCreateIntent(t *testing.T) {
	t.Parallel()

	api := &stubRazorpay{}
	gw, err := NewRazorpayGateway(api, "secret")
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	orderID := uuid.New()
	intent, err := gw.CreateIntent(context.Background(), IntentRequest{OrderID: orderID, Amount: 59900, Customer: Customer{Email: "a@example.in"}})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if api.created.Receipt != orderID.String() || api.created.Currency != "INR" {
		t.Fatalf("unexpected gateway request %+v", api.created)
	}
	if intent.ProviderKeyID != "rzp_test_key" || intent.ProviderOrderID != "order_RZP1" || intent.Amount != 59900 {
		t.Fatalf("unexpected intent %+v", intent)
	}
}

func TestRazorpayCreateIntentMisconfigured(t *testing.T) {
	t.Parallel()

	api := &stubRazorpay{createErr: &razorpay.APIError{StatusCode: http.StatusUnauthorized, Description: "Authentication failed"}}
	gw, _ := NewRazorpayGateway(api, "secret")
	_, err := gw.CreateIntent(context.Background(), IntentRequest{OrderID: uuid.New(), Amount: 100})
	if !errors.Is(err, ErrGatewayMisconfigured) {
		t.Fatalf("expected misconfiguration, got %v", err)
	}

	api.createErr = &razorpay.APIError{StatusCode: http.StatusBadGateway}
	_, err = gw.CreateIntent(context.Background(), IntentRequest{OrderID: uuid.New(), Amount: 100})
	if err == nil || errors.Is(err, ErrGatewayMisconfigured) {
		t.Fatalf("expected plain gateway error, got %v", err)
	}
}

func TestRazorpayVerify(t *testing.T) {
	t.Parallel()

	gw, _ := NewRazorpayGateway(&stubRazorpay{}, "secret")
	good := razorpay.PaymentSignature("order_RZP1", "pay_1", "secret")

	res, err := gw.Verify(context.Background(), Verification{ProviderOrderID: "order_RZP1", ProviderPaymentID: "pay_1", ProviderSignature: good})
	if err != nil || !res.Success {
		t.Fatalf("expected success, got %+v %v", res, err)
	}
	res, _ = gw.Verify(context.Background(), Verification{ProviderOrderID: "order_RZP1", ProviderPaymentID: "pay_2", ProviderSignature: good})
	if res.Success || res.Reason != "signature mismatch" {
		t.Fatalf("expected mismatch, got %+v", res)
	}
	res, _ = gw.Verify(context.Background(), Verification{ProviderOrderID: "order_RZP1"})
	if res.Success {
		t.Fatal("incomplete payload must not verify")
	}
}

func TestRazorpayFetchStatus(t *testing.T) {
	t.Parallel()

	gw, _ := NewRazorpayGateway(&stubRazorpay{fetched: &razorpay.Order{ID: "order_RZP1", Status: razorpay.OrderStatusPaid, AmountPaid: 59900}}, "secret")
	status, err := gw.FetchStatus(context.Background(), "order_RZP1")
	if err != nil || !status.Paid || status.AmountPaid != 59900 {
		t.Fatalf("unexpected status %+v %v", status, err)
	}
}
