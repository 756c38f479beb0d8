package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/quotes"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	pkgcheckout "github.com/angelmondragon/storefront-backend/pkg/checkout"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	maxCouponCodeLen    = 64
	maxQuoteSessionLen  = 64
	maxFailureReasonLen = 500
)

type QuoteService interface {
	Quote(ctx context.Context, req quotes.QuoteRequest) (*quotes.Quote, error)
}

type CheckoutService interface {
	PlaceOrder(ctx context.Context, in checkoutsvc.PlaceOrderInput) (*checkoutsvc.Placement, error)
	VerifyPayment(ctx context.Context, in checkoutsvc.VerifyInput) (*orders.OrderView, error)
	ReportPaymentFailure(ctx context.Context, shopper auth.Shopper, orderID uuid.UUID, report checkoutsvc.PaymentFailureReport) error
}

type quoteRequest struct {
	PostalCode     string `json:"postal_code"`
	State          string `json:"state"`
	CouponCode     string `json:"coupon_code,omitempty"`
	ClientSequence uint64 `json:"client_sequence,omitempty"`
	QuoteSession   string `json:"quote_session,omitempty"`
}

type placeOrderRequest struct {
	Shipping      pkgcheckout.ShippingInfo `json:"shipping"`
	PaymentMethod string                   `json:"payment_method"`
	CouponCode    string                   `json:"coupon_code,omitempty"`
}

// verifyPaymentRequest mirrors the fields the Razorpay widget hands back.
type verifyPaymentRequest struct {
	ProviderOrderID   string `json:"razorpay_order_id" validate:"required"`
	ProviderPaymentID string `json:"razorpay_payment_id" validate:"required"`
	ProviderSignature string `json:"razorpay_signature" validate:"required"`
}

type paymentFailureRequest struct {
	ProviderPaymentID string `json:"razorpay_payment_id,omitempty"`
	Reason            string `json:"reason" validate:"required"`
}

// CheckoutQuote recomputes totals for a destination edit. Clients discard a
// response whose applied flag is false.
func CheckoutQuote(svc QuoteService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "quote service unavailable"))
			return
		}

		shopper, err := middleware.RequireShopper(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload quoteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := svc.Quote(r.Context(), quotes.QuoteRequest{
			Shopper:        shopper,
			PostalCode:     strings.TrimSpace(payload.PostalCode),
			State:          strings.TrimSpace(payload.State),
			CouponCode:     validators.SanitizeString(payload.CouponCode, maxCouponCodeLen),
			ClientSequence: payload.ClientSequence,
			QuoteSession:   validators.SanitizeString(payload.QuoteSession, maxQuoteSessionLen),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, quote)
	}
}

// CheckoutPlaceOrder places the shopper's cart as an order. Online orders
// return the payment session the client opens the widget with.
func CheckoutPlaceOrder(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		shopper, err := middleware.RequireShopper(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload placeOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		placement, err := svc.PlaceOrder(r.Context(), checkoutsvc.PlaceOrderInput{
			Shopper:       shopper,
			Shipping:      payload.Shipping,
			PaymentMethod: strings.ToLower(strings.TrimSpace(payload.PaymentMethod)),
			CouponCode:    validators.SanitizeString(payload.CouponCode, maxCouponCodeLen),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, placement)
	}
}

// CheckoutVerifyPayment confirms the widget's payment result.
func CheckoutVerifyPayment(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		shopper, err := middleware.RequireShopper(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload verifyPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.VerifyPayment(r.Context(), checkoutsvc.VerifyInput{
			Shopper:           shopper,
			OrderID:           orderID,
			ProviderOrderID:   strings.TrimSpace(payload.ProviderOrderID),
			ProviderPaymentID: strings.TrimSpace(payload.ProviderPaymentID),
			ProviderSignature: strings.TrimSpace(payload.ProviderSignature),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}

// CheckoutPaymentFailure records a failure the widget reported. The order
// stays open so the shopper can try again.
func CheckoutPaymentFailure(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		shopper, err := middleware.RequireShopper(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload paymentFailureRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		err = svc.ReportPaymentFailure(r.Context(), shopper, orderID, checkoutsvc.PaymentFailureReport{
			ProviderPaymentID: strings.TrimSpace(payload.ProviderPaymentID),
			Reason:            validators.SanitizeString(payload.Reason, maxFailureReasonLen),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"status": "recorded"})
	}
}
