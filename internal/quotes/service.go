package quotes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/discounts"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/checkout"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type cartReader interface {
	Snapshot(ctx context.Context, owner string) ([]cart.Line, error)
}

// QuoteRequest is one recompute triggered by a destination edit.
// ClientSequence is optional; zero lets the server number the request. A
// client numbering its own requests sends a QuoteSession it picks per page
// load, and sequences are ordered within that session only.
type QuoteRequest struct {
	Shopper        auth.Shopper
	PostalCode     string
	State          string
	CouponCode     string
	ClientSequence uint64
	QuoteSession   string
}

// Quote is the displayed checkout total. Clients discard a quote with
// Applied=false; a newer request superseded it.
type Quote struct {
	Sequence      uint64                      `json:"sequence"`
	Applied       bool                        `json:"applied"`
	Currency      string                      `json:"currency"`
	Totals        *pricing.Totals             `json:"totals,omitempty"`
	Shipping      *types.ShippingQuote        `json:"shipping,omitempty"`
	Tax           *types.TaxBreakdown         `json:"tax,omitempty"`
	Campaigns     []discounts.AppliedCampaign `json:"campaigns,omitempty"`
	Coupon        *discounts.CouponResult     `json:"coupon,omitempty"`
	CouponMessage string                      `json:"coupon_message,omitempty"`
}

type ServiceParams struct {
	Cart     cartReader
	Pricer   *Pricer
	Guard    Guard
	Metrics  *metrics.CheckoutMetrics
	Logger   *logger.Logger
	Currency string
}

type Service struct {
	cart     cartReader
	pricer   *Pricer
	guard    Guard
	metrics  *metrics.CheckoutMetrics
	logg     *logger.Logger
	currency string
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Cart == nil {
		return nil, fmt.Errorf("cart reader required")
	}
	if params.Pricer == nil {
		return nil, fmt.Errorf("pricer required")
	}
	if params.Guard == nil {
		return nil, fmt.Errorf("quote guard required")
	}
	currency := params.Currency
	if currency == "" {
		currency = "INR"
	}
	return &Service{
		cart:     params.Cart,
		pricer:   params.Pricer,
		guard:    params.Guard,
		metrics:  params.Metrics,
		logg:     params.Logger,
		currency: currency,
		now:      time.Now,
	}, nil
}

// Quote prices the shopper's cart for a destination. Only the newest request
// per shopper is Applied; a request already superseded on arrival returns at
// once without calling any collaborator.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	start := s.now()
	key := req.Shopper.Key()
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "shopper identity required")
	}
	if err := validateDestination(req.PostalCode, req.State); err != nil {
		return nil, err
	}
	seqKey, err := sequenceKey(key, req)
	if err != nil {
		return nil, err
	}

	seq, err := s.guard.Next(ctx, seqKey, req.ClientSequence)
	if err != nil {
		if errors.Is(err, ErrStaleSequence) {
			s.metrics.ObserveQuote(metrics.QuoteStale, s.now().Sub(start))
			return &Quote{Sequence: req.ClientSequence, Applied: false, Currency: s.currency}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "issue quote sequence")
	}

	lines, err := s.cart.Snapshot(ctx, key)
	if err != nil {
		return nil, err
	}
	priced, err := s.pricer.Price(ctx, PriceInput{
		Lines:       lines,
		Destination: Destination{PostalCode: req.PostalCode, State: req.State},
		CouponCode:  req.CouponCode,
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeQuoteUnavailable) {
			s.metrics.ObserveQuote(metrics.QuoteUnavailable, s.now().Sub(start))
			if s.logg != nil {
				s.logg.Warn(s.logg.WithField(ctx, "quote_sequence", seq), "quote collaborator failed: "+err.Error())
			}
		}
		return nil, err
	}

	latest, err := s.guard.IsLatest(ctx, seqKey, seq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check quote sequence")
	}

	quote := &Quote{
		Sequence:      seq,
		Applied:       latest,
		Currency:      s.currency,
		Totals:        &priced.Totals,
		Shipping:      priced.Shipping,
		Tax:           priced.Tax,
		Campaigns:     priced.Discounts.Campaigns,
		Coupon:        priced.Discounts.Coupon,
		CouponMessage: priced.Discounts.CouponMessage(),
	}
	result := metrics.QuoteApplied
	if !latest {
		result = metrics.QuoteStale
	}
	s.metrics.ObserveQuote(result, s.now().Sub(start))
	return quote, nil
}

// sequenceKey scopes sequences to the quote session when there is one, so a
// reloaded page starting again at 1 is not stale against the previous load.
func sequenceKey(owner string, req QuoteRequest) (string, error) {
	session := strings.TrimSpace(req.QuoteSession)
	if session == "" {
		if req.ClientSequence > 0 {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "quote_session is required with client_sequence").
				WithDetails(map[string]any{"missing_fields": []string{"quote_session"}})
		}
		return owner, nil
	}
	return owner + "#" + session, nil
}

func validateDestination(postalCode, state string) error {
	var missing, invalid []string
	switch {
	case strings.TrimSpace(postalCode) == "":
		missing = append(missing, "postal_code")
	case !checkout.ValidPostalCode(postalCode):
		invalid = append(invalid, "postal_code")
	}
	if strings.TrimSpace(state) == "" {
		missing = append(missing, "state")
	}
	if len(missing) == 0 && len(invalid) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "destination is incomplete").
		WithDetails(map[string]any{"missing_fields": missing, "invalid_fields": invalid})
}
