package quotes

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/discounts"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/shipping"
	"github.com/angelmondragon/storefront-backend/pkg/tax"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// ShippingQuoter prices delivery to a destination.
type ShippingQuoter interface {
	Quote(ctx context.Context, req shipping.QuoteRequest) (types.ShippingQuote, error)
}

type discountEvaluator interface {
	Evaluate(ctx context.Context, cart discounts.Cart, couponCode string, customerID *uuid.UUID) (*discounts.Evaluation, error)
}

type PricerConfig struct {
	// Shipping may be nil; the fallback rules then price delivery.
	Shipping       ShippingQuoter
	Tax            tax.Estimator
	Discounts      discountEvaluator
	Rules          pricing.FallbackRules
	PriceInclusive bool
}

// Pricer runs the collaborators in order (shipping, tax, discounts) and feeds
// their results to the calculator. Quotes and order placement share it.
type Pricer struct {
	shipping       ShippingQuoter
	tax            tax.Estimator
	discounts      discountEvaluator
	rules          pricing.FallbackRules
	priceInclusive bool
}

func NewPricer(cfg PricerConfig) (*Pricer, error) {
	if cfg.Tax == nil {
		return nil, fmt.Errorf("tax estimator required")
	}
	if cfg.Discounts == nil {
		return nil, fmt.Errorf("discount evaluator required")
	}
	return &Pricer{
		shipping:       cfg.Shipping,
		tax:            cfg.Tax,
		discounts:      cfg.Discounts,
		rules:          cfg.Rules,
		priceInclusive: cfg.PriceInclusive,
	}, nil
}

type Destination struct {
	PostalCode string
	State      string
}

type PriceInput struct {
	Lines       []cart.Line
	Destination Destination
	CouponCode  string
	CustomerID  *uuid.UUID
}

type Priced struct {
	Totals    pricing.Totals
	Shipping  *types.ShippingQuote
	Tax       *types.TaxBreakdown
	Discounts *discounts.Evaluation
}

func (p *Pricer) Price(ctx context.Context, in PriceInput) (*Priced, error) {
	if len(in.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	state := strings.TrimSpace(in.Destination.State)

	var quote *types.ShippingQuote
	if p.shipping != nil {
		q, err := p.shipping.Quote(ctx, shipping.QuoteRequest{
			PostalCode:    strings.TrimSpace(in.Destination.PostalCode),
			State:         state,
			TotalQuantity: cart.TotalQuantity(in.Lines),
		})
		if err != nil {
			return nil, quoteUnavailable(err, "shipping quote unavailable")
		}
		quote = &q
	}

	breakdown, err := p.tax.Estimate(ctx, tax.Request{
		Items:            cart.TaxItems(in.Lines),
		CustomerState:    state,
		IsPriceInclusive: p.priceInclusive,
	})
	if err != nil {
		return nil, quoteUnavailable(err, "tax quote unavailable")
	}

	return p.discount(ctx, in, quote, &breakdown)
}

// Rediscount re-evaluates discounts for a now known customer, keeping the
// shipping and tax already quoted in priced.
func (p *Pricer) Rediscount(ctx context.Context, in PriceInput, priced *Priced) (*Priced, error) {
	if priced == nil {
		return p.Price(ctx, in)
	}
	return p.discount(ctx, in, priced.Shipping, priced.Tax)
}

func (p *Pricer) discount(ctx context.Context, in PriceInput, quote *types.ShippingQuote, breakdown *types.TaxBreakdown) (*Priced, error) {
	eval, err := p.discounts.Evaluate(ctx, cart.DiscountCart(in.Lines), in.CouponCode, in.CustomerID)
	if err != nil {
		return nil, quoteUnavailable(err, "discounts unavailable")
	}

	totals := pricing.Calculate(pricing.Input{
		Items:            cart.PricingLines(in.Lines),
		Shipping:         quote,
		Tax:              breakdown,
		CampaignDiscount: eval.CampaignDiscount,
		CouponDiscount:   eval.CouponDiscount,
	}, p.rules)

	return &Priced{Totals: totals, Shipping: quote, Tax: breakdown, Discounts: eval}, nil
}

func quoteUnavailable(err error, msg string) error {
	if pkgerrors.IsCode(err, pkgerrors.CodeQuoteUnavailable) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeQuoteUnavailable, err, msg)
}
