package quotes

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/discounts"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/shipping"
	"github.com/angelmondragon/storefront-backend/pkg/tax"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type stubCart struct {
	lines []cart.Line
	err   error
}

func (s stubCart) Snapshot(context.Context, string) ([]cart.Line, error) { return s.lines, s.err }

// stubShipping prices by postal code and can block until released.
type stubShipping struct {
	amounts map[string]int64
	block   map[string]chan struct{}
	started chan string
	calls   atomic.Int32
	err     error
}

func (s *stubShipping) Quote(_ context.Context, req shipping.QuoteRequest) (types.ShippingQuote, error) {
	s.calls.Add(1)
	if s.started != nil {
		s.started <- req.PostalCode
	}
	if ch, ok := s.block[req.PostalCode]; ok {
		<-ch
	}
	if s.err != nil {
		return types.ShippingQuote{}, s.err
	}
	return types.ShippingQuote{OptionName: "Standard", Amount: s.amounts[req.PostalCode]}, nil
}

type stubTax struct{ err error }

func (s stubTax) Estimate(context.Context, tax.Request) (types.TaxBreakdown, error) {
	return types.TaxBreakdown{TaxType: "intra_state", TotalTax: 0, GSTRate: "18"}, s.err
}

type stubDiscounts struct{ eval *discounts.Evaluation }

func (s stubDiscounts) Evaluate(context.Context, discounts.Cart, string, *uuid.UUID) (*discounts.Evaluation, error) {
	if s.eval != nil {
		return s.eval, nil
	}
	return &discounts.Evaluation{Campaigns: []discounts.AppliedCampaign{}}, nil
}

var shopper = auth.Shopper{GuestSessionID: "sess-1"}

func testLines() []cart.Line {
	return []cart.Line{{VariantID: uuid.New(), UnitPricePaise: 50000, Quantity: 1}}
}

func newQuoteService(t *testing.T, ship ShippingQuoter, taxes tax.Estimator, disc stubDiscounts) *Service {
	t.Helper()
	pricer, err := NewPricer(PricerConfig{
		Shipping:  ship,
		Tax:       taxes,
		Discounts: disc,
		Rules:     pricing.FallbackRules{FreeShippingThreshold: 99900, FallbackFee: 9900},
	})
	if err != nil {
		t.Fatalf("new pricer: %v", err)
	}
	svc, err := NewService(ServiceParams{Cart: stubCart{lines: testLines()}, Pricer: pricer, Guard: NewMemoryGuard()})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestQuoteAppliesLatest(t *testing.T) {
	t.Parallel()

	ship := &stubShipping{amounts: map[string]int64{"400001": 4900}}
	eval := &discounts.Evaluation{
		Campaigns:        []discounts.AppliedCampaign{{Name: "Launch", Amount: 10000}},
		CampaignDiscount: 10000,
		Coupon:           &discounts.CouponResult{Valid: false, Code: "OLD", Message: discounts.MsgCouponExpired},
	}
	svc := newQuoteService(t, ship, stubTax{}, stubDiscounts{eval: eval})

	q, err := svc.Quote(context.Background(), QuoteRequest{Shopper: shopper, PostalCode: "400001", State: "Maharashtra", CouponCode: "OLD"})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !q.Applied || q.Sequence != 1 {
		t.Fatalf("expected applied sequence 1, got %+v", q)
	}
	if q.Totals.Total != 50000+4900-10000 {
		t.Fatalf("unexpected total %d", q.Totals.Total)
	}
	if q.CouponMessage != discounts.MsgCouponExpired {
		t.Fatalf("expected coupon message, got %q", q.CouponMessage)
	}
}

func TestQuoteWithoutShippingUsesFallback(t *testing.T) {
	t.Parallel()

	svc := newQuoteService(t, nil, stubTax{}, stubDiscounts{})
	q, err := svc.Quote(context.Background(), QuoteRequest{Shopper: shopper, PostalCode: "400001", State: "Maharashtra"})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.Totals.Shipping != 9900 || q.Shipping != nil {
		t.Fatalf("expected fallback fee, got %+v", q.Totals)
	}
}

func TestQuoteStaleResponseIsNotApplied(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	ship := &stubShipping{
		amounts: map[string]int64{"400001": 4900, "560034": 7900},
		block:   map[string]chan struct{}{"400001": release},
		started: make(chan string, 2),
	}
	svc := newQuoteService(t, ship, stubTax{}, stubDiscounts{})
	ctx := context.Background()

	slow := make(chan *Quote, 1)
	go func() {
		q, err := svc.Quote(ctx, QuoteRequest{Shopper: shopper, PostalCode: "400001", State: "Maharashtra"})
		if err != nil {
			t.Errorf("slow quote: %v", err)
		}
		slow <- q
	}()
	<-ship.started

	fast, err := svc.Quote(ctx, QuoteRequest{Shopper: shopper, PostalCode: "560034", State: "Karnataka"})
	if err != nil {
		t.Fatalf("fast quote: %v", err)
	}
	<-ship.started
	close(release)
	stale := <-slow

	if !fast.Applied || fast.Totals.Shipping != 7900 {
		t.Fatalf("expected latest quote applied, got %+v", fast)
	}
	if stale == nil || stale.Applied {
		t.Fatalf("expected earlier quote discarded, got %+v", stale)
	}
	if stale.Sequence >= fast.Sequence {
		t.Fatalf("expected earlier sequence, got %d vs %d", stale.Sequence, fast.Sequence)
	}
}

func TestQuoteStaleClientSequenceSkipsCollaborators(t *testing.T) {
	t.Parallel()

	ship := &stubShipping{amounts: map[string]int64{"400001": 4900}}
	svc := newQuoteService(t, ship, stubTax{}, stubDiscounts{})
	ctx := context.Background()

	if _, err := svc.Quote(ctx, QuoteRequest{Shopper: shopper, PostalCode: "400001", State: "Maharashtra", ClientSequence: 5, QuoteSession: "load-1"}); err != nil {
		t.Fatalf("quote 5: %v", err)
	}
	q, err := svc.Quote(ctx, QuoteRequest{Shopper: shopper, PostalCode: "400001", State: "Maharashtra", ClientSequence: 4, QuoteSession: "load-1"})
	if err != nil {
		t.Fatalf("quote 4: %v", err)
	}
	if q.Applied || q.Totals != nil {
		t.Fatalf("expected stale quote without totals, got %+v", q)
	}
	if calls := ship.calls.Load(); calls != 1 {
		t.Fatalf("expected one shipping call, got %d", calls)
	}
}

func TestQuoteSequenceRestartsWithNewSession(t *testing.T) {
	t.Parallel()

	ship := &stubShipping{amounts: map[string]int64{"400001": 4900}}
	svc := newQuoteService(t, ship, stubTax{}, stubDiscounts{})
	ctx := context.Background()
	req := QuoteRequest{Shopper: shopper, PostalCode: "400001", State: "Maharashtra"}

	req.ClientSequence, req.QuoteSession = 7, "load-1"
	if q, err := svc.Quote(ctx, req); err != nil || !q.Applied {
		t.Fatalf("first load quote: %+v %v", q, err)
	}

	req.ClientSequence, req.QuoteSession = 1, "load-2"
	q, err := svc.Quote(ctx, req)
	if err != nil {
		t.Fatalf("reloaded quote: %v", err)
	}
	if !q.Applied || q.Totals == nil || q.Sequence != 1 {
		t.Fatalf("expected reloaded page quote applied, got %+v", q)
	}

	req.ClientSequence, req.QuoteSession = 1, ""
	if _, err := svc.Quote(ctx, req); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected client sequence without session rejected, got %v", err)
	}
}

func TestQuoteCollaboratorFailureIsQuoteUnavailable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	req := QuoteRequest{Shopper: shopper, PostalCode: "400001", State: "Maharashtra"}

	svc := newQuoteService(t, &stubShipping{err: errors.New("timeout")}, stubTax{}, stubDiscounts{})
	if _, err := svc.Quote(ctx, req); !pkgerrors.IsCode(err, pkgerrors.CodeQuoteUnavailable) {
		t.Fatalf("expected shipping failure to be quote unavailable, got %v", err)
	}

	svc = newQuoteService(t, nil, stubTax{err: errors.New("boom")}, stubDiscounts{})
	if _, err := svc.Quote(ctx, req); !pkgerrors.IsCode(err, pkgerrors.CodeQuoteUnavailable) {
		t.Fatalf("expected tax failure to be quote unavailable, got %v", err)
	}
}

func TestQuoteValidatesDestination(t *testing.T) {
	t.Parallel()

	svc := newQuoteService(t, nil, stubTax{}, stubDiscounts{})
	_, err := svc.Quote(context.Background(), QuoteRequest{Shopper: shopper, PostalCode: "12345"})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details := typed.Details().(map[string]any)
	if missing := details["missing_fields"].([]string); len(missing) != 1 || missing[0] != "state" {
		t.Fatalf("unexpected missing fields %v", details)
	}
	if invalid := details["invalid_fields"].([]string); len(invalid) != 1 || invalid[0] != "postal_code" {
		t.Fatalf("unexpected invalid fields %v", details)
	}

	if _, err := svc.Quote(context.Background(), QuoteRequest{PostalCode: "400001", State: "Goa"}); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized without shopper, got %v", err)
	}
}
