// Package tax produces GST breakdowns, either from the remote tax endpoint or
// computed locally from a single configured rate.
package tax

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Item is one priced line sent for taxation.
type Item struct {
	VariantID      string `json:"variantId"`
	Quantity       int    `json:"quantity"`
	UnitPricePaise int64  `json:"price"`
	Category       string `json:"category,omitempty"`
}

// Request describes the cart being taxed.
type Request struct {
	Items            []Item `json:"items"`
	CustomerState    string `json:"customerState"`
	IsPriceInclusive bool   `json:"isPriceInclusive"`
}

// Estimator returns the tax breakdown for a request.
type Estimator interface {
	Estimate(ctx context.Context, req Request) (types.TaxBreakdown, error)
}

// LocalEstimator applies one GST rate. Customers in OriginState pay an equal
// CGST/SGST split; everyone else pays IGST.
type LocalEstimator struct {
	OriginState string
	Rate        decimal.Decimal
}

// NewLocalEstimator parses ratePct, e.g. "18".
func NewLocalEstimator(originState, ratePct string) (*LocalEstimator, error) {
	rate, err := money.ParseRate(ratePct)
	if err != nil {
		return nil, err
	}
	return &LocalEstimator{OriginState: strings.TrimSpace(originState), Rate: rate}, nil
}

func (e *LocalEstimator) Estimate(_ context.Context, req Request) (types.TaxBreakdown, error) {
	if strings.TrimSpace(req.CustomerState) == "" {
		return types.TaxBreakdown{}, pkgerrors.New(pkgerrors.CodeQuoteUnavailable, "customer state is required for tax")
	}

	var base int64
	for _, item := range req.Items {
		base += item.UnitPricePaise * int64(item.Quantity)
	}

	var total int64
	if req.IsPriceInclusive {
		total = money.InclusiveTax(base, e.Rate)
	} else {
		total = money.ExclusiveTax(base, e.Rate)
	}

	out := types.TaxBreakdown{
		TotalTax:         total,
		GSTRate:          e.Rate.String(),
		PriceIncludesTax: req.IsPriceInclusive,
	}
	if SameState(req.CustomerState, e.OriginState) {
		out.TaxType = string(enums.TaxTypeIntraState)
		out.CGST, out.SGST = money.Split(total)
	} else {
		out.TaxType = string(enums.TaxTypeInterState)
		out.IGST = total
	}
	return out, nil
}

// SameState compares Indian state names loosely.
func SameState(a, b string) bool {
	norm := func(s string) string {
		return strings.Join(strings.Fields(strings.ToLower(s)), " ")
	}
	return norm(a) != "" && norm(a) == norm(b)
}
