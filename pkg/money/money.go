// Package money holds paise arithmetic. Amounts are int64 minor units; any
// fractional step goes through decimal and rounds half away from zero.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Percent returns amount * pct / 100 rounded to whole paise.
func Percent(amount int64, pct decimal.Decimal) int64 {
	if amount <= 0 || !pct.IsPositive() {
		return 0
	}
	return decimal.NewFromInt(amount).Mul(pct).Div(hundred).Round(0).IntPart()
}

// ExclusiveTax is the tax added on top of a tax-exclusive base.
func ExclusiveTax(base int64, ratePct decimal.Decimal) int64 {
	return Percent(base, ratePct)
}

// InclusiveTax extracts the tax already contained in a tax-inclusive base:
// base - base/(1+rate).
func InclusiveTax(base int64, ratePct decimal.Decimal) int64 {
	if base <= 0 || !ratePct.IsPositive() {
		return 0
	}
	gross := decimal.NewFromInt(base)
	divisor := decimal.NewFromInt(1).Add(ratePct.Div(hundred))
	net := gross.DivRound(divisor, 8)
	return gross.Sub(net).Round(0).IntPart()
}

// Split halves amount, giving any odd paisa to the first share.
func Split(amount int64) (int64, int64) {
	second := amount / 2
	return amount - second, second
}

// Min returns the smaller amount.
func Min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// NonNegative clamps amount at zero.
func NonNegative(amount int64) int64 {
	if amount < 0 {
		return 0
	}
	return amount
}

// ParseRate reads a percentage such as "18" or "12.5".
func ParseRate(value string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse rate %q: %w", value, err)
	}
	if rate.IsNegative() {
		return decimal.Zero, fmt.Errorf("rate %q must not be negative", value)
	}
	return rate, nil
}

// FromRupees converts a rupee decimal (as sent by quote services) to paise.
func FromRupees(rupees decimal.Decimal) int64 {
	return rupees.Mul(hundred).Round(0).IntPart()
}

// ToRupees renders paise as a rupee decimal with two places.
func ToRupees(paise int64) decimal.Decimal {
	return decimal.NewFromInt(paise).Shift(-2)
}

// FormatINR renders paise for shopper-facing messages, e.g. "₹2000" or "₹99.50".
func FormatINR(paise int64) string {
	if paise%100 == 0 {
		return fmt.Sprintf("₹%d", paise/100)
	}
	return "₹" + ToRupees(paise).StringFixed(2)
}
