// Package money holds the fixed-point arithmetic used by the ledger and
// valuation pipeline. All amounts are integer cents of AUD; rationals stay
// as numerator/denominator pairs. Decimal conversion happens only at
// rendering boundaries, with round-half-even.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Cents is an AUD amount in integer cents.
type Cents int64

// Dollars returns the exact decimal value (two fractional digits).
func (c Cents) Dollars() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

// String renders as a plain dollar string, e.g. "10000.00" or "-3.50".
// Bank rounding is a no-op here (cents are exact) but keeps the rendering
// rule in one place.
func (c Cents) String() string {
	return c.Dollars().StringFixedBank(2)
}

// ParseDollars converts a decimal dollar string ("125000" or "125000.50")
// to cents. Sub-cent precision is rejected rather than rounded: config and
// wire inputs must be exact.
func ParseDollars(s string) (Cents, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse dollars %q: %w", s, err)
	}
	shifted := d.Shift(2)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("parse dollars %q: sub-cent precision", s)
	}
	return Cents(shifted.IntPart()), nil
}

// MulBps scales an amount by basis points, truncating toward zero.
func MulBps(c Cents, bps int64) Cents {
	return Cents(int64(c) * bps / 10_000)
}

// MonthlyFromAnnualBps converts an annual yield in basis points on a base
// amount into one month's cents.
func MonthlyFromAnnualBps(base Cents, bps int64) Cents {
	return Cents(int64(base) * bps / 10_000 / 12)
}

// Ratio is an exact rational, typically holdings/total_tokens.
type Ratio struct {
	Num int64
	Den int64
}

// Bps returns the ratio in basis points, truncated. Use Cmp for exact
// comparisons; Bps is for metrics and thresholds.
func (r Ratio) Bps() int64 {
	if r.Den == 0 {
		return 0
	}
	return r.Num * 10_000 / r.Den
}

// Cmp compares two ratios exactly by cross-multiplication.
func (r Ratio) Cmp(o Ratio) int {
	a := r.Num * o.Den
	b := o.Num * r.Den
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Percent renders the ratio as a percentage with two digits, half-even.
func (r Ratio) Percent() string {
	if r.Den == 0 {
		return "0.00"
	}
	return decimal.NewFromInt(r.Num).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(r.Den)).
		RoundBank(2).
		StringFixed(2)
}

// BpsPercent renders basis points as a percentage string ("525" -> "5.25").
func BpsPercent(bps int64) string {
	return decimal.NewFromInt(bps).Shift(-2).RoundBank(2).StringFixed(2)
}
