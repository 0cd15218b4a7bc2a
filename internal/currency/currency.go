// Package currency provides decimal-exact arithmetic for money values.
//
// Every money-valued output of the engine passes through these helpers so
// results are exact to the cent and never drift due to binary floating
// point. Degenerate inputs (nil values, zero divisors) normalize to 0.00
// rather than erroring, so a single bad value cannot abort an aggregation.
package currency

import (
	"strings"

	"github.com/shopspring/decimal"
)

// RoundCurrency rounds a value to 2 fractional digits, ties away from zero.
// A nil input returns 0.00.
func RoundCurrency(v *decimal.Decimal) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return v.Round(2)
}

// SafeDivide returns RoundCurrency(num/den). A nil numerator, nil
// denominator, or zero denominator returns 0.00; it never panics and never
// yields an infinity.
func SafeDivide(num, den *decimal.Decimal) decimal.Decimal {
	if num == nil || den == nil || den.IsZero() {
		return decimal.Zero
	}
	q := num.Div(*den)
	return q.Round(2)
}

// SafeMultiply returns RoundCurrency(v*mul) with the same nil-safety as
// SafeDivide.
func SafeMultiply(v, mul *decimal.Decimal) decimal.Decimal {
	if v == nil || mul == nil {
		return decimal.Zero
	}
	p := v.Mul(*mul)
	return p.Round(2)
}

// Mean returns the arithmetic mean of vs, unrounded. Empty input returns 0.
func Mean(vs []decimal.Decimal) decimal.Decimal {
	if len(vs) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range vs {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(vs))))
}

// Parse coerces a source-document numeric string to a decimal. It tolerates
// currency symbols, thousands separators, surrounding whitespace, and
// accountant-style parentheses for negatives. String-to-number coercion
// happens exactly once, at the ingest boundary; the arithmetic helpers above
// only ever see decimals.
func Parse(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return decimal.Zero, false
	}

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if neg {
		d = d.Neg()
	}
	return d, true
}

// Ptr returns a pointer to d. Convenience for nullable call sites.
func Ptr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
