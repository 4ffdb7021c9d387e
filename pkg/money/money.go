// Package money provides the fixed-precision monetary helpers used by the
// amortization engine. All amounts are shopspring decimals held to two
// decimal places (minor units); floating point is never used for money.
package money

import "github.com/shopspring/decimal"

// MinorUnits is the number of decimal places a monetary amount carries.
const MinorUnits = 2

var hundred = decimal.NewFromInt(100)

// Round normalizes an amount to minor-unit precision using banker's rounding.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(MinorUnits)
}

// RateFraction converts a percentage (e.g. "12.5") to its fractional form.
func RateFraction(percent decimal.Decimal) decimal.Decimal {
	return percent.Div(hundred)
}

// IsPositive reports whether the amount is strictly greater than zero.
func IsPositive(d decimal.Decimal) bool {
	return d.GreaterThan(decimal.Zero)
}
