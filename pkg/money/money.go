// Package money holds the minor-unit arithmetic shared by pricing and the
// ledger. Amounts are int64 minor units; rates are decimals; every conversion
// back to minor units rounds half-to-even.
package money

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Round converts a decimal amount expressed in minor units to int64 using
// round-half-even.
func Round(amount decimal.Decimal) int64 {
	return amount.RoundBank(0).IntPart()
}

// ApplyRate returns round(amount * rate).
func ApplyRate(amount int64, rate decimal.Decimal) int64 {
	return Round(decimal.NewFromInt(amount).Mul(rate))
}

// ApplyPercent returns round(amount * percent / 100).
func ApplyPercent(amount int64, percent decimal.Decimal) int64 {
	return ApplyRate(amount, percent.Div(hundred))
}

// Split divides amount into (commission, remainder) so the parts always sum
// back to amount exactly.
func Split(amount int64, rate decimal.Decimal) (commission, remainder int64) {
	commission = ApplyRate(amount, rate)
	return commission, amount - commission
}

// ProRata returns round(part * numerator / denominator), the share of part
// attributable to numerator/denominator. A zero denominator yields zero.
func ProRata(part, numerator, denominator int64) int64 {
	if denominator == 0 {
		return 0
	}
	ratio := decimal.NewFromInt(numerator).Div(decimal.NewFromInt(denominator))
	return Round(decimal.NewFromInt(part).Mul(ratio))
}

// Min returns the smaller of two amounts.
func Min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
