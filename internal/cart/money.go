package cart

import "github.com/shopspring/decimal"

// FormatINR renders an amount as rupees with two fixed decimals, e.g. ₹499.00.
func FormatINR(amount decimal.Decimal) string {
	if amount.IsNegative() {
		return "-₹" + amount.Neg().StringFixed(2)
	}
	return "₹" + amount.StringFixed(2)
}

// Paise converts a rupee amount to integer minor units, rounding half away from zero.
func Paise(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
