package common

import "github.com/shopspring/decimal"

// FormatMinor renders an amount held in minor currency units (paise) with a
// fixed two-decimal convention, e.g. 45000 -> "450.00".
func FormatMinor(amount int64) string {
	return decimal.New(amount, -2).StringFixed(2)
}

// FormatINR prefixes the rendered amount with the rupee symbol for
// presentation surfaces, e.g. 45000 -> "₹450.00".
func FormatINR(amount int64) string {
	return "₹" + FormatMinor(amount)
}

// ParseMinor converts a decimal currency string ("450.00") into minor units,
// rounding half-up beyond two decimal places. Unparseable input yields ok=false.
func ParseMinor(value string) (int64, bool) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, false
	}
	return d.Shift(2).Round(0).IntPart(), true
}
