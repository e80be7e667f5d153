// Package money converts between the exact decimal amounts accepted at the
// API boundary and the integer minor units the ledger stores. Floating point
// never enters the conversion.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Exponent returns the number of minor-unit decimal places for a currency.
func Exponent(currency string) int32 {
	switch strings.ToUpper(currency) {
	case "JPY", "KRW", "XAF", "XOF":
		return 0
	default:
		return 2
	}
}

// Parse converts a decimal string such as "12.50" into minor units for the
// given exponent. Amounts that cannot be represented exactly are rejected
// rather than rounded.
func Parse(value string, exponent int32) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("amount is required")
	}

	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", value)
	}

	minor := d.Shift(exponent)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("amount %q has more than %d decimal places", value, exponent)
	}

	big := minor.BigInt()
	if !big.IsInt64() {
		return 0, fmt.Errorf("amount %q out of range", value)
	}
	return big.Int64(), nil
}

// Format renders minor units as a plain decimal string with the currency's
// full precision, e.g. 1250 -> "12.50" at exponent 2.
func Format(minor int64, exponent int32) string {
	return decimal.New(minor, -exponent).StringFixed(exponent)
}
