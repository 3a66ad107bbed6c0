package payment

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var maxMinorUnits = decimal.NewFromInt(math.MaxInt64)

// MinorUnits converts amount into the smallest unit of currencyCode,
// e.g. 12.50 BRL -> 1250 and 500 JPY -> 500.
func MinorUnits(amount decimal.Decimal, currencyCode string) (int64, error) {
	unit, err := currency.ParseISO(currencyCode)
	if err != nil {
		return 0, fmt.Errorf("unknown currency %q: %w", currencyCode, err)
	}

	scale, _ := currency.Standard.Rounding(unit)
	shifted := amount.Shift(int32(scale))
	if shifted.IsNegative() {
		return 0, fmt.Errorf("amount %s must not be negative", amount.String())
	}
	// MaxInt64 has 19 digits; the digit count keeps huge exponents out of Cmp
	if shifted.NumDigits()+int(shifted.Exponent()) > 19 || shifted.GreaterThan(maxMinorUnits) {
		return 0, fmt.Errorf("amount %s is out of range for %s", amount.String(), currencyCode)
	}
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more precision than %s allows", amount.String(), currencyCode)
	}
	return shifted.IntPart(), nil
}
