package billing

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// minorUnitExp is the number of decimal places of the minor currency unit.
const minorUnitExp = 2

var (
	maxMinorUnits = decimal.NewFromInt(math.MaxInt64)
	minMinorUnits = decimal.NewFromInt(math.MinInt64)
)

// ToMinorUnits converts a major-unit amount to minor units, rounding half-up.
// Amounts that do not fit in an int64 are an error.
func ToMinorUnits(d decimal.Decimal) (int64, error) {
	minor := d.Shift(minorUnitExp).Round(0)
	if minor.GreaterThan(maxMinorUnits) || minor.LessThan(minMinorUnits) {
		return 0, fmt.Errorf("amount %s is out of range", d.String())
	}
	return minor.IntPart(), nil
}

// FromMinorUnits converts minor units back to a major-unit decimal.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -minorUnitExp)
}

// ParseAmount parses a customer-entered major-unit figure such as "35.50".
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount is empty")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q is not numeric", raw)
	}
	return d, nil
}

// ceilDiv divides a non-negative minor-unit amount, rounding up.
func ceilDiv(total int64, n int) int64 {
	if n <= 0 {
		return 0
	}
	d := int64(n)
	return (total + d - 1) / d
}

// FormatMinorUnits renders minor units as a major-unit string ("35.50").
func FormatMinorUnits(minor int64) string {
	return FromMinorUnits(minor).StringFixed(minorUnitExp)
}
