package helper

import (
	"strings"

	"github.com/shopspring/decimal"

	"feeledger_backend/internals/features/finance/finerr"
)

// MoneyPlaces is the scale of every stored amount (numeric(14,2)).
const MoneyPlaces = 2

// RoundMoney normalizes an amount to two decimal places (half away from zero).
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// ParseMoney parses a user supplied amount ("3600", "3600.50").
func ParseMoney(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, finerr.ValidationFields("validation failed", finerr.FieldError{Field: field, Error: "is required"})
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, finerr.ValidationFields("validation failed", finerr.FieldError{Field: field, Error: "must be a decimal number"})
	}
	return d, nil
}

// MoneyString formats an amount with exactly two decimals, the form used in
// signatures and gateway payloads.
func MoneyString(d decimal.Decimal) string {
	return d.StringFixed(MoneyPlaces)
}
