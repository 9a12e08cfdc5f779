package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// MaxAmount is the largest amount the NUMERIC(14,2) column holds.
var MaxAmount = decimal.RequireFromString("999999999999.99")

// Exponent bounds checked before any arithmetic. Rescaling a decimal with an
// exponent far outside them allocates a coefficient with that many digits.
const (
	maxAmountExponent = 12
	minAmountExponent = -18
)

var (
	ErrAmountNotPositive = errors.New("amount must be greater than zero")
	ErrAmountTooLarge    = errors.New("amount exceeds 999,999,999,999.99")
	ErrAmountPrecision   = errors.New("amount has too many decimal places")
)

var inrPrinter = message.NewPrinter(language.MustParse("en-IN"))

// FormatINR renders amount in rupees with Indian digit grouping, e.g. ₹50,000.00.
func FormatINR(amount decimal.Decimal) string {
	f, _ := amount.Round(2).Float64()
	return inrPrinter.Sprint(currency.Symbol(currency.INR.Amount(f)))
}

// ParseAmount parses a user-entered rupee amount. Grouping commas and a
// leading rupee sign are accepted. The result passes CheckAmount.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "₹")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	return CheckAmount(d)
}

// CheckAmount rounds d to paise and rejects values that are not positive
// after rounding or do not fit MaxAmount.
func CheckAmount(d decimal.Decimal) (decimal.Decimal, error) {
	if d.Sign() <= 0 {
		return decimal.Zero, ErrAmountNotPositive
	}
	if d.Exponent() > maxAmountExponent {
		return decimal.Zero, ErrAmountTooLarge
	}
	if d.Exponent() < minAmountExponent {
		return decimal.Zero, ErrAmountPrecision
	}
	d = d.Round(2)
	if !d.IsPositive() {
		return decimal.Zero, ErrAmountNotPositive
	}
	if d.GreaterThan(MaxAmount) {
		return decimal.Zero, ErrAmountTooLarge
	}
	return d, nil
}
