// Package core holds the domain types of the ledger, their validation rules
// and the error kinds shared by storage, services and transport.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a fixed-point amount in minor units (cents).
type Money struct {
	Cents int64
}

// maxAmount bounds the absolute value of a single amount.
var maxAmount = decimal.New(1, maxAmountDigits)

const maxAmountDigits = 13

// NewMoney converts an exact decimal into Money.
//
// More than two fractional digits is an error rather than a rounding step:
// the caller sent a value the ledger cannot represent.
func NewMoney(d decimal.Decimal) (Money, error) {
	if d.IsZero() {
		return Money{}, Invalid("amount", "must not be zero")
	}
	// Shift and Cmp rescale the coefficient to the exponent, which costs
	// time proportional to the exponent. Bound it from the digit count first.
	exp, digits := int64(d.Exponent()), int64(d.NumDigits())
	if digits+exp > maxAmountDigits {
		return Money{}, Invalid("amount", "is too large")
	}
	if -exp-2 >= digits {
		return Money{}, Invalid("amount", "at most two decimal places are allowed")
	}
	cents := d.Shift(2)
	if !cents.IsInteger() {
		return Money{}, Invalid("amount", "at most two decimal places are allowed")
	}
	if d.Abs().Cmp(maxAmount) >= 0 {
		return Money{}, Invalid("amount", "is too large")
	}
	return Money{Cents: cents.IntPart()}, nil
}

// ParseAmount parses a decimal string. Both dot (12.34) and comma (12,34)
// separators are accepted.
//
// Examples:
//
//	ParseAmount("12.34")  -> 1234 cents
//	ParseAmount("-3,50")  -> -350 cents
//	ParseAmount("12.345") -> validation error
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, Invalid("amount", "is required")
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return Money{}, Invalid("amount", "is not a decimal number")
	}
	return NewMoney(d)
}

// Validate checks an amount that did not come through NewMoney, e.g. one read back from storage.
func (m Money) Validate() error {
	if m.Cents == 0 {
		return Invalid("amount", "must not be zero")
	}
	if m.Decimal().Abs().Cmp(maxAmount) >= 0 {
		return Invalid("amount", "is too large")
	}
	return nil
}

// Decimal returns the exact decimal value.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String formats the amount with exactly two decimals.
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}
