// Package core provides money parsing and handling utilities.
//
// Amounts are stored as integer minor units (cents, kobo, pesewas). Parsing
// and ratio math go through shopspring/decimal so nothing is ever rounded
// through a float.
package core

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is an ISO-4217 code supported by the product.
type Currency string

const (
	NGN Currency = "NGN"
	GHS Currency = "GHS"
	KES Currency = "KES"
	ZAR Currency = "ZAR"
	EGP Currency = "EGP"
	USD Currency = "USD"
)

var currencySymbols = map[Currency]string{
	NGN: "₦",
	GHS: "GH₵",
	KES: "KSh",
	ZAR: "R",
	EGP: "E£",
	USD: "$",
}

// IsValid reports whether the currency is supported.
func (c Currency) IsValid() bool {
	_, ok := currencySymbols[c]
	return ok
}

// Symbol returns the display symbol, or the code itself when unknown.
func (c Currency) Symbol() string {
	if s, ok := currencySymbols[c]; ok {
		return s
	}
	return string(c)
}

// Money is an amount in minor units.
type Money struct {
	Cents int64
}

var (
	maxCents = decimal.NewFromInt(math.MaxInt64)
	minCents = decimal.NewFromInt(math.MinInt64)
)

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and rounds
// half away from zero on the third decimal place. The result is always
// positive. Returns ErrInvalidAmount for invalid formats, negative values,
// zero amounts or values that overflow int64 cents.
//
// Examples:
//
//	ParseDecimalToCents("12.34")  -> 1234, nil
//	ParseDecimalToCents("12,34")  -> 1234, nil
//	ParseDecimalToCents("12.345") -> 1235, nil
//	ParseDecimalToCents("12.344") -> 1234, nil
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.ContainsAny(s, "eE") {
		return 0, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	cents := d.Round(2).Shift(2)
	if cents.GreaterThan(maxCents) {
		return 0, ErrInvalidAmount
	}
	if !cents.IsPositive() {
		return 0, ErrInvalidAmount
	}
	return cents.IntPart(), nil
}

// NewMoney builds Money from a major-unit decimal, rounding to cents.
// Amounts outside the int64 cent range saturate at the nearest bound.
func NewMoney(major decimal.Decimal) Money {
	cents := major.Round(2).Shift(2)
	switch {
	case cents.GreaterThan(maxCents):
		return Money{Cents: math.MaxInt64}
	case cents.LessThan(minCents):
		return Money{Cents: math.MinInt64}
	}
	return Money{Cents: cents.IntPart()}
}

// MoneyFromDecimal is NewMoney for untrusted input: amounts that do not fit
// in int64 cents return ErrInvalidAmount.
func MoneyFromDecimal(major decimal.Decimal) (Money, error) {
	cents := major.Round(2).Shift(2)
	if cents.GreaterThan(maxCents) || cents.LessThan(minCents) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: cents.IntPart()}, nil
}

// MoneyFromFloat is a convenience for simulation outputs and tests.
func MoneyFromFloat(major float64) Money {
	return NewMoney(decimal.NewFromFloat(major))
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Float64 returns the amount in major units for statistical work.
// Use cents for bookkeeping.
func (m Money) Float64() float64 {
	f, _ := m.Decimal().Float64()
	return f
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }
func (m Money) IsZero() bool      { return m.Cents == 0 }
func (m Money) IsNegative() bool  { return m.Cents < 0 }

// MulDecimal scales the amount by f, rounding to cents.
func (m Money) MulDecimal(f decimal.Decimal) Money {
	return NewMoney(m.Decimal().Mul(f))
}

// MarshalJSON writes the amount as a number in major units.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal().StringFixed(2)), nil
}

// UnmarshalJSON accepts a number or a numeric string in major units.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if string(data) == "null" {
		return nil
	}
	d, err := decimal.NewFromString(string(data))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, data)
	}
	v, err := MoneyFromDecimal(d)
	if err != nil {
		return fmt.Errorf("%w: %s is out of range", ErrInvalidAmount, data)
	}
	*m = v
	return nil
}

// Validate requires a strictly positive amount.
func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// FormatMoney renders the amount with the currency symbol and thousands
// separators, e.g. "₦1,234,567.89".
func FormatMoney(m Money, c Currency) string {
	neg := m.Cents < 0
	d := m.Decimal().Abs().StringFixed(2)

	intPart, frac, _ := strings.Cut(d, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	out := c.Symbol() + b.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}

// Percent returns part/whole*100 rounded to two places, or zero when whole is
// not positive.
func Percent(part, whole Money) decimal.Decimal {
	if whole.Cents <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(part.Cents).
		Div(decimal.NewFromInt(whole.Cents)).
		Mul(decimal.NewFromInt(100)).
		Round(2)
}
