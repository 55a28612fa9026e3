// Package core provides money parsing and handling utilities.
//
// Amounts are kept as exact decimals in the currency's major unit and are
// rounded to the currency's minor unit (two fractional digits for most ISO
// 4217 codes) as soon as they enter the domain.
package core

import (
	"errors"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrNegativeAmount  = errors.New("amount must not be negative")
	ErrEmptyCurrency   = errors.New("currency is required")
	ErrUnknownCurrency = errors.New("unknown currency code")
)

// Money is a non-negative amount in a given ISO currency.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// NewMoney builds a normalized, validated Money value.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	m := Money{Amount: amount, Currency: currency}.Normalize()
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

// ParseAmount converts a decimal string to an exact amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Signs,
// exponents and thousands separators are rejected.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("-1")    -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if r != '.' && (r < '0' || r > '9') {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// Normalize upper-cases the currency and rounds the amount to the currency's
// minor unit. Unknown currencies keep two fractional digits.
func (m Money) Normalize() Money {
	m.Currency = strings.ToUpper(strings.TrimSpace(m.Currency))
	m.Amount = m.Amount.Round(m.Fraction())
	return m
}

// Fraction returns the number of minor-unit digits of the currency.
func (m Money) Fraction() int32 {
	if cur := money.GetCurrency(strings.ToUpper(strings.TrimSpace(m.Currency))); cur != nil {
		return int32(cur.Fraction)
	}
	return 2
}

func (m Money) Validate() error {
	if m.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	code := strings.TrimSpace(m.Currency)
	if code == "" {
		return ErrEmptyCurrency
	}
	if len(code) != 3 || money.GetCurrency(strings.ToUpper(code)) == nil {
		return ErrUnknownCurrency
	}
	return nil
}

// Equal reports whether both values hold the same amount in the same currency.
func (m Money) Equal(o Money) bool {
	return m.Currency == o.Currency && m.Amount.Equal(o.Amount)
}

// Fixed returns the amount with exactly Fraction() digits, e.g. "90.00".
func (m Money) Fixed() string {
	return m.Amount.StringFixed(m.Fraction())
}

// String formats the value for display, e.g. "$82.45" for CAD.
func (m Money) String() string {
	if money.GetCurrency(m.Currency) == nil {
		return m.Fixed() + " " + m.Currency
	}
	minor := m.Amount.Shift(m.Fraction()).Round(0).IntPart()
	return money.New(minor, m.Currency).Display()
}
