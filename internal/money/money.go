// Package money provides the immutable monetary value used across the ledger
// and the entitlement engine. Amounts are integer minor units (cents) paired
// with an ISO 4217 currency code.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrCurrencyMismatch = errors.New("currency_mismatch")

// Money is a signed amount of a single currency. The zero value is zero
// units of the empty currency and is only meaningful as a placeholder.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: normalizeCurrency(currency)}
}

func Zero(currency string) Money {
	return New(0, currency)
}

func normalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

func (m Money) SameCurrency(other Money) bool {
	return m.Currency == other.Currency
}

func (m Money) Add(other Money) (Money, error) {
	if !m.SameCurrency(other) {
		return Money{}, ErrCurrencyMismatch
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

func (m Money) Subtract(other Money) (Money, error) {
	if !m.SameCurrency(other) {
		return Money{}, ErrCurrencyMismatch
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

func (m Money) Negate() Money {
	return Money{Amount: -m.Amount, Currency: m.Currency}
}

func (m Money) Absolute() Money {
	if m.Amount < 0 {
		return m.Negate()
	}
	return m
}

// Multiply scales the amount by a fraction, rounding half away from zero.
func (m Money) Multiply(factor decimal.Decimal) Money {
	scaled := decimal.NewFromInt(m.Amount).Mul(factor).Round(0)
	return Money{Amount: scaled.IntPart(), Currency: m.Currency}
}

// RatioOf reports m / other as a decimal, e.g. the conversion rate between
// an original amount and its exchanged counterpart.
func (m Money) RatioOf(other Money) decimal.Decimal {
	if other.Amount == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(m.Amount).DivRound(decimal.NewFromInt(other.Amount), 8)
}

func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

func (m Money) GreaterThan(other Money) bool         { return m.Amount > other.Amount }
func (m Money) GreaterThanOrEqual(other Money) bool  { return m.Amount >= other.Amount }
func (m Money) LessThan(other Money) bool            { return m.Amount < other.Amount }
func (m Money) LessThanOrEqual(other Money) bool     { return m.Amount <= other.Amount }

func (m Money) IsZero() bool     { return m.Amount == 0 }
func (m Money) IsNegative() bool { return m.Amount < 0 }
func (m Money) IsPositive() bool { return m.Amount > 0 }

func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.Amount, m.Currency)
}

// IsCurrencyCode reports whether s looks like an ISO 4217 alphabetic code.
func IsCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
