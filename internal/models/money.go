package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor units (cents). JSON renders it as a
// two-decimal number, e.g. 8.00.
type Money int64

// MaxMoney is the largest amount the ledger accepts: 10,000,000,000.00.
const MaxMoney Money = 1_000_000_000_000

var (
	ErrTooPrecise = errors.New("amount must have at most two decimal places")
	ErrOutOfRange = errors.New("amount is out of range")

	maxMoneyDecimal = decimal.New(int64(MaxMoney), -2)
)

// MoneyFromDecimal converts d into cents, refusing fractions of a cent and
// amounts beyond MaxMoney in either direction.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	if !d.Equal(d.Round(2)) {
		return 0, ErrTooPrecise
	}
	if d.Abs().GreaterThan(maxMoneyDecimal) {
		return 0, ErrOutOfRange
	}
	return Money(d.Shift(2).IntPart()), nil
}

// ParseMoney parses a decimal string such as "25.00".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return MoneyFromDecimal(d)
}

func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	v, err := MoneyFromDecimal(d)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
