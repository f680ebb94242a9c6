package model

import (
	"encoding/json"
	"fmt"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Money is a fixed-point decimal amount paired with an ISO-4217 currency
// code. The sign carries direction: negative is an outflow from the
// account it is posted to.
type Money struct {
	value decimal.Decimal
	cur   string
}

// NewMoney builds a Money value, uppercasing the currency code.
func NewMoney(value decimal.Decimal, currency string) Money {
	return Money{value: value, cur: strings.ToUpper(currency)}
}

// ParseMoney parses a decimal string amount into Money.
func ParseMoney(amount, currency string) (Money, error) {
	v, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return NewMoney(v, currency), nil
}

// Currency returns the ISO-4217 code.
func (m Money) Currency() string { return m.cur }

// Decimal returns the underlying decimal value.
func (m Money) Decimal() decimal.Decimal { return m.value }

// ValidCurrency reports whether the currency code is known to go-money's
// ISO-4217 table.
func (m Money) ValidCurrency() bool {
	if m.cur == "" {
		return false
	}
	defer func() { recover() }() //nolint:errcheck // go-money panics on unknown code in some paths
	return gomoney.GetCurrency(m.cur) != nil
}

func (m Money) IsZero() bool               { return m.value.IsZero() }
func (m Money) IsNegative() bool           { return m.value.IsNegative() }
func (m Money) IsPositive() bool           { return m.value.IsPositive() }
func (m Money) Neg() Money                 { return Money{value: m.value.Neg(), cur: m.cur} }
func (m Money) Abs() Money                 { return Money{value: m.value.Abs(), cur: m.cur} }
func (m Money) Equal(n Money) bool         { return m.cur == n.cur && m.value.Equal(n.value) }
func (m Money) Sub(n Money) decimal.Decimal { return m.value.Sub(n.value) }

// OppositeSignOf reports whether m and n have opposite non-zero signs, i.e. one
// is an outflow and the other an inflow.
func (m Money) OppositeSignOf(n Money) bool {
	return (m.IsPositive() && n.IsNegative()) || (m.IsNegative() && n.IsPositive())
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.value.StringFixed(2), m.cur)
}

type moneyJSON struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.value.String(), Currency: m.cur})
}

func (m *Money) UnmarshalJSON(b []byte) error {
	var j moneyJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	v, err := decimal.NewFromString(j.Amount)
	if err != nil {
		return fmt.Errorf("invalid money amount %q: %w", j.Amount, err)
	}
	m.value = v
	m.cur = strings.ToUpper(j.Currency)
	return nil
}
