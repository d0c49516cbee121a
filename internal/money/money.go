// Package money holds the exact fixed-point amount type every monetary value in
// the ledger flows through. Amounts are kept in shopspring decimals and are
// rounded half-up to the minor unit after every operation, so nothing
// unrounded ever reaches persisted state.
package money

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Scale is the number of minor-unit digits kept on every amount.
const Scale = 2

// DefaultCurrency is used for display when no currency is configured.
const DefaultCurrency = gomoney.USD

var (
	// Zero is the zero amount.
	Zero = Money{}

	// ErrInvalidAmount is returned when an amount cannot be parsed.
	ErrInvalidAmount = errors.New("invalid monetary amount")
)

// Money is a monetary amount rounded to Scale decimal places.
// The zero value is 0.00 and is ready to use.
type Money struct {
	d decimal.Decimal
}

// New rounds d to the minor unit.
func New(d decimal.Decimal) Money {
	return Money{d: d.Round(Scale)}
}

// FromCents builds an amount from an integer count of minor units.
func FromCents(cents int64) Money {
	return Money{d: decimal.New(cents, -Scale)}
}

// Parse reads a decimal string such as "12.50". Extra precision is rounded.
func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return New(d), nil
}

// MustParse is Parse for constants and tests. It panics on malformed input.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Add(n Money) Money { return New(m.d.Add(n.d)) }

// Sub may return a negative amount. Callers validate balances before
// committing.
func (m Money) Sub(n Money) Money { return New(m.d.Sub(n.d)) }

// Mul scales the amount by a dimensionless factor.
func (m Money) Mul(factor Ratio) Money { return New(m.d.Mul(factor.d)) }

// Div divides by a dimensionless factor. A zero factor yields zero.
func (m Money) Div(factor Ratio) Money {
	if factor.d.IsZero() {
		return Zero
	}
	return New(m.d.DivRound(factor.d, Scale+divGuard))
}

// divGuard keeps a few extra digits before the final minor-unit rounding.
const divGuard = 6

// ProportionOf returns amount * numerator / denominator rounded to the minor
// unit, or zero when denominator is zero. It rounds each share on its own, so
// splitting one amount across several claims goes through Allocate instead.
func ProportionOf(amount, numerator, denominator Money) Money {
	if denominator.d.IsZero() {
		return Zero
	}
	return New(amount.d.Mul(numerator.d).DivRound(denominator.d, Scale+divGuard))
}

// Min returns the smaller of a and b.
func Min(a, b Money) Money {
	if a.d.LessThan(b.d) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b Money) Money {
	if a.d.GreaterThan(b.d) {
		return a
	}
	return b
}

// Sum adds every amount in ms.
func Sum(ms ...Money) Money {
	total := Zero
	for _, m := range ms {
		total = total.Add(m)
	}
	return total
}

func (m Money) Cmp(n Money) int                 { return m.d.Cmp(n.d) }
func (m Money) Equal(n Money) bool              { return m.d.Equal(n.d) }
func (m Money) LessThan(n Money) bool           { return m.d.LessThan(n.d) }
func (m Money) LessThanOrEqual(n Money) bool    { return m.d.LessThanOrEqual(n.d) }
func (m Money) GreaterThan(n Money) bool        { return m.d.GreaterThan(n.d) }
func (m Money) GreaterThanOrEqual(n Money) bool { return m.d.GreaterThanOrEqual(n.d) }
func (m Money) IsZero() bool                    { return m.d.IsZero() }
func (m Money) IsPositive() bool                { return m.d.IsPositive() }
func (m Money) IsNegative() bool                { return m.d.IsNegative() }
func (m Money) Neg() Money                      { return Money{d: m.d.Neg()} }

// Cents returns the amount as an integer count of minor units.
func (m Money) Cents() int64 { return m.d.Shift(Scale).IntPart() }

// Decimal exposes the underlying decimal value.
func (m Money) Decimal() decimal.Decimal { return m.d }

// String renders the plain fixed-point form, e.g. "1234.50".
func (m Money) String() string { return m.d.StringFixed(Scale) }

// Display formats the amount for people, e.g. "$1,234.50". This is the only
// place an amount is turned into presentation text.
func (m Money) Display(currency string) string {
	if currency == "" {
		currency = DefaultCurrency
	}
	return gomoney.New(m.Cents(), currency).Display()
}

// MarshalJSON encodes the amount as a quoted fixed-point string so clients
// never round-trip it through a float.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts both "12.50" and 12.50.
func (m *Money) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, string(b))
	}
	*m = New(d)
	return nil
}

// Scan implements sql.Scanner for NUMERIC columns.
func (m *Money) Scan(src any) error {
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return fmt.Errorf("scan money: %w", err)
	}
	*m = New(d)
	return nil
}

// Value implements driver.Valuer.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}
