package money

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// RatioScale is the precision kept on dimensionless fractions.
const RatioScale = 8

var (
	ZeroRatio = Ratio{}
	OneRatio  = Ratio{d: decimal.NewFromInt(1)}
)

// Ratio is a dimensionless fraction such as a platform fee (0.15) or a
// stamped profit share (0.75).
type Ratio struct {
	d decimal.Decimal
}

// NewRatio rounds d to RatioScale places.
func NewRatio(d decimal.Decimal) Ratio {
	return Ratio{d: d.Round(RatioScale)}
}

// ParseRatio reads a decimal string such as "0.15".
func ParseRatio(s string) (Ratio, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return ZeroRatio, fmt.Errorf("invalid ratio %q: %w", s, err)
	}
	return NewRatio(d), nil
}

// MustParseRatio panics on malformed input.
func MustParseRatio(s string) Ratio {
	r, err := ParseRatio(s)
	if err != nil {
		panic(err)
	}
	return r
}

// RatioOf returns numerator / denominator, or zero when denominator is zero.
func RatioOf(numerator, denominator Money) Ratio {
	if denominator.d.IsZero() {
		return ZeroRatio
	}
	return Ratio{d: numerator.d.DivRound(denominator.d, RatioScale)}
}

func (r Ratio) Add(o Ratio) Ratio        { return NewRatio(r.d.Add(o.d)) }
func (r Ratio) Sub(o Ratio) Ratio        { return NewRatio(r.d.Sub(o.d)) }
func (r Ratio) Cmp(o Ratio) int          { return r.d.Cmp(o.d) }
func (r Ratio) Equal(o Ratio) bool       { return r.d.Equal(o.d) }
func (r Ratio) IsZero() bool             { return r.d.IsZero() }
func (r Ratio) IsNegative() bool         { return r.d.IsNegative() }
func (r Ratio) Decimal() decimal.Decimal { return r.d }
func (r Ratio) String() string           { return r.d.String() }

func (r Ratio) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.d.String())
}

func (r *Ratio) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("invalid ratio %s: %w", string(b), err)
	}
	*r = NewRatio(d)
	return nil
}

func (r *Ratio) Scan(src any) error {
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return fmt.Errorf("scan ratio: %w", err)
	}
	*r = NewRatio(d)
	return nil
}

func (r Ratio) Value() (driver.Value, error) {
	return r.d.String(), nil
}
