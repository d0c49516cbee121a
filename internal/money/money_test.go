package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

// ============================================================================
// TEST: Rounding to minor units
// ============================================================================

func TestNew_RoundsHalfUp(t *testing.T) {
	testCases := []struct {
		in       string
		expected string
	}{
		{"1.005", "1.01"},
		{"1.004", "1.00"},
		{"0.125", "0.13"},
		{"2", "2.00"},
		{"-0.005", "-0.01"},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got := New(decimal.RequireFromString(tc.in)).String()
			if got != tc.expected {
				t.Errorf("Expected %s, got %s", tc.expected, got)
			}
		})
	}
}

func TestArithmetic_NoFloatDrift(t *testing.T) {
	total := Zero
	for i := 0; i < 10; i++ {
		total = total.Add(MustParse("0.10"))
	}
	if !total.Equal(MustParse("1.00")) {
		t.Errorf("Expected 1.00 after ten additions of 0.10, got %s", total)
	}

	if got := MustParse("1.00").Sub(MustParse("0.85")); !got.Equal(MustParse("0.15")) {
		t.Errorf("Expected 0.15, got %s", got)
	}

	if got := MustParse("1.00").Sub(MustParse("2.50")); !got.Equal(MustParse("-1.50")) {
		t.Errorf("Expected negative result -1.50 to be returned as-is, got %s", got)
	}
}

func TestMul_AppliesRatioAndRounds(t *testing.T) {
	fee := MustParseRatio("0.15")

	if got := MustParse("1.00").Mul(fee); !got.Equal(MustParse("0.15")) {
		t.Errorf("Expected 0.15, got %s", got)
	}
	if got := MustParse("0.10").Mul(fee); !got.Equal(MustParse("0.02")) {
		t.Errorf("Expected 0.015 to round up to 0.02, got %s", got)
	}

	goal := MustParse("100.00").Mul(OneRatio.Add(fee))
	if !goal.Equal(MustParse("115.00")) {
		t.Errorf("Expected funding goal 115.00, got %s", goal)
	}
}

func TestDiv(t *testing.T) {
	if got := MustParse("10.00").Div(MustParseRatio("3")); !got.Equal(MustParse("3.33")) {
		t.Errorf("Expected 3.33, got %s", got)
	}
	if got := MustParse("10.00").Div(ZeroRatio); !got.IsZero() {
		t.Errorf("Expected zero when dividing by zero, got %s", got)
	}
}

// ============================================================================
// TEST: ProportionOf
// ============================================================================

func TestProportionOf(t *testing.T) {
	testCases := []struct {
		name     string
		amount   string
		num      string
		den      string
		expected string
	}{
		{"three quarters", "0.85", "3.00", "4.00", "0.64"},
		{"one quarter", "0.85", "1.00", "4.00", "0.21"},
		{"whole", "12.34", "5.00", "5.00", "12.34"},
		{"zero denominator", "10.00", "1.00", "0", "0.00"},
		{"thirds", "1.00", "1.00", "3.00", "0.33"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := ProportionOf(MustParse(tc.amount), MustParse(tc.num), MustParse(tc.den))
			if !got.Equal(MustParse(tc.expected)) {
				t.Errorf("Expected %s, got %s", tc.expected, got)
			}
		})
	}
}

func TestRatioOf(t *testing.T) {
	if got := RatioOf(MustParse("3.00"), MustParse("4.00")); !got.Equal(MustParseRatio("0.75")) {
		t.Errorf("Expected 0.75, got %s", got)
	}
	if got := RatioOf(MustParse("3.00"), Zero); !got.IsZero() {
		t.Errorf("Expected zero ratio for zero denominator, got %s", got)
	}
}

// ============================================================================
// TEST: Comparisons and helpers
// ============================================================================

func TestComparisons(t *testing.T) {
	a, b := MustParse("0.50"), MustParse("10.00")

	if !a.LessThan(b) || b.LessThan(a) {
		t.Error("Expected 0.50 < 10.00")
	}
	if !Min(a, b).Equal(a) {
		t.Errorf("Expected min 0.50, got %s", Min(a, b))
	}
	if !Max(a, b).Equal(b) {
		t.Errorf("Expected max 10.00, got %s", Max(a, b))
	}
	if !MustParse("1").Equal(MustParse("1.000")) {
		t.Error("Expected 1 and 1.000 to compare equal")
	}
	if got := Sum(a, b, MustParse("0.01")); !got.Equal(MustParse("10.51")) {
		t.Errorf("Expected sum 10.51, got %s", got)
	}
}

func TestCents(t *testing.T) {
	if got := MustParse("12.34").Cents(); got != 1234 {
		t.Errorf("Expected 1234 cents, got %d", got)
	}
	if got := FromCents(5); !got.Equal(MustParse("0.05")) {
		t.Errorf("Expected 0.05, got %s", got)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse("abc"); err == nil {
		t.Error("Expected error for malformed amount")
	}
}

func TestDisplay(t *testing.T) {
	if got := MustParse("1234.50").Display("USD"); got != "$1,234.50" {
		t.Errorf("Expected $1,234.50, got %s", got)
	}
}

// ============================================================================
// TEST: Encoding
// ============================================================================

func TestJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Amount Money `json:"amount"`
	}{MustParse("4.5")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"amount":"4.50"}` {
		t.Errorf("Expected quoted fixed-point amount, got %s", b)
	}

	var in struct {
		A Money `json:"a"`
		B Money `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a":"3.005","b":7.25}`), &in); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !in.A.Equal(MustParse("3.01")) || !in.B.Equal(MustParse("7.25")) {
		t.Errorf("Expected 3.01 and 7.25, got %s and %s", in.A, in.B)
	}
}

func TestScanValue(t *testing.T) {
	var m Money
	if err := m.Scan("19.99"); err != nil {
		t.Fatalf("scan: %v", err)
	}
	v, err := m.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if v != "19.99" {
		t.Errorf("Expected 19.99, got %v", v)
	}
}
