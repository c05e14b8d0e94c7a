package trading

import (
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestTakeProfitPrice(t *testing.T) {
	tests := []struct {
		price string
		pct   string
		want  string
	}{
		{"2.0", "12", "2.24000000"},
		{"1.23456789", "12", "1.38271604"},
		{"0.00001234", "15", "0.00001419"},
		{"100", "10", "110.00000000"},
	}

	for _, tt := range tests {
		got, err := TakeProfitPrice(decimal.RequireFromString(tt.price), decimal.RequireFromString(tt.pct))
		if err != nil {
			t.Fatalf("TakeProfitPrice(%s, %s): unexpected error %v", tt.price, tt.pct, err)
		}
		if FormatFixed(got) != tt.want {
			t.Errorf("TakeProfitPrice(%s, %s) = %s, want %s", tt.price, tt.pct, FormatFixed(got), tt.want)
		}
	}
}

func TestTakeProfitPriceRejectsZeroPrice(t *testing.T) {
	for _, pct := range []string{"0", "12", "200"} {
		_, err := TakeProfitPrice(decimal.Zero, decimal.RequireFromString(pct))
		if !errors.Is(err, ErrInvalidFill) {
			t.Errorf("Expected ErrInvalidFill for zero price pct=%s, got %v", pct, err)
		}
	}
}

func TestFormatFixedHasEightDigits(t *testing.T) {
	values := []float64{50, 0.1, 1.5, 123456.123456789, 0.00000001, 3.14159265358979}

	for _, v := range values {
		s := FormatFixed(decimal.NewFromFloat(v))
		dot := strings.IndexByte(s, '.')
		if dot < 0 || len(s)-dot-1 != 8 {
			t.Errorf("FormatFixed(%v) = %q, want exactly 8 fractional digits", v, s)
			continue
		}
		back, err := strconv.ParseFloat(s, 64)
		if err != nil {
			t.Fatalf("ParseFloat(%q): %v", s, err)
		}
		if diff := back - v; diff > 1e-8 || diff < -1e-8 {
			t.Errorf("FormatFixed(%v) parsed back as %v", v, back)
		}
	}
}

func TestSellQuantity(t *testing.T) {
	qty, err := SellQuantity(decimal.RequireFromString("50.0"), decimal.Zero)
	if err != nil {
		t.Fatal(err)
	}
	if FormatFixed(qty) != "50.00000000" {
		t.Errorf("Expected 50.00000000, got %s", FormatFixed(qty))
	}

	qty, err = SellQuantity(decimal.RequireFromString("1.123456789"), decimal.RequireFromString("0.1"))
	if err != nil {
		t.Fatal(err)
	}
	// 1.123456789 * 0.999 = 1.122333332211, truncated not rounded
	if FormatFixed(qty) != "1.12233333" {
		t.Errorf("Expected 1.12233333, got %s", FormatFixed(qty))
	}

	if _, err := SellQuantity(decimal.Zero, decimal.Zero); !errors.Is(err, ErrInvalidFill) {
		t.Errorf("Expected ErrInvalidFill, got %v", err)
	}
}

func TestHasFill(t *testing.T) {
	var nilRecord *OrderRecord
	if nilRecord.HasFill() {
		t.Error("nil record should not have a fill")
	}

	rec := &OrderRecord{ExecutedQty: decimal.RequireFromString("1"), ExecutedPrice: decimal.Zero}
	if rec.HasFill() {
		t.Error("zero price should not count as a fill")
	}

	rec.ExecutedPrice = decimal.RequireFromString("0.5")
	if !rec.HasFill() {
		t.Error("positive qty and price should count as a fill")
	}
}
