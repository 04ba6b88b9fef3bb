package types

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func TestMoneyConstructors(t *testing.T) {
	tests := []struct {
		name     string
		money    Money
		amount   int64
		currency string
		display  string
	}{
		{"INR", INR(125050), 125050, "inr", "₹1250.50"},
		{"USD", USD(4900), 4900, "usd", "$49.00"},
		{"New upper-case currency", New(100, "INR"), 100, "inr", "₹1.00"},
		{"Zero INR", Zero("INR"), 0, "inr", "₹0.00"},
		{"Zero-decimal currency", New(100, "jpy"), 100, "jpy", "¥100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.money.Amount != tt.amount {
				t.Errorf("Amount: got %d, want %d", tt.money.Amount, tt.amount)
			}
			if tt.money.Currency != tt.currency {
				t.Errorf("Currency: got %s, want %s", tt.money.Currency, tt.currency)
			}
			if tt.money.String() != tt.display {
				t.Errorf("Display: got %s, want %s", tt.money.String(), tt.display)
			}
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Money
		expected Money
	}{
		{"Add", func() Money { return INR(100).Add(INR(200)) }, INR(300)},
		{"Subtract", func() Money { return INR(500).Subtract(INR(200)) }, INR(300)},
		{"Multiply", func() Money { return INR(100).Multiply(3) }, INR(300)},
		{"Line amount", func() Money {
			return INR(25000).Multiply(4).Subtract(INR(5000))
		}, INR(95000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.op()
			if !result.Equal(tt.expected) {
				t.Errorf("Got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMoneyCheckedArithmetic(t *testing.T) {
	if got, err := INR(100).CheckedAdd(INR(200)); err != nil || !got.Equal(INR(300)) {
		t.Errorf("CheckedAdd: got %v, %v", got, err)
	}
	if got, err := INR(25000).CheckedMultiply(4); err != nil || !got.Equal(INR(100000)) {
		t.Errorf("CheckedMultiply: got %v, %v", got, err)
	}

	overflows := []struct {
		name string
		op   func() (Money, error)
	}{
		{"add past max", func() (Money, error) { return INR(math.MaxInt64).CheckedAdd(INR(1)) }},
		{"add past min", func() (Money, error) { return INR(math.MinInt64).CheckedAdd(INR(-1)) }},
		{"wrap to small", func() (Money, error) { return INR(4).CheckedMultiply(1 << 62) }},
		{"wrap to zero", func() (Money, error) { return INR(1 << 32).CheckedMultiply(1 << 32) }},
		{"min times -1", func() (Money, error) { return INR(math.MinInt64).CheckedMultiply(-1) }},
	}
	for _, tt := range overflows {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.op(); !errors.Is(err, ErrOverflow) {
				t.Errorf("err = %v, want ErrOverflow", err)
			}
		})
	}
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for currency mismatch")
		}
	}()

	_ = INR(100).Add(USD(100))
}

func TestMoneyIn(t *testing.T) {
	var blank Money
	if got := blank.In("INR"); !got.Equal(Zero("inr")) {
		t.Errorf("In on zero value: got %+v", got)
	}
	if got := USD(5).In("inr"); got.Currency != "usd" {
		t.Errorf("In must not overwrite an explicit currency, got %q", got.Currency)
	}
}

func TestMoneyComparison(t *testing.T) {
	tests := []struct {
		name    string
		a, b    Money
		less    bool
		greater bool
		equal   bool
	}{
		{"Equal", INR(100), INR(100), false, false, true},
		{"Less", INR(50), INR(100), true, false, false},
		{"Greater", INR(200), INR(100), false, true, false},
		{"Zero equal", INR(0), Zero("inr"), false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.LessThan(tt.b); got != tt.less {
				t.Errorf("LessThan: got %v, want %v", got, tt.less)
			}
			if got := tt.a.GreaterThan(tt.b); got != tt.greater {
				t.Errorf("GreaterThan: got %v, want %v", got, tt.greater)
			}
			if got := tt.a.Equal(tt.b); got != tt.equal {
				t.Errorf("Equal: got %v, want %v", got, tt.equal)
			}
		})
	}
}

func TestMoneyFormatMajor(t *testing.T) {
	tests := []struct {
		money    Money
		expected string
	}{
		{INR(100000), "1000.00"},
		{INR(1), "0.01"},
		{INR(0), "0.00"},
		{INR(-4900), "-49.00"},
		{New(12345, "jpy"), "12345"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.money.FormatMajor(); got != tt.expected {
				t.Errorf("FormatMajor: got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(INR(125050))
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	expected := `{"amount":125050,"currency":"inr","display":"₹1250.50"}`
	if string(data) != expected {
		t.Errorf("JSON: got %s, want %s", string(data), expected)
	}

	// The display field is ignored on the way back in.
	var back Money
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if !back.Equal(INR(125050)) {
		t.Errorf("Unmarshal: got %+v", back)
	}
}

func TestSum(t *testing.T) {
	tests := []struct {
		name     string
		values   []Money
		expected Money
	}{
		{"Empty", []Money{}, Zero(DefaultCurrency)},
		{"Single", []Money{INR(100)}, INR(100)},
		{"Multiple", []Money{INR(100), INR(200), INR(300)}, INR(600)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := Sum(tt.values...); !result.Equal(tt.expected) {
				t.Errorf("Sum: got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestEntityCreatedOn(t *testing.T) {
	// 20:00 UTC on 31 March is already 1 April in India.
	e := NewEntityAt(time.Date(2024, 3, 31, 20, 0, 0, 0, time.UTC))
	ist := time.FixedZone("IST", 5*3600+1800)

	if got := e.CreatedOn(nil); got != "2024-03-31" {
		t.Errorf("CreatedOn(UTC): got %s", got)
	}
	if got := e.CreatedOn(ist); got != "2024-04-01" {
		t.Errorf("CreatedOn(IST): got %s", got)
	}
}

func BenchmarkMoneyString(b *testing.B) {
	m := INR(125050)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.String()
	}
}
