package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{" 2.50 ", 250, true},
		{"-3.50", -350, true},
		{"12.300", 1230, true},
		{"1.005", 0, false}, // no silent rounding
		{"0", 0, false},
		{"0.00", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{"10000000000000", 0, false},
		{"9999999999999.99", 999999999999999, true},
		{"1e3", 100000, true},
		{"1.5e-1", 15, true},
		{"1e-3", 0, false},
		{"1e200000000", 0, false},
		{"1e-200000000", 0, false},
		{"-1e2147483647", 0, false},
		{"5e-2147483648", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got.Cents != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got.Cents, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("%q expected validation error, got %v", tc.in, err)
			}
		}
	}
}

func TestParseAmountHugeExponentIsFast(t *testing.T) {
	start := time.Now()
	for _, in := range []string{"1e200000000", "1e-200000000", "123456789e2000000000"} {
		if _, err := ParseAmount(in); !errors.Is(err, ErrValidation) {
			t.Fatalf("%q expected validation error, got %v", in, err)
		}
	}
	if d := time.Since(start); d > time.Second {
		t.Fatalf("rejecting huge exponents took %v", d)
	}
}

func TestNewMoneyExact(t *testing.T) {
	d := decimal.RequireFromString("0.1").Add(decimal.RequireFromString("0.2"))
	m, err := NewMoney(d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Cents != 30 {
		t.Fatalf("expected 30 cents, got %d", m.Cents)
	}
	if m.String() != "0.30" {
		t.Fatalf("expected 0.30, got %s", m.String())
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: -1}).Validate(); err != nil {
		t.Fatalf("expected negative amounts to be allowed, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
}
