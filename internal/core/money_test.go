package core

import (
	"errors"
	"math"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out float64
		ok  bool
	}{
		{"1", 1, true},
		{"1.0", 1, true},
		{"1.23", 1.23, true},
		{"1,23", 1.23, true},
		{"0.01", 0.01, true},
		{"1.005", 1.01, true}, // half away from zero
		{" 2.50 ", 2.5, true},
		{"-1", 0, false},
		{"+1", 0, false},
		{"0", 0, false},
		{"0.004", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"1e3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || math.Abs(got-tc.out) > 0.001 {
				t.Fatalf("%q expected %v, got %v (err=%v)", tc.in, tc.out, got, err)
			}
		} else if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%q expected ErrInvalidAmount, got %v", tc.in, err)
		}
	}
}

func TestSignedAmount(t *testing.T) {
	cases := []struct {
		kind ExpenseKind
		want float64
	}{
		{KindExpense, -10},
		{KindLent, -10},
		{KindIncome, 10},
		{KindReimbursement, 10},
		{KindSettlement, 10},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			got, err := SignedAmount(tc.kind, 10)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}

	if _, err := SignedAmount("gift", 10); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for unknown kind, got %v", err)
	}
	if _, err := SignedAmount(KindExpense, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero, got %v", err)
	}
}

func TestRoundCents(t *testing.T) {
	if got := RoundCents(2.675); math.Abs(got-2.68) > 1e-9 {
		t.Fatalf("expected 2.68, got %v", got)
	}
	if got := RoundCents(-1.005); math.Abs(got+1.01) > 1e-9 {
		t.Fatalf("expected -1.01, got %v", got)
	}
}
