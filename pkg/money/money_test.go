package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRound(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"4166.66666666", "4166.67"},
		{"416.6666", "416.67"},
		{"10661.8547", "10661.85"},
		{"0.005", "0"},    // banker's rounding, ties to even
		{"0.015", "0.02"}, // banker's rounding, ties to even
		{"100", "100"},
	}

	for _, c := range cases {
		in, err := decimal.NewFromString(c.in)
		if err != nil {
			t.Fatalf("bad test input %q: %v", c.in, err)
		}
		want, _ := decimal.NewFromString(c.want)
		got := Round(in)
		if !got.Equal(want) {
			t.Errorf("Round(%s) = %s, want %s", c.in, got, want)
		}
	}
}

func TestRateFraction(t *testing.T) {
	rate := decimal.NewFromInt(12)
	got := RateFraction(rate)
	want := decimal.NewFromFloat(0.12)
	if !got.Equal(want) {
		t.Errorf("RateFraction(12) = %s, want %s", got, want)
	}
}

func TestIsPositive(t *testing.T) {
	if IsPositive(decimal.Zero) {
		t.Error("zero should not be positive")
	}
	if IsPositive(decimal.NewFromInt(-1)) {
		t.Error("negative amount should not be positive")
	}
	if !IsPositive(decimal.NewFromFloat(0.01)) {
		t.Error("one minor unit should be positive")
	}
}
