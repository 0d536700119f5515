package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestTicker_FixedPoint(t *testing.T) {
	t.Run("Eight Decimal Feed", func(t *testing.T) {
		tk := Ticker{Symbol: "WETH", Price: decimal.NewFromInt(2000)}
		answer, err := tk.FixedPoint(8)
		if err != nil {
			t.Fatalf("FixedPoint failed: %v", err)
		}
		if answer.String() != "200000000000" {
			t.Errorf("Expected 200000000000, got %s", answer)
		}
	})

	t.Run("Truncates Extra Digits", func(t *testing.T) {
		tk := Ticker{Symbol: "WBTC", Price: decimal.RequireFromString("1.123456789")}
		answer, err := tk.FixedPoint(8)
		if err != nil {
			t.Fatalf("FixedPoint failed: %v", err)
		}
		if answer.String() != "112345678" {
			t.Errorf("Expected 112345678, got %s", answer)
		}
	})

	t.Run("Safety: Non-positive Price", func(t *testing.T) {
		for _, p := range []string{"0", "-1"} {
			tk := Ticker{Symbol: "WETH", Price: decimal.RequireFromString(p)}
			if _, err := tk.FixedPoint(8); !errors.Is(err, ErrInvalidPrice) {
				t.Errorf("price %s: expected ErrInvalidPrice, got %v", p, err)
			}
		}
	})

	t.Run("Safety: Below Precision", func(t *testing.T) {
		tk := Ticker{Symbol: "DUST", Price: decimal.RequireFromString("0.000000001")}
		if _, err := tk.FixedPoint(8); !errors.Is(err, ErrInvalidPrice) {
			t.Errorf("Expected ErrInvalidPrice, got %v", err)
		}
	})
}
