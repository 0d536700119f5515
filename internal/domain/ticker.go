package domain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Ticker represents one price observation from a feed worker
type Ticker struct {
	Symbol string          `json:"symbol"` // Collateral symbol (e.g., "WETH")
	Price  decimal.Decimal `json:"price"`  // USD price, human units
	Source string          `json:"source"` // "WS", "REST", "STATIC"
	Ts     time.Time       `json:"ts"`
}

// FixedPoint converts the ticker price to a feed answer with the given
// number of decimals. Digits beyond that precision are truncated.
func (t *Ticker) FixedPoint(decimals uint8) (*big.Int, error) {
	if !t.Price.IsPositive() {
		return nil, fmt.Errorf("%w: %s %s", ErrInvalidPrice, t.Symbol, t.Price.String())
	}
	answer := t.Price.Shift(int32(decimals)).BigInt()
	if answer.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s %s below feed precision", ErrInvalidPrice, t.Symbol, t.Price.String())
	}
	return answer, nil
}

// Quote is the latest known price of one collateral asset, human readable.
type Quote struct {
	Symbol    string          `json:"symbol"`
	Feed      string          `json:"feed"`
	Price     decimal.Decimal `json:"price"`
	Decimals  uint8           `json:"decimals"`
	UpdatedAt time.Time       `json:"updated_at"`
}
