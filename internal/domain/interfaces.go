package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PriceReading is one answer from a price source. Answer is signed fixed
// point with Decimals decimals; a Decimals of zero means the source does not
// report its precision and the configured value is trusted.
type PriceReading struct {
	Answer    *big.Int
	Decimals  uint8
	UpdatedAt time.Time
	Round     uint64
}

// PriceSource returns the latest reading for a price feed.
type PriceSource interface {
	LatestPrice(feed common.Address) (PriceReading, error)
}

// CollateralToken is the fungible token surface the engine consumes. The
// first address of every call is the account performing it. A false return
// is a refusal and is treated exactly like an error.
type CollateralToken interface {
	Transfer(sender, to common.Address, amount *uint256.Int) (bool, error)
	TransferFrom(spender, from, to common.Address, amount *uint256.Int) (bool, error)
	BalanceOf(account common.Address) *uint256.Int
}

// PeggedToken is the synthetic asset. Mint and Burn are owner-gated.
type PeggedToken interface {
	CollateralToken
	Mint(sender, to common.Address, amount *uint256.Int) (bool, error)
	Burn(sender common.Address, amount *uint256.Int) error
}

// TokenDirectory resolves a collateral asset identifier to its token.
type TokenDirectory interface {
	Token(asset common.Address) (CollateralToken, bool)
}

// Journal receives every committed operation, in sequence order.
type Journal interface {
	Append(rec *JournalRecord) error
}

// LiquidationRecorder is optionally implemented by a Journal that also keeps
// liquidation history.
type LiquidationRecorder interface {
	RecordLiquidation(rec *LiquidationRecord) error
}
