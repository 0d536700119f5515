package engine

import (
	"time"

	"github.com/holiman/uint256"

	"stablecoin_go/internal/domain"
)

const (
	// PrecisionDecimals is the fixed-point scale of every USD value.
	PrecisionDecimals = 18
	// DefaultFeedDecimals is what Chainlink-style USD feeds report.
	DefaultFeedDecimals = 8
	// MaxFeedDecimals bounds the configured feed precision.
	MaxFeedDecimals = 36
	// MaxClockSkew is how far ahead of the local clock a reading may be.
	MaxClockSkew = 5 * time.Second
)

// Policy constants. Values are fixed; they are not governance parameters.
var (
	precision            = uint256.NewInt(1_000_000_000_000_000_000)
	liquidationThreshold = uint256.NewInt(50) // 200% overcollateralized
	liquidationPrecision = uint256.NewInt(100)
	liquidationBonus     = uint256.NewInt(10) // 10% bonus
	minHealthFactor      = uint256.NewInt(1_000_000_000_000_000_000)
	maxHealthFactor      = new(uint256.Int).SetAllOne()
)

// Precision returns 1e18.
func Precision() *uint256.Int { return precision.Clone() }

// MinHealthFactor returns the solvency floor, 1e18.
func MinHealthFactor() *uint256.Int { return minHealthFactor.Clone() }

// MaxHealthFactor is reported for accounts without debt.
func MaxHealthFactor() *uint256.Int { return maxHealthFactor.Clone() }

// LiquidationThreshold returns the threshold percentage (50).
func LiquidationThreshold() *uint256.Int { return liquidationThreshold.Clone() }

// LiquidationBonus returns the liquidation bonus percentage (10).
func LiquidationBonus() *uint256.Int { return liquidationBonus.Clone() }

// pow10 returns 10^n.
func pow10(n uint8) *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(n)))
}

// mulDiv computes x*y/d with a 512-bit intermediate.
func mulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, domain.ErrArithmeticOverflow
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, domain.ErrArithmeticOverflow
	}
	return z, nil
}

func add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, domain.ErrArithmeticOverflow
	}
	return z, nil
}

// HealthFactorFor computes collateral*THRESHOLD/PRECISION*1e18/debt.
// An account without debt is maximally solvent.
func HealthFactorFor(collateralUSD, debt *uint256.Int) (*uint256.Int, error) {
	if debt.IsZero() {
		return MaxHealthFactor(), nil
	}
	adjusted, err := mulDiv(collateralUSD, liquidationThreshold, liquidationPrecision)
	if err != nil {
		return nil, err
	}
	return mulDiv(adjusted, precision, debt)
}
