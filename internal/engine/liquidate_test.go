package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"stablecoin_go/internal/domain"
)

// liquidatable opens alice at 10 ETH / 100 DSC and bob, the liquidator, at
// 20 ETH / 100 DSC, then drops ETH to price.
func liquidatable(t *testing.T, price string, opts ...Option) *fixture {
	t.Helper()
	f := newFixture(t, opts...)
	f.open(t, alice, e18(10), e18(100))
	f.open(t, bob, e18(20), e18(100))
	f.setPrice(t, "WETH", price)
	return f
}

// Liquidation improves the user's health factor and keeps the liquidator solvent.
func TestLiquidate(t *testing.T) {
	recorder := &memRecorder{}
	f := liquidatable(t, "18", WithLiquidationRecorder(recorder))

	startHF, err := f.engine.HealthFactor(alice)
	require.NoError(t, err)
	require.Equal(t, dec("900000000000000000"), startHF)

	res, err := f.engine.Liquidate(bob, wethAddr, alice, e18(100))
	require.NoError(t, err)

	// 100 / 18 ETH plus the 10% bonus.
	principal := new(uint256.Int).Sub(res.CollateralSeized, res.Bonus)
	require.Equal(t, dec("5555555555555555555"), principal)
	require.Equal(t, dec("555555555555555555"), res.Bonus)
	require.Equal(t, dec("6111111111111111110"), res.CollateralSeized)
	require.Equal(t, e18(100), res.DebtCovered)
	require.Equal(t, startHF, res.StartingHealthFactor)
	require.Equal(t, MaxHealthFactor(), res.EndingHealthFactor)
	require.Equal(t, uint64(3), res.Seq)

	require.True(t, f.engine.DebtOf(alice).IsZero())
	require.Equal(t, dec("3888888888888888890"), f.engine.CollateralBalance(alice, wethAddr))
	require.Equal(t, dec("6111111111111111110"), f.weth.BalanceOf(bob))
	require.True(t, f.dsc.BalanceOf(bob).IsZero())
	require.Equal(t, e18(100), f.dsc.TotalSupply())
	require.Equal(t, e18(100), f.engine.DebtOf(bob))

	endHF, err := f.engine.HealthFactor(alice)
	require.NoError(t, err)
	require.True(t, endHF.Gt(startHF))
	bobHF, err := f.engine.HealthFactor(bob)
	require.NoError(t, err)
	require.False(t, bobHF.Lt(MinHealthFactor()))

	require.Equal(t, uint64(1), f.metrics.Snapshot().Liquidations)
	require.Len(t, recorder.records, 1)
	rec := recorder.records[0]
	_, err = uuid.Parse(rec.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(3), rec.Seq)
	require.Equal(t, alice.Hex(), rec.User)
	require.Equal(t, bob.Hex(), rec.Liquidator)
	require.Equal(t, "6111111111111111110", rec.CollateralSeized)
}

// Liquidation insufficiency.
func TestLiquidate_InsufficientCollateral(t *testing.T) {
	f := liquidatable(t, "10")

	// 100 DSC at $10 needs 11 ETH; alice has 10.
	_, err := f.engine.Liquidate(bob, wethAddr, alice, e18(100))
	var se *domain.SolvencyError
	require.ErrorAs(t, err, &se)
	require.ErrorIs(t, err, domain.ErrInsufficientCollateralForLiquidation)

	require.Equal(t, e18(10), f.engine.CollateralBalance(alice, wethAddr))
	require.Equal(t, e18(100), f.engine.DebtOf(alice))
	require.Equal(t, e18(100), f.dsc.BalanceOf(bob))
	require.Zero(t, f.metrics.Snapshot().Liquidations)
}

func TestLiquidate_NotImproved(t *testing.T) {
	f := newFixture(t)
	f.open(t, alice, e18(10), e18(1000))
	f.open(t, bob, e18(20), e18(100))
	f.setPrice(t, "WETH", "105")

	// Seizing 110% of the covered value from a position this far underwater
	// lowers its health factor.
	_, err := f.engine.Liquidate(bob, wethAddr, alice, e18(100))
	require.ErrorIs(t, err, domain.ErrHealthFactorNotImproved)
	require.Equal(t, e18(1000), f.engine.DebtOf(alice))
	require.Equal(t, e18(10), f.engine.CollateralBalance(alice, wethAddr))
}

func TestLiquidate_HealthyUser(t *testing.T) {
	f := liquidatable(t, "2000")

	_, err := f.engine.Liquidate(bob, wethAddr, alice, e18(10))
	var se *domain.SolvencyError
	require.ErrorAs(t, err, &se)
	require.ErrorIs(t, err, domain.ErrHealthFactorOk)
	require.Equal(t, e18(100), se.HealthFactor)
}

func TestLiquidate_CoverExceedsDebt(t *testing.T) {
	f := liquidatable(t, "18")

	_, err := f.engine.Liquidate(bob, wethAddr, alice, e18(101))
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	require.ErrorIs(t, err, domain.ErrInsufficientDebt)
}

func TestLiquidate_LiquidatorMustStaySolvent(t *testing.T) {
	f := newFixture(t)
	f.open(t, alice, e18(10), e18(100))
	f.open(t, bob, e18(10), e18(100))
	f.setPrice(t, "WETH", "18")

	// Both are at 0.9; paying alice's debt does not fix bob.
	_, err := f.engine.Liquidate(bob, wethAddr, alice, e18(50))
	var se *domain.SolvencyError
	require.ErrorAs(t, err, &se)
	require.ErrorIs(t, err, domain.ErrBreaksHealthFactor)
	require.Equal(t, bob, se.User)
	require.Equal(t, e18(100), f.engine.DebtOf(alice))
}

func TestLiquidate_PartialCover(t *testing.T) {
	f := liquidatable(t, "18")

	res, err := f.engine.Liquidate(bob, wethAddr, alice, e18(50))
	require.NoError(t, err)
	require.Equal(t, e18(50), f.engine.DebtOf(alice))
	require.True(t, res.EndingHealthFactor.Gt(res.StartingHealthFactor))
	require.True(t, res.EndingHealthFactor.Lt(MaxHealthFactor()))
	require.Equal(t, e18(50), f.dsc.BalanceOf(bob))
}

func TestLiquidate_UnsupportedAsset(t *testing.T) {
	f := liquidatable(t, "18")

	_, err := f.engine.Liquidate(bob, dscAddr, alice, e18(1))
	require.ErrorIs(t, err, domain.ErrUnsupportedAsset)
}

func TestLiquidate_LiquidatorWithoutDSC(t *testing.T) {
	f := newFixture(t)
	f.open(t, alice, e18(10), e18(100))
	f.fund(bob, e18(0))
	f.setPrice(t, "WETH", "18")

	_, err := f.engine.Liquidate(bob, wethAddr, alice, e18(100))
	require.ErrorIs(t, err, domain.ErrTransferFailed)
	require.Equal(t, e18(100), f.engine.DebtOf(alice))
	require.Equal(t, e18(10), f.weth.BalanceOf(engineAddr))
}
