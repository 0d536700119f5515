package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// OpKind names a public engine entry point.
type OpKind string

const (
	OpDepositCollateral        OpKind = "DEPOSIT_COLLATERAL"
	OpMintDSC                  OpKind = "MINT_DSC"
	OpDepositCollateralAndMint OpKind = "DEPOSIT_COLLATERAL_AND_MINT_DSC"
	OpRedeemCollateral         OpKind = "REDEEM_COLLATERAL"
	OpBurnDSC                  OpKind = "BURN_DSC"
	OpRedeemCollateralForDSC   OpKind = "REDEEM_COLLATERAL_FOR_DSC"
	OpLiquidate                OpKind = "LIQUIDATE"
)

// IsMutating reports whether the kind is a known entry point.
func (k OpKind) IsMutating() bool {
	switch k {
	case OpDepositCollateral, OpMintDSC, OpDepositCollateralAndMint,
		OpRedeemCollateral, OpBurnDSC, OpRedeemCollateralForDSC, OpLiquidate:
		return true
	}
	return false
}

// AccountInformation is the (debt, collateral value) pair of one user.
type AccountInformation struct {
	TotalDSCMinted       *uint256.Int
	CollateralValueInUSD *uint256.Int
}

// LiquidationResult describes a completed liquidation.
type LiquidationResult struct {
	Seq                  uint64
	Liquidator           common.Address
	User                 common.Address
	Asset                common.Address
	DebtCovered          *uint256.Int
	CollateralSeized     *uint256.Int // principal plus bonus
	Bonus                *uint256.Int
	StartingHealthFactor *uint256.Int
	EndingHealthFactor   *uint256.Int
}
