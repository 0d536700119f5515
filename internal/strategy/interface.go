package strategy

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ActionType defines the kind of engine action a strategy proposes.
type ActionType int

const (
	ActionLiquidate ActionType = iota + 1
)

// String returns the string representation of ActionType
func (a ActionType) String() string {
	switch a {
	case ActionLiquidate:
		return "LIQUIDATE"
	default:
		return "UNKNOWN"
	}
}

// Action represents a decision made by the strategy
type Action struct {
	Type        ActionType
	Liquidator  common.Address
	User        common.Address
	Asset       common.Address
	DebtToCover *uint256.Int
}

// PositionView is the read-only engine surface a strategy inspects.
type PositionView interface {
	Users() []common.Address
	DebtOf(user common.Address) *uint256.Int
	HealthFactor(user common.Address) (*uint256.Int, error)
	CollateralTokens() []common.Address
	CollateralBalance(user, asset common.Address) *uint256.Int
	USDValue(asset common.Address, amount *uint256.Int) (*uint256.Int, error)
}

// Strategy is the interface that all keeper strategies must implement.
// It is called synchronously by the Sequencer after every price update.
type Strategy interface {
	// OnPriceUpdate returns the actions to execute against the new prices.
	OnPriceUpdate(view PositionView) []Action
}
