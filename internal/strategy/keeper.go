package strategy

import (
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	bonusNumerator   = uint256.NewInt(100)
	bonusDenominator = uint256.NewInt(110) // principal plus 10% bonus
)

// KeeperConfig configures the liquidation keeper.
type KeeperConfig struct {
	Liquidator      common.Address
	MinHealthFactor *uint256.Int // accounts below this are liquidatable
	MaxDebtToCover  *uint256.Int // per action; nil or zero means uncapped
}

// LiquidationKeeper proposes a liquidation for every account whose health
// factor fell below the minimum. It is stateless and deterministic: users
// are visited in the order the view returns them.
type LiquidationKeeper struct {
	cfg    KeeperConfig
	logger *slog.Logger
}

// NewLiquidationKeeper creates a new keeper.
func NewLiquidationKeeper(cfg KeeperConfig) *LiquidationKeeper {
	if cfg.MinHealthFactor == nil {
		panic("LiquidationKeeper: MinHealthFactor is required")
	}
	return &LiquidationKeeper{cfg: cfg, logger: slog.Default().With("module", "keeper")}
}

// OnPriceUpdate scans all accounts.
func (k *LiquidationKeeper) OnPriceUpdate(view PositionView) []Action {
	var actions []Action
	for _, user := range view.Users() {
		if user == k.cfg.Liquidator {
			continue
		}
		debt := view.DebtOf(user)
		if debt.IsZero() {
			continue
		}
		hf, err := view.HealthFactor(user)
		if err != nil {
			k.logger.Warn("health factor unavailable", slog.String("user", user.Hex()), slog.Any("error", err))
			continue
		}
		if !hf.Lt(k.cfg.MinHealthFactor) {
			continue
		}
		if action, ok := k.plan(view, user, debt); ok {
			actions = append(actions, action)
		}
	}
	return actions
}

// plan picks the user's most valuable collateral and the largest cover
// whose seizure (cover plus bonus) still fits that position.
func (k *LiquidationKeeper) plan(view PositionView, user common.Address, debt *uint256.Int) (Action, bool) {
	var (
		bestAsset common.Address
		bestValue *uint256.Int
	)
	for _, asset := range view.CollateralTokens() {
		amount := view.CollateralBalance(user, asset)
		if amount.IsZero() {
			continue
		}
		value, err := view.USDValue(asset, amount)
		if err != nil {
			continue
		}
		if bestValue == nil || value.Gt(bestValue) {
			bestAsset, bestValue = asset, value
		}
	}
	if bestValue == nil {
		return Action{}, false
	}

	// One unit below the exact bound absorbs rounding in the engine's
	// USD to token conversion.
	cover, overflow := new(uint256.Int).MulDivOverflow(bestValue, bonusNumerator, bonusDenominator)
	if overflow || cover.IsZero() {
		return Action{}, false
	}
	cover.SubUint64(cover, 1)

	if debt.Lt(cover) {
		cover = debt.Clone()
	}
	if limit := k.cfg.MaxDebtToCover; limit != nil && !limit.IsZero() && limit.Lt(cover) {
		cover = limit.Clone()
	}
	if cover.IsZero() {
		return Action{}, false
	}

	return Action{
		Type:        ActionLiquidate,
		Liquidator:  k.cfg.Liquidator,
		User:        user,
		Asset:       bestAsset,
		DebtToCover: cover,
	}, true
}
