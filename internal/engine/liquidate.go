package engine

import (
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"stablecoin_go/internal/domain"
)

// Liquidate covers debtToCover of user's debt with the liquidator's DSC and
// pays the liquidator the equivalent amount of asset plus a 10% bonus.
// user must be below the minimum health factor, the liquidation must
// improve it, and the liquidator must stay solvent.
func (e *Engine) Liquidate(liquidator, asset, user common.Address, debtToCover *uint256.Int) (domain.LiquidationResult, error) {
	const op = "liquidate"
	var res domain.LiquidationResult

	_, err := e.run(domain.OpLiquidate, liquidator, func(tx *domain.LedgerTx, p *plan) error {
		if err := requirePositive(op, debtToCover); err != nil {
			return err
		}
		if !e.registry.IsSupported(asset) {
			return &domain.ValidationError{Op: op, Err: fmt.Errorf("%w: %s", domain.ErrUnsupportedAsset, asset.Hex())}
		}

		startHF, err := e.healthFactor(tx, user)
		if err != nil {
			return err
		}
		if !startHF.Lt(minHealthFactor) {
			return &domain.SolvencyError{Op: op, User: user, HealthFactor: startHF, Err: domain.ErrHealthFactorOk}
		}
		if tx.Debt(user).Lt(debtToCover) {
			return &domain.ValidationError{Op: op, Err: domain.ErrInsufficientDebt}
		}

		principal, err := e.TokenAmountFromUSD(asset, debtToCover)
		if err != nil {
			return err
		}
		bonus, err := mulDiv(principal, liquidationBonus, liquidationPrecision)
		if err != nil {
			return &domain.ValidationError{Op: op, Err: err}
		}
		seized, err := add(principal, bonus)
		if err != nil {
			return &domain.ValidationError{Op: op, Err: err}
		}
		if tx.Collateral(user, asset).Lt(seized) {
			return &domain.SolvencyError{Op: op, User: user, HealthFactor: startHF, Err: domain.ErrInsufficientCollateralForLiquidation}
		}

		if err := e.stageBurn(tx, p, op, user, liquidator, debtToCover); err != nil {
			return err
		}
		if err := e.stageRedeem(tx, p, op, user, liquidator, asset, seized); err != nil {
			return err
		}

		endHF, err := e.healthFactor(tx, user)
		if err != nil {
			return err
		}
		if !endHF.Gt(startHF) {
			return &domain.SolvencyError{Op: op, User: user, HealthFactor: endHF, Err: domain.ErrHealthFactorNotImproved}
		}
		if err := e.assertSolvent(op, tx, liquidator); err != nil {
			return err
		}

		res = domain.LiquidationResult{
			Liquidator:           liquidator,
			User:                 user,
			Asset:                asset,
			DebtCovered:          debtToCover.Clone(),
			CollateralSeized:     seized,
			Bonus:                bonus,
			StartingHealthFactor: startHF,
			EndingHealthFactor:   endHF,
		}
		return nil
	}, func(seq uint64) {
		res.Seq = seq
		e.metrics.RecordLiquidation()
		e.recordLiquidation(&res)
	})
	if err != nil {
		return domain.LiquidationResult{}, err
	}
	return res, nil
}

// recordLiquidation writes the history entry. The ledger is authoritative,
// so a failure here is logged and not returned.
func (e *Engine) recordLiquidation(res *domain.LiquidationResult) {
	if e.recorder == nil {
		return
	}
	rec := &domain.LiquidationRecord{
		ID:                   uuid.NewString(),
		Seq:                  res.Seq,
		Liquidator:           res.Liquidator.Hex(),
		User:                 res.User.Hex(),
		Asset:                res.Asset.Hex(),
		DebtCovered:          res.DebtCovered.Dec(),
		CollateralSeized:     res.CollateralSeized.Dec(),
		Bonus:                res.Bonus.Dec(),
		StartingHealthFactor: res.StartingHealthFactor.Dec(),
		EndingHealthFactor:   res.EndingHealthFactor.Dec(),
		CreatedAt:            e.now(),
	}
	if err := e.recorder.RecordLiquidation(rec); err != nil {
		e.metrics.RecordError()
		e.logger.Error("failed to record liquidation",
			slog.Uint64("seq", res.Seq), slog.String("id", rec.ID), slog.Any("error", err))
	}
}
