package engine

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"stablecoin_go/internal/domain"
)

// positions is the read side shared by the committed ledger and a staged tx.
type positions interface {
	Collateral(user, asset common.Address) *uint256.Int
	Debt(user common.Address) *uint256.Int
}

func (e *Engine) collateralValue(view positions, user common.Address) (*uint256.Int, error) {
	total := new(uint256.Int)
	for _, asset := range e.registry.tokens {
		amount := view.Collateral(user, asset)
		if amount.IsZero() {
			continue
		}
		v, err := e.USDValue(asset, amount)
		if err != nil {
			return nil, err
		}
		if total, err = add(total, v); err != nil {
			return nil, err
		}
	}
	return total, nil
}

func (e *Engine) accountInformation(view positions, user common.Address) (domain.AccountInformation, error) {
	value, err := e.collateralValue(view, user)
	if err != nil {
		return domain.AccountInformation{}, err
	}
	return domain.AccountInformation{TotalDSCMinted: view.Debt(user), CollateralValueInUSD: value}, nil
}

func (e *Engine) healthFactor(view positions, user common.Address) (*uint256.Int, error) {
	debt := view.Debt(user)
	if debt.IsZero() {
		// Zero debt never needs pricing.
		return MaxHealthFactor(), nil
	}
	value, err := e.collateralValue(view, user)
	if err != nil {
		return nil, err
	}
	return HealthFactorFor(value, debt)
}

// assertSolvent fails with ErrBreaksHealthFactor when the user's health
// factor in view is below the minimum.
func (e *Engine) assertSolvent(op string, view positions, user common.Address) error {
	hf, err := e.healthFactor(view, user)
	if err != nil {
		return err
	}
	if hf.Lt(minHealthFactor) {
		return &domain.SolvencyError{Op: op, User: user, HealthFactor: hf, Err: domain.ErrBreaksHealthFactor}
	}
	return nil
}

// AccountInformation returns the user's minted debt and collateral value.
func (e *Engine) AccountInformation(user common.Address) (domain.AccountInformation, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.accountInformation(e.ledger, user)
}

// AccountCollateralValue returns the USD value of all of the user's collateral.
func (e *Engine) AccountCollateralValue(user common.Address) (*uint256.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.collateralValue(e.ledger, user)
}

// HealthFactor returns the user's current health factor; MaxHealthFactor
// when the user has no debt.
func (e *Engine) HealthFactor(user common.Address) (*uint256.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.healthFactor(e.ledger, user)
}
