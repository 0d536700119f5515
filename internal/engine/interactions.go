package engine

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"stablecoin_go/internal/domain"
)

type step struct {
	name string
	run  func() error
	undo func() error
}

// plan holds the external token calls of one operation. Compensable steps
// (pulls into custody, burns of custody balance) run first; at most one
// final step (a push out of custody or a mint) runs last. If any step fails
// the completed ones are undone in reverse order.
type plan struct {
	steps []step
	final *step
	// failedUndos counts compensations that themselves failed.
	failedUndos int
}

func (p *plan) then(s step) {
	if s.undo == nil {
		panic("PLAN_STEP_WITHOUT_COMPENSATION: " + s.name)
	}
	p.steps = append(p.steps, s)
}

func (p *plan) finally(s step) {
	if p.final != nil {
		panic("PLAN_SECOND_FINAL_STEP: " + s.name)
	}
	p.final = &s
}

// execute returns the rolled-back count alongside the error.
func (p *plan) execute() (int, error) {
	for i, s := range p.steps {
		if err := s.run(); err != nil {
			return i, p.rollback(i, err)
		}
	}
	if p.final != nil {
		if err := p.final.run(); err != nil {
			return len(p.steps), p.rollback(len(p.steps), err)
		}
	}
	return 0, nil
}

func (p *plan) rollback(done int, cause error) error {
	errs := []error{cause}
	for i := done - 1; i >= 0; i-- {
		if err := p.steps[i].undo(); err != nil {
			p.failedUndos++
			errs = append(errs, fmt.Errorf("compensate %s: %w", p.steps[i].name, err))
		}
	}
	if len(errs) == 1 {
		return cause
	}
	return errors.Join(errs...)
}

func tokenCall(op string, token common.Address, ok bool, err error, refusal error) error {
	if err != nil {
		return &domain.TransferError{Op: op, Token: token, Err: fmt.Errorf("%w: %w", refusal, err)}
	}
	if !ok {
		return &domain.TransferError{Op: op, Token: token, Err: refusal}
	}
	return nil
}

// pull moves amount from owner into engine custody.
func (e *Engine) pull(p *plan, token domain.CollateralToken, id, owner common.Address, amount *uint256.Int) {
	amount = amount.Clone()
	p.then(step{
		name: "transferFrom",
		run: func() error {
			ok, err := token.TransferFrom(e.address, owner, e.address, amount)
			return tokenCall("transferFrom", id, ok, err, domain.ErrTransferFailed)
		},
		undo: func() error {
			ok, err := token.Transfer(e.address, owner, amount)
			return tokenCall("transfer", id, ok, err, domain.ErrTransferFailed)
		},
	})
}

// push moves amount out of engine custody. It cannot be compensated.
func (e *Engine) push(p *plan, token domain.CollateralToken, id, to common.Address, amount *uint256.Int) {
	amount = amount.Clone()
	p.finally(step{
		name: "transfer",
		run: func() error {
			ok, err := token.Transfer(e.address, to, amount)
			return tokenCall("transfer", id, ok, err, domain.ErrTransferFailed)
		},
	})
}

// burn destroys custody-held DSC. Undone by re-minting into custody.
func (e *Engine) burn(p *plan, amount *uint256.Int) {
	amount = amount.Clone()
	p.then(step{
		name: "burn",
		run: func() error {
			return tokenCall("burn", e.dscAddress, true, e.dsc.Burn(e.address, amount), domain.ErrBurnFailed)
		},
		undo: func() error {
			ok, err := e.dsc.Mint(e.address, e.address, amount)
			return tokenCall("mint", e.dscAddress, ok, err, domain.ErrMintFailed)
		},
	})
}

// mint issues DSC to the caller. It cannot be compensated.
func (e *Engine) mint(p *plan, to common.Address, amount *uint256.Int) {
	amount = amount.Clone()
	p.finally(step{
		name: "mint",
		run: func() error {
			ok, err := e.dsc.Mint(e.address, to, amount)
			return tokenCall("mint", e.dscAddress, ok, err, domain.ErrMintFailed)
		},
	})
}
