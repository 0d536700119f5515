package token

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Pegged is the stablecoin: a Token whose supply only its owner (the
// engine) may change.
type Pegged struct {
	*Token
	ownerMu sync.RWMutex
	owner   common.Address
}

// NewPegged creates a pegged token owned by owner.
func NewPegged(symbol string, owner common.Address) *Pegged {
	return &Pegged{Token: New(symbol), owner: owner}
}

// Owner returns the account allowed to mint and burn.
func (p *Pegged) Owner() common.Address {
	p.ownerMu.RLock()
	defer p.ownerMu.RUnlock()
	return p.owner
}

// TransferOwnership hands mint and burn rights to next.
func (p *Pegged) TransferOwnership(sender, next common.Address) error {
	p.ownerMu.Lock()
	defer p.ownerMu.Unlock()
	if sender != p.owner {
		return ErrNotOwner
	}
	p.owner = next
	return nil
}

// Mint creates amount for to.
func (p *Pegged) Mint(sender, to common.Address, amount *uint256.Int) (bool, error) {
	if sender != p.Owner() {
		return false, ErrNotOwner
	}
	if to == (common.Address{}) {
		return false, ErrMintToZeroAddress
	}
	if amount == nil || amount.IsZero() {
		return false, ErrNonPositiveAmount
	}
	if ok, err := p.before(Call{Op: "mint", Sender: sender, To: to, Amount: amount}); !ok || err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.credit(to, amount)
	return true, nil
}

// Burn destroys amount of the sender's own balance.
func (p *Pegged) Burn(sender common.Address, amount *uint256.Int) error {
	if sender != p.Owner() {
		return ErrNotOwner
	}
	if amount == nil || amount.IsZero() {
		return ErrNonPositiveAmount
	}
	ok, err := p.before(Call{Op: "burn", Sender: sender, From: sender, Amount: amount})
	if err != nil {
		return err
	}
	if !ok {
		return ErrBurnExceedsBalance
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	bal := p.balanceOf(sender)
	if bal.Lt(amount) {
		return ErrBurnExceedsBalance
	}
	p.balances[sender] = bal.Sub(bal, amount)
	p.supply = new(uint256.Int).Sub(p.supply, amount)
	return nil
}
