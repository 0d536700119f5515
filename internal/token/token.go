package token

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"stablecoin_go/internal/domain"
)

var (
	ErrNotOwner           = errors.New("caller is not the token owner")
	ErrBurnExceedsBalance = errors.New("burn amount exceeds balance")
	ErrMintToZeroAddress  = errors.New("mint to the zero address")
	ErrNonPositiveAmount  = errors.New("amount must be more than zero")
)

// Call describes one token operation as seen by a Hook.
type Call struct {
	Op     string // transfer, transferFrom, mint, burn
	Sender common.Address
	From   common.Address
	To     common.Address
	Amount *uint256.Int
}

// Hook runs before every token operation, without the token lock held, so
// it may call back into whoever invoked the token. Returning false makes
// the operation report failure; a non-nil error aborts it.
type Hook func(c Call) (bool, error)

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

// Token is an in-memory fungible token with balances and allowances.
type Token struct {
	mu         sync.Mutex
	symbol     string
	balances   map[common.Address]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
	supply     *uint256.Int
	hook       Hook
}

// New creates an empty token.
func New(symbol string) *Token {
	return &Token{
		symbol:     symbol,
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[allowanceKey]*uint256.Int),
		supply:     new(uint256.Int),
	}
}

// Symbol returns the token symbol.
func (t *Token) Symbol() string { return t.symbol }

// SetHook installs h; nil removes it.
func (t *Token) SetHook(h Hook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hook = h
}

func (t *Token) before(c Call) (bool, error) {
	t.mu.Lock()
	h := t.hook
	t.mu.Unlock()
	if h == nil {
		return true, nil
	}
	return h(c)
}

// Credit creates amount out of thin air for to (faucet).
func (t *Token) Credit(to common.Address, amount *uint256.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.credit(to, amount)
}

func (t *Token) credit(to common.Address, amount *uint256.Int) {
	bal := t.balanceOf(to)
	bal.Add(bal, amount)
	t.balances[to] = bal
	t.supply = new(uint256.Int).Add(t.supply, amount)
}

func (t *Token) balanceOf(account common.Address) *uint256.Int {
	if b, ok := t.balances[account]; ok {
		return b.Clone()
	}
	return new(uint256.Int)
}

// BalanceOf returns account's balance.
func (t *Token) BalanceOf(account common.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balanceOf(account)
}

// TotalSupply returns the sum of all balances.
func (t *Token) TotalSupply() *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.supply.Clone()
}

// Approve lets spender move up to amount of owner's balance.
func (t *Token) Approve(owner, spender common.Address, amount *uint256.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allowances[allowanceKey{owner, spender}] = amount.Clone()
}

// Allowance returns what spender may still move from owner.
func (t *Token) Allowance(owner, spender common.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a, ok := t.allowances[allowanceKey{owner, spender}]; ok {
		return a.Clone()
	}
	return new(uint256.Int)
}

func (t *Token) move(from, to common.Address, amount *uint256.Int) bool {
	bal := t.balanceOf(from)
	if bal.Lt(amount) {
		return false
	}
	t.balances[from] = bal.Sub(bal, amount)
	dst := t.balanceOf(to)
	t.balances[to] = dst.Add(dst, amount)
	return true
}

// Transfer moves amount from sender to to. It returns false on an
// insufficient balance.
func (t *Token) Transfer(sender, to common.Address, amount *uint256.Int) (bool, error) {
	if ok, err := t.before(Call{Op: "transfer", Sender: sender, From: sender, To: to, Amount: amount}); !ok || err != nil {
		return false, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.move(sender, to, amount), nil
}

// TransferFrom moves amount from from to to using spender's allowance. It
// returns false when the allowance or balance is short.
func (t *Token) TransferFrom(spender, from, to common.Address, amount *uint256.Int) (bool, error) {
	if ok, err := t.before(Call{Op: "transferFrom", Sender: spender, From: from, To: to, Amount: amount}); !ok || err != nil {
		return false, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	key := allowanceKey{from, spender}
	allowance, ok := t.allowances[key]
	if !ok || allowance.Lt(amount) {
		return false, nil
	}
	if !t.move(from, to, amount) {
		return false, nil
	}
	t.allowances[key] = new(uint256.Int).Sub(allowance, amount)
	return true, nil
}

// Directory resolves collateral tokens by asset address.
type Directory struct {
	tokens map[common.Address]domain.CollateralToken
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{tokens: make(map[common.Address]domain.CollateralToken)}
}

// Register binds asset to token.
func (d *Directory) Register(asset common.Address, token domain.CollateralToken) {
	d.tokens[asset] = token
}

// Token implements domain.TokenDirectory.
func (d *Directory) Token(asset common.Address) (domain.CollateralToken, bool) {
	t, ok := d.tokens[asset]
	return t, ok
}
