package domain

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PositionKey identifies one collateral position.
type PositionKey struct {
	User  common.Address
	Asset common.Address
}

// DeltaKind tells which side of the ledger a Delta touched.
type DeltaKind string

const (
	DeltaCollateral DeltaKind = "COLLATERAL"
	DeltaDebt       DeltaKind = "DEBT"
)

// Delta is one signed ledger movement. Amount is a decimal string so the
// journal stays readable.
type Delta struct {
	Kind   DeltaKind `json:"kind"`
	User   string    `json:"user"`
	Asset  string    `json:"asset,omitempty"`
	Amount string    `json:"amount"`
	Credit bool      `json:"credit"`
}

// Ledger holds the committed collateral and debt positions.
// It is not safe for concurrent use; the engine guards it.
type Ledger struct {
	collateral map[PositionKey]*uint256.Int
	debt       map[common.Address]*uint256.Int
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		collateral: make(map[PositionKey]*uint256.Int),
		debt:       make(map[common.Address]*uint256.Int),
	}
}

// Collateral returns a copy of the deposited amount, zero if absent.
func (l *Ledger) Collateral(user, asset common.Address) *uint256.Int {
	if v, ok := l.collateral[PositionKey{User: user, Asset: asset}]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

// Debt returns a copy of the minted debt, zero if absent.
func (l *Ledger) Debt(user common.Address) *uint256.Int {
	if v, ok := l.debt[user]; ok {
		return v.Clone()
	}
	return new(uint256.Int)
}

// Users returns every account with a nonzero position, sorted by address.
func (l *Ledger) Users() []common.Address {
	seen := make(map[common.Address]struct{}, len(l.debt))
	for k := range l.collateral {
		seen[k.User] = struct{}{}
	}
	for u := range l.debt {
		seen[u] = struct{}{}
	}
	users := make([]common.Address, 0, len(seen))
	for u := range seen {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		return bytes.Compare(users[i].Bytes(), users[j].Bytes()) < 0
	})
	return users
}

// Begin opens a staged transaction over the committed state.
func (l *Ledger) Begin() *LedgerTx {
	return &LedgerTx{
		base:       l,
		collateral: make(map[PositionKey]*uint256.Int),
		debt:       make(map[common.Address]*uint256.Int),
	}
}

// Commit applies a staged transaction. Zero balances are dropped.
func (l *Ledger) Commit(tx *LedgerTx) {
	if tx.base != l {
		panic("LEDGER_COMMIT_FOREIGN_TX")
	}
	for k, v := range tx.collateral {
		if v.IsZero() {
			delete(l.collateral, k)
			continue
		}
		l.collateral[k] = v
	}
	for u, v := range tx.debt {
		if v.IsZero() {
			delete(l.debt, u)
			continue
		}
		l.debt[u] = v
	}
	tx.base = nil
}

// Apply replays journaled deltas as one transaction.
func (l *Ledger) Apply(deltas []Delta) error {
	tx := l.Begin()
	for i, d := range deltas {
		amount, err := uint256.FromDecimal(d.Amount)
		if err != nil {
			return fmt.Errorf("delta %d: amount %q: %w", i, d.Amount, err)
		}
		if !common.IsHexAddress(d.User) {
			return fmt.Errorf("delta %d: bad user %q", i, d.User)
		}
		user := common.HexToAddress(d.User)
		switch d.Kind {
		case DeltaCollateral:
			if !common.IsHexAddress(d.Asset) {
				return fmt.Errorf("delta %d: bad asset %q", i, d.Asset)
			}
			asset := common.HexToAddress(d.Asset)
			if d.Credit {
				err = tx.CreditCollateral(user, asset, amount)
			} else {
				err = tx.DebitCollateral(user, asset, amount)
			}
		case DeltaDebt:
			if d.Credit {
				err = tx.CreditDebt(user, amount)
			} else {
				err = tx.DebitDebt(user, amount)
			}
		default:
			err = fmt.Errorf("unknown delta kind %q", d.Kind)
		}
		if err != nil {
			return fmt.Errorf("delta %d: %w", i, err)
		}
	}
	l.Commit(tx)
	return nil
}

// PositionSnapshot is a point-in-time copy of one account.
type PositionSnapshot struct {
	User       common.Address                  `json:"user"`
	Debt       *uint256.Int                    `json:"debt"`
	Collateral map[common.Address]*uint256.Int `json:"collateral"`
}

// Snapshot returns a copy of all positions (for state dump and storage).
func (l *Ledger) Snapshot() []PositionSnapshot {
	users := l.Users()
	out := make([]PositionSnapshot, 0, len(users))
	index := make(map[common.Address]int, len(users))
	for i, u := range users {
		index[u] = i
		out = append(out, PositionSnapshot{
			User:       u,
			Debt:       l.Debt(u),
			Collateral: make(map[common.Address]*uint256.Int),
		})
	}
	for k, v := range l.collateral {
		out[index[k.User]].Collateral[k.Asset] = v.Clone()
	}
	return out
}

// LedgerTx stages writes on top of a Ledger. Reads fall through to the
// committed state; nothing is visible to the base until Commit.
type LedgerTx struct {
	base       *Ledger
	collateral map[PositionKey]*uint256.Int
	debt       map[common.Address]*uint256.Int
	deltas     []Delta
}

// Collateral returns the staged collateral for a position.
func (tx *LedgerTx) Collateral(user, asset common.Address) *uint256.Int {
	if v, ok := tx.collateral[PositionKey{User: user, Asset: asset}]; ok {
		return v.Clone()
	}
	return tx.base.Collateral(user, asset)
}

// Debt returns the staged debt for a user.
func (tx *LedgerTx) Debt(user common.Address) *uint256.Int {
	if v, ok := tx.debt[user]; ok {
		return v.Clone()
	}
	return tx.base.Debt(user)
}

// CreditCollateral adds to a collateral position.
func (tx *LedgerTx) CreditCollateral(user, asset common.Address, amount *uint256.Int) error {
	next, overflow := new(uint256.Int).AddOverflow(tx.Collateral(user, asset), amount)
	if overflow {
		return ErrArithmeticOverflow
	}
	tx.collateral[PositionKey{User: user, Asset: asset}] = next
	tx.record(DeltaCollateral, user, asset, amount, true)
	return nil
}

// DebitCollateral removes from a collateral position. It never underflows.
func (tx *LedgerTx) DebitCollateral(user, asset common.Address, amount *uint256.Int) error {
	current := tx.Collateral(user, asset)
	if current.Lt(amount) {
		return ErrInsufficientCollateral
	}
	tx.collateral[PositionKey{User: user, Asset: asset}] = current.Sub(current, amount)
	tx.record(DeltaCollateral, user, asset, amount, false)
	return nil
}

// CreditDebt adds to a user's minted debt.
func (tx *LedgerTx) CreditDebt(user common.Address, amount *uint256.Int) error {
	next, overflow := new(uint256.Int).AddOverflow(tx.Debt(user), amount)
	if overflow {
		return ErrArithmeticOverflow
	}
	tx.debt[user] = next
	tx.record(DeltaDebt, user, common.Address{}, amount, true)
	return nil
}

// DebitDebt removes from a user's minted debt. It never underflows.
func (tx *LedgerTx) DebitDebt(user common.Address, amount *uint256.Int) error {
	current := tx.Debt(user)
	if current.Lt(amount) {
		return ErrInsufficientDebt
	}
	tx.debt[user] = current.Sub(current, amount)
	tx.record(DeltaDebt, user, common.Address{}, amount, false)
	return nil
}

// Deltas returns the movements staged so far, in order.
func (tx *LedgerTx) Deltas() []Delta {
	out := make([]Delta, len(tx.deltas))
	copy(out, tx.deltas)
	return out
}

func (tx *LedgerTx) record(kind DeltaKind, user, asset common.Address, amount *uint256.Int, credit bool) {
	d := Delta{Kind: kind, User: user.Hex(), Amount: amount.Dec(), Credit: credit}
	if kind == DeltaCollateral {
		d.Asset = asset.Hex()
	}
	tx.deltas = append(tx.deltas, d)
}
