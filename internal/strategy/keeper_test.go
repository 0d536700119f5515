package strategy_test

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"stablecoin_go/internal/strategy"
)

var (
	liquidator = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob        = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	weth       = common.HexToAddress("0x0000000000000000000000000000000000000e74")
	wbtc       = common.HexToAddress("0x0000000000000000000000000000000000000b7c")
)

func e18(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

// fakeView prices every asset at a fixed USD value per whole token.
type fakeView struct {
	users    []common.Address
	debt     map[common.Address]*uint256.Int
	hf       map[common.Address]*uint256.Int
	balances map[common.Address]map[common.Address]*uint256.Int
	price    map[common.Address]uint64
	hfErr    error
}

func (v *fakeView) Users() []common.Address { return v.users }

func (v *fakeView) DebtOf(user common.Address) *uint256.Int {
	if d, ok := v.debt[user]; ok {
		return d.Clone()
	}
	return new(uint256.Int)
}

func (v *fakeView) HealthFactor(user common.Address) (*uint256.Int, error) {
	if v.hfErr != nil {
		return nil, v.hfErr
	}
	return v.hf[user].Clone(), nil
}

func (v *fakeView) CollateralTokens() []common.Address { return []common.Address{weth, wbtc} }

func (v *fakeView) CollateralBalance(user, asset common.Address) *uint256.Int {
	if b, ok := v.balances[user][asset]; ok {
		return b.Clone()
	}
	return new(uint256.Int)
}

func (v *fakeView) USDValue(asset common.Address, amount *uint256.Int) (*uint256.Int, error) {
	return new(uint256.Int).Mul(amount, uint256.NewInt(v.price[asset])), nil
}

func newKeeper(limit *uint256.Int) *strategy.LiquidationKeeper {
	return strategy.NewLiquidationKeeper(strategy.KeeperConfig{
		Liquidator:      liquidator,
		MinHealthFactor: e18(1),
		MaxDebtToCover:  limit,
	})
}

func TestKeeper_LiquidatesUnderwaterAccount(t *testing.T) {
	// alice: 10 ETH at $18 = $180 backing 100 DSC.
	view := &fakeView{
		users: []common.Address{alice, bob},
		debt:  map[common.Address]*uint256.Int{alice: e18(100), bob: e18(10)},
		hf:    map[common.Address]*uint256.Int{alice: uint256.NewInt(900_000_000_000_000_000), bob: e18(5)},
		balances: map[common.Address]map[common.Address]*uint256.Int{
			alice: {weth: e18(10)},
			bob:   {weth: e18(10)},
		},
		price: map[common.Address]uint64{weth: 18, wbtc: 30000},
	}

	actions := newKeeper(nil).OnPriceUpdate(view)
	if len(actions) != 1 {
		t.Fatalf("Expected 1 action, got %d", len(actions))
	}
	a := actions[0]
	if a.Type != strategy.ActionLiquidate || a.Type.String() != "LIQUIDATE" {
		t.Errorf("Expected LIQUIDATE, got %s", a.Type)
	}
	if a.User != alice || a.Asset != weth || a.Liquidator != liquidator {
		t.Errorf("Unexpected action target: %+v", a)
	}
	// Full debt fits: 100 * 1.1 = 110 < 180.
	if !a.DebtToCover.Eq(e18(100)) {
		t.Errorf("Expected cover 100e18, got %s", a.DebtToCover.Dec())
	}
}

func TestKeeper_CapsCoverToPosition(t *testing.T) {
	// $110 of WBTC backing 1000 DSC: the seizure must fit $110.
	view := &fakeView{
		users: []common.Address{alice},
		debt:  map[common.Address]*uint256.Int{alice: e18(1000)},
		hf:    map[common.Address]*uint256.Int{alice: uint256.NewInt(1)},
		balances: map[common.Address]map[common.Address]*uint256.Int{
			alice: {weth: e18(1), wbtc: e18(11)},
		},
		price: map[common.Address]uint64{weth: 5, wbtc: 10},
	}

	actions := newKeeper(nil).OnPriceUpdate(view)
	if len(actions) != 1 {
		t.Fatalf("Expected 1 action, got %d", len(actions))
	}
	if actions[0].Asset != wbtc {
		t.Errorf("Expected most valuable asset %s, got %s", wbtc.Hex(), actions[0].Asset.Hex())
	}
	want := new(uint256.Int).SubUint64(e18(100), 1)
	if !actions[0].DebtToCover.Eq(want) {
		t.Errorf("Expected cover %s, got %s", want.Dec(), actions[0].DebtToCover.Dec())
	}
}

func TestKeeper_RespectsMaxDebtToCover(t *testing.T) {
	view := &fakeView{
		users:    []common.Address{alice},
		debt:     map[common.Address]*uint256.Int{alice: e18(100)},
		hf:       map[common.Address]*uint256.Int{alice: uint256.NewInt(1)},
		balances: map[common.Address]map[common.Address]*uint256.Int{alice: {weth: e18(10)}},
		price:    map[common.Address]uint64{weth: 1000},
	}

	actions := newKeeper(e18(25)).OnPriceUpdate(view)
	if len(actions) != 1 || !actions[0].DebtToCover.Eq(e18(25)) {
		t.Fatalf("Expected one action covering 25e18, got %+v", actions)
	}
}

func TestKeeper_SkipsHealthyAndSelf(t *testing.T) {
	view := &fakeView{
		users: []common.Address{liquidator, alice},
		debt:  map[common.Address]*uint256.Int{liquidator: e18(1), alice: e18(1)},
		hf:    map[common.Address]*uint256.Int{liquidator: uint256.NewInt(1), alice: e18(1)},
		balances: map[common.Address]map[common.Address]*uint256.Int{
			liquidator: {weth: e18(1)},
			alice:      {weth: e18(1)},
		},
		price: map[common.Address]uint64{weth: 1},
	}

	if actions := newKeeper(nil).OnPriceUpdate(view); len(actions) != 0 {
		t.Errorf("Expected no actions, got %v", actions)
	}
}

func TestKeeper_SkipsUnpricedAccounts(t *testing.T) {
	view := &fakeView{
		users: []common.Address{alice},
		debt:  map[common.Address]*uint256.Int{alice: e18(1)},
		hfErr: errors.New("stale"),
	}

	if actions := newKeeper(nil).OnPriceUpdate(view); len(actions) != 0 {
		t.Errorf("Expected no actions, got %v", actions)
	}
}
