package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"stablecoin_go/internal/domain"
	"stablecoin_go/internal/engine"
	"stablecoin_go/internal/event"
)

// SimulatedBorrower opens the demo position.
var SimulatedBorrower = common.HexToAddress("0x000000000000000000000000000000000000b0aa")

// SimulationReport summarizes one simulate run.
type SimulationReport struct {
	Symbol            string `json:"symbol"`
	Borrower          string `json:"borrower"`
	Liquidator        string `json:"liquidator"`
	DebtBefore        string `json:"debt_before"`
	HealthBefore      string `json:"health_factor_before"`
	CrashPrice        string `json:"crash_price"`
	HealthAfterCrash  string `json:"health_factor_after_crash"`
	DebtAfter         string `json:"debt_after"`
	CollateralAfter   string `json:"collateral_after"`
	LiquidatorReward  string `json:"liquidator_collateral"`
	CommittedSequence uint64 `json:"next_seq"`
}

// Simulate drives a borrower into liquidation through the running
// sequencer: both accounts deposit 10 and 20 units of the first collateral,
// mint at a 1.1 health factor, then the price drops 20% and the keeper
// liquidates. The keeper must be enabled and the first collateral must
// have a price.
func (b *Bootstrap) Simulate(ctx context.Context) (*SimulationReport, error) {
	if !b.Config.Keeper.Enabled {
		return nil, &domain.ConfigError{Field: "keeper.enabled", Err: errors.New("simulate needs the keeper")}
	}
	col := b.Config.Collateral[0]
	asset := col.AssetAddress()
	liquidator := common.HexToAddress(b.Config.Keeper.Liquidator)
	units := func(n uint64) *uint256.Int {
		return new(uint256.Int).Mul(uint256.NewInt(n), engine.Precision())
	}

	value, err := b.Engine.USDValue(asset, units(10))
	if err != nil {
		return nil, err
	}
	// Half the value is the solvency limit; stay 10% under it.
	debt := new(uint256.Int).Div(new(uint256.Int).Mul(value, uint256.NewInt(10)), uint256.NewInt(22))

	if err := b.Faucet(SimulatedBorrower, asset, units(10)); err != nil {
		return nil, err
	}
	if err := b.Faucet(liquidator, asset, units(20)); err != nil {
		return nil, err
	}
	for _, cmd := range []event.Command{
		{Op: domain.OpDepositCollateralAndMint, Caller: SimulatedBorrower, Asset: asset, Amount: units(10), DSCAmount: debt},
		{Op: domain.OpDepositCollateralAndMint, Caller: liquidator, Asset: asset, Amount: units(20), DSCAmount: debt},
	} {
		res, err := b.Sequencer.Submit(ctx, cmd)
		if err == nil {
			err = res.Err
		}
		if err != nil {
			return nil, fmt.Errorf("%s for %s: %w", cmd.Op, cmd.Caller.Hex(), err)
		}
	}

	report := &SimulationReport{
		Symbol:     col.Symbol,
		Borrower:   SimulatedBorrower.Hex(),
		Liquidator: liquidator.Hex(),
		DebtBefore: debt.Dec(),
	}
	hf, err := b.Engine.HealthFactor(SimulatedBorrower)
	if err != nil {
		return nil, err
	}
	report.HealthBefore = hf.Dec()

	quote, ok := b.quote(col.Symbol)
	if !ok {
		return nil, fmt.Errorf("no price for %s", col.Symbol)
	}
	crash := quote.Mul(decimal.NewFromFloat(0.8))
	report.CrashPrice = crash.String()

	ev := event.AcquirePriceUpdateEvent()
	ev.Ts = time.Now().UnixMilli()
	ev.Symbol = col.Symbol
	ev.Price = crash
	ev.Source = "SIMULATE"
	select {
	case b.Sequencer.Inbox() <- ev:
	case <-ctx.Done():
		event.ReleasePriceUpdateEvent(ev)
		return nil, ctx.Err()
	}

	// The keeper runs right after the price update is applied.
	if err := b.waitForRepayment(ctx, SimulatedBorrower, debt); err != nil {
		return nil, err
	}
	if hf, err := b.Engine.HealthFactor(SimulatedBorrower); err == nil {
		report.HealthAfterCrash = hf.Dec()
	}
	report.DebtAfter = b.Engine.DebtOf(SimulatedBorrower).Dec()
	report.CollateralAfter = b.Engine.CollateralBalance(SimulatedBorrower, asset).Dec()
	report.LiquidatorReward = b.Tokens[asset].BalanceOf(liquidator).Dec()
	report.CommittedSequence = b.Engine.NextSeq()

	slog.Info("Simulation finished",
		slog.String("debt_after", report.DebtAfter),
		slog.String("liquidator_collateral", report.LiquidatorReward),
	)
	return report, nil
}

func (b *Bootstrap) quote(symbol string) (decimal.Decimal, bool) {
	for _, q := range b.Prices.Snapshot() {
		if q.Symbol == symbol && q.Price.IsPositive() {
			return q.Price, true
		}
	}
	return decimal.Zero, false
}

func (b *Bootstrap) waitForRepayment(ctx context.Context, user common.Address, debt *uint256.Int) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if b.Engine.DebtOf(user).Lt(debt) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("keeper did not liquidate %s: %w", user.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
