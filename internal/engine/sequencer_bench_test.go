package engine

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"stablecoin_go/internal/domain"
	"stablecoin_go/internal/event"
	"stablecoin_go/internal/strategy"
)

// BenchmarkEngine_DepositCollateral measures one full entry point:
// guard, staging, token call and commit.
func BenchmarkEngine_DepositCollateral(b *testing.B) {
	f := newFixture(b)
	f.fund(alice, e18(1_000_000_000))
	amount := e18(1)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if err := f.engine.DepositCollateral(alice, wethAddr, amount); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkEngine_HealthFactor measures the read path over two priced assets.
func BenchmarkEngine_HealthFactor(b *testing.B) {
	f := newFixture(b)
	f.open(b, alice, e18(10), e18(100))

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := f.engine.HealthFactor(alice); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSequencer_PriceUpdate measures price application plus a keeper
// scan with no liquidatable accounts.
func BenchmarkSequencer_PriceUpdate(b *testing.B) {
	f := newFixture(b)
	f.open(b, alice, e18(10), e18(100))
	keeper := strategy.NewLiquidationKeeper(strategy.KeeperConfig{
		Liquidator:      bob,
		MinHealthFactor: MinHealthFactor(),
	})
	seq := NewSequencer(1000, f.engine, f.prices, keeper)

	ev := event.AcquirePriceUpdateEvent()
	ev.Ts = f.clock.UnixMilli()
	ev.Feed = ethFeed
	ev.Price = decimal.NewFromInt(2000)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		seq.handlePriceUpdate(ev)
	}

	event.ReleasePriceUpdateEvent(ev)
}

// BenchmarkSequencer_FullPipeline measures end-to-end command processing.
// Note: This benchmark includes channel overhead.
func BenchmarkSequencer_FullPipeline(b *testing.B) {
	f := newFixture(b)
	f.fund(alice, e18(1_000_000_000))
	seq := NewSequencer(1000, f.engine, f.prices, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go seq.Run(ctx)
	defer func() {
		cancel()
		<-seq.done
	}()

	cmd := event.Command{Op: domain.OpDepositCollateral, Caller: alice, Asset: wethAddr, Amount: e18(1)}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		res, err := seq.Submit(ctx, cmd)
		if err != nil || res.Err != nil {
			b.Fatal(err, res.Err)
		}
	}
}
