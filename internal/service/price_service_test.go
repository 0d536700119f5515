package service

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"stablecoin_go/internal/domain"
	"stablecoin_go/internal/event"
)

var (
	ethFeed = common.HexToAddress("0x0000000000000000000000000000000000000f01")
	btcFeed = common.HexToAddress("0x0000000000000000000000000000000000000f02")
)

func newTestService() *PriceService {
	return NewPriceService([]FeedBinding{
		{Symbol: "WETH", Feed: ethFeed, Decimals: 8},
		{Symbol: "WBTC", Feed: btcFeed, Decimals: 8},
	})
}

func TestPriceService_ProcessTickers(t *testing.T) {
	svc := newTestService()
	ts := time.Unix(1_700_000_000, 0)

	applied := svc.ProcessTickers([]*domain.Ticker{
		{Symbol: "WETH", Price: decimal.NewFromInt(2000), Source: "WS", Ts: ts},
		{Symbol: "DOGE", Price: decimal.NewFromInt(1), Source: "WS", Ts: ts},
	})
	if applied != 1 {
		t.Errorf("Expected 1 applied ticker, got %d", applied)
	}

	r, err := svc.LatestPrice(ethFeed)
	if err != nil {
		t.Fatalf("LatestPrice failed: %v", err)
	}
	if r.Answer.String() != "200000000000" {
		t.Errorf("Expected 2000e8, got %s", r.Answer)
	}
	if r.Decimals != 8 || !r.UpdatedAt.Equal(ts) || r.Round != 1 {
		t.Errorf("Unexpected reading %+v", r)
	}
}

func TestPriceService_NoPriceYet(t *testing.T) {
	svc := newTestService()

	if _, err := svc.LatestPrice(btcFeed); !errors.Is(err, domain.ErrStalePrice) {
		t.Errorf("Expected ErrStalePrice, got %v", err)
	}
	if _, err := svc.LatestPrice(common.HexToAddress("0x99")); !errors.Is(err, domain.ErrInvalidPrice) {
		t.Errorf("Expected ErrInvalidPrice, got %v", err)
	}
}

func TestPriceService_RejectsNonPositive(t *testing.T) {
	svc := newTestService()

	if err := svc.SetPrice("WETH", decimal.Zero, time.Now()); !errors.Is(err, domain.ErrInvalidPrice) {
		t.Errorf("Expected ErrInvalidPrice, got %v", err)
	}
	if err := svc.SetPrice("NOPE", decimal.NewFromInt(1), time.Now()); err == nil {
		t.Error("Expected unbound symbol to fail")
	}
}

func TestPriceService_ApplyPriceUsesClock(t *testing.T) {
	svc := newTestService()
	fixed := time.Unix(42, 0)
	svc.SetClock(func() time.Time { return fixed })

	ev := &event.PriceUpdateEvent{Feed: btcFeed, Price: decimal.NewFromInt(30000), Source: "REST"}
	if err := svc.ApplyPrice(ev); err != nil {
		t.Fatalf("ApplyPrice failed: %v", err)
	}
	r, _ := svc.LatestPrice(btcFeed)
	if !r.UpdatedAt.Equal(fixed) {
		t.Errorf("Expected injected timestamp, got %s", r.UpdatedAt)
	}

	// Rounds advance on every update.
	svc.ApplyPrice(ev)
	r, _ = svc.LatestPrice(btcFeed)
	if r.Round != 2 {
		t.Errorf("Expected round 2, got %d", r.Round)
	}
}

func TestPriceService_ReadingIsCopied(t *testing.T) {
	svc := newTestService()
	svc.SetPrice("WETH", decimal.NewFromInt(1), time.Now())

	r, _ := svc.LatestPrice(ethFeed)
	r.Answer.SetInt64(0)

	again, _ := svc.LatestPrice(ethFeed)
	if again.Answer.Sign() <= 0 {
		t.Error("Caller mutation leaked into the service")
	}
}

func TestPriceService_Snapshot_Sorted(t *testing.T) {
	svc := newTestService()
	svc.SetPrice("WETH", decimal.NewFromInt(2000), time.Now())

	all := svc.Snapshot()
	if len(all) != 2 {
		t.Fatalf("Expected 2 quotes, got %d", len(all))
	}
	if all[0].Symbol != "WBTC" || all[1].Symbol != "WETH" {
		t.Errorf("Not sorted: %s, %s", all[0].Symbol, all[1].Symbol)
	}
	if !all[1].Price.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("Expected 2000, got %s", all[1].Price)
	}
	if syms := svc.Symbols(); len(syms) != 2 || syms[0] != "WBTC" {
		t.Errorf("Unexpected symbols %v", syms)
	}
}

func TestPriceService_IgnoresOlderReadings(t *testing.T) {
	svc := newTestService()
	now := time.Unix(1_700_000_000, 0)

	if err := svc.SetPrice("WETH", decimal.NewFromInt(2000), now); err != nil {
		t.Fatalf("SetPrice failed: %v", err)
	}
	// A slow poll delivers an earlier observation after the stream's.
	late := &event.PriceUpdateEvent{BaseEvent: event.BaseEvent{Ts: now.Add(-time.Second).UnixMilli()}, Symbol: "WETH", Price: decimal.NewFromInt(1500), Source: "REST"}
	if err := svc.ApplyPrice(late); !errors.Is(err, domain.ErrStalePrice) {
		t.Errorf("Expected ErrStalePrice for an older reading, got %v", err)
	}

	r, _ := svc.LatestPrice(ethFeed)
	if r.Answer.String() != "200000000000" || r.Round != 1 {
		t.Errorf("Expected the newer 2000e8 reading to stay, got %s (round %d)", r.Answer, r.Round)
	}

	// Same timestamp is accepted.
	if err := svc.SetPrice("WETH", decimal.NewFromInt(2100), now); err != nil {
		t.Errorf("Expected equal timestamp to be accepted, got %v", err)
	}
	if applied := svc.ProcessTickers([]*domain.Ticker{{Symbol: "WETH", Price: decimal.NewFromInt(1), Ts: now.Add(-time.Hour)}}); applied != 0 {
		t.Errorf("Expected older ticker to be skipped, got %d applied", applied)
	}
}
