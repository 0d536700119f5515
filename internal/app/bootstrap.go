package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"stablecoin_go/internal/api"
	"stablecoin_go/internal/domain"
	"stablecoin_go/internal/engine"
	"stablecoin_go/internal/infra"
	"stablecoin_go/internal/infra/feed"
	"stablecoin_go/internal/infra/storage"
	"stablecoin_go/internal/service"
	"stablecoin_go/internal/strategy"
	"stablecoin_go/internal/token"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	ConfigPath string

	Config    *infra.Config
	Storage   *storage.Storage
	Metrics   *infra.Metrics
	Prices    *service.PriceService
	DSC       *token.Pegged
	Tokens    map[common.Address]*token.Token
	Engine    *engine.Engine
	Sequencer *engine.Sequencer
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap(configPath string) *Bootstrap {
	return &Bootstrap{ConfigPath: configPath, Metrics: infra.GlobalMetrics}
}

// Initialize performs core system initialization (config, logger, DB).
func (b *Bootstrap) Initialize() error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(b.ConfigPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)
	slog.Info("Bootstrapping collateral engine...", slog.String("config", b.ConfigPath))

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("Database initialized", slog.String("path", cfg.Storage.Path))

	return nil
}

// BuildEngine wires tokens, prices and the engine, then replays the journal.
func (b *Bootstrap) BuildEngine() error {
	cfg := b.Config
	engineAddr := common.HexToAddress(cfg.Engine.Address)
	dscAddr := common.HexToAddress(cfg.Engine.PeggedToken)

	b.DSC = token.NewPegged("DSC", engineAddr)
	b.Tokens = make(map[common.Address]*token.Token, len(cfg.Collateral))
	dir := token.NewDirectory()

	var (
		assets   []common.Address
		feeds    []common.Address
		decimals []uint8
		bindings []service.FeedBinding
	)
	for _, c := range cfg.Collateral {
		t := token.New(c.Symbol)
		b.Tokens[c.AssetAddress()] = t
		dir.Register(c.AssetAddress(), t)

		assets = append(assets, c.AssetAddress())
		feeds = append(feeds, c.FeedAddress())
		decimals = append(decimals, c.FeedDecimals)
		bindings = append(bindings, service.FeedBinding{Symbol: c.Symbol, Feed: c.FeedAddress(), Decimals: c.FeedDecimals})
	}

	b.Prices = service.NewPriceService(bindings)
	var seeds []*domain.Ticker
	for _, c := range cfg.Collateral {
		if c.InitialPrice.IsPositive() {
			seeds = append(seeds, &domain.Ticker{Symbol: c.Symbol, Price: c.InitialPrice, Source: "STATIC", Ts: time.Now()})
		}
	}
	if applied := b.Prices.ProcessTickers(seeds); applied != len(seeds) {
		return fmt.Errorf("seeded %d of %d initial prices", applied, len(seeds))
	}

	eng, err := engine.New(engine.Config{
		Address:      engineAddr,
		Assets:       assets,
		Feeds:        feeds,
		FeedDecimals: decimals,
		DSC:          b.DSC,
		DSCAddress:   dscAddr,
		Tokens:       dir,
		Prices:       b.Prices,
	},
		engine.WithLogger(slog.Default()),
		engine.WithJournal(b.Storage),
		engine.WithLiquidationRecorder(b.Storage),
		engine.WithMaxPriceAge(cfg.MaxPriceAge()),
		engine.WithMetrics(b.Metrics),
	)
	if err != nil {
		return err
	}
	b.Engine = eng

	strat, err := b.keeper()
	if err != nil {
		return err
	}
	b.Sequencer = engine.NewSequencer(cfg.Engine.InboxSize, eng, b.Prices, strat)

	records, err := b.Storage.LoadJournal()
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}
	b.Sequencer.Replay(records)
	last, err := b.Storage.LastSeq()
	if err != nil {
		return fmt.Errorf("read last seq: %w", err)
	}
	if last+1 != eng.NextSeq() {
		return fmt.Errorf("%w: journal ends at %d, replay reached %d", domain.ErrSequenceGap, last, eng.NextSeq()-1)
	}
	if err := b.reconcileCustody(); err != nil {
		return err
	}

	slog.Info("Engine ready",
		slog.Int("collateral", len(assets)),
		slog.Int("journal", len(records)),
		slog.Uint64("next_seq", eng.NextSeq()),
	)
	return nil
}

// keeper returns nil when the keeper is disabled.
func (b *Bootstrap) keeper() (strategy.Strategy, error) {
	if !b.Config.Keeper.Enabled {
		return nil, nil
	}
	limit, err := b.Config.KeeperMaxDebt()
	if err != nil {
		return nil, &domain.ConfigError{Field: "keeper.max_debt_to_cover", Err: err}
	}
	return strategy.NewLiquidationKeeper(strategy.KeeperConfig{
		Liquidator:      common.HexToAddress(b.Config.Keeper.Liquidator),
		MinHealthFactor: engine.MinHealthFactor(),
		MaxDebtToCover:  limit,
	}), nil
}

// reconcileCustody rebuilds the in-memory token balances implied by the
// replayed ledger: engine custody holds every deposit and each debtor
// holds the DSC they minted.
func (b *Bootstrap) reconcileCustody() error {
	engineAddr := b.Engine.Address()
	for _, pos := range b.Engine.Snapshot() {
		for asset, amount := range pos.Collateral {
			t, ok := b.Tokens[asset]
			if !ok {
				return fmt.Errorf("journal references unknown collateral %s", asset.Hex())
			}
			t.Credit(engineAddr, amount)
		}
		if pos.Debt.IsZero() {
			continue
		}
		if _, err := b.DSC.Mint(engineAddr, pos.User, pos.Debt); err != nil {
			return fmt.Errorf("reconcile DSC for %s: %w", pos.User.Hex(), err)
		}
	}
	return nil
}

// VerifySnapshot compares the rebuilt ledger with the position snapshot
// saved at the last shutdown and describes every difference. A snapshot
// behind the journal (for example after a crash) shows up here.
func (b *Bootstrap) VerifySnapshot() ([]string, error) {
	var diffs []string
	for _, pos := range b.Engine.Snapshot() {
		user := pos.User.Hex()
		rec, err := b.Storage.GetDebt(user)
		if err != nil {
			return nil, fmt.Errorf("read debt %s: %w", user, err)
		}
		stored := "0"
		if rec != nil {
			stored = rec.Amount
		}
		if stored != pos.Debt.Dec() {
			diffs = append(diffs, fmt.Sprintf("debt %s: snapshot %s, ledger %s", user, stored, pos.Debt.Dec()))
		}
		for asset, amount := range pos.Collateral {
			prec, err := b.Storage.GetPosition(user, asset.Hex())
			if err != nil {
				return nil, fmt.Errorf("read position %s/%s: %w", user, asset.Hex(), err)
			}
			stored := "0"
			if prec != nil {
				stored = prec.Amount
			}
			if stored != amount.Dec() {
				diffs = append(diffs, fmt.Sprintf("collateral %s %s: snapshot %s, ledger %s",
					user, b.Tokens[asset].Symbol(), stored, amount.Dec()))
			}
		}
	}
	return diffs, nil
}

// Faucet credits amount of asset to user and approves the engine for that
// asset and for DSC. It backs the simulate command.
func (b *Bootstrap) Faucet(user, asset common.Address, amount *uint256.Int) error {
	t, ok := b.Tokens[asset]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedAsset, asset.Hex())
	}
	unlimited := new(uint256.Int).SetAllOne()
	t.Credit(user, amount)
	t.Approve(user, b.Engine.Address(), unlimited)
	b.DSC.Approve(user, b.Engine.Address(), unlimited)
	slog.Info("Faucet credited", slog.String("user", user.Hex()), slog.String("symbol", t.Symbol()), slog.String("amount", amount.Dec()))
	return nil
}

// StartFeeds connects the configured price feeds to the sequencer inbox.
// The returned function stops them.
func (b *Bootstrap) StartFeeds(ctx context.Context) func() {
	var stops []func()
	symbols := b.Prices.Symbols()

	if url := b.Config.Feeds.WSURL; url != "" {
		w := feed.NewWSWorker(url, symbols, b.Sequencer.Inbox())
		if err := w.Connect(ctx); err != nil {
			slog.Error("Failed to connect price stream", slog.Any("error", err))
		} else {
			stops = append(stops, w.Disconnect)
			slog.Info("Price stream started", slog.Int("symbols", len(symbols)))
		}
	}
	if url := b.Config.Feeds.RestURL; url != "" {
		interval := time.Duration(b.Config.Feeds.PollIntervalSec) * time.Second
		p := feed.NewRESTPoller(url, symbols, interval, b.Sequencer.Inbox())
		p.SetSigner(feed.NewSigner(b.Config.Feeds.APIKey, b.Config.Feeds.APISecret))
		if err := p.Start(ctx); err != nil {
			slog.Error("Failed to start price poller", slog.Any("error", err))
		} else {
			stops = append(stops, p.Stop)
			slog.Info("Price poller started", slog.Duration("interval", interval))
		}
	}

	return func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}
}

// NewHTTPServer builds the query API server with a /metrics endpoint.
func (b *Bootstrap) NewHTTPServer() *http.Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		infra.NewCollector(b.Metrics),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	srv := api.New(api.Config{
		Engine:   b.Engine,
		Prices:   b.Prices,
		History:  b.Storage,
		Metrics:  b.Metrics,
		Gatherer: registry,
	})
	return &http.Server{
		Addr:              b.Config.HTTP.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Shutdown snapshots positions and closes storage.
func (b *Bootstrap) Shutdown() error {
	var errs []error
	if b.Engine != nil && b.Storage != nil {
		if err := b.Storage.SavePositions(b.Engine.Snapshot()); err != nil {
			errs = append(errs, fmt.Errorf("save positions: %w", err))
		} else {
			slog.Info("Positions saved", slog.Uint64("next_seq", b.Engine.NextSeq()))
		}
	}
	if b.Storage != nil {
		if err := b.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	return errors.Join(errs...)
}
