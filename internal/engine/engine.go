package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"stablecoin_go/internal/domain"
	"stablecoin_go/internal/infra"
)

// Config wires the engine to its collaborators. It is used once, at
// construction; the engine is immutable afterwards apart from its ledger.
type Config struct {
	Address      common.Address // engine custody account
	Assets       []common.Address
	Feeds        []common.Address
	FeedDecimals []uint8 // nil: every feed reports DefaultFeedDecimals
	DSC          domain.PeggedToken
	DSCAddress   common.Address
	Tokens       domain.TokenDirectory
	Prices       domain.PriceSource
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l.With("module", "engine") }
}

// WithJournal appends every committed operation to j.
func WithJournal(j domain.Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithMaxPriceAge rejects readings older than d. Zero disables the check.
func WithMaxPriceAge(d time.Duration) Option {
	return func(e *Engine) { e.maxPriceAge = d }
}

// WithClock overrides time.Now for staleness checks and journal stamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLiquidationRecorder indexes every committed liquidation in r.
func WithLiquidationRecorder(r domain.LiquidationRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithMetrics overrides infra.GlobalMetrics.
func WithMetrics(m *infra.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine is the collateral engine: registry, ledger, pricing and the
// solvency evaluator behind the public entry points.
type Engine struct {
	// guard is the instance-wide reentrancy lock. Entry points TryLock it;
	// a nested or concurrent call fails with ErrReentrantCall.
	guard sync.Mutex
	// mu protects ledger and nextSeq against readers. Writers hold guard.
	mu sync.RWMutex

	ledger  *domain.Ledger
	nextSeq uint64
	halted  atomic.Bool

	registry   *Registry
	address    common.Address
	dsc        domain.PeggedToken
	dscAddress common.Address
	tokens     domain.TokenDirectory
	prices     domain.PriceSource

	journal     domain.Journal
	recorder    domain.LiquidationRecorder
	maxPriceAge time.Duration
	now         func() time.Time
	logger      *slog.Logger
	metrics     *infra.Metrics
}

// New constructs an engine. It fails on a malformed registry or missing
// collaborators.
func New(cfg Config, opts ...Option) (*Engine, error) {
	registry, err := NewRegistry(cfg.Assets, cfg.Feeds, cfg.FeedDecimals)
	if err != nil {
		return nil, err
	}
	if cfg.DSC == nil || cfg.Tokens == nil || cfg.Prices == nil {
		return nil, &domain.ValidationError{Op: "new engine", Err: fmt.Errorf("dsc, tokens and prices are required")}
	}
	if cfg.Address == (common.Address{}) || cfg.DSCAddress == (common.Address{}) {
		return nil, &domain.ValidationError{Op: "new engine", Err: domain.ErrZeroAddress}
	}
	for _, asset := range registry.tokens {
		if _, ok := cfg.Tokens.Token(asset); !ok {
			return nil, &domain.ValidationError{Op: "new engine", Err: fmt.Errorf("no token for collateral %s", asset.Hex())}
		}
	}

	e := &Engine{
		ledger:     domain.NewLedger(),
		nextSeq:    1,
		registry:   registry,
		address:    cfg.Address,
		dsc:        cfg.DSC,
		dscAddress: cfg.DSCAddress,
		tokens:     cfg.Tokens,
		prices:     cfg.Prices,
		now:        time.Now,
		logger:     slog.Default().With("module", "engine"),
		metrics:    infra.GlobalMetrics,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// enter acquires the reentrancy guard. The returned release must be deferred.
func (e *Engine) enter() (func(), error) {
	if !e.guard.TryLock() {
		return nil, domain.ErrReentrantCall
	}
	if e.halted.Load() {
		e.guard.Unlock()
		return nil, domain.ErrEngineHalted
	}
	return e.guard.Unlock, nil
}

// run executes one entry point: guard, stage, post-checks, interactions,
// commit. stage must leave every effect in tx and every token call in p.
// committed, if set, runs after the journal append with the guard held.
func (e *Engine) run(op domain.OpKind, caller common.Address, stage func(tx *domain.LedgerTx, p *plan) error, committed func(seq uint64)) (uint64, error) {
	release, err := e.enter()
	if err != nil {
		return 0, err
	}
	defer release()

	start := time.Now()
	tx := e.ledger.Begin()
	p := &plan{}
	if err := stage(tx, p); err != nil {
		e.reject(op, caller, err)
		return 0, err
	}
	if compensated, err := p.execute(); err != nil {
		if compensated > 0 {
			e.metrics.RecordRollback()
		}
		if p.failedUndos > 0 {
			e.metrics.RecordError()
			e.logger.Error("COMPENSATION_FAILURE: custody balances need reconciliation",
				slog.String("op", string(op)), slog.Int("failed", p.failedUndos), slog.Any("error", err))
		}
		e.reject(op, caller, err)
		return 0, err
	}

	seq := e.commit(tx)

	rec := &domain.JournalRecord{Seq: seq, Op: op, Caller: caller.Hex(), Deltas: tx.Deltas(), CreatedAt: e.now()}
	if e.journal != nil {
		if err := e.journal.Append(rec); err != nil {
			// The operation already happened; stop accepting new ones.
			e.halted.Store(true)
			e.metrics.SetHalted(true)
			e.metrics.RecordError()
			e.logger.Error("PERSISTENCE_FAILURE: engine halted",
				slog.Uint64("seq", seq), slog.String("op", string(op)), slog.Any("error", err))
		}
	}

	if committed != nil {
		committed(seq)
	}

	e.metrics.RecordOperation(time.Since(start).Nanoseconds())
	e.logger.Info("operation committed",
		slog.Uint64("seq", seq),
		slog.String("op", string(op)),
		slog.String("caller", caller.Hex()),
		slog.Int("deltas", len(rec.Deltas)),
	)
	return seq, nil
}

func (e *Engine) commit(tx *domain.LedgerTx) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	seq := e.nextSeq
	e.ledger.Commit(tx)
	e.nextSeq++
	return seq
}

func (e *Engine) reject(op domain.OpKind, caller common.Address, err error) {
	e.metrics.RecordRejection()
	e.logger.Warn("operation rejected",
		slog.String("op", string(op)),
		slog.String("caller", caller.Hex()),
		slog.Any("error", err),
	)
}

func requirePositive(op string, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return &domain.ValidationError{Op: op, Err: domain.ErrZeroAmount}
	}
	return nil
}

func (e *Engine) collateralToken(op string, asset common.Address) (domain.CollateralToken, error) {
	if !e.registry.IsSupported(asset) {
		return nil, &domain.ValidationError{Op: op, Err: fmt.Errorf("%w: %s", domain.ErrUnsupportedAsset, asset.Hex())}
	}
	token, _ := e.tokens.Token(asset)
	return token, nil
}

func (e *Engine) stageDeposit(tx *domain.LedgerTx, p *plan, caller, asset common.Address, amount *uint256.Int) error {
	const op = "depositCollateral"
	if err := requirePositive(op, amount); err != nil {
		return err
	}
	token, err := e.collateralToken(op, asset)
	if err != nil {
		return err
	}
	if err := tx.CreditCollateral(caller, asset, amount); err != nil {
		return &domain.ValidationError{Op: op, Err: err}
	}
	e.pull(p, token, asset, caller, amount)
	return nil
}

func (e *Engine) stageMint(tx *domain.LedgerTx, p *plan, caller common.Address, amount *uint256.Int) error {
	const op = "mintDsc"
	if err := requirePositive(op, amount); err != nil {
		return err
	}
	if err := tx.CreditDebt(caller, amount); err != nil {
		return &domain.ValidationError{Op: op, Err: err}
	}
	if err := e.assertSolvent(op, tx, caller); err != nil {
		return err
	}
	e.mint(p, caller, amount)
	return nil
}

// stageRedeem moves collateral of from to to. Solvency is checked by the caller.
func (e *Engine) stageRedeem(tx *domain.LedgerTx, p *plan, op string, from, to, asset common.Address, amount *uint256.Int) error {
	if err := requirePositive(op, amount); err != nil {
		return err
	}
	token, err := e.collateralToken(op, asset)
	if err != nil {
		return err
	}
	if err := tx.DebitCollateral(from, asset, amount); err != nil {
		return &domain.ValidationError{Op: op, Err: err}
	}
	e.push(p, token, asset, to, amount)
	return nil
}

// stageBurn reduces onBehalfOf's debt, paid with payer's DSC.
func (e *Engine) stageBurn(tx *domain.LedgerTx, p *plan, op string, onBehalfOf, payer common.Address, amount *uint256.Int) error {
	if err := requirePositive(op, amount); err != nil {
		return err
	}
	if err := tx.DebitDebt(onBehalfOf, amount); err != nil {
		return &domain.ValidationError{Op: op, Err: err}
	}
	e.pull(p, e.dsc, e.dscAddress, payer, amount)
	e.burn(p, amount)
	return nil
}

// DepositCollateral pulls amount of asset from caller into custody.
func (e *Engine) DepositCollateral(caller, asset common.Address, amount *uint256.Int) error {
	_, err := e.run(domain.OpDepositCollateral, caller, func(tx *domain.LedgerTx, p *plan) error {
		return e.stageDeposit(tx, p, caller, asset, amount)
	}, nil)
	return err
}

// MintDSC mints amount of DSC to caller against their collateral.
func (e *Engine) MintDSC(caller common.Address, amount *uint256.Int) error {
	_, err := e.run(domain.OpMintDSC, caller, func(tx *domain.LedgerTx, p *plan) error {
		return e.stageMint(tx, p, caller, amount)
	}, nil)
	return err
}

// DepositCollateralAndMintDSC deposits collateral and mints in one step.
func (e *Engine) DepositCollateralAndMintDSC(caller, asset common.Address, collateral, dsc *uint256.Int) error {
	_, err := e.run(domain.OpDepositCollateralAndMint, caller, func(tx *domain.LedgerTx, p *plan) error {
		if err := e.stageDeposit(tx, p, caller, asset, collateral); err != nil {
			return err
		}
		return e.stageMint(tx, p, caller, dsc)
	}, nil)
	return err
}

// RedeemCollateral returns amount of asset to caller if they stay solvent.
func (e *Engine) RedeemCollateral(caller, asset common.Address, amount *uint256.Int) error {
	const op = "redeemCollateral"
	_, err := e.run(domain.OpRedeemCollateral, caller, func(tx *domain.LedgerTx, p *plan) error {
		if err := e.stageRedeem(tx, p, op, caller, caller, asset, amount); err != nil {
			return err
		}
		return e.assertSolvent(op, tx, caller)
	}, nil)
	return err
}

// BurnDSC pulls amount of DSC from caller, burns it and reduces their debt.
func (e *Engine) BurnDSC(caller common.Address, amount *uint256.Int) error {
	const op = "burnDsc"
	_, err := e.run(domain.OpBurnDSC, caller, func(tx *domain.LedgerTx, p *plan) error {
		if err := e.stageBurn(tx, p, op, caller, caller, amount); err != nil {
			return err
		}
		return e.assertSolvent(op, tx, caller)
	}, nil)
	return err
}

// RedeemCollateralForDSC burns dsc then redeems collateral, so the
// redemption's solvency check sees the reduced debt.
func (e *Engine) RedeemCollateralForDSC(caller, asset common.Address, collateral, dsc *uint256.Int) error {
	const op = "redeemCollateralForDsc"
	_, err := e.run(domain.OpRedeemCollateralForDSC, caller, func(tx *domain.LedgerTx, p *plan) error {
		if err := e.stageBurn(tx, p, op, caller, caller, dsc); err != nil {
			return err
		}
		if err := e.stageRedeem(tx, p, op, caller, caller, asset, collateral); err != nil {
			return err
		}
		return e.assertSolvent(op, tx, caller)
	}, nil)
	return err
}

// Halted reports whether a persistence failure stopped the engine.
func (e *Engine) Halted() bool { return e.halted.Load() }

// CollateralBalance returns the user's deposited amount of asset.
func (e *Engine) CollateralBalance(user, asset common.Address) *uint256.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.Collateral(user, asset)
}

// DebtOf returns the user's minted debt.
func (e *Engine) DebtOf(user common.Address) *uint256.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.Debt(user)
}

// Users returns every account with an open position.
func (e *Engine) Users() []common.Address {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.Users()
}

// Snapshot copies all positions.
func (e *Engine) Snapshot() []domain.PositionSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.Snapshot()
}

// NextSeq returns the sequence number the next commit will get.
func (e *Engine) NextSeq() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.nextSeq
}

// CollateralTokens returns the registered assets in registration order.
func (e *Engine) CollateralTokens() []common.Address { return e.registry.CollateralTokens() }

// PriceFeed returns the feed bound to asset.
func (e *Engine) PriceFeed(asset common.Address) (FeedConfig, bool) { return e.registry.Feed(asset) }

// Address returns the engine custody account.
func (e *Engine) Address() common.Address { return e.address }

// DSCAddress returns the pegged token identifier.
func (e *Engine) DSCAddress() common.Address { return e.dscAddress }
