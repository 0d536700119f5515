package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"stablecoin_go/internal/domain"
	"stablecoin_go/internal/event"
	"stablecoin_go/internal/strategy"
)

// ErrSequencerStopped is returned by Submit once Run has exited.
var ErrSequencerStopped = errors.New("sequencer stopped")

// PriceSink receives price updates from the sequencer.
type PriceSink interface {
	ApplyPrice(ev *event.PriceUpdateEvent) error
}

// Sequencer is the single-threaded event processor in front of the engine.
// Commands and price updates share one inbox, so prices never move while an
// operation is in flight.
type Sequencer struct {
	inbox     chan event.Event
	done      chan struct{}
	engine    *Engine
	prices    PriceSink
	strategy  strategy.Strategy
	processed uint64
	dumpPath  string
	logger    *slog.Logger
}

// NewSequencer creates a new sequencer instance. prices and strat may be nil.
func NewSequencer(inboxSize int, eng *Engine, prices PriceSink, strat strategy.Strategy) *Sequencer {
	return &Sequencer{
		inbox:    make(chan event.Event, inboxSize),
		done:     make(chan struct{}),
		engine:   eng,
		prices:   prices,
		strategy: strat,
		dumpPath: "panic_dump.json",
		logger:   slog.Default().With("module", "sequencer"),
	}
}

// SetDumpPath sets where DumpState writes on a panic.
func (s *Sequencer) SetDumpPath(path string) { s.dumpPath = path }

// Inbox returns the event channel. External workers send events here.
func (s *Sequencer) Inbox() chan<- event.Event {
	return s.inbox
}

// Done is closed when Run returns.
func (s *Sequencer) Done() <-chan struct{} {
	return s.done
}

// Run starts the main event loop. This MUST be run in a single goroutine.
func (s *Sequencer) Run(ctx context.Context) {
	s.logger.Info("Sequencer started")
	defer close(s.done)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			s.DumpState(s.dumpPath)
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sequencer stopping...", slog.Uint64("processed", s.processed))
			return
		case ev := <-s.inbox:
			s.processEvent(ev)
		}
	}
}

// Submit sends cmd through the inbox and waits for its result.
func (s *Sequencer) Submit(ctx context.Context, cmd event.Command) (event.Result, error) {
	ev := event.NewCommandEvent(time.Now().UnixMilli(), cmd)
	select {
	case s.inbox <- ev:
	case <-ctx.Done():
		return event.Result{}, ctx.Err()
	case <-s.done:
		return event.Result{}, ErrSequencerStopped
	}
	select {
	case res := <-ev.Reply:
		return res, nil
	case <-ctx.Done():
		return event.Result{}, ctx.Err()
	case <-s.done:
		return event.Result{}, ErrSequencerStopped
	}
}

func (s *Sequencer) processEvent(ev event.Event) {
	switch e := ev.(type) {
	case *event.CommandEvent:
		e.Reply <- s.handleCommand(e.Command)
	case *event.PriceUpdateEvent:
		s.handlePriceUpdate(e)
		event.ReleasePriceUpdateEvent(e)
	default:
		s.logger.Warn("Unknown event type", slog.Any("type", ev.GetType()))
	}
	s.processed++
}

func (s *Sequencer) handleCommand(cmd event.Command) event.Result {
	e := s.engine
	var err error
	switch cmd.Op {
	case domain.OpDepositCollateral:
		err = e.DepositCollateral(cmd.Caller, cmd.Asset, cmd.Amount)
	case domain.OpMintDSC:
		err = e.MintDSC(cmd.Caller, cmd.Amount)
	case domain.OpDepositCollateralAndMint:
		err = e.DepositCollateralAndMintDSC(cmd.Caller, cmd.Asset, cmd.Amount, cmd.DSCAmount)
	case domain.OpRedeemCollateral:
		err = e.RedeemCollateral(cmd.Caller, cmd.Asset, cmd.Amount)
	case domain.OpBurnDSC:
		err = e.BurnDSC(cmd.Caller, cmd.Amount)
	case domain.OpRedeemCollateralForDSC:
		err = e.RedeemCollateralForDSC(cmd.Caller, cmd.Asset, cmd.Amount, cmd.DSCAmount)
	case domain.OpLiquidate:
		res, lerr := e.Liquidate(cmd.Caller, cmd.Asset, cmd.User, cmd.Amount)
		if lerr != nil {
			return event.Result{Err: lerr}
		}
		return event.Result{Liquidation: &res}
	default:
		err = &domain.ValidationError{Op: "submit", Err: fmt.Errorf("unknown op %q", cmd.Op)}
	}
	return event.Result{Err: err}
}

func (s *Sequencer) handlePriceUpdate(ev *event.PriceUpdateEvent) {
	if s.prices != nil {
		if err := s.prices.ApplyPrice(ev); err != nil {
			s.logger.Warn("price update rejected",
				slog.String("symbol", ev.Symbol), slog.String("source", ev.Source), slog.Any("error", err))
			return
		}
		s.engine.metrics.RecordPriceUpdate()
	}

	if s.strategy == nil {
		return
	}
	for _, action := range s.strategy.OnPriceUpdate(s.engine) {
		if action.Type != strategy.ActionLiquidate {
			continue
		}
		res, err := s.engine.Liquidate(action.Liquidator, action.Asset, action.User, action.DebtToCover)
		if err != nil {
			s.logger.Warn("KEEPER_ACTION_FAILED",
				slog.String("user", action.User.Hex()), slog.String("debt_to_cover", action.DebtToCover.Dec()), slog.Any("error", err))
			continue
		}
		s.logger.Info("KEEPER_ACTION",
			slog.Uint64("seq", res.Seq),
			slog.String("user", res.User.Hex()),
			slog.String("debt_covered", res.DebtCovered.Dec()),
			slog.String("collateral_seized", res.CollateralSeized.Dec()),
		)
	}
}

// Replay rebuilds the engine ledger from journal records before Run.
// A gap in the journal halts.
func (s *Sequencer) Replay(records []*domain.JournalRecord) {
	if err := s.engine.Restore(records); err != nil {
		if errors.Is(err, domain.ErrSequenceGap) {
			panic(fmt.Sprintf("REPLAY_GAP_DETECTED: %v", err))
		}
		panic(fmt.Sprintf("REPLAY_FAILED: %v", err))
	}
}

// DumpState writes the engine positions to a file (for post-mortem).
func (s *Sequencer) DumpState(filename string) {
	s.logger.Info("Dumping internal state...", slog.String("file", filename))

	data := struct {
		NextSeq   uint64                    `json:"next_seq"`
		Processed uint64                    `json:"processed"`
		Positions []domain.PositionSnapshot `json:"positions"`
	}{
		NextSeq:   s.engine.NextSeq(),
		Processed: s.processed,
		Positions: s.engine.Snapshot(),
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		s.logger.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	err = os.WriteFile(filename, b, 0644)
	if err != nil {
		s.logger.Error("Failed to write state dump", slog.Any("error", err))
	}
}
