package service

import (
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"stablecoin_go/internal/domain"
	"stablecoin_go/internal/event"
)

// FeedBinding ties a ticker symbol to the feed the engine reads.
type FeedBinding struct {
	Symbol   string
	Feed     common.Address
	Decimals uint8
}

type feedState struct {
	binding FeedBinding
	price   decimal.Decimal
	reading domain.PriceReading // zero until the first price
}

// PriceService keeps the latest price of every bound feed. It is the
// engine's domain.PriceSource.
type PriceService struct {
	mu       sync.RWMutex
	bySymbol map[string]*feedState
	byFeed   map[common.Address]*feedState
	now      func() time.Time
}

// NewPriceService creates a new PriceService instance
func NewPriceService(bindings []FeedBinding) *PriceService {
	s := &PriceService{
		bySymbol: make(map[string]*feedState, len(bindings)),
		byFeed:   make(map[common.Address]*feedState, len(bindings)),
		now:      time.Now,
	}
	for _, b := range bindings {
		st := &feedState{binding: b}
		s.bySymbol[b.Symbol] = st
		s.byFeed[b.Feed] = st
	}
	return s
}

// SetClock overrides time.Now for tickers that carry no timestamp.
func (s *PriceService) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// LatestPrice implements domain.PriceSource.
func (s *PriceService) LatestPrice(feed common.Address) (domain.PriceReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.byFeed[feed]
	if !ok {
		return domain.PriceReading{}, fmt.Errorf("%w: unknown feed %s", domain.ErrInvalidPrice, feed.Hex())
	}
	if st.reading.Answer == nil {
		return domain.PriceReading{}, fmt.Errorf("%w: no price yet for %s", domain.ErrStalePrice, st.binding.Symbol)
	}
	r := st.reading
	r.Answer = new(big.Int).Set(st.reading.Answer)
	return r, nil
}

// SetPrice records price for symbol as of ts.
func (s *PriceService) SetPrice(symbol string, price decimal.Decimal, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(&domain.Ticker{Symbol: symbol, Price: price, Ts: ts})
}

// ApplyPrice records a price update event from the sequencer.
func (s *PriceService) ApplyPrice(ev *event.PriceUpdateEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	symbol := ev.Symbol
	if ev.Feed != (common.Address{}) {
		if st, ok := s.byFeed[ev.Feed]; ok {
			symbol = st.binding.Symbol
		}
	}
	var ts time.Time
	if ev.Ts > 0 {
		ts = time.UnixMilli(ev.Ts)
	}
	return s.apply(&domain.Ticker{Symbol: symbol, Price: ev.Price, Source: ev.Source, Ts: ts})
}

// apply must be called with the lock held.
func (s *PriceService) apply(t *domain.Ticker) error {
	st, ok := s.bySymbol[t.Symbol]
	if !ok {
		return fmt.Errorf("unbound symbol %q", t.Symbol)
	}
	answer, err := t.FixedPoint(st.binding.Decimals)
	if err != nil {
		return err
	}
	ts := t.Ts
	if ts.IsZero() {
		ts = s.now()
	}
	// Feed timestamps carry milliseconds.
	if ts.UnixMilli() < st.reading.UpdatedAt.UnixMilli() {
		return fmt.Errorf("%w: %s reading at %s is older than %s", domain.ErrStalePrice,
			t.Symbol, ts.Format(time.RFC3339Nano), st.reading.UpdatedAt.Format(time.RFC3339Nano))
	}
	st.price = t.Price
	st.reading = domain.PriceReading{
		Answer:    answer,
		Decimals:  st.binding.Decimals,
		UpdatedAt: ts,
		Round:     st.reading.Round + 1,
	}
	return nil
}

// ProcessTickers applies a batch of tickers. Tickers for unbound symbols or
// with invalid prices are skipped; the number applied is returned.
func (s *PriceService) ProcessTickers(tickers []*domain.Ticker) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	applied := 0
	for _, ticker := range tickers {
		if s.apply(ticker) == nil {
			applied++
		}
	}
	return applied
}

// Snapshot returns the latest quote of every feed sorted by symbol.
func (s *PriceService) Snapshot() []domain.Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Quote, 0, len(s.bySymbol))
	for _, st := range s.bySymbol {
		result = append(result, domain.Quote{
			Symbol:    st.binding.Symbol,
			Feed:      st.binding.Feed.Hex(),
			Price:     st.price,
			Decimals:  st.binding.Decimals,
			UpdatedAt: st.reading.UpdatedAt,
		})
	}

	// Sort by symbol for consistent ordering
	sort.Slice(result, func(i, j int) bool {
		return result[i].Symbol < result[j].Symbol
	})

	return result
}

// Symbols returns the bound symbols, sorted.
func (s *PriceService) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.bySymbol))
	for sym := range s.bySymbol {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
