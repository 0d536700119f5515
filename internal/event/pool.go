package event

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// priceUpdatePool recycles PriceUpdateEvents between feed workers and the
// sequencer. The sequencer releases an event once it has applied it.
//
// Usage:
//
//	ev := AcquirePriceUpdateEvent()
//	ev.Symbol = "ETH"
//	// ... send to the sequencer ...
var priceUpdatePool = sync.Pool{
	New: func() interface{} {
		return &PriceUpdateEvent{}
	},
}

// AcquirePriceUpdateEvent gets a PriceUpdateEvent from the pool.
// The returned event has zero values and must be initialized.
func AcquirePriceUpdateEvent() *PriceUpdateEvent {
	return priceUpdatePool.Get().(*PriceUpdateEvent)
}

// ReleasePriceUpdateEvent returns a PriceUpdateEvent to the pool.
func ReleasePriceUpdateEvent(ev *PriceUpdateEvent) {
	if ev == nil {
		return
	}
	ev.Ts = 0
	ev.Feed = common.Address{}
	ev.Symbol = ""
	ev.Price = decimal.Zero
	ev.Source = ""

	priceUpdatePool.Put(ev)
}

// Warmup pre-allocates price events before the feeds connect.
func Warmup() {
	const batchSize = 256

	evs := make([]*PriceUpdateEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		evs = append(evs, AcquirePriceUpdateEvent())
	}
	for _, ev := range evs {
		ReleasePriceUpdateEvent(ev)
	}
}
