package event

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"stablecoin_go/internal/domain"
)

// Type identifies an inbox event.
type Type string

const (
	TypePriceUpdate Type = "PRICE_UPDATE"
	TypeCommand     Type = "COMMAND"
)

// Event is anything the sequencer accepts on its inbox.
type Event interface {
	GetType() Type
	GetTs() int64
}

// BaseEvent carries the fields common to all events.
type BaseEvent struct {
	Ts int64 `json:"ts"` // unix millis
}

func (e *BaseEvent) GetTs() int64 { return e.Ts }

// PriceUpdateEvent is a new price for one feed, produced by a feed worker.
type PriceUpdateEvent struct {
	BaseEvent
	Feed   common.Address  `json:"feed"`
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Source string          `json:"source"`
}

func (e *PriceUpdateEvent) GetType() Type { return TypePriceUpdate }

// Command is one request for a mutating engine entry point.
// Unused fields are ignored by the op.
type Command struct {
	Op        domain.OpKind
	Caller    common.Address
	Asset     common.Address
	User      common.Address // liquidation target
	Amount    *uint256.Int   // collateral, or DSC for MINT/BURN, or debt to cover
	DSCAmount *uint256.Int   // DSC side of the combined ops
}

// Result is the reply to a command.
type Result struct {
	Liquidation *domain.LiquidationResult
	Err         error
}

// CommandEvent wraps a command and its reply channel. Reply must be
// buffered with capacity 1.
type CommandEvent struct {
	BaseEvent
	Command Command
	Reply   chan Result
}

func (e *CommandEvent) GetType() Type { return TypeCommand }

// NewCommandEvent builds a command event with a ready reply channel.
func NewCommandEvent(ts int64, cmd Command) *CommandEvent {
	return &CommandEvent{
		BaseEvent: BaseEvent{Ts: ts},
		Command:   cmd,
		Reply:     make(chan Result, 1),
	}
}
