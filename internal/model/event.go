package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventKind classifies a TradeEvent.
type EventKind string

const (
	EventOpen  EventKind = "OPEN"
	EventClose EventKind = "CLOSE"
	EventHold  EventKind = "HOLD"
)

// TradeStatus is the outcome of a closed position.
type TradeStatus string

const (
	StatusProfit    TradeStatus = "PROFIT"
	StatusLoss      TradeStatus = "LOSS"
	StatusBreakeven TradeStatus = "BREAKEVEN"
)

// StatusOf classifies a realized P/L ratio.
func StatusOf(pnl float64) TradeStatus {
	switch {
	case pnl > 0:
		return StatusProfit
	case pnl < 0:
		return StatusLoss
	}
	return StatusBreakeven
}

// TradeEvent is a committed state transition handed to notifiers and storage.
type TradeEvent struct {
	ID         string     `json:"id"`
	Instrument Instrument `json:"instrument"`
	Kind       EventKind  `json:"kind"`
	Action     Action     `json:"action"` // BUY/SELL for opens and holds, EXIT for closes
	Direction  Action     `json:"direction,omitempty"`
	Side       Side       `json:"side,omitempty"`
	Price      float64    `json:"price"`
	Time       time.Time  `json:"time"`
	Reasons    []string   `json:"reasons"`
	Market     []string   `json:"market,omitempty"`

	EntryPrice float64     `json:"entry_price,omitempty"`
	StopLoss   float64     `json:"stop_loss,omitempty"`
	TakeProfit float64     `json:"take_profit,omitempty"`
	PnL        float64     `json:"pnl,omitempty"` // realized ratio on CLOSE
	Status     TradeStatus `json:"status,omitempty"`
}

// NewTradeEvent stamps a fresh event ID.
func NewTradeEvent(inst Instrument, kind EventKind, action Action, price float64, ts time.Time) TradeEvent {
	return TradeEvent{
		ID:         uuid.NewString(),
		Instrument: inst,
		Kind:       kind,
		Action:     action,
		Price:      price,
		Time:       ts,
	}
}

// JSON returns the JSON-encoded event (ignoring errors for hot-path usage).
func (e *TradeEvent) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}
