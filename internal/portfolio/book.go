package portfolio

import (
	"time"

	"signalbot/internal/model"
)

// State is the position state of one instrument.
type State string

const (
	Flat  State = "FLAT"
	Long  State = "LONG"
	Short State = "SHORT"
)

// Book holds the single position of one instrument. Like the history store
// it is owned by one worker and not safe for concurrent use.
type Book struct {
	inst   model.Instrument
	limits RiskLimits
	pos    *model.Position
}

// NewBook creates a flat book for inst.
func NewBook(inst model.Instrument, limits RiskLimits) *Book {
	return &Book{inst: inst, limits: limits}
}

// State returns FLAT, LONG or SHORT.
func (b *Book) State() State {
	switch {
	case b.pos == nil:
		return Flat
	case b.pos.Side == model.Short:
		return Short
	default:
		return Long
	}
}

// Position returns a copy of the open position.
func (b *Book) Position() (model.Position, bool) {
	if b.pos == nil {
		return model.Position{}, false
	}
	return *b.pos, true
}

// Open returns the live position or nil. Callers must not retain it.
func (b *Book) Open() *model.Position {
	return b.pos
}

// Apply commits the state transition for decision d observed at price.
// entryPrice is the refined fill used when a new position opens.
// It returns the committed events in order: a close (if any) then an open.
func (b *Book) Apply(d model.SignalDecision, price, entryPrice float64, now time.Time) []model.TradeEvent {
	switch d.Action {
	case model.Exit:
		if b.pos == nil {
			return nil
		}
		return []model.TradeEvent{b.close(d, price, now)}

	case model.Buy, model.Sell:
		side := model.Long
		if d.Action == model.Sell {
			side = model.Short
		}
		if b.pos != nil && b.pos.Side == side {
			return nil
		}
		var events []model.TradeEvent
		if b.pos != nil {
			events = append(events, b.close(d, price, now))
		}
		return append(events, b.open(d, side, entryPrice, now))
	}
	return nil
}

func (b *Book) open(d model.SignalDecision, side model.Side, entry float64, now time.Time) model.TradeEvent {
	pos := &model.Position{
		Instrument: b.inst.Key(),
		Side:       side,
		EntryPrice: entry,
		EntryTime:  now,
	}
	if side == model.Long {
		pos.StopLoss = entry * (1 - b.limits.StopLossPercent)
		pos.TakeProfit = entry * (1 + b.limits.TakeProfitPercent)
	} else {
		pos.StopLoss = entry * (1 + b.limits.StopLossPercent)
		pos.TakeProfit = entry * (1 - b.limits.TakeProfitPercent)
	}
	b.pos = pos

	ev := model.NewTradeEvent(b.inst, model.EventOpen, d.Action, entry, now)
	ev.Side = side
	ev.Reasons = d.Reasons
	ev.Market = d.Market
	ev.EntryPrice = pos.EntryPrice
	ev.StopLoss = pos.StopLoss
	ev.TakeProfit = pos.TakeProfit
	return ev
}

func (b *Book) close(d model.SignalDecision, price float64, now time.Time) model.TradeEvent {
	pos := b.pos
	b.pos = nil

	pnl := pos.PnL(price)
	ev := model.NewTradeEvent(b.inst, model.EventClose, model.Exit, price, now)
	ev.Direction = pos.ClosingAction()
	ev.Side = pos.Side
	ev.Reasons = d.Reasons
	ev.Market = d.Market
	ev.EntryPrice = pos.EntryPrice
	ev.StopLoss = pos.StopLoss
	ev.TakeProfit = pos.TakeProfit
	ev.PnL = pnl
	ev.Status = model.StatusOf(pnl)
	return ev
}
