package model

import "time"

// Side is the direction of an open position.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Position is the single live exposure an instrument may hold.
type Position struct {
	Instrument string    `json:"instrument"`
	Side       Side      `json:"side"`
	EntryPrice float64   `json:"entry_price"`
	EntryTime  time.Time `json:"entry_time"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
}

// PnL returns the profit/loss ratio of the position at price.
// LONG: (price-entry)/entry, SHORT: (entry-price)/entry.
func (p *Position) PnL(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	if p.Side == Short {
		return (p.EntryPrice - price) / p.EntryPrice
	}
	return (price - p.EntryPrice) / p.EntryPrice
}

// HeldFor returns how long the position has been open at now.
func (p *Position) HeldFor(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}

// ClosingAction is the action that flattens the position.
func (p *Position) ClosingAction() Action {
	if p.Side == Short {
		return Buy
	}
	return Sell
}
