package model

import "time"

// Action is the resolved decision of one evaluation cycle.
type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
	Hold Action = "HOLD"
	Exit Action = "EXIT"
)

// IsEntry reports whether a is a directional entry signal.
func (a Action) IsEntry() bool {
	return a == Buy || a == Sell
}

// SignalDecision is produced once per cycle and consumed immediately.
type SignalDecision struct {
	Action Action `json:"action"`
	// Direction is the closing flavor of an EXIT (SELL closes LONG, BUY closes SHORT).
	Direction    Action   `json:"direction,omitempty"`
	Strength     int      `json:"strength"`
	BuyStrength  int      `json:"buy_strength"`
	SellStrength int      `json:"sell_strength"`
	Reasons      []string `json:"reasons"`
	// Market is a compact summary of the inputs (order book, tape, volume ratio).
	Market []string `json:"market,omitempty"`
}

// SignalStats tracks per-instrument decision history for cooldown and
// anti-chatter rules.
type SignalStats struct {
	BuyCount  int `json:"buy_count"`
	SellCount int `json:"sell_count"`
	HoldCount int `json:"hold_count"`
	ExitCount int `json:"exit_count"`

	// ConsecutiveSame is the length of the current run of identical non-HOLD
	// decisions, including the last one. Zero after a HOLD or EXIT.
	ConsecutiveSame int       `json:"consecutive_same"`
	LastAction      Action    `json:"last_action"`
	LastSignalTime  time.Time `json:"last_signal_time"`
}

// Total returns the number of decisions recorded.
func (s SignalStats) Total() int {
	return s.BuyCount + s.SellCount + s.HoldCount + s.ExitCount
}
