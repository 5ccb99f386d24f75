package strategy

import (
	"time"

	"signalbot/internal/model"
)

// ApplyStats records a committed decision. ConsecutiveSame counts the current
// run of identical BUY or SELL decisions, including this one; HOLD and EXIT
// end the run. LastSignalTime only moves on BUY/SELL, so the cooldown is
// measured from the last entry signal.
func ApplyStats(s *model.SignalStats, action model.Action, now time.Time) {
	switch action {
	case model.Buy:
		s.BuyCount++
	case model.Sell:
		s.SellCount++
	case model.Hold:
		s.HoldCount++
	case model.Exit:
		s.ExitCount++
	}

	if action.IsEntry() {
		if s.LastAction == action && s.ConsecutiveSame > 0 {
			s.ConsecutiveSame++
		} else {
			s.ConsecutiveSame = 1
		}
		s.LastSignalTime = now
	} else {
		s.ConsecutiveSame = 0
	}
	s.LastAction = action
}
