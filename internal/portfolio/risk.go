package portfolio

import (
	"fmt"
	"time"

	"signalbot/config"
	"signalbot/internal/indicator"
	"signalbot/internal/model"
)

// RiskLimits defines the exit thresholds of a position. Percents are fractions.
type RiskLimits struct {
	StopLossPercent   float64       `json:"stop_loss_percent"`
	TakeProfitPercent float64       `json:"take_profit_percent"`
	MaxHold           time.Duration `json:"max_hold"`
}

// LimitsFromConfig converts the risk section of the configuration.
func LimitsFromConfig(r config.Risk) RiskLimits {
	return RiskLimits{
		StopLossPercent:   r.StopLossPercent,
		TakeProfitPercent: r.TakeProfitPercent,
		MaxHold:           r.MaxHold,
	}
}

// ExitTrigger names the rule that closed a position.
type ExitTrigger string

const (
	TriggerNone       ExitTrigger = ""
	TriggerStopLoss   ExitTrigger = "stop_loss"
	TriggerTakeProfit ExitTrigger = "take_profit"
	TriggerMaxHold    ExitTrigger = "max_hold"
	TriggerTechnical  ExitTrigger = "technical"
)

// Exit is the result of an exit check.
type Exit struct {
	Fire    bool
	Trigger ExitTrigger
	// Action is the closing direction: SELL closes a LONG, BUY closes a SHORT.
	Action model.Action
	Reason string
	PnL    float64
}

// CheckExit evaluates the exit rules of pos in order: stop loss, take
// profit, max hold time, then the multi-timeframe RSI extreme opposite to the
// held side. The first match wins. A nil position never exits.
func CheckExit(pos *model.Position, price float64, now time.Time, rsi indicator.MultiRSI, limits RiskLimits) Exit {
	if pos == nil {
		return Exit{Reason: "no active position"}
	}

	pnl := pos.PnL(price)
	exit := Exit{Action: pos.ClosingAction(), PnL: pnl}

	switch held := pos.HeldFor(now); {
	case pnl <= -limits.StopLossPercent:
		exit.Trigger = TriggerStopLoss
		exit.Reason = fmt.Sprintf("stop loss (%.2f%%)", pnl*100)
	case pnl >= limits.TakeProfitPercent:
		exit.Trigger = TriggerTakeProfit
		exit.Reason = fmt.Sprintf("take profit (%.2f%%)", pnl*100)
	case held >= limits.MaxHold:
		exit.Trigger = TriggerMaxHold
		exit.Reason = fmt.Sprintf("time exit (held %s)", held.Round(time.Second))
	case pos.Side == model.Long && rsi.Has5 && rsi.Has14 && rsi.RSI5 > 75 && rsi.RSI14 > 70:
		exit.Trigger = TriggerTechnical
		exit.Reason = fmt.Sprintf("RSI overbought (5:%.1f, 14:%.1f)", rsi.RSI5, rsi.RSI14)
	case pos.Side == model.Short && rsi.Has5 && rsi.Has14 && rsi.RSI5 < 25 && rsi.RSI14 < 30:
		exit.Trigger = TriggerTechnical
		exit.Reason = fmt.Sprintf("RSI oversold (5:%.1f, 14:%.1f)", rsi.RSI5, rsi.RSI14)
	default:
		return Exit{Action: exit.Action, PnL: pnl}
	}

	exit.Fire = true
	return exit
}
