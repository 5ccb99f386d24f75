package portfolio

import (
	"strings"
	"testing"
	"time"

	"signalbot/internal/indicator"
	"signalbot/internal/model"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testLimits() RiskLimits {
	return RiskLimits{StopLossPercent: 0.02, TakeProfitPercent: 0.015, MaxHold: 2 * time.Minute}
}

func TestCheckExit(t *testing.T) {
	long := &model.Position{Side: model.Long, EntryPrice: 1000, EntryTime: t0}
	short := &model.Position{Side: model.Short, EntryPrice: 1000, EntryTime: t0}
	neutral := indicator.MultiRSI{RSI5: 50, RSI14: 50, Has5: true, Has14: true}

	tests := []struct {
		name    string
		pos     *model.Position
		price   float64
		at      time.Time
		rsi     indicator.MultiRSI
		fire    bool
		trigger ExitTrigger
		action  model.Action
	}{
		{"no position", nil, 1000, t0, neutral, false, TriggerNone, ""},
		{"long stop loss", long, 980, t0.Add(time.Second), neutral, true, TriggerStopLoss, model.Sell},
		{"long take profit", long, 1015, t0.Add(time.Second), neutral, true, TriggerTakeProfit, model.Sell},
		{"long inside band", long, 1005, t0.Add(time.Second), neutral, false, TriggerNone, model.Sell},
		{"short stop loss", short, 1020, t0.Add(time.Second), neutral, true, TriggerStopLoss, model.Buy},
		{"short take profit", short, 985, t0.Add(time.Second), neutral, true, TriggerTakeProfit, model.Buy},
		{"max hold boundary", long, 1001, t0.Add(2 * time.Minute), neutral, true, TriggerMaxHold, model.Sell},
		{"before max hold", long, 1001, t0.Add(2*time.Minute - time.Second), neutral, false, TriggerNone, model.Sell},
		{"long overbought", long, 1001, t0.Add(time.Second),
			indicator.MultiRSI{RSI5: 80, RSI14: 72, Has5: true, Has14: true}, true, TriggerTechnical, model.Sell},
		{"short oversold", short, 999, t0.Add(time.Second),
			indicator.MultiRSI{RSI5: 20, RSI14: 28, Has5: true, Has14: true}, true, TriggerTechnical, model.Buy},
		{"long ignores oversold", long, 1001, t0.Add(time.Second),
			indicator.MultiRSI{RSI5: 20, RSI14: 28, Has5: true, Has14: true}, false, TriggerNone, model.Sell},
		{"rsi unavailable", long, 1001, t0.Add(time.Second),
			indicator.MultiRSI{RSI5: 80, RSI14: 72}, false, TriggerNone, model.Sell},
		{"stop loss beats technical", long, 970, t0.Add(time.Second),
			indicator.MultiRSI{RSI5: 80, RSI14: 72, Has5: true, Has14: true}, true, TriggerStopLoss, model.Sell},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckExit(tt.pos, tt.price, tt.at, tt.rsi, testLimits())
			if got.Fire != tt.fire || got.Trigger != tt.trigger || got.Action != tt.action {
				t.Errorf("got fire=%v trigger=%q action=%q (%s)", got.Fire, got.Trigger, got.Action, got.Reason)
			}
		})
	}
}

func TestCheckExit_NoPositionReason(t *testing.T) {
	got := CheckExit(nil, 1, t0, indicator.MultiRSI{}, testLimits())
	if got.Reason != "no active position" {
		t.Errorf("reason: %q", got.Reason)
	}
}

func TestBook_OpenLong(t *testing.T) {
	b := NewBook(model.Instrument{Pair: "btc_idr"}, testLimits())
	if b.State() != Flat {
		t.Fatalf("new book state: %s", b.State())
	}

	events := b.Apply(model.SignalDecision{Action: model.Buy, Reasons: []string{"x"}}, 1002, 1000, t0)
	if len(events) != 1 || events[0].Kind != model.EventOpen {
		t.Fatalf("expected one OPEN, got %+v", events)
	}
	ev := events[0]
	if ev.Side != model.Long || ev.EntryPrice != 1000 {
		t.Errorf("open event: %+v", ev)
	}
	if !approx(ev.StopLoss, 980) || !approx(ev.TakeProfit, 1015) {
		t.Errorf("levels: sl=%v tp=%v", ev.StopLoss, ev.TakeProfit)
	}
	if b.State() != Long {
		t.Errorf("state: %s", b.State())
	}
	pos, ok := b.Position()
	if !ok || pos.Instrument != "btc_idr" || !pos.EntryTime.Equal(t0) {
		t.Errorf("position: %+v", pos)
	}
}

func TestBook_ShortLevels(t *testing.T) {
	b := NewBook(model.Instrument{Pair: "eth_idr"}, testLimits())
	ev := b.Apply(model.SignalDecision{Action: model.Sell}, 1000, 1000, t0)[0]
	if !approx(ev.StopLoss, 1020) || !approx(ev.TakeProfit, 985) {
		t.Errorf("short levels: sl=%v tp=%v", ev.StopLoss, ev.TakeProfit)
	}
}

func TestBook_SameSideIsNoop(t *testing.T) {
	b := NewBook(model.Instrument{Pair: "btc_idr"}, testLimits())
	b.Apply(model.SignalDecision{Action: model.Buy}, 1000, 1000, t0)
	if events := b.Apply(model.SignalDecision{Action: model.Buy}, 1010, 1010, t0.Add(time.Second)); events != nil {
		t.Errorf("same-side signal produced events: %+v", events)
	}
	pos, _ := b.Position()
	if pos.EntryPrice != 1000 {
		t.Errorf("entry changed: %v", pos.EntryPrice)
	}
}

func TestBook_OppositeReverses(t *testing.T) {
	b := NewBook(model.Instrument{Pair: "btc_idr"}, testLimits())
	b.Apply(model.SignalDecision{Action: model.Buy}, 1000, 1000, t0)

	events := b.Apply(model.SignalDecision{Action: model.Sell}, 1010, 1011, t0.Add(time.Minute))
	if len(events) != 2 {
		t.Fatalf("expected close+open, got %d events", len(events))
	}
	closeEv, openEv := events[0], events[1]
	if closeEv.Kind != model.EventClose || closeEv.Side != model.Long || closeEv.Direction != model.Sell {
		t.Errorf("close event: %+v", closeEv)
	}
	if !approx(closeEv.PnL, 0.01) || closeEv.Status != model.StatusProfit {
		t.Errorf("close pnl=%v status=%s", closeEv.PnL, closeEv.Status)
	}
	if openEv.Kind != model.EventOpen || openEv.Side != model.Short || openEv.EntryPrice != 1011 {
		t.Errorf("open event: %+v", openEv)
	}
	if b.State() != Short {
		t.Errorf("state: %s", b.State())
	}
}

func TestBook_Exit(t *testing.T) {
	b := NewBook(model.Instrument{Pair: "btc_idr"}, testLimits())
	if events := b.Apply(model.SignalDecision{Action: model.Exit}, 1000, 1000, t0); events != nil {
		t.Errorf("exit while flat produced events: %+v", events)
	}

	b.Apply(model.SignalDecision{Action: model.Sell}, 1000, 1000, t0)
	events := b.Apply(model.SignalDecision{Action: model.Exit, Reasons: []string{"stop loss"}}, 1030, 1030, t0.Add(time.Second))
	if len(events) != 1 {
		t.Fatalf("expected one CLOSE, got %d", len(events))
	}
	ev := events[0]
	if ev.Action != model.Exit || ev.Direction != model.Buy || ev.Status != model.StatusLoss {
		t.Errorf("close event: %+v", ev)
	}
	if !strings.Contains(strings.Join(ev.Reasons, ","), "stop loss") {
		t.Errorf("reasons not carried: %v", ev.Reasons)
	}
	if b.State() != Flat {
		t.Errorf("state after exit: %s", b.State())
	}
}

func TestBook_HoldIsNoop(t *testing.T) {
	b := NewBook(model.Instrument{Pair: "btc_idr"}, testLimits())
	if events := b.Apply(model.SignalDecision{Action: model.Hold}, 1000, 1000, t0); events != nil {
		t.Errorf("hold produced events: %+v", events)
	}
}

func TestRiskTracker(t *testing.T) {
	p := NewRiskTracker()
	btc := model.Instrument{Pair: "btc_idr"}
	eth := model.Instrument{Pair: "eth_idr"}

	record := func(inst model.Instrument, pnl float64) {
		ev := model.NewTradeEvent(inst, model.EventClose, model.Exit, 1, t0)
		ev.PnL = pnl
		ev.Status = model.StatusOf(pnl)
		p.Record(ev)
	}
	p.Record(model.NewTradeEvent(btc, model.EventOpen, model.Buy, 1, t0))
	record(btc, 0.02)
	record(btc, -0.01)
	record(eth, 0.03)
	record(eth, -0.02)

	s := p.Summary()
	if s.TotalTrades != 4 {
		t.Errorf("trades: %d", s.TotalTrades)
	}
	if !approx(s.Realized, 0.02) || !approx(s.Peak, 0.04) {
		t.Errorf("realized=%v peak=%v", s.Realized, s.Peak)
	}
	if !approx(s.DrawdownPct, 50) {
		t.Errorf("drawdown: %v", s.DrawdownPct)
	}
	b := s.ByInstrument["btc_idr"]
	if b.Trades != 2 || b.Wins != 1 || b.Losses != 1 || !approx(b.Best, 0.02) || !approx(b.Worst, -0.01) {
		t.Errorf("btc summary: %+v", b)
	}
}

func approx(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
