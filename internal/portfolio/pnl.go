package portfolio

import (
	"sync"

	"signalbot/internal/model"
)

// InstrumentPnL aggregates closed trades of one instrument.
type InstrumentPnL struct {
	Trades   int     `json:"trades"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	Realized float64 `json:"realized"` // sum of realized P/L ratios
	Best     float64 `json:"best"`
	Worst    float64 `json:"worst"`
}

// PnLSummary is the portfolio-wide view across instruments.
type PnLSummary struct {
	Realized     float64                  `json:"realized"`
	Peak         float64                  `json:"peak"`
	DrawdownPct  float64                  `json:"drawdown_pct"`
	TotalTrades  int                      `json:"total_trades"`
	ByInstrument map[string]InstrumentPnL `json:"by_instrument"`
}

// RiskTracker records realized P/L of closed positions. It is shared by all
// instrument workers.
type RiskTracker struct {
	mu     sync.RWMutex
	byInst map[string]InstrumentPnL
	equity float64
	peak   float64
	trades int
}

// NewRiskTracker creates an empty tracker.
func NewRiskTracker() *RiskTracker {
	return &RiskTracker{byInst: make(map[string]InstrumentPnL)}
}

// Record adds a CLOSE event to the tracker. Other events are ignored.
func (p *RiskTracker) Record(ev model.TradeEvent) {
	if ev.Kind != model.EventClose {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	key := ev.Instrument.Key()
	e := p.byInst[key]
	if e.Trades == 0 || ev.PnL > e.Best {
		e.Best = ev.PnL
	}
	if e.Trades == 0 || ev.PnL < e.Worst {
		e.Worst = ev.PnL
	}
	e.Trades++
	switch ev.Status {
	case model.StatusProfit:
		e.Wins++
	case model.StatusLoss:
		e.Losses++
	}
	e.Realized += ev.PnL
	p.byInst[key] = e

	p.trades++
	p.equity += ev.PnL
	if p.equity > p.peak {
		p.peak = p.equity
	}
}

// Summary returns a copy of the current totals.
func (p *RiskTracker) Summary() PnLSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := PnLSummary{
		Realized:     p.equity,
		Peak:         p.peak,
		TotalTrades:  p.trades,
		ByInstrument: make(map[string]InstrumentPnL, len(p.byInst)),
	}
	if p.peak > 0 {
		s.DrawdownPct = (p.peak - p.equity) / p.peak * 100
	}
	for k, v := range p.byInst {
		s.ByInstrument[k] = v
	}
	return s
}
