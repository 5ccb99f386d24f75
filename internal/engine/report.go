package engine

import (
	"context"
	"time"
)

// runReporter logs the statistics report every StatsInterval.
func (e *Engine) runReporter(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			qctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			statuses, err := e.Status(qctx)
			cancel()
			if err != nil {
				continue
			}
			e.report(statuses)
		}
	}
}

// report logs per-instrument signal counts and the realized P/L summary.
func (e *Engine) report(statuses []InstrumentStatus) {
	for _, s := range statuses {
		e.log.Info("signal statistics",
			"instrument", s.Instrument.Key(),
			"total", s.Stats.Total(),
			"buy", s.Stats.BuyCount,
			"sell", s.Stats.SellCount,
			"hold", s.Stats.HoldCount,
			"exit", s.Stats.ExitCount,
			"state", s.State,
			"points", s.Points,
		)
	}

	sum := e.risk.Summary()
	for key, p := range sum.ByInstrument {
		e.log.Info("realized pnl",
			"instrument", key,
			"trades", p.Trades,
			"wins", p.Wins,
			"losses", p.Losses,
			"realized_pct", p.Realized*100,
		)
	}
	e.log.Info("portfolio summary",
		"trades", sum.TotalTrades,
		"realized_pct", sum.Realized*100,
		"drawdown_pct", sum.DrawdownPct,
	)
}
