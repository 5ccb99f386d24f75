package engine

import (
	"context"
	"time"

	"signalbot/config"
	"signalbot/internal/indicator"
	"signalbot/internal/model"
)

// benchmarkWindow is the number of distinct benchmark prices kept.
const benchmarkWindow = 50

// runBenchmark polls the benchmark ticker and publishes a fresh immutable
// snapshot after every successful read.
func (e *Engine) runBenchmark(ctx context.Context) {
	cfg := e.cfg.Benchmark
	var prices []float64

	poll := func() {
		var t model.Ticker
		err := e.fetch(ctx, "benchmark", cfg.Symbol, func(ctx context.Context) (err error) {
			t, err = e.bench.Ticker(ctx, cfg.Symbol)
			return err
		})
		if err != nil {
			if ctx.Err() == nil {
				e.log.Warn("benchmark unavailable", "symbol", cfg.Symbol, "err", err)
			}
			return
		}
		if n := len(prices); n == 0 || prices[n-1] != t.Last {
			prices = append(prices, t.Last)
			if len(prices) > benchmarkWindow {
				prices = append(prices[:0], prices[len(prices)-benchmarkWindow:]...)
			}
		}
		e.benchmark.Store(buildBenchmark(cfg, prices, t.Last, e.now()))
	}

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	poll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll()
		}
	}
}

// buildBenchmark derives the trend reading from the benchmark price window.
// The snapshot is ready once the window supports the 20-sample average.
func buildBenchmark(cfg config.Benchmark, prices []float64, price float64, now time.Time) *model.BenchmarkSnapshot {
	snap := indicator.Compute(prices)
	b := &model.BenchmarkSnapshot{
		Symbol:     cfg.Symbol,
		Asset:      cfg.Asset,
		Price:      price,
		Volatility: snap.Volatility,
		UpdatedAt:  now,
	}
	if snap.HasSMA {
		b.Ready = true
		b.Bullish = snap.TrendBullish
		b.Bearish = snap.TrendBearish
	}
	return b
}
