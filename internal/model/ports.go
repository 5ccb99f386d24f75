package model

import "context"

// ── Ports ──
// The decision core never talks to the network or disk directly. The engine
// wires these interfaces to concrete clients and stores.

// MarketSource reads per-instrument market data. All methods are pure reads.
type MarketSource interface {
	// Ticker returns the latest ticker for pair.
	Ticker(ctx context.Context, pair string) (Ticker, error)

	// OrderBookTop sums the volume of the top n levels on each side.
	OrderBookTop(ctx context.Context, pair string, n int) (buyVol, sellVol float64, err error)

	// RecentTrades counts buy and sell trades among the last n trades.
	RecentTrades(ctx context.Context, pair string, n int) (buys, sells int, err error)
}

// BenchmarkSource reads tickers from a reference market.
type BenchmarkSource interface {
	Ticker(ctx context.Context, symbol string) (Ticker, error)
}

// EventSink receives committed trade events.
type EventSink interface {
	// Name labels the sink in logs and metrics.
	Name() string

	// Publish delivers one event. Failures never roll back state.
	Publish(ctx context.Context, ev TradeEvent) error
}

// HistoryRepository hydrates and flushes rolling history.
type HistoryRepository interface {
	// Load returns the active and archived samples for an instrument.
	// A missing instrument returns empty slices and no error.
	Load(ctx context.Context, instrument string) (samples, archive []PriceSample, err error)

	// Save replaces the stored history of an instrument.
	Save(ctx context.Context, instrument string, samples, archive []PriceSample) error

	// SaveActive replaces only the active samples, leaving the stored
	// archive as it is.
	SaveActive(ctx context.Context, instrument string, samples []PriceSample) error

	// Close releases underlying resources.
	Close() error
}
