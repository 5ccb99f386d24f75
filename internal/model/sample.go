package model

import "time"

// PriceSample is one accepted market observation for an instrument.
// Samples are immutable once created and only ever appended.
type PriceSample struct {
	TS     time.Time `json:"timestamp"`
	Price  float64   `json:"price"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Volume float64   `json:"volume"`
}

// Ticker is a raw ticker reading from a market data source.
type Ticker struct {
	TS     time.Time `json:"ts"`
	Last   float64   `json:"last"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Volume float64   `json:"volume"`
}

// Sample converts the ticker into a PriceSample.
func (t Ticker) Sample() PriceSample {
	return PriceSample{TS: t.TS, Price: t.Last, High: t.High, Low: t.Low, Volume: t.Volume}
}

// MarketPressure carries order-book and trade-tape balance for one cycle.
type MarketPressure struct {
	BookRatio  float64 `json:"book_ratio"` // top-of-book buy volume / sell volume
	BuyVolume  float64 `json:"buy_volume"`
	SellVolume float64 `json:"sell_volume"`
	BuyRatio   float64 `json:"buy_ratio"` // fraction of recent trades on the buy side
	SellRatio  float64 `json:"sell_ratio"`
	BuyCount   int     `json:"buy_count"`
	SellCount  int     `json:"sell_count"`
}

// NeutralPressure is used when order-book or trade data is missing.
func NeutralPressure() MarketPressure {
	return MarketPressure{BookRatio: 1.0, BuyRatio: 0.5, SellRatio: 0.5}
}

// NewMarketPressure builds pressure ratios from raw sums and counts.
// A zero sell volume or an empty trade window yields the neutral ratio.
func NewMarketPressure(buyVol, sellVol float64, buyCount, sellCount int) MarketPressure {
	p := NeutralPressure()
	p.BuyVolume, p.SellVolume = buyVol, sellVol
	p.BuyCount, p.SellCount = buyCount, sellCount
	if sellVol > 0 {
		p.BookRatio = buyVol / sellVol
	}
	if total := buyCount + sellCount; total > 0 {
		p.BuyRatio = float64(buyCount) / float64(total)
		p.SellRatio = float64(sellCount) / float64(total)
	}
	return p
}

// BenchmarkSnapshot is the trend reading of the dominant reference asset.
type BenchmarkSnapshot struct {
	Symbol     string    `json:"symbol"`
	Asset      string    `json:"asset"`
	Price      float64   `json:"price"`
	Bullish    bool      `json:"bullish"`
	Bearish    bool      `json:"bearish"`
	Volatility float64   `json:"volatility"` // stdev/mean of recent prices
	Ready      bool      `json:"ready"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ReferenceQuote is a secondary market price already converted to the local quote.
type ReferenceQuote struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}
