// Package binance reads 24h ticker statistics from the Binance spot API.
// It backs both the benchmark trend feed and the reference quotes used for
// divergence checks.
package binance

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"signalbot/internal/marketdata/rest"
	"signalbot/internal/model"
)

type ticker24h struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
	HighPrice string `json:"highPrice"`
	LowPrice  string `json:"lowPrice"`
	Volume    string `json:"volume"`
	CloseTime int64  `json:"closeTime"` // unix ms
}

// Client implements model.BenchmarkSource.
type Client struct {
	rest *rest.Client
}

// New wraps a configured REST client (proxy and timeouts live there).
func New(rc *rest.Client) *Client {
	return &Client{rest: rc}
}

// Ticker returns the 24h ticker of symbol, stamped with the exchange close time.
func (c *Client) Ticker(ctx context.Context, symbol string) (model.Ticker, error) {
	var resp ticker24h
	if err := c.rest.GetJSON(ctx, "/api/v3/ticker/24hr", url.Values{"symbol": {symbol}}, &resp); err != nil {
		return model.Ticker{}, fmt.Errorf("binance: ticker %s: %w", symbol, err)
	}

	t := model.Ticker{TS: time.UnixMilli(resp.CloseTime).UTC()}
	if resp.CloseTime == 0 {
		t.TS = time.Now().UTC()
	}
	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"lastPrice", resp.LastPrice, &t.Last},
		{"highPrice", resp.HighPrice, &t.High},
		{"lowPrice", resp.LowPrice, &t.Low},
		{"volume", resp.Volume, &t.Volume},
	}
	for _, f := range fields {
		v, err := rest.Float(f.raw)
		if err != nil {
			return model.Ticker{}, fmt.Errorf("binance: ticker %s: field %s: %w: %w", symbol, f.name, model.ErrDataUnavailable, err)
		}
		*f.dst = v
	}
	return t, nil
}
