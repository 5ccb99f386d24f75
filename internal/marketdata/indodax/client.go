// Package indodax reads public ticker, order book and trade data from the
// Indodax REST API.
package indodax

import (
	"context"
	"fmt"
	"strings"
	"time"

	"signalbot/internal/marketdata/rest"
	"signalbot/internal/model"
)

// Client implements model.MarketSource.
type Client struct {
	rest *rest.Client
	now  func() time.Time
}

// New wraps a configured REST client.
func New(rc *rest.Client) *Client {
	return &Client{rest: rc, now: func() time.Time { return time.Now().UTC() }}
}

// Ticker returns the latest ticker of pair, stamped with the local clock.
// Volume is read from vol_{base}, falling back to vol_idr.
func (c *Client) Ticker(ctx context.Context, pair string) (model.Ticker, error) {
	var resp struct {
		Ticker map[string]any `json:"ticker"`
	}
	if err := c.rest.GetJSON(ctx, "/"+pair+"/ticker", nil, &resp); err != nil {
		return model.Ticker{}, fmt.Errorf("indodax: ticker %s: %w", pair, err)
	}
	if resp.Ticker == nil {
		return model.Ticker{}, fmt.Errorf("indodax: ticker %s: %w: empty ticker", pair, model.ErrDataUnavailable)
	}

	volField := "vol_" + strings.SplitN(pair, "_", 2)[0]
	if _, ok := resp.Ticker[volField]; !ok {
		volField = "vol_idr"
	}

	t := model.Ticker{TS: c.now()}
	fields := []struct {
		key string
		dst *float64
	}{
		{"last", &t.Last},
		{"high", &t.High},
		{"low", &t.Low},
		{volField, &t.Volume},
	}
	for _, f := range fields {
		v, err := rest.Float(resp.Ticker[f.key])
		if err != nil {
			return model.Ticker{}, fmt.Errorf("indodax: ticker %s: field %s: %w: %w", pair, f.key, model.ErrDataUnavailable, err)
		}
		*f.dst = v
	}
	return t, nil
}

// OrderBookTop sums the volume of the top n levels on each side of the book.
func (c *Client) OrderBookTop(ctx context.Context, pair string, n int) (buyVol, sellVol float64, err error) {
	var resp struct {
		Buy  [][]any `json:"buy"`
		Sell [][]any `json:"sell"`
	}
	if err := c.rest.GetJSON(ctx, "/"+pair+"/depth", nil, &resp); err != nil {
		return 0, 0, fmt.Errorf("indodax: depth %s: %w", pair, err)
	}
	if buyVol, err = sumLevels(resp.Buy, n); err != nil {
		return 0, 0, fmt.Errorf("indodax: depth %s: buy: %w: %w", pair, model.ErrDataUnavailable, err)
	}
	if sellVol, err = sumLevels(resp.Sell, n); err != nil {
		return 0, 0, fmt.Errorf("indodax: depth %s: sell: %w: %w", pair, model.ErrDataUnavailable, err)
	}
	return buyVol, sellVol, nil
}

// RecentTrades counts buy and sell trades among the n most recent.
func (c *Client) RecentTrades(ctx context.Context, pair string, n int) (buys, sells int, err error) {
	var trades []struct {
		Type string `json:"type"`
	}
	if err := c.rest.GetJSON(ctx, "/"+pair+"/trades", nil, &trades); err != nil {
		return 0, 0, fmt.Errorf("indodax: trades %s: %w", pair, err)
	}
	if len(trades) > n {
		trades = trades[:n]
	}
	for _, tr := range trades {
		if tr.Type == "buy" {
			buys++
		} else {
			sells++
		}
	}
	return buys, sells, nil
}

// sumLevels adds the amount (second element) of the first n [price, amount] levels.
func sumLevels(levels [][]any, n int) (float64, error) {
	if len(levels) > n {
		levels = levels[:n]
	}
	total := 0.0
	for _, lvl := range levels {
		if len(lvl) < 2 {
			return 0, fmt.Errorf("malformed level %v", lvl)
		}
		v, err := rest.Float(lvl[1])
		if err != nil {
			return 0, err
		}
		total += v
	}
	return total, nil
}
