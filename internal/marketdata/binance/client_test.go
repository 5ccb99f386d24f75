package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"signalbot/internal/marketdata/rest"
	"signalbot/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	rc, err := rest.New(rest.Config{Name: "binance", BaseURL: srv.URL, Timeout: time.Second, Retries: 1})
	if err != nil {
		t.Fatal(err)
	}
	return New(rc)
}

func TestTicker(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ticker/24hr" || r.URL.Query().Get("symbol") != "BTCUSDT" {
			t.Errorf("unexpected request %s", r.URL)
		}
		w.Write([]byte(`{"symbol":"BTCUSDT","lastPrice":"64000.50","highPrice":"65000.00","lowPrice":"63000.00","volume":"12345.6","closeTime":1709251200000}`))
	})

	got, err := c.Ticker(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}
	if got.Last != 64000.5 || got.High != 65000 || got.Low != 63000 || got.Volume != 12345.6 {
		t.Errorf("ticker: %+v", got)
	}
	if !got.TS.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("ts: %v", got.TS)
	}
}

func TestTicker_Invalid(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"BTCUSDT","lastPrice":""}`))
	})
	if _, err := c.Ticker(context.Background(), "BTCUSDT"); !errors.Is(err, model.ErrDataUnavailable) {
		t.Errorf("expected ErrDataUnavailable, got %v", err)
	}
}

func TestTicker_Restricted(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":0,"msg":"restricted location"}`, http.StatusUnavailableForLegalReasons)
	})
	_, err := c.Ticker(context.Background(), "BTCUSDT")
	var httpErr *rest.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusUnavailableForLegalReasons {
		t.Errorf("expected 451 HTTPError, got %v", err)
	}
}
