package rest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"signalbot/internal/breaker"
	"signalbot/internal/model"
)

func newTestClient(t *testing.T, base string, retries int) *Client {
	t.Helper()
	c, err := New(Config{Name: "test", BaseURL: base, Timeout: time.Second, Retries: retries, Backoff: time.Millisecond, BreakerFailures: 10})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestGetJSON_Decodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/x" || r.URL.Query().Get("symbol") != "BTCUSDT" {
			t.Errorf("unexpected request %s", r.URL)
		}
		w.Write([]byte(`{"a": 1.5}`))
	}))
	defer srv.Close()

	var out struct{ A float64 }
	c := newTestClient(t, srv.URL, 1)
	if err := c.GetJSON(context.Background(), "/x", url.Values{"symbol": {"BTCUSDT"}}, &out); err != nil {
		t.Fatal(err)
	}
	if out.A != 1.5 {
		t.Errorf("decoded %v", out.A)
	}
}

func TestGetJSON_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	var attempts int
	c := newTestClient(t, srv.URL, 3)
	c.OnRequest = func(string, time.Duration, error) { attempts++ }

	var out map[string]any
	if err := c.GetJSON(context.Background(), "/", nil, &out); err != nil {
		t.Fatalf("expected success on third attempt: %v", err)
	}
	if calls.Load() != 3 || attempts != 3 {
		t.Errorf("calls=%d attempts=%d", calls.Load(), attempts)
	}
}

func TestGetJSON_ExhaustedRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 2)
	err := c.GetJSON(context.Background(), "/", nil, &struct{}{})
	if !errors.Is(err, model.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusInternalServerError {
		t.Errorf("expected wrapped HTTPError, got %v", err)
	}
}

func TestGetJSON_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := New(Config{Name: "test", BaseURL: srv.URL, Retries: 1, BreakerFailures: 2, BreakerReset: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		_ = c.GetJSON(context.Background(), "/", nil, &struct{}{})
	}
	err = c.GetJSON(context.Background(), "/", nil, &struct{}{})
	if !errors.Is(err, breaker.ErrOpen) {
		t.Errorf("expected open breaker, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("upstream called %d times", calls.Load())
	}
}

func TestGetJSON_ClientErrorsKeepBreakerClosed(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path == "/bad_idr/ticker" {
			http.Error(w, "pair not found", http.StatusNotFound)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := New(Config{Name: "test", BaseURL: srv.URL, Retries: 3, Backoff: time.Millisecond, BreakerFailures: 5, BreakerReset: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		err := c.GetJSON(context.Background(), "/bad_idr/ticker", nil, &struct{}{})
		var httpErr *HTTPError
		if !errors.As(err, &httpErr) || httpErr.Status != http.StatusNotFound {
			t.Fatalf("bad pair: %v", err)
		}
	}
	if calls.Load() != 5 {
		t.Errorf("404 retried: %d upstream calls for 5 requests", calls.Load())
	}
	if c.Breaker().State() != breaker.StateClosed {
		t.Fatalf("breaker %v after client errors", c.Breaker().State())
	}
	if err := c.GetJSON(context.Background(), "/btc_idr/ticker", nil, &struct{}{}); err != nil {
		t.Errorf("healthy pair blocked: %v", err)
	}
}

func TestGetJSON_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c, err := New(Config{Name: "test", BaseURL: srv.URL, Timeout: 20 * time.Millisecond, Retries: 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.GetJSON(context.Background(), "/", nil, &struct{}{}); !errors.Is(err, model.ErrDataUnavailable) {
		t.Errorf("expected ErrDataUnavailable, got %v", err)
	}
}

func TestNew_BadProxy(t *testing.T) {
	if _, err := New(Config{Name: "x", ProxyURL: "://bad"}); err == nil {
		t.Error("expected proxy parse error")
	}
}

func TestFloat(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{"123.5", 123.5, true},
		{float64(7), 7, true},
		{"abc", 0, false},
		{nil, 0, false},
		{true, 0, false},
	}
	for _, tt := range tests {
		got, err := Float(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("Float(%v) = %v, %v", tt.in, got, err)
		}
	}
}
