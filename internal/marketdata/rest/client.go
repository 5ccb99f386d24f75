// Package rest is the shared JSON-over-HTTP client for the public market
// data endpoints. Every request runs under a per-attempt timeout, bounded
// retries with linear backoff and a circuit breaker for the upstream host.
package rest

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"signalbot/internal/breaker"
	"signalbot/internal/model"
)

// Config configures a Client.
type Config struct {
	Name     string        // upstream name for logs, metrics and the breaker
	BaseURL  string        // e.g. https://indodax.com/api
	ProxyURL string        // optional HTTP proxy URL
	Timeout  time.Duration // per attempt, default 10s
	Retries  int           // attempts, default 3
	Backoff  time.Duration // attempt n waits n*Backoff before retrying

	BreakerFailures int
	BreakerReset    time.Duration
}

// Client performs GET requests and decodes JSON responses.
type Client struct {
	name       string
	baseURL    string
	timeout    time.Duration
	retries    int
	backoff    time.Duration
	httpClient *http.Client
	breaker    *breaker.Breaker
	logger     *slog.Logger

	// OnRequest is called after every attempt with its duration and error.
	OnRequest func(name string, d time.Duration, err error)
}

// HTTPError is a non-2xx response.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// New creates a client. An unparsable proxy URL is an error.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retries < 1 {
		cfg.Retries = 3
	}
	if cfg.BreakerFailures < 1 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerReset <= 0 {
		cfg.BreakerReset = 30 * time.Second
	}

	tr := &http.Transport{
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}
	if cfg.ProxyURL != "" {
		purl, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("rest: %s: invalid proxy url: %w", cfg.Name, err)
		}
		tr.Proxy = http.ProxyURL(purl)
	}

	cb := breaker.New(cfg.Name, cfg.BreakerFailures, cfg.BreakerReset)
	cb.IsFailure = upstreamFault

	return &Client{
		name:       cfg.Name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    cfg.Timeout,
		retries:    cfg.Retries,
		backoff:    cfg.Backoff,
		httpClient: &http.Client{Transport: tr},
		breaker:    cb,
		logger:     slog.Default().With("source", cfg.Name),
	}, nil
}

// upstreamFault reports whether err says the host itself is unhealthy.
// Client errors other than 429 are about one request path, such as an
// unknown pair, so they neither trip the shared breaker nor get retried.
func upstreamFault(err error) bool {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status >= 500 || he.Status == http.StatusTooManyRequests
	}
	return true
}

// Name returns the upstream name.
func (c *Client) Name() string { return c.name }

// Breaker exposes the upstream breaker for state reporting.
func (c *Client) Breaker() *breaker.Breaker { return c.breaker }

// GetJSON fetches baseURL+path with the query and decodes the body into out.
// Failures are wrapped with model.ErrDataUnavailable.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: GET %s: %w: %w", c.name, path, model.ErrDataUnavailable, ctx.Err())
			case <-time.After(time.Duration(attempt-1) * c.backoff):
			}
		}

		lastErr = c.breaker.Execute(func() error { return c.attempt(ctx, u, out) })
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, breaker.ErrOpen) || ctx.Err() != nil || !upstreamFault(lastErr) {
			break
		}
		c.logger.Debug("request failed", "path", path, "attempt", attempt, "err", lastErr)
	}
	return fmt.Errorf("%s: GET %s: %w: %w", c.name, path, model.ErrDataUnavailable, lastErr)
}

func (c *Client) attempt(ctx context.Context, u string, out any) (err error) {
	start := time.Now()
	defer func() {
		if c.OnRequest != nil {
			c.OnRequest(c.name, time.Since(start), err)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
