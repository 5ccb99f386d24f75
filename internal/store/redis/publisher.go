// Package redis fans trade events out to Redis: a capped stream for
// replay, a latest-event key per instrument and a pub/sub channel for live
// subscribers. Writes go through a circuit breaker so a Redis outage costs
// one fast error per event instead of a timeout.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"signalbot/internal/breaker"
	"signalbot/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultStreamMaxLen = 5000
	defaultLatestTTL    = 30 * time.Minute

	// StreamKey is the capped stream holding every published event.
	StreamKey = "events:trade"
)

// Config configures the Redis publisher.
type Config struct {
	Addr         string
	Password     string
	DB           int
	StreamMaxLen int64
}

// Publisher implements model.EventSink on Redis.
type Publisher struct {
	client  *goredis.Client
	breaker *breaker.Breaker
	maxLen  int64
}

// New connects to Redis and pings the server.
func New(cfg Config, cb *breaker.Breaker) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	if cfg.StreamMaxLen <= 0 {
		cfg.StreamMaxLen = defaultStreamMaxLen
	}
	if cb == nil {
		cb = breaker.New("redis", 5, 10*time.Second)
	}

	slog.Info("redis connected", "addr", cfg.Addr)
	return &Publisher{client: client, breaker: cb, maxLen: cfg.StreamMaxLen}, nil
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Name implements model.EventSink.
func (p *Publisher) Name() string { return "redis" }

// Publish writes ev with one pipelined round trip. HOLD events are
// published live only; they are neither streamed nor cached.
func (p *Publisher) Publish(ctx context.Context, ev model.TradeEvent) error {
	data := string(ev.JSON())
	pair := ev.Instrument.Key()

	err := p.breaker.Execute(func() error {
		pipe := p.client.Pipeline()
		if ev.Kind != model.EventHold {
			pipe.XAdd(ctx, &goredis.XAddArgs{
				Stream: StreamKey,
				MaxLen: p.maxLen,
				Approx: true,
				Values: map[string]interface{}{"data": data, "instrument": pair},
			})
			pipe.Set(ctx, LatestKey(pair), data, defaultLatestTTL)
		}
		pipe.Publish(ctx, Channel(pair), data)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("redis: publish %s: %w", ev.ID, err)
	}
	return nil
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}

// Channel is the pub/sub channel of an instrument's events.
func Channel(pair string) string { return "pub:trade:" + pair }

// LatestKey holds the last OPEN/CLOSE event of an instrument.
func LatestKey(pair string) string { return "trade:latest:" + pair }
