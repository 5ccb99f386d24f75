package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"signalbot/internal/model"
)

// publishTimeout bounds one sink delivery.
const publishTimeout = 15 * time.Second

// Dispatcher fans trade events out to every sink. Each sink gets its own
// buffered queue and goroutine; when a queue is full the event is dropped
// for that sink only, so a stalled sink never blocks an instrument worker.
type Dispatcher struct {
	mu     sync.RWMutex
	queues []*sinkQueue
	closed bool
	wg     sync.WaitGroup

	// OnDrop is called when an event is dropped for a sink.
	OnDrop func(sink string)
	// OnError is called when a sink returns an error.
	OnError func(sink string, err error)
}

type sinkQueue struct {
	sink model.EventSink
	ch   chan model.TradeEvent
}

// ChannelStat reports the occupancy of one sink queue.
type ChannelStat struct {
	Sink string `json:"sink"`
	Len  int    `json:"len"`
	Cap  int    `json:"cap"`
}

// NewDispatcher creates a dispatcher with a queue of bufSize per sink.
func NewDispatcher(bufSize int, sinks ...model.EventSink) *Dispatcher {
	if bufSize <= 0 {
		bufSize = 64
	}
	d := &Dispatcher{}
	for _, s := range sinks {
		d.queues = append(d.queues, &sinkQueue{sink: s, ch: make(chan model.TradeEvent, bufSize)})
	}
	return d
}

// Start launches one delivery goroutine per sink. Deliveries are not tied to
// ctx so that queued events still go out while shutting down; Close bounds
// the drain instead.
func (d *Dispatcher) Start(ctx context.Context) {
	base := context.WithoutCancel(ctx)
	for _, q := range d.queues {
		d.wg.Add(1)
		go d.deliver(base, q)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, q *sinkQueue) {
	defer d.wg.Done()
	name := q.sink.Name()
	for ev := range q.ch {
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		err := q.sink.Publish(pctx, ev)
		cancel()
		if err == nil {
			continue
		}
		if d.OnError != nil {
			d.OnError(name, err)
		}
		slog.Warn("sink publish failed", "sink", name, "instrument", ev.Instrument.Key(), "kind", ev.Kind, "err", err)
	}
}

// Dispatch queues ev on every sink without blocking.
func (d *Dispatcher) Dispatch(ev model.TradeEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	for _, q := range d.queues {
		select {
		case q.ch <- ev:
		default:
			name := q.sink.Name()
			if d.OnDrop != nil {
				d.OnDrop(name)
			}
			slog.Warn("sink queue full, dropping event", "sink", name, "instrument", ev.Instrument.Key(), "kind", ev.Kind)
		}
	}
}

// Close stops accepting events and waits for the queues to drain, or for
// ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, q := range d.queues {
			close(q.ch)
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher: drain: %w", ctx.Err())
	}
}

// ChannelStats returns the occupancy of each sink queue.
func (d *Dispatcher) ChannelStats() []ChannelStat {
	d.mu.RLock()
	defer d.mu.RUnlock()
	stats := make([]ChannelStat, len(d.queues))
	for i, q := range d.queues {
		stats[i] = ChannelStat{Sink: q.sink.Name(), Len: len(q.ch), Cap: cap(q.ch)}
	}
	return stats
}
