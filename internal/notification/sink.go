package notification

import (
	"context"
	"fmt"
	"time"

	"signalbot/internal/model"
)

// Sink adapts a Notifier to model.EventSink. Delivery is retried a bounded
// number of times; after that the event is dropped for this channel.
type Sink struct {
	notifier Notifier
	sendHold bool
	retries  int
	backoff  time.Duration
}

// NewSink wraps n. HOLD events are only delivered when sendHold is set.
func NewSink(n Notifier, sendHold bool) *Sink {
	return &Sink{notifier: n, sendHold: sendHold, retries: 3, backoff: time.Second}
}

// Name implements model.EventSink.
func (s *Sink) Name() string { return "notifier" }

// Publish renders ev and sends it.
func (s *Sink) Publish(ctx context.Context, ev model.TradeEvent) error {
	if ev.Kind == model.EventHold && !s.sendHold {
		return nil
	}
	return s.Notify(ctx, Render(ev))
}

// Notify sends an arbitrary alert with the sink's retry policy.
func (s *Sink) Notify(ctx context.Context, alert Alert) error {
	var err error
	for attempt := 1; attempt <= s.retries; attempt++ {
		if err = s.notifier.Send(ctx, alert); err == nil {
			return nil
		}
		if attempt == s.retries {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("notify %q: %w: %w", alert.Title, model.ErrNotification, ctx.Err())
		case <-time.After(time.Duration(attempt) * s.backoff):
		}
	}
	return fmt.Errorf("notify %q: %w: %w", alert.Title, model.ErrNotification, err)
}
