package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"signalbot/internal/model"
)

// WebhookNotifier POSTs alerts as JSON to a generic HTTP endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewWebhookNotifier creates a webhook notifier for url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// webhookPayload is the request body. Trade fields are flattened from the
// event so receivers can route on them without decoding the full event.
type webhookPayload struct {
	Level      AlertLevel        `json:"level"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	TS         string            `json:"ts"`
	Instrument string            `json:"instrument,omitempty"`
	Kind       model.EventKind   `json:"kind,omitempty"`
	Action     model.Action      `json:"action,omitempty"`
	Price      float64           `json:"price,omitempty"`
	PnL        float64           `json:"pnl,omitempty"`
	Status     model.TradeStatus `json:"status,omitempty"`
	Event      *model.TradeEvent `json:"event,omitempty"`
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	p := webhookPayload{
		Level:   alert.Level,
		Title:   alert.Title,
		Message: alert.Message,
		TS:      w.now().UTC().Format(time.RFC3339Nano),
		Event:   alert.Event,
	}
	if ev := alert.Event; ev != nil {
		p.Instrument = ev.Instrument.Key()
		p.Kind, p.Action, p.Price = ev.Kind, ev.Action, ev.Price
		p.PnL, p.Status = ev.PnL, ev.Status
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("webhook: encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("webhook: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	slog.Debug("webhook alert sent", "title", alert.Title, "kind", p.Kind, "instrument", p.Instrument)
	return nil
}
