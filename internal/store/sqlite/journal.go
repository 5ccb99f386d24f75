package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"signalbot/internal/model"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS trade_events (
	id          TEXT PRIMARY KEY,
	instrument  TEXT NOT NULL,
	kind        TEXT NOT NULL,
	action      TEXT NOT NULL,
	direction   TEXT,
	side        TEXT,
	price       REAL NOT NULL,
	entry_price REAL,
	stop_loss   REAL,
	take_profit REAL,
	pnl         REAL,
	status      TEXT,
	reasons     TEXT,
	event_time  TEXT NOT NULL,
	created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_trade_events_instrument ON trade_events(instrument);
CREATE INDEX IF NOT EXISTS idx_trade_events_time ON trade_events(event_time);
`

// Journal persists trade events for audit and the trades API.
// It implements model.EventSink.
type Journal struct {
	db *sql.DB
}

// NewJournal opens (or creates) a trade journal database.
func NewJournal(path string) (*Journal, error) {
	db, err := open(path, journalSchema)
	if err != nil {
		return nil, fmt.Errorf("sqlite: journal: %w: %w", model.ErrPersistence, err)
	}
	slog.Info("trade journal opened", "path", path)
	return &Journal{db: db}, nil
}

// Name implements model.EventSink.
func (j *Journal) Name() string { return "journal" }

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// Publish records ev. HOLD events are not journaled.
func (j *Journal) Publish(ctx context.Context, ev model.TradeEvent) error {
	if ev.Kind == model.EventHold {
		return nil
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO trade_events
			(id, instrument, kind, action, direction, side, price, entry_price, stop_loss, take_profit, pnl, status, reasons, event_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID,
		ev.Instrument.Key(),
		string(ev.Kind),
		string(ev.Action),
		string(ev.Direction),
		string(ev.Side),
		ev.Price,
		ev.EntryPrice,
		ev.StopLoss,
		ev.TakeProfit,
		ev.PnL,
		string(ev.Status),
		strings.Join(ev.Reasons, "; "),
		ev.Time.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite: journal %s: %w: %w", ev.ID, model.ErrPersistence, err)
	}
	return nil
}

// TradeRecord is a row of the trade_events table.
type TradeRecord struct {
	ID         string  `json:"id"`
	Instrument string  `json:"instrument"`
	Kind       string  `json:"kind"`
	Action     string  `json:"action"`
	Direction  string  `json:"direction,omitempty"`
	Side       string  `json:"side,omitempty"`
	Price      float64 `json:"price"`
	EntryPrice float64 `json:"entry_price,omitempty"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
	PnL        float64 `json:"pnl,omitempty"`
	Status     string  `json:"status,omitempty"`
	Reasons    string  `json:"reasons"`
	Time       string  `json:"time"`
}

// GetTrades returns the last limit events, newest first. An empty
// instrument matches all instruments.
func (j *Journal) GetTrades(ctx context.Context, instrument string, limit int) ([]TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, instrument, kind, action, direction, side, price, entry_price, stop_loss,
		       take_profit, pnl, status, reasons, event_time
		FROM trade_events
		WHERE ? = '' OR instrument = ?
		ORDER BY event_time DESC, rowid DESC
		LIMIT ?`, instrument, instrument, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: trades: %w", err)
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.ID, &t.Instrument, &t.Kind, &t.Action, &t.Direction, &t.Side, &t.Price,
			&t.EntryPrice, &t.StopLoss, &t.TakeProfit, &t.PnL, &t.Status, &t.Reasons, &t.Time); err != nil {
			return nil, fmt.Errorf("sqlite: scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
