package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"signalbot/internal/model"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS price_samples (
	instrument TEXT    NOT NULL,
	archived   INTEGER NOT NULL,
	seq        INTEGER NOT NULL,
	ts         TEXT    NOT NULL,
	price      REAL    NOT NULL,
	high       REAL    NOT NULL,
	low        REAL    NOT NULL,
	volume     REAL    NOT NULL,
	PRIMARY KEY (instrument, archived, seq)
);
`

// HistoryStore implements model.HistoryRepository. Timestamps are stored as
// RFC3339Nano text; seq preserves the slice order.
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore opens (or creates) the history database at path.
func NewHistoryStore(path string) (*HistoryStore, error) {
	db, err := open(path, historySchema)
	if err != nil {
		return nil, fmt.Errorf("sqlite: history: %w: %w", model.ErrPersistence, err)
	}
	slog.Info("history store opened", "backend", "sqlite", "path", path)
	return &HistoryStore{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (s *HistoryStore) DB() *sql.DB { return s.db }

// Load returns the active and archived samples of instrument in order.
func (s *HistoryStore) Load(ctx context.Context, instrument string) (samples, archive []model.PriceSample, err error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT archived, ts, price, high, low, volume
		FROM price_samples
		WHERE instrument = ?
		ORDER BY archived, seq
	`, instrument)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: load %s: %w: %w", instrument, model.ErrPersistence, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			archived bool
			ts       string
			p        model.PriceSample
		)
		if err := rows.Scan(&archived, &ts, &p.Price, &p.High, &p.Low, &p.Volume); err != nil {
			return nil, nil, fmt.Errorf("sqlite: scan %s: %w: %w", instrument, model.ErrPersistence, err)
		}
		if p.TS, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, nil, fmt.Errorf("sqlite: parse ts %q: %w: %w", ts, model.ErrPersistence, err)
		}
		if archived {
			archive = append(archive, p)
		} else {
			samples = append(samples, p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("sqlite: load %s: %w: %w", instrument, model.ErrPersistence, err)
	}
	return samples, archive, nil
}

// Save replaces the stored history of instrument in one transaction.
func (s *HistoryStore) Save(ctx context.Context, instrument string, samples, archive []model.PriceSample) error {
	if err := s.save(ctx, instrument, samples, archive, true); err != nil {
		return fmt.Errorf("sqlite: save %s: %w: %w", instrument, model.ErrPersistence, err)
	}
	return nil
}

// SaveActive replaces the active rows of instrument; archived rows are kept.
func (s *HistoryStore) SaveActive(ctx context.Context, instrument string, samples []model.PriceSample) error {
	if err := s.save(ctx, instrument, samples, nil, false); err != nil {
		return fmt.Errorf("sqlite: save %s: %w: %w", instrument, model.ErrPersistence, err)
	}
	return nil
}

func (s *HistoryStore) save(ctx context.Context, instrument string, samples, archive []model.PriceSample, withArchive bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	del := `DELETE FROM price_samples WHERE instrument = ? AND archived = 0`
	if withArchive {
		del = `DELETE FROM price_samples WHERE instrument = ?`
	}
	if _, err := tx.ExecContext(ctx, del, instrument); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_samples (instrument, archived, seq, ts, price, high, low, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for archived, set := range [][]model.PriceSample{samples, archive} {
		for i, p := range set {
			if _, err := stmt.ExecContext(ctx, instrument, archived, i,
				p.TS.Format(time.RFC3339Nano), p.Price, p.High, p.Low, p.Volume); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// Instruments lists the instruments with stored history.
func (s *HistoryStore) Instruments(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT instrument FROM price_samples ORDER BY instrument`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: instruments: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}
