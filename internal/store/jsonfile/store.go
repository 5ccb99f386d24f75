// Package jsonfile persists rolling history as one JSON array per instrument
// and set: {pair}_historical_data.json and {pair}_archived_data.json.
// Timestamps are RFC3339Nano so they round-trip exactly.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"signalbot/internal/model"
)

const (
	activeSuffix  = "_historical_data.json"
	archiveSuffix = "_archived_data.json"
)

// Store implements model.HistoryRepository on a directory of JSON files.
type Store struct {
	dir string
}

// New creates the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("jsonfile: mkdir %s: %w: %w", dir, model.ErrPersistence, err)
	}
	slog.Info("history store opened", "backend", "json", "dir", dir)
	return &Store{dir: dir}, nil
}

// Dir returns the storage directory.
func (s *Store) Dir() string { return s.dir }

// ActivePath returns the file holding the active samples of instrument.
func (s *Store) ActivePath(instrument string) string {
	return filepath.Join(s.dir, instrument+activeSuffix)
}

// ArchivePath returns the file holding the archived samples of instrument.
func (s *Store) ArchivePath(instrument string) string {
	return filepath.Join(s.dir, instrument+archiveSuffix)
}

// Load reads both sets. Missing files yield empty slices.
func (s *Store) Load(ctx context.Context, instrument string) (samples, archive []model.PriceSample, err error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if samples, err = readFile(s.ActivePath(instrument)); err != nil {
		return nil, nil, fmt.Errorf("jsonfile: load %s: %w", instrument, err)
	}
	if archive, err = readFile(s.ArchivePath(instrument)); err != nil {
		return nil, nil, fmt.Errorf("jsonfile: load %s archive: %w", instrument, err)
	}
	return samples, archive, nil
}

// Save rewrites both sets. An empty archive removes the archive file.
func (s *Store) Save(ctx context.Context, instrument string, samples, archive []model.PriceSample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := writeFile(s.ActivePath(instrument), samples); err != nil {
		return fmt.Errorf("jsonfile: save %s: %w", instrument, err)
	}
	if len(archive) == 0 {
		if err := os.Remove(s.ArchivePath(instrument)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("jsonfile: save %s archive: %w: %w", instrument, model.ErrPersistence, err)
		}
		return nil
	}
	if err := writeFile(s.ArchivePath(instrument), archive); err != nil {
		return fmt.Errorf("jsonfile: save %s archive: %w", instrument, err)
	}
	return nil
}

// SaveActive rewrites the active set only.
func (s *Store) SaveActive(ctx context.Context, instrument string, samples []model.PriceSample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := writeFile(s.ActivePath(instrument), samples); err != nil {
		return fmt.Errorf("jsonfile: save %s: %w", instrument, err)
	}
	return nil
}

// Instruments lists the instruments with stored active history.
func (s *Store) Instruments() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+activeSuffix))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSuffix(filepath.Base(m), activeSuffix))
	}
	sort.Strings(out)
	return out, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func readFile(path string) ([]model.PriceSample, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}
	var out []model.PriceSample
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", model.ErrPersistence, filepath.Base(path), err)
	}
	return out, nil
}

// writeFile replaces path atomically via a temp file in the same directory.
func writeFile(path string, samples []model.PriceSample) error {
	if samples == nil {
		samples = []model.PriceSample{}
	}
	b, err := json.MarshalIndent(samples, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %w", model.ErrPersistence, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %w", model.ErrPersistence, err)
	}
	return nil
}
